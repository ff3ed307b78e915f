package google

// Scopes are the Google OAuth scopes requested during the consent flow.
//
// The facade only ever reads mailboxes; the OpenID Connect scopes are
// required to resolve the account identifier that keys the credential
// store after the code exchange.
var Scopes = []string{
	// OpenID Connect scopes (required for user info)
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",

	// Gmail scope
	"https://www.googleapis.com/auth/gmail.readonly",
}
