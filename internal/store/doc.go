// Package store holds per-user OAuth credentials in process memory.
//
// A single Store instance is shared for the lifetime of the server.
// Credentials are written once per successful OAuth code exchange,
// replaced on re-authentication and never expired or persisted.
// The store is safe for concurrent use from independent requests.
//
// Watch exposes a publish/subscribe channel over store mutations for
// consumers that need change notification (e.g. session gauges);
// it is layered on top of the map rather than baked into its contract.
package store
