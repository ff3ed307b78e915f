package server

import (
	"fmt"
	"net/http"

	"github.com/mailfold/mailfold/internal/google"
	"github.com/mailfold/mailfold/internal/instrumentation"
	"github.com/mailfold/mailfold/internal/logging"
)

type authCallbackResponse struct {
	Message string           `json:"message"`
	User    *google.UserInfo `json:"user"`
}

// handleAuthRedirect sends the browser to Google's consent screen with
// a single-use state nonce.
func (s *Server) handleAuthRedirect(w http.ResponseWriter, r *http.Request) {
	state, err := s.states.Issue()
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to issue state"})
		return
	}
	http.Redirect(w, r, s.oauth.AuthURL(state), http.StatusFound)
}

// handleAuthCallback finishes the OAuth flow: it validates the state,
// exchanges the code, resolves the Google account and stores the
// credential under the account id. A repeated login for the same
// account replaces the stored credential.
func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !s.states.Consume(r.URL.Query().Get("state")) {
		s.recordAuth(r, "invalid_state")
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid or expired state"})
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		s.recordAuth(r, "missing_code")
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "code is required"})
		return
	}

	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		s.recordAuth(r, "exchange_failed")
		s.writeError(w, r, fmt.Errorf("failed to exchange authorization code: %w", err))
		return
	}

	info, err := s.oauth.UserInfo(ctx, token)
	if err != nil {
		s.recordAuth(r, "userinfo_failed")
		s.writeError(w, r, fmt.Errorf("failed to fetch user info: %w", err))
		return
	}

	s.store.Set(info.ID, token)
	s.recordAuth(r, "success")
	s.logger.Info("user authenticated", logging.UserHash(info.ID))

	s.writeJSON(w, http.StatusOK, authCallbackResponse{
		Message: "Authentication successful",
		User:    info,
	})
}

func (s *Server) recordAuth(r *http.Request, result string) {
	if s.metrics == nil {
		return
	}
	if result == "success" {
		s.metrics.RecordOAuthAuth(r.Context(), instrumentation.StatusSuccess)
		return
	}
	s.metrics.RecordOAuthAuth(r.Context(), result)
}
