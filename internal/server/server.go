package server

import (
	"context"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"

	gmailclient "github.com/mailfold/mailfold/internal/gmail"
	"github.com/mailfold/mailfold/internal/google"
	"github.com/mailfold/mailfold/internal/instrumentation"
	"github.com/mailfold/mailfold/internal/mail"
	"github.com/mailfold/mailfold/internal/store"
)

// MailService is the aggregation surface the HTTP handlers expose.
// *mail.Service implements it.
type MailService interface {
	GetMessageDetails(ctx context.Context, userID, messageID string, withAttachments bool) (*mail.Detail, error)
	GetMessages(ctx context.Context, userID string) ([]*mail.Detail, error)
	GetInvoices(ctx context.Context, userID string) ([]mail.Invoice, error)
	GetAttachments(ctx context.Context, userID, messageID string) ([]gmailclient.Attachment, error)
	GetAttachmentDetails(ctx context.Context, userID, messageID, attachmentID string) (*gmailapi.MessagePartBody, error)
}

// OAuth is the Google OAuth surface the auth handlers need.
// *google.Config implements it.
type OAuth interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	UserInfo(ctx context.Context, token *oauth2.Token) (*google.UserInfo, error)
}

// Config holds the dependencies of the HTTP server.
type Config struct {
	Store  *store.Store
	OAuth  OAuth
	Mail   MailService
	Logger *slog.Logger

	// Metrics may be nil when instrumentation is disabled.
	Metrics *instrumentation.Metrics
}

// Server is the HTTP surface: the mail routes, the OAuth flow and the
// health endpoints.
type Server struct {
	store   *store.Store
	oauth   OAuth
	mail    MailService
	logger  *slog.Logger
	metrics *instrumentation.Metrics
	states  *google.StateStore
}

// New creates a Server from its dependencies.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:   cfg.Store,
		oauth:   cfg.OAuth,
		mail:    cfg.Mail,
		logger:  logger,
		metrics: cfg.Metrics,
		states:  google.NewStateStore(),
	}
}

// Handler builds the route table. Mail routes sit behind the
// credential guard; the OAuth flow and the health endpoints do not.
func (s *Server) Handler(health *HealthChecker) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /auth/google", s.handleAuthRedirect)
	mux.HandleFunc("GET /auth/google/callback", s.handleAuthCallback)

	mux.Handle("GET /mail/{userId}/messages", s.requireCredential(s.handleGetMessages))
	mux.Handle("GET /mail/{userId}/invoices", s.requireCredential(s.handleGetInvoices))
	mux.Handle("GET /mail/{userId}/message/{messageId}", s.requireCredential(s.handleGetMessageDetails))
	mux.Handle("GET /mail/{userId}/message/{messageId}/attachments", s.requireCredential(s.handleGetAttachments))
	mux.Handle("GET /mail/{userId}/message/{messageId}/attachment/{attachmentId}", s.requireCredential(s.handleGetAttachmentDetails))
	mux.Handle("GET /mail/{userId}/message/{messageId}/attachment/{attachmentId}/download", s.requireCredential(s.handleDownloadAttachment))

	if health != nil {
		health.RegisterHealthEndpoints(mux)
	}

	return s.withObservability(mux)
}
