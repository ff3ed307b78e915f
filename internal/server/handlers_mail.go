package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	gmailclient "github.com/mailfold/mailfold/internal/gmail"
	"github.com/mailfold/mailfold/internal/google"
	"github.com/mailfold/mailfold/internal/logging"
)

// downloadFilename is the filename every attachment download is served
// under. The endpoint exists for invoice PDFs; other attachments come
// out under the same name.
const downloadFilename = "facture.pdf"

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", logging.Err(err))
	}
}

// writeError maps service errors onto HTTP statuses: a missing
// credential is the caller's problem, anything else that went over the
// wire is a bad gateway.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadGateway
	if errors.Is(err, google.ErrCredentialNotFound) {
		status = http.StatusUnauthorized
	}

	s.logger.Error("request failed",
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		logging.Err(err))

	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// requireCredential rejects requests for users without a stored
// credential before any remote call is attempted.
func (s *Server) requireCredential(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.PathValue("userId")
		if userID == "" {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "userId is required"})
			return
		}
		if _, ok := s.store.Get(userID); !ok {
			err := fmt.Errorf("%w for user %s", google.ErrCredentialNotFound, userID)
			s.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
			return
		}
		next(w, r)
	})
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")

	details, err := s.mail.GetMessages(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, details)
}

func (s *Server) handleGetInvoices(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")

	invoices, err := s.mail.GetInvoices(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, invoices)
}

func (s *Server) handleGetMessageDetails(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	messageID := r.PathValue("messageId")

	detail, err := s.mail.GetMessageDetails(r.Context(), userID, messageID, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleGetAttachments(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	messageID := r.PathValue("messageId")

	attachments, err := s.mail.GetAttachments(r.Context(), userID, messageID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, attachments)
}

func (s *Server) handleGetAttachmentDetails(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	messageID := r.PathValue("messageId")
	attachmentID := r.PathValue("attachmentId")

	body, err := s.mail.GetAttachmentDetails(r.Context(), userID, messageID, attachmentID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleDownloadAttachment(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	messageID := r.PathValue("messageId")
	attachmentID := r.PathValue("attachmentId")

	body, err := s.mail.GetAttachmentDetails(r.Context(), userID, messageID, attachmentID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	data, err := gmailclient.DecodeBody(body.Data)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("failed to decode attachment data: %w", err))
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", downloadFilename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Error("failed to write attachment body", logging.Err(err))
	}
}
