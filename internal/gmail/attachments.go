package gmail

import (
	"fmt"
	"log/slog"
	"strings"

	gmail "google.golang.org/api/gmail/v1"

	"github.com/mailfold/mailfold/internal/logging"
)

// Attachment describes one attachment of a message together with the
// facade URLs a client can use to retrieve it.
//
// The attachementDownloadUrl field name is misspelled on the wire;
// existing consumers depend on it.
type Attachment struct {
	AttachmentID          string `json:"attachmentId"`
	Filename              string `json:"filename"`
	MimeType              string `json:"mimeType"`
	AttachmentURL         string `json:"attachmentUrl"`
	AttachmentDownloadURL string `json:"attachementDownloadUrl"`
}

// Resolver derives attachment descriptors from message payloads.
// It is a pure transform: aside from a debug log it performs no I/O.
type Resolver struct {
	baseURL string
	logger  *slog.Logger
}

// NewResolver creates a Resolver. baseURL is read once and used for
// every synthesized URL.
func NewResolver(baseURL string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// Resolve returns descriptors for the attachment-bearing parts of a
// message payload, in source order. A nil payload or a payload without
// parts yields an empty slice, not an error. Parts without a filename
// are structural or text parts and are skipped.
func (r *Resolver) Resolve(userID, messageID string, payload *gmail.MessagePart) []Attachment {
	r.logger.Debug("looking up attachments",
		logging.UserHash(userID),
		slog.String("message_id", messageID))

	attachments := []Attachment{}
	if payload == nil {
		return attachments
	}

	for _, part := range payload.Parts {
		if part == nil || part.Filename == "" {
			continue
		}

		var attachmentID string
		if part.Body != nil {
			attachmentID = part.Body.AttachmentId
		}

		url := fmt.Sprintf("%s/mail/%s/message/%s/attachment/%s", r.baseURL, userID, messageID, attachmentID)
		attachments = append(attachments, Attachment{
			AttachmentID:          attachmentID,
			Filename:              part.Filename,
			MimeType:              part.MimeType,
			AttachmentURL:         url,
			AttachmentDownloadURL: url + "/download",
		})
	}

	return attachments
}
