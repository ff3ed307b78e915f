package mail

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	gmailapi "google.golang.org/api/gmail/v1"

	gmailclient "github.com/mailfold/mailfold/internal/gmail"
	"github.com/mailfold/mailfold/internal/instrumentation"
	"github.com/mailfold/mailfold/internal/logging"
)

const (
	// InvoiceQuery is the fixed search applied by GetInvoices.
	InvoiceQuery = "has:attachment filename:pdf facture OR invoice OR receipt"

	// DefaultFetchConcurrency bounds the parallel detail fetches a
	// single aggregate request may issue.
	DefaultFetchConcurrency = 10
)

// Gmail is the remote surface the service needs. *gmailclient.Client
// implements it.
type Gmail interface {
	ListPage(ctx context.Context, userID, query, pageToken string) (*gmailclient.Page, error)
	ListAll(ctx context.Context, userID, query string) ([]*gmailapi.Message, error)
	GetMessage(ctx context.Context, userID, messageID string) (*gmailapi.Message, error)
	GetAttachment(ctx context.Context, userID, messageID, attachmentID string) (*gmailapi.MessagePartBody, error)
}

// AttachmentResolver derives attachment descriptors from a message
// payload. *gmailclient.Resolver implements it.
type AttachmentResolver interface {
	Resolve(userID, messageID string, payload *gmailapi.MessagePart) []gmailclient.Attachment
}

// Service aggregates Gmail calls into the records the HTTP surface
// serves: message details, attachment descriptors and invoice views.
type Service struct {
	gmail      Gmail
	resolver   AttachmentResolver
	baseURL    string
	fetchLimit int
	logger     *slog.Logger
	metrics    *instrumentation.Metrics
}

// NewService creates a Service. fetchLimit caps concurrent detail
// fetches per aggregate call; zero or negative means unbounded.
// The metrics recorder may be nil.
func NewService(g Gmail, resolver AttachmentResolver, baseURL string, fetchLimit int, logger *slog.Logger, metrics *instrumentation.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		gmail:      g,
		resolver:   resolver,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		fetchLimit: fetchLimit,
		logger:     logger,
		metrics:    metrics,
	}
}

// GetMessageDetails fetches one full message. When withAttachments is
// set the payload is resolved into attachment descriptors; otherwise
// Attachments is an empty slice.
func (s *Service) GetMessageDetails(ctx context.Context, userID, messageID string, withAttachments bool) (*Detail, error) {
	s.logger.Debug("getting message details",
		logging.UserHash(userID),
		slog.String("message_id", messageID))

	msg, err := s.gmail.GetMessage(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}

	attachments := []gmailclient.Attachment{}
	if withAttachments {
		attachments = s.resolver.Resolve(userID, messageID, msg.Payload)
	}

	return &Detail{
		ID:           msg.Id,
		ThreadID:     msg.ThreadId,
		LabelIDs:     msg.LabelIds,
		Snippet:      msg.Snippet,
		Payload:      msg.Payload,
		SizeEstimate: msg.SizeEstimate,
		HistoryID:    msg.HistoryId,
		InternalDate: msg.InternalDate,
		Attachments:  attachments,
	}, nil
}

// GetDetailedMessages fetches details for every summary concurrently
// and returns them in the order of the input, regardless of completion
// order. A single failed fetch fails the whole call. Each detail is
// merged over its originating summary: detail fields win, the summary
// fills gaps the detail left empty.
func (s *Service) GetDetailedMessages(ctx context.Context, userID string, summaries []*gmailapi.Message, withAttachments bool) ([]*Detail, error) {
	ctx, span := instrumentation.StartSpan(ctx, "mail.get_detailed_messages",
		instrumentation.NewSpanAttributeBuilder().
			WithUserHash(logging.AnonymizeEmail(userID)).
			WithBatchSize(len(summaries)).
			Build()...)
	defer span.End()

	s.logger.Debug("getting detailed messages",
		logging.UserHash(userID),
		slog.Int("count", len(summaries)),
		slog.String("trace", instrumentation.SpanContextString(ctx)))

	if s.metrics != nil {
		s.metrics.RecordDetailFanout(ctx, len(summaries))
	}

	details := make([]*Detail, len(summaries))

	g, ctx := errgroup.WithContext(ctx)
	if s.fetchLimit > 0 {
		g.SetLimit(s.fetchLimit)
	}
	for i, summary := range summaries {
		g.Go(func() error {
			detail, err := s.GetMessageDetails(ctx, userID, summary.Id, withAttachments)
			if err != nil {
				return err
			}
			if detail.ThreadID == "" {
				detail.ThreadID = summary.ThreadId
			}
			details[i] = detail
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, err
	}

	instrumentation.SetSpanSuccess(span)
	return details, nil
}

// GetMessages returns details for the first page of the mailbox.
func (s *Service) GetMessages(ctx context.Context, userID string) ([]*Detail, error) {
	s.logger.Debug("getting messages", logging.UserHash(userID))

	page, err := s.gmail.ListPage(ctx, userID, "", "")
	if err != nil {
		return nil, err
	}
	return s.GetDetailedMessages(ctx, userID, page.Messages, false)
}

// GetAllMessages walks the full listing cursor for the query and
// returns details for every match.
func (s *Service) GetAllMessages(ctx context.Context, userID, query string) ([]*Detail, error) {
	s.logger.Debug("getting all messages",
		logging.UserHash(userID),
		slog.String("query", query))

	summaries, err := s.gmail.ListAll(ctx, userID, query)
	if err != nil {
		return nil, err
	}
	return s.GetDetailedMessages(ctx, userID, summaries, false)
}

// GetAttachments returns the attachment descriptors of one message.
func (s *Service) GetAttachments(ctx context.Context, userID, messageID string) ([]gmailclient.Attachment, error) {
	s.logger.Debug("getting attachments",
		logging.UserHash(userID),
		slog.String("message_id", messageID))

	msg, err := s.gmail.GetMessage(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	return s.resolver.Resolve(userID, messageID, msg.Payload), nil
}

// GetAttachmentDetails returns the body of one attachment.
func (s *Service) GetAttachmentDetails(ctx context.Context, userID, messageID, attachmentID string) (*gmailapi.MessagePartBody, error) {
	s.logger.Debug("getting attachment details",
		logging.UserHash(userID),
		slog.String("message_id", messageID),
		slog.String("attachment_id", attachmentID))

	return s.gmail.GetAttachment(ctx, userID, messageID, attachmentID)
}

// GetInvoices lists every message matching the invoice query, fetches
// details with attachments and projects each into an Invoice view.
// Results keep the remote listing order; there is no dedup or cap.
func (s *Service) GetInvoices(ctx context.Context, userID string) ([]Invoice, error) {
	ctx, span := instrumentation.StartSpan(ctx, "mail.get_invoices",
		instrumentation.NewSpanAttributeBuilder().
			WithUserHash(logging.AnonymizeEmail(userID)).
			Build()...)
	defer span.End()

	s.logger.Debug("getting invoices", logging.UserHash(userID))

	summaries, err := s.gmail.ListAll(ctx, userID, InvoiceQuery)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, err
	}
	instrumentation.AddSpanEvent(span, "listing complete",
		attribute.Int(instrumentation.SpanAttrBatchSize, len(summaries)))

	details, err := s.GetDetailedMessages(ctx, userID, summaries, true)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, err
	}
	instrumentation.SetSpanSuccess(span)

	invoices := make([]Invoice, 0, len(details))
	for _, d := range details {
		invoices = append(invoices, Invoice{
			ID:          d.ID,
			MessageURL:  fmt.Sprintf("%s/mail/%s/message/%s", s.baseURL, userID, d.ID),
			Subject:     subjectHeader(d.Payload),
			Snippet:     d.Snippet,
			Attachments: d.Attachments,
		})
	}
	return invoices, nil
}

// subjectHeader returns the value of the first header named exactly
// "Subject". The match is case-sensitive on purpose: senders emitting
// differently-cased header names are not recognized.
func subjectHeader(payload *gmailapi.MessagePart) string {
	if payload == nil {
		return ""
	}
	for _, h := range payload.Headers {
		if h != nil && h.Name == "Subject" {
			return h.Value
		}
	}
	return ""
}
