package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	gmail "google.golang.org/api/gmail/v1"

	"github.com/mailfold/mailfold/internal/instrumentation"
	"github.com/mailfold/mailfold/internal/logging"
)

const (
	// ListPageSize is the fixed page size for message listing calls.
	ListPageSize = 100

	// remoteUser is the Gmail API user segment; stored credentials
	// already scope every call to one mailbox.
	remoteUser = "me"
)

// ServiceFactory yields a Gmail service authorized as the given user.
// Each operation requests a fresh service so credential rotation in the
// store takes effect on the next call.
type ServiceFactory func(ctx context.Context, userID string) (*gmail.Service, error)

// Page is a single page of a message listing.
type Page struct {
	Messages      []*gmail.Message
	NextPageToken string
}

// Client wraps the Gmail Users service for the operations the facade
// needs: listing message ids, fetching full messages and fetching
// attachment bodies.
type Client struct {
	services ServiceFactory
	logger   *slog.Logger
	metrics  *instrumentation.Metrics
}

// NewClient creates a Client. The metrics recorder may be nil.
func NewClient(services ServiceFactory, logger *slog.Logger, metrics *instrumentation.Metrics) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		services: services,
		logger:   logger,
		metrics:  metrics,
	}
}

// ListPage lists a single page of message ids matching the query.
// An empty page is a valid result; exhaustion is signaled by an empty
// NextPageToken.
func (c *Client) ListPage(ctx context.Context, userID, query, pageToken string) (*Page, error) {
	svc, err := c.services(ctx, userID)
	if err != nil {
		return nil, err
	}

	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceGmail, "list",
		attribute.String(instrumentation.SpanAttrQuery, query))
	defer span.End()

	start := time.Now()
	req := svc.Users.Messages.List(remoteUser).Q(query).MaxResults(ListPageSize)
	if pageToken != "" {
		req = req.PageToken(pageToken)
	}
	res, err := req.Context(ctx).Do()
	c.record(ctx, "list", userID, start, err, span)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	return &Page{
		Messages:      res.Messages,
		NextPageToken: res.NextPageToken,
	}, nil
}

// ListAll walks the listing cursor until exhaustion, concatenating
// pages in arrival order. There is no page cap: callers needing bounds
// must constrain the query. The loop terminates exactly when a page
// reports no next token, even if that page is empty.
func (c *Client) ListAll(ctx context.Context, userID, query string) ([]*gmail.Message, error) {
	c.logger.Debug("listing all messages",
		logging.UserHash(userID),
		slog.String("query", query))

	var all []*gmail.Message
	pageToken := ""
	for {
		page, err := c.ListPage(ctx, userID, query, pageToken)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Messages...)
		if page.NextPageToken == "" {
			return all, nil
		}
		pageToken = page.NextPageToken
	}
}

// GetMessage retrieves a full message by id.
func (c *Client) GetMessage(ctx context.Context, userID, messageID string) (*gmail.Message, error) {
	svc, err := c.services(ctx, userID)
	if err != nil {
		return nil, err
	}

	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceGmail, "get",
		instrumentation.NewSpanAttributeBuilder().WithMessage(messageID).Build()...)
	defer span.End()

	start := time.Now()
	msg, err := svc.Users.Messages.Get(remoteUser, messageID).Format("full").Context(ctx).Do()
	c.record(ctx, "get", userID, start, err, span)
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", messageID, err)
	}
	return msg, nil
}

// GetAttachment retrieves an attachment body by message and attachment id.
func (c *Client) GetAttachment(ctx context.Context, userID, messageID, attachmentID string) (*gmail.MessagePartBody, error) {
	if messageID == "" {
		return nil, fmt.Errorf("messageID is required")
	}
	if attachmentID == "" {
		return nil, fmt.Errorf("attachmentID is required")
	}

	svc, err := c.services(ctx, userID)
	if err != nil {
		return nil, err
	}

	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceGmail, "get_attachment",
		instrumentation.NewSpanAttributeBuilder().WithMessage(messageID).WithAttachment(attachmentID).Build()...)
	defer span.End()

	start := time.Now()
	body, err := svc.Users.Messages.Attachments.Get(remoteUser, messageID, attachmentID).Context(ctx).Do()
	c.record(ctx, "get_attachment", userID, start, err, span)
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment %s: %w", attachmentID, err)
	}
	return body, nil
}

func (c *Client) record(ctx context.Context, operation, userID string, start time.Time, err error, span trace.Span) {
	if err != nil {
		instrumentation.SetSpanError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}

	if c.metrics == nil {
		return
	}
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	c.metrics.RecordGoogleAPIOperationForUser(ctx, instrumentation.ServiceGmail, operation, status, userID, time.Since(start))
}

// DecodeBody decodes attachment or body data as returned by the Gmail
// API. The API uses RFC 4648 base64url encoding; standard base64 is
// tried as a fallback.
func DecodeBody(data string) ([]byte, error) {
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err == nil {
		return decoded, nil
	}
	decoded, err = base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode body data: %w", err)
	}
	return decoded, nil
}
