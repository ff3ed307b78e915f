package mail

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	gmailapi "google.golang.org/api/gmail/v1"

	gmailclient "github.com/mailfold/mailfold/internal/gmail"
)

// fakeGmail serves canned messages and records the calls it saw.
type fakeGmail struct {
	mu        sync.Mutex
	messages  map[string]*gmailapi.Message
	listPages []*gmailclient.Page

	listQueries []string
	getCalls    []string
	getErr      map[string]error
	getDelay    map[string]time.Duration

	inFlight    int32
	maxInFlight int32
}

func newFakeGmail() *fakeGmail {
	return &fakeGmail{
		messages: map[string]*gmailapi.Message{},
		getErr:   map[string]error{},
		getDelay: map[string]time.Duration{},
	}
}

func (f *fakeGmail) ListPage(ctx context.Context, userID, query, pageToken string) (*gmailclient.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listQueries = append(f.listQueries, query)
	if len(f.listPages) == 0 {
		return &gmailclient.Page{}, nil
	}
	page := f.listPages[0]
	f.listPages = f.listPages[1:]
	return page, nil
}

func (f *fakeGmail) ListAll(ctx context.Context, userID, query string) ([]*gmailapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listQueries = append(f.listQueries, query)
	var all []*gmailapi.Message
	for _, page := range f.listPages {
		all = append(all, page.Messages...)
	}
	return all, nil
}

func (f *fakeGmail) GetMessage(ctx context.Context, userID, messageID string) (*gmailapi.Message, error) {
	cur := atomic.AddInt32(&f.inFlight, 1)
	for {
		max := atomic.LoadInt32(&f.maxInFlight)
		if cur <= max || atomic.CompareAndSwapInt32(&f.maxInFlight, max, cur) {
			break
		}
	}
	defer atomic.AddInt32(&f.inFlight, -1)

	f.mu.Lock()
	f.getCalls = append(f.getCalls, messageID)
	err := f.getErr[messageID]
	delay := f.getDelay[messageID]
	msg := f.messages[messageID]
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, fmt.Errorf("no such message %s", messageID)
	}
	return msg, nil
}

func (f *fakeGmail) GetAttachment(ctx context.Context, userID, messageID, attachmentID string) (*gmailapi.MessagePartBody, error) {
	return &gmailapi.MessagePartBody{Data: "ZGF0YQ==", Size: 4}, nil
}

func newTestService(g Gmail, fetchLimit int) *Service {
	resolver := gmailclient.NewResolver("http://localhost:3000", nil)
	return NewService(g, resolver, "http://localhost:3000", fetchLimit, nil, nil)
}

func messageWithAttachment(id, subject, filename, attachmentID string) *gmailapi.Message {
	return &gmailapi.Message{
		Id:       id,
		ThreadId: "t-" + id,
		Snippet:  "snippet " + id,
		Payload: &gmailapi.MessagePart{
			Headers: []*gmailapi.MessagePartHeader{
				{Name: "From", Value: "billing@example.com"},
				{Name: "Subject", Value: subject},
			},
			Parts: []*gmailapi.MessagePart{
				{
					Filename: filename,
					MimeType: "application/pdf",
					Body:     &gmailapi.MessagePartBody{AttachmentId: attachmentID},
				},
			},
		},
	}
}

func TestGetMessageDetails(t *testing.T) {
	fake := newFakeGmail()
	fake.messages["m1"] = messageWithAttachment("m1", "Invoice #42", "facture.pdf", "a1")
	svc := newTestService(fake, 0)

	detail, err := svc.GetMessageDetails(context.Background(), "u1", "m1", false)
	require.NoError(t, err)
	assert.Equal(t, "m1", detail.ID)
	assert.Equal(t, "t-m1", detail.ThreadID)
	require.NotNil(t, detail.Attachments)
	assert.Empty(t, detail.Attachments, "attachments stay empty unless requested")

	detail, err = svc.GetMessageDetails(context.Background(), "u1", "m1", true)
	require.NoError(t, err)
	require.Len(t, detail.Attachments, 1)
	assert.Equal(t, "a1", detail.Attachments[0].AttachmentID)
	assert.Equal(t, "facture.pdf", detail.Attachments[0].Filename)
}

func TestGetDetailedMessagesPreservesOrder(t *testing.T) {
	fake := newFakeGmail()
	summaries := make([]*gmailapi.Message, 0, 5)
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("m%d", i)
		fake.messages[id] = &gmailapi.Message{Id: id, Snippet: "s" + id}
		// earlier summaries finish last
		fake.getDelay[id] = time.Duration(5-i) * 10 * time.Millisecond
		summaries = append(summaries, &gmailapi.Message{Id: id})
	}
	svc := newTestService(fake, 0)

	details, err := svc.GetDetailedMessages(context.Background(), "u1", summaries, false)
	require.NoError(t, err)
	require.Len(t, details, 5)
	for i, d := range details {
		assert.Equal(t, fmt.Sprintf("m%d", i), d.ID)
	}
}

func TestGetDetailedMessagesAllOrNothing(t *testing.T) {
	fake := newFakeGmail()
	fake.messages["m1"] = &gmailapi.Message{Id: "m1"}
	fake.messages["m3"] = &gmailapi.Message{Id: "m3"}
	fake.getErr["m2"] = errors.New("remote call failed")
	svc := newTestService(fake, 0)

	summaries := []*gmailapi.Message{{Id: "m1"}, {Id: "m2"}, {Id: "m3"}}
	details, err := svc.GetDetailedMessages(context.Background(), "u1", summaries, false)
	require.Error(t, err)
	assert.Nil(t, details, "a single failure yields no partial result")
}

func TestGetDetailedMessagesRespectsFetchLimit(t *testing.T) {
	fake := newFakeGmail()
	var summaries []*gmailapi.Message
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("m%d", i)
		fake.messages[id] = &gmailapi.Message{Id: id}
		fake.getDelay[id] = 5 * time.Millisecond
		summaries = append(summaries, &gmailapi.Message{Id: id})
	}
	svc := newTestService(fake, 3)

	_, err := svc.GetDetailedMessages(context.Background(), "u1", summaries, false)
	require.NoError(t, err)
	assert.LessOrEqual(t, fake.maxInFlight, int32(3))
}

func TestGetDetailedMessagesMergesSummaryThreadID(t *testing.T) {
	fake := newFakeGmail()
	fake.messages["m1"] = &gmailapi.Message{Id: "m1"} // detail carries no thread id
	svc := newTestService(fake, 0)

	details, err := svc.GetDetailedMessages(context.Background(), "u1",
		[]*gmailapi.Message{{Id: "m1", ThreadId: "t-from-summary"}}, false)
	require.NoError(t, err)
	assert.Equal(t, "t-from-summary", details[0].ThreadID)
}

func TestGetMessagesSinglePage(t *testing.T) {
	fake := newFakeGmail()
	fake.messages["m1"] = &gmailapi.Message{Id: "m1"}
	fake.messages["m2"] = &gmailapi.Message{Id: "m2"}
	fake.listPages = []*gmailclient.Page{
		{
			Messages:      []*gmailapi.Message{{Id: "m1"}, {Id: "m2"}},
			NextPageToken: "more",
		},
		{
			Messages: []*gmailapi.Message{{Id: "m3"}},
		},
	}
	svc := newTestService(fake, 0)

	details, err := svc.GetMessages(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, details, 2, "only the first page is fetched")
}

func TestGetInvoices(t *testing.T) {
	fake := newFakeGmail()
	fake.messages["m1"] = messageWithAttachment("m1", "Facture mars", "facture.pdf", "a1")
	fake.listPages = []*gmailclient.Page{
		{Messages: []*gmailapi.Message{{Id: "m1"}}},
	}
	svc := newTestService(fake, 0)

	invoices, err := svc.GetInvoices(context.Background(), "u1")
	require.NoError(t, err)

	require.Len(t, fake.listQueries, 1)
	assert.Equal(t, "has:attachment filename:pdf facture OR invoice OR receipt", fake.listQueries[0])

	require.Len(t, invoices, 1)
	inv := invoices[0]
	assert.Equal(t, "m1", inv.ID)
	assert.Equal(t, "http://localhost:3000/mail/u1/message/m1", inv.MessageURL)
	assert.Equal(t, "Facture mars", inv.Subject)
	assert.Equal(t, "snippet m1", inv.Snippet)
	require.Len(t, inv.Attachments, 1)
	assert.Equal(t, "a1", inv.Attachments[0].AttachmentID)
}

func TestGetInvoicesSubjectExactCase(t *testing.T) {
	fake := newFakeGmail()
	msg := &gmailapi.Message{
		Id:      "m1",
		Snippet: "s",
		Payload: &gmailapi.MessagePart{
			Headers: []*gmailapi.MessagePartHeader{
				{Name: "subject", Value: "lowercased"},
				{Name: "SUBJECT", Value: "shouting"},
			},
		},
	}
	fake.messages["m1"] = msg
	fake.listPages = []*gmailclient.Page{
		{Messages: []*gmailapi.Message{{Id: "m1"}}},
	}
	svc := newTestService(fake, 0)

	invoices, err := svc.GetInvoices(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Empty(t, invoices[0].Subject, "only the exact header name Subject counts")
}

func TestGetInvoicesRecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	fake := newFakeGmail()
	fake.messages["m1"] = messageWithAttachment("m1", "Facture mars", "facture.pdf", "a1")
	fake.listPages = []*gmailclient.Page{
		{Messages: []*gmailapi.Message{{Id: "m1"}}},
	}
	svc := newTestService(fake, 0)

	_, err := svc.GetInvoices(context.Background(), "u1")
	require.NoError(t, err)

	spans := make(map[string]sdktrace.ReadOnlySpan)
	for _, s := range recorder.Ended() {
		spans[s.Name()] = s
	}
	require.Contains(t, spans, "mail.get_invoices")
	require.Contains(t, spans, "mail.get_detailed_messages")

	fanout := spans["mail.get_detailed_messages"]
	assert.Equal(t, codes.Ok, fanout.Status().Code)
	sawBatchSize := false
	for _, attr := range fanout.Attributes() {
		if string(attr.Key) == "mail.batch_size" {
			sawBatchSize = true
			assert.Equal(t, int64(1), attr.Value.AsInt64())
		}
	}
	assert.True(t, sawBatchSize, "fan-out span carries the batch size")
}

func TestGetDetailedMessagesSpanRecordsError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	fake := newFakeGmail()
	fake.getErr["m1"] = errors.New("remote call failed")
	svc := newTestService(fake, 0)

	_, err := svc.GetDetailedMessages(context.Background(), "u1",
		[]*gmailapi.Message{{Id: "m1"}}, false)
	require.Error(t, err)

	ended := recorder.Ended()
	require.NotEmpty(t, ended)
	assert.Equal(t, codes.Error, ended[len(ended)-1].Status().Code)
}

func TestGetAttachments(t *testing.T) {
	fake := newFakeGmail()
	fake.messages["m1"] = messageWithAttachment("m1", "x", "report.pdf", "a9")
	svc := newTestService(fake, 0)

	attachments, err := svc.GetAttachments(context.Background(), "u1", "m1")
	require.NoError(t, err)
	require.Len(t, attachments, 1)
	assert.Equal(t, "a9", attachments[0].AttachmentID)
	assert.Equal(t, "http://localhost:3000/mail/u1/message/m1/attachment/a9", attachments[0].AttachmentURL)
	assert.Equal(t, "http://localhost:3000/mail/u1/message/m1/attachment/a9/download", attachments[0].AttachmentDownloadURL)
}

func TestGetAttachmentDetails(t *testing.T) {
	fake := newFakeGmail()
	svc := newTestService(fake, 0)

	body, err := svc.GetAttachmentDetails(context.Background(), "u1", "m1", "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), body.Size)
}
