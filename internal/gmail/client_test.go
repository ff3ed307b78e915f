package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// newTestFactory returns a ServiceFactory whose services talk to the
// given HTTP handler instead of the real Gmail endpoint.
func newTestFactory(t *testing.T, handler http.Handler) (ServiceFactory, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	factory := func(ctx context.Context, userID string) (*gmail.Service, error) {
		return gmail.NewService(ctx,
			option.WithEndpoint(srv.URL),
			option.WithoutAuthentication())
	}
	return factory, srv
}

func TestListPageQueryParameters(t *testing.T) {
	var gotQuery, gotMaxResults, gotPageToken string
	factory, _ := newTestFactory(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotQuery = q.Get("q")
		gotMaxResults = q.Get("maxResults")
		gotPageToken = q.Get("pageToken")
		json.NewEncoder(w).Encode(&gmail.ListMessagesResponse{})
	}))

	c := NewClient(factory, nil, nil)
	if _, err := c.ListPage(context.Background(), "u1", "in:inbox", "tok-1"); err != nil {
		t.Fatalf("ListPage() error = %v", err)
	}

	if gotQuery != "in:inbox" {
		t.Errorf("query = %q, want %q", gotQuery, "in:inbox")
	}
	if gotMaxResults != "100" {
		t.Errorf("maxResults = %q, want %q", gotMaxResults, "100")
	}
	if gotPageToken != "tok-1" {
		t.Errorf("pageToken = %q, want %q", gotPageToken, "tok-1")
	}
}

func TestListPageOmitsEmptyPageToken(t *testing.T) {
	var hasToken bool
	factory, _ := newTestFactory(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hasToken = r.URL.Query().Has("pageToken")
		json.NewEncoder(w).Encode(&gmail.ListMessagesResponse{})
	}))

	c := NewClient(factory, nil, nil)
	if _, err := c.ListPage(context.Background(), "u1", "in:inbox", ""); err != nil {
		t.Fatalf("ListPage() error = %v", err)
	}
	if hasToken {
		t.Error("first page request carried a pageToken parameter")
	}
}

func TestListAllWalksCursor(t *testing.T) {
	calls := 0
	factory, _ := newTestFactory(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		res := &gmail.ListMessagesResponse{}
		switch r.URL.Query().Get("pageToken") {
		case "":
			res.Messages = []*gmail.Message{{Id: "m1"}, {Id: "m2"}}
			res.NextPageToken = "next-token"
		case "next-token":
			res.Messages = []*gmail.Message{{Id: "m3"}, {Id: "m4"}}
		default:
			t.Errorf("unexpected pageToken %q", r.URL.Query().Get("pageToken"))
		}
		json.NewEncoder(w).Encode(res)
	}))

	c := NewClient(factory, nil, nil)
	msgs, err := c.ListAll(context.Background(), "u1", "in:inbox")
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}

	if calls != 2 {
		t.Errorf("list calls = %d, want 2", calls)
	}
	if len(msgs) != 4 {
		t.Fatalf("len(msgs) = %d, want 4", len(msgs))
	}
	for i, want := range []string{"m1", "m2", "m3", "m4"} {
		if msgs[i].Id != want {
			t.Errorf("msgs[%d].Id = %q, want %q", i, msgs[i].Id, want)
		}
	}
}

func TestListAllEmptyResult(t *testing.T) {
	factory, _ := newTestFactory(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(&gmail.ListMessagesResponse{})
	}))

	c := NewClient(factory, nil, nil)
	msgs, err := c.ListAll(context.Background(), "u1", "in:inbox")
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("len(msgs) = %d, want 0", len(msgs))
	}
}

func TestListAllPropagatesFactoryError(t *testing.T) {
	factory := func(ctx context.Context, userID string) (*gmail.Service, error) {
		return nil, fmt.Errorf("credentials not found for user %s", userID)
	}

	c := NewClient(factory, nil, nil)
	_, err := c.ListAll(context.Background(), "ghost", "in:inbox")
	if err == nil {
		t.Fatal("ListAll() expected error, got nil")
	}
	if !strings.Contains(err.Error(), "ghost") {
		t.Errorf("error %q does not name the user", err)
	}
}

func TestGetMessageRequestsFullFormat(t *testing.T) {
	var gotFormat, gotPath string
	factory, _ := newTestFactory(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFormat = r.URL.Query().Get("format")
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(&gmail.Message{Id: "m1", Snippet: "hello"})
	}))

	c := NewClient(factory, nil, nil)
	msg, err := c.GetMessage(context.Background(), "u1", "m1")
	if err != nil {
		t.Fatalf("GetMessage() error = %v", err)
	}

	if gotFormat != "full" {
		t.Errorf("format = %q, want %q", gotFormat, "full")
	}
	if !strings.HasSuffix(gotPath, "/messages/m1") {
		t.Errorf("path = %q, want suffix /messages/m1", gotPath)
	}
	if msg.Snippet != "hello" {
		t.Errorf("Snippet = %q, want %q", msg.Snippet, "hello")
	}
}

func TestGetAttachmentValidation(t *testing.T) {
	factory := func(ctx context.Context, userID string) (*gmail.Service, error) {
		t.Fatal("factory should not be called for invalid input")
		return nil, nil
	}
	c := NewClient(factory, nil, nil)

	if _, err := c.GetAttachment(context.Background(), "u1", "", "a1"); err == nil {
		t.Error("GetAttachment() with empty messageID: expected error")
	}
	if _, err := c.GetAttachment(context.Background(), "u1", "m1", ""); err == nil {
		t.Error("GetAttachment() with empty attachmentID: expected error")
	}
}

func TestGetAttachment(t *testing.T) {
	data := base64.URLEncoding.EncodeToString([]byte("pdf bytes"))
	factory, _ := newTestFactory(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages/m1/attachments/a1") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(&gmail.MessagePartBody{Data: data, Size: 9})
	}))

	c := NewClient(factory, nil, nil)
	body, err := c.GetAttachment(context.Background(), "u1", "m1", "a1")
	if err != nil {
		t.Fatalf("GetAttachment() error = %v", err)
	}

	decoded, err := DecodeBody(body.Data)
	if err != nil {
		t.Fatalf("DecodeBody() error = %v", err)
	}
	if string(decoded) != "pdf bytes" {
		t.Errorf("decoded = %q, want %q", decoded, "pdf bytes")
	}
}

func TestDecodeBody(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    string
		wantErr bool
	}{
		{
			name: "url encoding",
			data: base64.URLEncoding.EncodeToString([]byte{0xfb, 0xff, 0x01}),
			want: string([]byte{0xfb, 0xff, 0x01}),
		},
		{
			name: "standard encoding fallback",
			data: base64.StdEncoding.EncodeToString([]byte{0xfb, 0xff, 0x01}),
			want: string([]byte{0xfb, 0xff, 0x01}),
		},
		{
			name: "empty",
			data: "",
			want: "",
		},
		{
			name:    "invalid",
			data:    "not base64 at all!!!",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeBody(tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeBody() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && string(got) != tt.want {
				t.Errorf("DecodeBody() = %q, want %q", got, tt.want)
			}
		})
	}
}
