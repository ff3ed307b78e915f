package gmail

import (
	"testing"

	gmail "google.golang.org/api/gmail/v1"
)

func TestResolve(t *testing.T) {
	r := NewResolver("http://localhost:3000", nil)

	payload := &gmail.MessagePart{
		Parts: []*gmail.MessagePart{
			{
				Filename: "facture.pdf",
				MimeType: "application/pdf",
				Body:     &gmail.MessagePartBody{AttachmentId: "123"},
			},
			{
				// text part, no filename
				Filename: "",
				MimeType: "text/plain",
				Body:     &gmail.MessagePartBody{},
			},
			{
				Filename: "scan.png",
				MimeType: "image/png",
				Body:     &gmail.MessagePartBody{AttachmentId: "456"},
			},
		},
	}

	got := r.Resolve("u1", "m1", payload)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}

	first := got[0]
	if first.AttachmentID != "123" {
		t.Errorf("AttachmentID = %q, want %q", first.AttachmentID, "123")
	}
	if first.Filename != "facture.pdf" {
		t.Errorf("Filename = %q, want %q", first.Filename, "facture.pdf")
	}
	if first.MimeType != "application/pdf" {
		t.Errorf("MimeType = %q, want %q", first.MimeType, "application/pdf")
	}
	wantURL := "http://localhost:3000/mail/u1/message/m1/attachment/123"
	if first.AttachmentURL != wantURL {
		t.Errorf("AttachmentURL = %q, want %q", first.AttachmentURL, wantURL)
	}
	if first.AttachmentDownloadURL != wantURL+"/download" {
		t.Errorf("AttachmentDownloadURL = %q, want %q", first.AttachmentDownloadURL, wantURL+"/download")
	}

	if got[1].AttachmentID != "456" {
		t.Errorf("second AttachmentID = %q, want %q", got[1].AttachmentID, "456")
	}
}

func TestResolveEmptyInputs(t *testing.T) {
	r := NewResolver("http://localhost:3000", nil)

	tests := []struct {
		name    string
		payload *gmail.MessagePart
	}{
		{name: "nil payload", payload: nil},
		{name: "no parts", payload: &gmail.MessagePart{}},
		{name: "only unnamed parts", payload: &gmail.MessagePart{
			Parts: []*gmail.MessagePart{
				{MimeType: "text/plain"},
				{MimeType: "text/html"},
			},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Resolve("u1", "m1", tt.payload)
			if got == nil {
				t.Fatal("Resolve() returned nil, want empty slice")
			}
			if len(got) != 0 {
				t.Errorf("len = %d, want 0", len(got))
			}
		})
	}
}

func TestResolveIgnoresNestedParts(t *testing.T) {
	r := NewResolver("http://localhost:3000", nil)

	payload := &gmail.MessagePart{
		Parts: []*gmail.MessagePart{
			{
				MimeType: "multipart/mixed",
				Parts: []*gmail.MessagePart{
					{
						Filename: "nested.pdf",
						Body:     &gmail.MessagePartBody{AttachmentId: "deep"},
					},
				},
			},
		},
	}

	got := r.Resolve("u1", "m1", payload)
	if len(got) != 0 {
		t.Errorf("len = %d, want 0 (nested parts are not scanned)", len(got))
	}
}

func TestResolveMissingBody(t *testing.T) {
	r := NewResolver("http://localhost:3000", nil)

	payload := &gmail.MessagePart{
		Parts: []*gmail.MessagePart{
			{Filename: "odd.bin", MimeType: "application/octet-stream"},
		},
	}

	got := r.Resolve("u1", "m1", payload)
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].AttachmentID != "" {
		t.Errorf("AttachmentID = %q, want empty", got[0].AttachmentID)
	}
}

func TestResolverTrimsTrailingSlash(t *testing.T) {
	r := NewResolver("http://localhost:3000/", nil)

	payload := &gmail.MessagePart{
		Parts: []*gmail.MessagePart{
			{Filename: "a.pdf", Body: &gmail.MessagePartBody{AttachmentId: "1"}},
		},
	}

	got := r.Resolve("u", "m", payload)
	want := "http://localhost:3000/mail/u/message/m/attachment/1"
	if got[0].AttachmentURL != want {
		t.Errorf("AttachmentURL = %q, want %q", got[0].AttachmentURL, want)
	}
}
