package mail

import (
	gmailapi "google.golang.org/api/gmail/v1"

	gmailclient "github.com/mailfold/mailfold/internal/gmail"
)

// Detail is a full message record. Attachments is populated only when
// the caller asked for attachment resolution; otherwise it is empty,
// never nil.
type Detail struct {
	ID           string                   `json:"id"`
	ThreadID     string                   `json:"threadId,omitempty"`
	LabelIDs     []string                 `json:"labelIds,omitempty"`
	Snippet      string                   `json:"snippet"`
	Payload      *gmailapi.MessagePart    `json:"payload,omitempty"`
	SizeEstimate int64                    `json:"sizeEstimate,omitempty"`
	HistoryID    uint64                   `json:"historyId,omitempty"`
	InternalDate int64                    `json:"internalDate,omitempty"`
	Attachments  []gmailclient.Attachment `json:"attachments"`
}

// Invoice is a reduced projection of an attachment-bearing message.
// Subject is omitted when the message carries no Subject header.
type Invoice struct {
	ID          string                   `json:"id"`
	MessageURL  string                   `json:"messageUrl"`
	Subject     string                   `json:"subject,omitempty"`
	Snippet     string                   `json:"snippet"`
	Attachments []gmailclient.Attachment `json:"attachments"`
}
