package model

import (
	"time"

	"github.com/lib/pq"
)

// Broadcast is the audit record of one bulk send. Attachment payloads are
// never stored, only their names.
type Broadcast struct {
	ID              string         `db:"id" json:"id"`
	Subject         string         `db:"subject" json:"subject"`
	Body            string         `db:"body" json:"body"`
	MediaLinks      pq.StringArray `db:"media_links" json:"mediaLinks"`
	AttachmentNames pq.StringArray `db:"attachment_names" json:"attachmentNames"`
	Recipients      pq.StringArray `db:"recipients" json:"recipients"`
	SentBy          string         `db:"sent_by" json:"sentBy"`
	CreatedAt       time.Time      `db:"created_at" json:"createdAt"`
}

type CreateBroadcastParams struct {
	Subject         string
	Body            string
	MediaLinks      []string
	AttachmentNames []string
	Recipients      []string
	SentBy          string
}

// DispatchResult is the per-recipient outcome of a broadcast send.
type DispatchResult struct {
	Recipient string `json:"to"`
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Code      string `json:"code,omitempty"`
	Error     string `json:"error,omitempty"`
}
