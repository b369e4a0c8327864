package model

import (
	"net/textproto"
	"time"
)

// MessageSummary is the metadata we keep for a single message. It is produced
// by the detail fetcher and only consumed by the aggregator.
type MessageSummary struct {
	ID           string
	Labels       []string
	Headers      map[string]string // keyed by canonical MIME header name
	InternalDate time.Time
}

// Header returns the value of the named header, matching case-insensitively.
func (m MessageSummary) Header(name string) string {
	if m.Headers == nil {
		return ""
	}
	return m.Headers[textproto.CanonicalMIMEHeaderKey(name)]
}

// HasLabel reports whether the message carries the given label id.
func (m MessageSummary) HasLabel(id string) bool {
	for _, l := range m.Labels {
		if l == id {
			return true
		}
	}
	return false
}

// SenderRecord aggregates messages by lowercased sender email.
type SenderRecord struct {
	EmailAddress    string     `json:"emailAddress"`
	DisplayName     string     `json:"displayName,omitempty"`
	TotalCount      int        `json:"totalCount"`
	UnreadCount     int        `json:"unreadCount"`
	MessageIDs      []string   `json:"messageIds"`
	UnsubscribeLink string     `json:"unsubscribeLink,omitempty"`
	LastMessageTime *time.Time `json:"lastMessageTime,omitempty"`
	IsBulkMail      bool       `json:"isBulkMail"`
}

// Stats are derived from the final sender list of an AnalysisResult.
type Stats struct {
	TotalMessages   int `json:"totalMessages"`
	UnreadMessages  int `json:"unreadMessages"`
	TotalSenders    int `json:"totalSenders"`
	BulkSenders     int `json:"bulkSenders"`
	SkippedMessages int `json:"skippedMessages"` // ids whose metadata could not be fetched
}

// AnalysisResult is the snapshot produced by one sync pass.
type AnalysisResult struct {
	Senders     []SenderRecord `json:"senders"`
	Stats       Stats          `json:"stats"`
	GeneratedAt time.Time      `json:"generatedAt"`
}

// Sender returns the record for email, if present.
func (r AnalysisResult) Sender(email string) (SenderRecord, bool) {
	for _, s := range r.Senders {
		if s.EmailAddress == email {
			return s, true
		}
	}
	return SenderRecord{}, false
}

// Progress is sent to callers while long-running operations advance.
type Progress struct {
	Stage   string
	Percent int
}

// ProgressFunc receives progress notifications. It must not block for long.
type ProgressFunc func(Progress)
