package notify

import "time"

// Attachment describes one message attachment. Data holds the provider's
// base64url-encoded bytes; Data and Size stay empty when the attachment
// fetch failed, the message is still delivered without them.
type Attachment struct {
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Data     string `json:"data,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Message is a provider message normalized for delivery.
type Message struct {
	ID          string       `json:"id"`
	ThreadID    string       `json:"threadId"`
	SenderName  string       `json:"senderName"`
	SenderEmail string       `json:"senderEmail"`
	ReplyTo     string       `json:"replyTo,omitempty"`
	Snippet     string       `json:"snippet"`
	Subject     string       `json:"subject"`
	HTMLBody    string       `json:"htmlBody"`
	TextBody    string       `json:"textBody"`
	Timestamp   time.Time    `json:"timestamp"`
	Read        bool         `json:"read"`
	Labels      []string     `json:"labels"`
	Attachments []Attachment `json:"attachments"`
}

// Thread is a provider-grouped conversation in provider (chronological)
// message order. Immutable once fetched.
type Thread struct {
	ID       string    `json:"id"`
	Messages []Message `json:"messages"`
}

// LabelInfo identifies one mailbox label.
type LabelInfo struct {
	ID   string
	Name string
}

// LabelCount is a point-in-time message total for one label.
type LabelCount struct {
	Name  string `json:"label"`
	Count int64  `json:"count"`
}

// Diff is the result of one history diff run: every thread touched by
// messages added since the watermark, plus a full label summary.
type Diff struct {
	Threads    []Thread     `json:"threads"`
	Labels     []LabelCount `json:"labels"`
	NewHistory uint64       `json:"newHistoryId"`
}

// ChangeSignal is one inbound mailbox change notification.
type ChangeSignal struct {
	UserID       string `json:"userId"`
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// SignalPayload is the lightweight notification pushed to a user's channel
// on the change-signal path.
type SignalPayload struct {
	UserID       string `json:"userId"`
	Email        string `json:"email"`
	NewHistoryID uint64 `json:"newHistoryId"`
}
