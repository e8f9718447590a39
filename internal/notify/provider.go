package notify

import "context"

// Mailbox is the provider-side read surface the diff engine runs against.
// Every call may fail transiently; the engine recovers at the granularity
// documented per method.
type Mailbox interface {
	// AddedMessageIDs returns the ids of messages added to the mailbox
	// since the given history watermark, in provider order (not
	// deduplicated across history records), plus the newest watermark
	// observed.
	AddedMessageIDs(ctx context.Context, since uint64) (ids []string, latest uint64, err error)

	// ThreadID returns the owning thread of a message.
	ThreadID(ctx context.Context, messageID string) (string, error)

	// Thread fetches a thread's full message set, normalized, in provider
	// order.
	Thread(ctx context.Context, threadID string) ([]Message, error)

	// Labels lists every label known to the mailbox.
	Labels(ctx context.Context) ([]LabelInfo, error)

	// LabelTotal returns the current message total for one label.
	LabelTotal(ctx context.Context, labelID string) (int64, error)
}

// MailboxFactory builds a Mailbox from an OAuth access token.
type MailboxFactory func(ctx context.Context, accessToken string) (Mailbox, error)
