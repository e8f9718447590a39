package gmail

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/sudhir-72744/remails-websocket/internal/notify"
)

// Gmail addresses the authenticated mailbox as "me".
const mailboxUser = "me"

// Adapter implements notify.Mailbox over the Gmail API.
type Adapter struct {
	svc *gmail.Service
}

// New creates a Gmail adapter from an OAuth access token. Token refresh is
// the credential provider's job; the token is used as-is.
func New(ctx context.Context, accessToken string) (*Adapter, error) {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, src)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return &Adapter{svc: svc}, nil
}

// AddedMessageIDs lists messages added since the watermark via the History
// API, paging through every record, and reports the newest history id seen.
func (a *Adapter) AddedMessageIDs(ctx context.Context, since uint64) ([]string, uint64, error) {
	call := a.svc.Users.History.List(mailboxUser).
		StartHistoryId(since).
		HistoryTypes("messageAdded").
		MaxResults(100)

	var ids []string
	latest := since

	err := call.Pages(ctx, func(page *gmail.ListHistoryResponse) error {
		if page.HistoryId > latest {
			latest = page.HistoryId
		}
		for _, h := range page.History {
			if h.Id > latest {
				latest = h.Id
			}
			for _, rec := range h.MessagesAdded {
				if rec.Message != nil {
					ids = append(ids, rec.Message.Id)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list history: %w", err)
	}

	return ids, latest, nil
}

// ThreadID returns the owning thread of a message.
func (a *Adapter) ThreadID(ctx context.Context, messageID string) (string, error) {
	m, err := a.svc.Users.Messages.Get(mailboxUser, messageID).Format("minimal").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to get message %s: %w", messageID, err)
	}
	return m.ThreadId, nil
}

// Thread fetches a full thread and normalizes every message in it. A
// normalization failure fails the whole thread; a thread with a partially
// formatted message is not a safe delivery unit.
func (a *Adapter) Thread(ctx context.Context, threadID string) ([]notify.Message, error) {
	t, err := a.svc.Users.Threads.Get(mailboxUser, threadID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get thread %s: %w", threadID, err)
	}

	msgs := make([]notify.Message, 0, len(t.Messages))
	for _, m := range t.Messages {
		formatted, err := formatMessage(ctx, m, a.fetchAttachment)
		if err != nil {
			return nil, fmt.Errorf("failed to format message %s: %w", m.Id, err)
		}
		msgs = append(msgs, formatted)
	}
	return msgs, nil
}

// Labels lists every label on the mailbox.
func (a *Adapter) Labels(ctx context.Context) ([]notify.LabelInfo, error) {
	resp, err := a.svc.Users.Labels.List(mailboxUser).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}
	labels := make([]notify.LabelInfo, 0, len(resp.Labels))
	for _, l := range resp.Labels {
		labels = append(labels, notify.LabelInfo{ID: l.Id, Name: l.Name})
	}
	return labels, nil
}

// LabelTotal returns the current message total for a label.
func (a *Adapter) LabelTotal(ctx context.Context, labelID string) (int64, error) {
	l, err := a.svc.Users.Labels.Get(mailboxUser, labelID).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to get label %s: %w", labelID, err)
	}
	return l.MessagesTotal, nil
}

func (a *Adapter) fetchAttachment(ctx context.Context, messageID, attachmentID string) (*gmail.MessagePartBody, error) {
	body, err := a.svc.Users.Messages.Attachments.Get(mailboxUser, messageID, attachmentID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment %s: %w", attachmentID, err)
	}
	return body, nil
}
