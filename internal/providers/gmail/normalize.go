package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"net/mail"
	"slices"
	"sync"
	"time"

	"google.golang.org/api/gmail/v1"

	"github.com/sudhir-72744/remails-websocket/internal/notify"
)

const labelUnread = "UNREAD"

// attachmentFetcher resolves an attachment's body by (message, attachment)
// id. Split out so normalization is testable without a live service.
type attachmentFetcher func(ctx context.Context, messageID, attachmentID string) (*gmail.MessagePartBody, error)

type attachmentRef struct {
	filename     string
	mimeType     string
	attachmentID string
}

// formatMessage normalizes one raw Gmail message: plain and HTML bodies
// extracted from the nested part tree, attachment descriptors collected
// and resolved concurrently. A body decode error fails the message; a
// failed attachment resolution does not.
func formatMessage(ctx context.Context, m *gmail.Message, fetch attachmentFetcher) (notify.Message, error) {
	msg := notify.Message{
		ID:        m.Id,
		ThreadID:  m.ThreadId,
		Snippet:   m.Snippet,
		Timestamp: time.UnixMilli(m.InternalDate),
		Labels:    m.LabelIds,
		Read:      !slices.Contains(m.LabelIds, labelUnread),
	}

	if m.Payload == nil {
		return msg, nil
	}

	for _, kv := range m.Payload.Headers {
		switch kv.Name {
		case "Subject":
			msg.Subject = kv.Value
		case "From":
			msg.SenderName, msg.SenderEmail = parseAddress(kv.Value)
		case "Reply-To":
			msg.ReplyTo = kv.Value
		}
	}

	var refs []attachmentRef
	for _, part := range m.Payload.Parts {
		if err := walkPart(part, &msg, &refs); err != nil {
			return notify.Message{}, err
		}
	}

	// Some providers hang attachments directly off the payload without
	// deeper nesting; a second depth-1 scan catches those.
	if len(refs) == 0 {
		for _, part := range m.Payload.Parts {
			if ref, ok := asAttachment(part); ok {
				refs = append(refs, ref)
			}
		}
	}

	// Single-part messages carry the body on the payload itself.
	if msg.TextBody == "" && m.Payload.MimeType == "text/plain" && m.Payload.Body != nil && m.Payload.Body.Data != "" {
		text, err := decodeBody(m.Payload.Body.Data)
		if err != nil {
			return notify.Message{}, fmt.Errorf("decode body of %s: %w", m.Id, err)
		}
		msg.TextBody = text
	}
	if msg.HTMLBody == "" && m.Payload.MimeType == "text/html" && m.Payload.Body != nil && m.Payload.Body.Data != "" {
		html, err := decodeBody(m.Payload.Body.Data)
		if err != nil {
			return notify.Message{}, fmt.Errorf("decode body of %s: %w", m.Id, err)
		}
		msg.HTMLBody = html
	}

	msg.Attachments = resolveAttachments(ctx, m.Id, refs, fetch)
	return msg, nil
}

// walkPart is the depth-first traversal over the MIME part tree. The first
// text/plain and text/html leaves win; later occurrences never overwrite.
func walkPart(part *gmail.MessagePart, msg *notify.Message, refs *[]attachmentRef) error {
	if part == nil {
		return nil
	}

	if ref, ok := asAttachment(part); ok {
		*refs = append(*refs, ref)
	} else if part.Body != nil && part.Body.Data != "" {
		switch part.MimeType {
		case "text/plain":
			if msg.TextBody == "" {
				text, err := decodeBody(part.Body.Data)
				if err != nil {
					return fmt.Errorf("decode text part: %w", err)
				}
				msg.TextBody = text
			}
		case "text/html":
			if msg.HTMLBody == "" {
				html, err := decodeBody(part.Body.Data)
				if err != nil {
					return fmt.Errorf("decode html part: %w", err)
				}
				msg.HTMLBody = html
			}
		}
	}

	for _, child := range part.Parts {
		if err := walkPart(child, msg, refs); err != nil {
			return err
		}
	}
	return nil
}

func asAttachment(part *gmail.MessagePart) (attachmentRef, bool) {
	if part == nil || part.Filename == "" || part.Body == nil || part.Body.AttachmentId == "" {
		return attachmentRef{}, false
	}
	return attachmentRef{
		filename:     part.Filename,
		mimeType:     part.MimeType,
		attachmentID: part.Body.AttachmentId,
	}, true
}

// resolveAttachments fetches every attachment body concurrently and joins
// before returning. A failed fetch leaves that descriptor without data or
// size; the message still ships.
func resolveAttachments(ctx context.Context, messageID string, refs []attachmentRef, fetch attachmentFetcher) []notify.Attachment {
	if len(refs) == 0 {
		return nil
	}

	atts := make([]notify.Attachment, len(refs))
	var wg sync.WaitGroup

	for i, ref := range refs {
		atts[i] = notify.Attachment{Filename: ref.filename, MimeType: ref.mimeType}
		wg.Add(1)
		go func() {
			defer wg.Done()
			body, err := fetch(ctx, messageID, ref.attachmentID)
			if err != nil {
				log.Printf("warning: attachment %s on message %s failed: %v", ref.filename, messageID, err)
				return
			}
			atts[i].Data = body.Data
			atts[i].Size = body.Size
		}()
	}
	wg.Wait()

	return atts
}

func decodeBody(data string) (string, error) {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		b, err = base64.RawURLEncoding.DecodeString(data)
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func parseAddress(from string) (name, email string) {
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return "", from
	}
	return addr.Name, addr.Address
}
