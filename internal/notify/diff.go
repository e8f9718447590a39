package notify

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Engine diffs a mailbox against a history watermark and resolves the
// affected threads to full, normalized content.
type Engine struct {
	mailbox Mailbox
}

// NewEngine creates a diff engine over the given mailbox.
func NewEngine(mailbox Mailbox) *Engine {
	return &Engine{mailbox: mailbox}
}

// DiffSince resolves everything that changed since the watermark: the
// distinct set of threads touched by added messages, fully fetched and
// normalized, plus a complete label-count summary. Only a failure of the
// history query itself is fatal; thread and label fetches degrade
// per-item. Watermark bookkeeping stays with the caller.
func (e *Engine) DiffSince(ctx context.Context, watermark uint64) (*Diff, error) {
	ids, latest, err := e.mailbox.AddedMessageIDs(ctx, watermark)
	if err != nil {
		return nil, fmt.Errorf("history query from %d: %w", watermark, err)
	}

	// Collapse message ids to their owning threads. Multiple new messages
	// in one conversation must yield one notification, not several.
	threadIDs := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		threadID, err := e.mailbox.ThreadID(ctx, id)
		if err != nil {
			log.Printf("thread lookup for message %s failed: %v", id, err)
			continue
		}
		threadIDs[threadID] = struct{}{}
	}

	diff := &Diff{NewHistory: latest}

	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		diff.Threads = e.resolveThreads(ctx, threadIDs)
		return nil
	})
	grp.Go(func() error {
		diff.Labels = e.labelSummary(ctx)
		return nil
	})
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	return diff, nil
}

// resolveThreads fetches every thread concurrently. A failed fetch drops
// that thread from the result with a warning and never disturbs its
// siblings.
func (e *Engine) resolveThreads(ctx context.Context, threadIDs map[string]struct{}) []Thread {
	var (
		mu      sync.Mutex
		threads []Thread
	)

	grp, ctx := errgroup.WithContext(ctx)
	for id := range threadIDs {
		grp.Go(func() error {
			msgs, err := e.mailbox.Thread(ctx, id)
			if err != nil {
				log.Printf("warning: dropping thread %s: %v", id, err)
				return nil
			}
			if len(msgs) == 0 {
				// Should not happen: every added message belongs to a
				// real thread.
				log.Printf("warning: thread %s resolved to zero messages", id)
				return nil
			}
			mu.Lock()
			threads = append(threads, Thread{ID: id, Messages: msgs})
			mu.Unlock()
			return nil
		})
	}
	_ = grp.Wait()

	sort.Slice(threads, func(i, j int) bool { return threads[i].ID < threads[j].ID })
	return threads
}

// labelSummary fetches a message total for every label. A label record
// missing its id or name becomes ("unknown", 0); a failed count fetch
// becomes (name, 0). The summary always has one entry per label.
func (e *Engine) labelSummary(ctx context.Context) []LabelCount {
	labels, err := e.mailbox.Labels(ctx)
	if err != nil {
		log.Printf("label list failed: %v", err)
		return nil
	}

	counts := make([]LabelCount, len(labels))

	grp, ctx := errgroup.WithContext(ctx)
	for i, label := range labels {
		if label.ID == "" || label.Name == "" {
			counts[i] = LabelCount{Name: "unknown"}
			continue
		}
		grp.Go(func() error {
			total, err := e.mailbox.LabelTotal(ctx, label.ID)
			if err != nil {
				log.Printf("label count for %s failed: %v", label.Name, err)
				total = 0
			}
			counts[i] = LabelCount{Name: label.Name, Count: total}
			return nil
		})
	}
	_ = grp.Wait()

	return counts
}
