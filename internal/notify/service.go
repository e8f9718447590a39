package notify

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/sudhir-72744/remails-websocket/internal/dedup"
	"github.com/sudhir-72744/remails-websocket/internal/registry"
)

// Delivery event names on the websocket frame protocol.
const (
	EventNewEmail  = "newEmail"
	EventInboxSync = "inboxSync"
)

// ErrInvalidSignal reports a change signal missing required fields.
var ErrInvalidSignal = errors.New("missing userId or historyId")

// TokenSource supplies a user's current provider access token. Token
// storage and refresh live entirely outside this core.
type TokenSource interface {
	AccessToken(ctx context.Context, userID string) (string, error)
}

// WatermarkStore persists the last watermark handled per user.
type WatermarkStore interface {
	SaveWatermark(ctx context.Context, userID string, historyID uint64) error
	LoadWatermark(ctx context.Context, userID string) (uint64, error)
}

// Service is the notification pipeline: dedup gate, history diff, fan-out.
// One Service is created at process start and shared by every handler.
type Service struct {
	cache       *dedup.Cache
	registry    *registry.Registry
	broadcaster *Broadcaster
	mailboxes   MailboxFactory
	tokens      TokenSource    // optional, enables SyncUser
	store       WatermarkStore // optional
}

// NewService wires the pipeline. tokens and store may be nil.
func NewService(cache *dedup.Cache, reg *registry.Registry, b *Broadcaster, mailboxes MailboxFactory, tokens TokenSource, store WatermarkStore) *Service {
	return &Service{
		cache:       cache,
		registry:    reg,
		broadcaster: b,
		mailboxes:   mailboxes,
		tokens:      tokens,
		store:       store,
	}
}

// HandleChangeSignal handles one inbound mailbox change push. The payload
// sent to the user's channel is signal-only ({userId, email, newHistoryId});
// the client follows up with its own sync. Duplicate signals inside the
// dedup window are silently collapsed.
func (s *Service) HandleChangeSignal(ctx context.Context, sig ChangeSignal) error {
	if sig.UserID == "" || sig.HistoryID == 0 {
		return ErrInvalidSignal
	}

	key := fmt.Sprintf("%s:%d", sig.UserID, sig.HistoryID)
	if !s.cache.Admit(key) {
		log.Printf("duplicate signal %s suppressed", key)
		return nil
	}

	s.broadcaster.ToUser(sig.UserID, EventNewEmail, SignalPayload{
		UserID:       sig.UserID,
		Email:        sig.EmailAddress,
		NewHistoryID: sig.HistoryID,
	})

	if s.store != nil {
		if err := s.store.SaveWatermark(ctx, sig.UserID, sig.HistoryID); err != nil {
			log.Printf("save watermark for %s: %v", sig.UserID, err)
		}
	}
	return nil
}

// HandleFullSync runs the full-content pipeline: diff the mailbox since
// the watermark and broadcast the resolved threads plus label summary to
// every live channel. This is the global-watch variant; callers that know
// the recipient use SyncUser instead.
func (s *Service) HandleFullSync(ctx context.Context, accessToken string, watermark uint64) error {
	if accessToken == "" || watermark == 0 {
		return errors.New("missing accessToken or historyId")
	}

	if !s.cache.Admit(fmt.Sprintf("sync:%d", watermark)) {
		log.Printf("duplicate sync at %d suppressed", watermark)
		return nil
	}

	diff, err := s.diff(ctx, accessToken, watermark)
	if err != nil {
		return err
	}

	s.broadcaster.ToAll(EventInboxSync, diff)
	return nil
}

// SyncUser runs the full-content pipeline for one known user, fetching
// that user's access token from the credential provider and pushing the
// result to the user's channel only.
func (s *Service) SyncUser(ctx context.Context, userID string, watermark uint64) error {
	if s.tokens == nil {
		return errors.New("no token source configured")
	}
	if userID == "" || watermark == 0 {
		return ErrInvalidSignal
	}

	if !s.cache.Admit(fmt.Sprintf("sync:%s:%d", userID, watermark)) {
		log.Printf("duplicate sync for %s at %d suppressed", userID, watermark)
		return nil
	}

	token, err := s.tokens.AccessToken(ctx, userID)
	if err != nil {
		return fmt.Errorf("fetch token for %s: %w", userID, err)
	}

	diff, err := s.diff(ctx, token, watermark)
	if err != nil {
		return err
	}

	s.broadcaster.ToUser(userID, EventInboxSync, diff)

	if s.store != nil {
		if err := s.store.SaveWatermark(ctx, userID, diff.NewHistory); err != nil {
			log.Printf("save watermark for %s: %v", userID, err)
		}
	}
	return nil
}

func (s *Service) diff(ctx context.Context, accessToken string, watermark uint64) (*Diff, error) {
	mailbox, err := s.mailboxes(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("create mailbox: %w", err)
	}
	return NewEngine(mailbox).DiffSince(ctx, watermark)
}

// OnConnect is called when a transport channel opens.
func (s *Service) OnConnect(channel string) {
	log.Printf("client connected on channel %s", channel)
}

// OnRegisterUser binds a user to a channel, superseding any prior binding.
func (s *Service) OnRegisterUser(channel, userID string) {
	if userID == "" {
		return
	}
	s.registry.Register(userID, channel)
	log.Printf("user %s registered on channel %s", userID, channel)
}

// OnDisconnect removes whatever user binding the channel held.
func (s *Service) OnDisconnect(channel string) {
	s.registry.UnregisterChannel(channel)
	log.Printf("channel %s disconnected", channel)
}
