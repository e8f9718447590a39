package notify

import (
	"log"

	"github.com/sudhir-72744/remails-websocket/internal/registry"
)

// Sender is the delivery transport. Send errors are the transport's
// problem; delivery is at-most-once and best-effort.
type Sender interface {
	Send(channel, event string, payload any) error
	Broadcast(event string, payload any)
}

// Broadcaster routes notification payloads to channels through the
// connection registry.
type Broadcaster struct {
	registry *registry.Registry
	sender   Sender
}

// NewBroadcaster creates a broadcaster over the given registry and
// transport. sender may be nil until SetSender is called; events in the
// meantime are dropped with a warning.
func NewBroadcaster(reg *registry.Registry, sender Sender) *Broadcaster {
	return &Broadcaster{registry: reg, sender: sender}
}

// SetSender attaches the transport. The hub needs the service's lifecycle
// hooks to exist before it can be built, so the transport arrives after
// construction.
func (b *Broadcaster) SetSender(sender Sender) {
	b.sender = sender
}

// ToUser pushes payload to the channel registered for userID. An unknown
// user or missing transport drops the event with a warning; there is no
// queueing and no retry.
func (b *Broadcaster) ToUser(userID, event string, payload any) {
	if b.sender == nil {
		log.Printf("warning: no transport initialized, dropping %s for user %s", event, userID)
		return
	}
	channel, ok := b.registry.Lookup(userID)
	if !ok {
		log.Printf("warning: no client registered for user %s, dropping %s", userID, event)
		return
	}
	if err := b.sender.Send(channel, event, payload); err != nil {
		log.Printf("warning: send %s to user %s failed: %v", event, userID, err)
	}
}

// ToAll pushes payload to every live channel. Used by the global-watch
// variant where no specific recipient is known.
func (b *Broadcaster) ToAll(event string, payload any) {
	if b.sender == nil {
		log.Printf("warning: no transport initialized, dropping broadcast %s", event)
		return
	}
	b.sender.Broadcast(event, payload)
}
