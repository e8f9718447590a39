package natsjs

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/sudhir-72744/remails-websocket/internal/notify"
)

const (
	streamName     = "MAIL_PUSH"
	subjectPattern = "mail.push.>"
	durableName    = "remails-notify"
)

// Subscriber consumes mailbox change signals pushed onto NATS JetStream
// (the Pub/Sub-bridge alternative to the HTTP push endpoint).
type Subscriber struct {
	nc  *nats.Conn
	js  nats.JetStreamContext
	sub *nats.Subscription
}

// NewSubscriber connects to NATS and sets up a JetStream context.
func NewSubscriber(url string) (*Subscriber, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	return &Subscriber{nc: nc, js: js}, nil
}

// EnsureStream makes sure the MAIL_PUSH stream exists. The duplicate
// window gives server-side suppression on top of the in-process dedup
// cache.
func (s *Subscriber) EnsureStream() error {
	info, err := s.js.StreamInfo(streamName)
	if err == nil && info != nil {
		return nil
	}

	_, err = s.js.AddStream(&nats.StreamConfig{
		Name:       streamName,
		Subjects:   []string{subjectPattern},
		Storage:    nats.FileStorage,
		Retention:  nats.LimitsPolicy,
		Duplicates: 10 * time.Minute,
		MaxAge:     24 * time.Hour,
	})
	if err != nil {
		if err == nats.ErrStreamNameAlreadyInUse {
			return nil
		}
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// Subscribe starts a durable consumer feeding decoded change signals to
// handler. A handler error naks the message for redelivery; a malformed
// payload is dropped for good.
func (s *Subscriber) Subscribe(handler func(notify.ChangeSignal) error) error {
	sub, err := s.js.Subscribe(subjectPattern, func(msg *nats.Msg) {
		var sig notify.ChangeSignal
		if err := json.Unmarshal(msg.Data, &sig); err != nil {
			log.Printf("malformed change signal on %s: %v", msg.Subject, err)
			_ = msg.Term()
			return
		}

		if err := handler(sig); err != nil {
			log.Printf("change signal for %s failed: %v", sig.UserID, err)
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	}, nats.Durable(durableName), nats.ManualAck(), nats.AckWait(30*time.Second))
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	s.sub = sub
	return nil
}

// Close drains the subscription and closes the connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	if s.nc != nil {
		s.nc.Close()
	}
}
