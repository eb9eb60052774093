// Package bus provides the publish/subscribe contract used to dispatch
// registry operations, and an in-process implementation of it. Topics are
// dot-delimited strings; consumers match on topic prefixes.
package bus

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Event is a message addressed to a profile's subscribers.
type Event struct {
	Topic   string
	Payload any
}

// Handler consumes events for a profile. Errors are logged by the bus and
// isolated from sibling handlers.
type Handler func(ctx context.Context, profileID string, ev Event) error

// Bus delivers events to subscribers.
type Bus interface {
	Notify(ctx context.Context, profileID string, ev Event) error
}

// Local is an in-process bus. Delivery is synchronous and in subscription
// order; a failing handler does not block the others.
type Local struct {
	mu   sync.RWMutex
	subs []subscription
	log  *slog.Logger
}

type subscription struct {
	prefix  string
	handler Handler
}

func NewLocal(log *slog.Logger) *Local {
	if log == nil {
		log = slog.Default()
	}
	return &Local{log: log}
}

// Subscribe registers a handler for every topic starting with prefix.
func (b *Local) Subscribe(prefix string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{prefix: prefix, handler: h})
}

// Notify delivers the event to all matching subscribers.
func (b *Local) Notify(ctx context.Context, profileID string, ev Event) error {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, sub := range subs {
		if !strings.HasPrefix(ev.Topic, sub.prefix) {
			continue
		}
		if err := sub.handler(ctx, profileID, ev); err != nil {
			b.log.Error("event handler failed",
				"topic", ev.Topic,
				"profile", profileID,
				"error", err,
			)
		}
	}
	return nil
}
