package memory

import (
	"context"
	"path"
	"sync"

	"github.com/alanyoungcy/dealscout/internal/domain"
)

// EventBus is an in-process domain.EventBus. Subscriptions accept the same
// glob patterns as Redis PSUBSCRIBE for the common cases ("deals.*").
// Slow subscribers drop messages rather than block publishers.
type EventBus struct {
	mu   sync.RWMutex
	subs map[int]subscription
	next int
}

type subscription struct {
	pattern string
	ch      chan []byte
}

// NewEventBus creates an EventBus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[int]subscription)}
}

// Publish delivers payload to every matching subscriber.
func (b *EventBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subs {
		if ok, _ := path.Match(s.pattern, channel); !ok {
			continue
		}
		select {
		case s.ch <- append([]byte(nil), payload...):
		default:
		}
	}
	return nil
}

// Subscribe registers a subscriber until ctx is cancelled.
func (b *EventBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 128)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = subscription{pattern: channel, ch: ch}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
	}()

	return ch, nil
}

var _ domain.EventBus = (*EventBus)(nil)
