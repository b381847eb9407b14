package api

import (
	"sync"

	"github.com/hazelmeow/musicopy/internal/core"
)

// subscriberBuffer is how many undelivered snapshots a slow SSE client can
// accumulate before it starts missing updates (the newest snapshot always
// wins — see publish below).
const subscriberBuffer = 1

// Broadcaster fans a single stream of model snapshots out to any number of
// SSE subscribers, mirroring the teacher's internal/radio.Broadcaster
// subscribe/unsubscribe channel pattern (stream.go), just carrying model
// snapshots instead of MP3 chunks. It implements core.EventSink.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[chan core.Model]struct{}
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan core.Model]struct{})}
}

// OnModel implements core.EventSink: it publishes m to every subscriber.
func (b *Broadcaster) OnModel(m core.Model) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- m:
		default:
			// Slow subscriber: drop the stale snapshot in its buffer and
			// replace it with the fresh one, so it never falls further than
			// one update behind.
			select {
			case <-ch:
			default:
			}
			ch <- m
		}
	}
}

// Subscribe registers a new SSE client and returns the channel it should
// read snapshots from.
func (b *Broadcaster) Subscribe() chan core.Model {
	ch := make(chan core.Model, subscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a client, matching the teacher's
// Broadcaster.Unsubscribe (stream.go).
func (b *Broadcaster) Unsubscribe(ch chan core.Model) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// ActiveClients reports the current subscriber count.
func (b *Broadcaster) ActiveClients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
