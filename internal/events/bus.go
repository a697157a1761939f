// Package events provides the in-process fan-out bus carrying ledger
// events to the feed, the journal, and any other subscriber.
package events

import (
	"sync"

	"github.com/apexbay/nftmarket/internal/model"
)

// DefaultBufferSize is the per-subscriber channel capacity.
const DefaultBufferSize = 1024

// BusStats counts bus activity.
type BusStats struct {
	Published   int64 // Events accepted for delivery
	Dropped     int64 // Oldest events evicted from full subscriber buffers
	Subscribers int   // Current subscriber count
}

// Subscription is one subscriber's view of the bus. Events arrive in
// publish order; when the subscriber falls behind, the oldest buffered
// events are dropped.
type Subscription struct {
	ID int
	C  <-chan model.Event

	ch chan model.Event
}

// Bus fans ledger events out to subscribers. Publish never blocks, so
// the ledger can emit while holding its lock.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]*Subscription
	nextID int
	closed bool
	buffer int

	published int64
	dropped   int64
}

// NewBus creates a bus with the given per-subscriber buffer size.
// Sizes below one fall back to DefaultBufferSize.
func NewBus(buffer int) *Bus {
	if buffer < 1 {
		buffer = DefaultBufferSize
	}
	return &Bus{
		subs:   make(map[int]*Subscription),
		buffer: buffer,
	}
}

// Subscribe registers a new subscriber. Subscribing to a closed bus
// returns an already-closed subscription.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	ch := make(chan model.Event, b.buffer)
	sub := &Subscription{ID: b.nextID, C: ch, ch: ch}
	if b.closed {
		close(ch)
		return sub
	}
	b.subs[sub.ID] = sub
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(sub.ch)
}

// Publish delivers ev to every subscriber without blocking.
func (b *Bus) Publish(ev model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.published++

	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			// Buffer full: drop the oldest so the newest survives.
			select {
			case <-sub.ch:
				b.dropped++
			default:
				// The subscriber drained the buffer since the
				// failed send; room is already there.
			}
			// Publish holds the lock and is the only sender, so
			// the slot freed above cannot be taken back.
			sub.ch <- ev
		}
	}
}

// Close closes every subscription channel. Publish after Close is a
// no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}

// Stats returns a snapshot of bus counters.
func (b *Bus) Stats() BusStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BusStats{
		Published:   b.published,
		Dropped:     b.dropped,
		Subscribers: len(b.subs),
	}
}
