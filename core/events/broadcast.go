package events

import (
	"context"
	"sync"
)

const defaultBacklog = 256

// Broadcaster fans ledger records out to live subscribers. Slow subscribers
// drop records rather than stall the emitting call.
type Broadcaster struct {
	mu      sync.Mutex
	nextID  uint64
	subs    map[uint64]chan *Record
	backlog []*Record
	limit   int
	buffer  int
}

// NewBroadcaster constructs a broadcaster retaining up to backlog records for
// late subscribers.
func NewBroadcaster(backlog int) *Broadcaster {
	if backlog <= 0 {
		backlog = defaultBacklog
	}
	return &Broadcaster{
		subs:   make(map[uint64]chan *Record),
		limit:  backlog,
		buffer: 64,
	}
}

// Emit implements the Emitter interface. Non-record events are ignored.
func (b *Broadcaster) Emit(evt Event) {
	rec, ok := evt.(*Record)
	if !ok || rec == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.backlog = append(b.backlog, rec.Clone())
	if len(b.backlog) > b.limit {
		b.backlog = b.backlog[len(b.backlog)-b.limit:]
	}
	for _, ch := range b.subs {
		select {
		case ch <- rec.Clone():
		default:
		}
	}
}

// Subscribe registers a subscriber and returns its channel, a cancel func and
// the retained backlog. The channel closes when ctx ends or cancel is called.
func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan *Record, func(), []*Record) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan *Record, b.buffer)
	b.subs[id] = ch
	backlog := make([]*Record, len(b.backlog))
	for i, rec := range b.backlog {
		backlog[i] = rec.Clone()
	}
	b.mu.Unlock()

	var once sync.Once
	done := make(chan struct{})
	cancel := func() {
		once.Do(func() {
			close(done)
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return ch, cancel, backlog
}

// Subscribers reports the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
