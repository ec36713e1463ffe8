package event

import (
	"slices"
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

type subscriber struct {
	ch    chan Event
	kinds []Kind
}

func (s *subscriber) wants(k Kind) bool {
	return len(s.kinds) == 0 || slices.Contains(s.kinds, k)
}

// Bus fans events out to subscribers. Publishing never blocks: a subscriber whose
// channel is full misses the event. A nil *Bus discards everything.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	closed      bool
	dropped     atomic.Uint64
}

func NewBus() *Bus {
	return &Bus{subscribers: make(map[*subscriber]struct{})}
}

// Subscribe registers a listener for the given kinds, all kinds when none are given.
// The returned cancel function unsubscribes and closes the channel.
func (b *Bus) Subscribe(buffer int, kinds ...Kind) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	s := &subscriber{ch: make(chan Event, buffer), kinds: kinds}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(s.ch)
		return s.ch, func() {}
	}
	b.subscribers[s] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subscribers[s]; ok {
				delete(b.subscribers, s)
				close(s.ch)
			}
		})
	}
	return s.ch, cancel
}

// Publish delivers e to every interested subscriber.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for s := range b.subscribers {
		if !s.wants(e.Kind()) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			b.dropped.Add(1) // subscriber's channel is full, skip
		}
	}
}

// Dropped returns the number of deliveries skipped because a subscriber was full.
func (b *Bus) Dropped() uint64 {
	if b == nil {
		return 0
	}
	return b.dropped.Load()
}

// Close closes every subscriber channel. Later publishes are discarded.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for s := range b.subscribers {
		close(s.ch)
	}
	b.subscribers = make(map[*subscriber]struct{})
}
