package bus

import (
	"strings"
	"sync"
	"sync/atomic"
)

// Bus is an in-process publish/subscribe event bus. Subscribers filter by
// kind prefix and, optionally, by session id.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]*subscription
	next    int
	dropped atomic.Uint64
}

// Filter selects the events a subscriber receives. Zero values match everything.
type Filter struct {
	Prefix  string
	Session string
}

func (f Filter) match(evt Event) bool {
	if f.Session != "" && f.Session != evt.Session {
		return false
	}
	return strings.HasPrefix(evt.Kind, f.Prefix)
}

type subscription struct {
	filter Filter
	ch     chan Event
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		subs: make(map[int]*subscription),
	}
}

// Publish delivers evt to every matching subscriber without blocking.
// Events for subscribers whose buffer is full are dropped and counted.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !sub.filter.match(evt) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe returns a channel that receives events matching f.
// bufSize controls the channel buffer. Returns the channel and an unsubscribe function;
// the channel is closed on unsubscribe.
func (b *Bus) Subscribe(f Filter, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{filter: f, ch: ch}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Dropped reports how many events were discarded because a subscriber was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
