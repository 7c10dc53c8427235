package events

import (
	"sync"
	"sync/atomic"
)

// Broadcaster fans committed events out to a fixed set of emitters and to any
// number of channel subscribers. Slow subscribers lose events instead of
// stalling the producer.
type Broadcaster struct {
	mu       sync.RWMutex
	sinks    []Emitter
	subs     map[uint64]chan Event
	nextID   uint64
	dropped  atomic.Uint64
	capacity int
}

// NewBroadcaster constructs a broadcaster. capacity bounds each subscriber's
// buffer and defaults to 64.
func NewBroadcaster(capacity int, sinks ...Emitter) *Broadcaster {
	if capacity <= 0 {
		capacity = 64
	}
	filtered := make([]Emitter, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			filtered = append(filtered, sink)
		}
	}
	return &Broadcaster{
		sinks:    filtered,
		subs:     make(map[uint64]chan Event),
		capacity: capacity,
	}
}

// AddSink registers an additional emitter.
func (b *Broadcaster) AddSink(sink Emitter) {
	if b == nil || sink == nil {
		return
	}
	b.mu.Lock()
	b.sinks = append(b.sinks, sink)
	b.mu.Unlock()
}

// Emit implements the Emitter interface.
func (b *Broadcaster) Emit(ev Event) {
	if b == nil || ev == nil {
		return
	}
	b.mu.RLock()
	sinks := b.sinks
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
	b.mu.RUnlock()
	for _, sink := range sinks {
		sink.Emit(ev)
	}
}

// Dropped reports how many deliveries were skipped because a subscriber's
// buffer was full.
func (b *Broadcaster) Dropped() uint64 { return b.dropped.Load() }

// Subscribe returns a channel receiving every subsequent event and a cancel
// function that closes it.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, b.capacity)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if existing, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(existing)
			}
			b.mu.Unlock()
		})
	}
	return ch, cancel
}

// Subscribers reports the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
