package events

import (
	"sync"
	"time"
)

// Topic names a kind of broadcast event
type Topic string

const (
	// AuthFailure is published when the session is terminated
	AuthFailure Topic = "auth:failure"

	RefreshStarted   Topic = "refresh:started"
	RefreshSucceeded Topic = "refresh:succeeded"
	RefreshFailed    Topic = "refresh:failed"
	ReplayDispatched Topic = "replay:dispatched"
)

// Event is one broadcast notification
type Event struct {
	Topic     Topic
	Timestamp time.Time

	// Reason is set for AuthFailure and RefreshFailed
	Reason string
	// Redirect is the login target for AuthFailure, empty when already on the login surface
	Redirect string
	// TraceID identifies the replayed request for ReplayDispatched
	TraceID string
	// Queued is the number of waiters drained by a refresh
	Queued int
}

type subscriber struct {
	ch     chan Event
	topics map[Topic]bool
}

func (s *subscriber) wants(topic Topic) bool {
	return len(s.topics) == 0 || s.topics[topic]
}

// Bus broadcasts events to every interested subscriber. Publishing never
// blocks: a subscriber whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextID int
	buffer int
}

// NewBus creates a bus with the given per-subscriber buffer size
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 16
	}
	return &Bus{
		subs:   make(map[int]*subscriber),
		buffer: buffer,
	}
}

// Subscribe registers for the given topics (all topics when none are given).
// The returned cancel func unregisters and closes the channel.
func (b *Bus) Subscribe(topics ...Topic) (<-chan Event, func()) {
	sub := &subscriber{
		ch:     make(chan Event, b.buffer),
		topics: make(map[Topic]bool, len(topics)),
	}
	for _, t := range topics {
		sub.topics[t] = true
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish delivers the event to all matching subscribers
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if !sub.wants(event.Topic) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
}
