// Package notify provides the in-process event hub that fans job lifecycle
// events out to an open set of subscribers. Transports (WebSocket, SSE) are
// adapters layered on top of a subscription; the hub itself never blocks a
// publisher on a slow consumer.
package notify

import (
	"log/slog"
	"sync"
	"time"
)

// EventType classifies the messages published by the job registry.
type EventType string

const (
	// EventCreated is published when a job is admitted.
	EventCreated EventType = "created"
	// EventStatusChanged is published on every status or progress change.
	EventStatusChanged EventType = "status_changed"
	// EventRemoved is published when a job record and its files are removed.
	EventRemoved EventType = "removed"
)

// Event is the payload delivered to subscribers.
type Event struct {
	Type      EventType `json:"type"`
	JobID     string    `json:"job_id"`
	Status    string    `json:"status,omitempty"`
	Progress  int       `json:"progress,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Subscriber is a handle to one event stream. Events arrive on Events()
// until Close is called or the hub shuts the subscriber down.
type Subscriber struct {
	hub    *Hub
	events chan Event
	once   sync.Once
}

// Events returns the channel the hub delivers on. The channel is closed
// when the subscription ends.
func (s *Subscriber) Events() <-chan Event {
	return s.events
}

// Close detaches the subscriber from the hub. Safe to call at any time,
// including concurrently with event delivery, and safe to call twice.
func (s *Subscriber) Close() {
	s.hub.unsubscribe(s)
}

// Hub broadcasts events to every current subscriber. Delivery is
// best-effort: each subscriber has a bounded buffer and events are dropped
// for that subscriber alone when it falls behind.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber]struct{}
	buffer      int
	logger      *slog.Logger
}

// Option configures a Hub.
type Option func(*Hub)

// WithBuffer sets the per-subscriber channel buffer.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger, opts ...Option) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		subscribers: make(map[*Subscriber]struct{}),
		buffer:      64,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe attaches a new subscriber and returns its handle.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{
		hub:    h,
		events: make(chan Event, h.buffer),
	}
	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// unsubscribe removes the subscriber and closes its channel. The write lock
// excludes in-flight sends, so the close never races a Publish.
func (h *Hub) unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	_, ok := h.subscribers[sub]
	if ok {
		delete(h.subscribers, sub)
	}
	h.mu.Unlock()
	if ok {
		sub.once.Do(func() { close(sub.events) })
	}
}

// SubscriberCount returns the number of attached subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Publish delivers the event to every subscriber without blocking. A full
// subscriber buffer drops the event for that subscriber only; events that
// are delivered arrive in publish order.
func (h *Hub) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subscribers {
		select {
		case sub.events <- event:
		default:
			h.logger.Debug("event dropped for slow subscriber",
				slog.String("job_id", event.JobID),
				slog.String("type", string(event.Type)),
			)
		}
	}
}

// Shutdown detaches every subscriber, closing their channels.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	subs := make([]*Subscriber, 0, len(h.subscribers))
	for sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.subscribers = make(map[*Subscriber]struct{})
	h.mu.Unlock()

	for _, sub := range subs {
		sub.once.Do(func() { close(sub.events) })
	}
}
