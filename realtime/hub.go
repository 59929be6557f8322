// Package realtime fans lifecycle events out to live subscribers.
//
// Delivery is best effort and at most once. A subscriber whose queue is full
// is dropped from the registry and its channel is closed; nothing is
// buffered for subscribers that register after an event was published.
package realtime

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultBuffer is the per-subscriber queue length used when none is given.
const DefaultBuffer = 64

// Event is one named message with a JSON-serializable payload.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub is the subscriber registry. Subscribe and Close on a subscription are
// the only mutation points; Publish may run concurrently with both.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
	log    *logrus.Logger
}

func NewHub(buffer int, log *logrus.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
		log:    log,
	}
}

// Subscription is a registered listener. Events arrive in publish order.
type Subscription struct {
	ID  string
	hub *Hub
	ch  chan Event
}

// Subscribe registers a new subscriber. Callers must Close it when the
// underlying connection goes away.
func (h *Hub) Subscribe() *Subscription {
	s := &Subscription{
		ID:  uuid.NewString(),
		hub: h,
		ch:  make(chan Event, h.buffer),
	}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()

	h.log.WithFields(logrus.Fields{"subscriber": s.ID, "subscribers": n}).Debug("live subscriber registered")
	return s
}

// Events yields the subscriber's events. The channel is closed once the
// subscription is removed from the hub.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close deregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s, "closed")
}

func (h *Hub) remove(s *Subscription, reason string) {
	h.mu.Lock()
	_, ok := h.subs[s]
	if ok {
		delete(h.subs, s)
		close(s.ch)
	}
	n := len(h.subs)
	h.mu.Unlock()

	if ok {
		h.log.WithFields(logrus.Fields{"subscriber": s.ID, "subscribers": n, "reason": reason}).Debug("live subscriber removed")
	}
}

// Publish hands the event to every registered subscriber without blocking.
// Subscribers that cannot accept it are dropped.
func (h *Hub) Publish(eventType string, payload any) {
	ev := Event{Type: eventType, Data: payload}

	var dead []*Subscription
	h.mu.RLock()
	for s := range h.subs {
		select {
		case s.ch <- ev:
		default:
			dead = append(dead, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range dead {
		h.log.WithFields(logrus.Fields{"subscriber": s.ID, "event": eventType}).Warn("live subscriber queue full, dropping")
		h.remove(s, "queue full")
	}
}

// Len returns the number of registered subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
