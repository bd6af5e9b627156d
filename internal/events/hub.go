// Package events fans out delivery progress to live subscribers (the ops /events stream).
package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the dispatcher.
const (
	TypeDeliveryStarted  = "delivery.started"
	TypeCommitOutcome    = "commit.outcome"
	TypeDeliveryFinished = "delivery.finished"
)

const subscriberBuffer = 64

// Event is one published notice. Data is a single-line JSON document.
type Event struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	DeliveryID string          `json:"delivery_id,omitempty"`
	At         time.Time       `json:"at"`
	Data       json.RawMessage `json:"data"`
}

// Hub is an in-memory pub/sub keeping the last few events for late subscribers.
// It is safe for concurrent use by many deliveries.
type Hub struct {
	nextID atomic.Int64

	mu     sync.Mutex
	recent []Event
	head   int
	count  int

	subs      map[int]chan Event
	nextSubID int
}

// NewHub creates a hub retaining up to backlog events.
func NewHub(backlog int) *Hub {
	if backlog <= 0 {
		backlog = 100
	}
	return &Hub{
		recent: make([]Event, backlog),
		subs:   make(map[int]chan Event),
	}
}

// Publish records an event and offers it to every subscriber.
// Subscribers that are not keeping up miss the event rather than stall the publisher.
func (h *Hub) Publish(eventType, deliveryID string, data any) Event {
	payload := json.RawMessage(`{}`)
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// IDs are assigned under the lock so subscribers see them in increasing order.
	ev := Event{
		ID:         h.nextID.Add(1),
		Type:       eventType,
		DeliveryID: deliveryID,
		At:         time.Now().UTC(),
		Data:       payload,
	}

	h.remember(ev)
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return ev
}

// Subscribe returns a channel of future events and a function that unsubscribes
// and closes the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Event, subscriberBuffer)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			close(ch)
			h.mu.Unlock()
		})
	}
}

// Since returns retained events with ID > lastID, oldest first.
func (h *Hub) Since(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, h.count)
	for i := 0; i < h.count; i++ {
		ev := h.recent[(h.head+i)%len(h.recent)]
		if ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}

// Subscribers reports how many live subscribers are attached.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) remember(ev Event) {
	if h.count < len(h.recent) {
		h.recent[(h.head+h.count)%len(h.recent)] = ev
		h.count++
		return
	}
	// Full: overwrite the oldest.
	h.recent[h.head] = ev
	h.head = (h.head + 1) % len(h.recent)
}
