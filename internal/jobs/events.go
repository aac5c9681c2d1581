package jobs

import (
	"sync"
	"time"
)

// EventType classifies progress messages emitted while processing images.
type EventType string

const (
	EventTypeStart    EventType = "start"
	EventTypeStep     EventType = "step"
	EventTypeComplete EventType = "complete"
	EventTypeError    EventType = "error"
)

// Event is one progress message for a single file. Every file produces
// exactly one start event and exactly one terminal event (complete or
// error), with zero or more step events between them.
type Event struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	BatchID   string    `json:"batchId,omitempty"`
	Type      EventType `json:"type"`
	File      string    `json:"file"`
	Message   string    `json:"message,omitempty"`
	Output    string    `json:"output,omitempty"`
}

// EventBus stores recent events and provides incremental reads. Delivery
// is fire-and-forget: subscribers that connect late only see whatever is
// still inside the bounded buffer.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
	}
}

// Publish appends one event and assigns sequence and timestamp.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	return event
}

// Since returns events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}
