package event

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SubscriberQueueSize is the per-subscriber channel buffer
const SubscriberQueueSize = 64

type EventType string

type SubscriberID int

// Event is an observable record. Events are informational; no control flow
// depends on their delivery.
type Event struct {
	ID        uuid.UUID
	Type      EventType
	Timestamp time.Time
	Data      any
}

// New creates a new event with a fresh record ID
func New(eventType EventType, data any) Event {
	return Event{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// Bus fans events out to per-type subscriber channels. Delivery is
// best-effort: a subscriber that falls behind its buffer loses events
// rather than blocking the publisher.
type Bus struct {
	subscribers map[EventType]map[SubscriberID]chan Event
	lastSubID   SubscriberID
	published   *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	logger      *slog.Logger
	mutex       sync.RWMutex
}

// NewBus creates a new event bus. A nil registry disables metrics.
func NewBus(promRegistry prometheus.Registerer, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bus{
		subscribers: make(map[EventType]map[SubscriberID]chan Event),
		logger:      logger,
	}
	if promRegistry != nil {
		b.published = promauto.With(promRegistry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "frabric_events_published_total",
				Help: "Number of events published, by event type",
			},
			[]string{"type"},
		)
		b.dropped = promauto.With(promRegistry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "frabric_events_dropped_total",
				Help: "Number of events dropped on full subscriber queues, by event type",
			},
			[]string{"type"},
		)
	}
	return b
}

// Subscribe registers a consumer for an event type
func (b *Bus) Subscribe(eventType EventType) (SubscriberID, <-chan Event) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.lastSubID++
	id := b.lastSubID
	ch := make(chan Event, SubscriberQueueSize)
	if _, exists := b.subscribers[eventType]; !exists {
		b.subscribers[eventType] = make(map[SubscriberID]chan Event)
	}
	b.subscribers[eventType][id] = ch
	return id, ch
}

// Unsubscribe removes a consumer and closes its channel
func (b *Bus) Unsubscribe(eventType EventType, id SubscriberID) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if subs, exists := b.subscribers[eventType]; exists {
		if ch, exists := subs[id]; exists {
			close(ch)
			delete(subs, id)
		}
	}
}

// Publish delivers an event to all subscribers of its type
func (b *Bus) Publish(eventType EventType, data any) {
	evt := New(eventType, data)

	b.mutex.RLock()
	defer b.mutex.RUnlock()

	if b.published != nil {
		b.published.WithLabelValues(string(eventType)).Inc()
	}
	for id, ch := range b.subscribers[eventType] {
		select {
		case ch <- evt:
		default:
			if b.dropped != nil {
				b.dropped.WithLabelValues(string(eventType)).Inc()
			}
			b.logger.Warn("dropping event for slow subscriber",
				"type", eventType, "subscriber", id)
		}
	}
}
