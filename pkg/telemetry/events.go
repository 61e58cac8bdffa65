package telemetry

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a broadcast notification about an entity. One event is
// published per successful state transition, carrying the new state and the
// entity identifier, so progress views can follow provisioning live.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// EntityID is the project or app the event concerns.
	EntityID string `json:"entity_id"`

	// Stage is the pipeline stage that completed, if applicable.
	Stage string `json:"stage,omitempty"`

	// State is the newly recorded state.
	State string `json:"state"`

	// Message is a human-readable event message.
	Message string `json:"message,omitempty"`
}

// Event type constants.
const (
	EventTypeProjectStateChanged = "project.state_changed"
	EventTypeAppLifecycleChanged = "app.lifecycle_changed"
	EventTypeDriftDetected       = "drift.detected"
)

// EventSubscriber is a function that handles published events.
type EventSubscriber func(event Event)

// EventPublisher fans events out to subscribers. Publishing never blocks the
// caller: when the buffer is full the event is dropped.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []EventSubscriber
	mu          sync.RWMutex
	done        chan struct{}
	wg          sync.WaitGroup
}

// NewEventPublisher creates a new event publisher with the given
// configuration. A disabled publisher accepts and discards events.
func NewEventPublisher(cfg EventsConfig) *EventPublisher {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}

	ep := &EventPublisher{
		config: cfg,
		buffer: make(chan Event, cfg.BufferSize),
		done:   make(chan struct{}),
	}
	ep.wg.Add(1)
	go ep.dispatch()
	return ep
}

// Subscribe registers a subscriber for all future events.
func (ep *EventPublisher) Subscribe(sub EventSubscriber) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.subscribers = append(ep.subscribers, sub)
}

// Publish queues an event for delivery. Fills in ID and Timestamp when the
// caller left them zero.
func (ep *EventPublisher) Publish(event Event) {
	if ep.buffer == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	select {
	case ep.buffer <- event:
	default:
		// Buffer full; progress events are advisory, drop rather than block.
	}
}

// Close stops the dispatch loop after draining queued events.
func (ep *EventPublisher) Close() {
	if ep.buffer == nil {
		return
	}
	close(ep.done)
	ep.wg.Wait()
}

func (ep *EventPublisher) dispatch() {
	defer ep.wg.Done()
	for {
		select {
		case event := <-ep.buffer:
			ep.deliver(event)
		case <-ep.done:
			for {
				select {
				case event := <-ep.buffer:
					ep.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (ep *EventPublisher) deliver(event Event) {
	ep.mu.RLock()
	subs := make([]EventSubscriber, len(ep.subscribers))
	copy(subs, ep.subscribers)
	ep.mu.RUnlock()

	for _, sub := range subs {
		sub(event)
	}
}
