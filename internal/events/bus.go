// Package events is the state sink: a fire-and-forget event bus the engine
// publishes to and passive consumers (API, websocket hub, persistence)
// subscribe to. Publishing never blocks the caller.
package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventSignalGenerated EventType = "SIGNAL_GENERATED"
	EventSignalDropped   EventType = "SIGNAL_DROPPED"
	EventSignalRejected  EventType = "SIGNAL_REJECTED"
	EventOrderPlaced     EventType = "ORDER_PLACED"
	EventOrderFailed     EventType = "ORDER_FAILED"
	EventPositionOpened  EventType = "POSITION_OPENED"
	EventPositionUpdate  EventType = "POSITION_UPDATE"
	EventPositionFailed  EventType = "POSITION_FAILED"
	EventTradeClosed     EventType = "TRADE_CLOSED"
	EventStrategyToggled EventType = "STRATEGY_TOGGLED"
	EventBreakerTripped  EventType = "BREAKER_TRIPPED"
	EventBotStarted      EventType = "BOT_STARTED"
	EventBotStopped      EventType = "BOT_STOPPED"
	EventError           EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// Bus manages event publishing and subscriptions
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // subscribers to all events
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]Subscriber),
	}
}

// Subscribe registers a subscriber for a specific event type
func (b *Bus) Subscribe(eventType EventType, subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers[eventType] = append(b.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (b *Bus) SubscribeAll(subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.allSubs = append(b.allSubs, subscriber)
}

// Publish sends an event to all subscribers. Each subscriber runs in its
// own goroutine so a slow consumer cannot stall the engine.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := b.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event)
		}
	}
	for _, sub := range b.allSubs {
		go sub(event)
	}
}

// PublishSignal publishes a generated signal
func (b *Bus) PublishSignal(coin, action, source string, strength float64, metadata map[string]interface{}) {
	b.Publish(Event{
		Type: EventSignalGenerated,
		Data: map[string]interface{}{
			"coin":     coin,
			"action":   action,
			"source":   source,
			"strength": strength,
			"metadata": metadata,
		},
	})
}

// PublishPositionUpdate publishes a live position snapshot
func (b *Bus) PublishPositionUpdate(data map[string]interface{}) {
	b.Publish(Event{Type: EventPositionUpdate, Data: data})
}

// PublishTrade publishes a completed trade
func (b *Bus) PublishTrade(data map[string]interface{}) {
	b.Publish(Event{Type: EventTradeClosed, Data: data})
}

// PublishError publishes an error from any component
func (b *Bus) PublishError(component, message string) {
	b.Publish(Event{
		Type: EventError,
		Data: map[string]interface{}{
			"component": component,
			"message":   message,
		},
	})
}
