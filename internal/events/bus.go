package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventSignalGenerated EventType = "SIGNAL_GENERATED"
	EventSignalRejected  EventType = "SIGNAL_REJECTED"
	EventPositionOpened  EventType = "POSITION_OPENED"
	EventPositionClosed  EventType = "POSITION_CLOSED"
	EventRiskHalted      EventType = "RISK_HALTED"
	EventRiskResumed     EventType = "RISK_RESUMED"
	EventDailyReset      EventType = "DAILY_RESET"
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

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	// Notify specific subscribers
	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}

	// Notify all-event subscribers
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishSignal publishes a signal generated event
func (eb *EventBus) PublishSignal(source, symbol, action string, confidence, entryPrice float64) {
	eb.Publish(Event{
		Type: EventSignalGenerated,
		Data: map[string]interface{}{
			"source":      source,
			"symbol":      symbol,
			"action":      action,
			"confidence":  confidence,
			"entry_price": entryPrice,
		},
	})
}

// PublishSignalRejected publishes a signal rejection with its reason code
func (eb *EventBus) PublishSignalRejected(symbol, source, reason string) {
	eb.Publish(Event{
		Type: EventSignalRejected,
		Data: map[string]interface{}{
			"symbol": symbol,
			"source": source,
			"reason": reason,
		},
	})
}

// PublishPositionOpened publishes a position opened event
func (eb *EventBus) PublishPositionOpened(positionID, symbol, direction, source string, entryPrice, size float64) {
	eb.Publish(Event{
		Type: EventPositionOpened,
		Data: map[string]interface{}{
			"position_id": positionID,
			"symbol":      symbol,
			"direction":   direction,
			"source":      source,
			"entry_price": entryPrice,
			"size":        size,
		},
	})
}

// PublishPositionClosed publishes a position closed event
func (eb *EventBus) PublishPositionClosed(positionID, symbol, exitReason string, entryPrice, exitPrice, size, realizedPnL float64) {
	eb.Publish(Event{
		Type: EventPositionClosed,
		Data: map[string]interface{}{
			"position_id":  positionID,
			"symbol":       symbol,
			"exit_reason":  exitReason,
			"entry_price":  entryPrice,
			"exit_price":   exitPrice,
			"size":         size,
			"realized_pnl": realizedPnL,
		},
	})
}

// PublishRiskHalted publishes a trading halt with the metric that tripped it
func (eb *EventBus) PublishRiskHalted(state, reason string, metricValue, limitValue float64) {
	eb.Publish(Event{
		Type: EventRiskHalted,
		Data: map[string]interface{}{
			"state":        state,
			"reason":       reason,
			"metric_value": metricValue,
			"limit_value":  limitValue,
		},
	})
}

// PublishRiskResumed publishes a return to active trading
func (eb *EventBus) PublishRiskResumed(previousState string) {
	eb.Publish(Event{
		Type: EventRiskResumed,
		Data: map[string]interface{}{
			"previous_state": previousState,
		},
	})
}

// PublishDailyReset publishes a UTC day rollover
func (eb *EventBus) PublishDailyReset(date string, dayStartCapital float64) {
	eb.Publish(Event{
		Type: EventDailyReset,
		Data: map[string]interface{}{
			"date":              date,
			"day_start_capital": dayStartCapital,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
