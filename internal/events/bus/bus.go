// Package bus implements the coarse lifecycle telemetry bus: session and
// task lifecycle notifications (session.created, session.deleted,
// task.started, task.completed, ...), as opposed to the per-task,
// single-subscriber event stream in internal/eventbus. Telemetry on this
// bus is fire-and-forget, fan-out to any number of subscribers, and safe
// to drop if nothing is listening.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

func newEventID() string {
	return uuid.NewString()
}

// Event is one lifecycle notification.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// NewEvent builds an Event with a fresh ID and the current time.
func NewEvent(eventType, source string, data map[string]interface{}) *Event {
	return &Event{
		ID:        newEventID(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// Lifecycle event type constants published by the Session Manager and
// Task Executor.
const (
	EventSessionCreated = "session.created"
	EventSessionDeleted = "session.deleted"
	EventTaskStarted    = "task.started"
	EventTaskCompleted  = "task.completed"
	EventTaskFailed     = "task.failed"
	EventTaskInterrupted = "task.interrupted"
)

// EventHandler processes one delivered Event.
type EventHandler func(ctx context.Context, event *Event) error

// Subscription lets a caller stop receiving events.
type Subscription interface {
	Unsubscribe() error
	IsValid() bool
}

// EventBus publishes and subscribes to lifecycle events, either in-process
// or over NATS.
type EventBus interface {
	Publish(ctx context.Context, subject string, event *Event) error
	Subscribe(subject string, handler EventHandler) (Subscription, error)
	QueueSubscribe(subject, queue string, handler EventHandler) (Subscription, error)
	Close()
	IsConnected() bool
}
