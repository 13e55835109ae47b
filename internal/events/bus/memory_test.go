package bus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/relaycode/taskserver/internal/common/logger"
)

func newTestLogger(t *testing.T) *logger.Logger {
	log, err := logger.New(logger.Config{Level: "debug", Format: "text", OutputPath: "stdout"})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	return log
}

func TestNewMemoryEventBus(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	if bus == nil {
		t.Fatal("expected non-nil bus")
	}
	if !bus.IsConnected() {
		t.Error("expected bus to be connected")
	}
}

func TestMemoryEventBus_PublishSubscribe(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	defer bus.Close()

	ctx := context.Background()
	received := make(chan *Event, 1)

	sub, err := bus.Subscribe(EventSessionCreated, func(ctx context.Context, event *Event) error {
		received <- event
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	event := NewEvent(EventSessionCreated, "session-manager", map[string]interface{}{"session_id": "s-1"})
	if err := bus.Publish(ctx, EventSessionCreated, event); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case e := <-received:
		if e.ID != event.ID {
			t.Errorf("expected event ID %s, got %s", event.ID, e.ID)
		}
		if e.Type != EventSessionCreated {
			t.Errorf("expected event type %s, got %s", EventSessionCreated, e.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestMemoryEventBus_MultipleSubscribers(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	defer bus.Close()

	ctx := context.Background()
	var count int32

	for i := 0; i < 3; i++ {
		sub, err := bus.Subscribe(EventTaskCompleted, func(ctx context.Context, event *Event) error {
			atomic.AddInt32(&count, 1)
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe %d failed: %v", i, err)
		}
		defer func() { _ = sub.Unsubscribe() }()
	}

	event := NewEvent(EventTaskCompleted, "task-executor", nil)
	if err := bus.Publish(ctx, EventTaskCompleted, event); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	deadline := time.After(time.Second)
	for {
		if atomic.LoadInt32(&count) == 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected 3 deliveries, got %d", atomic.LoadInt32(&count))
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestMemoryEventBus_QueueSubscribeRoundRobin(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	defer bus.Close()

	ctx := context.Background()
	var countA, countB int32

	subA, err := bus.QueueSubscribe(EventTaskStarted, "workers", func(ctx context.Context, event *Event) error {
		atomic.AddInt32(&countA, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("queue subscribe A failed: %v", err)
	}
	defer func() { _ = subA.Unsubscribe() }()

	subB, err := bus.QueueSubscribe(EventTaskStarted, "workers", func(ctx context.Context, event *Event) error {
		atomic.AddInt32(&countB, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("queue subscribe B failed: %v", err)
	}
	defer func() { _ = subB.Unsubscribe() }()

	for i := 0; i < 4; i++ {
		event := NewEvent(EventTaskStarted, "task-executor", nil)
		if err := bus.Publish(ctx, EventTaskStarted, event); err != nil {
			t.Fatalf("publish %d failed: %v", i, err)
		}
	}

	deadline := time.After(time.Second)
	for {
		if atomic.LoadInt32(&countA)+atomic.LoadInt32(&countB) == 4 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected 4 total deliveries, got %d", atomic.LoadInt32(&countA)+atomic.LoadInt32(&countB))
		case <-time.After(10 * time.Millisecond):
		}
	}

	if countA == 0 || countB == 0 {
		t.Errorf("expected both queue subscribers to receive events, got A=%d B=%d", countA, countB)
	}
}

func TestMemoryEventBus_CloseRejectsFurtherUse(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	bus.Close()

	if bus.IsConnected() {
		t.Error("expected bus to report disconnected after Close")
	}
	if _, err := bus.Subscribe(EventSessionDeleted, func(context.Context, *Event) error { return nil }); err == nil {
		t.Error("expected Subscribe to fail after Close")
	}
	if err := bus.Publish(context.Background(), EventSessionDeleted, NewEvent(EventSessionDeleted, "test", nil)); err == nil {
		t.Error("expected Publish to fail after Close")
	}
}
