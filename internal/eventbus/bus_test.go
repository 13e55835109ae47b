package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycode/taskserver/internal/task/models"
)

func TestBus_PublishThenSubscribeDelivers(t *testing.T) {
	b := New(4)
	ctx := context.Background()

	b.Publish(ctx, "t1", models.Event{Type: models.EventMessage, Text: "hi"})

	ch, err := b.Subscribe("t1")
	require.NoError(t, err)

	select {
	case event := <-ch:
		assert.Equal(t, "hi", event.Text)
	case <-time.After(time.Second):
		t.Fatal("expected buffered event to be delivered")
	}
}

func TestBus_SecondSubscribeFails(t *testing.T) {
	b := New(4)

	_, err := b.Subscribe("t1")
	require.NoError(t, err)

	_, err = b.Subscribe("t1")
	require.Error(t, err)
}

func TestBus_PublishAfterUnsubscribeIsNoOp(t *testing.T) {
	b := New(1)
	ctx := context.Background()

	ch, err := b.Subscribe("t1")
	require.NoError(t, err)
	b.Unsubscribe("t1")

	// Regression: before the retired map existed, this recreated a queue
	// nobody would ever drain. Publish enough events to exceed capacity
	// several times over; none of this should block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(ctx, "t1", models.Event{Type: models.EventMessage})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish after Unsubscribe blocked; expected a silent no-op")
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("unsubscribed channel should not receive further events")
		}
	default:
	}
}

func TestBus_ResubscribeAfterUnsubscribeSucceeds(t *testing.T) {
	b := New(4)

	_, err := b.Subscribe("t1")
	require.NoError(t, err)
	b.Unsubscribe("t1")

	_, err = b.Subscribe("t1")
	assert.NoError(t, err, "a retired task id must be resubscribable with a fresh queue")
}

func TestBus_PublishBlocksUntilContextCancelledWhenFull(t *testing.T) {
	b := New(1)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := b.Subscribe("t1")
	require.NoError(t, err)

	b.Publish(context.Background(), "t1", models.Event{Type: models.EventMessage})

	start := time.Now()
	b.Publish(ctx, "t1", models.Event{Type: models.EventMessage})
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}
