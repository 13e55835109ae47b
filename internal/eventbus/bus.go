// Package eventbus implements the per-task bounded event queue described by
// the Event Bus component: lazy creation on first subscribe-or-publish,
// exactly one subscriber per task, FIFO delivery, and silent drop of
// publishes against a queue nobody will ever drain.
package eventbus

import (
	"context"
	"sync"

	apperrors "github.com/relaycode/taskserver/internal/common/errors"
	"github.com/relaycode/taskserver/internal/task/models"
)

const defaultCapacity = 100

// Bus owns the set of per-task queues for a single session. It is the Go
// counterpart of session_manager's task-scoped event_queues map: the Session
// embeds one Bus and serialises add/remove/publish under its own mutex, so
// Bus itself only needs to protect the queue map, not cross-task ordering.
type Bus struct {
	mu       sync.Mutex
	queues   map[string]*queue
	retired  map[string]bool // taskIDs explicitly unsubscribed; further publishes are no-ops
	capacity int
}

type queue struct {
	ch    chan models.Event
	owned bool // true once a subscriber has claimed this queue
}

// New returns an empty Bus whose queues are created with the given bounded
// capacity (defaultCapacity if capacity <= 0).
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Bus{queues: make(map[string]*queue), retired: make(map[string]bool), capacity: capacity}
}

func (b *Bus) getOrCreateLocked(taskID string) *queue {
	q, ok := b.queues[taskID]
	if !ok {
		q = &queue{ch: make(chan models.Event, b.capacity)}
		b.queues[taskID] = q
	}
	return q
}

// Subscribe returns the channel for taskID, creating it lazily if this is the
// first subscribe-or-publish for the task. A second subscribe for a task
// that already has a live subscriber fails with ALREADY_SUBSCRIBED.
func (b *Bus) Subscribe(taskID string) (<-chan models.Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.getOrCreateLocked(taskID)
	if q.owned {
		return nil, apperrors.AlreadySubscribed(taskID)
	}
	q.owned = true
	delete(b.retired, taskID)
	return q.ch, nil
}

// Unsubscribe drops the queue for taskID. Any events still buffered are
// discarded. taskID is marked retired: subsequent publishes for it are
// silent no-ops rather than creating a fresh queue nobody will ever drain,
// since a task's event stream is single-subscriber for its entire lifetime.
func (b *Bus) Unsubscribe(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.queues, taskID)
	b.retired[taskID] = true
}

// Publish enqueues event onto taskID's queue, creating it lazily if this is
// the first publish-or-subscribe seen for the task. If taskID was already
// unsubscribed, the event is dropped immediately. Otherwise, if the queue is
// full, Publish blocks (backpressure) until space frees up or ctx is
// cancelled.
func (b *Bus) Publish(ctx context.Context, taskID string, event models.Event) {
	b.mu.Lock()
	if b.retired[taskID] {
		b.mu.Unlock()
		return
	}
	q := b.getOrCreateLocked(taskID)
	b.mu.Unlock()

	select {
	case q.ch <- event:
	case <-ctx.Done():
	}
}
