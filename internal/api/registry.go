package api

import (
	"sync"
	"time"

	apperrors "github.com/relaycode/taskserver/internal/common/errors"
	"github.com/relaycode/taskserver/internal/task/models"
)

// entry is the registry's bookkeeping record for one task: everything the
// façade needs to answer status/interrupt queries without reaching back
// into the executor itself.
type entry struct {
	taskID    string
	sessionID string
	status    models.TaskStatus
	progress  models.TaskProgress
	result    *models.TaskResult
	createdAt time.Time
	updatedAt time.Time
}

// Registry is the process-wide task_id -> entry table described by the
// HTTP/Stream Façade: façade writes, everyone reads, guarded by its own
// mutex (distinct from the Session Manager's).
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewRegistry returns an empty task registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register inserts a new task in RUNNING status. Returns ALREADY_EXISTS if
// taskID is already registered.
func (r *Registry) Register(taskID, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[taskID]; exists {
		return apperrors.AlreadyExists("task", taskID)
	}

	now := time.Now().UTC()
	r.entries[taskID] = &entry{
		taskID:    taskID,
		sessionID: sessionID,
		status:    models.TaskRunning,
		createdAt: now,
		updatedAt: now,
	}
	return nil
}

// Get returns a snapshot of the current task state, or NOT_FOUND.
func (r *Registry) Get(taskID string) (models.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[taskID]
	if !ok {
		return models.Task{}, apperrors.NotFound("task", taskID)
	}
	return e.snapshot(), nil
}

// SessionID returns the owning session id for taskID, or NOT_FOUND.
func (r *Registry) SessionID(taskID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[taskID]
	if !ok {
		return "", apperrors.NotFound("task", taskID)
	}
	return e.sessionID, nil
}

// UpdateProgress overwrites the cached TaskProgress for taskID. A missing
// taskID is a silent no-op: the executor may still be delivering progress
// after a late status query raced its removal.
func (r *Registry) UpdateProgress(taskID string, progress models.TaskProgress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[taskID]
	if !ok {
		return
	}
	e.progress = progress
	e.updatedAt = time.Now().UTC()
}

// Complete records the terminal result and derives the final status from
// its exit code and summary. A missing taskID is a silent no-op. A status
// already set to INTERRUPTED by MarkInterrupted is never downgraded: the
// interrupt call races the executor's own terminal emit, which typically
// observes the interrupt as a generic stream error rather than as
// summary="interrupted", and must not overwrite the status an interrupt
// caller already saw succeed.
func (r *Registry) Complete(taskID string, result *models.TaskResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[taskID]
	if !ok {
		return
	}
	e.result = result
	e.updatedAt = time.Now().UTC()

	switch {
	case e.status == models.TaskInterrupted, result.Summary == "interrupted":
		e.status = models.TaskInterrupted
	case result.ExitCode != 0:
		e.status = models.TaskFailed
	default:
		e.status = models.TaskCompleted
	}
}

// MarkInterrupted sets status=INTERRUPTED ahead of the executor's own
// terminal event, so a status query immediately after a successful
// interrupt call observes it. Returns NOT_FOUND if taskID is unknown.
func (r *Registry) MarkInterrupted(taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[taskID]
	if !ok {
		return apperrors.NotFound("task", taskID)
	}
	e.status = models.TaskInterrupted
	e.updatedAt = time.Now().UTC()
	return nil
}

// ActiveCount returns the number of tasks still in RUNNING status, for the
// façade's health check.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, e := range r.entries {
		if e.status == models.TaskRunning {
			count++
		}
	}
	return count
}

func (e *entry) snapshot() models.Task {
	return models.Task{
		TaskID:    e.taskID,
		SessionID: e.sessionID,
		Status:    e.status,
		Progress:  e.progress,
		Result:    e.result,
		CreatedAt: e.createdAt,
		UpdatedAt: e.updatedAt,
	}
}
