// Package session implements the Session and Session Manager components:
// a bounded pool of live agent connections, each owning its tasks and its
// per-task event queues, reaped in the background when idle.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/relaycode/taskserver/internal/agent"
	"github.com/relaycode/taskserver/internal/eventbus"
	"github.com/relaycode/taskserver/internal/task/models"
)

// Session is one live agent connection plus the metadata of the tasks
// currently running over it. All state changes are serialised under mu;
// the embedded event bus is independently safe to use after a lookup.
type Session struct {
	mu sync.Mutex

	id        string
	workspace string
	options   models.AgentOptions
	conn      agent.Adapter
	status    models.SessionStatus

	tasks        []string // insertion order preserved
	bus          *eventbus.Bus
	createdAt    time.Time
	lastActivity time.Time
}

// NewForTest constructs a Session bypassing the Manager, for tests in other
// packages (e.g. the Task Executor's own tests) that need a real Session
// without a live Docker/ACP connection.
func NewForTest(id, workspace string, conn agent.Adapter, queueCapacity int) *Session {
	return newSession(id, workspace, models.AgentOptions{}, conn, queueCapacity)
}

func newSession(id, workspace string, options models.AgentOptions, conn agent.Adapter, queueCapacity int) *Session {
	now := time.Now()
	return &Session{
		id:           id,
		workspace:    workspace,
		options:      options,
		conn:         conn,
		status:       models.SessionActive,
		bus:          eventbus.New(queueCapacity),
		createdAt:    now,
		lastActivity: now,
	}
}

// ID returns the session's identity.
func (s *Session) ID() string { return s.id }

// Workspace returns the resolved absolute workspace directory this
// session's agent connection was opened against.
func (s *Session) Workspace() string { return s.workspace }

// Connection returns the underlying agent connection. The caller (the Task
// Executor bound to the one task this session currently runs) owns it for
// the duration of the call; the Session does not serialise access to it
// beyond the SESSION_BUSY check performed by TryAddTask.
func (s *Session) Connection() agent.Adapter { return s.conn }

// Bus returns the session's per-task event bus.
func (s *Session) Bus() *eventbus.Bus { return s.bus }

// AddTask appends taskID to the owned task list and bumps last_activity.
// Unconditional bookkeeping; callers that must enforce one-task-at-a-time
// should use TryAddTask instead.
func (s *Session) AddTask(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, taskID)
	s.lastActivity = time.Now()
}

// TryAddTask atomically checks that the session has no owned task and adds
// taskID, returning false if a task was already running. This is the
// SESSION_BUSY guard: the check and the add happen under the same lock, so
// two concurrent submissions against the same session cannot both succeed.
func (s *Session) TryAddTask(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tasks) > 0 {
		return false
	}
	s.tasks = append(s.tasks, taskID)
	s.lastActivity = time.Now()
	return true
}

// RemoveTask removes taskID (idempotent) and bumps last_activity.
func (s *Session) RemoveTask(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.tasks {
		if t == taskID {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			break
		}
	}
	s.lastActivity = time.Now()
}

// HasTask reports whether taskID is currently owned by this session.
func (s *Session) HasTask(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t == taskID {
			return true
		}
	}
	return false
}

// TaskCount returns the number of tasks currently owned.
func (s *Session) TaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Tasks returns a snapshot copy of the owned task ids, in insertion order.
func (s *Session) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// Touch bumps last_activity without mutating the task list, used by publish.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

// Publish forwards event to the session's bus and bumps last_activity, as
// required by the Session's publish(task_id, event) contract.
func (s *Session) Publish(ctx context.Context, taskID string, event models.Event) {
	s.bus.Publish(ctx, taskID, event)
	s.Touch()
}

// IsIdle reports whether the session has zero owned tasks and its
// last_activity is older than timeout.
func (s *Session) IsIdle(timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks) == 0 && time.Since(s.lastActivity) > timeout
}

// Info returns a read-only snapshot for the HTTP façade's session listing.
func (s *Session) Info() models.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks := make([]string, len(s.tasks))
	copy(tasks, s.tasks)
	return models.SessionInfo{
		SessionID:    s.id,
		Tasks:        tasks,
		Status:       s.status,
		CreatedAt:    s.createdAt,
		LastActivity: s.lastActivity,
	}
}

func (s *Session) setStatus(st models.SessionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = st
}
