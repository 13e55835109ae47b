package session

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/relaycode/taskserver/internal/agent"
	apperrors "github.com/relaycode/taskserver/internal/common/errors"
	"github.com/relaycode/taskserver/internal/common/logger"
	"github.com/relaycode/taskserver/internal/common/metrics"
	"github.com/relaycode/taskserver/internal/events/bus"
	"github.com/relaycode/taskserver/internal/task/models"
)

// Factory constructs a fresh, unconnected agent connection for a new session.
// Kept as a function rather than a concrete type so the Manager can be tested
// against a fake adapter without touching Docker or ACP.
type Factory func() agent.Adapter

// Manager owns the session table: create/lookup/delete under a concurrency
// cap, plus a background reaper that deletes idle sessions. Grounded on the
// lock-guarded semantics of session_manager.py's SessionManager and the
// mutex-map/cleanup-loop shape of the agent lifecycle manager.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	maxConcurrent   int
	idleTimeout     time.Duration
	cleanupInterval time.Duration
	queueCapacity   int

	newAdapter Factory
	log        *logger.Logger
	telemetry  bus.EventBus

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Config bundles the Manager's tunables, mirroring the session.* and task.*
// configuration groups.
type Config struct {
	MaxConcurrent           int
	IdleTimeout             time.Duration
	CleanupInterval         time.Duration
	EventQueueCapacity      int
}

// NewManager constructs a Manager. Call Start to begin the background
// reaper. telemetry may be nil, in which case lifecycle events are dropped.
func NewManager(cfg Config, newAdapter Factory, log *logger.Logger, telemetry bus.EventBus) *Manager {
	if log == nil {
		log = logger.Default()
	}
	return &Manager{
		sessions:        make(map[string]*Session),
		maxConcurrent:   cfg.MaxConcurrent,
		idleTimeout:     cfg.IdleTimeout,
		cleanupInterval: cfg.CleanupInterval,
		queueCapacity:   cfg.EventQueueCapacity,
		newAdapter:      newAdapter,
		log:             log,
		telemetry:       telemetry,
		stopCh:          make(chan struct{}),
	}
}

// publishLifecycle is a no-op when no telemetry bus is configured.
func (m *Manager) publishLifecycle(eventType string, data map[string]interface{}) {
	if m.telemetry == nil {
		return
	}
	evt := bus.NewEvent(eventType, "session-manager", data)
	if err := m.telemetry.Publish(context.Background(), eventType, evt); err != nil {
		m.log.WithError(err).Warn("failed to publish lifecycle event")
	}
}

// Start launches the background reaper. Safe to call once.
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.reapLoop()
}

// Shutdown cancels the reaper, then disconnects and drops every session.
func (m *Manager) Shutdown(ctx context.Context) {
	close(m.stopCh)
	m.wg.Wait()

	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		if err := s.conn.Disconnect(ctx); err != nil {
			m.log.WithSessionID(s.id).WithError(err).Warn("disconnect during shutdown failed")
		}
	}
}

// CreateSession opens an agent connection and registers a new session under
// id. Fails with ALREADY_EXISTS if id is live, AT_CAPACITY if the pool is
// full, or INVALID_WORKSPACE if workspace does not resolve to an existing
// directory. A failed connect leaves the table unchanged.
func (m *Manager) CreateSession(ctx context.Context, id, workspace string, options models.AgentOptions) (*Session, error) {
	absWorkspace, err := resolveWorkspace(workspace)
	if err != nil {
		return nil, apperrors.InvalidWorkspace(workspace)
	}

	m.mu.Lock()
	if _, exists := m.sessions[id]; exists {
		m.mu.Unlock()
		return nil, apperrors.AlreadyExists("session", id)
	}
	if len(m.sessions) >= m.maxConcurrent {
		m.mu.Unlock()
		return nil, apperrors.AtCapacity(m.maxConcurrent)
	}
	// Reserve the slot under the mutex so a simultaneous create for the same
	// id is serialised: the first caller to reach here wins, and from this
	// point every other create for the id sees ALREADY_EXISTS, since the
	// placeholder already occupies it. The placeholder also counts against
	// capacity while connecting outside the lock, since connect may be slow.
	m.sessions[id] = nil
	m.mu.Unlock()

	conn := m.newAdapter()
	if err := conn.Connect(ctx, absWorkspace, options); err != nil {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		return nil, apperrors.ServiceUnavailable("agent connection: " + err.Error())
	}

	s := newSession(id, absWorkspace, options, conn, m.queueCapacity)

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.log.WithSessionID(id).Info("session created")
	m.publishLifecycle(bus.EventSessionCreated, map[string]interface{}{"session_id": id, "workspace": absWorkspace})
	metrics.ActiveSessions.Set(float64(m.ActiveCount()))
	return s, nil
}

// GetSession returns the session for id, or NOT_FOUND.
func (m *Manager) GetSession(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s == nil {
		return nil, apperrors.NotFound("session", id)
	}
	return s, nil
}

// ListSessions returns a read-only snapshot of every live session.
func (m *Manager) ListSessions() []models.SessionInfo {
	m.mu.Lock()
	ids := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if s != nil {
			ids = append(ids, s)
		}
	}
	m.mu.Unlock()

	out := make([]models.SessionInfo, 0, len(ids))
	for _, s := range ids {
		out = append(out, s.Info())
	}
	return out
}

// ActiveCount returns the number of live sessions.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// MaxConcurrent returns the configured session cap.
func (m *Manager) MaxConcurrent() int { return m.maxConcurrent }

// DeleteSession disconnects the agent and removes the session from the
// table. Disconnect errors are logged, not propagated; the session is
// removed regardless. Fails with NOT_FOUND if absent.
func (m *Manager) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok || s == nil {
		m.mu.Unlock()
		return apperrors.NotFound("session", id)
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	s.setStatus(models.SessionTerminated)
	if err := s.conn.Disconnect(ctx); err != nil {
		m.log.WithSessionID(id).WithError(err).Warn("disconnect failed during delete")
	}
	m.publishLifecycle(bus.EventSessionDeleted, map[string]interface{}{"session_id": id})
	metrics.ActiveSessions.Set(float64(m.ActiveCount()))
	return nil
}

// StartTask registers taskID against the session, rejecting a second
// concurrent task on the same session with SESSION_BUSY. The check-and-add
// is atomic at the Session level, so two concurrent submissions against the
// same session cannot both win. The add runs under the manager mutex and
// fails with NOT_FOUND if the session has already left the table, so it
// cannot interleave with the reaper's idle check and removal.
func (m *Manager) StartTask(session *Session, taskID string) error {
	m.mu.Lock()
	if current, ok := m.sessions[session.ID()]; !ok || current != session {
		m.mu.Unlock()
		return apperrors.NotFound("session", session.ID())
	}
	added := session.TryAddTask(taskID)
	m.mu.Unlock()
	if !added {
		return apperrors.SessionBusy(session.ID(), taskID)
	}
	m.publishLifecycle(bus.EventTaskStarted, map[string]interface{}{"session_id": session.ID(), "task_id": taskID})
	metrics.ActiveTasks.Inc()
	return nil
}

func (m *Manager) reapLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.reapIdleSessions()
		}
	}
}

// reapIdleSessions selects and removes idle sessions under the manager
// mutex, so a session that reacquires a task between the idle check and the
// removal step cannot be reaped out from under it.
func (m *Manager) reapIdleSessions() {
	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if s == nil {
			continue
		}
		if s.IsIdle(m.idleTimeout) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, s := range idle {
		s.setStatus(models.SessionTerminated)
		if err := s.conn.Disconnect(ctx); err != nil {
			m.log.WithSessionID(s.ID()).WithError(err).Warn("disconnect failed during reap")
		}
		m.log.WithSessionID(s.ID()).Info("session reaped")
		m.publishLifecycle(bus.EventSessionDeleted, map[string]interface{}{"session_id": s.ID(), "reason": "idle"})
	}
	if len(idle) > 0 {
		metrics.ActiveSessions.Set(float64(m.ActiveCount()))
	}
}

func resolveWorkspace(workspace string) (string, error) {
	abs, err := filepath.Abs(workspace)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return "", os.ErrNotExist
	}
	return abs, nil
}
