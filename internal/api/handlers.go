package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/relaycode/taskserver/internal/common/errors"
	"github.com/relaycode/taskserver/internal/common/logger"
	"github.com/relaycode/taskserver/internal/events/bus"
	"github.com/relaycode/taskserver/internal/executor"
	"github.com/relaycode/taskserver/internal/session"
	"github.com/relaycode/taskserver/internal/task/models"
	"github.com/relaycode/taskserver/internal/task/runlog"
	"github.com/relaycode/taskserver/internal/workspace"
)

// Config bundles the façade's own tunables, distinct from the Session
// Manager's and Task Executor's.
type Config struct {
	DefaultTaskTimeout time.Duration
	RunDirectory       string
	StreamPathPrefix   string // e.g. "/ws", mounted as {prefix}/tasks/:task_id
}

// Handlers holds everything the façade's HTTP handlers close over: the
// Session Manager, the task registry, the telemetry bus, and version/start
// time for the health check.
type Handlers struct {
	manager   *session.Manager
	registry  *Registry
	telemetry bus.EventBus
	log       *logger.Logger
	cfg       Config

	version   string
	startedAt time.Time
}

// NewHandlers constructs a Handlers bound to manager and registry.
func NewHandlers(manager *session.Manager, registry *Registry, telemetry bus.EventBus, log *logger.Logger, cfg Config, version string) *Handlers {
	if log == nil {
		log = logger.Default()
	}
	return &Handlers{
		manager:   manager,
		registry:  registry,
		telemetry: telemetry,
		log:       log,
		cfg:       cfg,
		version:   version,
		startedAt: time.Now(),
	}
}

// SubmitTask handles POST /api/v1/tasks. It resolves or creates the owning
// session, registers the task, and launches its Executor in the background.
func (h *Handlers) SubmitTask(c *gin.Context) {
	var req submitTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.BadRequest(err.Error()))
		return
	}

	sess, sessionID, err := h.resolveSession(c, req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	if err := h.manager.StartTask(sess, req.TaskID); err != nil {
		_ = c.Error(err)
		return
	}

	if err := h.registry.Register(req.TaskID, sessionID); err != nil {
		sess.RemoveTask(req.TaskID)
		_ = c.Error(err)
		return
	}

	timeout := h.cfg.DefaultTaskTimeout
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}

	harvester := workspace.New(sess.Workspace(), h.log)
	runLog := runlog.Open(h.cfg.RunDirectory, req.TaskID, h.log)
	exec := executor.New(req.TaskID, sess, sess.Connection(), h.log, h.telemetry, harvester, runLog, h.registry)

	go exec.Execute(context.Background(), req.Prompt, timeout)

	c.JSON(http.StatusAccepted, submitTaskResponse{
		TaskID:    req.TaskID,
		SessionID: sessionID,
		Status:    models.TaskRunning,
		StreamURL: fmt.Sprintf("%s/tasks/%s", h.cfg.StreamPathPrefix, req.TaskID),
		CreatedAt: time.Now().UTC(),
	})
}

// resolveSession implements the submit endpoint's session policy: reuse an
// existing session by id when requested, otherwise provision a fresh
// session scoped to this task.
func (h *Handlers) resolveSession(c *gin.Context, req submitTaskRequest) (*session.Session, string, error) {
	if req.Session != nil && req.Session.ReuseExisting && req.Session.SessionID != "" {
		sess, err := h.manager.GetSession(req.Session.SessionID)
		if err != nil {
			return nil, "", err
		}
		return sess, req.Session.SessionID, nil
	}

	sessionID := fmt.Sprintf("session-%s", req.TaskID)

	sess, err := h.manager.CreateSession(c.Request.Context(), sessionID, req.Workspace, req.Options)
	if err != nil {
		return nil, "", err
	}
	return sess, sessionID, nil
}

// TaskStatus handles GET /api/v1/tasks/{task_id}.
func (h *Handlers) TaskStatus(c *gin.Context) {
	taskID := c.Param("task_id")
	task, err := h.registry.Get(taskID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, taskStatusResponse{
		TaskID:    task.TaskID,
		SessionID: task.SessionID,
		Status:    task.Status,
		Progress:  task.Progress,
		Result:    task.Result,
		CreatedAt: task.CreatedAt,
		UpdatedAt: task.UpdatedAt,
	})
}

// InterruptTask handles POST /api/v1/tasks/{task_id}/interrupt.
func (h *Handlers) InterruptTask(c *gin.Context) {
	taskID := c.Param("task_id")

	sessionID, err := h.registry.SessionID(taskID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	sess, err := h.manager.GetSession(sessionID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	if err := sess.Connection().Interrupt(c.Request.Context()); err != nil {
		_ = c.Error(apperrors.InternalError("failed to interrupt task", err))
		return
	}

	if err := h.registry.MarkInterrupted(taskID); err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, interruptResponse{
		TaskID:        taskID,
		Status:        models.TaskInterrupted,
		InterruptedAt: time.Now().UTC(),
	})
}

// ListSessions handles GET /api/v1/sessions.
func (h *Handlers) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, sessionsResponse{Sessions: h.manager.ListSessions()})
}

// DeleteSession handles DELETE /api/v1/sessions/{session_id}.
func (h *Handlers) DeleteSession(c *gin.Context) {
	sessionID := c.Param("session_id")
	if err := h.manager.DeleteSession(c.Request.Context(), sessionID); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Health handles GET /health.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Status:         "ok",
		Version:        h.version,
		ActiveSessions: h.manager.ActiveCount(),
		ActiveTasks:    h.registry.ActiveCount(),
		UptimeSeconds:  int64(time.Since(h.startedAt).Seconds()),
	})
}

// Ready handles GET /ready: 200 while the session pool has headroom, 503
// once it is at MaxConcurrent, so a load balancer stops routing new
// submissions to an instance that can only answer AT_CAPACITY.
func (h *Handlers) Ready(c *gin.Context) {
	if h.manager.ActiveCount() >= h.manager.MaxConcurrent() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "at_capacity"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
