package api

import (
	"time"

	"github.com/relaycode/taskserver/internal/task/models"
)

// submitTaskRequest is the POST /api/v1/tasks request body.
type submitTaskRequest struct {
	TaskID    string               `json:"task_id" binding:"required"`
	Prompt    string               `json:"prompt" binding:"required"`
	Workspace string               `json:"workspace" binding:"required"`
	Options   models.AgentOptions  `json:"options"`
	Session   *submitSessionOption `json:"session"`
	TimeoutSeconds int             `json:"timeout_seconds"`
}

// submitSessionOption lets a caller reuse an existing session instead of
// implicitly provisioning one scoped to the task.
type submitSessionOption struct {
	SessionID     string `json:"session_id"`
	ReuseExisting bool   `json:"reuse_existing"`
}

type submitTaskResponse struct {
	TaskID    string            `json:"task_id"`
	SessionID string            `json:"session_id"`
	Status    models.TaskStatus `json:"status"`
	StreamURL string            `json:"stream_url"`
	CreatedAt time.Time         `json:"created_at"`
}

type taskStatusResponse struct {
	TaskID    string              `json:"task_id"`
	SessionID string              `json:"session_id"`
	Status    models.TaskStatus   `json:"status"`
	Progress  models.TaskProgress `json:"progress"`
	Result    *models.TaskResult  `json:"result,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

type interruptResponse struct {
	TaskID        string            `json:"task_id"`
	Status        models.TaskStatus `json:"status"`
	InterruptedAt time.Time         `json:"interrupted_at"`
}

type sessionsResponse struct {
	Sessions []models.SessionInfo `json:"sessions"`
}

type healthResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	ActiveSessions int    `json:"active_sessions"`
	ActiveTasks    int    `json:"active_tasks"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
}
