// Package models defines the data types shared by the Session Manager,
// Task Executor, Event Bus, and HTTP/Stream Façade.
package models

import "time"

// SessionStatus is the lifecycle state of a Session.
type SessionStatus string

const (
	SessionActive     SessionStatus = "ACTIVE"
	SessionIdle       SessionStatus = "IDLE"
	SessionTerminated SessionStatus = "TERMINATED"
)

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskPending     TaskStatus = "PENDING"
	TaskRunning     TaskStatus = "RUNNING"
	TaskCompleted   TaskStatus = "COMPLETED"
	TaskFailed      TaskStatus = "FAILED"
	TaskInterrupted TaskStatus = "INTERRUPTED"
)

// AgentOptions configures the backend agent connection opened for a session.
type AgentOptions struct {
	AllowedTools   []string          `json:"allowed_tools,omitempty"`
	PermissionMode string            `json:"permission_mode,omitempty"`
	MaxTurns       int               `json:"max_turns,omitempty"`
	Model          string            `json:"model,omitempty"`
	Cwd            string            `json:"cwd,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
}

// TaskProgress is a mutable snapshot of a task's execution progress.
// turns and elapsed_time_ms are monotonic; tokens_* are overwritten
// (not accumulated) once the backend's authoritative result arrives.
type TaskProgress struct {
	Turns           int `json:"turns"`
	TokensUsed      int `json:"tokens_used"`
	TokensInput     int `json:"tokens_input"`
	TokensOutput    int `json:"tokens_output"`
	FilesModified   int `json:"files_modified"`
	ElapsedTimeMs   int64 `json:"elapsed_time_ms"`
}

// TaskResult is the terminal outcome of a task.
type TaskResult struct {
	ExitCode int      `json:"exit_code"`
	Summary  string   `json:"summary"`
	Errors   []string `json:"errors,omitempty"`

	// WorkspaceDiff is informational git metadata harvested from the
	// session's workspace after the task finished. Nil when the workspace
	// is not a git repository or git is unavailable; a failed git status or
	// diff --stat leaves the matching field empty. Absence carries no
	// meaning about the task itself.
	WorkspaceDiff *WorkspaceDiff `json:"workspace_diff,omitempty"`
}

// WorkspaceDiff summarizes the git state of a session's workspace,
// harvested by internal/workspace after a task completes.
type WorkspaceDiff struct {
	Branch      string `json:"branch"`
	Dirty       bool   `json:"dirty"`
	DiffStat    string `json:"diff_stat,omitempty"`
}

// Task is one prompt-to-completion execution bound to a session.
type Task struct {
	TaskID    string       `json:"task_id"`
	SessionID string       `json:"session_id"`
	Status    TaskStatus   `json:"status"`
	Progress  TaskProgress `json:"progress"`
	Result    *TaskResult  `json:"result,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// EventType tags the variant carried by an Event.
type EventType string

const (
	EventMessage    EventType = "MESSAGE"
	EventToolUse    EventType = "TOOL_USE"
	EventToolResult EventType = "TOOL_RESULT"
	EventProgress   EventType = "PROGRESS"
	EventComplete   EventType = "COMPLETE"
	EventError      EventType = "ERROR"
)

// MessageKind tags the sub-kind of a MESSAGE event.
type MessageKind string

const (
	MessageAssistantText MessageKind = "assistant-text"
	MessageThinking      MessageKind = "thinking"
	MessageUser          MessageKind = "user"
	MessageSystem        MessageKind = "system"
)

// Event is the single type emitted by the Task Executor onto a task's
// Event Bus queue. Exactly one field set is populated, selected by Type.
type Event struct {
	Type      EventType    `json:"type"`
	TaskID    string       `json:"task_id"`
	Timestamp time.Time    `json:"timestamp"`

	// MESSAGE fields.
	MessageKind MessageKind `json:"message_kind,omitempty"`
	Text        string      `json:"text,omitempty"`
	Subtype     string      `json:"subtype,omitempty"`
	Data        any         `json:"data,omitempty"`

	// TOOL_USE fields.
	ToolID    string `json:"tool_id,omitempty"`
	ToolName  string `json:"tool_name,omitempty"`
	ToolInput any    `json:"tool_input,omitempty"`

	// TOOL_RESULT fields.
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`

	// PROGRESS fields.
	Progress *TaskProgress `json:"progress,omitempty"`

	// COMPLETE fields.
	Result *TaskResult `json:"result,omitempty"`

	// ERROR fields.
	Message string `json:"message,omitempty"`
}

// IsTerminal reports whether this event type ends a task's stream.
func (e *Event) IsTerminal() bool {
	return e.Type == EventComplete
}

// SessionInfo is the read-only snapshot returned by the Session Manager's
// listing operations.
type SessionInfo struct {
	SessionID    string        `json:"session_id"`
	Tasks        []string      `json:"tasks"`
	Status       SessionStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	LastActivity time.Time     `json:"last_activity"`
}
