// Package executor implements the Task Executor: it drives one task from
// prompt to terminal event over a session's agent connection, normalising
// the agent's heterogeneous message stream into the typed Event union and
// tracking TaskProgress. Grounded on task_executor.py's exact dispatch order,
// overwrite-vs-accumulate progress semantics, and files-modified heuristic.
package executor

import (
	"context"
	"strings"
	"time"

	"github.com/relaycode/taskserver/internal/agent"
	"github.com/relaycode/taskserver/internal/common/logger"
	"github.com/relaycode/taskserver/internal/common/metrics"
	"github.com/relaycode/taskserver/internal/events/bus"
	"github.com/relaycode/taskserver/internal/session"
	"github.com/relaycode/taskserver/internal/task/models"
	"github.com/relaycode/taskserver/internal/task/runlog"
	"github.com/relaycode/taskserver/internal/workspace"
)

// successSubstrings are the verbatim, case-insensitive markers the source
// implementation used to detect a successful file write from a tool result's
// textual content. Heuristic and wording-dependent; preserved as-is.
var successSubstrings = []string{"written successfully", "modified"}

// StatusSink lets the Task Executor keep the HTTP façade's task registry in
// sync with progress and the terminal result, without the executor package
// importing the façade's registry type.
type StatusSink interface {
	UpdateProgress(taskID string, progress models.TaskProgress)
	Complete(taskID string, result *models.TaskResult)
}

// Executor drives a single task. One Executor instance is used per task and
// discarded afterward.
type Executor struct {
	taskID    string
	session   *session.Session
	conn      agent.Adapter
	log       *logger.Logger
	telemetry bus.EventBus
	harvester *workspace.Harvester
	runlog    *runlog.Sink
	status    StatusSink
}

// New constructs an Executor bound to taskID and sess. conn is the agent
// connection to drive; it is normally sess.Connection(), passed explicitly
// so tests can substitute a fake without a full Session. telemetry,
// harvester, runLog, and status may all be nil/zero-value, in which case
// lifecycle events are dropped, no git diff metadata is attached, nothing
// is teed to disk, and the registry is not updated mid-flight.
func New(taskID string, sess *session.Session, conn agent.Adapter, log *logger.Logger, telemetry bus.EventBus, harvester *workspace.Harvester, runLog *runlog.Sink, status StatusSink) *Executor {
	if log == nil {
		log = logger.Default()
	}
	return &Executor{taskID: taskID, session: sess, conn: conn, log: log.WithTaskID(taskID), telemetry: telemetry, harvester: harvester, runlog: runLog, status: status}
}

// Execute runs the task to completion, publishing events onto the session's
// bus as it goes. It always removes the task from its session before
// returning, on every exit path. timeout bounds the full call from the first
// instant; a zero timeout means no bound.
func (e *Executor) Execute(ctx context.Context, prompt string, timeout time.Duration) {
	defer e.session.RemoveTask(e.taskID)
	if e.runlog != nil {
		defer e.runlog.Close()
	}

	start := time.Now()
	progress := models.TaskProgress{}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := e.conn.Query(ctx, prompt); err != nil {
		e.emitError(err.Error())
		e.emitComplete(&models.TaskResult{ExitCode: 1, Errors: []string{err.Error()}}, start)
		return
	}

	messages, errs := e.conn.ReceiveResponse(ctx)

	for {
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				e.emitError("timed out")
				e.emitComplete(&models.TaskResult{ExitCode: 1, Summary: "timeout", Errors: []string{"Timeout"}}, start)
			} else {
				// Context cancelled for a reason other than timeout (server
				// shutdown, or a caller-supplied cancellation). An interrupt
				// request itself flows through the agent connection and
				// surfaces as a stream error on errs below, not here.
				e.emitComplete(&models.TaskResult{ExitCode: 1, Summary: "interrupted"}, start)
			}
			return

		case err, ok := <-errs:
			if !ok {
				continue
			}
			e.emitError(err.Error())
			e.emitComplete(&models.TaskResult{ExitCode: 1, Errors: []string{err.Error()}}, start)
			return

		case msg, ok := <-messages:
			if !ok {
				// Stream ended without an explicit Result message: treat as
				// a clean, if unusual, completion.
				e.emitComplete(&models.TaskResult{ExitCode: 0, Summary: "completed"}, start)
				return
			}

			done := e.handleMessage(ctx, &progress, msg)
			if done {
				e.emitComplete(&models.TaskResult{
					ExitCode: 0,
					Summary:  "completed successfully",
				}, start)
				return
			}
		}
	}
}

// handleMessage classifies one message from the agent stream and emits the
// corresponding events. It returns true when msg was the terminal Result
// message and the caller should stop consuming the stream.
func (e *Executor) handleMessage(ctx context.Context, progress *models.TaskProgress, msg agent.Message) bool {
	switch msg.Kind {
	case agent.MsgAssistant:
		e.handleAssistant(ctx, progress, msg)
	case agent.MsgUser:
		e.emit(ctx, models.Event{
			Type:        models.EventMessage,
			MessageKind: models.MessageUser,
			Text:        msg.UserContent,
		})
	case agent.MsgSystem:
		e.emit(ctx, models.Event{
			Type:        models.EventMessage,
			MessageKind: models.MessageSystem,
			Subtype:     msg.Subtype,
			Data:        msg.Data,
		})
	case agent.MsgResult:
		e.handleResult(ctx, progress, msg)
		return true
	}
	return false
}

// handleAssistant increments progress.turns, emits one event per content
// block, and emits a PROGRESS snapshot once the message has been drained.
func (e *Executor) handleAssistant(ctx context.Context, progress *models.TaskProgress, msg agent.Message) {
	progress.Turns++

	for _, block := range msg.Content {
		switch block.Kind {
		case agent.BlockText:
			e.emit(ctx, models.Event{
				Type:        models.EventMessage,
				MessageKind: models.MessageAssistantText,
				Text:        block.Text,
			})
		case agent.BlockThinking:
			e.emit(ctx, models.Event{
				Type:        models.EventMessage,
				MessageKind: models.MessageThinking,
				Text:        block.Text,
			})
		case agent.BlockToolUse:
			e.emit(ctx, models.Event{
				Type:      models.EventToolUse,
				ToolID:    block.ToolUseID,
				ToolName:  block.ToolName,
				ToolInput: block.ToolInput,
			})
		case agent.BlockToolResult:
			e.emit(ctx, models.Event{
				Type:      models.EventToolResult,
				ToolUseID: block.ToolResultForID,
				Content:   block.ResultContent,
				IsError:   block.IsError,
			})
			if !block.IsError && containsSuccessMarker(block.ResultContent) {
				progress.FilesModified++
			}
		}
	}

	e.emitProgress(ctx, progress)
}

// handleResult overwrites the authoritative totals carried by the terminal
// Result message: tokens and turns are overwritten, not accumulated.
func (e *Executor) handleResult(ctx context.Context, progress *models.TaskProgress, msg agent.Message) {
	progress.TokensUsed = msg.Usage.TotalTokens
	progress.TokensInput = msg.Usage.InputTokens
	progress.TokensOutput = msg.Usage.OutputTokens
	progress.Turns = msg.NumTurns
	progress.ElapsedTimeMs = msg.DurationMs
	e.emitProgress(ctx, progress)
}

func containsSuccessMarker(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range successSubstrings {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func (e *Executor) emit(ctx context.Context, event models.Event) {
	event.TaskID = e.taskID
	event.Timestamp = time.Now().UTC()
	if e.runlog != nil {
		e.runlog.Write(event)
	}
	e.session.Publish(ctx, e.taskID, event)
}

func (e *Executor) emitProgress(ctx context.Context, progress *models.TaskProgress) {
	snapshot := *progress
	e.emit(ctx, models.Event{Type: models.EventProgress, Progress: &snapshot})
	if e.status != nil {
		e.status.UpdateProgress(e.taskID, snapshot)
	}
}

// emitError and emitComplete always publish through a fresh, uncancelled
// context. ctx may already be cancelled by the time either is called
// (timeout, shutdown, interrupt), and the session bus's Publish races a
// cancelled ctx against the buffered send — letting these terminal-path
// events go out on the caller's ctx would silently drop them instead of
// delivering the task's required final event.
func (e *Executor) emitError(message string) {
	e.log.Warn("task stream error: " + message)
	e.emit(context.Background(), models.Event{Type: models.EventError, Message: message})
}

func (e *Executor) emitComplete(result *models.TaskResult, start time.Time) {
	if e.harvester != nil {
		// Use a fresh context: ctx may already be cancelled (timeout,
		// shutdown) by the time the terminal result is known, but the
		// harvest itself is independent, best-effort bookkeeping.
		result.WorkspaceDiff = e.harvester.Diff(context.Background())
	}
	e.emit(context.Background(), models.Event{Type: models.EventComplete, Result: result})
	if e.status != nil {
		e.status.Complete(e.taskID, result)
	}
	e.publishLifecycle(result)
	e.recordMetrics(result, time.Since(start))
}

// publishLifecycle fires the coarse task.completed/task.failed/
// task.interrupted telemetry event matching the terminal result, distinct
// from the per-task COMPLETE event delivered over the session's bus.
func (e *Executor) publishLifecycle(result *models.TaskResult) {
	if e.telemetry == nil {
		return
	}
	eventType := bus.EventTaskCompleted
	switch {
	case result.Summary == "interrupted":
		eventType = bus.EventTaskInterrupted
	case result.ExitCode != 0:
		eventType = bus.EventTaskFailed
	}
	evt := bus.NewEvent(eventType, "task-executor", map[string]interface{}{
		"task_id":    e.taskID,
		"session_id": e.session.ID(),
		"exit_code":  result.ExitCode,
	})
	if err := e.telemetry.Publish(context.Background(), eventType, evt); err != nil {
		e.log.WithError(err).Warn("failed to publish task lifecycle event")
	}
}

// recordMetrics observes the terminal outcome counter and duration histogram.
func (e *Executor) recordMetrics(result *models.TaskResult, elapsed time.Duration) {
	outcome := "completed"
	switch {
	case result.Summary == "interrupted":
		outcome = "interrupted"
	case result.ExitCode != 0:
		outcome = "failed"
	}
	metrics.RecordTaskOutcome(outcome, elapsed.Seconds())
	metrics.ActiveTasks.Dec()
}
