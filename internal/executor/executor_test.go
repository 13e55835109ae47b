package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycode/taskserver/internal/agent"
	"github.com/relaycode/taskserver/internal/session"
	"github.com/relaycode/taskserver/internal/task/models"
)

// scriptedAdapter replays a fixed message stream, used to drive the
// executor through the dispatch scenarios in isolation from any real
// agent connection.
type scriptedAdapter struct {
	messages    []agent.Message
	streamErr   error
	queryErr    error
	interrupted bool
	hang        bool
}

func (a *scriptedAdapter) Connect(ctx context.Context, workspace string, opts models.AgentOptions) error {
	return nil
}
func (a *scriptedAdapter) Query(ctx context.Context, prompt string) error { return a.queryErr }
func (a *scriptedAdapter) ReceiveResponse(ctx context.Context) (<-chan agent.Message, <-chan error) {
	messages := make(chan agent.Message)
	errs := make(chan error, 1)
	go func() {
		if a.hang {
			<-ctx.Done()
			return
		}
		if a.streamErr != nil {
			// Leave messages open (never closed): the executor's select
			// must observe the error, not a spurious clean end-of-stream.
			errs <- a.streamErr
			return
		}
		defer close(messages)
		defer close(errs)
		for _, m := range a.messages {
			select {
			case messages <- m:
			case <-ctx.Done():
				return
			}
		}
	}()
	return messages, errs
}
func (a *scriptedAdapter) Interrupt(ctx context.Context) error { a.interrupted = true; return nil }
func (a *scriptedAdapter) Disconnect(ctx context.Context) error { return nil }

func newTestSession(t *testing.T, conn agent.Adapter) *session.Session {
	t.Helper()
	return session.NewForTest("s1", t.TempDir(), conn, 10)
}

func drain(t *testing.T, sess *session.Session, taskID string) []models.Event {
	t.Helper()
	ch, err := sess.Bus().Subscribe(taskID)
	require.NoError(t, err)

	var events []models.Event
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, e)
			if e.IsTerminal() {
				return events
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for executor events")
		}
	}
}

func TestExecutor_HappyPath(t *testing.T) {
	conn := &scriptedAdapter{
		messages: []agent.Message{
			{Kind: agent.MsgAssistant, Content: []agent.ContentBlock{{Kind: agent.BlockText, Text: "hi"}}},
			{Kind: agent.MsgResult, Usage: agent.Usage{TotalTokens: 10, InputTokens: 6, OutputTokens: 4}, NumTurns: 1, DurationMs: 50},
		},
	}
	sess := newTestSession(t, conn)
	exec := New("t1", sess, conn, nil, nil, nil, nil, nil)

	go exec.Execute(context.Background(), "echo hi", 0)

	events := drain(t, sess, "t1")
	require.Len(t, events, 4)
	assert.Equal(t, models.EventMessage, events[0].Type)
	assert.Equal(t, "hi", events[0].Text)
	assert.Equal(t, models.EventProgress, events[1].Type)
	assert.Equal(t, 1, events[1].Progress.Turns)
	assert.Equal(t, models.EventProgress, events[2].Type)
	assert.Equal(t, 10, events[2].Progress.TokensUsed)
	assert.Equal(t, models.EventComplete, events[3].Type)
	assert.Equal(t, 0, events[3].Result.ExitCode)
}

func TestExecutor_StreamErrorYieldsFailedComplete(t *testing.T) {
	conn := &scriptedAdapter{streamErr: assertErr("boom")}
	sess := newTestSession(t, conn)
	exec := New("t1", sess, conn, nil, nil, nil, nil, nil)

	go exec.Execute(context.Background(), "do work", 0)

	events := drain(t, sess, "t1")
	require.Len(t, events, 2)
	assert.Equal(t, models.EventError, events[0].Type)
	assert.Equal(t, models.EventComplete, events[1].Type)
	assert.Equal(t, 1, events[1].Result.ExitCode)
}

func TestExecutor_Timeout(t *testing.T) {
	conn := &scriptedAdapter{hang: true}
	sess := newTestSession(t, conn)
	exec := New("t1", sess, conn, nil, nil, nil, nil, nil)

	go exec.Execute(context.Background(), "hang", 50*time.Millisecond)

	events := drain(t, sess, "t1")
	require.Len(t, events, 2)
	assert.Equal(t, models.EventError, events[0].Type)
	assert.Equal(t, models.EventComplete, events[1].Type)
	assert.Equal(t, []string{"Timeout"}, events[1].Result.Errors)
}

func TestExecutor_FilesModifiedHeuristic(t *testing.T) {
	conn := &scriptedAdapter{
		messages: []agent.Message{
			{Kind: agent.MsgAssistant, Content: []agent.ContentBlock{
				{Kind: agent.BlockToolUse, ToolUseID: "1", ToolName: "Write"},
				{Kind: agent.BlockToolResult, ToolResultForID: "1", ResultContent: "File written successfully"},
			}},
			{Kind: agent.MsgResult, NumTurns: 1},
		},
	}
	sess := newTestSession(t, conn)
	exec := New("t1", sess, conn, nil, nil, nil, nil, nil)

	go exec.Execute(context.Background(), "write a file", 0)

	events := drain(t, sess, "t1")
	var sawFilesModified bool
	for _, e := range events {
		if e.Type == models.EventProgress && e.Progress.FilesModified == 1 {
			sawFilesModified = true
		}
	}
	assert.True(t, sawFilesModified, "a successful write tool result should increment files_modified")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
