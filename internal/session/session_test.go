package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycode/taskserver/internal/agent"
	"github.com/relaycode/taskserver/internal/task/models"
)

// fakeAdapter is a minimal agent.Adapter for tests that never touches
// Docker or ACP.
type fakeAdapter struct {
	connectErr error
}

func (f *fakeAdapter) Connect(ctx context.Context, workspace string, opts models.AgentOptions) error {
	return f.connectErr
}
func (f *fakeAdapter) Query(ctx context.Context, prompt string) error { return nil }
func (f *fakeAdapter) ReceiveResponse(ctx context.Context) (<-chan agent.Message, <-chan error) {
	messages := make(chan agent.Message)
	errs := make(chan error)
	close(messages)
	close(errs)
	return messages, errs
}
func (f *fakeAdapter) Interrupt(ctx context.Context) error  { return nil }
func (f *fakeAdapter) Disconnect(ctx context.Context) error { return nil }

func TestSession_TryAddTask(t *testing.T) {
	s := newSession("s1", "/tmp", models.AgentOptions{}, &fakeAdapter{}, 10)

	assert.True(t, s.TryAddTask("t1"))
	assert.False(t, s.TryAddTask("t2"), "a second concurrent task must be rejected")

	s.RemoveTask("t1")
	assert.True(t, s.TryAddTask("t2"), "the slot frees up once the first task is removed")
}

func TestSession_IsIdle(t *testing.T) {
	s := newSession("s1", "/tmp", models.AgentOptions{}, &fakeAdapter{}, 10)
	require.True(t, s.IsIdle(0))

	s.TryAddTask("t1")
	assert.False(t, s.IsIdle(0), "a session with an owned task is never idle")
}

func TestSession_Info(t *testing.T) {
	s := newSession("s1", "/ws", models.AgentOptions{}, &fakeAdapter{}, 10)
	s.TryAddTask("t1")

	info := s.Info()
	assert.Equal(t, "s1", info.SessionID)
	assert.Equal(t, []string{"t1"}, info.Tasks)
	assert.Equal(t, models.SessionActive, info.Status)
}
