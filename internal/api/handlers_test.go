package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycode/taskserver/internal/agent"
	"github.com/relaycode/taskserver/internal/common/config"
	"github.com/relaycode/taskserver/internal/common/logger"
	"github.com/relaycode/taskserver/internal/events/bus"
	"github.com/relaycode/taskserver/internal/session"
	"github.com/relaycode/taskserver/internal/task/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeAdapter satisfies agent.Adapter with a connection that never
// produces a message, so tasks submitted in tests simply block until the
// executor's own context ends at the task timeout; handler tests only assert on the
// 202/ack path, never on executor completion.
type fakeAdapter struct{}

func (f *fakeAdapter) Connect(ctx context.Context, workspace string, opts models.AgentOptions) error {
	return nil
}
func (f *fakeAdapter) Query(ctx context.Context, prompt string) error { return nil }
func (f *fakeAdapter) ReceiveResponse(ctx context.Context) (<-chan agent.Message, <-chan error) {
	messages := make(chan agent.Message)
	errs := make(chan error)
	go func() {
		<-ctx.Done()
		close(messages)
		close(errs)
	}()
	return messages, errs
}
func (f *fakeAdapter) Interrupt(ctx context.Context) error  { return nil }
func (f *fakeAdapter) Disconnect(ctx context.Context) error { return nil }

func newTestHandlers(t *testing.T) *Handlers {
	t.Helper()
	m := session.NewManager(session.Config{
		MaxConcurrent:      2,
		IdleTimeout:        time.Hour,
		CleanupInterval:    time.Hour,
		EventQueueCapacity: 10,
	}, func() agent.Adapter { return &fakeAdapter{} }, nil, nil)

	registry := NewRegistry()
	telemetry := bus.NewMemoryEventBus(nil)
	return NewHandlers(m, registry, telemetry, logger.Default(), Config{
		DefaultTaskTimeout: time.Minute,
		RunDirectory:       t.TempDir(),
		StreamPathPrefix:   "/ws",
	}, "test")
}

func newTestRouter(t *testing.T) (*gin.Engine, *Handlers) {
	h := newTestHandlers(t)
	r := NewRouter(h, config.AuthConfig{}, config.MetricsConfig{}, "/ws", logger.Default())
	return r, h
}

func TestSubmitTask_ReturnsAcceptedWithStreamURL(t *testing.T) {
	r, _ := newTestRouter(t)
	workspace := t.TempDir()

	body := `{"task_id":"t1","prompt":"do a thing","workspace":"` + workspace + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"stream_url":"/ws/tasks/t1"`)
	assert.Contains(t, w.Body.String(), `"task_id":"t1"`)
}

func TestSubmitTask_DuplicateTaskIDIsRejected(t *testing.T) {
	r, _ := newTestRouter(t)
	workspace := t.TempDir()
	body := `{"task_id":"t1","prompt":"do a thing","workspace":"` + workspace + `"}`

	req1 := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", strings.NewReader(body))
	req1.Header.Set("Content-Type", "application/json")
	w1 := httptest.NewRecorder()
	r.ServeHTTP(w1, req1)
	require.Equal(t, http.StatusAccepted, w1.Code)

	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", strings.NewReader(body))
	req2.Header.Set("Content-Type", "application/json")
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req2)

	assert.Equal(t, http.StatusBadRequest, w2.Code)
	assert.Contains(t, w2.Body.String(), "ALREADY_EXISTS")
}

func TestSubmitTask_InvalidWorkspaceIsBadRequest(t *testing.T) {
	r, _ := newTestRouter(t)
	body := `{"task_id":"t1","prompt":"do a thing","workspace":"/does/not/exist"}`

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_WORKSPACE")
}

func TestSubmitTask_AtCapacityRespondsServiceUnavailable(t *testing.T) {
	h := newTestHandlers(t)
	r := NewRouter(h, config.AuthConfig{}, config.MetricsConfig{}, "/ws", logger.Default())

	ws1, ws2, ws3 := t.TempDir(), t.TempDir(), t.TempDir()
	submit := func(taskID, workspace string) *httptest.ResponseRecorder {
		body := `{"task_id":"` + taskID + `","prompt":"x","workspace":"` + workspace + `"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	require.Equal(t, http.StatusAccepted, submit("t1", ws1).Code)
	require.Equal(t, http.StatusAccepted, submit("t2", ws2).Code)

	w3 := submit("t3", ws3)
	assert.Equal(t, http.StatusServiceUnavailable, w3.Code)
	assert.Contains(t, w3.Body.String(), "AT_CAPACITY")
}

func TestTaskStatus_UnknownTaskIsNotFound(t *testing.T) {
	r, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/missing", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTaskStatus_ReflectsRegisteredTask(t *testing.T) {
	r, h := newTestRouter(t)
	require.NoError(t, h.registry.Register("t1", "s1"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/t1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"RUNNING"`)
}

func TestInterruptTask_UnknownTaskIsNotFound(t *testing.T) {
	r, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/missing/interrupt", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListSessions_ReturnsCreatedSessions(t *testing.T) {
	r, _ := newTestRouter(t)
	workspace := t.TempDir()
	body := `{"task_id":"t1","prompt":"x","workspace":"` + workspace + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(httptest.NewRecorder(), req)

	listReq := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, listReq)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "session-t1")
}

func TestHealth_ReportsOK(t *testing.T) {
	r, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	assert.Contains(t, w.Body.String(), `"active_tasks":0`)
}

func TestHealth_ReportsActiveTaskCount(t *testing.T) {
	r, h := newTestRouter(t)
	require.NoError(t, h.registry.Register("t1", "s1"))
	require.NoError(t, h.registry.Register("t2", "s1"))
	h.registry.Complete("t2", &models.TaskResult{ExitCode: 0, Summary: "completed"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"active_tasks":1`)
}

func TestReady_AtCapacityReturns503(t *testing.T) {
	h := newTestHandlers(t)
	r := NewRouter(h, config.AuthConfig{}, config.MetricsConfig{}, "/ws", logger.Default())

	ws1 := t.TempDir()
	body := `{"task_id":"t1","prompt":"x","workspace":"` + ws1 + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(httptest.NewRecorder(), req)

	ws2 := t.TempDir()
	body2 := `{"task_id":"t2","prompt":"x","workspace":"` + ws2 + `"}`
	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", strings.NewReader(body2))
	req2.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(httptest.NewRecorder(), req2)

	readyReq := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, readyReq)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
