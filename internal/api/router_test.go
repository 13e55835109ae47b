package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/relaycode/taskserver/internal/common/config"
	"github.com/relaycode/taskserver/internal/common/logger"
)

func TestRouter_AuthEnabledProtectsAPIAndStreamNotHealth(t *testing.T) {
	h := newTestHandlers(t)
	r := NewRouter(h, config.AuthConfig{Enabled: true, BearerToken: "secret"}, config.MetricsConfig{}, "/ws", logger.Default())

	health := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, health)
	assert.Equal(t, http.StatusOK, w.Code, "health must stay open even with auth enabled")

	sessions := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, sessions)
	assert.Equal(t, http.StatusUnauthorized, w2.Code)

	sessions.Header.Set("Authorization", "Bearer secret")
	w3 := httptest.NewRecorder()
	r.ServeHTTP(w3, sessions)
	assert.Equal(t, http.StatusOK, w3.Code)
}

func TestRouter_MetricsDisabledServesNotFound(t *testing.T) {
	h := newTestHandlers(t)
	r := NewRouter(h, config.AuthConfig{}, config.MetricsConfig{Enabled: false}, "/ws", logger.Default())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_MetricsEnabledServesPrometheusFormat(t *testing.T) {
	h := newTestHandlers(t)
	r := NewRouter(h, config.AuthConfig{}, config.MetricsConfig{Enabled: true, Path: "/metrics"}, "/ws", logger.Default())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
