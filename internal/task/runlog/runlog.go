// Package runlog writes a per-task JSON-lines tee of the raw event stream
// under a configurable run directory, for post-hoc debugging. It taps the
// stream at the Task Executor's publish path rather than subscribing to the
// Event Bus, since the bus allows exactly one subscriber and the run log
// must never contend with the client-facing one for that slot.
package runlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/relaycode/taskserver/internal/common/logger"
	"github.com/relaycode/taskserver/internal/task/models"
)

// Sink appends one JSON line per event to a per-task log file.
type Sink struct {
	mu   sync.Mutex
	f    *os.File
	log  *logger.Logger
}

// Open creates (or truncates) <dir>/<taskID>.jsonl. A failure to create the
// file is logged and yields a Sink whose Write is a no-op: run logging is
// informational and must never block or fail a task.
func Open(dir, taskID string, log *logger.Logger) *Sink {
	if log == nil {
		log = logger.Default()
	}
	if dir == "" {
		return &Sink{log: log}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.WithError(err).Warn("failed to create run directory")
		return &Sink{log: log}
	}

	path := filepath.Join(dir, fmt.Sprintf("%s.jsonl", taskID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		log.WithError(err).Warn("failed to open run log file")
		return &Sink{log: log}
	}
	return &Sink{f: f, log: log}
}

// Write appends event as one JSON line. Errors are logged, never returned:
// the run log is a side channel, not part of the task's success path.
func (s *Sink) Write(event models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		s.log.WithError(err).Warn("failed to marshal event for run log")
		return
	}
	if _, err := s.f.Write(append(data, '\n')); err != nil {
		s.log.WithError(err).Warn("failed to write to run log")
	}
}

// Close closes the underlying file, if one was opened.
func (s *Sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f != nil {
		_ = s.f.Close()
		s.f = nil
	}
}
