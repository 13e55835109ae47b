// Package workspace shells out to git to harvest informational metadata
// about a session's workspace: the current branch, whether the worktree is
// dirty, and a diff --stat summary after a task completes. None of this is
// load-bearing for the Task Executor's state machine; failures are logged
// and ignored, never surfaced as task failures.
package workspace

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/relaycode/taskserver/internal/common/logger"
	"github.com/relaycode/taskserver/internal/task/models"
)

const gitTimeout = 5 * time.Second

// Harvester runs git against a fixed workspace directory.
type Harvester struct {
	dir string
	log *logger.Logger
}

// New returns a Harvester bound to dir, the session's resolved workspace.
func New(dir string, log *logger.Logger) *Harvester {
	if log == nil {
		log = logger.Default()
	}
	return &Harvester{dir: dir, log: log}
}

// Diff returns a best-effort WorkspaceDiff, or nil if dir is not inside a
// git repository or git is unavailable. Errors are logged at debug level
// since an agent workspace need not be a git repository at all.
func (h *Harvester) Diff(ctx context.Context) *models.WorkspaceDiff {
	branch, err := h.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		h.log.WithError(err).Debug("workspace is not a git repository, skipping diff harvest")
		return nil
	}

	status, err := h.run(ctx, "status", "--porcelain")
	if err != nil {
		h.log.WithError(err).Debug("git status failed during diff harvest")
		status = ""
	}

	stat, err := h.run(ctx, "diff", "--stat")
	if err != nil {
		h.log.WithError(err).Debug("git diff --stat failed during diff harvest")
		stat = ""
	}

	return &models.WorkspaceDiff{
		Branch:   strings.TrimSpace(branch),
		Dirty:    strings.TrimSpace(status) != "",
		DiffStat: strings.TrimSpace(stat),
	}
}

func (h *Harvester) run(ctx context.Context, args ...string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "git", args...)
	cmd.Dir = h.dir

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return "", err
	}
	return stdout.String(), nil
}
