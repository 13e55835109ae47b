package workspace

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T, dir string) {
	t.Helper()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		require.NoError(t, cmd.Run(), "git %v", args)
	}
	run("init", "-q")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	run("commit", "--allow-empty", "-q", "-m", "initial")
}

func TestHarvester_Diff_CleanRepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	initRepo(t, dir)

	h := New(dir, nil)
	diff := h.Diff(context.Background())

	require.NotNil(t, diff)
	assert.NotEmpty(t, diff.Branch)
	assert.False(t, diff.Dirty)
}

func TestHarvester_Diff_DirtyRepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	initRepo(t, dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("hello"), 0o644))

	h := New(dir, nil)
	diff := h.Diff(context.Background())

	require.NotNil(t, diff)
	assert.True(t, diff.Dirty)
}

func TestHarvester_Diff_NotAGitRepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()

	h := New(dir, nil)
	diff := h.Diff(context.Background())

	assert.Nil(t, diff)
}
