package runlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycode/taskserver/internal/task/models"
)

func TestSink_WriteAndClose(t *testing.T) {
	dir := t.TempDir()
	sink := Open(dir, "t1", nil)

	sink.Write(models.Event{Type: models.EventMessage, TaskID: "t1", Text: "hi"})
	sink.Write(models.Event{Type: models.EventComplete, TaskID: "t1"})
	sink.Close()

	path := filepath.Join(dir, "t1.jsonl")
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 2)

	var first models.Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, models.EventMessage, first.Type)
	assert.Equal(t, "hi", first.Text)
}

func TestSink_OpenWithEmptyDirIsNoOp(t *testing.T) {
	sink := Open("", "t1", nil)
	assert.NotPanics(t, func() {
		sink.Write(models.Event{Type: models.EventMessage})
		sink.Close()
	})
}

func TestSink_OpenUnwritableDirIsNoOp(t *testing.T) {
	sink := Open("/proc/this-should-not-exist/deeply/nested", "t1", nil)
	assert.NotPanics(t, func() {
		sink.Write(models.Event{Type: models.EventMessage})
		sink.Close()
	})
}
