package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initBuffer(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})
	return &buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestWithComponentTagsEntries(t *testing.T) {
	buf := initBuffer(t)

	logger := WithComponent("executor")
	logger.Info().Msg("spawned")

	entry := lastEntry(t, buf)
	assert.Equal(t, "executor", entry["component"])
	assert.Equal(t, "spawned", entry["message"])
}

func TestWithClusterTagsEntries(t *testing.T) {
	buf := initBuffer(t)

	logger := WithCluster("demo", "us-east-1")
	logger.Info().Msg("cluster created")

	entry := lastEntry(t, buf)
	assert.Equal(t, "demo", entry["cluster"])
	assert.Equal(t, "us-east-1", entry["region"])
}

func TestWithSessionIDTagsEntries(t *testing.T) {
	buf := initBuffer(t)

	logger := WithSessionID("abc-123")
	logger.Debug().Msg("frame sent")

	entry := lastEntry(t, buf)
	assert.Equal(t, "abc-123", entry["session_id"])
}
