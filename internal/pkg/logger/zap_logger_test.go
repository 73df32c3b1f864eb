package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsolatedLogger_WritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.log")
	l := NewIsolatedLogger(path)

	l.Info("ChatService", "stream started", map[string]interface{}{"model": "llama3.2:latest"})
	l.Debug("ChatService", "below file level", nil)
	l.Error("ChatService", "stream failed", map[string]interface{}{"error": "boom"})
	_ = l.Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "stream started", entry["message"])
	assert.Equal(t, "ChatService", entry["module"])
	assert.Contains(t, entry, "timestamp")
	assert.Equal(t, "llama3.2:latest", entry["details"].(map[string]interface{})["model"])

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "boom", entry["error_ref"])
}

func TestNopLogger(t *testing.T) {
	var l ILogger = NewNopLogger()
	l.Warn("x", "y", nil)
	assert.NoError(t, l.Sync())
}
