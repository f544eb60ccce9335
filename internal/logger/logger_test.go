package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("bogus"))
}

func TestNewJSONToFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "sb.log")
	l, err := New(Config{Level: "debug", Format: "json", Output: out})
	require.NoError(t, err)
	l.Info("sprint transitioned", zap.String("sprint_id", "s1"))
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "sprint transitioned", entry["msg"])
	assert.Equal(t, "s1", entry["sprint_id"])
	assert.Equal(t, "info", entry["level"])
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l := zap.NewExample()
	assert.Same(t, l, OrNop(l))
}
