package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogLoggerTextOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelDebug, time.UTC).Module("capture")

	log.Info("chunk handed off",
		String("stream", "acc"),
		Uint64("seq", 3),
		Int("entries", 1000),
		Bool("forced", false))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "INFO  chunk handed off"), out)
	assert.Contains(t, out, "module=capture")
	assert.Contains(t, out, "stream=acc")
	assert.Contains(t, out, "seq=3")
	assert.Contains(t, out, "entries=1000")
	assert.Contains(t, out, "forced=false")
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelWarn, time.UTC)

	log.Trace("trace")
	log.Debug("debug")
	log.Info("info")
	log.Warn("warn")
	log.Error("error")
	log.Log(LogLevelInfo, "explicit info")
	log.Log(LogLevelError, "explicit error")

	out := buf.String()
	assert.NotContains(t, out, "trace")
	assert.NotContains(t, out, "debug")
	assert.NotContains(t, out, "info")
	assert.Contains(t, out, "WARN  warn")
	assert.Contains(t, out, "ERROR error")
	assert.Contains(t, out, "explicit error")
}

func TestTraceLevelName(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	NewSlogLogger(&buf, LogLevelTrace, time.UTC).Trace("deep")
	assert.Equal(t, "TRACE deep\n", buf.String())
}

func TestWithFieldsAreImmutable(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := NewSlogLogger(&buf, LogLevelInfo, time.UTC).Module("recorder")
	session := base.With(String("session_id", "s1"))

	base.Info("plain")
	session.Info("scoped")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.NotContains(t, lines[0], "session_id")
	assert.Contains(t, lines[1], "session_id=s1")
}

func TestSubModuleNaming(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	NewSlogLogger(&buf, LogLevelInfo, time.UTC).Module("recorder").Module("archive").Info("done")
	assert.Contains(t, buf.String(), "module=recorder.archive")
}

func TestWithContextTraceID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelInfo, time.UTC)

	log.WithContext(WithTraceID(t.Context(), "abc-123")).Info("traced")
	log.WithContext(t.Context()).Info("untraced")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "trace_id=abc-123")
	assert.NotContains(t, lines[1], "trace_id")
}

func TestQuotedValues(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	NewSlogLogger(&buf, LogLevelInfo, time.UTC).Info("write failed",
		Error(errors.New("disk is full")),
		String("path", ""),
		Duration("elapsed", 1500*time.Millisecond))

	out := buf.String()
	assert.Contains(t, out, `error="disk is full"`)
	assert.Contains(t, out, `path=""`)
	assert.Contains(t, out, "elapsed=1.5s")
}

func TestCentralLoggerFileOutput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logPath := filepath.Join(dir, "nested", "sensorrec.log")
	var console bytes.Buffer

	cl, err := newCentralLogger(&LoggingConfig{
		DefaultLevel: "debug",
		Timezone:     "UTC",
		Console:      &ConsoleOutput{Enabled: true, Level: "warn"},
		FileOutput:   &FileOutput{Enabled: true, Path: logPath, Level: "debug"},
		ModuleLevels: map[string]string{"capture": "error"},
	}, &console)
	require.NoError(t, err)

	cl.Module("recorder").Debug("session state", String("state", "recording"))
	cl.Module("recorder").Warn("drain timeout")
	cl.Module("capture").Warn("suppressed by module level")
	require.NoError(t, cl.Close())

	assert.Contains(t, console.String(), "drain timeout")
	assert.NotContains(t, console.String(), "session state")

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "session state", first["msg"])
	assert.Equal(t, "recorder", first["module"])
	assert.Equal(t, "recording", first["state"])
	assert.NotContains(t, string(data), "suppressed")
}

func TestCentralLoggerInvalidTimezone(t *testing.T) {
	t.Parallel()

	_, err := NewCentralLogger(&LoggingConfig{Timezone: "Mars/Olympus"})
	require.Error(t, err)

	_, err = NewCentralLogger(nil)
	require.Error(t, err)
}

func TestReopenLogFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logPath := filepath.Join(dir, "app.log")
	var console bytes.Buffer

	cl, err := newCentralLogger(&LoggingConfig{
		Console:    &ConsoleOutput{Enabled: false},
		FileOutput: &FileOutput{Enabled: true, Path: logPath, Level: "info"},
	}, &console)
	require.NoError(t, err)

	cl.Module("a").Info("before")
	require.NoError(t, cl.Flush())
	require.NoError(t, os.Rename(logPath, logPath+".1"))
	require.NoError(t, cl.ReopenLogFile())
	cl.Module("a").Info("after")
	require.NoError(t, cl.Close())

	rotated, err := os.ReadFile(logPath + ".1")
	require.NoError(t, err)
	assert.Contains(t, string(rotated), "before")

	current, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(current), "after")
	assert.NotContains(t, string(current), "before")
}

func TestValidLevel(t *testing.T) {
	t.Parallel()

	assert.True(t, ValidLevel("trace"))
	assert.True(t, ValidLevel("error"))
	assert.False(t, ValidLevel("verbose"))
}
