package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	settings, err := Load(writeConfig(t, "debug: false\n"), nil)
	require.NoError(t, err)

	assert.Equal(t, "recordings", settings.Recorder.OutputDir)
	assert.Equal(t, DefaultDrainTimeout, settings.Recorder.DrainTimeout)
	assert.Equal(t, -1, settings.Recorder.CompressionLevel)

	require.Len(t, settings.Streams, 3)
	camera, ok := settings.StreamByName("camera")
	require.True(t, ok)
	assert.Equal(t, StreamKindImage, camera.Kind)
	assert.Equal(t, 3, camera.Planes)
	assert.Equal(t, []int{19200, 4800, 4800}, camera.PlaneBytes)
	assert.Equal(t, DefaultBlockTimeout, camera.BlockTimeout)

	acc, ok := settings.StreamByName("acc")
	require.True(t, ok)
	assert.Equal(t, DefaultIMUChunkSize, acc.Capacity)
	assert.Equal(t, BackpressureGrow, acc.Backpressure)

	assert.Equal(t, 30.0, settings.Simulation.CameraFPS)
	assert.Equal(t, "info", settings.Logging.DefaultLevel)
	require.NotNil(t, settings.Logging.Console)
	assert.True(t, settings.Logging.Console.Enabled)
	assert.Same(t, settings, GetSettings())
}

func TestLoadConfigFileOverrides(t *testing.T) {
	path := writeConfig(t, `
recorder:
  output_dir: /tmp/out
  archive_dir: /tmp/archives
  drain_timeout: 3s
  compression_level: 9
streams:
  - name: acc
    kind: inertial
    capacity: 500
    backpressure: block
    block_timeout: 100ms
`)

	settings, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/out", settings.Recorder.OutputDir)
	assert.Equal(t, 3*time.Second, settings.Recorder.DrainTimeout)
	assert.Equal(t, 9, settings.Recorder.CompressionLevel)
	require.Len(t, settings.Streams, 1)
	assert.Equal(t, 500, settings.Streams[0].Capacity)
	assert.Equal(t, BackpressureBlock, settings.Streams[0].Backpressure)
	assert.Equal(t, 100*time.Millisecond, settings.Streams[0].BlockTimeout)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("SENSORREC_RECORDER_OUTPUT_DIR", "/data/rec")
	t.Setenv("SENSORREC_RECORDER_DRAIN_TIMEOUT", "2s")

	settings, err := Load(writeConfig(t, "debug: false\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, "/data/rec", settings.Recorder.OutputDir)
	assert.Equal(t, 2*time.Second, settings.Recorder.DrainTimeout)
}

func TestLoadInvalidEnvironment(t *testing.T) {
	t.Setenv("SENSORREC_RECORDER_DRAIN_TIMEOUT", "soon")

	_, err := Load(writeConfig(t, "debug: false\n"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SENSORREC_RECORDER_DRAIN_TIMEOUT")
}

func TestLoadFlagsOverride(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Bool("debug", false, "")
	flags.String("output", "", "")
	require.NoError(t, flags.Parse([]string{"--debug", "--output", "/flag/out"}))

	settings, err := Load(writeConfig(t, "recorder:\n  output_dir: /file/out\n"), flags)
	require.NoError(t, err)
	assert.True(t, settings.Debug)
	assert.Equal(t, "/flag/out", settings.Recorder.OutputDir)
	assert.Equal(t, "debug", settings.Logging.DefaultLevel)
	assert.Equal(t, "debug", settings.Logging.Console.Level)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
}

func TestSaveYAMLConfigRoundTrip(t *testing.T) {
	settings, err := Load(writeConfig(t, "debug: false\n"), nil)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, SaveYAMLConfig(out, settings))

	data, err := os.ReadFile(out)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Contains(t, decoded, "recorder")
	assert.Contains(t, decoded, "streams")

	reloaded, err := Load(out, nil)
	require.NoError(t, err)
	assert.Equal(t, settings.Streams, reloaded.Streams)
	assert.Equal(t, settings.Recorder, reloaded.Recorder)
}
