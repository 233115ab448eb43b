package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) *CaptureMetrics {
	t.Helper()
	m, err := NewCaptureMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	return m
}

func TestCaptureMetricsHandoff(t *testing.T) {
	t.Parallel()
	m := newTestMetrics(t)

	m.RecordHandoff("acc", 1000, false)
	m.RecordHandoff("acc", 1000, false)
	m.RecordHandoff("acc", 500, true)

	assert.InDelta(t, 2, testutil.ToFloat64(m.chunksHandedOffTotal.WithLabelValues("acc", "full")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.chunksHandedOffTotal.WithLabelValues("acc", "flush")), 0)
	assert.InDelta(t, 2500, testutil.ToFloat64(m.entriesTotal.WithLabelValues("acc")), 0)
}

func TestCaptureMetricsWriter(t *testing.T) {
	t.Parallel()
	m := newTestMetrics(t)

	m.RecordChunkWritten("gyro", 4096, 0.002)
	m.RecordChunkDropped("gyro", ReasonIO)
	m.SetQueueDepth(3)
	m.RecordCorrelation(28, 2)
	m.RecordCorrelation(0, 0)

	assert.InDelta(t, 1, testutil.ToFloat64(m.chunksWrittenTotal.WithLabelValues("gyro")), 0)
	assert.InDelta(t, 4096, testutil.ToFloat64(m.bytesWrittenTotal.WithLabelValues("gyro")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.chunksDroppedTotal.WithLabelValues("gyro", ReasonIO)), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.writerQueueDepth), 0)
	assert.InDelta(t, 28, testutil.ToFloat64(m.correlationTotal.WithLabelValues("matched")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.correlationTotal.WithLabelValues("unmatched")), 0)
}

func TestCaptureMetricsSessionAndArchive(t *testing.T) {
	t.Parallel()
	m := newTestMetrics(t)

	m.SetSessionActive(true)
	assert.InDelta(t, 1, testutil.ToFloat64(m.sessionActive), 0)
	m.SetSessionActive(false)
	assert.InDelta(t, 0, testutil.ToFloat64(m.sessionActive), 0)

	m.RecordSession(OutcomeArchived)
	m.RecordArchiveFile(StatusAdded)
	m.RecordArchiveFile(StatusAdded)
	m.RecordArchiveFile(StatusSkipped)
	m.RecordArchiveDuration(0.25)

	expected := `
# HELP sensorrec_archive_files_total Chunk files processed by the archive packager
# TYPE sensorrec_archive_files_total counter
sensorrec_archive_files_total{status="added"} 2
sensorrec_archive_files_total{status="skipped"} 1
`
	require.NoError(t, testutil.CollectAndCompare(m, strings.NewReader(expected), "sensorrec_archive_files_total"))
	assert.InDelta(t, 1, testutil.ToFloat64(m.sessionsTotal.WithLabelValues(OutcomeArchived)), 0)
}

func TestCaptureMetricsDoubleRegistration(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	_, err := NewCaptureMetrics(registry)
	require.NoError(t, err)
	_, err = NewCaptureMetrics(registry)
	require.Error(t, err)
}
