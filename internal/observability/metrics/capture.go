// Package metrics provides capture pipeline metrics for observability
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CaptureMetrics contains Prometheus metrics for the capture pipeline:
// stream buffers, the chunk writer, the archive packager and sessions.
type CaptureMetrics struct {
	registry *prometheus.Registry

	// Stream buffer metrics
	chunksHandedOffTotal *prometheus.CounterVec
	entriesTotal         *prometheus.CounterVec
	overrunsTotal        *prometheus.CounterVec
	rejectedTotal        *prometheus.CounterVec

	// Chunk writer metrics
	chunksWrittenTotal   *prometheus.CounterVec
	chunksDroppedTotal   *prometheus.CounterVec
	bytesWrittenTotal    *prometheus.CounterVec
	writeDurationSeconds *prometheus.HistogramVec
	writerQueueDepth     prometheus.Gauge
	correlationTotal     *prometheus.CounterVec

	// Archive metrics
	archiveFilesTotal      *prometheus.CounterVec
	archiveDurationSeconds prometheus.Histogram

	// Session metrics
	sessionsTotal *prometheus.CounterVec
	sessionActive prometheus.Gauge
}

// NewCaptureMetrics creates and registers new capture pipeline metrics
func NewCaptureMetrics(registry *prometheus.Registry) (*CaptureMetrics, error) {
	m := &CaptureMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *CaptureMetrics) initMetrics() {
	m.chunksHandedOffTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorrec_chunks_handed_off_total",
			Help: "Total number of chunks handed from stream buffers to the writer",
		},
		[]string{"stream", "trigger"}, // trigger: full, flush
	)

	m.entriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorrec_entries_total",
			Help: "Total number of entries captured in handed-off chunks",
		},
		[]string{"stream"},
	)

	m.overrunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorrec_overruns_total",
			Help: "Total number of chunk arena exhaustions",
		},
		[]string{"stream", "outcome"}, // outcome: grew, dropped, waited
	)

	m.rejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorrec_samples_rejected_total",
			Help: "Total number of samples rejected for a payload shape mismatch",
		},
		[]string{"stream"},
	)

	m.chunksWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorrec_chunks_written_total",
			Help: "Total number of chunk files written",
		},
		[]string{"stream"},
	)

	m.chunksDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorrec_chunks_dropped_total",
			Help: "Total number of chunks dropped by the writer",
		},
		[]string{"stream", "reason"}, // reason: encode, io, shutdown
	)

	m.bytesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorrec_bytes_written_total",
			Help: "Total bytes written to chunk files",
		},
		[]string{"stream"},
	)

	m.writeDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sensorrec_chunk_write_duration_seconds",
			Help:    "Time taken to encode and persist one chunk",
			Buckets: prometheus.ExponentialBuckets(BucketStart100us, BucketFactor2, BucketCount12), // 0.1ms to ~400ms
		},
		[]string{"stream"},
	)

	m.writerQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sensorrec_writer_queue_depth",
		Help: "Number of handed-off chunks waiting for the writer",
	})

	m.correlationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorrec_correlation_total",
			Help: "Image entries by metadata correlation result",
		},
		[]string{"result"}, // result: matched, unmatched
	)

	m.archiveFilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorrec_archive_files_total",
			Help: "Chunk files processed by the archive packager",
		},
		[]string{"status"}, // status: added, skipped
	)

	m.archiveDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sensorrec_archive_duration_seconds",
		Help:    "Time taken to package a session archive",
		Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12), // 10ms to ~40s
	})

	m.sessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorrec_sessions_total",
			Help: "Completed recording sessions by outcome",
		},
		[]string{"outcome"},
	)

	m.sessionActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sensorrec_session_active",
		Help: "1 while a recording session is capturing or draining",
	})
}

// Describe implements the Collector interface
func (m *CaptureMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.chunksHandedOffTotal.Describe(ch)
	m.entriesTotal.Describe(ch)
	m.overrunsTotal.Describe(ch)
	m.rejectedTotal.Describe(ch)
	m.chunksWrittenTotal.Describe(ch)
	m.chunksDroppedTotal.Describe(ch)
	m.bytesWrittenTotal.Describe(ch)
	m.writeDurationSeconds.Describe(ch)
	m.writerQueueDepth.Describe(ch)
	m.correlationTotal.Describe(ch)
	m.archiveFilesTotal.Describe(ch)
	m.archiveDurationSeconds.Describe(ch)
	m.sessionsTotal.Describe(ch)
	m.sessionActive.Describe(ch)
}

// Collect implements the Collector interface
func (m *CaptureMetrics) Collect(ch chan<- prometheus.Metric) {
	m.chunksHandedOffTotal.Collect(ch)
	m.entriesTotal.Collect(ch)
	m.overrunsTotal.Collect(ch)
	m.rejectedTotal.Collect(ch)
	m.chunksWrittenTotal.Collect(ch)
	m.chunksDroppedTotal.Collect(ch)
	m.bytesWrittenTotal.Collect(ch)
	m.writeDurationSeconds.Collect(ch)
	m.writerQueueDepth.Collect(ch)
	m.correlationTotal.Collect(ch)
	m.archiveFilesTotal.Collect(ch)
	m.archiveDurationSeconds.Collect(ch)
	m.sessionsTotal.Collect(ch)
	m.sessionActive.Collect(ch)
}

// RecordHandoff counts a handed-off chunk and its entries.
func (m *CaptureMetrics) RecordHandoff(stream string, entries int, forced bool) {
	trigger := "full"
	if forced {
		trigger = "flush"
	}
	m.chunksHandedOffTotal.WithLabelValues(stream, trigger).Inc()
	m.entriesTotal.WithLabelValues(stream).Add(float64(entries))
}

// RecordOverrun counts an arena exhaustion.
func (m *CaptureMetrics) RecordOverrun(stream, outcome string) {
	m.overrunsTotal.WithLabelValues(stream, outcome).Inc()
}

// RecordRejected counts a sample rejected for shape mismatch.
func (m *CaptureMetrics) RecordRejected(stream string) {
	m.rejectedTotal.WithLabelValues(stream).Inc()
}

// RecordChunkWritten records a persisted chunk file.
func (m *CaptureMetrics) RecordChunkWritten(stream string, bytes int, seconds float64) {
	m.chunksWrittenTotal.WithLabelValues(stream).Inc()
	m.bytesWrittenTotal.WithLabelValues(stream).Add(float64(bytes))
	m.writeDurationSeconds.WithLabelValues(stream).Observe(seconds)
}

// RecordChunkDropped records a chunk the writer gave up on.
func (m *CaptureMetrics) RecordChunkDropped(stream, reason string) {
	m.chunksDroppedTotal.WithLabelValues(stream, reason).Inc()
}

// SetQueueDepth updates the writer queue gauge.
func (m *CaptureMetrics) SetQueueDepth(depth int) {
	m.writerQueueDepth.Set(float64(depth))
}

// RecordCorrelation adds the per-chunk correlation results.
func (m *CaptureMetrics) RecordCorrelation(matched, unmatched int) {
	if matched > 0 {
		m.correlationTotal.WithLabelValues("matched").Add(float64(matched))
	}
	if unmatched > 0 {
		m.correlationTotal.WithLabelValues("unmatched").Add(float64(unmatched))
	}
}

// RecordArchiveFile counts a chunk file added to or skipped from an archive.
func (m *CaptureMetrics) RecordArchiveFile(status string) {
	m.archiveFilesTotal.WithLabelValues(status).Inc()
}

// RecordArchiveDuration observes the time spent packaging one archive.
func (m *CaptureMetrics) RecordArchiveDuration(seconds float64) {
	m.archiveDurationSeconds.Observe(seconds)
}

// RecordSession counts a finished session.
func (m *CaptureMetrics) RecordSession(outcome string) {
	m.sessionsTotal.WithLabelValues(outcome).Inc()
}

// SetSessionActive flips the active session gauge.
func (m *CaptureMetrics) SetSessionActive(active bool) {
	if active {
		m.sessionActive.Set(1)
		return
	}
	m.sessionActive.Set(0)
}

var (
	_ CaptureRecorder = (*CaptureMetrics)(nil)
	_ WriterRecorder  = (*CaptureMetrics)(nil)
	_ ArchiveRecorder = (*CaptureMetrics)(nil)
	_ SessionRecorder = (*CaptureMetrics)(nil)
	_ Recorder        = (*CaptureMetrics)(nil)
)
