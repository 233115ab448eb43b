// Package metrics provides custom Prometheus metrics for the capture pipeline.
package metrics

// CaptureRecorder receives stream buffer events. Calls happen on producer
// goroutines, so implementations must be cheap and non-blocking.
type CaptureRecorder interface {
	// RecordHandoff counts a chunk handed to the writer and its entries.
	RecordHandoff(stream string, entries int, forced bool)
	// RecordOverrun counts an arena exhaustion handled with the given policy outcome.
	RecordOverrun(stream, outcome string)
	// RecordRejected counts samples refused by shape validation.
	RecordRejected(stream string)
}

// WriterRecorder receives chunk writer events.
type WriterRecorder interface {
	RecordChunkWritten(stream string, bytes int, seconds float64)
	RecordChunkDropped(stream, reason string)
	SetQueueDepth(depth int)
	RecordCorrelation(matched, unmatched int)
}

// ArchiveRecorder receives archive packager events.
type ArchiveRecorder interface {
	RecordArchiveFile(status string)
	RecordArchiveDuration(seconds float64)
}

// SessionRecorder receives recording session lifecycle events.
type SessionRecorder interface {
	RecordSession(outcome string)
	SetSessionActive(active bool)
}

// Recorder combines every pipeline recorder. CaptureMetrics implements it.
type Recorder interface {
	CaptureRecorder
	WriterRecorder
	ArchiveRecorder
	SessionRecorder
}

// NoopRecorder implements every recorder interface and discards all events.
type NoopRecorder struct{}

func (NoopRecorder) RecordHandoff(string, int, bool) {}
func (NoopRecorder) RecordOverrun(string, string) {}
func (NoopRecorder) RecordRejected(string) {}
func (NoopRecorder) RecordChunkWritten(string, int, float64) {}
func (NoopRecorder) RecordChunkDropped(string, string) {}
func (NoopRecorder) SetQueueDepth(int) {}
func (NoopRecorder) RecordCorrelation(int, int) {}
func (NoopRecorder) RecordArchiveFile(string) {}
func (NoopRecorder) RecordArchiveDuration(float64) {}
func (NoopRecorder) RecordSession(string) {}
func (NoopRecorder) SetSessionActive(bool) {}

var (
	_ CaptureRecorder = NoopRecorder{}
	_ WriterRecorder  = NoopRecorder{}
	_ ArchiveRecorder = NoopRecorder{}
	_ SessionRecorder = NoopRecorder{}
	_ Recorder        = NoopRecorder{}
)
