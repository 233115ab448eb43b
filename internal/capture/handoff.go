package capture

// Handoff transfers ownership of a full (or force-flushed) chunk from a
// StreamBuffer to its consumer, together with the frozen metadata snapshot
// recorded for it.
type Handoff struct {
	Stream   string
	Kind     StreamKind
	Seq      uint64
	Chunk    *Chunk
	Settings map[int64]SensorSettings
	Forced   bool

	release func()
}

// NewHandoff builds a handoff outside a StreamBuffer. release may be nil.
func NewHandoff(stream string, kind StreamKind, seq uint64, chunk *Chunk, settings map[int64]SensorSettings, release func()) Handoff {
	return Handoff{
		Stream:   stream,
		Kind:     kind,
		Seq:      seq,
		Chunk:    chunk,
		Settings: settings,
		release:  release,
	}
}

// Release returns the chunk to its arena. The consumer must call it exactly
// once after it is done reading the chunk; later calls are no-ops.
func (h *Handoff) Release() {
	if h.release == nil {
		return
	}
	release := h.release
	h.release = nil
	release()
}

// HandoffSink receives chunks from stream buffers. Submit must not block.
type HandoffSink interface {
	Submit(h Handoff)
}

// HandoffFunc adapts a function to HandoffSink.
type HandoffFunc func(h Handoff)

// Submit calls f(h).
func (f HandoffFunc) Submit(h Handoff) { f(h) }
