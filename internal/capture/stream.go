package capture

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/sensorrec/internal/errors"
	"github.com/tphakala/sensorrec/internal/logger"
	"github.com/tphakala/sensorrec/internal/observability/metrics"
)

// OverrunOutcome describes how an arena exhaustion was resolved.
type OverrunOutcome string

const (
	OverrunGrew    OverrunOutcome = "grew"
	OverrunWaited  OverrunOutcome = "waited"
	OverrunDropped OverrunOutcome = "dropped"
)

// ErrProducerOverrun is wrapped by the error carried in OverrunEvent.
var ErrProducerOverrun = errors.Newf("producer overran chunk arena").
	Component(ComponentCapture).
	Category(errors.CategoryBuffer).
	Build()

// OverrunEvent is passed to the overrun hook each time a swap finds no free chunk.
type OverrunEvent struct {
	Stream         string
	Seq            uint64
	Policy         BackpressurePolicy
	Outcome        OverrunOutcome
	DroppedEntries int
	Err            error
}

// AppendResult reports where an appended sample landed.
type AppendResult struct {
	ChunkSeq        uint64
	Index           uint32
	ChunkBecameFull bool
}

// StreamStats is a point-in-time snapshot of a stream buffer.
type StreamStats struct {
	Name            string
	Kind            StreamKind
	NextSeq         uint64
	ActiveEntries   int
	Appended        uint64
	HandedOff       uint64
	Overruns        uint64
	DroppedEntries  uint64
	Rejected        uint64
	SlotsInFlight   int
	OverflowInUse   int
	PendingSettings int
}

// StreamOption configures a StreamBuffer.
type StreamOption func(*StreamBuffer)

// WithLogger sets the stream's logger.
func WithLogger(l logger.Logger) StreamOption {
	return func(s *StreamBuffer) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics sets the recorder for handoff and overrun metrics.
func WithMetrics(m metrics.CaptureRecorder) StreamOption {
	return func(s *StreamBuffer) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithOverrunHook registers fn to be called on every overrun. fn runs on the
// producer goroutine with the stream locked and must not call back into it.
func WithOverrunHook(fn func(OverrunEvent)) StreamOption {
	return func(s *StreamBuffer) {
		s.onOverrun = fn
	}
}

// overrunWarnInterval limits overrun warnings to one per interval per stream.
const overrunWarnInterval = time.Second

// StreamBuffer is the double-buffered front end of one capture stream.
// Append runs on the producer goroutine and never performs I/O.
type StreamBuffer struct {
	cfg        StreamConfig
	sink       HandoffSink
	arena      *arena
	correlator *Correlator

	log         logger.Logger
	metrics     metrics.CaptureRecorder
	onOverrun   func(OverrunEvent)
	warnLimiter *rate.Limiter

	mu         sync.Mutex
	active     *Chunk
	seq        uint64
	closed     bool
	planeBytes []int
	shapeFixed bool
	suppressed int

	appended       atomic.Uint64
	handedOff      atomic.Uint64
	overruns       atomic.Uint64
	droppedEntries atomic.Uint64
	rejected       atomic.Uint64
}

// NewStreamBuffer validates cfg and creates a stream that hands full chunks to sink.
func NewStreamBuffer(cfg StreamConfig, sink HandoffSink, opts ...StreamOption) (*StreamBuffer, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, configError(cfg.Name, "handoff sink is required")
	}

	a, active := newArena(cfg.Kind, cfg.Capacity, cfg.Slots, cfg.MaxOverflow)
	s := &StreamBuffer{
		cfg:         cfg,
		sink:        sink,
		arena:       a,
		correlator:  NewCorrelator(),
		log:         logger.Global().Module("capture"),
		metrics:     metrics.NoopRecorder{},
		warnLimiter: rate.NewLimiter(rate.Every(overrunWarnInterval), 1),
		active:      active,
		planeBytes:  slices.Clone(cfg.Shape.PlaneBytes),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.String("stream", cfg.Name))
	s.shapeFixed = !slices.Contains(s.planeBytes, 0)
	return s, nil
}

// Name returns the stream name.
func (s *StreamBuffer) Name() string { return s.cfg.Name }

// Kind returns the stream kind.
func (s *StreamBuffer) Kind() StreamKind { return s.cfg.Kind }

// Config returns the effective configuration.
func (s *StreamBuffer) Config() StreamConfig { return s.cfg }

// Append copies a sample into the active chunk. If the active chunk is
// already full it is handed off first, so the sample always lands in a chunk
// with room.
func (s *StreamBuffer) Append(timestamp int64, planes []Plane) (AppendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return AppendResult{}, ErrStreamClosed
	}
	if err := s.checkShapeLocked(planes); err != nil {
		s.rejected.Add(1)
		s.metrics.RecordRejected(s.cfg.Name)
		return AppendResult{}, err
	}

	if s.active.Full() {
		s.swapLocked(false)
	}
	if err := s.active.Append(timestamp, planes); err != nil {
		return AppendResult{}, err
	}
	s.appended.Add(1)

	return AppendResult{
		ChunkSeq:        s.seq,
		Index:           uint32(s.active.Len() - 1), //nolint:gosec // G115: bounded by capacity
		ChunkBecameFull: s.active.Full(),
	}, nil
}

// RecordSettings stores camera settings for the frame at timestamp.
// Safe to call from any goroutine.
func (s *StreamBuffer) RecordSettings(timestamp int64, settings SensorSettings) {
	s.correlator.Record(timestamp, settings)
}

// Flush hands off the active chunk regardless of fill level. It reports
// whether a chunk was handed off; an empty active chunk never is.
func (s *StreamBuffer) Flush() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	return s.swapLocked(true)
}

// Close hands off the active chunk as the final partial chunk and rejects
// further appends. It reports whether a chunk was handed off.
func (s *StreamBuffer) Close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true

	final := s.active
	s.active = nil
	if final.Empty() {
		s.arena.release(final)
		return false
	}
	s.handoffLocked(final, true)
	return true
}

// Stats returns a snapshot of the stream counters.
func (s *StreamBuffer) Stats() StreamStats {
	s.mu.Lock()
	nextSeq := s.seq
	active := 0
	if s.active != nil {
		active = s.active.Len()
	}
	s.mu.Unlock()

	return StreamStats{
		Name:            s.cfg.Name,
		Kind:            s.cfg.Kind,
		NextSeq:         nextSeq,
		ActiveEntries:   active,
		Appended:        s.appended.Load(),
		HandedOff:       s.handedOff.Load(),
		Overruns:        s.overruns.Load(),
		DroppedEntries:  s.droppedEntries.Load(),
		Rejected:        s.rejected.Load(),
		SlotsInFlight:   s.arena.inFlight(),
		OverflowInUse:   s.arena.overflowInUse(),
		PendingSettings: s.correlator.Pending(),
	}
}

// swapLocked replaces the active chunk and hands the old one off.
func (s *StreamBuffer) swapLocked(forced bool) bool {
	full := s.active
	if full.Empty() {
		return false
	}

	next, outcome := s.nextChunkLocked(forced)
	if next == nil {
		dropped := full.Len()
		s.correlator.Discard(full.LastTimestamp())
		full.Reset()
		s.reportOverrunLocked(OverrunDropped, dropped)
		s.seq++
		return false
	}
	if outcome != "" {
		s.reportOverrunLocked(outcome, 0)
	}

	s.active = next
	s.handoffLocked(full, forced)
	return true
}

func (s *StreamBuffer) nextChunkLocked(forced bool) (*Chunk, OverrunOutcome) {
	if c := s.arena.tryAcquire(); c != nil {
		return c, ""
	}

	switch s.cfg.Backpressure {
	case PolicyGrow:
		if c := s.arena.grow(false); c != nil {
			return c, OverrunGrew
		}
	case PolicyBlock:
		if c := s.arena.acquireWait(s.cfg.BlockTimeout); c != nil {
			return c, OverrunWaited
		}
	case PolicyDrop:
	}

	// a forced flush never loses data
	if forced {
		return s.arena.grow(true), OverrunGrew
	}
	return nil, OverrunDropped
}

func (s *StreamBuffer) handoffLocked(full *Chunk, forced bool) {
	h := Handoff{
		Stream:   s.cfg.Name,
		Kind:     s.cfg.Kind,
		Seq:      s.seq,
		Chunk:    full,
		Settings: s.correlator.Swap(full.LastTimestamp()),
		Forced:   forced,
		release:  func() { s.arena.release(full) },
	}
	s.seq++
	s.handedOff.Add(1)
	s.metrics.RecordHandoff(s.cfg.Name, full.Len(), forced)
	s.sink.Submit(h)
}

func (s *StreamBuffer) reportOverrunLocked(outcome OverrunOutcome, dropped int) {
	s.overruns.Add(1)
	if dropped > 0 {
		s.droppedEntries.Add(uint64(dropped)) //nolint:gosec // G115: non-negative
	}
	s.metrics.RecordOverrun(s.cfg.Name, string(outcome))

	if s.onOverrun != nil {
		s.onOverrun(OverrunEvent{
			Stream:         s.cfg.Name,
			Seq:            s.seq,
			Policy:         s.cfg.Backpressure,
			Outcome:        outcome,
			DroppedEntries: dropped,
			Err: errors.New(ErrProducerOverrun).
				Component(ComponentCapture).
				Category(errors.CategoryBuffer).
				StreamContext(s.cfg.Name, s.seq).
				Context("outcome", string(outcome)).
				Build(),
		})
	}

	if !s.warnLimiter.Allow() {
		s.suppressed++
		return
	}
	s.log.Warn("chunk arena exhausted",
		logger.Uint64("seq", s.seq),
		logger.String("policy", s.cfg.Backpressure.String()),
		logger.String("outcome", string(outcome)),
		logger.Int("dropped_entries", dropped),
		logger.Int("suppressed_warnings", s.suppressed))
	s.suppressed = 0
}

func (s *StreamBuffer) checkShapeLocked(planes []Plane) error {
	if len(planes) != s.cfg.Shape.Planes {
		return s.shapeError(fmt.Sprintf("got %d planes, want %d", len(planes), s.cfg.Shape.Planes))
	}
	for i := range planes {
		want := s.planeBytes[i]
		if (s.shapeFixed || want != 0) && len(planes[i].Data) != want {
			return s.shapeError(fmt.Sprintf("plane %d has %d bytes, want %d", i, len(planes[i].Data), want))
		}
	}
	if !s.shapeFixed {
		for i := range planes {
			s.planeBytes[i] = len(planes[i].Data)
		}
		s.shapeFixed = true
		s.log.Debug("payload shape fixed by first sample", logger.Any("plane_bytes", s.planeBytes))
	}
	return nil
}

func (s *StreamBuffer) shapeError(detail string) error {
	return errors.New(fmt.Errorf("%w: %s", ErrShapeMismatch, detail)).
		Component(ComponentCapture).
		Category(errors.CategoryValidation).
		Context("stream", s.cfg.Name).
		Build()
}
