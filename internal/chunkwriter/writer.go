// Package chunkwriter persists handed-off chunks on a single background
// goroutine per recording session.
package chunkwriter

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/sensorrec/internal/capture"
	"github.com/tphakala/sensorrec/internal/chunkfile"
	"github.com/tphakala/sensorrec/internal/errors"
	"github.com/tphakala/sensorrec/internal/fsutil"
	"github.com/tphakala/sensorrec/internal/logger"
	"github.com/tphakala/sensorrec/internal/observability/metrics"
)

// ComponentWriter identifies errors raised by the chunk writer.
const ComponentWriter = "chunkwriter"

// DefaultFileMode is the permission of written chunk files.
const DefaultFileMode os.FileMode = 0o644

// Drop reasons reported through OnDropped.
const (
	ReasonEncode   = metrics.ReasonEncode
	ReasonIO       = metrics.ReasonIO
	ReasonShutdown = metrics.ReasonShutdown
)

// ErrDrainTimeout is returned by Drain and Close when ctx expires first.
var ErrDrainTimeout = errors.Newf("chunk writer did not drain in time").
	Component(ComponentWriter).
	Category(errors.CategoryTimeout).
	Build()

// Result describes a chunk file that was written.
type Result struct {
	Stream   string
	Seq      uint64
	Path     string
	Entries  int
	Bytes    int
	Duration time.Duration
}

// DropEvent describes a chunk that was not persisted.
type DropEvent struct {
	Stream  string
	Seq     uint64
	Entries int
	Reason  string
	Err     error
}

// Stats is a snapshot of writer counters.
type Stats struct {
	Written   uint64
	Dropped   uint64
	Bytes     uint64
	Pending   int
	Matched   uint64
	Unmatched uint64
}

// Options configures a Writer.
type Options struct {
	// Dir receives the chunk files. It is created if missing.
	Dir string
	// FileMode defaults to DefaultFileMode.
	FileMode os.FileMode

	Logger  logger.Logger
	Metrics metrics.WriterRecorder

	// OnWritten and OnDropped run on the writer goroutine. Drops of
	// handoffs submitted after Close are reported on the submitter's goroutine.
	OnWritten func(Result)
	OnDropped func(DropEvent)
}

// Writer is an unbounded FIFO of handoffs serviced by one goroutine. It
// implements capture.HandoffSink.
type Writer struct {
	dir       string
	mode      os.FileMode
	log       logger.Logger
	metrics   metrics.WriterRecorder
	onWritten func(Result)
	onDropped func(DropEvent)

	mu       sync.Mutex
	queue    []capture.Handoff
	pending  int
	idle     chan struct{}
	closed   bool
	inflight bool

	notify    chan struct{}
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// encoder is only touched by the writer goroutine
	encoder chunkfile.Encoder

	written   atomic.Uint64
	dropped   atomic.Uint64
	bytes     atomic.Uint64
	matched   atomic.Uint64
	unmatched atomic.Uint64
}

var _ capture.HandoffSink = (*Writer)(nil)

// New creates the output directory and starts the writer goroutine.
func New(opts Options) (*Writer, error) {
	if opts.Dir == "" {
		return nil, errors.Newf("chunk writer needs an output directory").
			Component(ComponentWriter).
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil { //nolint:gosec // G301: recordings are shared with the operator
		return nil, errors.New(err).
			Component(ComponentWriter).
			Category(errors.CategoryFileIO).
			Context("dir", opts.Dir).
			Build()
	}

	w := &Writer{
		dir:       opts.Dir,
		mode:      opts.FileMode,
		log:       opts.Logger,
		metrics:   opts.Metrics,
		onWritten: opts.OnWritten,
		onDropped: opts.OnDropped,
		idle:      make(chan struct{}),
		notify:    make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	if w.mode == 0 {
		w.mode = DefaultFileMode
	}
	if w.log == nil {
		w.log = logger.Global().Module("chunkwriter")
	}
	if w.metrics == nil {
		w.metrics = metrics.NoopRecorder{}
	}
	close(w.idle)

	go w.run()
	return w, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string { return w.dir }

// Submit enqueues h without blocking. After Close the chunk is released
// and reported as dropped.
func (w *Writer) Submit(h capture.Handoff) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.drop(h, ReasonShutdown, nil)
		return
	}
	w.queue = append(w.queue, h)
	w.pending++
	if w.pending == 1 {
		w.idle = make(chan struct{})
	}
	depth := len(w.queue)
	w.mu.Unlock()

	w.metrics.SetQueueDepth(depth)
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// Drain blocks until every submitted handoff has been processed.
func (w *Writer) Drain(ctx context.Context) error {
	w.mu.Lock()
	idle := w.idle
	w.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return errors.New(ErrDrainTimeout).
			Component(ComponentWriter).
			Category(errors.CategoryTimeout).
			Context("pending", w.Stats().Pending).
			Build()
	}
}

// Close stops accepting handoffs, drains the queue until ctx expires and stops
// the goroutine. Handoffs still queued at that point are dropped. If a write
// is still in progress when ctx expires, Close returns without waiting for it
// and the goroutine exits once that write returns.
func (w *Writer) Close(ctx context.Context) error {
	var err error
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()

		err = w.Drain(ctx)
		close(w.stop)

		select {
		case <-w.done:
		case <-ctx.Done():
			w.mu.Lock()
			stalled := w.inflight
			w.mu.Unlock()
			if stalled {
				w.log.Warn("chunk writer stalled, abandoning in-flight write",
					logger.String("dir", w.dir))
			} else {
				// not inside a write, so the goroutine is already returning
				<-w.done
			}
		}

		w.mu.Lock()
		rest := w.queue
		w.queue = nil
		w.mu.Unlock()
		for i := range rest {
			w.drop(rest[i], ReasonShutdown, nil)
			w.finish()
		}
		if len(rest) > 0 {
			w.log.Warn("chunk writer closed with pending chunks", logger.Int("dropped", len(rest)))
		}
	})
	return err
}

// Stats returns a snapshot of the writer counters.
func (w *Writer) Stats() Stats {
	w.mu.Lock()
	pending := w.pending
	w.mu.Unlock()
	return Stats{
		Written:   w.written.Load(),
		Dropped:   w.dropped.Load(),
		Bytes:     w.bytes.Load(),
		Pending:   pending,
		Matched:   w.matched.Load(),
		Unmatched: w.unmatched.Load(),
	}
}

func (w *Writer) run() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case <-w.notify:
			if !w.process() {
				return
			}
		}
	}
}

// process writes queued handoffs in order. It returns false once stop is closed.
func (w *Writer) process() bool {
	for {
		// stop is checked under mu so Close sees inflight consistently
		w.mu.Lock()
		select {
		case <-w.stop:
			w.mu.Unlock()
			return false
		default:
		}
		if len(w.queue) == 0 {
			w.mu.Unlock()
			return true
		}
		h := w.queue[0]
		w.queue[0] = capture.Handoff{}
		w.queue = w.queue[1:]
		depth := len(w.queue)
		w.inflight = true
		w.mu.Unlock()

		w.metrics.SetQueueDepth(depth)
		w.write(h)
		w.finish()
	}
}

// finish marks one handoff as processed.
func (w *Writer) finish() {
	w.mu.Lock()
	w.inflight = false
	w.pending--
	if w.pending == 0 {
		close(w.idle)
	}
	w.mu.Unlock()
}

func (w *Writer) write(h capture.Handoff) {
	start := time.Now()
	entries := h.Chunk.Len()

	withSettings := h.Kind == capture.KindImage
	if withSettings {
		matched, unmatched := capture.ResolveSettings(h.Chunk, h.Settings)
		w.matched.Add(uint64(matched))     //nolint:gosec // G115: non-negative
		w.unmatched.Add(uint64(unmatched)) //nolint:gosec // G115: non-negative
		w.metrics.RecordCorrelation(matched, unmatched)
		if unmatched > 0 {
			w.log.Debug("frames without sensor settings",
				logger.String("stream", h.Stream),
				logger.Uint64("seq", h.Seq),
				logger.Int("unmatched", unmatched))
		}
	}

	data, err := w.encoder.Encode(h.Kind, h.Seq, h.Chunk.Entries(), withSettings)
	if err != nil {
		w.drop(h, ReasonEncode, err)
		return
	}

	name := chunkfile.FileName(h.Stream, h.Seq)
	path := filepath.Join(w.dir, name)
	err = fsutil.AtomicWriteFile(path, fsutil.TempPattern(name), w.mode, func(f *os.File) error {
		_, werr := f.Write(data)
		return werr
	})
	if err != nil {
		w.drop(h, ReasonIO, errors.FileError(err, path, int64(len(data))))
		return
	}
	h.Release()

	elapsed := time.Since(start)
	w.written.Add(1)
	w.bytes.Add(uint64(len(data)))
	w.metrics.RecordChunkWritten(h.Stream, len(data), elapsed.Seconds())
	w.log.Debug("chunk written",
		logger.String("stream", h.Stream),
		logger.Uint64("seq", h.Seq),
		logger.Int("entries", entries),
		logger.Int("bytes", len(data)),
		logger.Duration("elapsed", elapsed))

	if w.onWritten != nil {
		w.onWritten(Result{
			Stream:   h.Stream,
			Seq:      h.Seq,
			Path:     path,
			Entries:  entries,
			Bytes:    len(data),
			Duration: elapsed,
		})
	}
}

// drop releases h and reports it as lost.
func (w *Writer) drop(h capture.Handoff, reason string, cause error) {
	entries := 0
	if h.Chunk != nil {
		entries = h.Chunk.Len()
	}
	h.Release()

	w.dropped.Add(1)
	w.metrics.RecordChunkDropped(h.Stream, reason)

	if cause != nil {
		cause = errors.New(cause).
			Component(ComponentWriter).
			Category(errors.CategoryWorker).
			StreamContext(h.Stream, h.Seq).
			Context("reason", reason).
			Build()
		w.log.Error("chunk dropped",
			logger.String("stream", h.Stream),
			logger.Uint64("seq", h.Seq),
			logger.String("reason", reason),
			logger.Error(cause))
	} else {
		w.log.Warn("chunk dropped",
			logger.String("stream", h.Stream),
			logger.Uint64("seq", h.Seq),
			logger.String("reason", reason))
	}

	if w.onDropped != nil {
		w.onDropped(DropEvent{
			Stream:  h.Stream,
			Seq:     h.Seq,
			Entries: entries,
			Reason:  reason,
			Err:     cause,
		})
	}
}
