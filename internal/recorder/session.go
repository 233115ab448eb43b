// Package recorder runs recording sessions: it wires stream buffers, the
// chunk writer, sensor sources and the archive packager together and owns the
// Idle, Recording and Draining lifecycle.
package recorder

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tphakala/sensorrec/internal/archive"
	"github.com/tphakala/sensorrec/internal/capture"
	"github.com/tphakala/sensorrec/internal/chunkwriter"
	"github.com/tphakala/sensorrec/internal/diskmanager"
	"github.com/tphakala/sensorrec/internal/errors"
	"github.com/tphakala/sensorrec/internal/logger"
	"github.com/tphakala/sensorrec/internal/observability/metrics"
	"github.com/tphakala/sensorrec/internal/sensors"
)

// State is the lifecycle state of a Recorder.
type State int32

const (
	StateIdle State = iota
	StateRecording
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// sourceErrorInterval limits warnings about rejected source samples.
const sourceErrorInterval = 5 * time.Second

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the recorder logger. Stream buffers, the writer and the
// packager log through submodules of it.
func WithLogger(l logger.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.log = l
		}
	}
}

// WithMetrics sets the recorder for every pipeline component.
func WithMetrics(m metrics.Recorder) Option {
	return func(r *Recorder) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithSource attaches a hardware source to the stream named src.Name().
func WithSource(src sensors.HardwareSource) Option {
	return func(r *Recorder) {
		r.sources = append(r.sources, src)
	}
}

// WithMetadataSource attaches a settings source to the image stream named src.Name().
func WithMetadataSource(src sensors.MetadataSource) Option {
	return func(r *Recorder) {
		r.metaSources = append(r.metaSources, src)
	}
}

// WithOverrunHook is called for every arena exhaustion on any stream.
func WithOverrunHook(fn func(capture.OverrunEvent)) Option {
	return func(r *Recorder) {
		r.onOverrun = fn
	}
}

// WithChunkHooks observes written and dropped chunks.
func WithChunkHooks(onWritten func(chunkwriter.Result), onDropped func(chunkwriter.DropEvent)) Option {
	return func(r *Recorder) {
		r.onWritten = onWritten
		r.onDropped = onDropped
	}
}

// session holds everything that lives for one Start/Stop cycle.
type session struct {
	id      string
	dir     string
	started time.Time
	streams map[string]*capture.StreamBuffer
	order   []string
	writer  *chunkwriter.Writer
	cancel  context.CancelFunc
	log     logger.Logger

	sourceLimiter *rate.Limiter
}

// Recorder runs one recording session at a time.
type Recorder struct {
	cfg      Config
	log      logger.Logger
	metrics  metrics.Recorder
	packager *archive.Packager

	sources     []sensors.HardwareSource
	metaSources []sensors.MetadataSource
	onOverrun   func(capture.OverrunEvent)
	onWritten   func(chunkwriter.Result)
	onDropped   func(chunkwriter.DropEvent)

	// mu guards state transitions and the last* fields. It is never held
	// while draining or packaging.
	mu    sync.Mutex
	state atomic.Int32
	cur   atomic.Pointer[session]

	// stopMu serializes Stop calls for their whole duration.
	stopMu sync.Mutex

	lastArchive string
	lastStatus  *Status
}

// New validates cfg and returns an idle Recorder.
func New(cfg Config, opts ...Option) (*Recorder, error) {
	cfg.Streams = slices.Clone(cfg.Streams)
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	r := &Recorder{
		cfg:     cfg,
		log:     logger.Global().Module("recorder"),
		metrics: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, src := range r.sources {
		if _, ok := r.streamConfig(src.Name()); !ok {
			return nil, streamError(ErrUnknownStream, src.Name())
		}
	}
	for _, src := range r.metaSources {
		sc, ok := r.streamConfig(src.Name())
		if !ok {
			return nil, streamError(ErrUnknownStream, src.Name())
		}
		if sc.Kind != capture.KindImage {
			return nil, streamError(ErrNotImageStream, src.Name())
		}
	}

	packager, err := archive.NewPackager(archive.Options{
		ArchiveDir:       cfg.ArchiveDir,
		CompressionLevel: cfg.CompressionLevel,
		Logger:           r.log.Module("archive"),
		Metrics:          r.metrics,
	})
	if err != nil {
		return nil, err
	}
	r.packager = packager
	return r, nil
}

func (r *Recorder) streamConfig(name string) (capture.StreamConfig, bool) {
	for _, sc := range r.cfg.Streams {
		if sc.Name == name {
			return sc, true
		}
	}
	return capture.StreamConfig{}, false
}

// State returns the current lifecycle state.
func (r *Recorder) State() State { return State(r.state.Load()) }

// Start begins a session. An empty sessionID is replaced by a random UUID.
// It returns the session id.
func (r *Recorder) Start(ctx context.Context, sessionID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkIdle(); err != nil {
		return "", err
	}

	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if !sessionIDPattern.MatchString(sessionID) {
		return "", errors.New(ErrInvalidSessionID).
			Component(ComponentRecorder).
			Category(errors.CategoryValidation).
			Context("session_id", sessionID).
			Build()
	}

	if _, err := diskmanager.CheckFreeSpace(ctx, r.cfg.OutputDir, r.cfg.MinFreeBytes); err != nil {
		return "", err
	}

	dir := filepath.Join(r.cfg.OutputDir, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: recordings are shared with the operator
		return "", errors.New(err).
			Component(ComponentRecorder).
			Category(errors.CategoryFileIO).
			Context("dir", dir).
			Build()
	}

	s, err := r.newSession(ctx, sessionID, dir)
	if err != nil {
		removeIfEmpty(dir)
		return "", err
	}

	// sources outlive the caller's context; Stop ends them
	srcCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	r.cur.Store(s)
	r.state.Store(int32(StateRecording))

	if err := r.startSources(srcCtx, s); err != nil {
		r.abort(s)
		return "", err
	}

	r.metrics.SetSessionActive(true)
	s.log.Info("recording started",
		logger.String("session_id", sessionID),
		logger.String("dir", dir),
		logger.Int("streams", len(s.streams)),
		logger.Int("sources", len(r.sources)+len(r.metaSources)))
	return sessionID, nil
}

// checkIdle rejects a Start while a session is recording or draining.
func (r *Recorder) checkIdle() error {
	switch r.State() {
	case StateRecording:
		return ErrAlreadyRecording
	case StateDraining:
		return ErrSessionBusy
	default:
		return nil
	}
}

func (r *Recorder) newSession(ctx context.Context, id, dir string) (*session, error) {
	writer, err := chunkwriter.New(chunkwriter.Options{
		Dir:       dir,
		Logger:    r.log.Module("writer").With(logger.String("session_id", id)),
		Metrics:   r.metrics,
		OnWritten: r.onWritten,
		OnDropped: r.onDropped,
	})
	if err != nil {
		return nil, err
	}

	s := &session{
		id:            id,
		dir:           dir,
		started:       time.Now(),
		streams:       make(map[string]*capture.StreamBuffer, len(r.cfg.Streams)),
		writer:        writer,
		log:           r.log.WithContext(logger.WithTraceID(ctx, id)),
		sourceLimiter: rate.NewLimiter(rate.Every(sourceErrorInterval), 1),
	}
	for _, sc := range r.cfg.Streams {
		buf, err := capture.NewStreamBuffer(sc, writer,
			capture.WithLogger(r.log.Module("capture")),
			capture.WithMetrics(r.metrics),
			capture.WithOverrunHook(r.onOverrun))
		if err != nil {
			_ = writer.Close(context.Background())
			return nil, err
		}
		s.streams[sc.Name] = buf
		s.order = append(s.order, sc.Name)
	}
	return s, nil
}

// startSources starts every attached source in parallel. On failure the
// sources that did start are stopped again.
func (r *Recorder) startSources(ctx context.Context, s *session) error {
	var g errgroup.Group
	for _, src := range r.sources {
		buf := s.streams[src.Name()]
		g.Go(func() error {
			return src.Start(ctx, func(ts int64, planes []capture.Plane) {
				if _, err := buf.Append(ts, planes); err != nil {
					r.sourceAppendFailed(s, buf.Name(), err)
				}
			})
		})
	}
	for _, src := range r.metaSources {
		buf := s.streams[src.Name()]
		g.Go(func() error {
			return src.Start(ctx, buf.RecordSettings)
		})
	}
	if err := g.Wait(); err != nil {
		r.stopSources()
		return err
	}
	return nil
}

// stopSources stops every attached source in parallel and logs failures.
func (r *Recorder) stopSources() {
	var g errgroup.Group
	for _, src := range r.sources {
		g.Go(func() error {
			if err := src.Stop(); err != nil {
				r.log.Warn("failed to stop source", logger.String("stream", src.Name()), logger.Error(err))
			}
			return nil
		})
	}
	for _, src := range r.metaSources {
		g.Go(func() error {
			if err := src.Stop(); err != nil {
				r.log.Warn("failed to stop metadata source", logger.String("stream", src.Name()), logger.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Recorder) sourceAppendFailed(s *session, stream string, err error) {
	if errors.Is(err, capture.ErrStreamClosed) {
		return
	}
	if s.sourceLimiter.Allow() {
		s.log.Warn("source sample rejected", logger.String("stream", stream), logger.Error(err))
	}
}

// abort tears down a session whose sources failed to start.
func (r *Recorder) abort(s *session) {
	s.cancel()
	for _, name := range s.order {
		s.streams[name].Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.DrainTimeout)
	defer cancel()
	_ = s.writer.Close(ctx)

	r.cur.Store(nil)
	r.state.Store(int32(StateIdle))
	s.log.Warn("recording aborted", logger.String("session_id", s.id))
}

// Append routes a sample to the named stream of the running session.
func (r *Recorder) Append(stream string, timestamp int64, planes []capture.Plane) (capture.AppendResult, error) {
	s := r.cur.Load()
	if s == nil {
		return capture.AppendResult{}, ErrNotRecording
	}
	buf, ok := s.streams[stream]
	if !ok {
		return capture.AppendResult{}, streamError(ErrUnknownStream, stream)
	}
	return buf.Append(timestamp, planes)
}

// RecordSettings routes camera settings to the named image stream.
func (r *Recorder) RecordSettings(stream string, timestamp int64, settings capture.SensorSettings) error {
	s := r.cur.Load()
	if s == nil {
		return ErrNotRecording
	}
	buf, ok := s.streams[stream]
	if !ok {
		return streamError(ErrUnknownStream, stream)
	}
	if buf.Kind() != capture.KindImage {
		return streamError(ErrNotImageStream, stream)
	}
	buf.RecordSettings(timestamp, settings)
	return nil
}

// Stop ends the running session: it detaches sources, hands off every
// partial chunk, waits for the writer up to the drain timeout and packages
// the session. It returns the archive path. Calling Stop while idle returns
// the previous session's archive path, or "" if there was none. Start calls
// made while Stop is draining fail with ErrSessionBusy.
func (r *Recorder) Stop(ctx context.Context) (string, error) {
	r.stopMu.Lock()
	defer r.stopMu.Unlock()

	r.mu.Lock()
	s := r.cur.Load()
	if r.State() != StateRecording || s == nil {
		last := r.lastArchive
		r.mu.Unlock()
		return last, nil
	}
	r.state.Store(int32(StateDraining))
	r.mu.Unlock()

	start := time.Now()

	s.cancel()
	r.stopSources()

	flushed := 0
	for _, name := range s.order {
		if s.streams[name].Close() {
			flushed++
		}
	}

	drainCtx, cancel := context.WithTimeout(ctx, r.cfg.DrainTimeout)
	defer cancel()
	if err := s.writer.Drain(drainCtx); err != nil {
		s.log.Warn("writer drain timed out, packaging what was written",
			logger.String("session_id", s.id),
			logger.Duration("drain_timeout", r.cfg.DrainTimeout),
			logger.Error(err))
	}
	if err := s.writer.Close(drainCtx); err != nil {
		s.log.Debug("writer closed after timeout", logger.Error(err))
	}

	status := r.snapshot(s, StateIdle)

	if _, err := diskmanager.CheckFreeSpace(ctx, r.cfg.ArchiveDir, r.cfg.MinFreeBytes); err != nil {
		s.log.Warn("low disk space before packaging", logger.Error(err))
	}

	res, err := r.packager.Package(ctx, s.dir, s.id)
	if err != nil {
		r.finish(status, "")
		r.metrics.RecordSession(metrics.OutcomeFailed)
		s.log.Error("recording stopped without archive",
			logger.String("session_id", s.id),
			logger.Error(err))
		return "", err
	}

	status.LastArchive = res.Path
	r.finish(status, res.Path)

	outcome := metrics.OutcomeArchived
	if len(res.Added) == 0 {
		outcome = metrics.OutcomeEmpty
	}
	r.metrics.RecordSession(outcome)

	s.log.Info("recording stopped",
		logger.String("session_id", s.id),
		logger.String("archive", res.Path),
		logger.Int("final_chunks", flushed),
		logger.Uint64("chunks_written", status.Writer.Written),
		logger.Uint64("chunks_dropped", status.Writer.Dropped),
		logger.Duration("session_duration", start.Sub(s.started)),
		logger.Duration("stop_duration", time.Since(start)))
	return res.Path, nil
}

// finish returns the recorder to idle.
func (r *Recorder) finish(status *Status, archivePath string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cur.Store(nil)
	r.lastArchive = archivePath
	r.lastStatus = status
	r.state.Store(int32(StateIdle))
	r.metrics.SetSessionActive(false)
}

func removeIfEmpty(dir string) {
	entries, err := os.ReadDir(dir)
	if err == nil && len(entries) == 0 {
		_ = os.Remove(dir)
	}
}
