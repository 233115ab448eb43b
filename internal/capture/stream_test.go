package capture

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/sensorrec/internal/errors"
	"github.com/tphakala/sensorrec/internal/logger"
)

// recordedHandoff is what collectingSink keeps after the chunk is released.
type recordedHandoff struct {
	seq        uint64
	forced     bool
	timestamps []int64
	indices    []uint32
	settings   map[int64]SensorSettings
}

// collectingSink records every handoff. With autoRelease it returns chunks
// to the arena immediately; otherwise they are held until releaseAll.
type collectingSink struct {
	mu          sync.Mutex
	autoRelease bool
	got         []recordedHandoff
	held        []Handoff
}

func (s *collectingSink) Submit(h Handoff) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := recordedHandoff{seq: h.Seq, forced: h.Forced, settings: h.Settings}
	for _, e := range h.Chunk.Entries() {
		rec.timestamps = append(rec.timestamps, e.Timestamp)
		rec.indices = append(rec.indices, e.Index)
	}
	s.got = append(s.got, rec)

	if s.autoRelease {
		h.Release()
		return
	}
	s.held = append(s.held, h)
}

func (s *collectingSink) handoffs() []recordedHandoff {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recordedHandoff(nil), s.got...)
}

func (s *collectingSink) releaseAll() {
	s.mu.Lock()
	held := s.held
	s.held = nil
	s.mu.Unlock()
	for i := range held {
		held[i].Release()
	}
}

func inertialConfig(name string, capacity int) StreamConfig {
	return StreamConfig{Name: name, Kind: KindInertial, Capacity: capacity}
}

func newTestStream(t *testing.T, cfg StreamConfig, sink HandoffSink, opts ...StreamOption) *StreamBuffer {
	t.Helper()
	opts = append([]StreamOption{WithLogger(logger.NewDiscardLogger())}, opts...)
	s, err := NewStreamBuffer(cfg, sink, opts...)
	require.NoError(t, err)
	return s
}

func appendInertial(t *testing.T, s *StreamBuffer, ts int64) AppendResult {
	t.Helper()
	res, err := s.Append(ts, InertialPlanes(float32(ts), 0, 0))
	require.NoError(t, err)
	return res
}

func TestStreamBuffer_PartialChunkOnClose(t *testing.T) {
	t.Parallel()

	sink := &collectingSink{autoRelease: true}
	s := newTestStream(t, inertialConfig("acc", 1000), sink)

	for i := range 10 {
		res := appendInertial(t, s, int64(i))
		assert.Equal(t, uint32(i), res.Index)
		assert.False(t, res.ChunkBecameFull)
	}
	assert.Empty(t, sink.handoffs(), "nothing is handed off before the chunk fills")

	require.True(t, s.Close())

	got := sink.handoffs()
	require.Len(t, got, 1)
	assert.Equal(t, uint64(0), got[0].seq)
	assert.True(t, got[0].forced)
	assert.Len(t, got[0].timestamps, 10)
	assert.Equal(t, uint32(9), got[0].indices[9])
}

func TestStreamBuffer_SplitsIntoSequentialChunks(t *testing.T) {
	t.Parallel()

	sink := &collectingSink{autoRelease: true}
	s := newTestStream(t, inertialConfig("acc", 1000), sink)

	for i := range 2500 {
		res := appendInertial(t, s, int64(i))
		if i == 999 || i == 1999 {
			assert.True(t, res.ChunkBecameFull, "append %d", i)
		}
	}
	require.Len(t, sink.handoffs(), 2, "full chunks are handed off on the next append")
	require.True(t, s.Close())

	got := sink.handoffs()
	require.Len(t, got, 3)
	sizes := []int{len(got[0].timestamps), len(got[1].timestamps), len(got[2].timestamps)}
	assert.Equal(t, []int{1000, 1000, 500}, sizes)
	for i, h := range got {
		assert.Equal(t, uint64(i), h.seq)
		assert.Equal(t, uint32(0), h.indices[0], "indices restart in every chunk")
		assert.Equal(t, int64(i*1000), h.timestamps[0])
	}
	assert.False(t, got[0].forced)
	assert.True(t, got[2].forced)

	stats := s.Stats()
	assert.Equal(t, uint64(2500), stats.Appended)
	assert.Equal(t, uint64(3), stats.HandedOff)
	assert.Equal(t, uint64(3), stats.NextSeq)
	assert.Zero(t, stats.Overruns)
}

func TestStreamBuffer_ExactlyFullChunkOnClose(t *testing.T) {
	t.Parallel()

	sink := &collectingSink{autoRelease: true}
	s := newTestStream(t, inertialConfig("gyro", 5), sink)
	for i := range 5 {
		appendInertial(t, s, int64(i))
	}
	require.True(t, s.Close())

	got := sink.handoffs()
	require.Len(t, got, 1)
	assert.Len(t, got[0].timestamps, 5)
}

func TestStreamBuffer_FlushAndClose(t *testing.T) {
	t.Parallel()

	sink := &collectingSink{autoRelease: true}
	s := newTestStream(t, inertialConfig("acc", 10), sink)

	assert.False(t, s.Flush(), "empty chunk is not flushed")
	appendInertial(t, s, 1)
	assert.True(t, s.Flush())
	assert.False(t, s.Close(), "nothing left after flush")
	assert.False(t, s.Close(), "close is idempotent")

	_, err := s.Append(2, InertialPlanes(0, 0, 0))
	require.ErrorIs(t, err, ErrStreamClosed)
	assert.False(t, s.Flush())

	got := sink.handoffs()
	require.Len(t, got, 1)
	assert.True(t, got[0].forced)
	assert.Equal(t, 0, s.Stats().SlotsInFlight)
}

func TestStreamBuffer_ShapeValidation(t *testing.T) {
	t.Parallel()

	sink := &collectingSink{autoRelease: true}
	cfg := StreamConfig{
		Name:     "camera",
		Kind:     KindImage,
		Capacity: 4,
		Shape:    PayloadShape{Planes: 2, PlaneBytes: []int{8, 0}},
	}
	s := newTestStream(t, cfg, sink)

	_, err := s.Append(1, []Plane{{Data: make([]byte, 8)}})
	require.ErrorIs(t, err, ErrShapeMismatch)

	_, err = s.Append(1, []Plane{{Data: make([]byte, 7)}, {Data: make([]byte, 4)}})
	require.ErrorIs(t, err, ErrShapeMismatch)

	// the first accepted sample fixes the learned plane size
	_, err = s.Append(1, []Plane{{Data: make([]byte, 8)}, {Data: make([]byte, 4)}})
	require.NoError(t, err)
	_, err = s.Append(2, []Plane{{Data: make([]byte, 8)}, {Data: make([]byte, 2)}})
	require.ErrorIs(t, err, ErrShapeMismatch)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	stats := s.Stats()
	assert.Equal(t, uint64(3), stats.Rejected)
	assert.Equal(t, uint64(1), stats.Appended)
	assert.Equal(t, 1, stats.ActiveEntries)
}

func TestStreamBuffer_DropPolicyAdvancesSequence(t *testing.T) {
	t.Parallel()

	sink := &collectingSink{}
	var events []OverrunEvent
	cfg := inertialConfig("acc", 2)
	cfg.Slots = 2
	cfg.Backpressure = PolicyDrop
	s := newTestStream(t, cfg, sink, WithOverrunHook(func(ev OverrunEvent) {
		events = append(events, ev)
	}))

	for i := range 4 {
		appendInertial(t, s, int64(i))
	}
	res := appendInertial(t, s, 4)
	assert.Equal(t, uint64(2), res.ChunkSeq, "dropped chunk leaves a gap in the sequence")
	assert.Equal(t, uint32(0), res.Index)

	require.Len(t, events, 1)
	assert.Equal(t, OverrunDropped, events[0].Outcome)
	assert.Equal(t, 2, events[0].DroppedEntries)
	assert.Equal(t, uint64(1), events[0].Seq)
	require.ErrorIs(t, events[0].Err, ErrProducerOverrun)

	stats := s.Stats()
	assert.Equal(t, uint64(1), stats.Overruns)
	assert.Equal(t, uint64(2), stats.DroppedEntries)

	sink.releaseAll()
	require.True(t, s.Close())
	got := sink.handoffs()
	require.Len(t, got, 2)
	assert.Equal(t, uint64(0), got[0].seq)
	assert.Equal(t, uint64(2), got[1].seq)
	assert.Equal(t, []int64{4}, got[1].timestamps)
}

func TestStreamBuffer_GrowPolicyUsesOverflowBudget(t *testing.T) {
	t.Parallel()

	sink := &collectingSink{}
	var outcomes []OverrunOutcome
	cfg := inertialConfig("acc", 1)
	cfg.Slots = 2
	cfg.MaxOverflow = 1
	s := newTestStream(t, cfg, sink, WithOverrunHook(func(ev OverrunEvent) {
		outcomes = append(outcomes, ev.Outcome)
	}))

	appendInertial(t, s, 0)
	appendInertial(t, s, 1) // handoff seq 0 from the free list
	appendInertial(t, s, 2) // handoff seq 1 into an overflow chunk
	assert.Equal(t, 1, s.Stats().OverflowInUse)

	res := appendInertial(t, s, 3) // budget spent, chunk 2 dropped
	assert.Equal(t, uint64(3), res.ChunkSeq)
	assert.Equal(t, []OverrunOutcome{OverrunGrew, OverrunDropped}, outcomes)

	sink.releaseAll()
	assert.Equal(t, 1, s.Stats().OverflowInUse, "active overflow chunk is still held")
	require.True(t, s.Close())
	sink.releaseAll()
	assert.Equal(t, 0, s.Stats().OverflowInUse)
	assert.Len(t, sink.handoffs(), 3)
}

func TestStreamBuffer_BlockPolicyWaitsForRelease(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		released []uint64
	)
	sink := HandoffFunc(func(h Handoff) {
		go func() {
			time.Sleep(20 * time.Millisecond)
			mu.Lock()
			released = append(released, h.Seq)
			mu.Unlock()
			h.Release()
		}()
	})

	var outcomes []OverrunOutcome
	cfg := inertialConfig("acc", 1)
	cfg.Slots = 2
	cfg.Backpressure = PolicyBlock
	cfg.BlockTimeout = 2 * time.Second
	s := newTestStream(t, cfg, sink, WithOverrunHook(func(ev OverrunEvent) {
		outcomes = append(outcomes, ev.Outcome)
	}))

	appendInertial(t, s, 0)
	appendInertial(t, s, 1)
	res := appendInertial(t, s, 2)

	assert.Equal(t, uint64(2), res.ChunkSeq)
	assert.Equal(t, []OverrunOutcome{OverrunWaited}, outcomes)
	assert.Zero(t, s.Stats().DroppedEntries)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(released) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestStreamBuffer_BlockPolicyTimesOutToDrop(t *testing.T) {
	t.Parallel()

	sink := &collectingSink{}
	cfg := inertialConfig("acc", 1)
	cfg.Slots = 2
	cfg.Backpressure = PolicyBlock
	cfg.BlockTimeout = 10 * time.Millisecond
	s := newTestStream(t, cfg, sink)

	appendInertial(t, s, 0)
	appendInertial(t, s, 1)
	appendInertial(t, s, 2)

	stats := s.Stats()
	assert.Equal(t, uint64(1), stats.Overruns)
	assert.Equal(t, uint64(1), stats.DroppedEntries)
	sink.releaseAll()
}

func TestStreamBuffer_ForcedFlushNeverDrops(t *testing.T) {
	t.Parallel()

	sink := &collectingSink{}
	cfg := inertialConfig("acc", 2)
	cfg.Slots = 2
	cfg.Backpressure = PolicyDrop
	s := newTestStream(t, cfg, sink)

	appendInertial(t, s, 0)
	appendInertial(t, s, 1)
	appendInertial(t, s, 2) // seq 0 handed off, free list now empty

	require.True(t, s.Flush())
	got := sink.handoffs()
	require.Len(t, got, 2)
	assert.True(t, got[1].forced)
	assert.Equal(t, []int64{2}, got[1].timestamps)
	assert.Zero(t, s.Stats().DroppedEntries)

	sink.releaseAll()
	assert.False(t, s.Close())
}

func TestStreamBuffer_SettingsTravelWithChunk(t *testing.T) {
	t.Parallel()

	sink := &collectingSink{autoRelease: true}
	cfg := StreamConfig{
		Name:     "camera",
		Kind:     KindImage,
		Capacity: 2,
		Shape:    PayloadShape{Planes: 1, PlaneBytes: []int{4}},
	}
	s := newTestStream(t, cfg, sink)
	frame := []Plane{{Data: make([]byte, 4), RowStride: 2, PixelStride: 1}}

	s.RecordSettings(100, SensorSettings{Sensitivity: 100})
	s.RecordSettings(300, SensorSettings{Sensitivity: 300}) // arrives early
	_, err := s.Append(100, frame)
	require.NoError(t, err)
	_, err = s.Append(200, frame)
	require.NoError(t, err)
	_, err = s.Append(300, frame)
	require.NoError(t, err)
	require.True(t, s.Close())

	got := sink.handoffs()
	require.Len(t, got, 2)
	assert.Len(t, got[0].settings, 1)
	assert.Contains(t, got[0].settings, int64(100))
	assert.Contains(t, got[1].settings, int64(300), "settings for later frames carry forward")
}

func TestStreamBuffer_ConcurrentProducerAndConsumer(t *testing.T) {
	t.Parallel()

	handoffs := make(chan Handoff, 64)
	s := newTestStream(t, inertialConfig("acc", 100), HandoffFunc(func(h Handoff) {
		handoffs <- h
	}))

	var total int
	done := make(chan struct{})
	go func() {
		defer close(done)
		for h := range handoffs {
			total += h.Chunk.Len()
			h.Release()
		}
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		for i := range 5000 {
			_, err := s.Append(int64(i), InertialPlanes(1, 2, 3))
			assert.NoError(t, err)
		}
	})
	wg.Go(func() {
		for range 100 {
			s.Stats()
		}
	})
	wg.Wait()
	s.Close()
	close(handoffs)
	<-done

	stats := s.Stats()
	assert.Equal(t, 5000, total+int(stats.DroppedEntries))
}

func TestNewStreamBuffer_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	sink := &collectingSink{}
	tests := []struct {
		name string
		cfg  StreamConfig
	}{
		{"bad name", StreamConfig{Name: "Bad Name", Kind: KindInertial, Capacity: 1}},
		{"zero capacity", StreamConfig{Name: "acc", Kind: KindInertial}},
		{"unknown kind", StreamConfig{Name: "acc", Kind: 9, Capacity: 1}},
		{"one slot", StreamConfig{Name: "acc", Kind: KindInertial, Capacity: 1, Slots: 1}},
		{"image without planes", StreamConfig{Name: "cam", Kind: KindImage, Capacity: 1}},
		{"wrong inertial shape", StreamConfig{
			Name: "acc", Kind: KindInertial, Capacity: 1,
			Shape: PayloadShape{Planes: 1, PlaneBytes: []int{16}},
		}},
		{"plane size count", StreamConfig{
			Name: "cam", Kind: KindImage, Capacity: 1,
			Shape: PayloadShape{Planes: 2, PlaneBytes: []int{1}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewStreamBuffer(tt.cfg, sink)
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	_, err := NewStreamBuffer(inertialConfig("acc", 1), nil)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestParseBackpressurePolicy(t *testing.T) {
	t.Parallel()

	for name, want := range map[string]BackpressurePolicy{
		"": PolicyGrow, "grow": PolicyGrow, "drop": PolicyDrop, "block": PolicyBlock,
	} {
		got, err := ParseBackpressurePolicy(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseBackpressurePolicy("wait")
	require.Error(t, err)
}
