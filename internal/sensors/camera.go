package sensors

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/tphakala/sensorrec/internal/capture"
)

// frameQueueSize bounds frames waiting for their simulated metadata.
const frameQueueSize = 64

// SimulatedCamera produces three-plane YUV 4:2:0 frames at a fixed rate.
// Plane buffers are reused between frames.
type SimulatedCamera struct {
	name   string
	fps    float64
	width  int
	height int
	clock  Clock

	planes []capture.Plane
	frame  uint64

	mu       sync.Mutex
	metadata *SimulatedCameraMetadata

	runner runner
}

// NewSimulatedCamera creates an image source for stream name.
func NewSimulatedCamera(name string, fps float64, width, height int, clock Clock) *SimulatedCamera {
	if clock == nil {
		clock = MonotonicClock()
	}
	cw, ch := (width+1)/2, (height+1)/2
	return &SimulatedCamera{
		name:   name,
		fps:    fps,
		width:  width,
		height: height,
		clock:  clock,
		planes: []capture.Plane{
			{Data: make([]byte, width*height), RowStride: uint32(width), PixelStride: 1}, //nolint:gosec // G115: validated dimensions
			{Data: make([]byte, cw*ch), RowStride: uint32(cw), PixelStride: 1},           //nolint:gosec // G115: validated dimensions
			{Data: make([]byte, cw*ch), RowStride: uint32(cw), PixelStride: 1},           //nolint:gosec // G115: validated dimensions
		},
	}
}

// PlaneBytes returns the size of each plane the camera produces.
func (c *SimulatedCamera) PlaneBytes() []int {
	return []int{len(c.planes[0].Data), len(c.planes[1].Data), len(c.planes[2].Data)}
}

// Name returns the stream the camera feeds.
func (c *SimulatedCamera) Name() string { return c.name }

// Start emits frames until Stop or ctx is done.
func (c *SimulatedCamera) Start(ctx context.Context, fn SampleFunc) error {
	return c.runner.start(ctx, c.name, func(ctx context.Context) {
		tick(ctx, c.fps, func() {
			ts := c.clock()
			c.render()
			fn(ts, c.planes)
			c.mu.Lock()
			md := c.metadata
			c.mu.Unlock()
			if md != nil {
				md.frameCaptured(ts)
			}
		})
	})
}

// Stop halts the camera and waits for its goroutine.
func (c *SimulatedCamera) Stop() error {
	c.runner.stop()
	return nil
}

// render draws a moving gradient into the planes.
func (c *SimulatedCamera) render() {
	shift := byte(c.frame)
	c.frame++
	y := c.planes[0].Data
	for row := range c.height {
		base := row * c.width
		for col := range c.width {
			y[base+col] = byte(col+row) + shift
		}
	}
	for i := range c.planes[1].Data {
		c.planes[1].Data[i] = 128 + shift/4
		c.planes[2].Data[i] = 128 - shift/4
	}
}

// Metadata returns the settings source bound to this camera. Each captured
// frame is reported once the source is started.
func (c *SimulatedCamera) Metadata(dropRate float64, jitter time.Duration, seed int64) *SimulatedCameraMetadata {
	md := &SimulatedCameraMetadata{
		name:     c.name,
		dropRate: dropRate,
		jitter:   jitter,
		rng:      rand.New(rand.NewPCG(uint64(seed), 0x5eed)), //nolint:gosec // G404,G115: simulation noise
		frames:   make(chan int64, frameQueueSize),
	}
	c.mu.Lock()
	c.metadata = md
	c.mu.Unlock()
	return md
}

// SimulatedCameraMetadata reports sensor settings for frames of a
// SimulatedCamera after a random delay, dropping some of them.
type SimulatedCameraMetadata struct {
	name     string
	dropRate float64
	jitter   time.Duration
	rng      *rand.Rand
	frames   chan int64

	runner runner
}

// Name returns the image stream the settings belong to.
func (m *SimulatedCameraMetadata) Name() string { return m.name }

// Start delivers settings until Stop or ctx is done.
func (m *SimulatedCameraMetadata) Start(ctx context.Context, fn SettingsFunc) error {
	return m.runner.start(ctx, m.name, func(ctx context.Context) {
		var n int32
		for {
			select {
			case <-ctx.Done():
				return
			case ts := <-m.frames:
				n++
				if m.rng.Float64() < m.dropRate {
					continue
				}
				if m.jitter > 0 {
					delay := time.Duration(m.rng.Int64N(int64(m.jitter)))
					select {
					case <-ctx.Done():
						return
					case <-time.After(delay):
					}
				}
				fn(ts, capture.SensorSettings{
					Sensitivity:  100 + (n%8)*50,
					ExposureTime: time.Second / 120,
				})
			}
		}
	})
}

// Stop halts delivery and waits for the goroutine.
func (m *SimulatedCameraMetadata) Stop() error {
	m.runner.stop()
	return nil
}

// frameCaptured queues a frame for settings delivery. Frames are dropped
// when the queue is full.
func (m *SimulatedCameraMetadata) frameCaptured(ts int64) {
	select {
	case m.frames <- ts:
	default:
	}
}
