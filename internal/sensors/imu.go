package sensors

import (
	"context"
	"math"
	"math/rand/v2"

	"github.com/tphakala/sensorrec/internal/capture"
)

// IMUAxis selects the signal a simulated inertial sensor produces.
type IMUAxis int

const (
	// Accelerometer reports gravity on z plus small vibration.
	Accelerometer IMUAxis = iota
	// Gyroscope reports a slow rotation around z plus noise.
	Gyroscope
)

// SimulatedIMU produces (x, y, z) samples at a fixed rate.
type SimulatedIMU struct {
	name  string
	axis  IMUAxis
	rate  float64
	clock Clock
	rng   *rand.Rand

	runner runner
	n      uint64
}

// NewSimulatedIMU creates an inertial source for stream name at rate Hz.
func NewSimulatedIMU(name string, axis IMUAxis, rate float64, clock Clock, seed int64) *SimulatedIMU {
	if clock == nil {
		clock = MonotonicClock()
	}
	return &SimulatedIMU{
		name:  name,
		axis:  axis,
		rate:  rate,
		clock: clock,
		rng:   rand.New(rand.NewPCG(uint64(seed), uint64(axis))), //nolint:gosec // G404,G115: simulation noise
	}
}

// Name returns the stream the source feeds.
func (s *SimulatedIMU) Name() string { return s.name }

// Start emits samples on a background goroutine until Stop or ctx is done.
func (s *SimulatedIMU) Start(ctx context.Context, fn SampleFunc) error {
	return s.runner.start(ctx, s.name, func(ctx context.Context) {
		tick(ctx, s.rate, func() {
			x, y, z := s.Next()
			fn(s.clock(), capture.InertialPlanes(x, y, z))
		})
	})
}

// Stop halts the source and waits for its goroutine.
func (s *SimulatedIMU) Stop() error {
	s.runner.stop()
	return nil
}

// Next returns the next simulated reading. Only the source goroutine calls it
// while running.
func (s *SimulatedIMU) Next() (x, y, z float32) {
	phase := float64(s.n) / s.rate * 2 * math.Pi
	s.n++
	noise := func(scale float64) float32 { return float32((s.rng.Float64() - 0.5) * scale) }

	switch s.axis {
	case Gyroscope:
		return noise(0.01), noise(0.01), float32(0.2*math.Sin(phase*0.1)) + noise(0.01)
	default:
		return float32(0.05*math.Sin(phase*3)) + noise(0.02), noise(0.02), 9.81 + noise(0.05)
	}
}
