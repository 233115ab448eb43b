// Package sensors defines the device interfaces a recording session consumes
// and simulated devices for the record command and tests.
package sensors

import (
	"context"
	"sync"
	"time"

	"github.com/tphakala/sensorrec/internal/capture"
	"github.com/tphakala/sensorrec/internal/errors"
)

// ComponentSensors identifies errors raised by sensor sources.
const ComponentSensors = "sensors"

// ErrAlreadyStarted is returned by Start on a running source.
var ErrAlreadyStarted = errors.Newf("sensor source already started").
	Component(ComponentSensors).
	Category(errors.CategorySensor).
	Build()

// SampleFunc receives one sample. Plane data may be reused after it returns.
type SampleFunc func(timestamp int64, planes []capture.Plane)

// SettingsFunc receives the camera settings for the frame at timestamp.
type SettingsFunc func(timestamp int64, settings capture.SensorSettings)

// HardwareSource delivers samples for one stream.
type HardwareSource interface {
	Name() string
	Start(ctx context.Context, fn SampleFunc) error
	Stop() error
}

// MetadataSource delivers sensor settings for an image stream.
type MetadataSource interface {
	Name() string
	Start(ctx context.Context, fn SettingsFunc) error
	Stop() error
}

// Clock returns a monotonic timestamp in nanoseconds.
type Clock func() int64

// MonotonicClock returns a Clock counting nanoseconds since its creation.
func MonotonicClock() Clock {
	base := time.Now()
	return func() int64 { return int64(time.Since(base)) }
}

// runner owns the goroutine of a ticking simulated device.
type runner struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (r *runner) start(ctx context.Context, name string, loop func(ctx context.Context)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return errors.New(ErrAlreadyStarted).
			Component(ComponentSensors).
			Category(errors.CategorySensor).
			Context("source", name).
			Build()
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.wg.Go(func() { loop(ctx) })
	return nil
}

// stop cancels the loop and waits for it. Stopping an idle runner is a no-op.
func (r *runner) stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	r.wg.Wait()
}

// tick calls fn at the given rate until ctx is done.
func tick(ctx context.Context, rate float64, fn func()) {
	interval := time.Duration(float64(time.Second) / rate)
	if interval <= 0 {
		interval = time.Nanosecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
