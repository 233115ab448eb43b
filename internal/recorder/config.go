package recorder

import (
	"fmt"
	"time"

	"github.com/tphakala/sensorrec/internal/capture"
	"github.com/tphakala/sensorrec/internal/conf"
)

// DefaultDrainTimeout bounds the writer drain on Stop when Config leaves it zero.
const DefaultDrainTimeout = conf.DefaultDrainTimeout

// Config is the session configuration derived from conf.Settings.
type Config struct {
	OutputDir        string
	ArchiveDir       string
	DrainTimeout     time.Duration
	MinFreeBytes     uint64
	CompressionLevel int
	Streams          []capture.StreamConfig
}

// ConfigFromSettings converts loaded settings into a session configuration.
func ConfigFromSettings(s *conf.Settings) (Config, error) {
	cfg := Config{
		OutputDir:        s.Recorder.OutputDir,
		ArchiveDir:       s.Recorder.ArchiveDir,
		DrainTimeout:     s.Recorder.DrainTimeout,
		MinFreeBytes:     s.Recorder.MinFreeBytes,
		CompressionLevel: s.Recorder.CompressionLevel,
	}
	for i := range s.Streams {
		sc, err := StreamConfigFromSettings(&s.Streams[i])
		if err != nil {
			return Config{}, err
		}
		cfg.Streams = append(cfg.Streams, sc)
	}
	return cfg, nil
}

// StreamConfigFromSettings converts one configured stream.
func StreamConfigFromSettings(ss *conf.StreamSettings) (capture.StreamConfig, error) {
	kind, err := capture.ParseStreamKind(ss.Kind)
	if err != nil {
		return capture.StreamConfig{}, fmt.Errorf("stream %q: %w", ss.Name, err)
	}
	policy, err := capture.ParseBackpressurePolicy(ss.Backpressure)
	if err != nil {
		return capture.StreamConfig{}, fmt.Errorf("stream %q: %w", ss.Name, err)
	}

	sc := capture.StreamConfig{
		Name:         ss.Name,
		Kind:         kind,
		Capacity:     ss.Capacity,
		Slots:        ss.Slots,
		Backpressure: policy,
		MaxOverflow:  ss.MaxOverflow,
		BlockTimeout: ss.BlockTimeout,
	}
	if kind == capture.KindImage {
		sc.Shape = capture.PayloadShape{Planes: ss.Planes, PlaneBytes: append([]int(nil), ss.PlaneBytes...)}
	}
	return sc, nil
}

// validate checks the session-level settings and every stream.
func (c *Config) validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("%w: output directory is required", capture.ErrInvalidConfig)
	}
	if c.ArchiveDir == "" {
		c.ArchiveDir = c.OutputDir
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
	if len(c.Streams) == 0 {
		return fmt.Errorf("%w: at least one stream is required", capture.ErrInvalidConfig)
	}
	seen := make(map[string]struct{}, len(c.Streams))
	for i := range c.Streams {
		c.Streams[i] = c.Streams[i].WithDefaults()
		if err := c.Streams[i].Validate(); err != nil {
			return err
		}
		name := c.Streams[i].Name
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: duplicate stream %q", capture.ErrInvalidConfig, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}
