package capture

import (
	"fmt"
	"regexp"
	"slices"
	"time"
)

// BackpressurePolicy decides what a stream does when its arena has no free chunk.
type BackpressurePolicy uint8

const (
	// PolicyGrow allocates overflow chunks up to MaxOverflow, then drops.
	PolicyGrow BackpressurePolicy = iota
	// PolicyDrop discards the full chunk's entries and reuses it.
	PolicyDrop
	// PolicyBlock waits up to BlockTimeout for a chunk, then drops.
	PolicyBlock
)

func (p BackpressurePolicy) String() string {
	switch p {
	case PolicyGrow:
		return "grow"
	case PolicyDrop:
		return "drop"
	case PolicyBlock:
		return "block"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

// ParseBackpressurePolicy converts a configuration name. Empty means grow.
func ParseBackpressurePolicy(s string) (BackpressurePolicy, error) {
	switch s {
	case "", "grow":
		return PolicyGrow, nil
	case "drop":
		return PolicyDrop, nil
	case "block":
		return PolicyBlock, nil
	default:
		return 0, fmt.Errorf("unknown backpressure policy %q", s)
	}
}

const (
	DefaultSlots        = 3
	DefaultMaxOverflow  = 4
	DefaultBlockTimeout = 250 * time.Millisecond
)

var streamNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// StreamConfig configures one StreamBuffer.
type StreamConfig struct {
	Name         string
	Kind         StreamKind
	Capacity     int
	Shape        PayloadShape
	Slots        int
	Backpressure BackpressurePolicy
	MaxOverflow  int
	BlockTimeout time.Duration
}

// WithDefaults returns a copy with zero values replaced by defaults.
func (c StreamConfig) WithDefaults() StreamConfig {
	if c.Slots == 0 {
		c.Slots = DefaultSlots
	}
	if c.Kind == KindInertial && c.Shape.Planes == 0 {
		c.Shape = InertialShape()
	}
	if c.Shape.Planes > 0 && len(c.Shape.PlaneBytes) == 0 {
		c.Shape.PlaneBytes = make([]int, c.Shape.Planes)
	} else {
		c.Shape.PlaneBytes = slices.Clone(c.Shape.PlaneBytes)
	}
	if c.Backpressure == PolicyBlock && c.BlockTimeout == 0 {
		c.BlockTimeout = DefaultBlockTimeout
	}
	return c
}

// Validate reports the first problem with the configuration.
func (c StreamConfig) Validate() error {
	if !streamNamePattern.MatchString(c.Name) {
		return configError(c.Name, "stream name %q must match %s", c.Name, streamNamePattern)
	}
	if c.Kind != KindImage && c.Kind != KindInertial {
		return configError(c.Name, "unsupported stream kind %s", c.Kind)
	}
	if c.Capacity <= 0 {
		return configError(c.Name, "capacity must be positive, got %d", c.Capacity)
	}
	if c.Slots < 2 {
		return configError(c.Name, "at least 2 slots are required, got %d", c.Slots)
	}
	if c.Shape.Planes <= 0 {
		return configError(c.Name, "shape needs at least one plane")
	}
	if len(c.Shape.PlaneBytes) != c.Shape.Planes {
		return configError(c.Name, "shape lists %d plane sizes for %d planes", len(c.Shape.PlaneBytes), c.Shape.Planes)
	}
	for _, n := range c.Shape.PlaneBytes {
		if n < 0 {
			return configError(c.Name, "plane size must not be negative")
		}
	}
	if c.Kind == KindInertial && (c.Shape.Planes != 1 || c.Shape.PlaneBytes[0] != InertialPayloadSize) {
		return configError(c.Name, "inertial streams carry one %d byte plane", InertialPayloadSize)
	}
	if c.Backpressure > PolicyBlock {
		return configError(c.Name, "unsupported backpressure policy %s", c.Backpressure)
	}
	if c.MaxOverflow < 0 || c.BlockTimeout < 0 {
		return configError(c.Name, "max overflow and block timeout must not be negative")
	}
	return nil
}
