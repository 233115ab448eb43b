// Package capture implements the double-buffered chunk pipeline between sensor
// callbacks and the background chunk writer.
//
// Each stream owns an arena of fixed-capacity chunks. Producers append into the
// active chunk; when it fills, the next append swaps in a fresh chunk and hands
// the full one to a HandoffSink together with the metadata snapshot that
// belongs to it. The sink returns the chunk to the arena through Handoff.Release.
package capture

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// StreamKind identifies the payload layout of a stream.
type StreamKind uint8

const (
	KindImage    StreamKind = 1
	KindInertial StreamKind = 2
)

// InertialPayloadSize is the byte size of one inertial sample (x, y, z float32).
const InertialPayloadSize = 12

func (k StreamKind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindInertial:
		return "inertial"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseStreamKind converts a configuration name into a StreamKind.
func ParseStreamKind(s string) (StreamKind, error) {
	switch s {
	case "image":
		return KindImage, nil
	case "inertial":
		return KindInertial, nil
	default:
		return 0, fmt.Errorf("unknown stream kind %q", s)
	}
}

// Plane is one contiguous block of payload bytes. Image planes carry their
// row and pixel strides; inertial samples use a single plane with zero strides.
type Plane struct {
	Data        []byte
	RowStride   uint32
	PixelStride uint32
}

// SensorSettings is the camera state reported for a frame.
type SensorSettings struct {
	Sensitivity  int32
	ExposureTime time.Duration
	Resolved     bool
}

// Entry is one captured sample inside a chunk.
type Entry struct {
	Index     uint32
	Timestamp int64
	Planes    []Plane
	Settings  SensorSettings
}

// PayloadBytes returns the total plane data length.
func (e *Entry) PayloadBytes() int {
	n := 0
	for i := range e.Planes {
		n += len(e.Planes[i].Data)
	}
	return n
}

// PayloadShape fixes the plane layout of a stream for a session. A zero entry
// in PlaneBytes is learned from the first sample.
type PayloadShape struct {
	Planes     int
	PlaneBytes []int
}

// InertialShape is the shape every inertial stream uses.
func InertialShape() PayloadShape {
	return PayloadShape{Planes: 1, PlaneBytes: []int{InertialPayloadSize}}
}

// InertialPlanes encodes an (x, y, z) sample as a single little-endian plane.
func InertialPlanes(x, y, z float32) []Plane {
	buf := make([]byte, InertialPayloadSize)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(x))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(y))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(z))
	return []Plane{{Data: buf}}
}

// DecodeInertial is the inverse of InertialPlanes.
func DecodeInertial(planes []Plane) (x, y, z float32, err error) {
	if len(planes) != 1 || len(planes[0].Data) != InertialPayloadSize {
		return 0, 0, 0, ErrShapeMismatch
	}
	d := planes[0].Data
	x = math.Float32frombits(binary.LittleEndian.Uint32(d[0:4]))
	y = math.Float32frombits(binary.LittleEndian.Uint32(d[4:8]))
	z = math.Float32frombits(binary.LittleEndian.Uint32(d[8:12]))
	return x, y, z, nil
}
