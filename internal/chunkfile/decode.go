package chunkfile

import (
	"encoding/binary"
	"io"
	"math"
	"os"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/tphakala/sensorrec/internal/capture"
	"github.com/tphakala/sensorrec/internal/errors"
)

// Header is the decoded fixed-size file header.
type Header struct {
	Version    uint8
	Kind       capture.StreamKind
	Flags      uint16
	Seq        uint32
	EntryCount uint32
	EntrySize  uint32
}

// HasSettings reports whether entries carry a settings block.
func (h Header) HasSettings() bool { return h.Flags&FlagSettings != 0 }

// File is a decoded chunk. Entry plane data aliases the decoded buffer.
type File struct {
	Header  Header
	Entries []capture.Entry
}

// Summary condenses a decoded chunk for listings.
type Summary struct {
	Kind           string `yaml:"kind"`
	Seq            uint32 `yaml:"seq"`
	Entries        int    `yaml:"entries"`
	FirstTimestamp int64  `yaml:"first_timestamp"`
	LastTimestamp  int64  `yaml:"last_timestamp"`
	Resolved       int    `yaml:"settings_resolved"`
	PayloadBytes   int    `yaml:"payload_bytes"`
}

// Summary returns the listing view of f.
func (f *File) Summary() Summary {
	s := Summary{
		Kind:    f.Header.Kind.String(),
		Seq:     f.Header.Seq,
		Entries: len(f.Entries),
	}
	if len(f.Entries) > 0 {
		s.FirstTimestamp = f.Entries[0].Timestamp
		s.LastTimestamp = f.Entries[len(f.Entries)-1].Timestamp
	}
	for i := range f.Entries {
		if f.Entries[i].Settings.Resolved {
			s.Resolved++
		}
		s.PayloadBytes += f.Entries[i].PayloadBytes()
	}
	return s
}

// Unmarshal decodes a complete chunk file held in b.
func Unmarshal(b []byte) (*File, error) {
	if len(b) < HeaderSize+TrailerSize {
		return nil, corrupt("%d bytes is shorter than header and trailer", len(b))
	}

	body := b[:len(b)-TrailerSize]
	want := binary.LittleEndian.Uint64(b[len(b)-TrailerSize:])
	if got := xxhash.Sum64(body); got != want {
		return nil, corrupt("checksum %016x does not match trailer %016x", got, want)
	}

	if string(body[0:4]) != Magic {
		return nil, corrupt("bad magic %q", body[0:4])
	}
	h := Header{
		Version:    body[4],
		Kind:       capture.StreamKind(body[5]),
		Flags:      binary.LittleEndian.Uint16(body[6:8]),
		Seq:        binary.LittleEndian.Uint32(body[8:12]),
		EntryCount: binary.LittleEndian.Uint32(body[12:16]),
		EntrySize:  binary.LittleEndian.Uint32(body[16:20]),
	}
	if h.Version != Version {
		return nil, corrupt("unsupported version %d", h.Version)
	}
	if h.Kind != capture.KindImage && h.Kind != capture.KindInertial {
		return nil, corrupt("unknown stream kind %d", body[5])
	}

	rest := body[HeaderSize:]
	if uint64(h.EntryCount)*entryPrefixSize > uint64(len(rest)) {
		return nil, corrupt("entry count %d exceeds file size", h.EntryCount)
	}

	d := decoder{buf: rest, kind: h.Kind, withSettings: h.HasSettings()}
	entries := make([]capture.Entry, h.EntryCount)
	for i := range entries {
		if err := d.entry(&entries[i]); err != nil {
			return nil, err
		}
	}
	if len(d.buf) != 0 {
		return nil, corrupt("%d unexpected bytes after last entry", len(d.buf))
	}
	return &File{Header: h, Entries: entries}, nil
}

// Decode reads a complete chunk file from r.
func Decode(r io.Reader) (*File, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.New(err).
			Component(ComponentChunkFile).
			Category(errors.CategoryFileIO).
			Build()
	}
	return Unmarshal(b)
}

// ReadFile decodes the chunk file at path.
func ReadFile(path string) (*File, error) {
	b, err := os.ReadFile(path) //nolint:gosec // G304: path is supplied by the operator
	if err != nil {
		return nil, errors.FileError(err, path, 0)
	}
	return Unmarshal(b)
}

type decoder struct {
	buf          []byte
	kind         capture.StreamKind
	withSettings bool
}

func (d *decoder) take(n int) ([]byte, bool) {
	if n < 0 || n > len(d.buf) {
		return nil, false
	}
	b := d.buf[:n:n]
	d.buf = d.buf[n:]
	return b, true
}

func (d *decoder) entry(e *capture.Entry) error {
	prefix, ok := d.take(entryPrefixSize)
	if !ok {
		return corrupt("truncated entry header")
	}
	e.Timestamp = int64(binary.LittleEndian.Uint64(prefix[0:8])) //nolint:gosec // G115: bit pattern preserved
	e.Index = binary.LittleEndian.Uint32(prefix[8:12])
	n := binary.LittleEndian.Uint32(prefix[12:16])
	if uint64(n) > uint64(len(d.buf)) {
		return corrupt("entry %d payload of %d bytes is truncated", e.Index, n)
	}
	payload, _ := d.take(int(n))

	var err error
	if d.kind == capture.KindInertial {
		err = decodeInertial(e, payload)
	} else {
		err = decodeImage(e, payload)
	}
	if err != nil {
		return err
	}

	if d.withSettings {
		block, ok := d.take(SettingsBlockSize)
		if !ok {
			return corrupt("entry %d settings block is truncated", e.Index)
		}
		seconds := math.Float64frombits(binary.LittleEndian.Uint64(block[8:16]))
		e.Settings = capture.SensorSettings{
			Sensitivity:  int32(binary.LittleEndian.Uint32(block[0:4])), //nolint:gosec // G115: bit pattern preserved
			ExposureTime: time.Duration(math.Round(seconds * float64(time.Second))),
			Resolved:     binary.LittleEndian.Uint32(block[4:8])&settingsResolved != 0,
		}
	}
	return nil
}

func decodeInertial(e *capture.Entry, payload []byte) error {
	if len(payload) != capture.InertialPayloadSize {
		return corrupt("inertial entry %d has %d payload bytes", e.Index, len(payload))
	}
	e.Planes = []capture.Plane{{Data: payload}}
	return nil
}

func decodeImage(e *capture.Entry, payload []byte) error {
	if len(payload) < imagePayloadHeader {
		return corrupt("image entry %d payload is too short", e.Index)
	}
	count := int(binary.LittleEndian.Uint16(payload[0:2]))
	rest := payload[imagePayloadHeader:]
	if count*planeHeaderSize > len(rest) {
		return corrupt("image entry %d declares %d planes", e.Index, count)
	}

	e.Planes = make([]capture.Plane, count)
	for i := range count {
		if len(rest) < planeHeaderSize {
			return corrupt("image entry %d plane %d header is truncated", e.Index, i)
		}
		n := binary.LittleEndian.Uint32(rest[0:4])
		p := capture.Plane{
			RowStride:   binary.LittleEndian.Uint32(rest[4:8]),
			PixelStride: binary.LittleEndian.Uint32(rest[8:12]),
		}
		rest = rest[planeHeaderSize:]
		if uint64(n) > uint64(len(rest)) {
			return corrupt("image entry %d plane %d data is truncated", e.Index, i)
		}
		p.Data = rest[:n:n]
		rest = rest[n:]
		e.Planes[i] = p
	}
	if len(rest) != 0 {
		return corrupt("image entry %d has %d trailing payload bytes", e.Index, len(rest))
	}
	return nil
}
