package chunkfile

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/tphakala/sensorrec/internal/capture"
)

// Encoder serializes chunks into a reusable buffer. It is not safe for
// concurrent use; the chunk writer owns one.
type Encoder struct {
	buf []byte
}

// Encode serializes entries as chunk seq of the given kind. The returned
// slice is owned by the encoder and valid until the next call.
func (e *Encoder) Encode(kind capture.StreamKind, seq uint64, entries []capture.Entry, withSettings bool) ([]byte, error) {
	if kind != capture.KindImage && kind != capture.KindInertial {
		return nil, encodeError("unsupported stream kind %s", kind)
	}
	if seq > math.MaxUint32 {
		return nil, encodeError("chunk sequence %d exceeds format range", seq)
	}
	if uint64(len(entries)) > math.MaxUint32 {
		return nil, encodeError("too many entries")
	}

	size, entrySize, err := encodedSize(kind, entries, withSettings)
	if err != nil {
		return nil, err
	}
	if cap(e.buf) < size {
		e.buf = make([]byte, 0, size)
	}
	b := e.buf[:0]

	var flags uint16
	if withSettings {
		flags |= FlagSettings
	}
	b = append(b, Magic...)
	b = append(b, Version, byte(kind))
	b = binary.LittleEndian.AppendUint16(b, flags)
	b = binary.LittleEndian.AppendUint32(b, uint32(seq))
	b = binary.LittleEndian.AppendUint32(b, uint32(len(entries))) //nolint:gosec // G115: checked above
	b = binary.LittleEndian.AppendUint32(b, entrySize)
	b = binary.LittleEndian.AppendUint32(b, 0)

	for i := range entries {
		b = appendEntry(b, kind, &entries[i], withSettings)
	}
	b = binary.LittleEndian.AppendUint64(b, xxhash.Sum64(b))

	e.buf = b
	return b, nil
}

// Marshal encodes a chunk into a newly allocated slice.
func Marshal(kind capture.StreamKind, seq uint64, entries []capture.Entry, withSettings bool) ([]byte, error) {
	var e Encoder
	return e.Encode(kind, seq, entries, withSettings)
}

// WriteTo encodes a chunk and writes it to w.
func (e *Encoder) WriteTo(w io.Writer, kind capture.StreamKind, seq uint64, entries []capture.Entry, withSettings bool) (int, error) {
	b, err := e.Encode(kind, seq, entries, withSettings)
	if err != nil {
		return 0, err
	}
	return w.Write(b)
}

// EncodedSize returns the exact file size Encode will produce.
func EncodedSize(kind capture.StreamKind, entries []capture.Entry, withSettings bool) (int, error) {
	size, _, err := encodedSize(kind, entries, withSettings)
	return size, err
}

// encodedSize also returns the fixed record size, or 0 if records vary.
func encodedSize(kind capture.StreamKind, entries []capture.Entry, withSettings bool) (int, uint32, error) {
	size := HeaderSize + TrailerSize
	fixed := -1
	for i := range entries {
		payload, err := payloadSize(kind, &entries[i])
		if err != nil {
			return 0, 0, err
		}
		record := entryPrefixSize + payload
		if withSettings {
			record += SettingsBlockSize
		}
		switch {
		case fixed == -1:
			fixed = record
		case fixed != record:
			fixed = 0
		}
		size += record
	}
	if fixed < 0 || fixed > math.MaxUint32 {
		fixed = 0
	}
	return size, uint32(fixed), nil //nolint:gosec // G115: range checked
}

func payloadSize(kind capture.StreamKind, e *capture.Entry) (int, error) {
	if kind == capture.KindInertial {
		if len(e.Planes) != 1 || len(e.Planes[0].Data) != capture.InertialPayloadSize {
			return 0, encodeError("inertial entry %d must carry one %d byte plane", e.Index, capture.InertialPayloadSize)
		}
		return capture.InertialPayloadSize, nil
	}
	if len(e.Planes) > math.MaxUint16 {
		return 0, encodeError("entry %d has %d planes", e.Index, len(e.Planes))
	}
	n := imagePayloadHeader
	for i := range e.Planes {
		if uint64(len(e.Planes[i].Data)) > math.MaxUint32 {
			return 0, encodeError("entry %d plane %d is too large", e.Index, i)
		}
		n += planeHeaderSize + len(e.Planes[i].Data)
	}
	if uint64(n) > math.MaxUint32 {
		return 0, encodeError("entry %d payload is too large", e.Index)
	}
	return n, nil
}

func appendEntry(b []byte, kind capture.StreamKind, e *capture.Entry, withSettings bool) []byte {
	b = binary.LittleEndian.AppendUint64(b, uint64(e.Timestamp)) //nolint:gosec // G115: bit pattern preserved
	b = binary.LittleEndian.AppendUint32(b, e.Index)

	if kind == capture.KindInertial {
		b = binary.LittleEndian.AppendUint32(b, capture.InertialPayloadSize)
		b = append(b, e.Planes[0].Data...)
	} else {
		n := imagePayloadHeader
		for i := range e.Planes {
			n += planeHeaderSize + len(e.Planes[i].Data)
		}
		b = binary.LittleEndian.AppendUint32(b, uint32(n))            //nolint:gosec // G115: checked in payloadSize
		b = binary.LittleEndian.AppendUint16(b, uint16(len(e.Planes))) //nolint:gosec // G115: checked in payloadSize
		b = binary.LittleEndian.AppendUint16(b, 0)
		for i := range e.Planes {
			p := &e.Planes[i]
			b = binary.LittleEndian.AppendUint32(b, uint32(len(p.Data))) //nolint:gosec // G115: checked in payloadSize
			b = binary.LittleEndian.AppendUint32(b, p.RowStride)
			b = binary.LittleEndian.AppendUint32(b, p.PixelStride)
			b = append(b, p.Data...)
		}
	}

	if withSettings {
		var flags uint32
		if e.Settings.Resolved {
			flags |= settingsResolved
		}
		b = binary.LittleEndian.AppendUint32(b, uint32(e.Settings.Sensitivity)) //nolint:gosec // G115: bit pattern preserved
		b = binary.LittleEndian.AppendUint32(b, flags)
		b = binary.LittleEndian.AppendUint64(b, math.Float64bits(e.Settings.ExposureTime.Seconds()))
	}
	return b
}
