package chunkfile

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/sensorrec/internal/capture"
)

func inertialEntries(n int) []capture.Entry {
	entries := make([]capture.Entry, n)
	for i := range entries {
		entries[i] = capture.Entry{
			Index:     uint32(i),
			Timestamp: int64(1_000_000 * (i + 1)),
			Planes:    capture.InertialPlanes(float32(i), -float32(i), 9.81),
		}
	}
	return entries
}

func imageEntries() []capture.Entry {
	y := bytes.Repeat([]byte{0x10}, 16)
	u := []byte{1, 2, 3, 4}
	v := []byte{5, 6, 7, 8}
	return []capture.Entry{
		{
			Index:     0,
			Timestamp: 33_000_000,
			Planes: []capture.Plane{
				{Data: y, RowStride: 4, PixelStride: 1},
				{Data: u, RowStride: 2, PixelStride: 2},
				{Data: v, RowStride: 2, PixelStride: 2},
			},
			Settings: capture.SensorSettings{Sensitivity: 400, ExposureTime: 8_333_333 * time.Nanosecond, Resolved: true},
		},
		{
			Index:     1,
			Timestamp: 66_000_000,
			Planes: []capture.Plane{
				{Data: y, RowStride: 4, PixelStride: 1},
				{Data: u, RowStride: 2, PixelStride: 2},
				{Data: v, RowStride: 2, PixelStride: 2},
			},
		},
	}
}

func TestRoundTrip_Inertial(t *testing.T) {
	t.Parallel()

	entries := inertialEntries(5)
	b, err := Marshal(capture.KindInertial, 7, entries, false)
	require.NoError(t, err)

	size, err := EncodedSize(capture.KindInertial, entries, false)
	require.NoError(t, err)
	assert.Len(t, b, size)
	assert.Equal(t, HeaderSize+5*(16+12)+TrailerSize, size)

	f, err := Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, Header{
		Version:    Version,
		Kind:       capture.KindInertial,
		Seq:        7,
		EntryCount: 5,
		EntrySize:  28,
	}, f.Header)
	assert.Equal(t, entries, f.Entries)
}

func TestRoundTrip_ImageWithSettings(t *testing.T) {
	t.Parallel()

	entries := imageEntries()
	b, err := Marshal(capture.KindImage, 3, entries, true)
	require.NoError(t, err)

	f, err := Unmarshal(b)
	require.NoError(t, err)
	assert.True(t, f.Header.HasSettings())
	assert.Equal(t, entries, f.Entries)

	s := f.Summary()
	assert.Equal(t, "image", s.Kind)
	assert.Equal(t, 2, s.Entries)
	assert.Equal(t, 1, s.Resolved)
	assert.Equal(t, int64(33_000_000), s.FirstTimestamp)
	assert.Equal(t, int64(66_000_000), s.LastTimestamp)
	assert.Equal(t, 48, s.PayloadBytes)
}

func TestHeaderLayout(t *testing.T) {
	t.Parallel()

	b, err := Marshal(capture.KindImage, 0x01020304, imageEntries(), true)
	require.NoError(t, err)

	assert.Equal(t, []byte("SCHK"), b[0:4])
	assert.Equal(t, byte(1), b[4])
	assert.Equal(t, byte(capture.KindImage), b[5])
	assert.Equal(t, FlagSettings, binary.LittleEndian.Uint16(b[6:8]))
	assert.Equal(t, uint32(0x01020304), binary.LittleEndian.Uint32(b[8:12]))
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(b[12:16]))
	// two identical records: 16 prefix + 4 + 3*12 + 24 data + 16 settings
	assert.Equal(t, uint32(96), binary.LittleEndian.Uint32(b[16:20]))
	assert.Zero(t, binary.LittleEndian.Uint32(b[20:24]))

	// first entry record
	assert.Equal(t, uint64(33_000_000), binary.LittleEndian.Uint64(b[24:32]))
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(b[32:36]))
	assert.Equal(t, uint32(64), binary.LittleEndian.Uint32(b[36:40]))
	assert.Equal(t, uint16(3), binary.LittleEndian.Uint16(b[40:42]))
}

func TestEncode_VariableRecordsHaveZeroSizeClass(t *testing.T) {
	t.Parallel()

	entries := []capture.Entry{
		{Index: 0, Timestamp: 1, Planes: []capture.Plane{{Data: []byte{1}}}},
		{Index: 1, Timestamp: 2, Planes: []capture.Plane{{Data: []byte{1, 2}}}},
	}
	b, err := Marshal(capture.KindImage, 0, entries, false)
	require.NoError(t, err)
	f, err := Unmarshal(b)
	require.NoError(t, err)
	assert.Zero(t, f.Header.EntrySize)
}

func TestEncode_EmptyChunk(t *testing.T) {
	t.Parallel()

	b, err := Marshal(capture.KindInertial, 0, nil, false)
	require.NoError(t, err)
	assert.Len(t, b, HeaderSize+TrailerSize)

	f, err := Unmarshal(b)
	require.NoError(t, err)
	assert.Empty(t, f.Entries)
}

func TestEncode_Rejects(t *testing.T) {
	t.Parallel()

	_, err := Marshal(capture.KindInertial, 1<<32, inertialEntries(1), false)
	require.ErrorIs(t, err, ErrEncode)

	bad := []capture.Entry{{Planes: []capture.Plane{{Data: []byte{1}}}}}
	_, err = Marshal(capture.KindInertial, 0, bad, false)
	require.ErrorIs(t, err, ErrEncode)

	_, err = Marshal(capture.StreamKind(7), 0, nil, false)
	require.ErrorIs(t, err, ErrEncode)
}

func TestEncoder_ReusesBuffer(t *testing.T) {
	t.Parallel()

	var e Encoder
	first, err := e.Encode(capture.KindInertial, 0, inertialEntries(10), false)
	require.NoError(t, err)
	firstPtr := &first[0]

	second, err := e.Encode(capture.KindInertial, 1, inertialEntries(3), false)
	require.NoError(t, err)
	assert.Same(t, firstPtr, &second[0])

	var buf bytes.Buffer
	n, err := e.WriteTo(&buf, capture.KindInertial, 2, inertialEntries(2), false)
	require.NoError(t, err)
	assert.Equal(t, buf.Len(), n)
}

func TestUnmarshal_Corruption(t *testing.T) {
	t.Parallel()

	valid, err := Marshal(capture.KindImage, 1, imageEntries(), true)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"truncated", func(b []byte) []byte { return b[:len(b)-20] }},
		{"too short", func(b []byte) []byte { return b[:10] }},
		{"flipped payload bit", func(b []byte) []byte { b[50] ^= 0x01; return b }},
		{"bad trailer", func(b []byte) []byte { b[len(b)-1] ^= 0xff; return b }},
		{"bad magic", func(b []byte) []byte { copy(b, "XXXX"); return reseal(b) }},
		{"bad version", func(b []byte) []byte { b[4] = 2; return reseal(b) }},
		{"bad kind", func(b []byte) []byte { b[5] = 9; return reseal(b) }},
		{"entry count too large", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[12:16], 1<<30)
			return reseal(b)
		}},
		{"entry count too small", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[12:16], 1)
			return reseal(b)
		}},
		{"plane count too large", func(b []byte) []byte {
			binary.LittleEndian.PutUint16(b[40:42], 200)
			return reseal(b)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := tt.mutate(bytes.Clone(valid))
			_, err := Unmarshal(b)
			require.ErrorIs(t, err, ErrCorruptChunk)
		})
	}
}

// reseal recomputes the trailer so structural checks are reached.
func reseal(b []byte) []byte {
	body := b[:len(b)-TrailerSize]
	binary.LittleEndian.PutUint64(b[len(b)-TrailerSize:], xxhash.Sum64(body))
	return b
}

func TestReadFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, FileName("acc", 4))
	b, err := Marshal(capture.KindInertial, 4, inertialEntries(3), false)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))

	f, err := ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, f.Entries, 3)

	_, err = ReadFile(filepath.Join(dir, "missing.bin"))
	require.Error(t, err)

	f, err = Decode(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, uint32(4), f.Header.Seq)
}

func TestFileNames(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "acc_12.bin", FileName("acc", 12))

	stream, seq, ok := ParseFileName("front_cam_3.bin")
	require.True(t, ok)
	assert.Equal(t, "front_cam", stream)
	assert.Equal(t, uint64(3), seq)

	for _, name := range []string{"acc.bin", "acc_x.bin", "acc_1.tmp", "_1.bin", ".acc_1.bin.tmp"} {
		_, _, ok := ParseFileName(name)
		assert.False(t, ok, name)
	}
}
