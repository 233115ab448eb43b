package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunk_AppendAssignsIndicesAndCopiesPayload(t *testing.T) {
	t.Parallel()

	c := NewChunk(KindInertial, 4)
	buf := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}

	for i := range 3 {
		require.NoError(t, c.Append(int64(100+i), []Plane{{Data: buf}}))
		buf[0] = byte(200 + i)
	}

	entries := c.Entries()
	require.Len(t, entries, 3)
	for i := range entries {
		assert.Equal(t, uint32(i), entries[i].Index)
		assert.Equal(t, int64(100+i), entries[i].Timestamp)
	}
	assert.Equal(t, byte(1), entries[0].Planes[0].Data[0], "caller buffer reuse must not affect stored data")
	assert.Equal(t, byte(200), entries[1].Planes[0].Data[0])
	assert.Equal(t, int64(100), c.FirstTimestamp())
	assert.Equal(t, int64(102), c.LastTimestamp())
}

func TestChunk_FullRejectsAppend(t *testing.T) {
	t.Parallel()

	c := NewChunk(KindInertial, 2)
	require.NoError(t, c.Append(1, InertialPlanes(0, 0, 0)))
	assert.False(t, c.Full())
	require.NoError(t, c.Append(2, InertialPlanes(0, 0, 0)))
	assert.True(t, c.Full())

	err := c.Append(3, InertialPlanes(0, 0, 0))
	require.ErrorIs(t, err, ErrChunkFull)
	assert.Equal(t, 2, c.Len())
}

func TestChunk_ResetKeepsStorage(t *testing.T) {
	t.Parallel()

	c := NewChunk(KindImage, 2)
	planes := []Plane{
		{Data: make([]byte, 8), RowStride: 4, PixelStride: 1},
		{Data: make([]byte, 4), RowStride: 2, PixelStride: 2},
	}
	require.NoError(t, c.Append(1, planes))
	storage := &c.storage[0]

	c.Reset()
	assert.True(t, c.Empty())
	assert.Equal(t, int64(0), c.LastTimestamp())

	require.NoError(t, c.Append(5, planes))
	assert.Same(t, storage, &c.storage[0])
	e := c.Entries()[0]
	assert.Equal(t, uint32(0), e.Index, "indices restart after reset")
	assert.Equal(t, uint32(4), e.Planes[0].RowStride)
	assert.Equal(t, uint32(2), e.Planes[1].PixelStride)
	assert.Equal(t, 12, e.PayloadBytes())
}

func TestChunk_OversizedEntryGetsOwnAllocation(t *testing.T) {
	t.Parallel()

	c := NewChunk(KindImage, 2)
	require.NoError(t, c.Append(1, []Plane{{Data: []byte{1}}}))
	require.NoError(t, c.Append(2, []Plane{{Data: []byte{2, 3, 4, 5}}}))

	entries := c.Entries()
	assert.Equal(t, []byte{1}, entries[0].Planes[0].Data)
	assert.Equal(t, []byte{2, 3, 4, 5}, entries[1].Planes[0].Data)
}

func TestChunk_ApplySettingsIgnoresOutOfRange(t *testing.T) {
	t.Parallel()

	c := NewChunk(KindImage, 1)
	require.NoError(t, c.Append(1, []Plane{{Data: []byte{1}}}))
	c.ApplySettings(5, SensorSettings{Sensitivity: 100})
	c.ApplySettings(0, SensorSettings{Sensitivity: 200, Resolved: true})

	assert.Equal(t, int32(200), c.Entries()[0].Settings.Sensitivity)
}

func TestInertialPlanes_RoundTrip(t *testing.T) {
	t.Parallel()

	x, y, z, err := DecodeInertial(InertialPlanes(1.5, -2.25, 9.81))
	require.NoError(t, err)
	assert.InDelta(t, 1.5, x, 1e-6)
	assert.InDelta(t, -2.25, y, 1e-6)
	assert.InDelta(t, 9.81, z, 1e-6)

	_, _, _, err = DecodeInertial([]Plane{{Data: []byte{1, 2}}})
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func TestParseStreamKind(t *testing.T) {
	t.Parallel()

	k, err := ParseStreamKind("image")
	require.NoError(t, err)
	assert.Equal(t, KindImage, k)

	k, err = ParseStreamKind("inertial")
	require.NoError(t, err)
	assert.Equal(t, KindInertial, k)
	assert.Equal(t, "inertial", k.String())

	_, err = ParseStreamKind("audio")
	require.Error(t, err)
}
