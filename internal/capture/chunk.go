package capture

// Chunk is an ordered, fixed-capacity run of entries. It copies appended
// payloads into storage it owns, so callers may reuse their buffers as soon as
// Append returns. Storage survives Reset and is reused by the next generation.
//
// A Chunk is not safe for concurrent use. While active it belongs to its
// StreamBuffer; after handoff it belongs to the consumer until Release.
type Chunk struct {
	kind     StreamKind
	capacity int
	entries  []Entry

	storage    []byte
	used       int
	planes     []Plane
	planesUsed int

	overflow bool // allocated beyond the arena, dropped on release
}

// NewChunk creates an empty chunk. Storage is allocated on the first append.
func NewChunk(kind StreamKind, capacity int) *Chunk {
	return &Chunk{
		kind:     kind,
		capacity: capacity,
		entries:  make([]Entry, 0, capacity),
	}
}

// Kind returns the stream kind the chunk holds.
func (c *Chunk) Kind() StreamKind { return c.kind }

// Capacity returns the maximum number of entries.
func (c *Chunk) Capacity() int { return c.capacity }

// Len returns the number of entries appended so far.
func (c *Chunk) Len() int { return len(c.entries) }

// Full reports whether the chunk holds capacity entries.
func (c *Chunk) Full() bool { return len(c.entries) >= c.capacity }

// Empty reports whether nothing was appended since the last reset.
func (c *Chunk) Empty() bool { return len(c.entries) == 0 }

// Entries returns the appended entries. The slice aliases chunk storage and
// must not be modified or retained past Release.
func (c *Chunk) Entries() []Entry { return c.entries }

// FirstTimestamp returns the timestamp of entry 0, or 0 when empty.
func (c *Chunk) FirstTimestamp() int64 {
	if len(c.entries) == 0 {
		return 0
	}
	return c.entries[0].Timestamp
}

// LastTimestamp returns the timestamp of the newest entry, or 0 when empty.
func (c *Chunk) LastTimestamp() int64 {
	if len(c.entries) == 0 {
		return 0
	}
	return c.entries[len(c.entries)-1].Timestamp
}

// Append copies a sample into the chunk at the next index.
func (c *Chunk) Append(timestamp int64, planes []Plane) error {
	if len(c.entries) >= c.capacity {
		return ErrChunkFull
	}

	entryPlanes := c.reservePlanes(len(planes))
	total := 0
	for i := range planes {
		total += len(planes[i].Data)
	}
	data := c.reserveBytes(total)

	off := 0
	for i := range planes {
		n := copy(data[off:], planes[i].Data)
		entryPlanes[i] = Plane{
			Data:        data[off : off+n : off+n],
			RowStride:   planes[i].RowStride,
			PixelStride: planes[i].PixelStride,
		}
		off += n
	}

	c.entries = append(c.entries, Entry{
		Index:     uint32(len(c.entries)), //nolint:gosec // G115: bounded by capacity
		Timestamp: timestamp,
		Planes:    entryPlanes,
	})
	return nil
}

// reserveBytes hands out n bytes of chunk storage. The first entry of a
// generation sizes storage for a full chunk of same-sized entries; an entry
// that does not fit gets its own allocation.
func (c *Chunk) reserveBytes(n int) []byte {
	if len(c.entries) == 0 && cap(c.storage) < n*c.capacity {
		c.storage = make([]byte, n*c.capacity)
	}
	if c.used+n > len(c.storage) {
		return make([]byte, n)
	}
	b := c.storage[c.used : c.used+n : c.used+n]
	c.used += n
	return b
}

func (c *Chunk) reservePlanes(n int) []Plane {
	if len(c.entries) == 0 && cap(c.planes) < n*c.capacity {
		c.planes = make([]Plane, n*c.capacity)
	}
	if c.planesUsed+n > len(c.planes) {
		return make([]Plane, n)
	}
	p := c.planes[c.planesUsed : c.planesUsed+n : c.planesUsed+n]
	c.planesUsed += n
	return p
}

// ApplySettings attaches correlated settings to entry i. It is the only
// mutation allowed after append.
func (c *Chunk) ApplySettings(i int, s SensorSettings) {
	if i < 0 || i >= len(c.entries) {
		return
	}
	c.entries[i].Settings = s
}

// Reset empties the chunk for reuse, keeping its storage.
func (c *Chunk) Reset() {
	clear(c.entries)
	c.entries = c.entries[:0]
	c.used = 0
	c.planesUsed = 0
}

// Release drops the chunk's storage. The chunk stays usable and reallocates
// on the next append.
func (c *Chunk) Release() {
	c.entries = make([]Entry, 0, c.capacity)
	c.storage = nil
	c.used = 0
	c.planes = nil
	c.planesUsed = 0
}
