package capture

import (
	"sync/atomic"
	"time"
)

// arena recycles a fixed set of chunk slots through a buffered channel.
// Overflow chunks may be created beyond the slot count, up to maxOverflow
// outstanding at once; they are discarded instead of recycled.
type arena struct {
	kind        StreamKind
	capacity    int
	slots       int
	maxOverflow int64
	free        chan *Chunk
	overflow    atomic.Int64
}

// newArena creates slots chunks and returns the arena plus the first active chunk.
func newArena(kind StreamKind, capacity, slots, maxOverflow int) (*arena, *Chunk) {
	a := &arena{
		kind:        kind,
		capacity:    capacity,
		slots:       slots,
		maxOverflow: int64(maxOverflow),
		free:        make(chan *Chunk, slots),
	}
	for range slots - 1 {
		a.free <- NewChunk(kind, capacity)
	}
	return a, NewChunk(kind, capacity)
}

// tryAcquire returns a free slot without waiting.
func (a *arena) tryAcquire() *Chunk {
	select {
	case c := <-a.free:
		return c
	default:
		return nil
	}
}

// acquireWait waits up to timeout for a free slot.
func (a *arena) acquireWait(timeout time.Duration) *Chunk {
	if c := a.tryAcquire(); c != nil {
		return c
	}
	if timeout <= 0 {
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case c := <-a.free:
		return c
	case <-timer.C:
		return nil
	}
}

// grow allocates an overflow chunk if the overflow budget allows it.
// force ignores the budget.
func (a *arena) grow(force bool) *Chunk {
	for {
		n := a.overflow.Load()
		if !force && n >= a.maxOverflow {
			return nil
		}
		if a.overflow.CompareAndSwap(n, n+1) {
			c := NewChunk(a.kind, a.capacity)
			c.overflow = true
			return c
		}
	}
}

// release resets c and makes it available again. Overflow chunks drop their
// storage and free their overflow budget.
func (a *arena) release(c *Chunk) {
	if c.overflow {
		c.Release()
		a.overflow.Add(-1)
		return
	}
	c.Reset()
	select {
	case a.free <- c:
	default:
		// more slot chunks than slots; can only happen on a double release
		c.Release()
	}
}

// inFlight returns the number of slot chunks not in the free list, including
// the active one.
func (a *arena) inFlight() int {
	return a.slots - len(a.free)
}

// overflowInUse returns the number of outstanding overflow chunks.
func (a *arena) overflowInUse() int {
	return int(a.overflow.Load())
}
