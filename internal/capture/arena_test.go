package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArena_SlotAccounting(t *testing.T) {
	t.Parallel()

	a, active := newArena(KindInertial, 10, 3, 1)
	require.NotNil(t, active)
	assert.Equal(t, 1, a.inFlight(), "active chunk is in flight")

	c1 := a.tryAcquire()
	c2 := a.tryAcquire()
	require.NotNil(t, c1)
	require.NotNil(t, c2)
	assert.Nil(t, a.tryAcquire())
	assert.Equal(t, 3, a.inFlight())

	a.release(c1)
	assert.Equal(t, 2, a.inFlight())
	assert.Same(t, c1, a.tryAcquire())
}

func TestArena_GrowRespectsBudget(t *testing.T) {
	t.Parallel()

	a, _ := newArena(KindInertial, 10, 2, 1)
	o1 := a.grow(false)
	require.NotNil(t, o1)
	assert.True(t, o1.overflow)
	assert.Nil(t, a.grow(false))

	forced := a.grow(true)
	require.NotNil(t, forced)
	assert.Equal(t, 2, a.overflowInUse())

	a.release(o1)
	a.release(forced)
	assert.Equal(t, 0, a.overflowInUse())
	assert.Equal(t, 1, a.inFlight(), "overflow chunks never enter the free list")
}

func TestArena_AcquireWait(t *testing.T) {
	t.Parallel()

	a, _ := newArena(KindInertial, 10, 2, 0)
	held := a.tryAcquire()
	require.NotNil(t, held)

	start := time.Now()
	assert.Nil(t, a.acquireWait(20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	go func() {
		time.Sleep(10 * time.Millisecond)
		a.release(held)
	}()
	assert.Same(t, held, a.acquireWait(time.Second))
}

func TestArena_ReleaseResetsChunk(t *testing.T) {
	t.Parallel()

	a, active := newArena(KindInertial, 2, 2, 0)
	require.NoError(t, active.Append(1, InertialPlanes(1, 2, 3)))
	a.release(active)

	c := a.tryAcquire()
	require.NotNil(t, c)
	c2 := a.tryAcquire()
	require.NotNil(t, c2)
	assert.True(t, c.Empty())
	assert.True(t, c2.Empty())
}
