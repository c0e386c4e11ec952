package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemaphoreBound(t *testing.T) {
	k := newTestKernel(t)
	s, err := k.NewSemaphore("sem", 1, 2)
	require.NoError(t, err)

	require.NoError(t, s.Release(nil))
	assert.ErrorIs(t, s.Release(nil), ErrRange)
	v, max := s.Value()
	assert.Equal(t, uint(2), v)
	assert.Equal(t, uint(2), max)

	require.NoError(t, s.Acquire(nil, NoWait))
	require.NoError(t, s.Acquire(nil, NoWait))
	assert.ErrorIs(t, s.Acquire(nil, NoWait), ErrTimeout)
	v, _ = s.Value()
	assert.Equal(t, uint(0), v)
}

func TestSemaphoreLifecycle(t *testing.T) {
	k := newTestKernel(t)

	_, err := k.NewSemaphore("bad", 3, 2)
	assert.ErrorIs(t, err, ErrInvalid)

	var s Semaphore
	require.NoError(t, s.Init(k, "static", 0, 1))
	assert.ErrorIs(t, s.Init(k, "static", 0, 1), ErrAgain)
	assert.ErrorIs(t, s.Destroy(), ErrFault)
	assert.Equal(t, 1, k.ObjectCount(ObjectSemaphore))
	require.NoError(t, s.DeInit())
	assert.Equal(t, 0, k.ObjectCount(ObjectSemaphore))
	assert.Equal(t, ObjectNone, s.Object().Type())
}

func TestSemaphoreAcquireOutsideThread(t *testing.T) {
	k := newTestKernel(t)
	s, err := k.NewSemaphore("sem", 0, 1)
	require.NoError(t, err)

	assert.ErrorIs(t, s.Acquire(nil, Forever), ErrAccess)
	assert.ErrorIs(t, s.Acquire(nil, Ticks(5)), ErrAccess)
}

func TestSemaphoreHandOff(t *testing.T) {
	k := newTestKernel(t)
	s, err := k.NewSemaphore("sem", 0, 1)
	require.NoError(t, err)

	var rec recorder
	spawn(t, k, "a", 1, func(th *Thread) {
		err := s.Acquire(th, Forever)
		rec.add("a:%v", err)
	})
	spawn(t, k, "b", 2, func(th *Thread) {
		rec.add("b")
		_ = s.Release(th)
		rec.add("b-done")
	})
	k.Start()
	waitIdle(t, k)

	assert.Equal(t, []string{"b", "a:<nil>", "b-done"}, rec.get())
	v, _ := s.Value()
	assert.Equal(t, uint(0), v, "release to a waiter must not bank a unit")
}

func TestSemaphoreWakesByPriority(t *testing.T) {
	k := newTestKernel(t)
	k.Start()
	s, err := k.NewSemaphore("sem", 0, 3)
	require.NoError(t, err)

	var rec recorder
	for _, prio := range []Priority{5, 3, 4, 3} {
		spawn(t, k, "w", prio, func(th *Thread) {
			if err := s.Acquire(th, Forever); err == nil {
				rec.add("%d", th.Priority())
			}
		})
		waitIdle(t, k)
	}
	assert.Equal(t, 4, s.Waiters())

	for range 4 {
		require.NoError(t, s.Release(nil))
		waitIdle(t, k)
	}
	assert.Equal(t, []string{"3", "3", "4", "5"}, rec.get())
}

func TestSemaphoreTimeout(t *testing.T) {
	k := newTestKernel(t)
	k.Start()
	s, err := k.NewSemaphore("sem", 0, 1)
	require.NoError(t, err)

	var got error
	th := spawn(t, k, "waiter", 2, func(th *Thread) {
		got = s.Acquire(th, Ticks(3))
	})
	waitIdle(t, k)

	advance(t, k, 2)
	assert.Equal(t, ThreadSuspended, th.State())

	advance(t, k, 1)
	joined(t, th)
	assert.ErrorIs(t, got, ErrTimeout)
	assert.Equal(t, 0, s.Waiters())
	assert.Equal(t, TickForever, k.NextExpiry())
}

func TestSemaphoreDestroyWakesWaiters(t *testing.T) {
	k := newTestKernel(t)
	k.Start()
	s, err := k.NewSemaphore("sem", 0, 1)
	require.NoError(t, err)

	errs := make([]error, 2)
	var threads []*Thread
	for i := range errs {
		threads = append(threads, spawn(t, k, "w", Priority(i+1), func(th *Thread) {
			errs[i] = s.Acquire(th, Ticks(100))
		}))
		waitIdle(t, k)
	}

	require.NoError(t, s.Destroy())
	waitIdle(t, k)
	for i, th := range threads {
		joined(t, th)
		assert.ErrorIs(t, errs[i], ErrForced)
		assert.ErrorIs(t, errs[i], ErrAgain)
	}
	assert.Nil(t, k.FindObject(ObjectSemaphore, "sem"))
	assert.Equal(t, TickForever, k.NextExpiry(), "forced wake must cancel the timeout")
}
