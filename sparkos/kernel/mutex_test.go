package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutexRecursion(t *testing.T) {
	k := newTestKernel(t)
	k.Start()
	m, err := k.NewMutex("m")
	require.NoError(t, err)
	gate := newGate(t, k, "gate")

	var rec recorder
	owner := spawn(t, k, "owner", 3, func(th *Thread) {
		for range 3 {
			if err := m.Acquire(th, Forever); err != nil {
				rec.add("acquire: %v", err)
			}
		}
		_ = gate.Acquire(th, Forever)
		for i := range 3 {
			_ = m.Release(th)
			rec.add("release %d owner=%v", i+1, m.Owner() == th)
		}
	})
	waitIdle(t, k)
	assert.Equal(t, 3, m.Nest())
	assert.Same(t, owner, m.Owner())

	assert.ErrorIs(t, m.Release(nil), ErrAccess)
	spawn(t, k, "other", 5, func(th *Thread) {
		rec.add("try: %v", m.Acquire(th, NoWait))
		rec.add("release: %v", m.Release(th))
	})
	waitIdle(t, k)
	assert.Equal(t, 3, m.Nest(), "a non-owner release must not touch the nest count")

	require.NoError(t, gate.Release(nil))
	waitIdle(t, k)
	assert.Equal(t, []string{
		"try: timeout",
		"release: access denied",
		"release 1 owner=true",
		"release 2 owner=true",
		"release 3 owner=false",
	}, rec.get())
	assert.Nil(t, m.Owner())
	assert.Equal(t, 0, m.Nest())
}

func TestMutexNestSaturates(t *testing.T) {
	k := newTestKernel(t)
	k.Start()
	m, err := k.NewMutex("m")
	require.NoError(t, err)

	var overflow error
	spawn(t, k, "deep", 1, func(th *Thread) {
		for range MutexNestMax {
			_ = m.Acquire(th, Forever)
		}
		overflow = m.Acquire(th, Forever)
	})
	waitIdle(t, k)
	assert.ErrorIs(t, overflow, ErrRange)
	assert.Equal(t, MutexNestMax, m.Nest())
}

func TestMutexPriorityInheritance(t *testing.T) {
	k := newTestKernel(t)
	k.Start()
	m, err := k.NewMutex("m")
	require.NoError(t, err)

	var rec recorder
	waiter, err := k.NewThread("waiter", 1, func(th *Thread) {
		if err := m.Acquire(th, Forever); err != nil {
			rec.add("waiter: %v", err)
			return
		}
		rec.add("waiter owns=%v", m.Owner() == th)
		_ = m.Release(th)
	})
	require.NoError(t, err)

	spawn(t, k, "owner", 5, func(th *Thread) {
		_ = m.Acquire(th, Forever)
		_ = waiter.Start()
		th.Yield()
		rec.add("owner boosted to %d", th.Priority())
		_ = m.Release(th)
		rec.add("owner back to %d", th.Priority())
	})
	waitIdle(t, k)

	assert.Equal(t, []string{
		"owner boosted to 1",
		"waiter owns=true",
		"owner back to 5",
	}, rec.get())
	assert.Nil(t, m.Owner())
}

func TestMutexTimedOutWaiterDropsBoost(t *testing.T) {
	k := newTestKernel(t)
	k.Start()
	m, err := k.NewMutex("m")
	require.NoError(t, err)
	gate := newGate(t, k, "gate")

	owner := spawn(t, k, "owner", 6, func(th *Thread) {
		_ = m.Acquire(th, Forever)
		_ = gate.Acquire(th, Forever)
		_ = m.Release(th)
	})
	waitIdle(t, k)

	var waitErr error
	waiter := spawn(t, k, "waiter", 2, func(th *Thread) {
		waitErr = m.Acquire(th, Ticks(2))
	})
	waitIdle(t, k)
	assert.Equal(t, Priority(2), owner.Priority())

	advance(t, k, 2)
	joined(t, waiter)
	assert.ErrorIs(t, waitErr, ErrTimeout)
	assert.Equal(t, Priority(6), owner.Priority())

	require.NoError(t, gate.Release(nil))
	joined(t, owner)
	assert.Nil(t, m.Owner())
}

func TestMutexOwnershipTransfer(t *testing.T) {
	k := newTestKernel(t)
	k.Start()
	m, err := k.NewMutex("m")
	require.NoError(t, err)
	gate := newGate(t, k, "gate")

	var rec recorder
	late, err := k.NewThread("late", 4, func(th *Thread) {
		err := m.Acquire(th, Forever)
		rec.add("late: %v", err)
		_ = m.Release(th)
	})
	require.NoError(t, err)

	spawn(t, k, "first", 2, func(th *Thread) {
		_ = m.Acquire(th, Forever)
		_ = late.Start()
		_ = gate.Acquire(th, Forever)
		_ = m.Release(th)
		rec.add("transferred=%v", m.Owner() == late)
		rec.add("steal: %v", m.Acquire(th, NoWait))
	})
	waitIdle(t, k)
	require.NoError(t, gate.Release(nil))
	waitIdle(t, k)

	assert.Equal(t, []string{
		"transferred=true",
		"steal: timeout",
		"late: <nil>",
	}, rec.get())
}

func TestMutexDestroyWakesWaiters(t *testing.T) {
	k := newTestKernel(t)
	k.Start()
	m, err := k.NewMutex("m")
	require.NoError(t, err)
	gate := newGate(t, k, "gate")

	owner := spawn(t, k, "owner", 5, func(th *Thread) {
		_ = m.Acquire(th, Forever)
		_ = gate.Acquire(th, Forever)
	})
	waitIdle(t, k)

	var waitErr error
	waiter := spawn(t, k, "waiter", 1, func(th *Thread) {
		waitErr = m.Acquire(th, Forever)
	})
	waitIdle(t, k)
	assert.Equal(t, Priority(1), owner.Priority())

	require.NoError(t, m.Destroy())
	joined(t, waiter)
	assert.ErrorIs(t, waitErr, ErrForced)
	assert.Equal(t, Priority(5), owner.Priority())

	require.NoError(t, gate.Release(nil))
	joined(t, owner)
}

func TestMutexAcquireOutsideThread(t *testing.T) {
	k := newTestKernel(t)
	m, err := k.NewMutex("m")
	require.NoError(t, err)
	assert.ErrorIs(t, m.Acquire(nil, NoWait), ErrAccess)
}
