package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvString(t *testing.T, q *MsgQueue) string {
	t.Helper()
	m, err := q.RecvAcquire(nil, NoWait)
	require.NoError(t, err)
	s := string(m.Bytes())
	require.NoError(t, q.RecvRelease(nil, m))
	return s
}

func TestMsgQueueOrdering(t *testing.T) {
	k := newTestKernel(t)
	q, err := k.NewMsgQueue("q", 5, 4)
	require.NoError(t, err)
	assert.Equal(t, 8, q.MsgSize())

	for _, s := range []string{"m1", "m2", "m3"} {
		require.NoError(t, q.Send(nil, []byte(s), NoWait))
	}
	assert.Equal(t, 3, q.Count())
	assert.Equal(t, "m1", recvString(t, q))
	assert.Equal(t, "m2", recvString(t, q))
	assert.Equal(t, "m3", recvString(t, q))

	require.NoError(t, q.Send(nil, []byte("m1"), NoWait))
	require.NoError(t, q.Send(nil, []byte("m2"), NoWait))
	assert.Equal(t, "m1", recvString(t, q))
	require.NoError(t, q.Urgent(nil, []byte("m0")))
	assert.Equal(t, "m0", recvString(t, q))
	assert.Equal(t, "m2", recvString(t, q))

	_, err = q.RecvAcquire(nil, NoWait)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 4, q.Free())
}

func TestMsgQueueUrgentGoesFirst(t *testing.T) {
	k := newTestKernel(t)
	q, err := k.NewMsgQueue("q", 8, 3)
	require.NoError(t, err)

	require.NoError(t, q.Send(nil, []byte("m1"), NoWait))
	require.NoError(t, q.Send(nil, []byte("m2"), NoWait))
	require.NoError(t, q.Urgent(nil, []byte("m0")))
	assert.ErrorIs(t, q.Urgent(nil, []byte("mx")), ErrRange)
	assert.ErrorIs(t, q.Send(nil, []byte("mx"), NoWait), ErrRange)

	assert.Equal(t, "m0", recvString(t, q))
	assert.Equal(t, "m1", recvString(t, q))
	assert.Equal(t, "m2", recvString(t, q))
}

func TestMsgQueueInvalidPayload(t *testing.T) {
	k := newTestKernel(t)
	q, err := k.NewMsgQueue("q", 8, 1)
	require.NoError(t, err)

	assert.ErrorIs(t, q.Send(nil, nil, NoWait), ErrInvalid)
	assert.ErrorIs(t, q.Send(nil, make([]byte, 9), NoWait), ErrInvalid)
	assert.ErrorIs(t, q.Urgent(nil, nil), ErrInvalid)
	assert.ErrorIs(t, q.SendMsg(nil, [][]byte{make([]byte, 5), make([]byte, 4)}, NoWait), ErrInvalid)

	_, err = k.NewMsgQueue("q", 0, 1)
	assert.ErrorIs(t, err, ErrInvalid)
	var sq MsgQueue
	assert.ErrorIs(t, sq.Init(k, "small", make([]byte, 4), 8), ErrInvalid)
}

func TestMsgQueueScatterGatherAndCopy(t *testing.T) {
	k := newTestKernel(t)
	q, err := k.NewMsgQueue("q", 16, 2)
	require.NoError(t, err)

	require.NoError(t, q.SendMsg(nil, [][]byte{[]byte("hello "), []byte("world")}, NoWait))
	require.NoError(t, q.UrgentMsg(nil, [][]byte{[]byte("ab"), []byte("cd")}))

	dst := make([]byte, 16)
	n, err := q.RecvCopy(nil, dst, NoWait)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(dst[:n]))

	small := make([]byte, 5)
	n, err = q.RecvCopy(nil, small, NoWait)
	require.NoError(t, err)
	assert.Equal(t, 11, n, "the full length is reported on truncation")
	assert.Equal(t, "hello", string(small))
}

func TestMsgQueueReleaseValidation(t *testing.T) {
	k := newTestKernel(t)
	q1, err := k.NewMsgQueue("q1", 8, 1)
	require.NoError(t, err)
	q2, err := k.NewMsgQueue("q2", 8, 1)
	require.NoError(t, err)

	require.NoError(t, q1.Send(nil, []byte("x"), NoWait))
	m, err := q1.RecvAcquire(nil, NoWait)
	require.NoError(t, err)

	assert.ErrorIs(t, q2.RecvRelease(nil, m), ErrInvalid)
	assert.ErrorIs(t, q1.RecvRelease(nil, nil), ErrInvalid)
	require.NoError(t, q1.RecvRelease(nil, m))
	assert.ErrorIs(t, q1.RecvRelease(nil, m), ErrInvalid)
}

func TestMsgQueueBlockingReceive(t *testing.T) {
	k := newTestKernel(t)
	k.Start()
	q, err := k.NewMsgQueue("q", 8, 2)
	require.NoError(t, err)

	var rec recorder
	spawn(t, k, "rx", 2, func(th *Thread) {
		for range 3 {
			m, err := q.RecvAcquire(th, Forever)
			if err != nil {
				rec.add("err %v", err)
				return
			}
			rec.add("%s", m.Bytes())
			_ = q.RecvRelease(th, m)
		}
	})
	waitIdle(t, k)

	require.NoError(t, q.Send(nil, []byte("m1"), NoWait))
	waitIdle(t, k)
	require.NoError(t, q.Urgent(nil, []byte("m0")))
	waitIdle(t, k)
	require.NoError(t, q.Send(nil, []byte("m2"), NoWait))
	waitIdle(t, k)

	assert.Equal(t, []string{"m1", "m0", "m2"}, rec.get())
}

func TestMsgQueueBlockingSend(t *testing.T) {
	k := newTestKernel(t)
	k.Start()
	q, err := k.NewMsgQueue("q", 8, 1)
	require.NoError(t, err)
	require.NoError(t, q.Send(nil, []byte("full"), NoWait))

	var sendErr, timedErr error
	sender := spawn(t, k, "tx", 3, func(th *Thread) {
		sendErr = q.Send(th, []byte("next"), Ticks(10))
	})
	waitIdle(t, k)
	assert.ErrorIs(t, q.Send(nil, []byte("x"), Forever), ErrAccess)

	advance(t, k, 4)
	assert.Equal(t, "full", recvString(t, q))
	joined(t, sender)
	require.NoError(t, sendErr)
	assert.Equal(t, 1, q.Count())

	late := spawn(t, k, "tx2", 3, func(th *Thread) {
		timedErr = q.Send(th, []byte("late"), Ticks(2))
	})
	waitIdle(t, k)
	advance(t, k, 2)
	joined(t, late)
	assert.ErrorIs(t, timedErr, ErrRange, "a send that times out reports a full queue")
}

func TestMsgQueueDestroyWakesWaiters(t *testing.T) {
	k := newTestKernel(t)
	k.Start()
	alloc := k.Allocator().(*HeapAllocator)
	q, err := k.NewMsgQueue("q", 8, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(8), alloc.InUse())

	var rxErr error
	rx := spawn(t, k, "rx", 2, func(th *Thread) {
		_, rxErr = q.RecvAcquire(th, Forever)
	})
	waitIdle(t, k)

	require.NoError(t, q.Destroy())
	joined(t, rx)
	assert.ErrorIs(t, rxErr, ErrForced)
	assert.Equal(t, int64(0), alloc.InUse())
	assert.Nil(t, k.FindObject(ObjectMsgQueue, "q"))
}

func TestMsgQueueStaticBuffer(t *testing.T) {
	k := newTestKernel(t)
	buf := make([]byte, 40)
	var q MsgQueue
	require.NoError(t, q.Init(k, "static", buf, 10))
	assert.Equal(t, 16, q.MsgSize())
	assert.Equal(t, 2, q.Free())

	require.NoError(t, q.Send(nil, []byte("zero-copy"), NoWait))
	m, err := q.RecvAcquire(nil, NoWait)
	require.NoError(t, err)
	assert.Equal(t, "zero-copy", string(buf[:m.Len()]), "payload lives in the caller's buffer")
	require.NoError(t, q.RecvRelease(nil, m))

	assert.ErrorIs(t, q.Destroy(), ErrFault)
	require.NoError(t, q.DeInit())
}

func TestMsgQueueLateWakeKeepsMessage(t *testing.T) {
	k := newTestKernel(t)
	k.Start()
	q, err := k.NewMsgQueue("q", 8, 1)
	require.NoError(t, err)

	var rec recorder
	recv := func(name string, timeout Timeout) func(*Thread) {
		return func(th *Thread) {
			buf := make([]byte, 8)
			n, err := q.RecvCopy(th, buf, timeout)
			rec.add("%s %q err=%v", name, buf[:n], err)
		}
	}
	spawn(t, k, "short", 3, recv("short", Ticks(3)))
	waitIdle(t, k)
	spawn(t, k, "patient", 4, recv("patient", Ticks(50)))
	waitIdle(t, k)

	sent := make(chan struct{})
	release := make(chan struct{})
	spawn(t, k, "hog", 1, func(th *Thread) {
		_ = q.Send(th, []byte("m0"), NoWait)
		close(sent)
		<-release
	})
	<-sent
	for range 5 {
		k.Tick()
	}
	close(release)
	waitIdle(t, k)

	advance(t, k, 60)
	assert.Equal(t, []string{`short "m0" err=<nil>`, `patient "" err=timeout`}, rec.get())
	assert.Equal(t, 0, q.Count())
}
