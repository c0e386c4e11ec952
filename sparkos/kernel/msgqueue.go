package kernel

import "errors"

// MsgAlign is the slot size granularity of message queues.
const MsgAlign = 8

func alignUp(n, align int) int { return (n + align - 1) &^ (align - 1) }

type slotState uint8

const (
	slotFree slotState = iota
	slotFilling
	slotQueued
	slotHeld
)

// Message is a queue slot handed to a receiver by RecvAcquire. Its payload
// stays valid until the slot is returned with RecvRelease.
type Message struct {
	q     *MsgQueue
	next  *Message
	state slotState
	len   int
	data  []byte
}

// Bytes returns the payload without copying.
func (m *Message) Bytes() []byte { return m.data[:m.len] }

// Len returns the payload length.
func (m *Message) Len() int { return m.len }

// MsgQueue is a FIFO of fixed-size message slots carved from one buffer.
type MsgQueue struct {
	obj     Object
	k       *Kernel
	msgSize int
	buf     []byte
	slots   []Message

	free       *Message
	head, tail *Message

	sendList waitList
	recvList waitList
}

// Init initialises a statically allocated queue over buf. msgSize is
// rounded up to MsgAlign and buf is split into as many slots as fit.
func (q *MsgQueue) Init(k *Kernel, name string, buf []byte, msgSize int) error {
	return q.init(k, name, buf, msgSize, false)
}

// NewMsgQueue allocates a queue of msgNums slots of msgSize bytes from the
// kernel allocator.
func (k *Kernel) NewMsgQueue(name string, msgSize, msgNums int) (*MsgQueue, error) {
	if msgSize <= 0 || msgNums <= 0 {
		return nil, ErrInvalid
	}
	buf := k.alloc.Alloc(alignUp(msgSize, MsgAlign) * msgNums)
	if buf == nil {
		return nil, ErrRange
	}
	q := &MsgQueue{}
	if err := q.init(k, name, buf, msgSize, true); err != nil {
		k.alloc.Free(buf)
		return nil, err
	}
	return q, nil
}

func (q *MsgQueue) init(k *Kernel, name string, buf []byte, msgSize int, created bool) error {
	if msgSize <= 0 {
		return ErrInvalid
	}
	size := alignUp(msgSize, MsgAlign)
	n := len(buf) / size
	if n == 0 {
		return ErrInvalid
	}
	if err := k.objectInit(&q.obj, ObjectMsgQueue, name, created); err != nil {
		return err
	}

	q.k = k
	q.msgSize = size
	q.buf = buf
	q.slots = make([]Message, n)
	q.free, q.head, q.tail = nil, nil, nil
	for i := len(q.slots) - 1; i >= 0; i-- {
		m := &q.slots[i]
		m.q = q
		m.data = buf[i*size : (i+1)*size : (i+1)*size]
		m.next = q.free
		q.free = m
	}
	q.sendList.lazyInit()
	q.recvList.lazyInit()
	return nil
}

// DeInit wakes every blocked sender and receiver with ErrForced and
// unregisters the queue.
func (q *MsgQueue) DeInit() error {
	q.obj.mustBe(ObjectMsgQueue)
	q.teardown()
	q.k.objectDeInit(&q.obj)
	return nil
}

// Destroy is DeInit for queues created with NewMsgQueue; it also returns
// the slot buffer to the allocator.
func (q *MsgQueue) Destroy() error {
	q.obj.mustBe(ObjectMsgQueue)
	if !q.obj.IsCreated() {
		return ErrFault
	}
	q.teardown()
	buf := q.buf
	if err := q.k.objectDestroy(&q.obj); err != nil {
		return err
	}
	q.k.alloc.Free(buf)
	return nil
}

func (q *MsgQueue) teardown() {
	q.k.emit(TraceForced, &q.obj, ErrForced, NoWait)
	q.k.resumeAll(&q.recvList, ErrForced)
	q.k.resumeAll(&q.sendList, ErrForced)
}

// Object returns the queue's registry entry.
func (q *MsgQueue) Object() *Object { return &q.obj }

// MsgSize returns the aligned slot size.
func (q *MsgQueue) MsgSize() int { return q.msgSize }

// Send copies buf into a free slot at the tail, waiting up to timeout for
// one. A queue that stays full reports ErrRange.
func (q *MsgQueue) Send(t *Thread, buf []byte, timeout Timeout) error {
	return q.SendMsg(t, [][]byte{buf}, timeout)
}

// SendMsg is Send for a payload gathered from several buffers.
func (q *MsgQueue) SendMsg(t *Thread, bufs [][]byte, timeout Timeout) error {
	q.obj.mustBe(ObjectMsgQueue)
	k := q.k
	n := payloadLen(bufs)
	if n == 0 || n > q.msgSize {
		return ErrInvalid
	}
	k.emit(TraceTrySend, &q.obj, nil, timeout)

	var err error
	tok := k.cs.Lock()
	if q.free == nil {
		switch {
		case timeout == NoWait:
			err = ErrRange
		case t == nil:
			k.log.Warn("blocking send outside thread context", "msgqueue", q.obj.name)
			err = ErrAccess
		}
	}
	for err == nil && q.free == nil {
		err = k.suspendWait(&tok, &q.sendList, t, false, &timeout)
	}
	var m *Message
	if err == nil {
		m = q.takeFreeLocked()
	}
	k.cs.Restore(tok)
	if errors.Is(err, ErrTimeout) {
		err = ErrRange
	}
	if err != nil {
		k.emit(TraceSent, &q.obj, err, timeout)
		return err
	}

	m.fill(bufs, n)

	tok = k.cs.Lock()
	m.state = slotQueued
	if q.tail == nil {
		q.head = m
	} else {
		q.tail.next = m
	}
	q.tail = m
	q.wakeLocked(t, tok, &q.recvList)
	k.emit(TraceSent, &q.obj, nil, timeout)
	return nil
}

// Urgent copies buf into a free slot at the head of the queue. It never
// waits: a full queue reports ErrRange.
func (q *MsgQueue) Urgent(t *Thread, buf []byte) error {
	return q.UrgentMsg(t, [][]byte{buf})
}

// UrgentMsg is Urgent for a payload gathered from several buffers.
func (q *MsgQueue) UrgentMsg(t *Thread, bufs [][]byte) error {
	q.obj.mustBe(ObjectMsgQueue)
	k := q.k
	n := payloadLen(bufs)
	if n == 0 || n > q.msgSize {
		return ErrInvalid
	}
	k.emit(TraceTrySend, &q.obj, nil, NoWait)

	tok := k.cs.Lock()
	if q.free == nil {
		k.cs.Restore(tok)
		k.emit(TraceSent, &q.obj, ErrRange, NoWait)
		return ErrRange
	}
	m := q.takeFreeLocked()
	k.cs.Restore(tok)

	m.fill(bufs, n)

	tok = k.cs.Lock()
	m.state = slotQueued
	m.next = q.head
	q.head = m
	if q.tail == nil {
		q.tail = m
	}
	q.wakeLocked(t, tok, &q.recvList)
	k.emit(TraceSent, &q.obj, nil, NoWait)
	return nil
}

// RecvAcquire detaches the head message, waiting up to timeout for one. The
// caller reads it in place and must hand it back with RecvRelease.
func (q *MsgQueue) RecvAcquire(t *Thread, timeout Timeout) (*Message, error) {
	q.obj.mustBe(ObjectMsgQueue)
	k := q.k
	k.emit(TraceTryRecv, &q.obj, nil, timeout)

	var err error
	tok := k.cs.Lock()
	if q.head == nil {
		switch {
		case timeout == NoWait:
			err = ErrTimeout
		case t == nil:
			k.log.Warn("blocking receive outside thread context", "msgqueue", q.obj.name)
			err = ErrAccess
		}
	}
	for err == nil && q.head == nil {
		err = k.suspendWait(&tok, &q.recvList, t, false, &timeout)
	}
	var m *Message
	if err == nil {
		m = q.head
		q.head = m.next
		if q.head == nil {
			q.tail = nil
		}
		m.next = nil
		m.state = slotHeld
	}
	k.cs.Restore(tok)

	k.emit(TraceReceived, &q.obj, err, timeout)
	return m, err
}

// RecvRelease returns a message obtained from RecvAcquire to the free list.
func (q *MsgQueue) RecvRelease(t *Thread, m *Message) error {
	q.obj.mustBe(ObjectMsgQueue)
	if m == nil || m.q != q {
		return ErrInvalid
	}
	k := q.k

	tok := k.cs.Lock()
	if m.state != slotHeld {
		k.cs.Restore(tok)
		return ErrInvalid
	}
	m.state = slotFree
	m.len = 0
	m.next = q.free
	q.free = m
	q.wakeLocked(t, tok, &q.sendList)
	return nil
}

// RecvCopy receives the head message into dst and returns the full message
// length, which exceeds len(dst) when the payload was truncated.
func (q *MsgQueue) RecvCopy(t *Thread, dst []byte, timeout Timeout) (int, error) {
	m, err := q.RecvAcquire(t, timeout)
	if err != nil {
		return 0, err
	}
	n := m.Len()
	copy(dst, m.Bytes())
	return n, q.RecvRelease(t, m)
}

// Count returns the number of queued messages.
func (q *MsgQueue) Count() int {
	q.obj.mustBe(ObjectMsgQueue)
	tok := q.k.cs.Lock()
	defer q.k.cs.Restore(tok)
	n := 0
	for m := q.head; m != nil; m = m.next {
		n++
	}
	return n
}

// Free returns the number of free slots.
func (q *MsgQueue) Free() int {
	q.obj.mustBe(ObjectMsgQueue)
	tok := q.k.cs.Lock()
	defer q.k.cs.Restore(tok)
	n := 0
	for m := q.free; m != nil; m = m.next {
		n++
	}
	return n
}

func (q *MsgQueue) takeFreeLocked() *Message {
	m := q.free
	q.free = m.next
	m.next = nil
	m.state = slotFilling
	return m
}

// wakeLocked resumes the first waiter on list, if any, and consumes tok.
func (q *MsgQueue) wakeLocked(t *Thread, tok Token, list *waitList) {
	if q.k.resumeOneLocked(list) == nil {
		q.k.cs.Restore(tok)
		return
	}
	q.k.reschedule(t, tok)
}

func (m *Message) fill(bufs [][]byte, n int) {
	off := 0
	for _, b := range bufs {
		off += copy(m.data[off:], b)
	}
	m.len = n
}

func payloadLen(bufs [][]byte) int {
	n := 0
	for _, b := range bufs {
		n += len(b)
	}
	return n
}
