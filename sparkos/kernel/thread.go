package kernel

import (
	"errors"
	"fmt"
)

// ThreadState is the scheduling state of a thread.
type ThreadState uint8

const (
	ThreadInit ThreadState = iota
	ThreadReady
	ThreadSuspended
	ThreadTerminated
)

func (s ThreadState) String() string {
	switch s {
	case ThreadInit:
		return "init"
	case ThreadReady:
		return "ready"
	case ThreadSuspended:
		return "suspended"
	case ThreadTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("ThreadState(%d)", uint8(s))
	}
}

// Thread is a kernel thread backed by a goroutine. A thread runs only while
// it holds the simulated CPU.
type Thread struct {
	obj   Object
	k     *Kernel
	entry func(*Thread)

	initPrio Priority
	currPrio Priority
	state    ThreadState

	// wake reason of the last suspension
	err error

	node     waitNode
	waitOn   *waitList
	waitPrio bool
	waitSeq  uint32
	timer    Timer

	eventMask Mask
	eventOpt  EventOpt

	wake chan struct{}
	done chan struct{}
}

// NewThread creates a thread that will run entry at priority prio once
// started. entry receives the thread itself as its calling context.
func (k *Kernel) NewThread(name string, prio Priority, entry func(*Thread)) (*Thread, error) {
	if entry == nil || int(prio) >= k.levels {
		return nil, ErrInvalid
	}

	t := &Thread{
		k:        k,
		entry:    entry,
		initPrio: prio,
		currPrio: prio,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	t.node.t = t
	t.timer.setup(k, TimerOneShot, t.onTimeout, nil)
	if err := k.objectInit(&t.obj, ObjectThread, name, true); err != nil {
		return nil, err
	}
	return t, nil
}

// Name returns the thread name.
func (t *Thread) Name() string { return t.obj.name }

// Object returns the thread's registry entry.
func (t *Thread) Object() *Object { return &t.obj }

// Priority returns the effective priority, including any inherited boost.
func (t *Thread) Priority() Priority {
	tok := t.k.cs.Lock()
	defer t.k.cs.Restore(tok)
	return t.currPrio
}

// BasePriority returns the priority the thread was created with.
func (t *Thread) BasePriority() Priority { return t.initPrio }

// State returns the scheduling state.
func (t *Thread) State() ThreadState {
	tok := t.k.cs.Lock()
	defer t.k.cs.Restore(tok)
	return t.state
}

// Done is closed once the thread has terminated.
func (t *Thread) Done() <-chan struct{} { return t.done }

// Join blocks the calling host goroutine until the thread terminates. Kernel
// threads wait for each other with kernel primitives instead.
func (t *Thread) Join() { <-t.done }

// Start makes the thread runnable. It is dispatched at the next checkpoint
// that finds it the most urgent runnable thread.
func (t *Thread) Start() error {
	k := t.k
	tok := k.cs.Lock()
	if t.state != ThreadInit {
		k.cs.Restore(tok)
		return ErrBusy
	}
	t.state = ThreadReady
	k.sched.InsertRunnable(t)
	go t.run()
	k.log.Debug("thread start", "thread", t.obj.name, "priority", t.currPrio)
	k.reschedule(nil, tok)
	return nil
}

// SetPriority changes the base and effective priority. A running thread
// that lowers itself below a ready thread gives up the CPU at its next
// checkpoint.
func (t *Thread) SetPriority(p Priority) error {
	k := t.k
	if int(p) >= k.levels {
		return ErrInvalid
	}
	tok := k.cs.Lock()
	t.initPrio = p
	k.changePriorityLocked(t, p)
	k.reschedule(nil, tok)
	return nil
}

// Yield moves the calling thread behind every other ready thread of its
// priority and gives up the CPU if one exists.
func (t *Thread) Yield() {
	k := t.k
	tok := k.cs.Lock()
	k.sched.RemoveRunnable(t)
	k.sched.InsertRunnable(t)
	k.reschedule(t, tok)
}

// Delay suspends the calling thread for n ticks. Zero yields.
func (t *Thread) Delay(n Tick) error {
	if n == 0 {
		t.Yield()
		return nil
	}
	if n >= TickTimerMax {
		return ErrInvalid
	}

	k := t.k
	tok := k.cs.Lock()
	err := k.suspend(tok, nil, t, false, Ticks(n))
	if errors.Is(err, ErrTimeout) {
		return nil
	}
	return err
}

func (t *Thread) run() {
	<-t.wake
	defer t.exit()
	defer func() {
		if r := recover(); r != nil {
			t.k.log.Error("thread panic", "thread", t.obj.name, "panic", r)
			triggerPanic(PanicInfo{Thread: t.obj.name, Value: r})
		}
	}()
	t.entry(t)
}

func (t *Thread) exit() {
	k := t.k
	tok := k.cs.Lock()
	k.sched.RemoveRunnable(t)
	k.timers.remove(&t.timer)
	t.state = ThreadTerminated
	k.objectDeInitLocked(&t.obj)
	close(t.done)
	k.log.Debug("thread exit", "thread", t.obj.name)
	k.reschedule(t, tok)
}

// onTimeout runs from the timer check when a suspended thread's wait expires.
// arg carries the wait sequence number so a stale expiry is ignored.
func (t *Thread) onTimeout(arg any) {
	seq, _ := arg.(uint32)
	k := t.k
	tok := k.cs.Lock()
	if t.state != ThreadSuspended || t.waitSeq != seq {
		k.cs.Restore(tok)
		return
	}
	k.resumeLocked(t, ErrTimeout)
	k.reschedule(nil, tok)
}
