package kernel

// TimerFlag selects timer behaviour.
type TimerFlag uint8

const (
	TimerOneShot  TimerFlag = 0
	TimerPeriodic TimerFlag = 1 << 0

	timerActive TimerFlag = 1 << 7
)

const (
	// SkipListLevels is the number of levels in the timer skip list.
	SkipListLevels = 4

	skipListShift = 2
	skipListMask  = 1<<skipListShift - 1
)

type skipNode struct {
	prev, next *skipNode
	t          *Timer
}

func (n *skipNode) linked() bool { return n.next != nil && n.next != n }

func (n *skipNode) unlink() {
	if !n.linked() {
		return
	}
	n.prev.next = n.next
	n.next.prev = n.prev
	n.prev, n.next = n, n
}

func (n *skipNode) insertAfter(at *skipNode) {
	n.prev = at
	n.next = at.next
	at.next.prev = n
	at.next = n
}

// skipList orders pending timers by absolute expiry. Level 0 holds every
// timer; each higher level holds a sparser subset.
type skipList struct {
	heads [SkipListLevels]skipNode
}

func (l *skipList) init() {
	for i := range l.heads {
		l.heads[i].prev, l.heads[i].next = &l.heads[i], &l.heads[i]
	}
}

func (l *skipList) first() *Timer {
	n := l.heads[0].next
	if n == &l.heads[0] {
		return nil
	}
	return n.t
}

// insert links tm after every timer whose deadline is not later than its
// own, so timers with equal deadlines fire in start order. rnd picks the
// tower height: each extra level needs the next skipListShift bits clear.
func (l *skipList) insert(tm *Timer, rnd uint32) {
	var update [SkipListLevels]*skipNode

	prev := &l.heads[SkipListLevels-1]
	for lvl := SkipListLevels - 1; lvl >= 0; lvl-- {
		head := &l.heads[lvl]
		for n := prev.next; n != head; n = n.next {
			if tickAfter(n.t.limit, tm.limit) {
				break
			}
			prev = n
		}
		update[lvl] = prev
		if lvl > 0 {
			if prev.t == nil {
				prev = &l.heads[lvl-1]
			} else {
				prev = &prev.t.nodes[lvl-1]
			}
		}
	}

	tm.nodes[0].insertAfter(update[0])
	for lvl := 1; lvl < SkipListLevels; lvl++ {
		if rnd&skipListMask != 0 {
			break
		}
		tm.nodes[lvl].insertAfter(update[lvl])
		rnd >>= skipListShift
	}
}

func (l *skipList) remove(tm *Timer) {
	for i := range tm.nodes {
		tm.nodes[i].unlink()
	}
}

// Timer is a one-shot or periodic callback driven by the tick. Thread
// timeouts use the same engine.
type Timer struct {
	obj   Object
	k     *Kernel
	entry func(arg any)
	arg   any
	flags TimerFlag
	start Tick
	limit Tick
	nodes [SkipListLevels]skipNode
}

func (tm *Timer) setup(k *Kernel, flags TimerFlag, entry func(any), arg any) {
	tm.k = k
	tm.entry = entry
	tm.arg = arg
	tm.flags = flags &^ timerActive
	for i := range tm.nodes {
		tm.nodes[i].t = tm
		tm.nodes[i].prev, tm.nodes[i].next = &tm.nodes[i], &tm.nodes[i]
	}
}

// Init initialises a statically allocated timer. entry runs from the tick
// path, outside the critical section, and must not block.
func (tm *Timer) Init(k *Kernel, name string, flags TimerFlag, entry func(arg any), arg any) error {
	if entry == nil {
		return ErrInvalid
	}
	if err := k.objectInit(&tm.obj, ObjectTimer, name, false); err != nil {
		return err
	}
	tm.setup(k, flags, entry, arg)
	return nil
}

// NewTimer allocates and initialises a timer.
func (k *Kernel) NewTimer(name string, flags TimerFlag, entry func(arg any), arg any) (*Timer, error) {
	if entry == nil {
		return nil, ErrInvalid
	}
	tm := &Timer{}
	if err := k.objectInit(&tm.obj, ObjectTimer, name, true); err != nil {
		return nil, err
	}
	tm.setup(k, flags, entry, arg)
	return tm, nil
}

// DeInit stops the timer and removes it from the registry.
func (tm *Timer) DeInit() error {
	tm.obj.mustBe(ObjectTimer)
	tm.stop()
	tm.k.objectDeInit(&tm.obj)
	return nil
}

// Destroy is DeInit for timers created with NewTimer.
func (tm *Timer) Destroy() error {
	tm.obj.mustBe(ObjectTimer)
	if !tm.obj.IsCreated() {
		return ErrFault
	}
	tm.stop()
	return tm.k.objectDestroy(&tm.obj)
}

// Object returns the timer's registry entry.
func (tm *Timer) Object() *Object { return &tm.obj }

// Start (re)arms the timer to fire timeout ticks from now. A zero timeout
// only stops it; NoWait and Forever are not valid deadlines.
func (tm *Timer) Start(timeout Timeout) error {
	tm.obj.mustBe(ObjectTimer)
	if !timeout.finite() {
		return ErrInvalid
	}

	k := tm.k
	tok := k.cs.Lock()
	k.timerStopLocked(tm)
	if timeout > 0 {
		k.timerStartLocked(tm, Tick(timeout))
	}
	k.cs.Restore(tok)
	return nil
}

// Stop disarms the timer. Stopping an inactive timer is a no-op. A periodic
// timer stopped from its own callback does not fire again.
func (tm *Timer) Stop() error {
	tm.obj.mustBe(ObjectTimer)
	tm.stop()
	return nil
}

func (tm *Timer) stop() {
	tok := tm.k.cs.Lock()
	tm.k.timerStopLocked(tm)
	tm.k.cs.Restore(tok)
}

// IsActive reports whether the timer is armed.
func (tm *Timer) IsActive() bool {
	tok := tm.k.cs.Lock()
	defer tm.k.cs.Restore(tok)
	return tm.flags&timerActive != 0
}

// Deadline returns the absolute tick at which an active timer fires.
func (tm *Timer) Deadline() (Tick, bool) {
	tok := tm.k.cs.Lock()
	defer tm.k.cs.Restore(tok)
	return tm.limit, tm.flags&timerActive != 0
}

func (k *Kernel) timerStartLocked(tm *Timer, delta Tick) {
	tm.start = k.tick
	tm.limit = k.tick + delta
	k.timerInsertLocked(tm)
}

func (k *Kernel) timerInsertLocked(tm *Timer) {
	k.skipRand += uint32(tm.start) + 1
	k.timers.insert(tm, k.skipRand)
	tm.flags |= timerActive
}

func (k *Kernel) timerStopLocked(tm *Timer) {
	k.timers.remove(tm)
	tm.flags &^= timerActive
}

// NextExpiry returns the earliest pending deadline, or TickForever when no
// timer is armed.
func (k *Kernel) NextExpiry() Tick {
	tok := k.cs.Lock()
	defer k.cs.Restore(tok)
	if tm := k.timers.first(); tm != nil {
		return tm.limit
	}
	return TickForever
}

// timerCheck fires every due timer. Each fired timer's bottom node is parked
// on a local run list while its callback runs unlocked: a callback that stops
// or restarts the timer unlinks it from there, which cancels the periodic
// re-arm.
func (k *Kernel) timerCheck() {
	var run skipNode
	run.prev, run.next = &run, &run

	tok := k.cs.Lock()
	for {
		tm := k.timers.first()
		if tm == nil || !tickDue(k.tick, tm.limit) {
			break
		}

		k.timers.remove(tm)
		if tm.flags&TimerPeriodic == 0 {
			tm.flags &^= timerActive
		}
		tm.nodes[0].insertAfter(&run)

		entry, arg := tm.entry, tm.arg
		traced, period := tm.obj.flags != 0, tm.limit-tm.start
		k.cs.Restore(tok)
		if traced {
			k.emit(TraceTimerFired, &tm.obj, nil, Timeout(period))
		}
		entry(arg)
		tok = k.cs.Lock()

		if !run.linked() {
			continue
		}
		tm.nodes[0].unlink()
		if tm.flags&(TimerPeriodic|timerActive) == TimerPeriodic|timerActive {
			period := tm.limit - tm.start
			tm.start = tm.limit
			tm.limit += period
			k.timerInsertLocked(tm)
		}
	}
	k.cs.Restore(tok)
}
