package kernel

// Mask is a set of event bits.
type Mask uint32

// EventOpt selects how Event.Wait matches. Exactly one of EventAnd and
// EventOr must be given.
type EventOpt uint8

const (
	EventAnd EventOpt = 1 << iota
	EventOr
	// EventNoClear leaves matched bits set.
	EventNoClear
)

func (o EventOpt) valid() bool {
	mode := o & (EventAnd | EventOr)
	return mode == EventAnd || mode == EventOr
}

// match returns the bits a waiter with mask and opt receives from value.
func (o EventOpt) match(value, mask Mask) (Mask, bool) {
	if o&EventAnd != 0 {
		return mask, value&mask == mask
	}
	got := value & mask
	return got, got != 0
}

// Event is a set of flags threads can wait on.
type Event struct {
	obj   Object
	k     *Kernel
	value Mask
	list  waitList
}

// Init initialises a statically allocated event with all bits clear.
func (e *Event) Init(k *Kernel, name string) error {
	return e.init(k, name, false)
}

// NewEvent allocates and initialises an event.
func (k *Kernel) NewEvent(name string) (*Event, error) {
	e := &Event{}
	if err := e.init(k, name, true); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Event) init(k *Kernel, name string, created bool) error {
	if err := k.objectInit(&e.obj, ObjectEvent, name, created); err != nil {
		return err
	}
	e.k = k
	e.value = 0
	e.list.lazyInit()
	return nil
}

// DeInit wakes every waiter with ErrForced and unregisters the event.
func (e *Event) DeInit() error {
	e.obj.mustBe(ObjectEvent)
	e.teardown()
	e.k.objectDeInit(&e.obj)
	return nil
}

// Destroy is DeInit for events created with NewEvent.
func (e *Event) Destroy() error {
	e.obj.mustBe(ObjectEvent)
	if !e.obj.IsCreated() {
		return ErrFault
	}
	e.teardown()
	return e.k.objectDestroy(&e.obj)
}

func (e *Event) teardown() {
	e.k.emit(TraceForced, &e.obj, ErrForced, NoWait)
	e.k.resumeAll(&e.list, ErrForced)
}

// Object returns the event's registry entry.
func (e *Event) Object() *Object { return &e.obj }

// Wait blocks until the bits in mask are set, all of them with EventAnd or
// any with EventOr. It returns the matched bits, which are cleared unless
// EventNoClear is given.
func (e *Event) Wait(t *Thread, mask Mask, opt EventOpt, timeout Timeout) (Mask, error) {
	e.obj.mustBe(ObjectEvent)
	if mask == 0 || !opt.valid() {
		return 0, ErrInvalid
	}
	k := e.k
	k.emit(TraceTryAcquire, &e.obj, nil, timeout)

	tok := k.cs.Lock()
	if got, ok := opt.match(e.value, mask); ok {
		if opt&EventNoClear == 0 {
			e.value &^= got
		}
		k.cs.Restore(tok)
		k.emit(TraceAcquired, &e.obj, nil, timeout)
		return got, nil
	}
	if timeout == NoWait {
		k.cs.Restore(tok)
		k.emit(TraceAcquired, &e.obj, ErrTimeout, timeout)
		return 0, ErrTimeout
	}
	if t == nil {
		k.cs.Restore(tok)
		k.log.Warn("event wait outside thread context", "event", e.obj.name)
		k.emit(TraceAcquired, &e.obj, ErrAccess, timeout)
		return 0, ErrAccess
	}

	t.eventMask = mask
	t.eventOpt = opt
	err := k.suspend(tok, &e.list, t, true, timeout)
	k.emit(TraceAcquired, &e.obj, err, timeout)
	if err != nil {
		return 0, err
	}
	return t.eventMask, nil
}

// Set ORs mask into the event and wakes the first waiter, in priority
// order, that the new value satisfies. At most one waiter is woken per call.
func (e *Event) Set(t *Thread, mask Mask) error {
	e.obj.mustBe(ObjectEvent)
	k := e.k
	k.emit(TraceEventSet, &e.obj, nil, NoWait)

	tok := k.cs.Lock()
	e.value |= mask
	for n := e.list.head.next; n != &e.list.head; n = n.next {
		w := n.t
		got, ok := w.eventOpt.match(e.value, w.eventMask)
		if !ok {
			continue
		}
		w.eventMask = got
		if w.eventOpt&EventNoClear == 0 {
			e.value &^= got
		}
		k.resumeLocked(w, nil)
		k.reschedule(t, tok)
		return nil
	}
	k.cs.Restore(tok)
	return nil
}

// Clear clears the bits in mask. It never wakes a waiter.
func (e *Event) Clear(mask Mask) error {
	e.obj.mustBe(ObjectEvent)
	tok := e.k.cs.Lock()
	e.value &^= mask
	e.k.cs.Restore(tok)
	e.k.emit(TraceEventClear, &e.obj, nil, NoWait)
	return nil
}

// Value returns the current bits.
func (e *Event) Value() Mask {
	e.obj.mustBe(ObjectEvent)
	tok := e.k.cs.Lock()
	defer e.k.cs.Restore(tok)
	return e.value
}
