package kernel

// Condition is a condition variable used together with a Mutex. It is a
// semaphore with no upper bound whose value starts at zero.
type Condition struct {
	sem Semaphore
}

const conditionMax = ^uint(0)

// Init initialises a statically allocated condition variable.
func (c *Condition) Init(k *Kernel, name string) error {
	return c.sem.init(k, name, 0, conditionMax, false)
}

// NewCondition allocates and initialises a condition variable.
func (k *Kernel) NewCondition(name string) (*Condition, error) {
	c := &Condition{}
	if err := c.sem.init(k, name, 0, conditionMax, true); err != nil {
		return nil, err
	}
	return c, nil
}

// DeInit unregisters the condition. It fails with ErrBusy while threads wait.
func (c *Condition) DeInit() error {
	if c.Waiting() {
		return ErrBusy
	}
	return c.sem.DeInit()
}

// Destroy is DeInit for conditions created with NewCondition.
func (c *Condition) Destroy() error {
	if c.Waiting() {
		return ErrBusy
	}
	return c.sem.Destroy()
}

// Object returns the condition's registry entry.
func (c *Condition) Object() *Object { return &c.sem.obj }

// Waiting reports whether any thread is blocked in Wait.
func (c *Condition) Waiting() bool {
	c.sem.obj.mustBe(ObjectSemaphore)
	tok := c.sem.k.cs.Lock()
	defer c.sem.k.cs.Restore(tok)
	return !c.sem.list.empty()
}

// Wait releases m, which t must own, and blocks until signalled or until
// timeout. m is re-acquired before Wait returns, whatever the wake reason,
// at the recursion depth t held it with. The returned error is the wake
// reason.
func (c *Condition) Wait(t *Thread, m *Mutex, timeout Timeout) error {
	c.sem.obj.mustBe(ObjectSemaphore)
	m.obj.mustBe(ObjectMutex)
	k := c.sem.k
	if t == nil {
		return ErrAccess
	}

	tok := k.cs.Lock()
	if m.owner != t {
		k.cs.Restore(tok)
		return ErrAccess
	}
	switch {
	case c.sem.value > 0:
		c.sem.value--
		k.cs.Restore(tok)
		return nil
	case timeout == NoWait:
		k.cs.Restore(tok)
		return ErrTimeout
	}

	nest := m.nest
	k.suspendLocked(&c.sem.list, t, false, timeout)
	_ = m.releaseLocked(t, true)
	k.reschedule(t, tok)
	reason := t.err

	if err := m.Acquire(t, Forever); err != nil {
		return err
	}
	tok = k.cs.Lock()
	m.nest = nest
	k.cs.Restore(tok)
	return reason
}

// Signal wakes the longest-waiting thread, if any.
func (c *Condition) Signal(t *Thread) error {
	c.sem.obj.mustBe(ObjectSemaphore)
	k := c.sem.k

	tok := k.cs.Lock()
	if k.resumeOneLocked(&c.sem.list) == nil {
		k.cs.Restore(tok)
		return nil
	}
	k.reschedule(t, tok)
	k.emit(TraceReleased, &c.sem.obj, nil, NoWait)
	return nil
}

// Broadcast wakes every thread currently waiting. The semaphore value is
// left unchanged.
func (c *Condition) Broadcast(t *Thread) error {
	c.sem.obj.mustBe(ObjectSemaphore)
	k := c.sem.k

	tok := k.cs.Lock()
	woken := 0
	for k.resumeOneLocked(&c.sem.list) != nil {
		woken++
	}
	if woken == 0 {
		k.cs.Restore(tok)
		return nil
	}
	k.log.Debug("condition broadcast", "condition", c.sem.obj.name, "woken", woken)
	k.reschedule(t, tok)
	k.emit(TraceReleased, &c.sem.obj, nil, NoWait)
	return nil
}
