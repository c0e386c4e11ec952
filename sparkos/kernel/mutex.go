package kernel

import "math"

// MutexNestMax is the deepest recursive hold a mutex supports.
const MutexNestMax = math.MaxUint16

// Mutex is a recursive mutex with priority inheritance.
type Mutex struct {
	obj     Object
	k       *Kernel
	owner   *Thread
	value   uint8
	nest    uint16
	ceiling Priority
	list    waitList
}

// Init initialises a statically allocated mutex.
func (m *Mutex) Init(k *Kernel, name string) error {
	return m.init(k, name, false)
}

// NewMutex allocates and initialises a mutex.
func (k *Kernel) NewMutex(name string) (*Mutex, error) {
	m := &Mutex{}
	if err := m.init(k, name, true); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Mutex) init(k *Kernel, name string, created bool) error {
	if err := k.objectInit(&m.obj, ObjectMutex, name, created); err != nil {
		return err
	}
	m.k = k
	m.owner = nil
	m.value = 1
	m.nest = 0
	m.list.lazyInit()
	return nil
}

// DeInit wakes every waiter with ErrForced, drops any inherited boost of the
// owner and unregisters the mutex.
func (m *Mutex) DeInit() error {
	m.obj.mustBe(ObjectMutex)
	m.teardown()
	m.k.objectDeInit(&m.obj)
	return nil
}

// Destroy is DeInit for mutexes created with NewMutex.
func (m *Mutex) Destroy() error {
	m.obj.mustBe(ObjectMutex)
	if !m.obj.IsCreated() {
		return ErrFault
	}
	m.teardown()
	return m.k.objectDestroy(&m.obj)
}

func (m *Mutex) teardown() {
	k := m.k
	k.emit(TraceForced, &m.obj, ErrForced, NoWait)
	tok := k.cs.Lock()
	if m.owner != nil && m.owner.currPrio != m.ceiling {
		k.changePriorityLocked(m.owner, m.ceiling)
	}
	m.owner = nil
	m.value = 1
	m.nest = 0
	k.cs.Restore(tok)
	k.resumeAll(&m.list, ErrForced)
}

// Object returns the mutex's registry entry.
func (m *Mutex) Object() *Object { return &m.obj }

// Acquire locks the mutex for t, recursively if t already owns it. While a
// more urgent thread waits, the owner runs at the waiter's priority.
func (m *Mutex) Acquire(t *Thread, timeout Timeout) error {
	m.obj.mustBe(ObjectMutex)
	k := m.k
	k.emit(TraceTryAcquire, &m.obj, nil, timeout)
	if t == nil {
		k.log.Warn("mutex acquire outside thread context", "mutex", m.obj.name)
		k.emit(TraceAcquired, &m.obj, ErrAccess, timeout)
		return ErrAccess
	}

	var err error
	tok := k.cs.Lock()
	switch {
	case m.owner == t:
		if m.nest < MutexNestMax {
			m.nest++
		} else {
			err = ErrRange
		}
		k.cs.Restore(tok)
	case m.value > 0:
		m.value = 0
		m.owner = t
		m.ceiling = t.currPrio
		m.nest = 1
		k.cs.Restore(tok)
	case timeout == NoWait:
		k.cs.Restore(tok)
		err = ErrTimeout
	default:
		if t.currPrio < m.owner.currPrio {
			k.log.Debug("mutex priority inherit", "mutex", m.obj.name,
				"owner", m.owner.obj.name, "from", m.owner.currPrio, "to", t.currPrio)
			k.changePriorityLocked(m.owner, t.currPrio)
		}
		err = k.suspend(tok, &m.list, t, true, timeout)
		if err != nil {
			tok = k.cs.Lock()
			m.reboostLocked()
			k.cs.Restore(tok)
		}
	}

	k.emit(TraceAcquired, &m.obj, err, timeout)
	return err
}

// reboostLocked recomputes the owner's inherited priority from the waiters
// that remain, never going below the ceiling recorded at acquisition.
func (m *Mutex) reboostLocked() {
	o := m.owner
	if o == nil {
		return
	}
	want := m.ceiling
	if h := m.list.first(); h != nil && h.currPrio < want {
		want = h.currPrio
	}
	if o.currPrio != want {
		m.k.changePriorityLocked(o, want)
	}
}

// Release drops one level of t's hold. The final release restores t's
// priority and hands the mutex directly to the most urgent waiter.
func (m *Mutex) Release(t *Thread) error {
	m.obj.mustBe(ObjectMutex)
	k := m.k

	tok := k.cs.Lock()
	err := m.releaseLocked(t, false)
	if err != nil {
		k.cs.Restore(tok)
	} else {
		k.reschedule(t, tok)
	}

	k.emit(TraceReleased, &m.obj, err, NoWait)
	return err
}

// releaseLocked drops one level of t's hold, or all of them when all is set.
func (m *Mutex) releaseLocked(t *Thread, all bool) error {
	if t == nil || m.owner != t {
		return ErrAccess
	}
	if all {
		m.nest = 0
	} else {
		m.nest--
	}
	if m.nest > 0 {
		return nil
	}

	k := m.k
	if t.currPrio != m.ceiling {
		k.changePriorityLocked(t, m.ceiling)
	}
	if h := k.resumeOneLocked(&m.list); h != nil {
		m.owner = h
		m.ceiling = h.currPrio
		m.nest = 1
		m.reboostLocked()
		return nil
	}
	m.owner = nil
	m.value = 1
	return nil
}

// Owner returns the owning thread, or nil when the mutex is free.
func (m *Mutex) Owner() *Thread {
	m.obj.mustBe(ObjectMutex)
	tok := m.k.cs.Lock()
	defer m.k.cs.Restore(tok)
	return m.owner
}

// Nest returns the owner's recursion depth.
func (m *Mutex) Nest() int {
	m.obj.mustBe(ObjectMutex)
	tok := m.k.cs.Lock()
	defer m.k.cs.Restore(tok)
	return int(m.nest)
}
