package kernel

// Semaphore is a counting semaphore bounded by a maximum value.
type Semaphore struct {
	obj   Object
	k     *Kernel
	value uint
	max   uint
	list  waitList
}

// Init initialises a statically allocated semaphore.
func (s *Semaphore) Init(k *Kernel, name string, init, max uint) error {
	return s.init(k, name, init, max, false)
}

// NewSemaphore allocates and initialises a semaphore.
func (k *Kernel) NewSemaphore(name string, init, max uint) (*Semaphore, error) {
	s := &Semaphore{}
	if err := s.init(k, name, init, max, true); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Semaphore) init(k *Kernel, name string, init, max uint, created bool) error {
	if init > max {
		return ErrInvalid
	}
	if err := k.objectInit(&s.obj, ObjectSemaphore, name, created); err != nil {
		return err
	}
	s.k = k
	s.value = init
	s.max = max
	s.list.lazyInit()
	return nil
}

// DeInit wakes every waiter with ErrForced and unregisters the semaphore.
func (s *Semaphore) DeInit() error {
	s.obj.mustBe(ObjectSemaphore)
	s.teardown()
	s.k.objectDeInit(&s.obj)
	return nil
}

// Destroy is DeInit for semaphores created with NewSemaphore.
func (s *Semaphore) Destroy() error {
	s.obj.mustBe(ObjectSemaphore)
	if !s.obj.IsCreated() {
		return ErrFault
	}
	s.teardown()
	return s.k.objectDestroy(&s.obj)
}

func (s *Semaphore) teardown() {
	s.k.emit(TraceForced, &s.obj, ErrForced, NoWait)
	s.k.resumeAll(&s.list, ErrForced)
}

// Object returns the semaphore's registry entry.
func (s *Semaphore) Object() *Object { return &s.obj }

// Acquire takes one unit, waiting up to timeout for it. A nil caller may
// only poll with NoWait.
func (s *Semaphore) Acquire(t *Thread, timeout Timeout) error {
	s.obj.mustBe(ObjectSemaphore)
	k := s.k
	k.emit(TraceTryAcquire, &s.obj, nil, timeout)

	var err error
	tok := k.cs.Lock()
	switch {
	case s.value > 0:
		s.value--
		k.cs.Restore(tok)
	case timeout == NoWait:
		k.cs.Restore(tok)
		err = ErrTimeout
	case t == nil:
		k.cs.Restore(tok)
		k.log.Warn("blocking acquire outside thread context", "semaphore", s.obj.name)
		err = ErrAccess
	default:
		err = k.suspend(tok, &s.list, t, true, timeout)
	}

	k.emit(TraceAcquired, &s.obj, err, timeout)
	return err
}

// Release hands one unit to the most urgent waiter, or banks it when nobody
// waits. Banking past the maximum fails with ErrRange.
func (s *Semaphore) Release(t *Thread) error {
	s.obj.mustBe(ObjectSemaphore)
	k := s.k

	var err error
	tok := k.cs.Lock()
	switch {
	case k.resumeOneLocked(&s.list) != nil:
		k.reschedule(t, tok)
	case s.value < s.max:
		s.value++
		k.cs.Restore(tok)
	default:
		k.cs.Restore(tok)
		err = ErrRange
	}

	k.emit(TraceReleased, &s.obj, err, NoWait)
	return err
}

// Value returns the current and maximum value.
func (s *Semaphore) Value() (value, max uint) {
	s.obj.mustBe(ObjectSemaphore)
	tok := s.k.cs.Lock()
	defer s.k.cs.Restore(tok)
	return s.value, s.max
}

// Waiters returns the number of threads blocked in Acquire.
func (s *Semaphore) Waiters() int {
	s.obj.mustBe(ObjectSemaphore)
	tok := s.k.cs.Lock()
	defer s.k.cs.Restore(tok)
	return s.list.len()
}
