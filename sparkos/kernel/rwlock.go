package kernel

// RwLock is a writer-preferring reader/writer lock built from a guard
// mutex and two condition variables.
type RwLock struct {
	guard   Mutex
	readers int // >0 readers hold it, -1 a writer holds it
	condRd  Condition
	condWr  Condition
}

// Init initialises a statically allocated rwlock.
func (rw *RwLock) Init(k *Kernel, name string) error {
	return rw.init(k, name, false)
}

// NewRwLock allocates and initialises a rwlock.
func (k *Kernel) NewRwLock(name string) (*RwLock, error) {
	rw := &RwLock{}
	if err := rw.init(k, name, true); err != nil {
		return nil, err
	}
	return rw, nil
}

func (rw *RwLock) init(k *Kernel, name string, created bool) error {
	if err := rw.guard.init(k, name, created); err != nil {
		return err
	}
	if err := rw.condRd.sem.init(k, name, 0, conditionMax, created); err != nil {
		rw.guard.DeInit()
		return err
	}
	if err := rw.condWr.sem.init(k, name, 0, conditionMax, created); err != nil {
		rw.condRd.DeInit()
		rw.guard.DeInit()
		return err
	}
	rw.readers = 0
	return nil
}

// idle reports whether nobody holds or awaits the lock.
func (rw *RwLock) idle() bool {
	k := rw.guard.k
	tok := k.cs.Lock()
	defer k.cs.Restore(tok)
	return rw.guard.owner == nil && rw.guard.list.empty() && rw.readers == 0 &&
		rw.condRd.sem.list.empty() && rw.condWr.sem.list.empty()
}

// DeInit unregisters the lock. It fails with ErrBusy unless the lock is idle.
func (rw *RwLock) DeInit() error {
	rw.guard.obj.mustBe(ObjectMutex)
	if !rw.idle() {
		return ErrBusy
	}
	rw.condRd.DeInit()
	rw.condWr.DeInit()
	return rw.guard.DeInit()
}

// Destroy is DeInit for rwlocks created with NewRwLock.
func (rw *RwLock) Destroy() error {
	rw.guard.obj.mustBe(ObjectMutex)
	if !rw.guard.obj.IsCreated() {
		return ErrFault
	}
	if !rw.idle() {
		return ErrBusy
	}
	rw.condRd.Destroy()
	rw.condWr.Destroy()
	return rw.guard.Destroy()
}

// Object returns the registry entry of the lock's guard mutex.
func (rw *RwLock) Object() *Object { return &rw.guard.obj }

// AcquireRead takes a shared hold. New readers wait while a writer holds or
// awaits the lock.
func (rw *RwLock) AcquireRead(t *Thread, timeout Timeout) error {
	return rw.acquire(t, timeout, false)
}

// AcquireWrite takes the exclusive hold.
func (rw *RwLock) AcquireWrite(t *Thread, timeout Timeout) error {
	return rw.acquire(t, timeout, true)
}

func (rw *RwLock) acquire(t *Thread, timeout Timeout, write bool) error {
	k := rw.guard.k
	start := k.Now()
	if err := rw.guard.Acquire(t, timeout); err != nil {
		return err
	}

	var err error
	for {
		if write && rw.readers == 0 {
			rw.setReaders(-1)
			break
		}
		if !write && rw.readers >= 0 && !rw.condWr.Waiting() {
			rw.setReaders(rw.readers + 1)
			break
		}

		left := timeout.sub(k.Now() - start)
		cond := &rw.condRd
		if write {
			cond = &rw.condWr
		}
		if err = cond.Wait(t, &rw.guard, left); err != nil {
			break
		}
	}

	if rerr := rw.guard.Release(t); err == nil {
		err = rerr
	}
	return err
}

// Release drops t's hold, read or write. The last reader out wakes one
// waiting writer; otherwise waiting readers are all woken.
func (rw *RwLock) Release(t *Thread) error {
	if err := rw.guard.Acquire(t, Forever); err != nil {
		return err
	}

	switch {
	case rw.readers > 0:
		rw.setReaders(rw.readers - 1)
	case rw.readers == -1:
		rw.setReaders(0)
	}

	var err error
	if rw.condWr.Waiting() {
		if rw.readers == 0 {
			err = rw.condWr.Signal(t)
		}
	} else if rw.condRd.Waiting() {
		err = rw.condRd.Broadcast(t)
	}

	if rerr := rw.guard.Release(t); err == nil {
		err = rerr
	}
	return err
}

// setReaders updates the hold count. Callers hold the guard; the write also
// happens inside the critical section so Readers can sample it from any
// context.
func (rw *RwLock) setReaders(n int) {
	k := rw.guard.k
	tok := k.cs.Lock()
	rw.readers = n
	k.cs.Restore(tok)
}

// Readers returns the number of active readers, or -1 while a writer holds
// the lock.
func (rw *RwLock) Readers() int {
	k := rw.guard.k
	tok := k.cs.Lock()
	defer k.cs.Restore(tok)
	return rw.readers
}
