package kernel

// suspendLocked parks t on list, or on no list for a plain delay, and arms
// its timeout. The caller still holds the critical section.
func (k *Kernel) suspendLocked(list *waitList, t *Thread, prio bool, timeout Timeout) {
	k.sched.RemoveRunnable(t)
	t.state = ThreadSuspended
	t.err = nil
	t.waitSeq++
	t.waitOn = list
	t.waitPrio = prio
	if list != nil {
		if prio {
			list.insertByPriority(t)
		} else {
			list.pushBack(t)
		}
	}
	if timeout.finite() {
		t.timer.arg = t.waitSeq
		k.timerStartLocked(&t.timer, Tick(timeout))
	}
	k.log.Debug("thread suspend", "thread", t.obj.name, "timeout", timeout)
}

// suspend parks t, leaves the critical section entered with tok and gives up
// the CPU. It returns the wake reason once t runs again.
func (k *Kernel) suspend(tok Token, list *waitList, t *Thread, prio bool, timeout Timeout) error {
	k.suspendLocked(list, t, prio, timeout)
	k.reschedule(t, tok)
	return t.err
}

// suspendWait is suspend for retry loops: on every return the critical
// section is held again through *tok, and *timeout is reduced by the ticks
// spent waiting. A wake with success always returns nil, even when the budget
// ran out before the thread was dispatched, so the caller re-checks the
// resource it was handed instead of dropping the wake. The next call with an
// exhausted budget reports ErrTimeout without suspending.
func (k *Kernel) suspendWait(tok *Token, list *waitList, t *Thread, prio bool, timeout *Timeout) error {
	if *timeout == NoWait {
		return ErrTimeout
	}
	start := k.tick
	err := k.suspend(*tok, list, t, prio, *timeout)
	*tok = k.cs.Lock()
	if err != nil || !timeout.finite() {
		return err
	}
	*timeout = timeout.sub(k.tick - start)
	return nil
}

// resumeLocked makes a suspended thread runnable with wake reason err. Its
// wait-list membership and timer are cleared in the same critical section.
func (k *Kernel) resumeLocked(t *Thread, err error) {
	if t.state != ThreadSuspended {
		return
	}
	t.node.unlink()
	t.waitOn = nil
	k.timers.remove(&t.timer)
	t.timer.flags &^= timerActive
	t.err = err
	t.state = ThreadReady
	k.sched.InsertRunnable(t)
	k.log.Debug("thread resume", "thread", t.obj.name, "err", err)
}

// resumeOneLocked wakes the head of list with success and returns it, or
// nil when list is empty.
func (k *Kernel) resumeOneLocked(list *waitList) *Thread {
	t := list.first()
	if t != nil {
		k.resumeLocked(t, nil)
	}
	return t
}

// resumeAll drains list, waking every waiter with reason. It is the
// teardown path, so reason is normally ErrForced.
func (k *Kernel) resumeAll(list *waitList, reason error) {
	tok := k.cs.Lock()
	for !list.empty() {
		k.resumeLocked(list.first(), reason)
	}
	k.reschedule(nil, tok)
}
