package kernel

import "math/bits"

// Priority is a thread priority; lower numbers are more urgent.
type Priority uint8

// PriorityLevelsMax bounds Config.Priorities.
const PriorityLevelsMax = 64

// Scheduler is the run queue the kernel dispatches from. Every runnable
// thread, including the one holding the CPU, is in the queue.
type Scheduler interface {
	InsertRunnable(t *Thread)
	RemoveRunnable(t *Thread)
	Highest() *Thread
}

// prioScheduler keeps one FIFO per priority level and a bitmap of the
// non-empty levels.
type prioScheduler struct {
	ready  []waitList
	bitmap uint64
}

func newPrioScheduler(levels int) *prioScheduler {
	return &prioScheduler{ready: make([]waitList, levels)}
}

func (s *prioScheduler) InsertRunnable(t *Thread) {
	s.ready[t.currPrio].pushBack(t)
	s.bitmap |= 1 << t.currPrio
}

func (s *prioScheduler) RemoveRunnable(t *Thread) {
	t.node.unlink()
	if s.ready[t.currPrio].empty() {
		s.bitmap &^= 1 << t.currPrio
	}
}

func (s *prioScheduler) Highest() *Thread {
	if s.bitmap == 0 {
		return nil
	}
	return s.ready[bits.TrailingZeros64(s.bitmap)].first()
}

// reschedule is the scheduler checkpoint. It consumes tok. caller is the
// thread holding the CPU, or nil from interrupt or host context; a nil caller
// only dispatches onto an idle CPU.
func (k *Kernel) reschedule(caller *Thread, tok Token) {
	park := k.switchLocked(caller)
	k.cs.Restore(tok)
	if park {
		<-caller.wake
	}
}

// switchLocked hands the CPU to the most urgent runnable thread. It reports
// whether caller must park until it is dispatched again.
func (k *Kernel) switchLocked(caller *Thread) bool {
	cur := k.current
	if caller == nil {
		if cur == nil && k.started {
			k.dispatchLocked(k.sched.Highest())
		}
		return false
	}
	if caller != cur {
		k.cs.mu.Unlock()
		fatalf("thread %q entered the kernel without holding the CPU", caller.obj.name)
	}

	next := k.sched.Highest()
	if next == cur {
		return false
	}
	k.dispatchLocked(next)
	return cur.state != ThreadTerminated
}

func (k *Kernel) dispatchLocked(next *Thread) {
	k.current = next
	if next == nil {
		k.idle.Broadcast()
		return
	}
	k.switches++
	select {
	case next.wake <- struct{}{}:
	default:
	}
}

// changePriorityLocked moves t to priority p, keeping its queue position
// consistent with the new priority.
func (k *Kernel) changePriorityLocked(t *Thread, p Priority) {
	if t.currPrio == p {
		return
	}
	switch t.state {
	case ThreadReady:
		k.sched.RemoveRunnable(t)
		t.currPrio = p
		k.sched.InsertRunnable(t)
	case ThreadSuspended:
		t.currPrio = p
		if t.waitOn != nil && t.waitPrio {
			t.node.unlink()
			t.waitOn.insertByPriority(t)
		}
	default:
		t.currPrio = p
	}
}
