package kernel

import (
	"log/slog"
	"sync"
)

// DefaultPriorities is the number of priority levels when Config leaves it unset.
const DefaultPriorities = 32

// Config parameterises a Kernel. The zero value is usable.
type Config struct {
	// Priorities is the number of priority levels (1..PriorityLevelsMax).
	Priorities int

	// Scheduler overrides the default per-priority FIFO run queue.
	Scheduler Scheduler

	// Allocator backs dynamically created queues and pools.
	Allocator Allocator

	Logger *slog.Logger

	// Trace, when set, is called at every primitive operation boundary.
	Trace TraceFunc
}

// Kernel owns all process-wide kernel state: the critical section, run
// queue, tick counter, timer skip list and object registry.
//
// Exactly one kernel thread holds the simulated CPU at a time. Threads give
// it up only at scheduler checkpoints inside kernel calls.
type Kernel struct {
	cs   Critical
	idle *sync.Cond

	sched   Scheduler
	levels  int
	current *Thread
	started bool

	tickMu   sync.Mutex
	tick     Tick
	timers   skipList
	skipRand uint32

	objects [objectTypeCount][]*Object

	alloc Allocator
	log   *slog.Logger
	trace TraceFunc

	switches uint64
}

// New creates a kernel instance.
func New(cfg Config) *Kernel {
	levels := cfg.Priorities
	if levels <= 0 {
		levels = DefaultPriorities
	}
	if levels > PriorityLevelsMax {
		levels = PriorityLevelsMax
	}

	k := &Kernel{
		levels: levels,
		sched:  cfg.Scheduler,
		alloc:  cfg.Allocator,
		log:    cfg.Logger,
		trace:  cfg.Trace,
	}
	k.idle = sync.NewCond(&k.cs.mu)
	if k.sched == nil {
		k.sched = newPrioScheduler(levels)
	}
	if k.alloc == nil {
		k.alloc = NewHeapAllocator()
	}
	if k.log == nil {
		k.log = slog.Default()
	}
	k.timers.init()
	return k
}

// Priorities returns the number of priority levels.
func (k *Kernel) Priorities() int { return k.levels }

// Allocator returns the allocator backing dynamic objects.
func (k *Kernel) Allocator() Allocator { return k.alloc }

// Start lets the kernel dispatch threads. Threads started before Start stay
// ready until then.
func (k *Kernel) Start() {
	tok := k.cs.Lock()
	k.started = true
	k.log.Debug("kernel start", "priorities", k.levels)
	k.reschedule(nil, tok)
}

// Current returns the thread holding the CPU, or nil when idle.
func (k *Kernel) Current() *Thread {
	tok := k.cs.Lock()
	defer k.cs.Restore(tok)
	return k.current
}

// WaitIdle blocks the calling host goroutine until no thread holds the CPU.
func (k *Kernel) WaitIdle() {
	k.cs.mu.Lock()
	for k.current != nil {
		k.idle.Wait()
	}
	k.cs.mu.Unlock()
}

// Switches returns the number of dispatches performed so far.
func (k *Kernel) Switches() uint64 {
	tok := k.cs.Lock()
	defer k.cs.Restore(tok)
	return k.switches
}

// Now returns the current tick count.
func (k *Kernel) Now() Tick {
	tok := k.cs.Lock()
	defer k.cs.Restore(tok)
	return k.tick
}

// SetTickCount overwrites the tick counter. Pending timers keep their
// absolute deadlines.
func (k *Kernel) SetTickCount(n Tick) {
	tok := k.cs.Lock()
	k.tick = n
	k.cs.Restore(tok)
}

// Tick is the tick interrupt: it advances the clock by one, fires due timers
// and dispatches onto an idle CPU.
func (k *Kernel) Tick() {
	k.advance(1)
}

// CompensateTicks advances the clock by n ticks after a tickless sleep and
// fires every timer that came due meanwhile.
func (k *Kernel) CompensateTicks(n Tick) {
	if n == 0 {
		return
	}
	k.advance(n)
}

func (k *Kernel) advance(n Tick) {
	k.tickMu.Lock()
	defer k.tickMu.Unlock()

	tok := k.cs.Lock()
	k.tick += n
	k.cs.Restore(tok)

	k.timerCheck()

	tok = k.cs.Lock()
	k.reschedule(nil, tok)
}

// SleepTicks returns how many ticks the system may sleep before the next
// timer is due, or TickForever when no timer is pending.
func (k *Kernel) SleepTicks() Tick {
	tok := k.cs.Lock()
	defer k.cs.Restore(tok)

	tm := k.timers.first()
	if tm == nil {
		return TickForever
	}
	if tickDue(k.tick, tm.limit) {
		return 0
	}
	return tm.limit - k.tick
}
