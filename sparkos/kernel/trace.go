package kernel

// TraceKind identifies a traced operation boundary.
type TraceKind uint8

const (
	TraceTryAcquire TraceKind = iota
	TraceAcquired
	TraceReleased
	TraceTrySend
	TraceSent
	TraceTryRecv
	TraceReceived
	TraceEventSet
	TraceEventClear
	TraceTryAlloc
	TraceAllocated
	TraceFreed
	TraceTimerFired
	TraceForced
)

var traceKindNames = [...]string{
	TraceTryAcquire: "try-acquire",
	TraceAcquired:   "acquired",
	TraceReleased:   "released",
	TraceTrySend:    "try-send",
	TraceSent:       "sent",
	TraceTryRecv:    "try-recv",
	TraceReceived:   "received",
	TraceEventSet:   "event-set",
	TraceEventClear: "event-clear",
	TraceTryAlloc:   "try-alloc",
	TraceAllocated:  "allocated",
	TraceFreed:      "freed",
	TraceTimerFired: "timer-fired",
	TraceForced:     "forced",
}

func (k TraceKind) String() string {
	if int(k) < len(traceKindNames) {
		return traceKindNames[k]
	}
	return "unknown"
}

// TraceEvent describes one traced operation. Err is the outcome for
// completion events and nil for attempts.
type TraceEvent struct {
	Kind    TraceKind
	Object  *Object
	Err     error
	Timeout Timeout
}

// TraceFunc receives trace events. It runs outside the critical section,
// from thread and tick context alike, and must not block.
type TraceFunc func(TraceEvent)

func (k *Kernel) emit(kind TraceKind, obj *Object, err error, timeout Timeout) {
	if k.trace == nil {
		return
	}
	k.trace(TraceEvent{Kind: kind, Object: obj, Err: err, Timeout: timeout})
}
