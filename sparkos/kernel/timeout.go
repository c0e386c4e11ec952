package kernel

import "strconv"

// Tick is the kernel's discrete time unit. The counter wraps; compare ticks
// only through the wraparound-safe helpers.
type Tick uint32

const (
	// TickForever is the "never" sentinel.
	TickForever Tick = ^Tick(0)

	// TickTimerMax is the exclusive upper bound for timer deltas. Two ticks
	// closer than this compare correctly across counter wraparound.
	TickTimerMax Tick = TickForever >> 1
)

// tickAfter reports whether a is strictly later than b.
func tickAfter(a, b Tick) bool {
	d := a - b
	return d != 0 && d < TickTimerMax
}

// tickDue reports whether deadline has been reached at now.
func tickDue(now, deadline Tick) bool {
	return now-deadline < TickTimerMax
}

// Timeout bounds a blocking operation: NoWait, Forever, or Ticks(n).
type Timeout Tick

const (
	NoWait  Timeout = 0
	Forever Timeout = Timeout(TickForever)
)

// Ticks returns a timeout of n ticks.
func Ticks(n Tick) Timeout { return Timeout(n) }

// finite reports whether the timeout arms a timer when waiting.
func (t Timeout) finite() bool { return Tick(t) < TickTimerMax }

// sub returns the timeout left after elapsed ticks.
func (t Timeout) sub(elapsed Tick) Timeout {
	if !t.finite() {
		return t
	}
	if Tick(t) > elapsed {
		return t - Timeout(elapsed)
	}
	return NoWait
}

func (t Timeout) String() string {
	switch {
	case t == NoWait:
		return "no-wait"
	case !t.finite():
		return "forever"
	default:
		return strconv.FormatUint(uint64(t), 10) + " ticks"
	}
}
