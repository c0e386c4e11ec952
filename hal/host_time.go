package hal

import "time"

type hostTime struct {
	ch  chan uint64
	seq uint64
	dur time.Duration

	last time.Time
	acc  time.Duration
}

func newHostTime(tickDur time.Duration) *hostTime {
	if tickDur <= 0 {
		tickDur = time.Millisecond
	}
	return &hostTime{ch: make(chan uint64, 1024), dur: tickDur}
}

func (t *hostTime) Ticks() <-chan uint64 { return t.ch }

// step emits the ticks that elapsed on the wall clock since the last call,
// or n ticks on the first call.
func (t *hostTime) step(n uint64) {
	now := time.Now()
	if t.last.IsZero() {
		t.last = now
		t.acc = 0
		t.stepN(n)
		return
	}

	t.acc += now.Sub(t.last)
	t.last = now

	ticks := uint64(t.acc / t.dur)
	if ticks == 0 {
		return
	}
	t.acc = t.acc % t.dur
	t.stepN(ticks)
}

func (t *hostTime) stepN(n uint64) {
	for i := uint64(0); i < n; i++ {
		t.seq++
		select {
		case t.ch <- t.seq:
		default:
		}
	}
}
