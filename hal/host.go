package hal

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

type hostHAL struct {
	logger *hostLogger
	led    *hostLED
	t      *hostTime
}

// New returns a host HAL implementation writing log lines to w (stdout when
// nil) and ticking at hz.
func New(w io.Writer, hz int) HAL {
	if w == nil {
		w = os.Stdout
	}
	if hz <= 0 {
		hz = 1000
	}
	logger := &hostLogger{w: w}
	return &hostHAL{
		logger: logger,
		led:    &hostLED{logger: logger},
		t:      newHostTime(time.Second / time.Duration(hz)),
	}
}

func (h *hostHAL) Logger() Logger { return h.logger }
func (h *hostHAL) LED() LED       { return h.led }
func (h *hostHAL) Time() Time     { return h.t }

type hostLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(b)
	l.w.Write([]byte{'\n'})
}

type hostLED struct {
	mu      sync.Mutex
	on      bool
	toggles uint64
	logger  *hostLogger
}

func (l *hostLED) High() { l.set(true) }
func (l *hostLED) Low()  { l.set(false) }

func (l *hostLED) set(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.on != on {
		l.toggles++
	}
	l.on = on
	if on {
		l.logger.WriteLineString("led: HIGH")
	} else {
		l.logger.WriteLineString("led: LOW")
	}
}

// LEDState reports the host LED level and how often it changed. ok is false
// for non-host HALs.
func LEDState(h HAL) (on bool, toggles uint64, ok bool) {
	hh, isHost := h.(*hostHAL)
	if !isHost {
		return false, 0, false
	}
	hh.led.mu.Lock()
	defer hh.led.mu.Unlock()
	return hh.led.on, hh.led.toggles, true
}
