package app

import (
	"fmt"
	"strings"

	"sparkrt/hal"
	"sparkrt/sparkos/kernel"
)

func installPanicHandler(l hal.Logger, ch chan<- kernel.PanicInfo) {
	kernel.SetPanicHandler(panicHandler(l, ch))
}

// panicHandler writes the panic and its stack to l, then hands the info to
// the run supervisor without blocking.
func panicHandler(l hal.Logger, ch chan<- kernel.PanicInfo) func(kernel.PanicInfo) {
	return func(info kernel.PanicInfo) {
		if l != nil {
			thread := info.Thread
			if thread == "" {
				thread = "-"
			}
			l.WriteLineString(fmt.Sprintf("sparkrt panic: thread=%s panic=%v", thread, info.Value))
			if len(info.Stack) > 0 {
				for _, line := range strings.Split(string(info.Stack), "\n") {
					if line == "" {
						continue
					}
					l.WriteLineString(line)
				}
			} else {
				l.WriteLineString("stack: unavailable")
			}
		}

		select {
		case ch <- info:
		default:
		}
	}
}
