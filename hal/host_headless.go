package hal

import (
	"context"
	"fmt"
	"time"
)

// HeadlessConfig controls the host tick pump.
type HeadlessConfig struct {
	// Hz is the wall-clock tick rate. Ignored when Virtual is set.
	Hz int

	// Ticks stops the pump after that many ticks; 0 runs until ctx is done.
	Ticks uint64

	// Virtual emits one tick per step as fast as step returns instead of
	// following the wall clock.
	Virtual bool
}

// RunHeadless drives h's tick stream and calls step after each emitted
// batch of ticks. It returns nil once cfg.Ticks ticks have been emitted.
func RunHeadless(ctx context.Context, h HAL, step func() error, cfg HeadlessConfig) error {
	hh, ok := h.(*hostHAL)
	if !ok {
		return fmt.Errorf("headless runner needs the host HAL, got %T", h)
	}
	if cfg.Virtual {
		return runVirtual(ctx, hh, step, cfg.Ticks)
	}
	if cfg.Hz <= 0 {
		return fmt.Errorf("invalid headless hz: %d", cfg.Hz)
	}

	t := time.NewTicker(time.Second / time.Duration(cfg.Hz))
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			hh.t.step(1)
			if step != nil {
				if err := step(); err != nil {
					return err
				}
			}
			if cfg.Ticks > 0 && hh.t.seq >= cfg.Ticks {
				return nil
			}
		}
	}
}

func runVirtual(ctx context.Context, hh *hostHAL, step func() error, ticks uint64) error {
	for ticks == 0 || hh.t.seq < ticks {
		if err := ctx.Err(); err != nil {
			return err
		}
		hh.t.stepN(1)
		if step != nil {
			if err := step(); err != nil {
				return err
			}
		}
	}
	return nil
}
