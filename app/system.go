package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"sparkrt/hal"
	"sparkrt/internal/buildinfo"
	"sparkrt/sparkos/kernel"
)

var (
	// ErrPanic is returned by Run when a kernel thread panicked or a kernel
	// invariant was violated.
	ErrPanic = errors.New("kernel panic")

	// ErrStuck is returned by Run when threads keep running after the stop
	// request for longer than the drain budget.
	ErrStuck = errors.New("threads did not stop")
)

// drainSlack is added to the longest workload wait when draining.
const drainSlack = 64

// System is a kernel instance running the demo workload on a HAL.
type System struct {
	id  uuid.UUID
	cfg Config
	h   hal.HAL
	k   *kernel.Kernel
	log *slog.Logger

	stats  *Stats
	w      *workload
	panics chan kernel.PanicInfo
}

// New builds the kernel and every workload object. Nothing runs until Run.
func New(h hal.HAL, cfg Config, logger *slog.Logger) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &System{
		id:     uuid.New(),
		cfg:    cfg,
		h:      h,
		stats:  NewStats(),
		panics: make(chan kernel.PanicInfo, 1),
	}
	s.log = logger.With("run", s.id.String())
	s.k = kernel.New(kernel.Config{
		Priorities: cfg.Kernel.Priorities,
		Logger:     s.log.With("component", "kernel"),
		Trace:      s.stats.Record,
	})

	installPanicHandler(h.Logger(), s.panics)

	w, err := newWorkload(s.k, cfg.Workload, s.log.With("component", "workload"), h.LED())
	if err != nil {
		return nil, err
	}
	s.w = w
	return s, nil
}

// ID identifies the run in logs and the report.
func (s *System) ID() string { return s.id.String() }

// Kernel returns the kernel the system runs on.
func (s *System) Kernel() *kernel.Kernel { return s.k }

// Run starts the kernel and pumps ticks until the configured tick count is
// reached or ctx is cancelled. It then asks every thread to stop, keeps
// ticking until they have, and tears the kernel objects down. The report is
// returned even when err is non-nil.
func (s *System) Run(ctx context.Context) (*Report, error) {
	s.log.Info("run start",
		buildinfo.Attr(),
		"ticks", s.cfg.Run.Ticks,
		"virtual", s.cfg.Run.Virtual,
		"threads", len(s.w.threads),
	)

	s.k.Start()
	if err := s.w.start(); err != nil {
		s.w.halt()
		return s.finish(err, s.drain())
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancel()
		err := hal.RunHeadless(gctx, s.h, s.step, hal.HeadlessConfig{
			Hz:      s.cfg.Kernel.TickHz,
			Ticks:   s.cfg.Run.Ticks,
			Virtual: s.cfg.Run.Virtual,
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case info := <-s.panics:
			return fmt.Errorf("%w: thread %q: %v", ErrPanic, info.Thread, info.Value)
		}
	})

	runErr := g.Wait()
	s.w.halt()
	return s.finish(runErr, s.drain())
}

func (s *System) finish(errs ...error) (*Report, error) {
	merr := multierror.Append(nil, errs...)
	if err := s.w.close(); err != nil {
		merr = multierror.Append(merr, err)
	}
	report := s.report()

	err := merr.ErrorOrNil()
	if err != nil {
		s.log.Error("run failed", "error", err)
	} else {
		s.log.Info("run done", "ticks", report.Ticks, "received", report.Received)
	}
	return report, err
}

// step delivers every pending HAL tick to the kernel and waits until the
// threads have gone idle.
func (s *System) step() error {
	ticks := s.h.Time().Ticks()
	for {
		select {
		case <-ticks:
			s.k.Tick()
		default:
			s.k.WaitIdle()
			return nil
		}
	}
}

// drain ticks the kernel until every thread has observed the stop request.
func (s *System) drain() error {
	budget := 4*int(s.cfg.Workload.HeartbeatTicks) + drainSlack
	for i := 0; ; i++ {
		n := s.w.running()
		if n == 0 {
			return nil
		}
		if i >= budget {
			return fmt.Errorf("%w: %d still running after %d ticks", ErrStuck, n, budget)
		}
		s.k.Tick()
		s.k.WaitIdle()
	}
}

func (s *System) report() *Report {
	r := &Report{
		RunID:    s.id.String(),
		Ticks:    s.k.Now(),
		Switches: s.k.Switches(),
		Objects:  s.stats.Snapshot(),
	}
	if _, toggles, ok := hal.LEDState(s.h); ok {
		r.LEDToggles = toggles
	}
	s.w.fill(r)
	return r
}
