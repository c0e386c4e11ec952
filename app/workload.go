package app

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"

	"sparkrt/hal"
	"sparkrt/sparkos/kernel"
)

// Thread priorities; lower is more urgent.
const (
	prioReporter kernel.Priority = 1 + iota
	prioConsumer
	prioWriter
	prioProducer
	prioReader
)

const beatBit kernel.Mask = 1 << 0

// workload is the demo system: producers push frames through a message
// queue to consumers, a reporter is signalled per batch, and a heartbeat
// timer drives writers while readers sample the shared table.
type workload struct {
	k   *kernel.Kernel
	cfg WorkloadConfig
	log *slog.Logger
	led hal.LED

	stop atomic.Bool

	queue     *kernel.MsgQueue
	pool      *kernel.MemPool
	credits   *kernel.Semaphore
	totals    *kernel.Mutex
	batch     *kernel.Condition
	beat      *kernel.Event
	table     *kernel.RwLock
	heartbeat *kernel.Timer

	threads []*kernel.Thread

	// Guarded by totals.
	produced uint64
	urgent   uint64
	received uint64
	corrupt  uint64
	batches  uint64

	// Guarded by table.
	generation uint64
	writes     uint64

	// reads[i] belongs to reader i.
	reads []uint64

	// Tick context only.
	beats atomic.Uint64
}

func newWorkload(k *kernel.Kernel, cfg WorkloadConfig, logger *slog.Logger, led hal.LED) (w *workload, err error) {
	w = &workload{
		k:     k,
		cfg:   cfg,
		log:   logger,
		led:   led,
		reads: make([]uint64, cfg.Readers),
	}
	defer func() {
		if err != nil {
			if cerr := w.close(); cerr != nil {
				w.log.Warn("workload cleanup", "error", cerr)
			}
			w = nil
		}
	}()

	if w.queue, err = k.NewMsgQueue("frames", cfg.MessageSize, cfg.QueueSlots); err != nil {
		return w, fmt.Errorf("create queue: %w", err)
	}
	if w.pool, err = k.NewMemPool("blocks", cfg.BlockSize, cfg.PoolBlocks); err != nil {
		return w, fmt.Errorf("create pool: %w", err)
	}
	slots := uint(cfg.QueueSlots)
	if w.credits, err = k.NewSemaphore("credits", slots, slots); err != nil {
		return w, fmt.Errorf("create semaphore: %w", err)
	}
	if w.totals, err = k.NewMutex("totals"); err != nil {
		return w, fmt.Errorf("create mutex: %w", err)
	}
	if w.batch, err = k.NewCondition("batch"); err != nil {
		return w, fmt.Errorf("create condition: %w", err)
	}
	if w.beat, err = k.NewEvent("beat"); err != nil {
		return w, fmt.Errorf("create event: %w", err)
	}
	if w.table, err = k.NewRwLock("table"); err != nil {
		return w, fmt.Errorf("create rwlock: %w", err)
	}
	if w.heartbeat, err = k.NewTimer("heartbeat", kernel.TimerPeriodic, w.onHeartbeat, nil); err != nil {
		return w, fmt.Errorf("create timer: %w", err)
	}

	if err = w.spawn("reporter", prioReporter, w.report); err != nil {
		return w, err
	}
	for i := range cfg.Consumers {
		if err = w.spawn(fmt.Sprintf("consumer-%d", i), prioConsumer, w.consume); err != nil {
			return w, err
		}
	}
	for i := range cfg.Writers {
		if err = w.spawn(fmt.Sprintf("writer-%d", i), prioWriter, w.write); err != nil {
			return w, err
		}
	}
	for i := range cfg.Producers {
		if err = w.spawn(fmt.Sprintf("producer-%d", i), prioProducer, w.producer(i)); err != nil {
			return w, err
		}
	}
	for i := range cfg.Readers {
		if err = w.spawn(fmt.Sprintf("reader-%d", i), prioReader, w.reader(i)); err != nil {
			return w, err
		}
	}
	return w, nil
}

func (w *workload) spawn(name string, prio kernel.Priority, entry func(*kernel.Thread)) error {
	th, err := w.k.NewThread(name, prio, entry)
	if err != nil {
		return fmt.Errorf("create thread %s: %w", name, err)
	}
	w.threads = append(w.threads, th)
	return nil
}

func (w *workload) start() error {
	for _, th := range w.threads {
		if err := th.Start(); err != nil {
			return fmt.Errorf("start thread %s: %w", th.Name(), err)
		}
	}
	return w.heartbeat.Start(w.wait(1))
}

// halt asks every thread to finish its current iteration and silences the
// heartbeat.
func (w *workload) halt() {
	w.stop.Store(true)
	if w.heartbeat != nil {
		_ = w.heartbeat.Stop()
	}
}

// wait returns n heartbeat periods as a timeout.
func (w *workload) wait(n uint32) kernel.Timeout {
	return kernel.Ticks(kernel.Tick(n * w.cfg.HeartbeatTicks))
}

// running returns the number of threads that have not terminated.
func (w *workload) running() int {
	n := 0
	for _, th := range w.threads {
		select {
		case <-th.Done():
		default:
			n++
		}
	}
	return n
}

// close tears down every kernel object the workload created.
func (w *workload) close() error {
	var merr *multierror.Error
	if w.heartbeat != nil {
		merr = multierror.Append(merr, w.heartbeat.Stop(), w.heartbeat.Destroy())
		w.heartbeat = nil
	}
	destroy := []struct {
		name string
		fn   func() error
	}{
		{"table", nilSafe(w.table, func() error { return w.table.Destroy() })},
		{"beat", nilSafe(w.beat, func() error { return w.beat.Destroy() })},
		{"batch", nilSafe(w.batch, func() error { return w.batch.Destroy() })},
		{"totals", nilSafe(w.totals, func() error { return w.totals.Destroy() })},
		{"credits", nilSafe(w.credits, func() error { return w.credits.Destroy() })},
		{"blocks", nilSafe(w.pool, func() error { return w.pool.Destroy() })},
		{"frames", nilSafe(w.queue, func() error { return w.queue.Destroy() })},
	}
	for _, d := range destroy {
		if err := d.fn(); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("destroy %s: %w", d.name, err))
		}
	}
	w.table, w.beat, w.batch, w.totals, w.credits, w.pool, w.queue = nil, nil, nil, nil, nil, nil, nil
	return merr.ErrorOrNil()
}

func nilSafe[T any](obj *T, fn func() error) func() error {
	if obj == nil {
		return func() error { return nil }
	}
	return fn
}

func (w *workload) fill(r *Report) {
	r.Produced = w.produced
	r.Urgent = w.urgent
	r.Received = w.received
	r.Corrupt = w.corrupt
	r.Batches = w.batches
	r.Beats = w.beats.Load()
	r.Writes = w.writes
	for _, n := range w.reads {
		r.Reads += n
	}
}

// locked runs fn while holding the totals mutex.
func (w *workload) locked(t *kernel.Thread, fn func()) error {
	if err := w.totals.Acquire(t, kernel.Forever); err != nil {
		return err
	}
	fn()
	return w.totals.Release(t)
}

func (w *workload) producer(id int) func(*kernel.Thread) {
	return func(t *kernel.Thread) {
		var seq uint32
		for !w.stop.Load() {
			err := w.produceOne(t, id, seq)
			switch {
			case err == nil:
				seq++
			case errors.Is(err, kernel.ErrTimeout), errors.Is(err, kernel.ErrRange):
				w.log.Debug("producer backoff", "thread", t.Name(), "error", err)
			default:
				w.log.Warn("producer stopped", "thread", t.Name(), "error", err)
				return
			}
			_ = t.Delay(kernel.Tick(1 + id%3))
		}
	}
}

func (w *workload) produceOne(t *kernel.Thread, id int, seq uint32) error {
	if err := w.credits.Acquire(t, w.wait(1)); err != nil {
		return err
	}
	b, err := w.pool.Alloc(t, w.wait(1))
	if err != nil {
		_ = w.credits.Release(t)
		return err
	}

	f := frame{producer: uint16(id), seq: seq}
	every := uint32(w.cfg.UrgentEvery)
	urgent := every > 0 && seq%every == every-1
	if urgent {
		f.flags |= frameUrgent
	}
	payload := f.encode(b.Bytes()[:w.cfg.MessageSize])

	var sendErr error
	if urgent {
		sendErr = w.queue.Urgent(t, payload)
	} else {
		sendErr = w.queue.Send(t, payload, w.wait(1))
	}
	if err := b.Free(t); err != nil {
		return fmt.Errorf("free block: %w", err)
	}
	if sendErr != nil {
		_ = w.credits.Release(t)
		return sendErr
	}

	return w.locked(t, func() {
		w.produced++
		if urgent {
			w.urgent++
		}
	})
}

func (w *workload) consume(t *kernel.Thread) {
	for !w.stop.Load() {
		m, err := w.queue.RecvAcquire(t, w.wait(1))
		if errors.Is(err, kernel.ErrTimeout) {
			continue
		}
		if err != nil {
			w.log.Warn("consumer stopped", "thread", t.Name(), "error", err)
			return
		}

		_, intact, decodeErr := decodeFrame(m.Bytes())
		if err := w.queue.RecvRelease(t, m); err != nil {
			w.log.Warn("consumer stopped", "thread", t.Name(), "error", err)
			return
		}
		if err := w.credits.Release(t); err != nil {
			w.log.Warn("credit overflow", "thread", t.Name(), "error", err)
		}

		err = w.locked(t, func() {
			w.received++
			if decodeErr != nil || !intact {
				w.corrupt++
			}
			if w.received%uint64(w.cfg.BatchSize) == 0 {
				_ = w.batch.Signal(t)
			}
		})
		if err != nil {
			w.log.Warn("consumer stopped", "thread", t.Name(), "error", err)
			return
		}
	}
}

// report waits on the batch condition with the totals mutex held, so no
// signal from a consumer can slip in between checks.
func (w *workload) report(t *kernel.Thread) {
	if err := w.totals.Acquire(t, kernel.Forever); err != nil {
		w.log.Warn("reporter stopped", "error", err)
		return
	}
	defer func() { _ = w.totals.Release(t) }()

	for !w.stop.Load() {
		err := w.batch.Wait(t, w.totals, w.wait(1))
		if errors.Is(err, kernel.ErrTimeout) {
			continue
		}
		if err != nil {
			w.log.Warn("reporter stopped", "error", err)
			return
		}
		w.batches++
		w.log.Debug("batch", "received", w.received, "produced", w.produced, "corrupt", w.corrupt)
	}
}

// onHeartbeat runs in tick context.
func (w *workload) onHeartbeat(any) {
	n := w.beats.Add(1)
	if w.led != nil {
		if n%2 == 1 {
			w.led.High()
		} else {
			w.led.Low()
		}
	}
	_ = w.beat.Set(nil, beatBit)
}

func (w *workload) write(t *kernel.Thread) {
	for !w.stop.Load() {
		_, err := w.beat.Wait(t, beatBit, kernel.EventOr, w.wait(2))
		if errors.Is(err, kernel.ErrTimeout) {
			continue
		}
		if err != nil {
			w.log.Warn("writer stopped", "thread", t.Name(), "error", err)
			return
		}

		if err := w.table.AcquireWrite(t, w.wait(1)); err != nil {
			if errors.Is(err, kernel.ErrTimeout) {
				continue
			}
			w.log.Warn("writer stopped", "thread", t.Name(), "error", err)
			return
		}
		w.generation++
		w.writes++
		_ = w.table.Release(t)
	}
}

func (w *workload) reader(id int) func(*kernel.Thread) {
	pause := kernel.Tick(3 + id%4)
	return func(t *kernel.Thread) {
		for !w.stop.Load() {
			if err := w.table.AcquireRead(t, w.wait(1)); err != nil {
				if errors.Is(err, kernel.ErrTimeout) {
					continue
				}
				w.log.Warn("reader stopped", "thread", t.Name(), "error", err)
				return
			}
			w.reads[id]++
			_ = t.Delay(2)
			_ = w.table.Release(t)
			_ = t.Delay(pause)
		}
	}
}
