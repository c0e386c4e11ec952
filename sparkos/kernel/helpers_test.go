package kernel

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testWatchdog = 5 * time.Second

func newTestKernel(t *testing.T) *Kernel {
	t.Helper()
	return New(Config{
		Priorities: 16,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

// waitIdle fails the test instead of hanging when a thread never blocks.
func waitIdle(t *testing.T, k *Kernel) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		k.WaitIdle()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(testWatchdog):
		t.Fatal("kernel did not go idle")
	}
}

func spawn(t *testing.T, k *Kernel, name string, prio Priority, fn func(*Thread)) *Thread {
	t.Helper()
	th, err := k.NewThread(name, prio, fn)
	require.NoError(t, err)
	require.NoError(t, th.Start())
	return th
}

// advance delivers n ticks, letting the CPU go idle after each.
func advance(t *testing.T, k *Kernel, n int) {
	t.Helper()
	for range n {
		k.Tick()
		waitIdle(t, k)
	}
}

func joined(t *testing.T, th *Thread) {
	t.Helper()
	select {
	case <-th.Done():
	case <-time.After(testWatchdog):
		t.Fatalf("thread %q did not terminate", th.Name())
	}
}

// recorder collects events from kernel threads. Only the thread holding the
// CPU appends, and the test reads after waitIdle.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
	r.mu.Unlock()
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func newGate(t *testing.T, k *Kernel, name string) *Semaphore {
	t.Helper()
	s, err := k.NewSemaphore(name, 0, 1)
	require.NoError(t, err)
	return s
}
