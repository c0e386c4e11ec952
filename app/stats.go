package app

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"sparkrt/sparkos/kernel"
)

// ObjectStats counts the traced operations on one kernel object.
type ObjectStats struct {
	Name      string
	Type      kernel.ObjectType
	Attempts  uint64
	Completed uint64
	Timeouts  uint64
	Failed    uint64
	Releases  uint64
	Fired     uint64
	Forced    uint64
}

// Stats aggregates kernel trace events per object. It is safe for use from
// thread and tick context alike.
type Stats struct {
	mu      sync.Mutex
	objects map[string]*ObjectStats
	events  uint64
}

func NewStats() *Stats {
	return &Stats{objects: make(map[string]*ObjectStats)}
}

// Record is a kernel.TraceFunc.
func (s *Stats) Record(ev kernel.TraceEvent) {
	if ev.Object == nil {
		return
	}
	typ := ev.Object.Type()
	key := typ.String() + "/" + ev.Object.Name()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.events++
	o, ok := s.objects[key]
	if !ok {
		o = &ObjectStats{Name: ev.Object.Name(), Type: typ}
		s.objects[key] = o
	}

	switch ev.Kind {
	case kernel.TraceTryAcquire, kernel.TraceTrySend, kernel.TraceTryRecv, kernel.TraceTryAlloc:
		o.Attempts++
	case kernel.TraceAcquired, kernel.TraceSent, kernel.TraceReceived, kernel.TraceAllocated:
		switch {
		case ev.Err == nil:
			o.Completed++
		case errors.Is(ev.Err, kernel.ErrTimeout):
			o.Timeouts++
		default:
			o.Failed++
		}
	case kernel.TraceReleased, kernel.TraceFreed, kernel.TraceEventSet, kernel.TraceEventClear:
		o.Releases++
	case kernel.TraceTimerFired:
		o.Fired++
	case kernel.TraceForced:
		o.Forced++
	}
}

// Events returns the number of trace events recorded.
func (s *Stats) Events() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events
}

// Snapshot returns a copy of the per-object counters ordered by type and name.
func (s *Stats) Snapshot() []ObjectStats {
	s.mu.Lock()
	out := make([]ObjectStats, 0, len(s.objects))
	for _, o := range s.objects {
		out = append(out, *o)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Report summarises a finished run.
type Report struct {
	RunID    string
	Ticks    kernel.Tick
	Switches uint64

	Produced uint64
	Urgent   uint64
	Received uint64
	Corrupt  uint64
	Batches  uint64
	Beats    uint64
	Writes   uint64
	Reads    uint64

	LEDToggles uint64
	Objects    []ObjectStats
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	titleStyle  = lipgloss.NewStyle().Bold(true)
)

// Render formats the report as terminal tables.
func (r *Report) Render() string {
	summary := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(styleCell).
		Headers("metric", "value").
		Rows(
			[]string{"ticks", u64(uint64(r.Ticks))},
			[]string{"context switches", u64(r.Switches)},
			[]string{"messages produced", u64(r.Produced)},
			[]string{"urgent messages", u64(r.Urgent)},
			[]string{"messages received", u64(r.Received)},
			[]string{"corrupt messages", u64(r.Corrupt)},
			[]string{"batches reported", u64(r.Batches)},
			[]string{"heartbeats", u64(r.Beats)},
			[]string{"table writes", u64(r.Writes)},
			[]string{"table reads", u64(r.Reads)},
			[]string{"led toggles", u64(r.LEDToggles)},
		)

	objects := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(styleCell).
		Headers("object", "type", "attempts", "completed", "timeouts", "failed", "releases", "fired", "forced")
	for _, o := range r.Objects {
		objects.Row(o.Name, o.Type.String(),
			u64(o.Attempts), u64(o.Completed), u64(o.Timeouts), u64(o.Failed),
			u64(o.Releases), u64(o.Fired), u64(o.Forced))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(fmt.Sprintf("run %s", r.RunID)),
		summary.Render(),
		objects.Render(),
	)
}

func styleCell(row, _ int) lipgloss.Style {
	if row == table.HeaderRow {
		return headerStyle
	}
	return cellStyle
}

func u64(v uint64) string { return strconv.FormatUint(v, 10) }
