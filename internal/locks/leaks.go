package locks

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const markerStackDepth = 8

// Marker identifies one open lock.
type Marker struct {
	// ID is unique per acquire.
	ID string

	// Target describes what is locked, e.g. "translog generation 7".
	Target string

	// AcquiredAt is when the lock was taken.
	AcquiredAt time.Time

	// Stack holds the acquiring call sites, innermost first.
	Stack []string
}

func (m Marker) String() string {
	site := "unknown"
	if len(m.Stack) > 0 {
		site = m.Stack[0]
	}
	return fmt.Sprintf("%s [%s] acquired at %s by %s",
		m.Target, m.ID, m.AcquiredAt.UTC().Format(time.RFC3339Nano), site)
}

// leakTracker records open locks. A nil tracker is valid and records nothing.
type leakTracker struct {
	mu   sync.Mutex
	open map[string]Marker
}

func newLeakTracker(enabled bool) *leakTracker {
	if !enabled {
		return nil
	}
	return &leakTracker{open: make(map[string]Marker)}
}

// add records a new open lock and returns its id. skip drops that many
// frames above add from the recorded stack.
func (t *leakTracker) add(target string, skip int) string {
	if t == nil {
		return ""
	}
	m := Marker{
		ID:         uuid.New().String(),
		Target:     target,
		AcquiredAt: time.Now(),
		Stack:      callers(skip + 2),
	}
	t.mu.Lock()
	t.open[m.ID] = m
	t.mu.Unlock()
	return m.ID
}

func (t *leakTracker) remove(id string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	delete(t.open, id)
	t.mu.Unlock()
}

// check returns a LeakError listing all open markers, oldest first.
func (t *leakTracker) check() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	markers := make([]Marker, 0, len(t.open))
	for _, m := range t.open {
		markers = append(markers, m)
	}
	t.mu.Unlock()

	if len(markers) == 0 {
		return nil
	}
	sort.Slice(markers, func(i, j int) bool {
		if markers[i].AcquiredAt.Equal(markers[j].AcquiredAt) {
			return markers[i].ID < markers[j].ID
		}
		return markers[i].AcquiredAt.Before(markers[j].AcquiredAt)
	})
	return &LeakError{Markers: markers}
}

func callers(skip int) []string {
	pcs := make([]uintptr, markerStackDepth)
	n := runtime.Callers(skip+1, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	stack := make([]string, 0, n)
	for {
		f, more := frames.Next()
		if f.Function != "" {
			fn := f.Function
			if i := strings.LastIndex(fn, "/"); i >= 0 {
				fn = fn[i+1:]
			}
			stack = append(stack, fmt.Sprintf("%s %s:%d", fn, f.File, f.Line))
		}
		if !more {
			break
		}
	}
	return stack
}
