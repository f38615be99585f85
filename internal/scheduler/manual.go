package scheduler

import (
	"sync"
	"time"
)

// Manual is a Scheduler driven by Advance instead of the wall clock.
// Callbacks run on the goroutine calling Advance, outside the scheduler lock,
// so they may schedule or cancel other calls.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	seq     uint64
	pending []*manualHandle
}

type manualHandle struct {
	owner *Manual
	due   time.Time
	seq   uint64
	fn    func()
	done  bool
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) AfterFunc(d time.Duration, fn func()) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d < 0 {
		d = 0
	}
	m.seq++
	handle := &manualHandle{
		owner: m,
		due:   m.now.Add(d),
		seq:   m.seq,
		fn:    fn,
	}
	m.pending = append(m.pending, handle)
	return handle
}

func (h *manualHandle) Cancel() bool {
	m := h.owner
	m.mu.Lock()
	defer m.mu.Unlock()

	if h.done {
		return false
	}
	h.done = true
	m.remove(h)
	return true
}

// Now reports the simulated time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Pending reports how many calls are still scheduled.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Advance moves simulated time forward by d and runs every call that falls due,
// earliest first. Calls scheduled by a callback run too if they fall within d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.nextDue(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		next.done = true
		m.remove(next)
		if next.due.After(m.now) {
			m.now = next.due
		}
		m.mu.Unlock()

		next.fn()
	}
}

func (m *Manual) nextDue(target time.Time) *manualHandle {
	var next *manualHandle
	for _, h := range m.pending {
		if h.due.After(target) {
			continue
		}
		if next == nil || h.due.Before(next.due) || (h.due.Equal(next.due) && h.seq < next.seq) {
			next = h
		}
	}
	return next
}

func (m *Manual) remove(target *manualHandle) {
	for i, h := range m.pending {
		if h == target {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return
		}
	}
}
