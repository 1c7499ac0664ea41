package status

import (
	"time"

	"github.com/soohan/attendance-agent/internal/schedule"
)

// Transition is one attendance state change kept in the recent-events log.
type Transition struct {
	Time      time.Time
	SessionID int
	Subject   string
	From      schedule.AttendanceStatus
	To        schedule.AttendanceStatus
}

// transitionRing is a fixed-capacity FIFO of recent transitions. The oldest
// entry is overwritten when full. Not safe for concurrent use — the Tracker
// synchronizes.
type transitionRing struct {
	buf      []Transition
	capacity int
	head     int // next write position
	count    int
}

func newTransitionRing(capacity int) *transitionRing {
	return &transitionRing{
		buf:      make([]Transition, capacity),
		capacity: capacity,
	}
}

func (r *transitionRing) push(tr Transition) {
	r.buf[r.head] = tr
	r.head = (r.head + 1) % r.capacity
	if r.count < r.capacity {
		r.count++
	}
}

// list returns the retained transitions, oldest first.
func (r *transitionRing) list() []Transition {
	if r.count == 0 {
		return nil
	}
	out := make([]Transition, r.count)
	start := (r.head - r.count + r.capacity) % r.capacity
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(start+i)%r.capacity]
	}
	return out
}

func (r *transitionRing) len() int {
	return r.count
}
