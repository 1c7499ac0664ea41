// Package status provides a thread-safe status tracker for the attendance
// agent. The run loop writes to it after every event; HTTP handlers and the
// LED driver read point-in-time snapshots.
package status

import (
	"sync"
	"time"

	"github.com/soohan/attendance-agent/internal/engine"
	"github.com/soohan/attendance-agent/internal/schedule"
)

// Config contains agent configuration for display.
type Config struct {
	Broker             string
	BaseURL            string
	StudentID          int
	Policy             string
	AbsenceThresholdMs int64
	WatchdogMs         int64
	RefreshMs          int64
	HTTPAddr           string
	CachePath          string
}

// SessionStatus is the per-session view exposed on the status surface.
type SessionStatus struct {
	ID          int
	Subject     string
	Classroom   string
	StartTime   string
	EndTime     string
	BeaconUUID  string
	Status      schedule.AttendanceStatus
	CheckInTime *time.Time
	LastSample  *time.Time
	Pending     bool
	Active      bool
}

// Snapshot is a point-in-time view of agent state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Sessions      []SessionStatus
	Monitored     []string
	Counts        engine.Counts
	Recent        []Transition
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	ScheduleDay   string
	Config        Config
}

// Uptime returns the duration since the agent started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// CheckedInNow reports whether the currently active session is checked in —
// what the presence LED shows.
func (s Snapshot) CheckedInNow() bool {
	for _, sess := range s.Sessions {
		if sess.Active && (sess.Status == schedule.StatusCompleted || sess.Status == schedule.StatusOngoing) {
			return true
		}
	}
	return false
}

// Tracker holds mutable agent state behind an RWMutex.
type Tracker struct {
	mu     sync.RWMutex
	snap   Snapshot
	recent *transitionRing
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		recent: newTransitionRing(32),
	}
}

// Update replaces the session view, monitored set, and counters.
// Called from the run loop after every handled event.
func (t *Tracker) Update(sessions []SessionStatus, monitored []string, counts engine.Counts, day string) {
	t.mu.Lock()
	t.snap.Sessions = sessions
	t.snap.Monitored = monitored
	t.snap.Counts = counts
	t.snap.ScheduleDay = day
	t.mu.Unlock()
}

// SetMQTTConnected sets broker connectivity.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// RecordTransition appends a transition to the bounded recent-events log.
func (t *Tracker) RecordTransition(tr Transition) {
	t.mu.Lock()
	t.recent.push(tr)
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the agent state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Recent = t.recent.list()
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
