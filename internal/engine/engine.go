// Package engine contains the attendance state machine and the monitoring
// controller. The engine is pure event-in, commands-out logic: it never
// performs I/O and is owned by a single goroutine (the run loop). Samples,
// watchdog ticks, and sync results all enter through that owner, which keeps
// transitions for a session ordered and the pending-flag rule airtight.
package engine

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/soohan/attendance-agent/internal/beacon"
	"github.com/soohan/attendance-agent/internal/schedule"
	"github.com/soohan/attendance-agent/internal/syncer"
)

// Policy selects which beacon identifiers are monitored.
type Policy int

const (
	// MonitorAllToday ranges every beacon on today's schedule all day.
	MonitorAllToday Policy = iota

	// MonitorActiveOnly ranges only the current session's beacon.
	MonitorActiveOnly
)

// String returns the config name of the policy.
func (p Policy) String() string {
	if p == MonitorActiveOnly {
		return "active-only"
	}
	return "all-today"
}

// ParsePolicy maps a config name to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "all-today", "all":
		return MonitorAllToday, nil
	case "active-only", "active":
		return MonitorActiveOnly, nil
	}
	return MonitorAllToday, fmt.Errorf("unknown monitor policy %q", s)
}

// DefaultAbsenceThreshold is how long a checked-in session may go without a
// qualifying sample before it is escalated to absent.
const DefaultAbsenceThreshold = 10 * time.Second

// Config carries the engine's tunables. The monitoring policy lives on the
// Monitor, not here: the engine reacts to whatever samples arrive.
type Config struct {
	AbsenceThreshold time.Duration

	// AnySampleResetsSilence makes Far/Unknown samples for the correct
	// beacon reset the silence timer. Default off: only presence-grade
	// samples count.
	AnySampleResetsSilence bool
}

// Counts tracks engine activity since startup.
type Counts struct {
	CheckIns            int
	Absences            int
	Recoveries          int
	SyncFailures        int
	IgnoredSamples      int
	DroppedWhilePending int
}

// Engine consumes classified proximity samples and watchdog ticks, applies
// the transition rules, and emits at most one sync request per transition.
// Methods must be called from a single goroutine.
type Engine struct {
	store *schedule.Store
	cfg   Config
	log   *zap.Logger

	pending    map[int]bool
	lastSample map[string]time.Time
	counts     Counts
}

// New creates an Engine over the given store. A zero AbsenceThreshold uses
// DefaultAbsenceThreshold.
func New(store *schedule.Store, cfg Config, log *zap.Logger) *Engine {
	if cfg.AbsenceThreshold <= 0 {
		cfg.AbsenceThreshold = DefaultAbsenceThreshold
	}
	return &Engine{
		store:      store,
		cfg:        cfg,
		log:        log,
		pending:    make(map[int]bool),
		lastSample: make(map[string]time.Time),
	}
}

// HandleSample evaluates one classified sample against the current session.
// It returns any sync requests to submit and whether the monitored set needs
// reconciling (the sample did not match what the schedule says should be
// monitored right now).
func (e *Engine) HandleSample(s beacon.Sample, now time.Time) ([]syncer.Request, bool) {
	cur, ok := e.store.CurrentSession(now)
	if !ok {
		e.counts.IgnoredSamples++
		e.log.Debug("sample outside any active session",
			zap.String("uuid", s.UUID), zap.String("level", s.Level.String()))
		return nil, true
	}

	curUUID, err := cur.BeaconUUID()
	if err != nil {
		e.counts.IgnoredSamples++
		e.log.Warn("active session has malformed beacon identifier",
			zap.Int("session_id", cur.ID), zap.Error(err))
		return nil, true
	}
	if s.UUID != curUUID {
		e.counts.IgnoredSamples++
		e.log.Debug("sample for non-active beacon",
			zap.String("uuid", s.UUID), zap.String("expected", curUUID))
		return nil, true
	}

	at := s.ObservedAt
	if at.IsZero() {
		at = now
	}
	if s.Level.IsPresence() || e.cfg.AnySampleResetsSilence {
		e.lastSample[s.UUID] = at
	}
	if !s.Level.IsPresence() {
		return nil, false
	}

	if e.pending[cur.ID] {
		e.counts.DroppedWhilePending++
		e.log.Debug("dropping sample, sync request in flight",
			zap.Int("session_id", cur.ID))
		return nil, false
	}

	switch cur.AttendanceStatus {
	case schedule.StatusWaiting:
		// First detection checks the student in; completed is the terminal
		// presence state for the whole window.
		e.pending[cur.ID] = true
		checkIn := at
		e.log.Info("check-in detected",
			zap.Int("session_id", cur.ID),
			zap.String("subject", cur.SubjectName),
			zap.Time("at", checkIn))
		return []syncer.Request{e.request(cur, schedule.StatusCompleted, now, &checkIn)}, false

	case schedule.StatusAbsent:
		e.pending[cur.ID] = true
		e.log.Info("presence recovered",
			zap.Int("session_id", cur.ID),
			zap.String("subject", cur.SubjectName))
		return []syncer.Request{e.request(cur, schedule.StatusCompleted, now, nil)}, false
	}

	return nil, false
}

// Tick is the absence watchdog entry point. A checked-in session that has
// gone silent for the absence threshold while still active is escalated to
// absent, once. It also finalizes checked-in sessions whose window elapsed.
func (e *Engine) Tick(now time.Time) []syncer.Request {
	for _, id := range e.store.FinalizeElapsed(now) {
		e.log.Info("session window elapsed, finalized locally", zap.Int("session_id", id))
	}

	cur, ok := e.store.CurrentSession(now)
	if !ok {
		return nil
	}
	if cur.AttendanceStatus != schedule.StatusCompleted && cur.AttendanceStatus != schedule.StatusOngoing {
		// Absence is only meaningful once presence was established;
		// a never-checked-in session stays waiting.
		return nil
	}
	if e.pending[cur.ID] {
		return nil
	}
	uuid, err := cur.BeaconUUID()
	if err != nil {
		return nil
	}
	lastSeen, seen := e.lastSample[uuid]
	if !seen || now.Sub(lastSeen) < e.cfg.AbsenceThreshold {
		return nil
	}

	e.pending[cur.ID] = true
	e.log.Info("silence threshold exceeded, marking absent",
		zap.Int("session_id", cur.ID),
		zap.Duration("silence", now.Sub(lastSeen)))
	return []syncer.Request{e.request(cur, schedule.StatusAbsent, now, nil)}
}

// HandleResult applies the outcome of a sync request. The pending flag is
// cleared either way; the local mutation happens only on confirmed success.
// Returns true when a schedule refresh should follow.
func (e *Engine) HandleResult(res syncer.Result, now time.Time) bool {
	delete(e.pending, res.Req.SessionID)

	if res.Err != nil {
		e.counts.SyncFailures++
		e.log.Warn("sync request failed, will retry on next qualifying event",
			zap.Int("session_id", res.Req.SessionID),
			zap.String("status", string(res.Req.Status)),
			zap.Error(res.Err))
		return false
	}

	if err := e.store.UpdateStatus(res.Req.SessionID, res.Req.Status, res.Req.CheckInTime); err != nil {
		// Schedule was replaced and the session is gone; the confirmed
		// result has nothing left to apply.
		e.log.Warn("confirmed sync result not applicable", zap.Error(err))
		return true
	}

	switch {
	case res.Req.Status == schedule.StatusAbsent:
		e.counts.Absences++
	case res.Req.CheckInTime != nil:
		e.counts.CheckIns++
	default:
		e.counts.Recoveries++
	}
	return true
}

func (e *Engine) request(s schedule.Session, status schedule.AttendanceStatus, now time.Time, checkIn *time.Time) syncer.Request {
	return syncer.Request{
		StudentID:   s.StudentID,
		SessionID:   s.ID,
		Status:      status,
		Classroom:   s.Classroom,
		Date:        schedule.DateString(now),
		CheckInTime: checkIn,
	}
}

// Pending reports whether a sync request is in flight for the session.
func (e *Engine) Pending(sessionID int) bool {
	return e.pending[sessionID]
}

// LastSample returns when the beacon was last observed (per the silence
// policy) — the timestamp the watchdog measures against.
func (e *Engine) LastSample(uuid string) (time.Time, bool) {
	t, ok := e.lastSample[beacon.NormalizeUUID(uuid)]
	return t, ok
}

// LastSamples returns a copy of all last-sample timestamps.
func (e *Engine) LastSamples() map[string]time.Time {
	out := make(map[string]time.Time, len(e.lastSample))
	for k, v := range e.lastSample {
		out[k] = v
	}
	return out
}

// Counts returns a snapshot of activity counters.
func (e *Engine) Counts() Counts {
	return e.counts
}
