package schedule

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultLeadBuffer opens a session's active window this long before its
// scheduled start, so a student arriving early still checks in.
const DefaultLeadBuffer = 5 * time.Minute

// Store holds the authoritative in-memory DailySchedule behind an RWMutex.
// It is the single mutation path for session status: the engine requests
// changes through UpdateStatus, readers (web handlers, the monitor) only see
// whole Session values, never a half-updated one.
type Store struct {
	log  *zap.Logger
	lead time.Duration

	mu    sync.RWMutex
	sched *DailySchedule
}

// NewStore creates an empty Store with the given lead buffer.
// A lead of 0 uses DefaultLeadBuffer.
func NewStore(lead time.Duration, log *zap.Logger) *Store {
	if lead <= 0 {
		lead = DefaultLeadBuffer
	}
	return &Store{log: log, lead: lead}
}

// LeadBuffer returns the configured active-window lead.
func (st *Store) LeadBuffer() time.Duration {
	return st.lead
}

// Replace installs a freshly fetched schedule, discarding the previous one.
func (st *Store) Replace(s *DailySchedule) {
	st.mu.Lock()
	st.sched = s
	st.mu.Unlock()
	if s != nil {
		st.log.Info("schedule replaced",
			zap.Int("student_id", s.StudentID),
			zap.Int("classes", len(s.Classes)))
	}
}

// Empty reports whether no schedule is loaded.
func (st *Store) Empty() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.sched == nil
}

// StudentID returns the owning student's id, or 0 when no schedule is loaded.
func (st *Store) StudentID() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.sched == nil {
		return 0
	}
	return st.sched.StudentID
}

// Sessions returns a copy of today's sessions in schedule order.
func (st *Store) Sessions() []Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.sched == nil {
		return nil
	}
	out := make([]Session, len(st.sched.Classes))
	copy(out, st.sched.Classes)
	return out
}

// CurrentSession returns the session whose window (opened early by the lead
// buffer) contains now. Overlapping windows are broken deterministically in
// favor of the earliest start time. Sessions with unparsable times are
// excluded and logged, never fatal.
func (st *Store) CurrentSession(now time.Time) (Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.sched == nil {
		return Session{}, false
	}

	var (
		best      Session
		bestStart time.Time
		found     bool
	)
	for _, s := range st.sched.Classes {
		active, err := s.ActiveAt(now, st.lead)
		if err != nil {
			st.log.Warn("session has unparsable time window, skipping",
				zap.Int("session_id", s.ID), zap.Error(err))
			continue
		}
		if !active {
			continue
		}
		start, _, _ := s.Window(now)
		if !found || start.Before(bestStart) {
			best, bestStart, found = s, start, true
		}
	}
	return best, found
}

// SessionByClassroom returns the first session scheduled in the given room.
func (st *Store) SessionByClassroom(classroom string) (Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.sched == nil {
		return Session{}, false
	}
	for _, s := range st.sched.Classes {
		if s.Classroom == classroom {
			return s, true
		}
	}
	return Session{}, false
}

// SessionByID returns the session with the given id.
func (st *Store) SessionByID(id int) (Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.sched == nil {
		return Session{}, false
	}
	for _, s := range st.sched.Classes {
		if s.ID == id {
			return s, true
		}
	}
	return Session{}, false
}

// UpdateStatus sets the session's attendance status, and its check-in time
// when checkIn is non-nil. It is the only mutation path; the update is
// atomic with respect to concurrent reads.
func (st *Store) UpdateStatus(sessionID int, status AttendanceStatus, checkIn *time.Time) error {
	if !status.Valid() {
		return fmt.Errorf("update status: unknown status %q", status)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.sched == nil {
		return fmt.Errorf("update status: no schedule loaded")
	}
	for i := range st.sched.Classes {
		s := &st.sched.Classes[i]
		if s.ID != sessionID {
			continue
		}
		prev := s.AttendanceStatus
		s.AttendanceStatus = status
		if checkIn != nil {
			t := FlexTime{Time: *checkIn}
			s.AttendanceTime = AttendanceTime{
				String: checkIn.Format(clockLayout),
				Valid:  true,
				Time:   &t,
			}
		}
		st.log.Info("session status updated",
			zap.Int("session_id", sessionID),
			zap.String("from", string(prev)),
			zap.String("to", string(status)))
		return nil
	}
	return fmt.Errorf("update status: session %d not found", sessionID)
}

// FinalizeElapsed marks checked-in sessions whose window has ended as
// completed. This is a local bookkeeping sweep only; no sync request is
// issued for it. Returns the ids of sessions it touched.
func (st *Store) FinalizeElapsed(now time.Time) []int {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.sched == nil {
		return nil
	}
	var done []int
	for i := range st.sched.Classes {
		s := &st.sched.Classes[i]
		if !s.CheckedIn() || s.AttendanceStatus == StatusCompleted {
			continue
		}
		_, end, err := s.Window(now)
		if err != nil {
			continue
		}
		if now.After(end) {
			s.AttendanceStatus = StatusCompleted
			done = append(done, s.ID)
		}
	}
	return done
}
