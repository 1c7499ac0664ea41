// Package schedule holds today's class schedule: the wire model fetched from
// the attendance service, a thread-safe in-memory store that owns all status
// mutation, a same-day file cache, and the HTTP fetcher.
package schedule

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AttendanceStatus is the per-session attendance state.
type AttendanceStatus string

const (
	StatusWaiting   AttendanceStatus = "waiting"
	StatusOngoing   AttendanceStatus = "ongoing"
	StatusCompleted AttendanceStatus = "completed"
	StatusAbsent    AttendanceStatus = "absent"
)

// Valid reports whether s is one of the four known statuses.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case StatusWaiting, StatusOngoing, StatusCompleted, StatusAbsent:
		return true
	}
	return false
}

// DateLayout is the calendar-date format the service expects ("YYYY-MM-DD").
const DateLayout = "2006-01-02"

// DateString formats t as a local calendar date.
func DateString(t time.Time) string {
	return t.Format(DateLayout)
}

// FlexTime is a time.Time that decodes from either an RFC3339 string or a
// numeric epoch-seconds value. The service has emitted both over time.
type FlexTime struct {
	time.Time
}

// UnmarshalJSON accepts RFC3339 (with or without fractional seconds) or
// epoch seconds (integer or float).
func (f *FlexTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		f.Time = time.Time{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("parse time %q: %w", s, err)
		}
		f.Time = t
		return nil
	}

	// Numeric epoch seconds.
	sec, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("parse epoch %q: %w", data, err)
	}
	whole := int64(sec)
	frac := sec - float64(whole)
	f.Time = time.Unix(whole, int64(frac*float64(time.Second))).UTC()
	return nil
}

// MarshalJSON always emits RFC3339.
func (f FlexTime) MarshalJSON() ([]byte, error) {
	if f.Time.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(f.Time.Format(time.RFC3339Nano))
}

// NullString mirrors the service's sql.NullString wire shape.
type NullString struct {
	String string `json:"String"`
	Valid  bool   `json:"Valid"`
}

// AttendanceTime carries the check-in time as the service represents it.
type AttendanceTime struct {
	String string    `json:"String"`
	Valid  bool      `json:"Valid"`
	Time   *FlexTime `json:"time,omitempty"`
}

// BeaconInfo ties a session to the physical beacon installed in its room.
type BeaconInfo struct {
	ID        string   `json:"id"`
	UUID      string   `json:"uuid"`
	Classroom string   `json:"classroom"`
	CreatedAt FlexTime `json:"created_at"`
}

// Session is one scheduled class for the day. The schedule facts are
// immutable; AttendanceStatus and AttendanceTime are mutated by the Store
// (and only by the Store) as the engine drives transitions.
type Session struct {
	ID               int              `json:"id"`
	StudentID        int              `json:"student_id"`
	Semester         int              `json:"semester"`
	SubjectName      string           `json:"subject_name"`
	DayOfWeek        string           `json:"day_of_week"`
	StartTime        string           `json:"start_time"` // "HH:MM:SS"
	EndTime          string           `json:"end_time"`   // "HH:MM:SS"
	Classroom        string           `json:"classroom"`
	ClassStatus      NullString       `json:"status"`
	AttendanceTime   AttendanceTime   `json:"attendance_time"`
	AttendanceStatus AttendanceStatus `json:"attendance_status"`
	BeaconInfo       BeaconInfo       `json:"beacon_info"`
}

// DailySchedule is one day's worth of sessions for one student. It is
// replaced wholesale on every successful fetch.
type DailySchedule struct {
	Date      FlexTime  `json:"date"`
	StudentID int       `json:"student_id"`
	DayOfWeek string    `json:"day_of_week"`
	Classes   []Session `json:"classes"`
	UpdatedAt FlexTime  `json:"updated_at"`
}

const clockLayout = "15:04:05"

// parseClock parses an "HH:MM:SS" time-of-day onto the calendar date of day.
func parseClock(s string, day time.Time) (time.Time, error) {
	c, err := time.Parse(clockLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(),
		c.Hour(), c.Minute(), c.Second(), 0, day.Location()), nil
}

// Window resolves the session's start and end to absolute times on the
// calendar date of day. An unparsable time string is a configuration error:
// callers must exclude the session from active-window matching, not crash.
func (s Session) Window(day time.Time) (start, end time.Time, err error) {
	start, err = parseClock(s.StartTime, day)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err = parseClock(s.EndTime, day)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

// ActiveAt reports whether now falls inside the session's window, opened
// early by lead. The end bound is inclusive.
func (s Session) ActiveAt(now time.Time, lead time.Duration) (bool, error) {
	start, end, err := s.Window(now)
	if err != nil {
		return false, err
	}
	open := start.Add(-lead)
	return !now.Before(open) && !now.After(end), nil
}

// BeaconUUID validates and normalizes the session's beacon identifier.
// A malformed identifier excludes the session from beacon matching.
func (s Session) BeaconUUID() (string, error) {
	u, err := uuid.Parse(strings.TrimSpace(s.BeaconInfo.UUID))
	if err != nil {
		return "", fmt.Errorf("beacon uuid %q: %w", s.BeaconInfo.UUID, err)
	}
	return strings.ToLower(u.String()), nil
}

// CheckedIn reports whether the session has an established check-in.
func (s Session) CheckedIn() bool {
	return s.AttendanceTime.Valid
}
