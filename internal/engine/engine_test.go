package engine

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/soohan/attendance-agent/internal/beacon"
	"github.com/soohan/attendance-agent/internal/schedule"
	"github.com/soohan/attendance-agent/internal/syncer"
)

const (
	roomBeacon  = "add8ce0a-ef05-4b57-ad8c-7651198eab2c"
	otherBeacon = "00000000-0000-0000-0000-000000000002"
)

func day() time.Time {
	return time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)
}

func at(h, m int) time.Time {
	return day().Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func session(id int, start, end string, status schedule.AttendanceStatus) schedule.Session {
	return schedule.Session{
		ID:               id,
		StudentID:        1,
		SubjectName:      "Algorithms",
		StartTime:        start,
		EndTime:          end,
		Classroom:        "302",
		AttendanceStatus: status,
		BeaconInfo:       schedule.BeaconInfo{UUID: roomBeacon, Classroom: "302"},
	}
}

func newEngine(t *testing.T, cfg Config, sessions ...schedule.Session) (*Engine, *schedule.Store) {
	t.Helper()
	store := schedule.NewStore(0, zap.NewNop())
	store.Replace(&schedule.DailySchedule{StudentID: 1, Classes: sessions})
	return New(store, cfg, zap.NewNop()), store
}

func sample(uuid string, level beacon.Level, observed time.Time) beacon.Sample {
	return beacon.Sample{UUID: uuid, Level: level, RSSI: -60, ObservedAt: observed}
}

func TestHandleSampleChecksIn(t *testing.T) {
	e, _ := newEngine(t, Config{}, session(42, "09:00:00", "10:00:00", schedule.StatusWaiting))
	now := at(9, 10)

	reqs, reconcile := e.HandleSample(sample(roomBeacon, beacon.LevelImmediate, now), now)
	if reconcile {
		t.Error("matching sample should not request reconcile")
	}
	if len(reqs) != 1 {
		t.Fatalf("requests: got %d, want 1", len(reqs))
	}
	req := reqs[0]
	if req.SessionID != 42 || req.Status != schedule.StatusCompleted {
		t.Errorf("request: got session %d status %q", req.SessionID, req.Status)
	}
	if req.CheckInTime == nil || !req.CheckInTime.Equal(now) {
		t.Errorf("check-in time: got %v, want %v", req.CheckInTime, now)
	}
	if req.Date != "2026-09-01" {
		t.Errorf("date: got %q", req.Date)
	}
	if !e.Pending(42) {
		t.Error("session should be pending after emitting a request")
	}
}

func TestHandleSampleNearQualifies(t *testing.T) {
	e, _ := newEngine(t, Config{}, session(42, "09:00:00", "10:00:00", schedule.StatusWaiting))
	now := at(9, 10)

	reqs, _ := e.HandleSample(sample(roomBeacon, beacon.LevelNear, now), now)
	if len(reqs) != 1 {
		t.Fatalf("near sample should check in, got %d requests", len(reqs))
	}
}

func TestHandleSampleNonPresenceNeverTriggers(t *testing.T) {
	for _, level := range []beacon.Level{beacon.LevelFar, beacon.LevelUnknown} {
		e, _ := newEngine(t, Config{}, session(42, "09:00:00", "10:00:00", schedule.StatusWaiting))
		now := at(9, 10)

		reqs, reconcile := e.HandleSample(sample(roomBeacon, level, now), now)
		if len(reqs) != 0 || reconcile {
			t.Errorf("%v: got %d requests, reconcile=%v", level, len(reqs), reconcile)
		}
		if _, ok := e.LastSample(roomBeacon); ok {
			t.Errorf("%v: non-presence sample reset the silence timer", level)
		}
	}
}

func TestHandleSampleOutsideWindowIgnored(t *testing.T) {
	e, _ := newEngine(t, Config{}, session(42, "09:00:00", "10:00:00", schedule.StatusWaiting))
	now := at(11, 0)

	reqs, reconcile := e.HandleSample(sample(roomBeacon, beacon.LevelImmediate, now), now)
	if len(reqs) != 0 {
		t.Errorf("requests: got %d, want 0", len(reqs))
	}
	if !reconcile {
		t.Error("sample with no active session should request reconcile")
	}
	if e.Counts().IgnoredSamples != 1 {
		t.Errorf("ignored: got %d, want 1", e.Counts().IgnoredSamples)
	}
}

func TestHandleSampleMismatchedBeaconIgnored(t *testing.T) {
	e, _ := newEngine(t, Config{}, session(42, "09:00:00", "10:00:00", schedule.StatusWaiting))
	now := at(9, 10)

	reqs, reconcile := e.HandleSample(sample(otherBeacon, beacon.LevelImmediate, now), now)
	if len(reqs) != 0 || !reconcile {
		t.Errorf("got %d requests, reconcile=%v; want 0, true", len(reqs), reconcile)
	}
}

func TestHandleSampleDroppedWhilePending(t *testing.T) {
	e, _ := newEngine(t, Config{}, session(42, "09:00:00", "10:00:00", schedule.StatusWaiting))
	now := at(9, 10)

	if reqs, _ := e.HandleSample(sample(roomBeacon, beacon.LevelImmediate, now), now); len(reqs) != 1 {
		t.Fatalf("first sample: got %d requests", len(reqs))
	}
	reqs, reconcile := e.HandleSample(sample(roomBeacon, beacon.LevelImmediate, now.Add(time.Second)), now.Add(time.Second))
	if len(reqs) != 0 || reconcile {
		t.Errorf("second sample: got %d requests, reconcile=%v", len(reqs), reconcile)
	}
	if e.Counts().DroppedWhilePending != 1 {
		t.Errorf("dropped: got %d, want 1", e.Counts().DroppedWhilePending)
	}
}

func TestHandleSampleCompletedIsTerminal(t *testing.T) {
	e, _ := newEngine(t, Config{}, session(42, "09:00:00", "10:00:00", schedule.StatusCompleted))
	now := at(9, 10)

	reqs, _ := e.HandleSample(sample(roomBeacon, beacon.LevelImmediate, now), now)
	if len(reqs) != 0 {
		t.Fatalf("completed session emitted %d requests", len(reqs))
	}
	// The sample still feeds the watchdog.
	if last, ok := e.LastSample(roomBeacon); !ok || !last.Equal(now) {
		t.Errorf("last sample: got %v (%v), want %v", last, ok, now)
	}
}

func TestHandleResultSuccessAppliesLocally(t *testing.T) {
	e, store := newEngine(t, Config{}, session(42, "09:00:00", "10:00:00", schedule.StatusWaiting))
	now := at(9, 10)

	reqs, _ := e.HandleSample(sample(roomBeacon, beacon.LevelImmediate, now), now)
	if len(reqs) != 1 {
		t.Fatalf("requests: got %d", len(reqs))
	}
	if refresh := e.HandleResult(syncer.Result{Req: reqs[0]}, now); !refresh {
		t.Error("confirmed result should trigger a schedule refresh")
	}
	if e.Pending(42) {
		t.Error("pending flag should be cleared")
	}
	got, _ := store.SessionByID(42)
	if got.AttendanceStatus != schedule.StatusCompleted {
		t.Errorf("status: got %q, want completed", got.AttendanceStatus)
	}
	if !got.CheckedIn() {
		t.Error("check-in time should be recorded")
	}
	if c := e.Counts(); c.CheckIns != 1 {
		t.Errorf("check-ins: got %d, want 1", c.CheckIns)
	}
}

func TestHandleResultFailureKeepsLocalState(t *testing.T) {
	e, store := newEngine(t, Config{}, session(42, "09:00:00", "10:00:00", schedule.StatusWaiting))
	now := at(9, 10)

	reqs, _ := e.HandleSample(sample(roomBeacon, beacon.LevelImmediate, now), now)
	if refresh := e.HandleResult(syncer.Result{Req: reqs[0], Err: errors.New("boom")}, now); refresh {
		t.Error("failed result should not trigger a refresh")
	}
	got, _ := store.SessionByID(42)
	if got.AttendanceStatus != schedule.StatusWaiting {
		t.Errorf("status: got %q, want waiting (unconfirmed)", got.AttendanceStatus)
	}
	if e.Counts().SyncFailures != 1 {
		t.Errorf("sync failures: got %d, want 1", e.Counts().SyncFailures)
	}

	// The next qualifying sample retries.
	later := now.Add(5 * time.Second)
	reqs, _ = e.HandleSample(sample(roomBeacon, beacon.LevelImmediate, later), later)
	if len(reqs) != 1 {
		t.Fatalf("retry: got %d requests, want 1", len(reqs))
	}
}

func TestTickMarksAbsentAfterSilence(t *testing.T) {
	e, _ := newEngine(t, Config{}, session(42, "09:00:00", "10:00:00", schedule.StatusCompleted))
	seen := at(9, 5)
	e.HandleSample(sample(roomBeacon, beacon.LevelImmediate, seen), seen)

	if reqs := e.Tick(seen.Add(5 * time.Second)); len(reqs) != 0 {
		t.Fatalf("before threshold: got %d requests", len(reqs))
	}
	reqs := e.Tick(seen.Add(DefaultAbsenceThreshold))
	if len(reqs) != 1 {
		t.Fatalf("at threshold: got %d requests, want 1", len(reqs))
	}
	if reqs[0].Status != schedule.StatusAbsent || reqs[0].CheckInTime != nil {
		t.Errorf("request: got status %q, check-in %v", reqs[0].Status, reqs[0].CheckInTime)
	}
	// Pending: the watchdog never double-fires.
	if again := e.Tick(seen.Add(DefaultAbsenceThreshold + time.Second)); len(again) != 0 {
		t.Errorf("while pending: got %d requests", len(again))
	}
}

func TestTickNeverEscalatesWaiting(t *testing.T) {
	e, _ := newEngine(t, Config{}, session(42, "09:00:00", "10:00:00", schedule.StatusWaiting))
	if reqs := e.Tick(at(9, 30)); len(reqs) != 0 {
		t.Errorf("never-checked-in session escalated: %d requests", len(reqs))
	}
}

func TestTickNoActiveSession(t *testing.T) {
	e, _ := newEngine(t, Config{}, session(42, "09:00:00", "10:00:00", schedule.StatusCompleted))
	if reqs := e.Tick(at(12, 0)); len(reqs) != 0 {
		t.Errorf("outside any window: %d requests", len(reqs))
	}
}

func TestTickFinalizesElapsedWithoutSync(t *testing.T) {
	s := session(42, "09:00:00", "10:00:00", schedule.StatusOngoing)
	s.AttendanceTime = schedule.AttendanceTime{String: "09:05:00", Valid: true}
	e, store := newEngine(t, Config{}, s)

	if reqs := e.Tick(at(10, 30)); len(reqs) != 0 {
		t.Fatalf("finalize emitted %d sync requests", len(reqs))
	}
	got, _ := store.SessionByID(42)
	if got.AttendanceStatus != schedule.StatusCompleted {
		t.Errorf("status: got %q, want completed", got.AttendanceStatus)
	}
}

func TestAnySampleResetsSilence(t *testing.T) {
	e, _ := newEngine(t, Config{AnySampleResetsSilence: true},
		session(42, "09:00:00", "10:00:00", schedule.StatusCompleted))
	seen := at(9, 5)
	e.HandleSample(sample(roomBeacon, beacon.LevelImmediate, seen), seen)

	// A Far sample just before the threshold keeps the session alive.
	far := seen.Add(DefaultAbsenceThreshold - time.Second)
	e.HandleSample(sample(roomBeacon, beacon.LevelFar, far), far)
	if reqs := e.Tick(seen.Add(DefaultAbsenceThreshold)); len(reqs) != 0 {
		t.Errorf("far sample did not reset silence: %d requests", len(reqs))
	}
}

// TestFullMorning walks one session through the complete lifecycle:
// early check-in inside the lead buffer, silence escalating to absent,
// then recovery when the beacon reappears.
func TestFullMorning(t *testing.T) {
	e, store := newEngine(t, Config{}, session(7, "09:00:00", "10:00:00", schedule.StatusWaiting))

	// 08:56, four minutes early, inside the lead buffer.
	arrive := at(8, 56)
	reqs, _ := e.HandleSample(sample(roomBeacon, beacon.LevelImmediate, arrive), arrive)
	if len(reqs) != 1 || reqs[0].Status != schedule.StatusCompleted {
		t.Fatalf("arrival: got %+v", reqs)
	}
	if reqs[0].CheckInTime == nil || !reqs[0].CheckInTime.Equal(arrive) {
		t.Fatalf("arrival check-in time: got %v", reqs[0].CheckInTime)
	}
	e.HandleResult(syncer.Result{Req: reqs[0]}, arrive)

	// Silence: no samples until 09:10, well past the threshold.
	reqs = e.Tick(at(9, 10))
	if len(reqs) != 1 || reqs[0].Status != schedule.StatusAbsent {
		t.Fatalf("watchdog: got %+v", reqs)
	}
	e.HandleResult(syncer.Result{Req: reqs[0]}, at(9, 10))
	if got, _ := store.SessionByID(7); got.AttendanceStatus != schedule.StatusAbsent {
		t.Fatalf("after watchdog: status %q", got.AttendanceStatus)
	}

	// 09:12 the beacon is back.
	back := at(9, 12)
	reqs, _ = e.HandleSample(sample(roomBeacon, beacon.LevelImmediate, back), back)
	if len(reqs) != 1 || reqs[0].Status != schedule.StatusCompleted || reqs[0].CheckInTime != nil {
		t.Fatalf("recovery: got %+v", reqs)
	}
	e.HandleResult(syncer.Result{Req: reqs[0]}, back)

	got, _ := store.SessionByID(7)
	if got.AttendanceStatus != schedule.StatusCompleted {
		t.Errorf("final status: got %q, want completed", got.AttendanceStatus)
	}
	if !got.CheckedIn() {
		t.Error("original check-in time should survive the recovery")
	}
	want := Counts{CheckIns: 1, Absences: 1, Recoveries: 1}
	if c := e.Counts(); c != want {
		t.Errorf("counts: got %+v, want %+v", c, want)
	}
}
