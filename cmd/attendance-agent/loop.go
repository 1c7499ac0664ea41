package main

import (
	"context"
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/soohan/attendance-agent/internal/beacon"
	"github.com/soohan/attendance-agent/internal/engine"
	"github.com/soohan/attendance-agent/internal/led"
	"github.com/soohan/attendance-agent/internal/schedule"
	"github.com/soohan/attendance-agent/internal/status"
	"github.com/soohan/attendance-agent/internal/syncer"
)

// connectionStatus reports whether the broker connection is active.
type connectionStatus interface {
	IsConnected() bool
}

// refresher re-fetches today's schedule, bypassing the same-day cache.
type refresher interface {
	Refresh(ctx context.Context, now time.Time) (*schedule.DailySchedule, error)
}

// loopDeps are the run loop's collaborators, injectable for tests.
type loopDeps struct {
	store    *schedule.Store
	provider refresher
	scanner  beacon.Scanner
	sys      beacon.SystemPublisher
	conn     connectionStatus
	client   syncer.Client
	engine   *engine.Engine
	monitor  *engine.Monitor
	tracker  *status.Tracker
	led      led.Driver
	log      *zap.Logger
	now      func() time.Time
}

// runLoop is the single owner of the engine. Scan batches, region events,
// ticks, and sync results are serialized here; all network I/O happens in
// spawned goroutines that post back through channels, so engine state is
// never held across an I/O wait.
func runLoop(d loopDeps, watchdogTick, reconcileTick, refreshTick <-chan time.Time, sig <-chan os.Signal) error {
	results := make(chan syncer.Result, 8)
	schedCh := make(chan *schedule.DailySchedule, 1)

	submit := func(reqs []syncer.Request) {
		for _, req := range reqs {
			req := req
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				results <- syncer.Result{Req: req, Err: d.client.Submit(ctx, req)}
			}()
		}
	}

	refresh := func() {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			sched, err := d.provider.Refresh(ctx, d.now())
			if err != nil {
				d.log.Warn("schedule refresh failed", zap.Error(err))
				return
			}
			select {
			case schedCh <- sched:
			default:
			}
		}()
	}

	for {
		select {
		case s := <-sig:
			d.log.Info("received signal, shutting down", zap.String("signal", signalName(s)))
			return shutdown(d, signalName(s))

		case batch := <-d.scanner.Sightings():
			now := d.now()
			for _, sample := range beacon.Classify(batch) {
				reqs, reconcile := d.engine.HandleSample(sample, now)
				submit(reqs)
				if reconcile {
					d.monitor.Reconcile(now)
				}
			}
			updateStatus(d)

		case ev := <-d.scanner.Regions():
			d.monitor.HandleRegion(ev, d.now())
			updateStatus(d)

		case res := <-results:
			now := d.now()
			prev, hadPrev := d.store.SessionByID(res.Req.SessionID)
			if d.engine.HandleResult(res, now) {
				if hadPrev && prev.AttendanceStatus != res.Req.Status {
					d.tracker.RecordTransition(status.Transition{
						Time:      now,
						SessionID: res.Req.SessionID,
						Subject:   prev.SubjectName,
						From:      prev.AttendanceStatus,
						To:        res.Req.Status,
					})
				}
				d.monitor.Reconcile(now)
				refresh()
			}
			updateStatus(d)

		case <-watchdogTick:
			submit(d.engine.Tick(d.now()))
			updateStatus(d)

		case <-reconcileTick:
			d.monitor.Reconcile(d.now())
			updateStatus(d)
			publishHeartbeat(d)

		case <-refreshTick:
			refresh()

		case sched := <-schedCh:
			d.store.Replace(sched)
			d.monitor.Reconcile(d.now())
			updateStatus(d)
		}
	}
}

// updateStatus pushes the current engine view into the tracker and drives
// the presence LED.
func updateStatus(d loopDeps) {
	now := d.now()
	lead := d.store.LeadBuffer()

	sessions := d.store.Sessions()
	view := make([]status.SessionStatus, 0, len(sessions))
	var checkedInNow bool
	for _, s := range sessions {
		active, err := s.ActiveAt(now, lead)
		if err != nil {
			active = false
		}
		ss := status.SessionStatus{
			ID:        s.ID,
			Subject:   s.SubjectName,
			Classroom: s.Classroom,
			StartTime: s.StartTime,
			EndTime:   s.EndTime,
			Status:    s.AttendanceStatus,
			Pending:   d.engine.Pending(s.ID),
			Active:    active,
		}
		if uuid, err := s.BeaconUUID(); err == nil {
			ss.BeaconUUID = uuid
			if t, ok := d.engine.LastSample(uuid); ok {
				ss.LastSample = &t
			}
		}
		if s.AttendanceTime.Valid && s.AttendanceTime.Time != nil {
			t := s.AttendanceTime.Time.Time
			ss.CheckInTime = &t
		}
		if active && (s.AttendanceStatus == schedule.StatusCompleted || s.AttendanceStatus == schedule.StatusOngoing) {
			checkedInNow = true
		}
		view = append(view, ss)
	}

	var day string
	if len(sessions) > 0 {
		day = sessions[0].DayOfWeek
	}
	d.tracker.Update(view, d.monitor.Monitored(), d.engine.Counts(), day)
	if d.conn != nil {
		d.tracker.SetMQTTConnected(d.conn.IsConnected())
	}

	if d.led != nil {
		if err := d.led.Set(checkedInNow); err != nil {
			d.log.Warn("presence led update failed", zap.Error(err))
		}
	}
}

// publishHeartbeat sends a HEARTBEAT system event with a full status
// snapshot. The publish runs off the loop goroutine so a slow broker never
// stalls event handling.
func publishHeartbeat(d loopDeps) {
	if d.sys == nil || d.tracker == nil {
		return
	}
	event := beacon.SystemEvent{
		Timestamp:  d.now(),
		Event:      "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(d.tracker.Snapshot(), "HEARTBEAT", ""),
	}
	go func() {
		if err := d.sys.PublishSystem(event); err != nil {
			d.log.Warn("failed to publish heartbeat", zap.Error(err))
		}
	}()
}

// shutdown publishes the SHUTDOWN event and stops all ranging.
func shutdown(d loopDeps, reason string) error {
	d.monitor.StopAll()

	event := beacon.SystemEvent{
		Timestamp: d.now(),
		Event:     "SHUTDOWN",
		Reason:    reason,
		Retained:  true,
	}
	if d.tracker != nil {
		snap := d.tracker.Snapshot()
		event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", reason)
	}
	if d.sys != nil {
		if err := d.sys.PublishSystem(event); err != nil {
			d.log.Warn("failed to publish shutdown event", zap.Error(err))
		}
	}
	return nil
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}
