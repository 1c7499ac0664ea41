// Package syncer pushes attendance status changes to the remote service.
// It never touches the schedule store: the engine applies the local mutation
// only after the service has confirmed the change.
package syncer

import (
	"context"
	"time"

	"github.com/soohan/attendance-agent/internal/schedule"
)

// Request is one status change to submit. CheckInTime rides along for the
// engine to apply on acknowledgement; it is not part of the wire payload.
type Request struct {
	StudentID   int
	SessionID   int
	Status      schedule.AttendanceStatus
	Classroom   string
	Date        string // local calendar date, "YYYY-MM-DD"
	CheckInTime *time.Time
}

// Result pairs a request with its outcome, delivered back to the run loop.
type Result struct {
	Req Request
	Err error
}

// Client submits status changes. Submit blocks until the service confirms
// or the request fails; callers run it off the engine goroutine.
type Client interface {
	Submit(ctx context.Context, req Request) error
}
