package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ConfirmMessage is the exact acknowledgement the service returns on a
// successful update. Any other response shape is treated as failure.
const ConfirmMessage = "attendance updated"

// SyncError wraps any failure to get a confirmed acknowledgement: network
// error, non-2xx status, undecodable body, or a missing confirmation
// message. Never fatal; the caller clears the pending flag and the next
// qualifying event retries.
type SyncError struct {
	Err error
}

func (e *SyncError) Error() string { return "attendance sync: " + e.Err.Error() }
func (e *SyncError) Unwrap() error { return e.Err }

// updatePayload is the wire body for PUT /attendance.
type updatePayload struct {
	StudentID      int    `json:"student_id"`
	TimetableID    int    `json:"timetable_id"`
	Status         string `json:"status"`
	Classroom      string `json:"classroom"`
	AttendanceDate string `json:"attendance_date"` // "YYYY-MM-DD"
}

// ackPayload is the expected acknowledgement body.
type ackPayload struct {
	Message string `json:"message"`
}

// HTTPClient submits status changes over HTTP.
type HTTPClient struct {
	base   string
	client *http.Client
	log    *zap.Logger
}

// NewHTTPClient creates a client against the given base URL. The default
// HTTP client carries a 10s timeout; expiry behaves exactly like any other
// failure.
func NewHTTPClient(base string, client *http.Client, log *zap.Logger) *HTTPClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPClient{base: base, client: client, log: log}
}

// Submit PUTs the status change and verifies the confirmation message.
func (c *HTTPClient) Submit(ctx context.Context, req Request) error {
	body, err := json.Marshal(updatePayload{
		StudentID:      req.StudentID,
		TimetableID:    req.SessionID,
		Status:         string(req.Status),
		Classroom:      req.Classroom,
		AttendanceDate: req.Date,
	})
	if err != nil {
		return &SyncError{Err: fmt.Errorf("encode payload: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut,
		c.base+"/attendance", bytes.NewReader(body))
	if err != nil {
		return &SyncError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return &SyncError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &SyncError{Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &SyncError{Err: fmt.Errorf("read response: %w", err)}
	}
	var ack ackPayload
	if err := json.Unmarshal(respBody, &ack); err != nil {
		return &SyncError{Err: fmt.Errorf("decode response: %w", err)}
	}
	if ack.Message != ConfirmMessage {
		return &SyncError{Err: fmt.Errorf("unexpected response message %q", ack.Message)}
	}

	c.log.Info("attendance update confirmed",
		zap.Int("session_id", req.SessionID),
		zap.String("status", string(req.Status)))
	return nil
}
