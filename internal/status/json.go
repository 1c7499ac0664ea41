package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string           `json:"event,omitempty"`
	Reason        string           `json:"reason,omitempty"`
	ScheduleDay   string           `json:"schedule_day,omitempty"`
	CheckedIn     bool             `json:"checked_in_now"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	StartTime     string           `json:"start_time"`
	Timestamp     string           `json:"timestamp"`
	MQTT          MQTTStatus       `json:"mqtt"`
	Sessions      []SessionJSON    `json:"sessions"`
	Monitored     []string         `json:"monitored"`
	Counts        CountsJSON       `json:"event_counts"`
	Recent        []TransitionJSON `json:"recent_transitions,omitempty"`
	Config        ConfigJSON       `json:"config"`
}

// MQTTStatus reports broker connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// SessionJSON is the JSON representation of one session's state.
type SessionJSON struct {
	ID          int    `json:"id"`
	Subject     string `json:"subject"`
	Classroom   string `json:"classroom"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	BeaconUUID  string `json:"beacon_uuid"`
	Status      string `json:"status"`
	CheckInTime string `json:"check_in_time,omitempty"`
	LastSample  string `json:"last_sample,omitempty"`
	Pending     bool   `json:"pending"`
	Active      bool   `json:"active"`
}

// CountsJSON is the JSON representation of engine counters.
type CountsJSON struct {
	CheckIns            int `json:"check_ins"`
	Absences            int `json:"absences"`
	Recoveries          int `json:"recoveries"`
	SyncFailures        int `json:"sync_failures"`
	IgnoredSamples      int `json:"ignored_samples"`
	DroppedWhilePending int `json:"dropped_while_pending"`
}

// TransitionJSON is the JSON representation of one recent transition.
type TransitionJSON struct {
	Timestamp string `json:"timestamp"`
	SessionID int    `json:"session_id"`
	Subject   string `json:"subject"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// ConfigJSON is the JSON representation of agent config.
type ConfigJSON struct {
	Broker             string `json:"broker"`
	BaseURL            string `json:"base_url"`
	StudentID          int    `json:"student_id"`
	Policy             string `json:"policy"`
	AbsenceThresholdMs int64  `json:"absence_threshold_ms"`
	WatchdogMs         int64  `json:"watchdog_ms"`
	RefreshMs          int64  `json:"refresh_ms"`
	HTTPAddr           string `json:"http_addr"`
	CachePath          string `json:"cache_path"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		ScheduleDay:   snap.ScheduleDay,
		CheckedIn:     snap.CheckedInNow(),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Monitored:     snap.Monitored,
		Counts: CountsJSON{
			CheckIns:            snap.Counts.CheckIns,
			Absences:            snap.Counts.Absences,
			Recoveries:          snap.Counts.Recoveries,
			SyncFailures:        snap.Counts.SyncFailures,
			IgnoredSamples:      snap.Counts.IgnoredSamples,
			DroppedWhilePending: snap.Counts.DroppedWhilePending,
		},
		Config: ConfigJSON{
			Broker:             snap.Config.Broker,
			BaseURL:            snap.Config.BaseURL,
			StudentID:          snap.Config.StudentID,
			Policy:             snap.Config.Policy,
			AbsenceThresholdMs: snap.Config.AbsenceThresholdMs,
			WatchdogMs:         snap.Config.WatchdogMs,
			RefreshMs:          snap.Config.RefreshMs,
			HTTPAddr:           snap.Config.HTTPAddr,
			CachePath:          snap.Config.CachePath,
		},
	}

	for _, s := range snap.Sessions {
		sj := SessionJSON{
			ID:         s.ID,
			Subject:    s.Subject,
			Classroom:  s.Classroom,
			StartTime:  s.StartTime,
			EndTime:    s.EndTime,
			BeaconUUID: s.BeaconUUID,
			Status:     string(s.Status),
			Pending:    s.Pending,
			Active:     s.Active,
		}
		if s.CheckInTime != nil {
			sj.CheckInTime = s.CheckInTime.UTC().Format(time.RFC3339)
		}
		if s.LastSample != nil {
			sj.LastSample = s.LastSample.UTC().Format(time.RFC3339)
		}
		inner.Sessions = append(inner.Sessions, sj)
	}

	for _, tr := range snap.Recent {
		inner.Recent = append(inner.Recent, TransitionJSON{
			Timestamp: tr.Time.UTC().Format(time.RFC3339),
			SessionID: tr.SessionID,
			Subject:   tr.Subject,
			From:      string(tr.From),
			To:        string(tr.To),
		})
	}

	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
