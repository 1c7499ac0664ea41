package beacon

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseScan(t *testing.T) {
	received := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	data := []byte(`{"beacons":[
		{"beacon_id":"b-1","uuid":"ADD8CE0A-EF05-4B57-AD8C-7651198EAB2C","proximity":"immediate","rssi":-48,"accuracy":0.3,"observed_at":"2026-09-01T08:59:59Z"},
		{"beacon_id":"b-2","uuid":"` + u2 + `","proximity":"far","rssi":-88,"accuracy":9.5}
	]}`)

	got, err := ParseScan(data, received)
	if err != nil {
		t.Fatalf("ParseScan: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("sightings: got %d, want 2", len(got))
	}
	if got[0].UUID != u1 {
		t.Errorf("uuid not normalized: %q", got[0].UUID)
	}
	if got[0].Level != LevelImmediate || got[1].Level != LevelFar {
		t.Errorf("levels: got %s/%s", got[0].Level, got[1].Level)
	}
	want := time.Date(2026, 9, 1, 8, 59, 59, 0, time.UTC)
	if !got[0].ObservedAt.Equal(want) {
		t.Errorf("observed_at: got %v, want %v", got[0].ObservedAt, want)
	}
	if !got[1].ObservedAt.Equal(received) {
		t.Errorf("missing observed_at must fall back to receive time, got %v", got[1].ObservedAt)
	}
}

func TestParseScanBadJSON(t *testing.T) {
	if _, err := ParseScan([]byte("{nope"), time.Now()); err == nil {
		t.Error("expected error for undecodable report")
	}
}

func TestParseRegion(t *testing.T) {
	received := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	ev, err := ParseRegion([]byte(`{"uuid":"`+u1+`","event":"enter"}`), received)
	if err != nil {
		t.Fatalf("ParseRegion: %v", err)
	}
	if ev.Event != RegionEnter || ev.UUID != u1 {
		t.Errorf("unexpected event: %+v", ev)
	}
	if !ev.ObservedAt.Equal(received) {
		t.Errorf("observed_at fallback: got %v", ev.ObservedAt)
	}

	if _, err := ParseRegion([]byte(`{"uuid":"`+u1+`","event":"hover"}`), received); err == nil {
		t.Error("expected error for unknown region event")
	}
}

func TestFormatCommand(t *testing.T) {
	data, err := FormatCommand("start", "ADD8CE0A-EF05-4B57-AD8C-7651198EAB2C")
	if err != nil {
		t.Fatalf("FormatCommand: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode command: %v", err)
	}
	if got["action"] != "start" {
		t.Errorf("action: got %q", got["action"])
	}
	if got["uuid"] != u1 {
		t.Errorf("uuid: got %q, want normalized %q", got["uuid"], u1)
	}
}

func TestFormatSystemPayload(t *testing.T) {
	ts := time.Date(2026, 9, 1, 7, 0, 0, 0, time.UTC)
	data, err := FormatSystemPayload(SystemEvent{Timestamp: ts, Event: "SHUTDOWN", Reason: "SIGTERM"})
	if err != nil {
		t.Fatalf("FormatSystemPayload: %v", err)
	}
	var got systemPayload
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.System.Event != "SHUTDOWN" || got.System.Reason != "SIGTERM" {
		t.Errorf("unexpected payload: %+v", got)
	}
	if got.System.Timestamp != "2026-09-01T07:00:00Z" {
		t.Errorf("timestamp: got %q", got.System.Timestamp)
	}
}

func TestFormatSystemPayloadRawPassthrough(t *testing.T) {
	raw := []byte(`{"status":{"event":"STARTUP"}}`)
	data, err := FormatSystemPayload(SystemEvent{Event: "STARTUP", RawPayload: raw})
	if err != nil {
		t.Fatalf("FormatSystemPayload: %v", err)
	}
	if string(data) != string(raw) {
		t.Errorf("raw payload must pass through unchanged, got %s", data)
	}
}
