package beacon

import (
	"encoding/json"
	"fmt"
	"time"
)

// Gateway MQTT topics.
const (
	// TopicSightings carries scan reports from the gateway.
	TopicSightings = "attendance/beacons/sightings"

	// TopicRegions carries region enter/exit notifications.
	TopicRegions = "attendance/beacons/regions"

	// TopicCommand carries ranging start/stop commands to the gateway.
	TopicCommand = "attendance/beacons/command"
)

// sightingPayload is one beacon within a gateway scan report.
type sightingPayload struct {
	BeaconID   string  `json:"beacon_id"`
	UUID       string  `json:"uuid"`
	Proximity  string  `json:"proximity"`
	RSSI       int     `json:"rssi"`
	Accuracy   float64 `json:"accuracy"`
	ObservedAt string  `json:"observed_at"`
}

// scanPayload is one gateway scan report: every beacon seen in one window.
type scanPayload struct {
	Beacons []sightingPayload `json:"beacons"`
}

// regionPayload is a region enter/exit notification.
type regionPayload struct {
	UUID       string `json:"uuid"`
	Event      string `json:"event"`
	ObservedAt string `json:"observed_at"`
}

// commandPayload tells the gateway to start or stop ranging an identifier.
type commandPayload struct {
	Action string `json:"action"` // "start" or "stop"
	UUID   string `json:"uuid"`
}

// ParseScan decodes a gateway scan report into sightings. A missing or
// unparsable observed_at falls back to the given receive time.
func ParseScan(data []byte, received time.Time) ([]Sighting, error) {
	var p scanPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode scan report: %w", err)
	}
	out := make([]Sighting, 0, len(p.Beacons))
	for _, b := range p.Beacons {
		out = append(out, Sighting{
			BeaconID:   b.BeaconID,
			UUID:       NormalizeUUID(b.UUID),
			Level:      ParseLevel(b.Proximity),
			RSSI:       b.RSSI,
			Accuracy:   b.Accuracy,
			ObservedAt: parseObserved(b.ObservedAt, received),
		})
	}
	return out, nil
}

// ParseRegion decodes a region enter/exit notification.
func ParseRegion(data []byte, received time.Time) (RegionEvent, error) {
	var p regionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return RegionEvent{}, fmt.Errorf("decode region event: %w", err)
	}
	ev := RegionTransition(p.Event)
	if ev != RegionEnter && ev != RegionExit {
		return RegionEvent{}, fmt.Errorf("decode region event: unknown event %q", p.Event)
	}
	return RegionEvent{
		UUID:       NormalizeUUID(p.UUID),
		Event:      ev,
		ObservedAt: parseObserved(p.ObservedAt, received),
	}, nil
}

// FormatCommand encodes a ranging command for the gateway.
func FormatCommand(action, uuid string) ([]byte, error) {
	return json.Marshal(commandPayload{Action: action, UUID: NormalizeUUID(uuid)})
}

func parseObserved(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fallback
	}
	return t
}
