// Package beacon provides the proximity-sensor contract: discrete proximity
// levels, classification of raw sightings, and a Scanner abstraction with a
// real MQTT-gateway implementation and a fake for tests.
package beacon

import (
	"strings"
	"time"
)

// Level is the discrete proximity classification of a sighting.
// Ordering matters: a higher value is a closer, more confident reading.
type Level int

const (
	LevelUnknown Level = iota
	LevelFar
	LevelNear
	LevelImmediate
)

// String returns the wire name of the level.
func (l Level) String() string {
	switch l {
	case LevelImmediate:
		return "immediate"
	case LevelNear:
		return "near"
	case LevelFar:
		return "far"
	default:
		return "unknown"
	}
}

// ParseLevel maps a wire name to a Level. Anything unrecognized is Unknown.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "immediate":
		return LevelImmediate
	case "near":
		return LevelNear
	case "far":
		return LevelFar
	default:
		return LevelUnknown
	}
}

// IsPresence reports whether the level qualifies as a presence trigger.
// Only Immediate and Near do; Far and Unknown never trigger presence.
func (l Level) IsPresence() bool {
	return l >= LevelNear
}

// Sighting is one raw reading from the scanner gateway. Several may arrive
// for the same beacon within one scan window.
type Sighting struct {
	BeaconID   string
	UUID       string
	Level      Level
	RSSI       int
	Accuracy   float64
	ObservedAt time.Time
}

// Sample is the classified, per-identifier reading for one cycle.
// Ephemeral: folded into engine state, never persisted.
type Sample struct {
	UUID       string
	Level      Level
	RSSI       int
	ObservedAt time.Time
}

// RegionTransition is a region boundary crossing reported by the gateway.
type RegionTransition string

const (
	RegionEnter RegionTransition = "enter"
	RegionExit  RegionTransition = "exit"
)

// RegionEvent is a region enter/exit notification for a beacon identifier.
type RegionEvent struct {
	UUID       string
	Event      RegionTransition
	ObservedAt time.Time
}

// Scanner starts and stops ranging for named beacon identifiers and yields
// the resulting sightings. Start and Stop are idempotent; stopping an
// identifier is safe while a batch for it is still in flight.
type Scanner interface {
	// StartMonitoring begins ranging the given beacon UUID.
	StartMonitoring(uuid string) error

	// StopMonitoring stops ranging the given beacon UUID.
	StopMonitoring(uuid string) error

	// Sightings yields one batch per gateway scan report.
	Sightings() <-chan []Sighting

	// Regions yields region enter/exit notifications.
	Regions() <-chan RegionEvent

	// Close releases the scanner connection.
	Close() error
}

// NormalizeUUID lowercases and trims a beacon UUID for map keying.
func NormalizeUUID(u string) string {
	return strings.ToLower(strings.TrimSpace(u))
}
