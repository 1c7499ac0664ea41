package engine

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/soohan/attendance-agent/internal/beacon"
	"github.com/soohan/attendance-agent/internal/schedule"
)

// Ranger is the slice of the scanner the monitor needs.
type Ranger interface {
	StartMonitoring(uuid string) error
	StopMonitoring(uuid string) error
}

// Monitor keeps the ranged beacon set in line with the schedule. It only
// reads session data, never status. Reconcile issues stop-then-start
// commands for the delta only, so unaffected beacons are never restarted.
type Monitor struct {
	store  *schedule.Store
	ranger Ranger
	policy Policy
	log    *zap.Logger

	active map[string]bool
}

// NewMonitor creates a Monitor with nothing ranged yet.
func NewMonitor(store *schedule.Store, ranger Ranger, policy Policy, log *zap.Logger) *Monitor {
	return &Monitor{
		store:  store,
		ranger: ranger,
		policy: policy,
		log:    log,
		active: make(map[string]bool),
	}
}

// Desired computes the beacon set that should be ranged right now under the
// configured policy. Sessions with malformed identifiers are skipped and
// logged, never fatal.
func (m *Monitor) Desired(now time.Time) map[string]bool {
	out := make(map[string]bool)
	switch m.policy {
	case MonitorActiveOnly:
		cur, ok := m.store.CurrentSession(now)
		if !ok {
			return out
		}
		uuid, err := cur.BeaconUUID()
		if err != nil {
			m.log.Warn("session excluded from monitoring",
				zap.Int("session_id", cur.ID), zap.Error(err))
			return out
		}
		out[uuid] = true
	default: // MonitorAllToday
		for _, s := range m.store.Sessions() {
			uuid, err := s.BeaconUUID()
			if err != nil {
				m.log.Warn("session excluded from monitoring",
					zap.Int("session_id", s.ID), zap.Error(err))
				continue
			}
			out[uuid] = true
		}
	}
	return out
}

// Reconcile diffs the desired set against what is currently ranged and
// issues commands for the difference. Idempotent: a matching set is a no-op.
func (m *Monitor) Reconcile(now time.Time) {
	desired := m.Desired(now)

	for uuid := range m.active {
		if desired[uuid] {
			continue
		}
		if err := m.ranger.StopMonitoring(uuid); err != nil {
			m.log.Warn("stop monitoring failed", zap.String("uuid", uuid), zap.Error(err))
			continue
		}
		delete(m.active, uuid)
		m.log.Info("stopped monitoring beacon", zap.String("uuid", uuid))
	}

	for uuid := range desired {
		if m.active[uuid] {
			continue
		}
		if err := m.ranger.StartMonitoring(uuid); err != nil {
			m.log.Warn("start monitoring failed", zap.String("uuid", uuid), zap.Error(err))
			continue
		}
		m.active[uuid] = true
		m.log.Info("started monitoring beacon", zap.String("uuid", uuid))
	}
}

// HandleRegion maps gateway region notifications onto ranging commands:
// entering a region with a desired beacon ensures ranging, exiting stops it
// until the next enter or reconcile.
func (m *Monitor) HandleRegion(ev beacon.RegionEvent, now time.Time) {
	uuid := beacon.NormalizeUUID(ev.UUID)
	switch ev.Event {
	case beacon.RegionEnter:
		if !m.Desired(now)[uuid] || m.active[uuid] {
			return
		}
		if err := m.ranger.StartMonitoring(uuid); err != nil {
			m.log.Warn("start monitoring on region enter failed",
				zap.String("uuid", uuid), zap.Error(err))
			return
		}
		m.active[uuid] = true
		m.log.Info("region entered, ranging started", zap.String("uuid", uuid))
	case beacon.RegionExit:
		if !m.active[uuid] {
			return
		}
		if err := m.ranger.StopMonitoring(uuid); err != nil {
			m.log.Warn("stop monitoring on region exit failed",
				zap.String("uuid", uuid), zap.Error(err))
			return
		}
		delete(m.active, uuid)
		m.log.Info("region exited, ranging stopped", zap.String("uuid", uuid))
	}
}

// Monitored returns the currently ranged identifiers, sorted.
func (m *Monitor) Monitored() []string {
	out := make([]string, 0, len(m.active))
	for uuid := range m.active {
		out = append(out, uuid)
	}
	sort.Strings(out)
	return out
}

// StopAll stops every ranged beacon, for shutdown.
func (m *Monitor) StopAll() {
	for uuid := range m.active {
		if err := m.ranger.StopMonitoring(uuid); err != nil {
			m.log.Warn("stop monitoring failed", zap.String("uuid", uuid), zap.Error(err))
		}
		delete(m.active, uuid)
	}
}
