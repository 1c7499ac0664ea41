package beacon

import "sync"

// FakeScanner is a test double that records monitoring commands and lets
// tests inject sightings and region events.
type FakeScanner struct {
	mu sync.Mutex

	// Started and Stopped record every monitoring command in order.
	Started []string
	Stopped []string

	// StartError / StopError, if set, are returned by the respective calls.
	StartError error
	StopError  error

	// SystemEvents records published lifecycle events.
	SystemEvents []SystemEvent

	// Connected controls IsConnected.
	Connected bool

	// Closed tracks if Close was called.
	Closed bool

	ranging   map[string]bool
	sightings chan []Sighting
	regions   chan RegionEvent
}

// NewFakeScanner creates a FakeScanner with buffered event channels.
func NewFakeScanner() *FakeScanner {
	return &FakeScanner{
		ranging:   make(map[string]bool),
		sightings: make(chan []Sighting, 32),
		regions:   make(chan RegionEvent, 32),
	}
}

// StartMonitoring records the command.
func (f *FakeScanner) StartMonitoring(uuid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StartError != nil {
		return f.StartError
	}
	key := NormalizeUUID(uuid)
	f.Started = append(f.Started, key)
	f.ranging[key] = true
	return nil
}

// StopMonitoring records the command.
func (f *FakeScanner) StopMonitoring(uuid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StopError != nil {
		return f.StopError
	}
	key := NormalizeUUID(uuid)
	f.Stopped = append(f.Stopped, key)
	delete(f.ranging, key)
	return nil
}

// Ranging reports whether the identifier is currently being ranged.
func (f *FakeScanner) Ranging(uuid string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ranging[NormalizeUUID(uuid)]
}

// Emit injects one scan batch as if the gateway reported it.
func (f *FakeScanner) Emit(batch ...Sighting) {
	f.sightings <- batch
}

// EmitRegion injects a region event.
func (f *FakeScanner) EmitRegion(ev RegionEvent) {
	f.regions <- ev
}

// PublishSystem records the lifecycle event.
func (f *FakeScanner) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SystemEvents = append(f.SystemEvents, event)
	return nil
}

// SystemLog returns a copy of the recorded lifecycle events.
func (f *FakeScanner) SystemLog() []SystemEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]SystemEvent, len(f.SystemEvents))
	copy(out, f.SystemEvents)
	return out
}

// Sightings yields injected scan batches.
func (f *FakeScanner) Sightings() <-chan []Sighting { return f.sightings }

// Regions yields injected region events.
func (f *FakeScanner) Regions() <-chan RegionEvent { return f.regions }

// IsConnected reports the scripted connectivity.
func (f *FakeScanner) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Close marks the scanner as closed.
func (f *FakeScanner) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// StartedCount returns how many start commands were issued for uuid.
func (f *FakeScanner) StartedCount(uuid string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, u := range f.Started {
		if u == NormalizeUUID(uuid) {
			n++
		}
	}
	return n
}
