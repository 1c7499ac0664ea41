package beacon

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// RealScanner talks to a BLE scanner gateway over MQTT: it subscribes to the
// gateway's sighting and region topics and commands ranging start/stop over
// the command topic. Sightings for identifiers that were never started are
// filtered out, so a stop is safe while a scan report is mid-flight.
type RealScanner struct {
	client paho.Client
	log    *zap.Logger

	sightings chan []Sighting
	regions   chan RegionEvent

	mu      sync.Mutex
	ranging map[string]bool
}

// NewRealScanner connects to the broker and subscribes to the gateway topics.
func NewRealScanner(broker string, log *zap.Logger) (*RealScanner, error) {
	s := &RealScanner{
		log:       log,
		sightings: make(chan []Sighting, 16),
		regions:   make(chan RegionEvent, 16),
		ranging:   make(map[string]bool),
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID("attendance-agent").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	s.client = paho.NewClient(opts)
	token := s.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	if err := s.subscribe(TopicSightings, s.onScan); err != nil {
		return nil, err
	}
	if err := s.subscribe(TopicRegions, s.onRegion); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *RealScanner) subscribe(topic string, handler paho.MessageHandler) error {
	token := s.client.Subscribe(topic, 1, handler)
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("subscribe %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// onScan runs on paho's callback goroutine.
func (s *RealScanner) onScan(_ paho.Client, msg paho.Message) {
	batch, err := ParseScan(msg.Payload(), time.Now())
	if err != nil {
		s.log.Warn("dropping undecodable scan report", zap.Error(err))
		return
	}

	s.mu.Lock()
	kept := batch[:0]
	for _, sighting := range batch {
		if s.ranging[sighting.UUID] {
			kept = append(kept, sighting)
		}
	}
	s.mu.Unlock()

	if len(kept) == 0 {
		return
	}
	select {
	case s.sightings <- kept:
	default:
		s.log.Warn("sighting channel full, dropping batch", zap.Int("beacons", len(kept)))
	}
}

// onRegion runs on paho's callback goroutine.
func (s *RealScanner) onRegion(_ paho.Client, msg paho.Message) {
	ev, err := ParseRegion(msg.Payload(), time.Now())
	if err != nil {
		s.log.Warn("dropping undecodable region event", zap.Error(err))
		return
	}
	select {
	case s.regions <- ev:
	default:
		s.log.Warn("region channel full, dropping event", zap.String("uuid", ev.UUID))
	}
}

// StartMonitoring commands the gateway to range the given beacon UUID.
// Idempotent: an identifier already being ranged is not re-commanded.
func (s *RealScanner) StartMonitoring(uuid string) error {
	key := NormalizeUUID(uuid)
	s.mu.Lock()
	already := s.ranging[key]
	s.ranging[key] = true
	s.mu.Unlock()
	if already {
		return nil
	}
	return s.command("start", key)
}

// StopMonitoring commands the gateway to stop ranging the given beacon UUID.
func (s *RealScanner) StopMonitoring(uuid string) error {
	key := NormalizeUUID(uuid)
	s.mu.Lock()
	wasRanging := s.ranging[key]
	delete(s.ranging, key)
	s.mu.Unlock()
	if !wasRanging {
		return nil
	}
	return s.command("stop", key)
}

func (s *RealScanner) command(action, uuid string) error {
	payload, err := FormatCommand(action, uuid)
	if err != nil {
		return fmt.Errorf("format command: %w", err)
	}
	// QoS 1: a lost start command would leave a room unmonitored.
	token := s.client.Publish(TopicCommand, 1, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s command: timeout", action)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s command: %w", action, err)
	}
	return nil
}

// PublishSystem sends an agent lifecycle event to the broker.
func (s *RealScanner) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	token := s.client.Publish(TopicSystem, 1, event.Retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish system: timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

// Sightings yields filtered scan batches.
func (s *RealScanner) Sightings() <-chan []Sighting { return s.sightings }

// Regions yields region enter/exit notifications.
func (s *RealScanner) Regions() <-chan RegionEvent { return s.regions }

// IsConnected reports broker connectivity.
func (s *RealScanner) IsConnected() bool {
	return s.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (s *RealScanner) Close() error {
	s.client.Disconnect(1000) // 1 second timeout
	return nil
}
