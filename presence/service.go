// Package presence tracks device liveness from heartbeats. A device is
// ONLINE within the live window of its last heartbeat, IDLE within the
// idle window and OFFLINE beyond it. The class is always computed from
// the last heartbeat and the clock at hand; the background sweep exists
// only to notice boundary crossings and publish DEVICE_STATUS_CHANGE.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/zkiotchain/zkiot/async"
	"github.com/zkiotchain/zkiot/config/params"
	"github.com/zkiotchain/zkiot/events"
	"golang.org/x/exp/slices"
)

var log = logrus.WithField("prefix", "presence")

// Status is a device's presence class.
type Status string

const (
	Online  Status = "ONLINE"
	Idle    Status = "IDLE"
	Offline Status = "OFFLINE"
)

// Record is a point-in-time presence view of one device.
type Record struct {
	DeviceID      string
	Status        Status
	LastHeartbeat time.Time
}

type entry struct {
	lastHeartbeat time.Time
	lastClass     Status
}

// Config holds the tracker's dependencies and window overrides.
type Config struct {
	// Notifier publishes DEVICE_STATUS_CHANGE events.
	Notifier events.Notifier
	// LiveWindow overrides the online window. Zero uses the protocol value.
	LiveWindow time.Duration
	// IdleWindow overrides the idle window. Zero uses the protocol value.
	IdleWindow time.Duration
	// SweepInterval overrides the sweep cadence. Zero uses the protocol value.
	SweepInterval time.Duration
	// Now substitutes the clock in tests.
	Now func() time.Time
}

// Service is the heartbeat tracker.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *Config
	now    func() time.Time
	live   time.Duration
	idle   time.Duration

	mu      sync.RWMutex
	devices map[string]*entry
}

// New builds the tracker.
func New(ctx context.Context, cfg *Config) (*Service, error) {
	if cfg == nil || cfg.Notifier == nil {
		return nil, errors.New("presence tracker requires a notifier")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	live := cfg.LiveWindow
	if live <= 0 {
		live = params.Protocol().LiveWindowDuration()
	}
	idle := cfg.IdleWindow
	if idle <= 0 {
		idle = params.Protocol().IdleWindowDuration()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		ctx:     ctx,
		cancel:  cancel,
		cfg:     cfg,
		now:     now,
		live:    live,
		idle:    idle,
		devices: make(map[string]*entry),
	}, nil
}

// Start launches the liveness sweeper.
func (s *Service) Start() {
	interval := s.cfg.SweepInterval
	if interval <= 0 {
		interval = params.Protocol().PresenceSweepDuration()
	}
	async.RunEvery(s.ctx, interval, s.sweep)
}

// Stop ends the sweeper.
func (s *Service) Stop() error {
	s.cancel()
	return nil
}

// Status always reports healthy.
func (s *Service) Status() error {
	return nil
}

// Heartbeat records a device sighting at the given time. A zero time uses
// the tracker clock. Heartbeats older than the recorded one are ignored.
func (s *Service) Heartbeat(deviceID string, at time.Time) *Record {
	if at.IsZero() {
		at = s.now()
	}

	s.mu.Lock()
	e, ok := s.devices[deviceID]
	if !ok {
		e = &entry{}
		s.devices[deviceID] = e
	}
	if at.Before(e.lastHeartbeat) {
		record := &Record{DeviceID: deviceID, Status: s.classAt(e.lastHeartbeat, s.now()), LastHeartbeat: e.lastHeartbeat}
		s.mu.Unlock()
		return record
	}
	previous := s.classAt(e.lastHeartbeat, at)
	e.lastHeartbeat = at
	e.lastClass = Online
	s.mu.Unlock()

	heartbeatsTotal.Inc()
	if previous != Online {
		s.emitChange(deviceID, previous, Online)
	}
	return &Record{DeviceID: deviceID, Status: Online, LastHeartbeat: at}
}

// DeviceStatus reports the presence of one device at the current clock.
// Devices that never sent a heartbeat read as OFFLINE.
func (s *Service) DeviceStatus(deviceID string) *Record {
	at := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.devices[deviceID]
	if !ok {
		return &Record{DeviceID: deviceID, Status: Offline}
	}
	return &Record{DeviceID: deviceID, Status: s.classAt(e.lastHeartbeat, at), LastHeartbeat: e.lastHeartbeat}
}

// Snapshot reports every tracked device, ordered by device id.
func (s *Service) Snapshot() []*Record {
	at := s.now()
	s.mu.RLock()
	records := make([]*Record, 0, len(s.devices))
	for deviceID, e := range s.devices {
		records = append(records, &Record{
			DeviceID:      deviceID,
			Status:        s.classAt(e.lastHeartbeat, at),
			LastHeartbeat: e.lastHeartbeat,
		})
	}
	s.mu.RUnlock()
	slices.SortFunc(records, func(a, b *Record) bool {
		return a.DeviceID < b.DeviceID
	})
	return records
}

// classAt derives the presence class for a last heartbeat observed at
// the given instant. A zero heartbeat means the device was never seen.
func (s *Service) classAt(last, at time.Time) Status {
	if last.IsZero() {
		return Offline
	}
	elapsed := at.Sub(last)
	switch {
	case elapsed <= s.live:
		return Online
	case elapsed <= s.idle:
		return Idle
	default:
		return Offline
	}
}

// sweep recomputes presence classes and publishes boundary crossings.
func (s *Service) sweep() {
	at := s.now()
	type change struct {
		deviceID string
		previous Status
		current  Status
	}
	var changes []change
	counts := map[Status]int{Online: 0, Idle: 0, Offline: 0}

	s.mu.Lock()
	for deviceID, e := range s.devices {
		current := s.classAt(e.lastHeartbeat, at)
		counts[current]++
		if current == e.lastClass {
			continue
		}
		changes = append(changes, change{deviceID: deviceID, previous: e.lastClass, current: current})
		e.lastClass = current
	}
	s.mu.Unlock()

	for _, c := range changes {
		s.emitChange(c.deviceID, c.previous, c.current)
	}
	for status, n := range counts {
		devicesByStatus.WithLabelValues(string(status)).Set(float64(n))
	}
}

func (s *Service) emitChange(deviceID string, previous, current Status) {
	statusTransitions.WithLabelValues(string(current)).Inc()
	s.cfg.Notifier.EventFeed().Send(&events.Event{
		Type: events.DeviceStatusChange,
		Data: &events.DeviceStatusChangeData{
			DeviceID: deviceID,
			Previous: string(previous),
			Current:  string(current),
		},
	})
	log.WithFields(logrus.Fields{
		"deviceID": deviceID,
		"previous": previous,
		"current":  current,
	}).Debug("Device presence changed")
}
