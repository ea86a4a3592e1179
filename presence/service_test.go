package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/zkiotchain/zkiot/events"
	"github.com/zkiotchain/zkiot/testing/assert"
	"github.com/zkiotchain/zkiot/testing/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) set(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = at
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingNotifier struct {
	feed *event.Feed
	ch   chan *events.Event
}

func newRecordingNotifier() *recordingNotifier {
	n := &recordingNotifier{
		feed: new(event.Feed),
		ch:   make(chan *events.Event, 128),
	}
	n.feed.Subscribe(n.ch)
	return n
}

func (n *recordingNotifier) EventFeed() *event.Feed {
	return n.feed
}

func (n *recordingNotifier) awaitChange(t *testing.T) *events.DeviceStatusChangeData {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-n.ch:
			if ev.Type != events.DeviceStatusChange {
				continue
			}
			data, ok := ev.Data.(*events.DeviceStatusChangeData)
			require.Equal(t, true, ok)
			return data
		case <-deadline:
			t.Fatal("no status change event")
			return nil
		}
	}
}

func (n *recordingNotifier) assertNone(t *testing.T) {
	t.Helper()
	select {
	case ev := <-n.ch:
		t.Fatalf("unexpected %s event", ev.Type)
	default:
	}
}

type trackerEnv struct {
	svc      *Service
	notifier *recordingNotifier
	clock    *fakeClock
}

func setupTracker(t *testing.T, mutate func(cfg *Config)) *trackerEnv {
	notifier := newRecordingNotifier()
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	cfg := &Config{Notifier: notifier, Now: clock.now}
	if mutate != nil {
		mutate(cfg)
	}
	svc, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, svc.Stop())
	})
	return &trackerEnv{svc: svc, notifier: notifier, clock: clock}
}

func TestNew_RequiresNotifier(t *testing.T) {
	_, err := New(context.Background(), nil)
	require.ErrorContains(t, "requires a notifier", err)
	_, err = New(context.Background(), &Config{})
	require.ErrorContains(t, "requires a notifier", err)
}

func TestHeartbeat_FirstSightingComesOnline(t *testing.T) {
	env := setupTracker(t, nil)

	record := env.svc.Heartbeat("sensor-1", time.Time{})
	assert.Equal(t, Online, record.Status)
	assert.Equal(t, env.clock.now(), record.LastHeartbeat)

	change := env.notifier.awaitChange(t)
	assert.Equal(t, "sensor-1", change.DeviceID)
	assert.Equal(t, "OFFLINE", change.Previous)
	assert.Equal(t, "ONLINE", change.Current)

	assert.Equal(t, Online, env.svc.DeviceStatus("sensor-1").Status)

	ghost := env.svc.DeviceStatus("ghost")
	assert.Equal(t, Offline, ghost.Status)
	assert.Equal(t, true, ghost.LastHeartbeat.IsZero())
}

func TestDeviceStatus_Windows(t *testing.T) {
	env := setupTracker(t, nil)
	base := env.clock.now()
	env.svc.Heartbeat("sensor-1", time.Time{})

	tests := []struct {
		elapsed time.Duration
		want    Status
	}{
		{elapsed: 0, want: Online},
		{elapsed: 60 * time.Second, want: Online},
		{elapsed: 61 * time.Second, want: Idle},
		{elapsed: 120 * time.Second, want: Idle},
		{elapsed: 300 * time.Second, want: Idle},
		{elapsed: 301 * time.Second, want: Offline},
		{elapsed: 600 * time.Second, want: Offline},
	}
	for _, tt := range tests {
		env.clock.set(base.Add(tt.elapsed))
		assert.Equal(t, tt.want, env.svc.DeviceStatus("sensor-1").Status, "elapsed %s", tt.elapsed)
	}
}

func TestSweep_EmitsBoundaryEvents(t *testing.T) {
	env := setupTracker(t, nil)
	env.svc.Heartbeat("sensor-1", time.Time{})
	env.notifier.awaitChange(t)

	env.svc.sweep()
	env.notifier.assertNone(t)

	env.clock.advance(120 * time.Second)
	env.svc.sweep()
	idle := env.notifier.awaitChange(t)
	assert.Equal(t, "ONLINE", idle.Previous)
	assert.Equal(t, "IDLE", idle.Current)

	env.clock.advance(480 * time.Second)
	env.svc.sweep()
	offline := env.notifier.awaitChange(t)
	assert.Equal(t, "IDLE", offline.Previous)
	assert.Equal(t, "OFFLINE", offline.Current)

	// The class did not move again, so another sweep stays quiet.
	env.svc.sweep()
	env.notifier.assertNone(t)
}

func TestHeartbeat_RecoversFromIdle(t *testing.T) {
	env := setupTracker(t, nil)
	env.svc.Heartbeat("sensor-1", time.Time{})
	env.notifier.awaitChange(t)

	env.clock.advance(120 * time.Second)
	record := env.svc.Heartbeat("sensor-1", time.Time{})
	assert.Equal(t, Online, record.Status)

	change := env.notifier.awaitChange(t)
	assert.Equal(t, "IDLE", change.Previous)
	assert.Equal(t, "ONLINE", change.Current)
}

func TestHeartbeat_IgnoresRegressions(t *testing.T) {
	env := setupTracker(t, nil)
	at := env.clock.now()
	env.svc.Heartbeat("sensor-1", at)
	env.notifier.awaitChange(t)

	record := env.svc.Heartbeat("sensor-1", at.Add(-30*time.Second))
	assert.Equal(t, Online, record.Status)
	assert.Equal(t, at, record.LastHeartbeat)
	assert.Equal(t, at, env.svc.DeviceStatus("sensor-1").LastHeartbeat)
	env.notifier.assertNone(t)
}

func TestSnapshot_SortedByDevice(t *testing.T) {
	env := setupTracker(t, nil)
	base := env.clock.now()
	env.svc.Heartbeat("sensor-c", time.Time{})
	env.svc.Heartbeat("sensor-a", time.Time{})
	env.clock.advance(120 * time.Second)
	env.svc.Heartbeat("sensor-b", time.Time{})

	records := env.svc.Snapshot()
	require.Equal(t, 3, len(records))
	assert.Equal(t, "sensor-a", records[0].DeviceID)
	assert.Equal(t, "sensor-b", records[1].DeviceID)
	assert.Equal(t, "sensor-c", records[2].DeviceID)
	assert.Equal(t, Idle, records[0].Status)
	assert.Equal(t, Online, records[1].Status)
	assert.Equal(t, base, records[2].LastHeartbeat)
}

func TestStart_SweepsPeriodically(t *testing.T) {
	env := setupTracker(t, func(cfg *Config) {
		cfg.SweepInterval = 10 * time.Millisecond
	})
	env.svc.Heartbeat("sensor-1", time.Time{})
	env.notifier.awaitChange(t)
	env.svc.Start()

	env.clock.advance(120 * time.Second)
	change := env.notifier.awaitChange(t)
	assert.Equal(t, "sensor-1", change.DeviceID)
	assert.Equal(t, "IDLE", change.Current)
}
