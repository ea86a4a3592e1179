package events

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/sirupsen/logrus"
	"github.com/zkiotchain/zkiot/config/params"
)

var log = logrus.WithField("prefix", "events")

// Notifier exposes the feed subsystems publish events on.
type Notifier interface {
	EventFeed() *event.Feed
}

// Subscriber is one realtime push session. Events are delivered on a
// bounded queue; a session that falls MaxSubQueue events behind is
// dropped by the bus and its channels are closed.
type Subscriber struct {
	clientID string
	topics   map[Type]bool
	ch       chan *Event
	done     chan struct{}
	closer   sync.Once
	bus      *Bus
}

// ClientID returns the session key the subscriber registered under.
func (s *Subscriber) ClientID() string {
	return s.clientID
}

// Events returns the delivery channel. It is closed when the session ends.
func (s *Subscriber) Events() <-chan *Event {
	return s.ch
}

// Done is closed when the bus drops the session or Unsubscribe is called.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// Unsubscribe ends the session. It is safe to call more than once.
func (s *Subscriber) Unsubscribe() {
	s.bus.remove(s.clientID, s)
}

func (s *Subscriber) wants(t Type) bool {
	if len(s.topics) == 0 {
		return true
	}
	return s.topics[t]
}

// closeLocked must only be called while holding the bus lock, so channel
// closure cannot race a delivery.
func (s *Subscriber) closeLocked() {
	s.closer.Do(func() {
		close(s.ch)
		close(s.done)
	})
}

// Config options for the event bus.
type Config struct {
	// QueueSize overrides the per-subscriber queue bound. Zero means the
	// protocol MaxSubQueue value.
	QueueSize int
	// HistorySize overrides the recent-events ring length. Zero means the
	// protocol EventHistory value.
	HistorySize int
}

// Bus owns the process-wide event feed and fans published events out to
// subscriber sessions. Publishers send on the feed via EventFeed;
// ordering seen by any single subscriber matches publish order.
type Bus struct {
	ctx    context.Context
	cancel context.CancelFunc
	feed   *event.Feed

	queueSize int

	mu      sync.RWMutex
	subs    map[string]*Subscriber
	history []*Event
	next    int
	seq     uint64
	total   uint64
}

// NewBus constructs the bus. Dispatch starts with Start.
func NewBus(ctx context.Context, cfg *Config) *Bus {
	if cfg == nil {
		cfg = &Config{}
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = params.Protocol().MaxSubQueue
	}
	historySize := cfg.HistorySize
	if historySize <= 0 {
		historySize = params.Protocol().EventHistory
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Bus{
		ctx:       ctx,
		cancel:    cancel,
		feed:      new(event.Feed),
		queueSize: queueSize,
		subs:      make(map[string]*Subscriber),
		history:   make([]*Event, historySize),
	}
}

// EventFeed implements Notifier.
func (b *Bus) EventFeed() *event.Feed {
	return b.feed
}

// Start launches the dispatch routine.
func (b *Bus) Start() {
	go b.dispatch()
}

// Stop ends dispatch and closes every open session.
func (b *Bus) Stop() error {
	defer b.cancel()
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		s.closeLocked()
	}
	b.subs = make(map[string]*Subscriber)
	subscriberGauge.Set(0)
	return nil
}

// Status always returns nil. The bus has no external dependency that
// can degrade.
func (b *Bus) Status() error {
	return nil
}

// Subscribe opens a push session for clientID, limited to the given
// topics, or all topics when none are given. A live session under the
// same clientID is replaced.
func (b *Bus) Subscribe(clientID string, topics ...Type) *Subscriber {
	sub := &Subscriber{
		clientID: clientID,
		ch:       make(chan *Event, b.queueSize),
		done:     make(chan struct{}),
		bus:      b,
	}
	if len(topics) > 0 {
		sub.topics = make(map[Type]bool, len(topics))
		for _, t := range topics {
			sub.topics[t] = true
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if prev, ok := b.subs[clientID]; ok {
		prev.closeLocked()
	}
	b.subs[clientID] = sub
	subscriberGauge.Set(float64(len(b.subs)))
	return sub
}

// SubscriberCount returns the number of live sessions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Recent returns up to limit of the most recent events in publish order.
func (b *Bus) Recent(limit int) []*Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	size := len(b.history)
	n := size
	if b.total < uint64(size) {
		n = int(b.total)
	}
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*Event, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, b.history[(b.next-n+i+size)%size])
	}
	return out
}

func (b *Bus) remove(clientID string, sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.subs[clientID]; ok && cur == sub {
		delete(b.subs, clientID)
	}
	sub.closeLocked()
	subscriberGauge.Set(float64(len(b.subs)))
}

func (b *Bus) dispatch() {
	ch := make(chan *Event, b.queueSize)
	sub := b.feed.Subscribe(ch)
	defer sub.Unsubscribe()
	for {
		select {
		case ev := <-ch:
			b.deliver(ev)
		case err := <-sub.Err():
			log.WithError(err).Error("Event feed subscription failed")
			return
		case <-b.ctx.Done():
			return
		}
	}
}

func (b *Bus) deliver(ev *Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	ev.ID = b.seq
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if size := len(b.history); size > 0 {
		b.history[b.next] = ev
		b.next = (b.next + 1) % size
	}
	b.total++
	publishedCounter.WithLabelValues(ev.Type.String()).Inc()

	for clientID, s := range b.subs {
		if !s.wants(ev.Type) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			log.WithFields(logrus.Fields{
				"clientID": clientID,
				"queued":   len(s.ch),
			}).Warn("Dropping slow event subscriber")
			delete(b.subs, clientID)
			s.closeLocked()
			droppedCounter.Inc()
			subscriberGauge.Set(float64(len(b.subs)))
		}
	}
}
