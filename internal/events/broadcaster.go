package events

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"slotcore/pkg/config"
	"slotcore/pkg/kafka"
	"slotcore/pkg/logger"
	"slotcore/pkg/model"

	"github.com/google/uuid"
)

// Publisher is the write side of the broadcaster, consumed by the hold
// manager, booking converter and conflict detector.
type Publisher interface {
	Publish(ctx context.Context, event model.Event)
}

// EventSink receives every published event for external delivery (the
// notification dispatcher and other services listen on Kafka). Delivery is
// fire-and-forget from the engine's point of view.
type EventSink interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

// Subscription is one scoped, best-effort event stream. A slow consumer
// loses its oldest events rather than blocking the publisher.
type Subscription struct {
	ID    string
	Scope string

	ch      chan model.Event
	dropped uint64
}

// Events returns the subscriber's delivery channel. Closed on Unsubscribe
// and on broadcaster shutdown.
func (s *Subscription) Events() <-chan model.Event {
	return s.ch
}

// Dropped reports how many events were discarded because the subscriber
// fell behind.
func (s *Subscription) Dropped() uint64 {
	return atomic.LoadUint64(&s.dropped)
}

// Broadcaster fans engine events out to in-process subscribers and to the
// Kafka sink. Events for the same resource key carry a per-key sequence
// and are delivered to each subscriber in sequence order; there is no
// ordering guarantee across keys.
type Broadcaster struct {
	mu        sync.Mutex
	subs      map[string]*Subscription
	sequences map[string]uint64
	queueSize int
	closed    bool

	sink     EventSink
	sinkCh   chan model.Event
	sinkDone chan struct{}
	source   string

	log *logger.Logger
}

func NewBroadcaster(cfg *config.Config, sink EventSink, source string) *Broadcaster {
	b := &Broadcaster{
		subs:      make(map[string]*Subscription),
		sequences: make(map[string]uint64),
		queueSize: cfg.SubscriberQueueSize,
		sink:      sink,
		source:    source,
		log:       cfg.Log.WithComponent("events"),
	}
	if sink != nil {
		b.sinkCh = make(chan model.Event, cfg.SubscriberQueueSize*4)
		b.sinkDone = make(chan struct{})
		go b.drainSink()
	}
	return b
}

// Subscribe registers a scope-filtered subscriber. Scope is a resource key
// prefix ("svc1" receives every event for svc1's slots); the empty scope
// receives everything.
func (b *Broadcaster) Subscribe(scope string) *Subscription {
	sub := &Subscription{
		ID:    uuid.New().String(),
		Scope: scope,
		ch:    make(chan model.Event, b.queueSize),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub.ID] = sub
	b.log.Debug("Subscriber registered", "subscription_id", sub.ID, "scope", scope)
	return sub
}

func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(sub.ch)
	}
}

// Publish stamps the event with its per-key sequence and fans it out.
// Never blocks: a full subscriber queue drops its oldest event.
func (b *Broadcaster) Publish(ctx context.Context, event model.Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	b.sequences[event.ResourceKey]++
	event.Sequence = b.sequences[event.ResourceKey]

	for _, sub := range b.subs {
		if !matchesScope(sub.Scope, event.ResourceKey) {
			continue
		}
		b.deliver(sub, event)
	}
	b.mu.Unlock()

	if b.sinkCh != nil {
		select {
		case b.sinkCh <- event:
		default:
			b.log.Warn("Event sink queue full, dropping event",
				"event_id", event.ID,
				"kind", event.Kind,
				"resource_key", event.ResourceKey,
			)
		}
	}
}

// deliver is called with b.mu held, so queue eviction and re-send cannot
// interleave with another publisher on the same subscription.
func (b *Broadcaster) deliver(sub *Subscription, event model.Event) {
	select {
	case sub.ch <- event:
		return
	default:
	}

	// Queue full: evict the oldest entry and retry once.
	select {
	case <-sub.ch:
		atomic.AddUint64(&sub.dropped, 1)
	default:
	}
	select {
	case sub.ch <- event:
	default:
		atomic.AddUint64(&sub.dropped, 1)
	}
}

// drainSink forwards events to Kafka from a single goroutine, preserving
// publish order on the wire. Sink failures are logged, never surfaced.
func (b *Broadcaster) drainSink() {
	defer close(b.sinkDone)
	for event := range b.sinkCh {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		msg := kafka.FromEvent(event, b.source)
		if err := b.sink.Publish(ctx, msg); err != nil {
			b.log.Error("Event sink publish failed",
				"event_id", event.ID,
				"kind", event.Kind,
				"resource_key", event.ResourceKey,
				"error", err,
			)
		}
		cancel()
	}
}

// Close shuts down all subscriptions and flushes the sink queue.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
	b.mu.Unlock()

	if b.sinkCh != nil {
		close(b.sinkCh)
		<-b.sinkDone
	}
}

func matchesScope(scope, resourceKey string) bool {
	if scope == "" {
		return true
	}
	return strings.HasPrefix(resourceKey, scope)
}
