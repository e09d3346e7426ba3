package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"slotcore/pkg/config"
	"slotcore/pkg/kafka"
	"slotcore/pkg/logger"
	"slotcore/pkg/model"
)

type mockSink struct {
	mu       sync.Mutex
	messages []kafka.Message
}

func (m *mockSink) Publish(ctx context.Context, msg kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *mockSink) published() []kafka.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]kafka.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

func testBroadcaster(t *testing.T, queueSize int, sink EventSink) *Broadcaster {
	t.Helper()
	cfg := &config.Config{
		SubscriberQueueSize: queueSize,
		Log: logger.New(logger.Config{
			Level:   "error",
			Format:  logger.JSON,
			Service: "test",
		}),
	}
	b := NewBroadcaster(cfg, sink, "test")
	t.Cleanup(b.Close)
	return b
}

func TestBroadcaster_PerKeySequence(t *testing.T) {
	b := testBroadcaster(t, 16, nil)
	sub := b.Subscribe("")

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		b.Publish(ctx, model.Event{Kind: model.EventAvailabilityUpdated, ResourceKey: "yoga:studio:2026-09-01T08:00:00Z"})
	}
	b.Publish(ctx, model.Event{Kind: model.EventAvailabilityUpdated, ResourceKey: "yoga:studio:2026-09-01T09:00:00Z"})

	var keyA, keyB []uint64
	for i := 0; i < 4; i++ {
		select {
		case ev := <-sub.Events():
			if ev.ResourceKey == "yoga:studio:2026-09-01T08:00:00Z" {
				keyA = append(keyA, ev.Sequence)
			} else {
				keyB = append(keyB, ev.Sequence)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}

	if len(keyA) != 3 || keyA[0] != 1 || keyA[1] != 2 || keyA[2] != 3 {
		t.Errorf("expected per-key sequence 1,2,3, got %v", keyA)
	}
	if len(keyB) != 1 || keyB[0] != 1 {
		t.Errorf("expected independent sequence for second key, got %v", keyB)
	}
}

func TestBroadcaster_ScopeFiltering(t *testing.T) {
	b := testBroadcaster(t, 16, nil)
	yogaOnly := b.Subscribe("yoga:")
	everything := b.Subscribe("")

	ctx := context.Background()
	b.Publish(ctx, model.Event{Kind: model.EventAvailabilityUpdated, ResourceKey: "yoga:studio:2026-09-01T08:00:00Z"})
	b.Publish(ctx, model.Event{Kind: model.EventAvailabilityUpdated, ResourceKey: "massage:spa:2026-09-01T08:00:00Z"})

	select {
	case ev := <-yogaOnly.Events():
		if ev.ResourceKey != "yoga:studio:2026-09-01T08:00:00Z" {
			t.Errorf("scoped subscriber received out-of-scope event: %s", ev.ResourceKey)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for scoped event")
	}

	select {
	case ev := <-yogaOnly.Events():
		t.Errorf("scoped subscriber received unexpected second event: %s", ev.ResourceKey)
	case <-time.After(50 * time.Millisecond):
	}

	received := 0
	for received < 2 {
		select {
		case <-everything.Events():
			received++
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for unscoped events")
		}
	}
}

func TestBroadcaster_SlowSubscriberDropsOldest(t *testing.T) {
	b := testBroadcaster(t, 2, nil)
	sub := b.Subscribe("")

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		b.Publish(ctx, model.Event{Kind: model.EventAvailabilityUpdated, ResourceKey: "yoga:studio:2026-09-01T08:00:00Z"})
	}

	if sub.Dropped() != 3 {
		t.Errorf("expected 3 dropped events, got %d", sub.Dropped())
	}

	// The survivors are the newest events, in order.
	var sequences []uint64
	for i := 0; i < 2; i++ {
		select {
		case ev := <-sub.Events():
			sequences = append(sequences, ev.Sequence)
		case <-time.After(time.Second):
			t.Fatal("timed out draining queue")
		}
	}
	if sequences[0] != 4 || sequences[1] != 5 {
		t.Errorf("expected sequences 4,5 to survive, got %v", sequences)
	}
}

func TestBroadcaster_PublishNeverBlocks(t *testing.T) {
	b := testBroadcaster(t, 1, nil)
	b.Subscribe("") // never drained

	done := make(chan struct{})
	go func() {
		ctx := context.Background()
		for i := 0; i < 100; i++ {
			b.Publish(ctx, model.Event{Kind: model.EventHoldExpired, ResourceKey: "yoga:studio:2026-09-01T08:00:00Z"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}
}

func TestBroadcaster_SinkReceivesEverything(t *testing.T) {
	sink := &mockSink{}
	b := testBroadcaster(t, 16, sink)

	ctx := context.Background()
	b.Publish(ctx, model.Event{Kind: model.EventBookingConfirmed, ResourceKey: "yoga:studio:2026-09-01T08:00:00Z"})
	b.Publish(ctx, model.Event{Kind: model.EventHoldExpired, ResourceKey: "yoga:studio:2026-09-01T09:00:00Z"})

	b.Close()

	messages := sink.published()
	if len(messages) != 2 {
		t.Fatalf("expected 2 sink messages, got %d", len(messages))
	}
	if messages[0].Key != "yoga:studio:2026-09-01T08:00:00Z" {
		t.Errorf("unexpected first sink key: %s", messages[0].Key)
	}
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := testBroadcaster(t, 16, nil)
	sub := b.Subscribe("")
	b.Unsubscribe(sub.ID)

	if _, open := <-sub.Events(); open {
		t.Error("expected channel closed after unsubscribe")
	}

	// Publishing after unsubscribe must not panic.
	b.Publish(context.Background(), model.Event{Kind: model.EventHoldExpired, ResourceKey: "yoga:studio:2026-09-01T08:00:00Z"})
}

func TestBroadcaster_StampsIDAndTimestamp(t *testing.T) {
	b := testBroadcaster(t, 16, nil)
	sub := b.Subscribe("")

	b.Publish(context.Background(), model.Event{Kind: model.EventConflictDetected, ResourceKey: "yoga:studio:2026-09-01T08:00:00Z"})

	select {
	case ev := <-sub.Events():
		if ev.ID == "" {
			t.Error("expected event ID to be stamped")
		}
		if ev.At.IsZero() {
			t.Error("expected event timestamp to be stamped")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}
