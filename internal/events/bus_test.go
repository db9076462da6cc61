package events

import (
	"testing"
	"time"
)

func TestPublishToTopicSubscriber(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	sub := bus.Subscribe(TopicArtifact, 8)
	bus.Publish(TopicArtifact, ArtifactStartedEvent{Run: "r1", Type: "A", Timestamp: time.Now()})

	select {
	case ev := <-sub:
		started, ok := ev.(ArtifactStartedEvent)
		if !ok {
			t.Fatalf("received %T, want ArtifactStartedEvent", ev)
		}
		if started.Type != "A" || started.RunID() != "r1" {
			t.Errorf("event = %+v", started)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestTopicIsolation(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	runSub := bus.Subscribe(TopicRun, 8)
	bus.Publish(TopicArtifact, ArtifactStartedEvent{Run: "r1", Type: "A"})

	select {
	case ev := <-runSub:
		t.Fatalf("run subscriber received artifact event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeAllReceivesEveryTopic(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	all := bus.SubscribeAll(8)
	bus.Publish(TopicRun, RunStartedEvent{ID: "r1"})
	bus.Publish(TopicArtifact, ArtifactCompletedEvent{Run: "r1", Type: "A"})

	for i := 0; i < 2; i++ {
		select {
		case <-all:
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	sub := bus.Subscribe(TopicRun, 1)
	bus.Publish(TopicRun, RunProgressEvent{ID: "r1", Completed: 1})
	// Buffer is full; this must not block.
	done := make(chan struct{})
	go func() {
		bus.Publish(TopicRun, RunProgressEvent{ID: "r1", Completed: 2})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber buffer")
	}

	ev := <-sub
	if ev.(RunProgressEvent).Completed != 1 {
		t.Errorf("first buffered event = %+v, want Completed=1", ev)
	}
}

func TestCloseIsIdempotentAndClosesSubscribers(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(TopicRun, 1)

	bus.Close()
	bus.Close()

	if _, ok := <-sub; ok {
		t.Error("subscriber channel still open after Close")
	}

	// Publishing after close must be a no-op, not a panic.
	bus.Publish(TopicRun, RunStartedEvent{ID: "r1"})

	// Subscribing after close yields a closed channel.
	late := bus.Subscribe(TopicRun, 1)
	if _, ok := <-late; ok {
		t.Error("late subscriber channel open after Close")
	}
}
