package realtime

import (
	"encoding/json"
	"testing"
	"time"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := NewBroker()
	ch1, cancel1 := b.Subscribe()
	defer cancel1()
	ch2, cancel2 := b.Subscribe()
	defer cancel2()

	b.Publish(Event{Type: EventScanPhase, RunID: "run-1", Payload: map[string]int{"progress": 40}})

	for _, ch := range []<-chan []byte{ch1, ch2} {
		select {
		case data := <-ch:
			var evt Event
			if err := json.Unmarshal(data, &evt); err != nil {
				t.Fatalf("decode event: %v", err)
			}
			if evt.Type != EventScanPhase || evt.RunID != "run-1" {
				t.Fatalf("unexpected event: %+v", evt)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestUnsubscribedClientNoLongerReceives(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe()
	cancel()

	b.Publish(Event{Type: EventSessionStatus})

	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after cancel")
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := NewBroker()
	_, cancel := b.Subscribe()
	defer cancel()

	// 订阅缓冲为 8，超出部分应被丢弃而不是阻塞发布方。
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(Event{Type: EventScanPhase, Payload: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}
