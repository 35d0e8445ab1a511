package notifications

import (
	"testing"
	"time"
)

func TestSubscribeReceivesEvents(t *testing.T) {
	svc := NewService()
	defer svc.Shutdown()

	ch, unsubscribe := svc.Subscribe()
	defer unsubscribe()

	svc.NotifySessionUpdated("sess-1", "title")

	select {
	case event := <-ch:
		if event.Type != EventSessionUpdated {
			t.Errorf("expected %s, got %s", EventSessionUpdated, event.Type)
		}
		if event.Timestamp == 0 {
			t.Error("expected a timestamp")
		}
		data, ok := event.Data.(map[string]interface{})
		if !ok {
			t.Fatalf("unexpected data shape: %#v", event.Data)
		}
		if data["sessionId"] != "sess-1" || data["operation"] != "title" {
			t.Errorf("unexpected data: %#v", data)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	svc := NewService()
	defer svc.Shutdown()

	ch, unsubscribe := svc.Subscribe()
	unsubscribe()

	if svc.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", svc.SubscriberCount())
	}

	// Channel should be closed after unsubscribe
	select {
	case _, open := <-ch:
		if open {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}

	// Double unsubscribe must not panic
	unsubscribe()
}

func TestNotifyDoesNotBlockOnFullSubscriber(t *testing.T) {
	svc := NewService()
	defer svc.Shutdown()

	_, unsubscribe := svc.Subscribe()
	defer unsubscribe()

	// Channel buffer is 10; send more than that without draining
	done := make(chan struct{})
	go func() {
		for i := 0; i < 25; i++ {
			svc.NotifyWorkspaceChanged("attachments/a.txt", "create")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked on a full subscriber")
	}
}

func TestShutdownClosesSubscribers(t *testing.T) {
	svc := NewService()

	ch, _ := svc.Subscribe()
	svc.Shutdown()

	select {
	case _, open := <-ch:
		if open {
			t.Error("expected closed channel after shutdown")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}

	if svc.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after shutdown, got %d", svc.SubscriberCount())
	}
}
