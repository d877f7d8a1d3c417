package oven

import (
	"testing"
	"time"
)

func change(deviceID string, seq int) *ChangeSet {
	return &ChangeSet{
		DeviceID: deviceID,
		Changed:  []string{"fan_speed"},
		Snapshot: Snapshot{DeviceID: deviceID, FanSpeed: seq},
	}
}

func TestMultiplexer_FanOut(t *testing.T) {
	mux := NewMultiplexer(4)
	defer mux.Close()

	first := mux.Subscribe("oven-1")
	second := mux.Subscribe("oven-1")
	other := mux.Subscribe("oven-2")

	mux.Publish(change("oven-1", 1))

	for _, sub := range []*Subscription{first, second} {
		select {
		case cs := <-sub.Updates():
			if cs.Snapshot.FanSpeed != 1 {
				t.Errorf("FanSpeed = %d, want 1", cs.Snapshot.FanSpeed)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive update")
		}
	}

	select {
	case cs := <-other.Updates():
		t.Errorf("oven-2 subscriber received %v", cs)
	default:
	}
}

func TestMultiplexer_DropsOldestOnOverflow(t *testing.T) {
	mux := NewMultiplexer(2)
	defer mux.Close()

	sub := mux.Subscribe("oven-1")

	for seq := 1; seq <= 5; seq++ {
		mux.Publish(change("oven-1", seq))
	}

	// Buffer of two: publishes 1-3 were evicted, 4 and 5 remain.
	got := []int{}
	for i := 0; i < 2; i++ {
		select {
		case cs := <-sub.Updates():
			got = append(got, cs.Snapshot.FanSpeed)
		case <-time.After(time.Second):
			t.Fatal("expected buffered update")
		}
	}

	if len(got) != 2 || got[0] != 4 || got[1] != 5 {
		t.Errorf("received %v, want [4 5]", got)
	}
}

func TestMultiplexer_SlowSubscriberDoesNotBlockOthers(t *testing.T) {
	mux := NewMultiplexer(1)
	defer mux.Close()

	slow := mux.Subscribe("oven-1")
	fast := mux.Subscribe("oven-1")
	_ = slow // never reads

	for seq := 1; seq <= 3; seq++ {
		mux.Publish(change("oven-1", seq))

		select {
		case cs := <-fast.Updates():
			if cs.Snapshot.FanSpeed != seq {
				t.Errorf("FanSpeed = %d, want %d", cs.Snapshot.FanSpeed, seq)
			}
		case <-time.After(time.Second):
			t.Fatalf("fast subscriber starved at %d", seq)
		}
	}
}

func TestMultiplexer_SubscriptionClose(t *testing.T) {
	mux := NewMultiplexer(4)
	defer mux.Close()

	sub := mux.Subscribe("oven-1")
	if got := mux.SubscriberCount("oven-1"); got != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", got)
	}

	sub.Close()
	sub.Close() // idempotent

	if got := mux.SubscriberCount("oven-1"); got != 0 {
		t.Errorf("SubscriberCount after Close = %d, want 0", got)
	}

	if _, open := <-sub.Updates(); open {
		t.Error("channel still open after Close")
	}

	// Publishing to a device with no subscribers is a no-op.
	mux.Publish(change("oven-1", 1))
}

func TestMultiplexer_Close(t *testing.T) {
	mux := NewMultiplexer(4)

	sub := mux.Subscribe("oven-1")
	mux.Close()
	mux.Close() // idempotent

	if _, open := <-sub.Updates(); open {
		t.Error("channel still open after multiplexer Close")
	}

	// Late subscribers get an already-closed channel.
	late := mux.Subscribe("oven-1")
	if _, open := <-late.Updates(); open {
		t.Error("late subscription channel should be closed")
	}

	mux.Publish(change("oven-1", 1))
	sub.Close()
}

func TestMultiplexer_PublishNil(t *testing.T) {
	mux := NewMultiplexer(4)
	defer mux.Close()

	mux.Publish(nil)
}
