package eventbus

import "testing"

func TestBusPublishSubscribe(t *testing.T) {
	bus := New()
	ch := bus.Subscribe()
	bus.Publish("schedule")
	v := <-ch
	if v != "schedule" {
		t.Fatalf("expected schedule got %v", v)
	}
	bus.Unsubscribe(ch)
}

func TestBusClose(t *testing.T) {
	bus := New()
	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()
	bus.Close()
	if _, ok := <-ch1; ok {
		t.Fatalf("expected ch1 closed")
	}
	if _, ok := <-ch2; ok {
		t.Fatalf("expected ch2 closed")
	}
	bus.Publish("late")
}

func TestBusUnsubscribeAfterClose(t *testing.T) {
	bus := New()
	ch := bus.Subscribe()
	bus.Close()
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("panic on Unsubscribe after Close: %v", r)
		}
	}()
	bus.Unsubscribe(ch)
}

func TestBusDropsWhenFull(t *testing.T) {
	bus := NewWithBuffer(1)
	ch := bus.Subscribe()
	bus.Publish(1)
	bus.Publish(2)
	if got := bus.Dropped(); got != 1 {
		t.Fatalf("expected 1 dropped got %d", got)
	}
	if v := <-ch; v != 1 {
		t.Fatalf("expected first event kept, got %v", v)
	}
}
