package eventbus

import "testing"

func TestBusPublishSubscribe(t *testing.T) {
	bus := New[string]()
	ch := bus.Subscribe()
	bus.Publish("hello")
	if v := <-ch; v != "hello" {
		t.Fatalf("expected hello got %v", v)
	}
	bus.Unsubscribe(ch)
}

func TestBusDropsWhenFull(t *testing.T) {
	bus := New[int]()
	ch := bus.Subscribe()
	for i := 0; i < subscriberBuffer+5; i++ {
		bus.Publish(i)
	}
	// The publisher must never have blocked; the buffer holds the first
	// subscriberBuffer events and the rest were dropped.
	count := 0
	for {
		select {
		case <-ch:
			count++
			continue
		default:
		}
		break
	}
	if count != subscriberBuffer {
		t.Fatalf("received %d events, want %d", count, subscriberBuffer)
	}
}

func TestBusClose(t *testing.T) {
	bus := New[string]()
	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()
	bus.Close()
	if _, ok := <-ch1; ok {
		t.Fatalf("expected ch1 closed")
	}
	if _, ok := <-ch2; ok {
		t.Fatalf("expected ch2 closed")
	}
	// Publish and Unsubscribe after Close must be harmless.
	bus.Publish("late")
	bus.Unsubscribe(ch1)
}
