package events

import (
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan PressEvent, 1)

	unsub := bus.Subscribe(func(e PressEvent) {
		received <- e
	})
	defer unsub()

	bus.Pressed(1, true)

	select {
	case got := <-received:
		if got.Channel != 1 || !got.Blinking {
			t.Errorf("unexpected event: %+v", got)
		}
		if got.Time.IsZero() {
			t.Error("expected timestamp to be set")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestBus_TypedDelivery(t *testing.T) {
	bus := New()
	outputs := make(chan OutputEvent, 4)
	settles := make(chan SettleEvent, 4)

	defer bus.Subscribe(func(e OutputEvent) { outputs <- e })()
	defer bus.Subscribe(func(e SettleEvent) { settles <- e })()

	bus.OutputChanged(2, true)
	bus.SettleChanged(true)

	select {
	case e := <-outputs:
		if e.Channel != 2 || !e.Active {
			t.Errorf("unexpected output event: %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for output event")
	}
	select {
	case e := <-settles:
		if !e.Open {
			t.Errorf("unexpected settle event: %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for settle event")
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan PressEvent, 1)

	unsub := bus.Subscribe(func(e PressEvent) { received <- e })
	unsub()

	bus.Pressed(1, false)

	select {
	case e := <-received:
		t.Errorf("received event after unsubscribe: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_UnknownHandler(t *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	if unsub == nil {
		t.Fatal("expected no-op unsubscribe")
	}
	unsub()
}
