package coordinator

import (
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"192.168.3.70", "192.168.3.70", false},
		{"10.0.0.1:8080", "10.0.0.1:8080", false},
		{"::ffff:10.0.0.1", "10.0.0.1", false},
		{"[::ffff:10.0.0.1]:80", "10.0.0.1:80", false},
		{"127.0.0.1:", "", true},
		{"10.0.0.1:abc", "", true},
		{"10.0.0.1:0", "", true},
		{"10.0.0.1:65536", "", true},
		{"fe80::1", "", true},
		{"[::1]:80", "", true},
		{"controller.local", "", true},
		{"", "", true},
		{"256.1.1.1", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAddress(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseAddress(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("ParseAddress(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// --- EventBus tests ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestEventBusEmitOn(t *testing.T) {
	eb := NewEventBus(newTestLogger())
	var received Event

	eb.On(EventControllerFound, func(e Event) {
		received = e
	})

	eb.Emit(Event{Type: EventControllerFound, Data: "test"})

	if received.Type != EventControllerFound {
		t.Errorf("type = %q, want %q", received.Type, EventControllerFound)
	}
	if received.Data != "test" {
		t.Errorf("data = %v, want %q", received.Data, "test")
	}
}

func TestEventBusOnDoesNotReceiveOtherTypes(t *testing.T) {
	eb := NewEventBus(newTestLogger())
	called := false

	eb.On(EventControllerFound, func(e Event) {
		called = true
	})

	eb.Emit(Event{Type: EventControllerRemoved, Data: "test"})

	if called {
		t.Error("handler called for wrong event type")
	}
}

func TestEventBusOnAll(t *testing.T) {
	eb := NewEventBus(newTestLogger())
	var count atomic.Int32

	eb.OnAll(func(e Event) {
		count.Add(1)
	})

	eb.Emit(Event{Type: EventControllerFound})
	eb.Emit(Event{Type: EventControllerRemoved})
	eb.Emit(Event{Type: EventStatusUpdate})

	if count.Load() != 3 {
		t.Errorf("onAll called %d times, want 3", count.Load())
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	eb := NewEventBus(newTestLogger())
	var count atomic.Int32

	unsub := eb.On(EventControllerFound, func(e Event) {
		count.Add(1)
	})

	eb.Emit(Event{Type: EventControllerFound})
	if count.Load() != 1 {
		t.Fatalf("expected 1 call before unsub, got %d", count.Load())
	}

	unsub()
	eb.Emit(Event{Type: EventControllerFound})
	if count.Load() != 1 {
		t.Errorf("expected 1 call after unsub, got %d", count.Load())
	}
}

func TestEventBusOnAllUnsubscribe(t *testing.T) {
	eb := NewEventBus(newTestLogger())
	var count atomic.Int32

	unsub := eb.OnAll(func(e Event) {
		count.Add(1)
	})

	eb.Emit(Event{Type: EventControllerFound})
	unsub()
	eb.Emit(Event{Type: EventControllerFound})

	if count.Load() != 1 {
		t.Errorf("expected 1 call, got %d", count.Load())
	}
}

func TestEventBusPanicRecovery(t *testing.T) {
	eb := NewEventBus(newTestLogger())
	var called atomic.Int32

	// Register two handlers - one panics, one increments counter.
	// Both should be attempted despite the panic.
	eb.On(EventControllerFound, func(e Event) {
		called.Add(1)
		panic("test panic")
	})
	eb.On(EventControllerFound, func(e Event) {
		called.Add(1)
	})

	// Should not panic
	eb.Emit(Event{Type: EventControllerFound})

	// Both handlers should have been called despite one panicking.
	if c := called.Load(); c != 2 {
		t.Errorf("expected 2 handlers called, got %d", c)
	}
}

func TestEventBusConcurrentEmit(t *testing.T) {
	eb := NewEventBus(newTestLogger())
	var count atomic.Int32

	eb.OnAll(func(e Event) {
		count.Add(1)
	})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			eb.Emit(Event{Type: EventStatusUpdate})
		}()
	}
	wg.Wait()

	if count.Load() != 100 {
		t.Errorf("got %d, want 100", count.Load())
	}
}

func TestEventBusMultipleHandlersSameType(t *testing.T) {
	eb := NewEventBus(newTestLogger())
	var count atomic.Int32

	eb.On(EventControllerFound, func(e Event) { count.Add(1) })
	eb.On(EventControllerFound, func(e Event) { count.Add(1) })
	eb.On(EventControllerFound, func(e Event) { count.Add(1) })

	eb.Emit(Event{Type: EventControllerFound})

	if count.Load() != 3 {
		t.Errorf("got %d, want 3", count.Load())
	}
}
