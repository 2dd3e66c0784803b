package wsproto

import (
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestRouter_DropsMalformedFrame(t *testing.T) {
	c := NewCorrelator(zap.NewNop())
	bus := NewBus(zap.NewNop())
	r := NewRouter(zap.NewNop(), c, bus)

	r.Route([]byte(`not json`))
	r.Route([]byte(`{}`))
	r.Route([]byte(`{"Type":"UNKNOWN_VERB"}`))
	// None of the above should panic or register state.
	if c.PendingCount() != 0 {
		t.Fatalf("expected no pending calls, got %d", c.PendingCount())
	}
}

func TestRouter_RoutesNotificationToAwaiter(t *testing.T) {
	c := NewCorrelator(zap.NewNop())
	bus := NewBus(zap.NewNop())
	r := NewRouter(zap.NewNop(), c, bus)

	ch := bus.AwaitOnce(VerbNotReadingStarted)
	payload, _ := json.Marshal(ReadingStartedPayload{Success: true, Serial: "123"})
	frame, _ := json.Marshal(Frame{Type: VerbNotReadingStarted, From: "SERV", Target: "UI", Data: payload})

	r.Route(frame)

	select {
	case data := <-ch:
		var p ReadingStartedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if !p.Success || p.Serial != "123" {
			t.Fatalf("unexpected payload: %+v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("expected awaiter to receive notification")
	}
}

func TestBus_DispatchWithNoRecipientDoesNotPanic(t *testing.T) {
	bus := NewBus(zap.NewNop())
	bus.Dispatch(VerbNotTemp, []byte(`{}`))
}

func TestBus_AwaitOnceIsOneShot(t *testing.T) {
	bus := NewBus(zap.NewNop())
	ch := bus.AwaitOnce(VerbNotReading)
	bus.Dispatch(VerbNotReading, []byte(`{"ID":1}`))
	<-ch

	// A second dispatch with no new awaiter must not panic or deliver again.
	bus.Dispatch(VerbNotReading, []byte(`{"ID":2}`))
	select {
	case <-ch:
		t.Fatal("one-shot awaiter must not receive a second delivery")
	default:
	}
}
