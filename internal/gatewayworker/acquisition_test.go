package gatewayworker

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vibrowatch/control-plane/internal/wsproto"
)

// fakeSender intercepts outbound frames. Tests use onSend to simulate
// gateway behavior synchronously from within Send, before Send returns —
// this is what makes the awaiter-before-send ordering test meaningful: if
// the orchestrator registered its awaiters after sending, the dispatch
// below would race ahead of registration and the notifications would be
// silently dropped (logged at debug, no recipient).
type fakeSender struct {
	onSend func(frame *wsproto.Frame)
}

func (f *fakeSender) Send(payload []byte) bool {
	if f.onSend != nil {
		var frame wsproto.Frame
		if err := json.Unmarshal(payload, &frame); err == nil {
			f.onSend(&frame)
		}
	}
	return true
}

func (f *fakeSender) MarkAuthenticated() {}

func ackRTNDyn(corr *wsproto.Correlator) {
	go corr.HandleResponse(&wsproto.Frame{Type: wsproto.VerbRTNDyn, Data: json.RawMessage(`{}`)})
}

func TestOrchestrator_AwaitersRegisteredBeforeTakeReadingSend(t *testing.T) {
	sensor := wsproto.SensorMetadata{Serial: 123, Samples: 4, Connected: 1}

	x := "0.1,0.2,0.3,0.4"
	readingPayload, _ := json.Marshal(wsproto.ReadingPayload{ID: 1, Serial: "123", Time: "t", X: x, Y: x, Z: x})
	startedPayload, _ := json.Marshal(wsproto.ReadingStartedPayload{Success: true, Serial: "123"})

	corr := wsproto.NewCorrelator(zap.NewNop())
	bus := wsproto.NewBus(zap.NewNop())

	sender := &fakeSender{
		onSend: func(frame *wsproto.Frame) {
			switch frame.Type {
			case wsproto.VerbSubscribeChanges:
				ackRTNDyn(corr)
			case wsproto.VerbTakeReading:
				ackRTNDyn(corr)
				// Fired from within the send call — only delivered correctly
				// if the orchestrator already registered its awaiters.
				go func() {
					bus.Dispatch(wsproto.VerbNotReadingStarted, startedPayload)
					bus.Dispatch(wsproto.VerbNotReading, readingPayload)
				}()
			}
		},
	}
	cmds := NewCommands(sender, corr, time.Second, zap.NewNop())
	var buf bytes.Buffer
	orch := NewOrchestrator(cmds, bus, NewStdoutSink(&buf), time.Second, zap.NewNop())

	reading, err := orch.Run(sensor)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reading.ID != 1 || len(reading.X) != 4 {
		t.Fatalf("unexpected reading: %+v", reading)
	}
}

func TestOrchestrator_StartFailureNamesSerial(t *testing.T) {
	sensor := wsproto.SensorMetadata{Serial: 77, Samples: 4, Connected: 1}
	startedPayload, _ := json.Marshal(wsproto.ReadingStartedPayload{Success: false, Serial: "77"})

	corr := wsproto.NewCorrelator(zap.NewNop())
	bus := wsproto.NewBus(zap.NewNop())
	sender := &fakeSender{
		onSend: func(frame *wsproto.Frame) {
			switch frame.Type {
			case wsproto.VerbSubscribeChanges:
				ackRTNDyn(corr)
			case wsproto.VerbTakeReading:
				ackRTNDyn(corr)
				go bus.Dispatch(wsproto.VerbNotReadingStarted, startedPayload)
			}
		},
	}
	cmds := NewCommands(sender, corr, time.Second, zap.NewNop())
	var buf bytes.Buffer
	orch := NewOrchestrator(cmds, bus, NewStdoutSink(&buf), time.Second, zap.NewNop())

	_, err := orch.Run(sensor)
	if err == nil {
		t.Fatal("expected start-failure error naming the serial")
	}
	if !strings.Contains(err.Error(), "77") {
		t.Fatalf("expected error to name serial 77, got %q", err.Error())
	}
}

func TestDiscoverSensor_NoLiveSensorsReturnsGracefulError(t *testing.T) {
	corr := wsproto.NewCorrelator(zap.NewNop())
	sender := &fakeSender{
		onSend: func(frame *wsproto.Frame) {
			go corr.HandleResponse(&wsproto.Frame{
				Type: wsproto.VerbRTNDyn,
				Data: json.RawMessage(`{"123":{"Serial":123,"Connected":0,"PartNum":"X","ReadRate":500,"Samples":1024}}`),
			})
		},
	}
	cmds := NewCommands(sender, corr, time.Second, zap.NewNop())

	_, err := DiscoverSensor(cmds, zap.NewNop(), "")
	if err != ErrNoSensors {
		t.Fatalf("expected ErrNoSensors, got %v", err)
	}
}

func TestDiscoverSensor_PrefersConfiguredSerial(t *testing.T) {
	corr := wsproto.NewCorrelator(zap.NewNop())
	sender := &fakeSender{
		onSend: func(frame *wsproto.Frame) {
			go corr.HandleResponse(&wsproto.Frame{
				Type: wsproto.VerbRTNDyn,
				Data: json.RawMessage(`{
					"1":{"Serial":1,"Connected":1,"PartNum":"A","ReadRate":500,"Samples":1024},
					"2":{"Serial":2,"Connected":1,"PartNum":"B","ReadRate":500,"Samples":1024}
				}`),
			})
		},
	}
	cmds := NewCommands(sender, corr, time.Second, zap.NewNop())

	sensor, err := DiscoverSensor(cmds, zap.NewNop(), "2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sensor.Serial != 2 {
		t.Fatalf("expected preferred serial 2, got %d", sensor.Serial)
	}
}

func TestDiscoverSensor_FirstLiveByResponseOrderWhenNoPreference(t *testing.T) {
	corr := wsproto.NewCorrelator(zap.NewNop())
	sender := &fakeSender{
		onSend: func(frame *wsproto.Frame) {
			go corr.HandleResponse(&wsproto.Frame{
				Type: wsproto.VerbRTNDyn,
				Data: json.RawMessage(`{
					"9":{"Serial":9,"Connected":0,"PartNum":"A","ReadRate":500,"Samples":1024},
					"5":{"Serial":5,"Connected":1,"PartNum":"B","ReadRate":500,"Samples":1024}
				}`),
			})
		},
	}
	cmds := NewCommands(sender, corr, time.Second, zap.NewNop())

	sensor, err := DiscoverSensor(cmds, zap.NewNop(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sensor.Serial != 5 {
		t.Fatalf("expected the only live sensor (5), got %d", sensor.Serial)
	}
}
