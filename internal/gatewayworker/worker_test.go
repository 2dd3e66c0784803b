package gatewayworker

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vibrowatch/control-plane/internal/wsproto"
)

// TestWorker_TriggerReadingRecordsLastReading exercises TriggerReading
// directly against a fakeSender-driven Commands/Orchestrator pair, bypassing
// Start/session entirely, and checks that a successful acquisition is
// retained for Status to read back later via LastReading.
func TestWorker_TriggerReadingRecordsLastReading(t *testing.T) {
	x := "0.1,0.2,0.3,0.4"
	readingPayload, _ := json.Marshal(wsproto.ReadingPayload{ID: 7, Serial: "42", Time: "2024-01-01T00:00:00Z", X: x, Y: x, Z: x})
	startedPayload, _ := json.Marshal(wsproto.ReadingStartedPayload{Success: true, Serial: "42"})

	corr := wsproto.NewCorrelator(zap.NewNop())
	bus := wsproto.NewBus(zap.NewNop())
	sender := &fakeSender{
		onSend: func(frame *wsproto.Frame) {
			switch frame.Type {
			case wsproto.VerbGetConnected:
				go corr.HandleResponse(&wsproto.Frame{
					Type: wsproto.VerbRTNDyn,
					Data: json.RawMessage(`{"42":{"Serial":42,"Connected":1,"PartNum":"X","ReadRate":500,"Samples":4}}`),
				})
			case wsproto.VerbSubscribeChanges:
				ackRTNDyn(corr)
			case wsproto.VerbTakeReading:
				ackRTNDyn(corr)
				go func() {
					bus.Dispatch(wsproto.VerbNotReadingStarted, startedPayload)
					bus.Dispatch(wsproto.VerbNotReading, readingPayload)
				}()
			}
		},
	}
	cmds := NewCommands(sender, corr, time.Second, zap.NewNop())
	var out bytes.Buffer
	orch := NewOrchestrator(cmds, bus, NewStdoutSink(&out), time.Second, zap.NewNop())

	w := &Worker{
		cfg:      WorkerConfig{},
		logger:   zap.NewNop(),
		cmds:     cmds,
		orch:     orch,
		loggedIn: true,
	}

	if w.LastReading() != nil {
		t.Fatal("expected no last reading before any acquisition")
	}

	reading, err := w.TriggerReading()
	if err != nil {
		t.Fatalf("TriggerReading: %v", err)
	}
	if reading.ID != 7 {
		t.Fatalf("unexpected reading id: %d", reading.ID)
	}

	summary := w.LastReading()
	if summary == nil {
		t.Fatal("expected LastReading to be populated after a successful acquisition")
	}
	if summary.ReadingID != 7 || summary.SensorSerial != "42" || summary.SampleCount != 4 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestWorker_TriggerReadingFailsWhenNotLoggedIn(t *testing.T) {
	w := &Worker{cfg: WorkerConfig{}, logger: zap.NewNop()}
	if _, err := w.TriggerReading(); err == nil {
		t.Fatal("expected an error before login")
	}
}
