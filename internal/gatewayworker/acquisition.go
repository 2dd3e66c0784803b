package gatewayworker

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/vibrowatch/control-plane/internal/wsproto"
)

const (
	readingStartedTimeout = 30 * time.Second
	temperatureTimeout     = 10 * time.Second
)

// Orchestrator implements the subscribe/trigger/gather/unsubscribe flow of
// §4.10, guaranteeing the critical ordering that prevents the dominant
// race: notification awaiters are registered before the triggering command
// is sent.
type Orchestrator struct {
	commands           *Commands
	bus                *wsproto.Bus
	sink               OutputSink
	logger             *zap.Logger
	acquisitionTimeout time.Duration
}

// NewOrchestrator wires an Orchestrator to its command facade, the
// notification bus it awaits on, and the sink its result is handed to.
func NewOrchestrator(commands *Commands, bus *wsproto.Bus, sink OutputSink, acquisitionTimeout time.Duration, logger *zap.Logger) *Orchestrator {
	if acquisitionTimeout <= 0 {
		acquisitionTimeout = DefaultWorkerConfig().AcquisitionTimeout
	}
	return &Orchestrator{commands: commands, bus: bus, sink: sink, acquisitionTimeout: acquisitionTimeout, logger: logger}
}

// Run executes one full acquisition against sensor and hands the composed
// Reading to the sink.
func (o *Orchestrator) Run(sensor wsproto.SensorMetadata) (*Reading, error) {
	if err := o.commands.Subscribe(); err != nil {
		return nil, fmt.Errorf("gatewayworker: subscribe: %w", err)
	}

	// Awaiters MUST be registered before TAKE_DYN_READING is sent — the
	// gateway can emit NOT_DYN_READING_STARTED before our own send call
	// returns.
	startedCh := o.bus.AwaitOnce(wsproto.VerbNotReadingStarted)
	readingCh := o.bus.AwaitOnce(wsproto.VerbNotReading)
	tempCh := o.bus.AwaitOnce(wsproto.VerbNotTemp)

	serial := strconv.Itoa(sensor.Serial)
	if err := o.commands.TakeReading(serial); err != nil {
		o.bus.CancelAwait(wsproto.VerbNotReadingStarted, startedCh)
		o.bus.CancelAwait(wsproto.VerbNotReading, readingCh)
		o.bus.CancelAwait(wsproto.VerbNotTemp, tempCh)
		return nil, fmt.Errorf("gatewayworker: take reading: %w", err)
	}

	startedRaw, err := awaitWithTimeout(o.bus, wsproto.VerbNotReadingStarted, startedCh, readingStartedTimeout)
	if err != nil {
		o.bus.CancelAwait(wsproto.VerbNotReading, readingCh)
		o.bus.CancelAwait(wsproto.VerbNotTemp, tempCh)
		return nil, err
	}

	var started wsproto.ReadingStartedPayload
	if err := json.Unmarshal(startedRaw, &started); err != nil {
		o.bus.CancelAwait(wsproto.VerbNotReading, readingCh)
		o.bus.CancelAwait(wsproto.VerbNotTemp, tempCh)
		return nil, fmt.Errorf("gatewayworker: malformed NOT_DYN_READING_STARTED: %w", err)
	}
	if !started.Success {
		o.bus.CancelAwait(wsproto.VerbNotReading, readingCh)
		o.bus.CancelAwait(wsproto.VerbNotTemp, tempCh)
		return nil, fmt.Errorf("gatewayworker: reading failed to start for sensor %s", serial)
	}

	readingRaw, err := awaitWithTimeout(o.bus, wsproto.VerbNotReading, readingCh, o.acquisitionTimeout)
	if err != nil {
		o.bus.CancelAwait(wsproto.VerbNotTemp, tempCh)
		return nil, err
	}

	var payload wsproto.ReadingPayload
	if err := json.Unmarshal(readingRaw, &payload); err != nil {
		return nil, fmt.Errorf("gatewayworker: malformed NOT_DYN_READING: %w", err)
	}

	x, err := ParseAxis(payload.X, sensor.Samples)
	if err != nil {
		return nil, fmt.Errorf("gatewayworker: waveform X: %w", err)
	}
	y, err := ParseAxis(payload.Y, sensor.Samples)
	if err != nil {
		return nil, fmt.Errorf("gatewayworker: waveform Y: %w", err)
	}
	z, err := ParseAxis(payload.Z, sensor.Samples)
	if err != nil {
		return nil, fmt.Errorf("gatewayworker: waveform Z: %w", err)
	}

	reading := Reading{
		Sensor: sensor,
		ID:     payload.ID,
		Serial: payload.Serial,
		Time:   payload.Time,
		X:      x,
		Y:      y,
		Z:      z,
	}

	// Temperature is optional and best-effort; a miss here is not a
	// failure of the acquisition.
	tempRaw, err := awaitWithTimeout(o.bus, wsproto.VerbNotTemp, tempCh, temperatureTimeout)
	if err != nil {
		o.logger.Debug("gatewayworker: temperature not received, proceeding without it", zap.Error(err))
	} else {
		var temp wsproto.TempPayload
		if err := json.Unmarshal(tempRaw, &temp); err == nil {
			t := temp.Temperature
			reading.Temperature = &t
		}
	}

	if err := o.sink.Display(reading); err != nil {
		o.logger.Warn("gatewayworker: output sink failed", zap.Error(err))
	}

	return &reading, nil
}

func awaitWithTimeout(bus *wsproto.Bus, verb string, ch <-chan []byte, timeout time.Duration) ([]byte, error) {
	select {
	case data := <-ch:
		return data, nil
	case <-time.After(timeout):
		bus.CancelAwait(verb, ch)
		return nil, fmt.Errorf("gatewayworker: %s timed out after %s", verb, timeout)
	}
}
