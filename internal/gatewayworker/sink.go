package gatewayworker

import (
	"fmt"
	"io"
	"os"

	"github.com/vibrowatch/control-plane/internal/wsproto"
)

// previewSamples is how many leading samples per axis the sink prints.
const previewSamples = 10

// Reading is the composed result of one acquisition: metadata, the three
// parsed waveform axes, and an optional temperature.
type Reading struct {
	Sensor      wsproto.SensorMetadata
	ID          int
	Serial      string
	Time        string
	X, Y, Z     []float64
	Temperature *float64
}

// OutputSink presents a completed Reading. The contract is the ordering
// and set of fields; the medium is a policy (stdout today).
type OutputSink interface {
	Display(r Reading) error
}

// ReadingSummary is the condensed shape of a Reading the REST status route
// surfaces — enough to tell an operator a gateway is producing data without
// shipping full waveform samples over the management API.
type ReadingSummary struct {
	SensorSerial string   `json:"sensorSerial"`
	ReadingID    int      `json:"readingId"`
	Time         string   `json:"time"`
	SampleCount  int      `json:"sampleCount"`
	Temperature  *float64 `json:"temperature"`
}

// Summarize condenses a Reading down to its ReadingSummary.
func (r Reading) Summarize() ReadingSummary {
	return ReadingSummary{
		SensorSerial: r.Serial,
		ReadingID:    r.ID,
		Time:         r.Time,
		SampleCount:  len(r.X),
		Temperature:  r.Temperature,
	}
}

// StdoutSink writes a human-readable summary to an io.Writer (os.Stdout by
// default).
type StdoutSink struct {
	w io.Writer
}

// NewStdoutSink creates a StdoutSink writing to w, or os.Stdout if w is nil.
func NewStdoutSink(w io.Writer) *StdoutSink {
	if w == nil {
		w = os.Stdout
	}
	return &StdoutSink{w: w}
}

// Display prints sensor identity, reading identity/time, per-axis sample
// counts and min/max/mean, the first previewSamples samples per axis, and
// the optional temperature.
func (s *StdoutSink) Display(r Reading) error {
	fmt.Fprintf(s.w, "Sensor %d (%s) — reading %d at %s\n", r.Sensor.Serial, r.Sensor.PartNum, r.ID, r.Time)
	fmt.Fprintf(s.w, "  serial=%s samples: x=%d y=%d z=%d\n", r.Serial, len(r.X), len(r.Y), len(r.Z))

	axes := [...]struct {
		name   string
		values []float64
	}{
		{"X", r.X},
		{"Y", r.Y},
		{"Z", r.Z},
	}
	for _, axis := range axes {
		stats := Stats(axis.values)
		fmt.Fprintf(s.w, "  %s: min=%.4f max=%.4f mean=%.4f\n", axis.name, stats.Min, stats.Max, stats.Mean)
	}

	fmt.Fprintf(s.w, "  X[:%d]=%v\n", previewLen(r.X), previewOf(r.X))
	fmt.Fprintf(s.w, "  Y[:%d]=%v\n", previewLen(r.Y), previewOf(r.Y))
	fmt.Fprintf(s.w, "  Z[:%d]=%v\n", previewLen(r.Z), previewOf(r.Z))

	if r.Temperature != nil {
		fmt.Fprintf(s.w, "  temperature=%.2f\n", *r.Temperature)
	} else {
		fmt.Fprintln(s.w, "  temperature=(not received)")
	}
	return nil
}

func previewLen(values []float64) int {
	if len(values) < previewSamples {
		return len(values)
	}
	return previewSamples
}

func previewOf(values []float64) []float64 {
	return values[:previewLen(values)]
}
