package gatewayworker

import (
	"encoding/base64"
	"encoding/binary"
	"math"
	"testing"
)

func approxEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-9 {
			return false
		}
	}
	return true
}

func TestParseAxis_ThreeEncodingsEquivalent(t *testing.T) {
	expected := []float64{0.1, 0.2, 0.3, 0.4}

	csv := "0.1,0.2,0.3,0.4"
	jsonArr := "[0.1,0.2,0.3,0.4]"

	raw16 := []int16{100, 200, 300, 400}
	buf := make([]byte, len(raw16)*2)
	for i, v := range raw16 {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	b64 := base64.StdEncoding.EncodeToString(buf)

	for name, input := range map[string]string{"csv": csv, "json": jsonArr, "base64": b64} {
		values, err := ParseAxis(input, 4)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if !approxEqual(values, expected) {
			t.Fatalf("%s: expected %v, got %v", name, expected, values)
		}
	}
}

func TestParseAxis_AllStrategiesFail(t *testing.T) {
	_, err := ParseAxis("not-a-valid-anything !!", 4)
	if err == nil {
		t.Fatal("expected error when no strategy matches")
	}
}

func TestParseAxis_WrongSampleCountRejected(t *testing.T) {
	_, err := ParseAxis("0.1,0.2,0.3", 4)
	if err == nil {
		t.Fatal("expected error on sample-count mismatch")
	}
}

func TestParseAxis_OutOfRangeRejected(t *testing.T) {
	_, err := ParseAxis("0.1,500,0.3,0.4", 4)
	if err == nil {
		t.Fatal("expected error for sample exceeding |v|<=200")
	}
}

func TestStats_MinMaxMean(t *testing.T) {
	s := Stats([]float64{1, 2, 3, 4, 5})
	if s.Min != 1 || s.Max != 5 || s.Mean != 3 {
		t.Fatalf("unexpected stats: %+v", s)
	}
}

func TestStats_Empty(t *testing.T) {
	s := Stats(nil)
	if s != (AxisStats{}) {
		t.Fatalf("expected zero value for empty input, got %+v", s)
	}
}
