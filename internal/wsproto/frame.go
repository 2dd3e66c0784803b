// Package wsproto implements the JSON-framed request/response/notification
// protocol spoken over the gateway WebSocket: frame codec, correlator,
// notification bus, and router.
package wsproto

import (
	"encoding/json"
	"strings"
)

// Frame is one JSON message across the WebSocket. Data's shape depends on
// Type; callers re-unmarshal it once the verb is known.
type Frame struct {
	Type          string          `json:"Type"`
	From          string          `json:"From"`
	To            string          `json:"To,omitempty"`
	Target        string          `json:"Target,omitempty"`
	CorrelationId string          `json:"CorrelationId,omitempty"`
	Data          json.RawMessage `json:"Data,omitempty"`
}

// Destination returns To if set, else Target — the gateway uses To on
// outbound frames and Target on inbound ones.
func (f Frame) Destination() string {
	if f.To != "" {
		return f.To
	}
	return f.Target
}

const (
	prefixPost = "POST_"
	prefixGet  = "GET_"
	prefixTake = "TAKE_"
	prefixRTN  = "RTN_"
	prefixNOT  = "NOT_"
)

// IsCommand reports whether verb is an outbound command (POST_/GET_/TAKE_).
func IsCommand(verb string) bool {
	return strings.HasPrefix(verb, prefixPost) ||
		strings.HasPrefix(verb, prefixGet) ||
		strings.HasPrefix(verb, prefixTake)
}

// IsResponse reports whether verb is a synchronous response (RTN_*).
func IsResponse(verb string) bool {
	return strings.HasPrefix(verb, prefixRTN)
}

// IsNotification reports whether verb is an asynchronous push (NOT_*).
func IsNotification(verb string) bool {
	return strings.HasPrefix(verb, prefixNOT)
}

// Verbs used by the command facade (C8) and acquisition orchestrator (C10).
const (
	VerbLogin            = "POST_LOGIN"
	VerbSubscribeChanges  = "POST_SUB_CHANGES"
	VerbUnsubscribeChanges = "POST_UNSUB_CHANGES"
	VerbGetConnected      = "GET_DYN_CONNECTED"
	VerbTakeReading       = "TAKE_DYN_READING"

	VerbErr = "RTN_ERR"
	// VerbRTNDyn is the generic RTN_DYN response verb; the Correlator knows
	// the originating command, so Data is re-decoded per call site rather
	// than through a single open record (see Design Notes on tagged
	// variants).
	VerbRTNDyn = "RTN_DYN"

	VerbNotReadingStarted = "NOT_DYN_READING_STARTED"
	VerbNotReading        = "NOT_DYN_READING"
	VerbNotTemp           = "NOT_DYN_TEMP"
)

// ErrPayload is the Data shape of an RTN_ERR frame. The source alternates
// between treating Attempt as a verb name and as a retry counter; it is
// surfaced as-is without inferring retry semantics.
type ErrPayload struct {
	Attempt json.RawMessage `json:"Attempt"`
	Error   string          `json:"Error"`
}

// SensorMetadata describes one attached sensor. Unknown fields are
// preserved via Extra so future firmware additions don't break discovery.
type SensorMetadata struct {
	Serial      int    `json:"Serial"`
	PartNum     string `json:"PartNum"`
	ReadRate    int    `json:"ReadRate"`
	Samples     int    `json:"Samples"`
	Connected   int    `json:"Connected"`
	Name        string `json:"Name,omitempty"`
	AccessPoint string `json:"AccessPoint,omitempty"`
	GMode       int    `json:"GMode,omitempty"`
	FreqMode    int    `json:"FreqMode,omitempty"`
	ReadPeriod  int    `json:"ReadPeriod,omitempty"`
	HwVer       string `json:"HwVer,omitempty"`
	FmVer       string `json:"FmVer,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// IsLive reports the Connected==1 invariant.
func (s SensorMetadata) IsLive() bool {
	return s.Connected == 1
}

// UnmarshalJSON decodes known fields strictly and retains unrecognized keys
// in Extra, satisfying the forward-compatible unknown-field policy of §4.4.
func (s *SensorMetadata) UnmarshalJSON(data []byte) error {
	type known SensorMetadata
	var k known
	if err := json.Unmarshal(data, &k); err != nil {
		return err
	}
	*s = SensorMetadata(k)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	knownKeys := map[string]bool{
		"Serial": true, "PartNum": true, "ReadRate": true, "Samples": true,
		"Connected": true, "Name": true, "AccessPoint": true, "GMode": true,
		"FreqMode": true, "ReadPeriod": true, "HwVer": true, "FmVer": true,
	}
	s.Extra = make(map[string]json.RawMessage)
	for k, v := range raw {
		if !knownKeys[k] {
			s.Extra[k] = v
		}
	}
	return nil
}

// ReadingStartedPayload is NOT_DYN_READING_STARTED's Data.
type ReadingStartedPayload struct {
	Success bool   `json:"Success"`
	Serial  string `json:"Serial"`
}

// ReadingPayload is NOT_DYN_READING's Data: the raw, still-encoded axes.
type ReadingPayload struct {
	ID     int    `json:"ID"`
	Serial string `json:"Serial"`
	Time   string `json:"Time"`
	X      string `json:"X"`
	Y      string `json:"Y"`
	Z      string `json:"Z"`
}

// TempPayload is NOT_DYN_TEMP's Data.
type TempPayload struct {
	Serial      string  `json:"Serial"`
	Temperature float64 `json:"Temperature"`
}
