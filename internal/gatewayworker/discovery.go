package gatewayworker

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/vibrowatch/control-plane/internal/wsproto"
)

// ErrNoSensors signals the graceful non-error termination named in §4.9:
// the gateway has no live sensors right now.
var ErrNoSensors = errors.New("gatewayworker: no sensors available")

// SensorEntry pairs a dictionary key from the GET_DYN_CONNECTED response
// with its decoded metadata, preserving the response's original key order
// (Go map iteration order is randomized, so a plain map can't honor the
// "first live sensor by iteration order" selection rule).
type SensorEntry struct {
	Key  string
	Meta wsproto.SensorMetadata
}

// DiscoverSensor sends GET_DYN_CONNECTED, validates each entry
// independently (bad entries are logged and skipped, not fatal), and
// selects one live sensor: the preferred serial if configured and live,
// otherwise the first live sensor in response order.
func DiscoverSensor(cmds *Commands, logger *zap.Logger, preferredSerial string) (wsproto.SensorMetadata, error) {
	raw, err := cmds.ListConnected()
	if err != nil {
		return wsproto.SensorMetadata{}, fmt.Errorf("gatewayworker: discover sensors: %w", err)
	}

	entries, err := parseOrderedSensors(raw, logger)
	if err != nil {
		return wsproto.SensorMetadata{}, fmt.Errorf("gatewayworker: parse sensor dictionary: %w", err)
	}

	live := make([]SensorEntry, 0, len(entries))
	for _, e := range entries {
		if e.Meta.IsLive() {
			live = append(live, e)
		}
	}
	if len(live) == 0 {
		return wsproto.SensorMetadata{}, ErrNoSensors
	}

	if preferredSerial != "" {
		for _, e := range live {
			if strconv.Itoa(e.Meta.Serial) == preferredSerial || e.Key == preferredSerial {
				return e.Meta, nil
			}
		}
	}
	return live[0].Meta, nil
}

// parseOrderedSensors decodes a {serial: metadata} JSON object while
// preserving key order, validating each entry independently.
func parseOrderedSensors(raw json.RawMessage, logger *zap.Logger) ([]SensorEntry, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected a JSON object")
	}

	var entries []SensorEntry
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := keyTok.(string)

		var valueRaw json.RawMessage
		if err := dec.Decode(&valueRaw); err != nil {
			return nil, fmt.Errorf("gatewayworker: malformed sensor dictionary at key %q: %w", key, err)
		}

		var meta wsproto.SensorMetadata
		if err := json.Unmarshal(valueRaw, &meta); err != nil {
			logger.Warn("gatewayworker: invalid sensor entry, skipping", zap.String("key", key), zap.Error(err))
			continue
		}
		entries = append(entries, SensorEntry{Key: key, Meta: meta})
	}
	return entries, nil
}
