package wsproto

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Decode parses raw bytes into a Frame. It rejects non-JSON and frames
// missing a string Type, then performs light structural validation against
// the RTN_/NOT_ shape it claims to be. On any failure it logs and returns a
// nil frame with ok=false — callers must never treat a decode failure as
// fatal (the Router never throws).
func Decode(logger *zap.Logger, raw []byte) (frame *Frame, ok bool) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		logger.Warn("wsproto: dropping non-JSON frame", zap.Error(err), zap.ByteString("raw", truncate(raw, 200)))
		return nil, false
	}
	if f.Type == "" {
		logger.Warn("wsproto: dropping frame with empty Type", zap.ByteString("raw", truncate(raw, 200)))
		return nil, false
	}

	if IsResponse(f.Type) || IsNotification(f.Type) {
		if err := validateShape(f); err != nil {
			logger.Warn("wsproto: frame failed schema validation", zap.String("type", f.Type), zap.Error(err))
			return nil, false
		}
	}

	return &f, true
}

// validateShape applies the minimal structural checks the registry can make
// without knowing the originating command: RTN_ERR must carry an Error
// string, notifications must carry non-null Data.
func validateShape(f Frame) error {
	switch f.Type {
	case VerbErr:
		var p ErrPayload
		if len(f.Data) == 0 {
			return fmt.Errorf("RTN_ERR missing Data")
		}
		if err := json.Unmarshal(f.Data, &p); err != nil {
			return fmt.Errorf("RTN_ERR: %w", err)
		}
		if p.Error == "" {
			return fmt.Errorf("RTN_ERR missing Error field")
		}
		return nil
	default:
		if IsNotification(f.Type) && len(f.Data) == 0 {
			return fmt.Errorf("%s missing Data", f.Type)
		}
		return nil
	}
}

// Encode serializes an outbound command frame, assigning the supplied
// correlation id.
func Encode(verb, from, to, correlationID string, data any) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("wsproto: marshal data for %s: %w", verb, err)
		}
		raw = b
	}
	f := Frame{
		Type:          verb,
		From:          from,
		To:            to,
		CorrelationId: correlationID,
		Data:          raw,
	}
	return json.Marshal(f)
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
