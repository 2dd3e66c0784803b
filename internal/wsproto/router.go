package wsproto

import (
	"go.uber.org/zap"
)

// Router dispatches each inbound frame to the Correlator or the
// Notification bus by Type prefix. It never throws: decode and validation
// failures are logged and the frame is dropped.
type Router struct {
	logger     *zap.Logger
	correlator *Correlator
	bus        *Bus
}

// NewRouter wires a Router to its Correlator and Bus.
func NewRouter(logger *zap.Logger, correlator *Correlator, bus *Bus) *Router {
	return &Router{logger: logger, correlator: correlator, bus: bus}
}

// Route decodes and dispatches one raw inbound message. Heartbeat frames
// must be filtered out by the caller (Session) before reaching here — the
// Router only ever sees protocol verb frames.
func (r *Router) Route(raw []byte) {
	r.logger.Debug("wsproto: inbound frame", zap.ByteString("raw", truncate(raw, 200)))

	frame, ok := Decode(r.logger, raw)
	if !ok {
		return
	}

	switch {
	case IsResponse(frame.Type):
		r.correlator.HandleResponse(frame)
	case IsNotification(frame.Type):
		r.bus.Dispatch(frame.Type, frame.Data)
	default:
		r.logger.Warn("wsproto: frame with unrecognized verb prefix", zap.String("type", frame.Type))
	}
}
