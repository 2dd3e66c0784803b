package session

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HeartbeatConfig configures the liveness probe.
type HeartbeatConfig struct {
	Interval        time.Duration
	ResponseTimeout time.Duration
}

// DefaultHeartbeatConfig matches the defaults: interval 30s, timeout 5s.
func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		Interval:        30 * time.Second,
		ResponseTimeout: 5 * time.Second,
	}
}

type pingFrame struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// Heartbeat sends periodic "ping" frames out-of-band from the protocol verbs
// and arms a response deadline after each send. A received "pong" cancels
// the armed deadline. If the deadline fires, the timeout hook is invoked
// exactly once and the heartbeat stops.
type Heartbeat struct {
	cfg    HeartbeatConfig
	logger *zap.Logger

	mu       sync.Mutex
	running  bool
	ticker   *time.Ticker
	deadline *time.Timer
	stopCh   chan struct{}

	send    func([]byte) error
	onTimeout func()
}

// NewHeartbeat creates a Heartbeat. Call Start to begin sending pings.
func NewHeartbeat(cfg HeartbeatConfig, logger *zap.Logger) *Heartbeat {
	def := DefaultHeartbeatConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = def.ResponseTimeout
	}
	return &Heartbeat{cfg: cfg, logger: logger}
}

// Start begins sending ping frames every interval via send, and invokes
// onTimeout once (then stops) if a pong is not observed within
// responseTimeout of a ping.
func (h *Heartbeat) Start(send func([]byte) error, onTimeout func()) {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.send = send
	h.onTimeout = onTimeout
	h.ticker = time.NewTicker(h.cfg.Interval)
	h.stopCh = make(chan struct{})
	ticker := h.ticker
	stopCh := h.stopCh
	h.mu.Unlock()

	go func() {
		for {
			select {
			case <-ticker.C:
				h.sendPing()
			case <-stopCh:
				return
			}
		}
	}()
}

func (h *Heartbeat) sendPing() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	send := h.send
	h.mu.Unlock()

	frame := pingFrame{Type: "ping", Timestamp: time.Now().UnixMilli()}
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	if err := send(payload); err != nil {
		h.logger.Warn("heartbeat: failed to send ping", zap.Error(err))
		return
	}
	h.armDeadline()
}

func (h *Heartbeat) armDeadline() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	if h.deadline != nil {
		// A ping is still awaiting its pong; keep that deadline running.
		return
	}
	h.deadline = time.AfterFunc(h.cfg.ResponseTimeout, func() {
		h.fireTimeout()
	})
}

func (h *Heartbeat) fireTimeout() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	onTimeout := h.onTimeout
	h.mu.Unlock()

	h.logger.Warn("heartbeat: no pong before deadline")
	h.Stop()
	if onTimeout != nil {
		onTimeout()
	}
}

// OnPong cancels the armed response deadline. Called by the Session when a
// {"type":"pong"} frame arrives.
func (h *Heartbeat) OnPong() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.deadline != nil {
		h.deadline.Stop()
		h.deadline = nil
	}
}

// Stop cancels both timers. Idempotent — safe to call any number of times.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	h.running = false
	if h.ticker != nil {
		h.ticker.Stop()
	}
	if h.deadline != nil {
		h.deadline.Stop()
		h.deadline = nil
	}
	if h.stopCh != nil {
		close(h.stopCh)
		h.stopCh = nil
	}
}

// IsHeartbeatFrame reports whether raw is a heartbeat ping/pong frame (the
// lowercase "type" key distinguishes it from protocol verb frames, which use
// uppercase "Type").
func IsHeartbeatFrame(raw []byte) (isPong bool, ok bool) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false, false
	}
	switch probe.Type {
	case "pong":
		return true, true
	case "ping":
		return false, true
	default:
		return false, false
	}
}
