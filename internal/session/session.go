// Package session implements the WebSocket session manager: connection
// lifecycle, the six-state connection state machine, decorrelated-jitter
// reconnection backoff, and the ping/pong heartbeat.
package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// State is one of the six legal connection states.
type State string

const (
	StateDisconnected  State = "disconnected"
	StateConnecting    State = "connecting"
	StateConnected     State = "connected"
	StateAuthenticated State = "authenticated"
	StateClosing       State = "closing"
	StateClosed        State = "closed"
)

// Close codes that suppress reconnection (normal closure, policy violation).
const (
	CloseNormal          = websocket.CloseNormalClosure  // 1000
	ClosePolicyViolation = websocket.ClosePolicyViolation // 1008
)

// Config configures a Session.
type Config struct {
	URL             string
	Header          http.Header
	DialTimeout     time.Duration
	Backoff         BackoffConfig
	Heartbeat       HeartbeatConfig
	Logger          *zap.Logger
}

// Session owns a single WebSocket connection, the reconnection state
// machine, its Backoff, and its Heartbeat. Inbound frames are delivered
// through a channel (Messages) rather than nested callback registration, so
// the acquisition flow can issue further commands from within its own read
// loop without re-entrancy hazards.
type Session struct {
	cfg    Config
	logger *zap.Logger

	backoff   *Backoff
	heartbeat *Heartbeat

	mu           sync.RWMutex
	state        State
	conn         *websocket.Conn
	writeMu      sync.Mutex
	shuttingDown bool
	generation   int // bumped on every connect attempt; guards stale readPump goroutines

	messages chan []byte

	onOpenMu sync.Mutex
	onOpen   func()

	reconnectTimer *time.Timer
}

// New creates a disconnected Session. Call Connect to open it.
func New(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	return &Session{
		cfg:       cfg,
		logger:    cfg.Logger,
		backoff:   NewBackoff(cfg.Backoff),
		heartbeat: NewHeartbeat(cfg.Heartbeat, cfg.Logger),
		state:     StateDisconnected,
		messages:  make(chan []byte, 64),
	}
}

// Messages returns the channel of inbound non-heartbeat frame payloads. The
// Router (C7) is expected to be the sole reader.
func (s *Session) Messages() <-chan []byte {
	return s.messages
}

// OnOpen registers the handler invoked exactly once per successful open,
// after the state has already transitioned to Connected. Only one handler
// may be registered; a second call replaces the first (mirrors spec's
// "register exactly one handler" contract — callers are expected to call
// this once, during construction).
func (s *Session) OnOpen(handler func()) {
	s.onOpenMu.Lock()
	s.onOpen = handler
	s.onOpenMu.Unlock()
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(new State) {
	s.mu.Lock()
	old := s.state
	s.state = new
	s.mu.Unlock()
	if old != new {
		s.logger.Debug("session: state transition", zap.String("from", string(old)), zap.String("to", string(new)))
	}
}

// Connect opens the WebSocket connection. Only valid from Disconnected or
// Closed; any other state is a no-op that returns an error.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected && s.state != StateClosed {
		cur := s.state
		s.mu.Unlock()
		return fmt.Errorf("session: connect invalid from state %s", cur)
	}
	s.shuttingDown = false
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	s.setState(StateConnecting)

	dialer := &websocket.Dialer{HandshakeTimeout: s.cfg.DialTimeout}
	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, s.cfg.Header)
	if err != nil {
		s.setState(StateDisconnected)
		s.scheduleReconnect(gen)
		return fmt.Errorf("session: dial %s: %w", s.cfg.URL, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	s.setState(StateConnected)
	s.backoff.Reset()
	s.heartbeat.Start(s.writeRaw, s.onHeartbeatTimeout)

	go s.readPump(conn, gen)

	// Open hook fires after the caller can already observe Connected.
	s.onOpenMu.Lock()
	hook := s.onOpen
	s.onOpenMu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

// Send enqueues a write. Returns false (without blocking on the network) if
// the socket is not currently Connected/Authenticated. There is no outbound
// queue by design — callers decide whether to retry a false return.
func (s *Session) Send(payload []byte) bool {
	s.mu.RLock()
	st := s.state
	conn := s.conn
	s.mu.RUnlock()

	if st != StateConnected && st != StateAuthenticated {
		return false
	}
	if conn == nil {
		return false
	}
	if err := s.writeRaw(payload); err != nil {
		s.logger.Warn("session: write failed", zap.Error(err))
		return false
	}
	return true
}

func (s *Session) writeRaw(payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("session: no connection")
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// MarkAuthenticated transitions Connected → Authenticated. Only the command
// facade's Login (gatewayworker) calls this, after a successful POST_LOGIN. From
// any other state it is a no-op with a logged warning.
func (s *Session) MarkAuthenticated() {
	s.mu.Lock()
	if s.state != StateConnected {
		cur := s.state
		s.mu.Unlock()
		s.logger.Warn("session: markAuthenticated ignored, not Connected", zap.String("state", string(cur)))
		return
	}
	s.state = StateAuthenticated
	s.mu.Unlock()
	s.logger.Debug("session: state transition", zap.String("from", string(StateConnected)), zap.String("to", string(StateAuthenticated)))
}

// Close performs a graceful, idempotent shutdown: suppresses reconnection,
// stops the heartbeat, transitions Closing → Closed, and sends a close
// frame with the given code/reason.
func (s *Session) Close(code int, reason string) {
	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		return
	}
	s.shuttingDown = true
	conn := s.conn
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	s.mu.Unlock()

	s.setState(StateClosing)
	s.heartbeat.Stop()

	if conn != nil {
		deadline := time.Now().Add(2 * time.Second)
		msg := websocket.FormatCloseMessage(code, reason)
		_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
		conn.Close()
	}

	s.setState(StateClosed)
}

// Terminate drops the connection immediately: no close frame, no
// reconnection attempt.
func (s *Session) Terminate() {
	s.mu.Lock()
	s.shuttingDown = true
	conn := s.conn
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	s.mu.Unlock()

	s.heartbeat.Stop()
	if conn != nil {
		conn.Close()
	}
	s.setState(StateClosed)
}

// IsShuttingDown reports whether Close/Terminate has been called.
func (s *Session) IsShuttingDown() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shuttingDown
}

func (s *Session) onHeartbeatTimeout() {
	s.logger.Warn("session: heartbeat timeout, terminating connection")
	s.mu.Lock()
	conn := s.conn
	gen := s.generation
	shuttingDown := s.shuttingDown
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	s.setState(StateClosed)
	if !shuttingDown {
		s.scheduleReconnect(gen)
	}
}

// readPump reads frames from conn until the socket closes, dispatching
// heartbeat pong/ping frames to the Heartbeat and everything else onto the
// Messages channel. Frames are processed in arrival order — the channel is
// the only hand-off point, so order is preserved end to end as long as the
// consumer drains it before reading the next value.
func (s *Session) readPump(conn *websocket.Conn, gen int) {
	var closeCode int = websocket.CloseAbnormalClosure
	defer func() {
		s.mu.Lock()
		stale := gen != s.generation
		if !stale {
			s.conn = nil
		}
		shuttingDown := s.shuttingDown
		s.mu.Unlock()
		if stale {
			return
		}

		s.heartbeat.Stop()

		if s.State() != StateClosed {
			s.setState(StateClosed)
		}

		if shuttingDown {
			return
		}
		if closeCode == CloseNormal || closeCode == ClosePolicyViolation {
			s.logger.Info("session: closed with non-reconnectable code", zap.Int("code", closeCode))
			return
		}
		s.scheduleReconnect(gen)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ce, ok := err.(*websocket.CloseError); ok {
				closeCode = ce.Code
			}
			return
		}

		if isPong, ok := IsHeartbeatFrame(data); ok {
			if isPong {
				s.heartbeat.OnPong()
			}
			continue
		}

		s.mu.RLock()
		shuttingDown := s.shuttingDown
		st := s.state
		s.mu.RUnlock()
		if shuttingDown || st == StateClosing {
			s.logger.Debug("session: dropping late frame during shutdown")
			continue
		}

		select {
		case s.messages <- data:
		default:
			s.logger.Warn("session: messages channel full, dropping frame")
		}
	}
}

func (s *Session) scheduleReconnect(gen int) {
	s.mu.Lock()
	if s.shuttingDown || gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.state = StateDisconnected
	delay := s.backoff.Next()
	s.mu.Unlock()

	s.logger.Info("session: scheduling reconnect", zap.Duration("delay", delay))

	timer := time.AfterFunc(delay, func() {
		s.mu.RLock()
		shuttingDown := s.shuttingDown
		s.mu.RUnlock()
		if shuttingDown {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DialTimeout+5*time.Second)
		defer cancel()
		if err := s.Connect(ctx); err != nil {
			s.logger.Warn("session: reconnect attempt failed", zap.Error(err))
		}
	})

	s.mu.Lock()
	s.reconnectTimer = timer
	s.mu.Unlock()
}
