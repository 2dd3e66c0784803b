package gatewayworker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vibrowatch/control-plane/internal/session"
	"github.com/vibrowatch/control-plane/internal/wsproto"
)

// Worker runs the full client stack for one gateway: Session, Correlator,
// notification bus, Router, command facade, and acquisition orchestrator.
// One Worker is maintained per registered gateway by the Registry (C19).
type Worker struct {
	cfg    WorkerConfig
	logger *zap.Logger

	sess   *session.Session
	corr   *wsproto.Correlator
	bus    *wsproto.Bus
	router *wsproto.Router
	cmds   *Commands
	orch   *Orchestrator

	mu          sync.RWMutex
	loggedIn    bool
	lastSensor  *wsproto.SensorMetadata
	lastReading *ReadingSummary
	pumpCancel  context.CancelFunc
}

// NewWorker builds a Worker from a validated WorkerConfig. Call Start to
// open the connection.
func NewWorker(cfg WorkerConfig, sink OutputSink, logger *zap.Logger) (*Worker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = NewStdoutSink(nil)
	}

	sess := session.New(session.Config{
		URL:         cfg.URL,
		Header:      cfg.Header,
		DialTimeout: cfg.ConnectTimeout,
		Heartbeat: session.HeartbeatConfig{
			Interval:        cfg.HeartbeatInterval,
			ResponseTimeout: 5 * time.Second,
		},
		Logger: logger,
	})

	corr := wsproto.NewCorrelator(logger)
	bus := wsproto.NewBus(logger)
	router := wsproto.NewRouter(logger, corr, bus)
	cmds := NewCommands(sess, corr, cfg.CommandTimeout, logger)
	orch := NewOrchestrator(cmds, bus, sink, cfg.AcquisitionTimeout, logger)

	w := &Worker{cfg: cfg, logger: logger, sess: sess, corr: corr, bus: bus, router: router, cmds: cmds, orch: orch}

	sess.OnOpen(func() {
		if err := cmds.Login(cfg.LoginEmail, cfg.LoginPassword); err != nil {
			logger.Warn("gatewayworker: login failed", zap.Error(err))
			return
		}
		w.mu.Lock()
		w.loggedIn = true
		w.mu.Unlock()
		logger.Info("gatewayworker: authenticated", zap.String("url", cfg.URL))
	})

	return w, nil
}

// Start connects the session and begins pumping inbound frames to the
// Router.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.sess.Connect(ctx); err != nil {
		return err
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	w.mu.Lock()
	w.pumpCancel = cancel
	w.mu.Unlock()

	go w.pump(pumpCtx)
	return nil
}

func (w *Worker) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-w.sess.Messages():
			if !ok {
				return
			}
			w.router.Route(msg)
		}
	}
}

// Stop unsubscribes best-effort and closes the session with a normal close
// code, per the shutdown sequence in §5. corr.Shutdown runs first so that
// any command still waiting on a reply (including the Unsubscribe call
// below) fails immediately instead of blocking the shutdown grace period
// on an unresponsive gateway's CommandTimeout.
func (w *Worker) Stop() {
	w.corr.Shutdown()

	if err := w.cmds.Unsubscribe(); err != nil {
		w.logger.Warn("gatewayworker: unsubscribe during shutdown failed", zap.Error(err))
	}

	w.mu.Lock()
	if w.pumpCancel != nil {
		w.pumpCancel()
	}
	w.mu.Unlock()

	w.sess.Close(websocket.CloseNormalClosure, "shutdown")
}

// State reports the underlying session's connection state.
func (w *Worker) State() session.State {
	return w.sess.State()
}

// LastReading returns a summary of the most recent successful acquisition,
// or nil if this worker has never completed one.
func (w *Worker) LastReading() *ReadingSummary {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastReading
}

// TriggerReading discovers a live sensor afresh on every call and runs one
// full acquisition against it.
func (w *Worker) TriggerReading() (*Reading, error) {
	w.mu.RLock()
	loggedIn := w.loggedIn
	w.mu.RUnlock()
	if !loggedIn {
		return nil, fmt.Errorf("gatewayworker: not yet authenticated")
	}

	sensor, err := DiscoverSensor(w.cmds, w.logger, w.cfg.PreferredSerial)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.lastSensor = &sensor
	w.mu.Unlock()

	reading, err := w.orch.Run(sensor)
	if err != nil {
		return nil, err
	}

	summary := reading.Summarize()
	w.mu.Lock()
	w.lastReading = &summary
	w.mu.Unlock()

	return reading, nil
}
