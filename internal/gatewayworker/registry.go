package gatewayworker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// GatewayRecord is the minimal shape the registry needs from a stored
// gateway row: enough to build a WorkerConfig. The REST/store layer is
// responsible for decrypting the credential before handing this to the
// registry.
type GatewayRecord struct {
	GatewayID       string
	URL             string
	LoginEmail      string
	LoginPassword   string
	PreferredSerial string
}

// Registry manages one Worker per registered gateway. Connections survive
// individual HTTP request lifetimes and are shared across concurrent
// handlers — grounded on the teacher's instance registry, generalized to
// this protocol's Worker instead of a generic RPC Client.
type Registry struct {
	mu      sync.RWMutex
	workers map[string]*Worker
	status  map[string]string

	logger *zap.Logger
	sink   OutputSink

	defaultCfg WorkerConfig

	// OnPermanentDisconnect is a caller-settable hook taking a gateway id.
	// The Registry never invokes it: sessions keep reconnecting with no
	// attempt limit, so no worker is ever abandoned.
	OnPermanentDisconnect func(gatewayID string)
}

// NewRegistry creates an empty Registry.
func NewRegistry(defaultCfg WorkerConfig, sink OutputSink, logger *zap.Logger) *Registry {
	return &Registry{
		workers:    make(map[string]*Worker),
		status:     make(map[string]string),
		defaultCfg: defaultCfg,
		sink:       sink,
		logger:     logger,
	}
}

// Connect starts a Worker for the given gateway. Any existing worker for
// the same id is stopped first.
func (r *Registry) Connect(ctx context.Context, rec GatewayRecord) error {
	r.mu.Lock()
	if existing, ok := r.workers[rec.GatewayID]; ok {
		r.mu.Unlock()
		existing.Stop()
		r.mu.Lock()
	}
	r.mu.Unlock()

	cfg := r.defaultCfg
	cfg.URL = rec.URL
	cfg.LoginEmail = rec.LoginEmail
	cfg.LoginPassword = rec.LoginPassword
	cfg.PreferredSerial = rec.PreferredSerial

	worker, err := NewWorker(cfg, r.sink, r.logger.With(zap.String("gatewayId", rec.GatewayID)))
	if err != nil {
		return fmt.Errorf("registry: build worker for %s: %w", rec.GatewayID, err)
	}

	r.mu.Lock()
	r.workers[rec.GatewayID] = worker
	r.status[rec.GatewayID] = "connecting"
	r.mu.Unlock()

	if err := worker.Start(ctx); err != nil {
		r.mu.Lock()
		delete(r.workers, rec.GatewayID)
		delete(r.status, rec.GatewayID)
		r.mu.Unlock()
		return fmt.Errorf("registry: connect %s: %w", rec.GatewayID, err)
	}

	r.mu.Lock()
	r.status[rec.GatewayID] = "connected"
	r.mu.Unlock()
	return nil
}

// Disconnect stops and removes the worker for a gateway.
func (r *Registry) Disconnect(gatewayID string) {
	r.mu.Lock()
	worker := r.workers[gatewayID]
	delete(r.workers, gatewayID)
	delete(r.status, gatewayID)
	r.mu.Unlock()

	if worker != nil {
		worker.Stop()
	}
}

// Get returns the Worker for a gateway, or nil if none is running.
func (r *Registry) Get(gatewayID string) *Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.workers[gatewayID]
}

// Status returns the last known connection status string for a gateway.
func (r *Registry) Status(gatewayID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.status[gatewayID]
	return s, ok
}

// ConnectedIDs lists gateways whose worker is currently Connected or
// Authenticated.
func (r *Registry) ConnectedIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.workers))
	for id, w := range r.workers {
		switch w.State() {
		case "connected", "authenticated":
			ids = append(ids, id)
		}
	}
	return ids
}

// DisconnectAll stops every running worker.
func (r *Registry) DisconnectAll() {
	r.mu.Lock()
	workers := make([]*Worker, 0, len(r.workers))
	for _, w := range r.workers {
		workers = append(workers, w)
	}
	r.workers = make(map[string]*Worker)
	r.status = make(map[string]string)
	r.mu.Unlock()

	for _, w := range workers {
		w.Stop()
	}
}

// maxConcurrentConnects bounds parallel dial attempts during Initialize,
// mirroring the teacher's bounded-concurrency startup fan-out.
const maxConcurrentConnects = 5

// Initialize connects every record in records concurrently, bounded
// to maxConcurrentConnects in flight. Individual connect failures are
// logged and do not abort the rest of the batch.
func (r *Registry) Initialize(ctx context.Context, records []GatewayRecord) {
	var wg sync.WaitGroup
	sem := make(chan struct{}, maxConcurrentConnects)

	for _, rec := range records {
		rec := rec
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			connCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			defer cancel()

			if err := r.Connect(connCtx, rec); err != nil {
				r.logger.Warn("registry: initial connect failed",
					zap.String("gatewayId", rec.GatewayID), zap.String("url", rec.URL), zap.Error(err))
			}
		}()
	}

	wg.Wait()
	r.logger.Info("registry: initialization complete",
		zap.Int("total", len(records)),
		zap.Int("connected", len(r.ConnectedIDs())),
	)
}
