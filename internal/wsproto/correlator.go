package wsproto

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout is the per-call deadline used when a call site does not
// override it.
const DefaultTimeout = 30 * time.Second

// Result is what a PendingCall resolves to: the verb-shaped Data on
// success, or an error (RTN_ERR, timeout, or shutdown).
type Result struct {
	Data json.RawMessage
	Err  error
}

type pendingCall struct {
	verb     string
	sentAt   time.Time
	resultCh chan Result
	timer    *time.Timer
}

// MatchStrategy resolves an inbound response with no recognized
// correlation id to a pending call id. FIFO is correct only if the gateway
// processes and responds to commands in send order — whether that holds
// for every command pair is an open question (spec.md §9), so the matcher
// is kept pluggable rather than hardcoded.
type MatchStrategy interface {
	// Resolve returns the pending correlation id order considers the best
	// fallback match, or "" if none apply. order is the still-pending ids
	// in FIFO (oldest-first) order.
	Resolve(order []string) string
}

// FIFOMatchStrategy matches the oldest pending call — the default, and the
// only strategy the observed gateway's behavior is known to support.
type FIFOMatchStrategy struct{}

// Resolve returns the oldest pending id.
func (FIFOMatchStrategy) Resolve(order []string) string {
	if len(order) == 0 {
		return ""
	}
	return order[0]
}

// Correlator matches outbound commands to their eventual RTN_ frame,
// falling back to a MatchStrategy (FIFO by default) when the gateway drops
// the correlation id on the return path. The pending map has exactly one
// owner; external code only calls Send and HandleResponse.
type Correlator struct {
	logger  *zap.Logger
	matcher MatchStrategy

	mu       sync.Mutex
	pending  map[string]*pendingCall
	order    []string // FIFO order of still-pending correlation ids
	shutdown bool
}

// NewCorrelator creates an empty Correlator using FIFOMatchStrategy.
func NewCorrelator(logger *zap.Logger) *Correlator {
	return NewCorrelatorWithMatcher(logger, FIFOMatchStrategy{})
}

// NewCorrelatorWithMatcher creates an empty Correlator with a custom
// fallback MatchStrategy.
func NewCorrelatorWithMatcher(logger *zap.Logger, matcher MatchStrategy) *Correlator {
	return &Correlator{
		logger:  logger,
		matcher: matcher,
		pending: make(map[string]*pendingCall),
	}
}

// Send assigns a correlation id, encodes the frame, and hands it to send.
// If send reports false (socket not open), the call fails immediately with
// no PendingCall created — there is no outbound queue by design. Otherwise
// it blocks until the response arrives, the per-call timeout fires, or
// Shutdown is called.
func (c *Correlator) Send(verb, from, to string, data any, timeout time.Duration, send func([]byte) bool) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	id := newCorrelationID()
	payload, err := Encode(verb, from, to, id, data)
	if err != nil {
		return nil, err
	}

	pc := &pendingCall{
		verb:     verb,
		sentAt:   time.Now(),
		resultCh: make(chan Result, 1),
	}

	// pc.timer is assigned in the same critical section that publishes pc
	// into the pending map, before HandleResponse on another goroutine can
	// possibly observe pc at all. That gives every later read of pc.timer
	// (in remove, always taken under c.mu) a happens-before edge against
	// this write, instead of racing a write in this goroutine against a
	// read in the response-handling goroutine.
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return nil, fmt.Errorf("wsproto: %s rejected, correlator shut down", verb)
	}
	c.pending[id] = pc
	c.order = append(c.order, id)
	pc.timer = time.AfterFunc(timeout, func() {
		c.complete(id, Result{Err: fmt.Errorf("wsproto: %s timed out after %s", verb, timeout)})
	})
	c.mu.Unlock()

	if ok := send(payload); !ok {
		c.remove(id)
		return nil, fmt.Errorf("wsproto: %s rejected, socket not open", verb)
	}

	result := <-pc.resultCh
	return result.Data, result.Err
}

// HandleResponse routes one inbound RTN_ frame. Unmatched responses (no
// correlation id hit, no pending calls left for FIFO fallback) are logged
// and dropped without side effects.
func (c *Correlator) HandleResponse(frame *Frame) {
	id := c.resolveID(frame.CorrelationId)
	if id == "" {
		c.logger.Debug("wsproto: unmatched response, no pending call", zap.String("type", frame.Type))
		return
	}

	var result Result
	if frame.Type == VerbErr {
		var errPayload ErrPayload
		if err := json.Unmarshal(frame.Data, &errPayload); err != nil {
			result = Result{Err: fmt.Errorf("wsproto: malformed RTN_ERR: %w", err)}
		} else {
			result = Result{Err: fmt.Errorf("wsproto: gateway error (attempt=%s): %s", string(errPayload.Attempt), errPayload.Error)}
		}
	} else {
		result = Result{Data: frame.Data}
	}

	c.complete(id, result)
}

// resolveID finds the correlation id to complete: an exact match if
// present, otherwise the oldest pending call (FIFO fallback).
func (c *Correlator) resolveID(correlationID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if correlationID != "" {
		if _, ok := c.pending[correlationID]; ok {
			return correlationID
		}
		c.logger.Debug("wsproto: correlation id not found, falling back to FIFO", zap.String("correlationId", correlationID))
	}

	return c.matcher.Resolve(c.order)
}

// complete performs the atomic map-delete-and-take that is the single gate
// for completing a PendingCall exactly once. Whichever of {response,
// deadline, shutdown} calls this first wins; later callers see a miss and
// are logged by their caller.
func (c *Correlator) complete(id string, result Result) {
	pc := c.remove(id)
	if pc == nil {
		c.logger.Debug("wsproto: late completion for unknown correlation id", zap.String("correlationId", id))
		return
	}
	pc.resultCh <- result
}

// remove deletes id from the pending set and stops its timer, all under
// c.mu — pc.timer is never read or written outside this lock once Send has
// published it.
func (c *Correlator) remove(id string) *pendingCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	pc, ok := c.pending[id]
	if !ok {
		return nil
	}
	delete(c.pending, id)
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	if pc.timer != nil {
		pc.timer.Stop()
	}
	return pc
}

// Shutdown completes every still-pending call with a shutdown error and
// marks the correlator closed so that any Send afterward — including one
// already in flight past the shutdown flag check — fails immediately
// instead of blocking for its full timeout. Safe to call more than once.
func (c *Correlator) Shutdown() {
	c.mu.Lock()
	c.shutdown = true
	ids := make([]string, len(c.order))
	copy(ids, c.order)
	c.mu.Unlock()

	for _, id := range ids {
		c.complete(id, Result{Err: fmt.Errorf("wsproto: shutting down")})
	}
}

// PendingCount reports the number of in-flight calls, for observability.
func (c *Correlator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func newCorrelationID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
