package gatewayworker

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vibrowatch/control-plane/internal/wsproto"
)

// Sender is the subset of Session's contract Commands needs: a
// non-blocking write that reports whether the socket was open. Accepting
// the interface rather than *session.Session lets command construction be
// tested without a live WebSocket.
type Sender interface {
	Send(payload []byte) bool
	MarkAuthenticated()
}

// Commands exposes one operation per protocol verb, per §4.8. Every send
// uses From="UI", To="SERV"; only Login uses a shortened 10s deadline.
type Commands struct {
	sess   Sender
	corr   *wsproto.Correlator
	logger *zap.Logger

	commandTimeout time.Duration

	subscribedMu sync.Mutex
	subscribed   bool
}

// NewCommands wires a Commands facade to the session it sends on and the
// correlator that matches its responses.
func NewCommands(sess Sender, corr *wsproto.Correlator, commandTimeout time.Duration, logger *zap.Logger) *Commands {
	return &Commands{sess: sess, corr: corr, logger: logger, commandTimeout: commandTimeout}
}

func (c *Commands) send(verb string, data any, timeout time.Duration) (json.RawMessage, error) {
	return c.corr.Send(verb, "UI", "SERV", data, timeout, c.sess.Send)
}

type loginData struct {
	Email    string `json:"Email"`
	Password string `json:"Password"`
}

// Login sends POST_LOGIN with a 10s deadline and marks the session
// Authenticated on success. Debug logs of outbound frames must never
// include Password — this method itself never logs the frame it builds.
func (c *Commands) Login(email, password string) error {
	_, err := c.send(wsproto.VerbLogin, loginData{Email: email, Password: password}, 10*time.Second)
	if err != nil {
		return fmt.Errorf("gatewayworker: login: %w", err)
	}
	c.sess.MarkAuthenticated()
	return nil
}

// Subscribe sends POST_SUB_CHANGES at most once per connection — a second
// call is a no-op, satisfying the idempotence law in §8.
func (c *Commands) Subscribe() error {
	c.subscribedMu.Lock()
	if c.subscribed {
		c.subscribedMu.Unlock()
		return nil
	}
	c.subscribed = true
	c.subscribedMu.Unlock()

	_, err := c.send(wsproto.VerbSubscribeChanges, nil, c.commandTimeout)
	if err != nil {
		c.subscribedMu.Lock()
		c.subscribed = false
		c.subscribedMu.Unlock()
	}
	return err
}

// Unsubscribe sends POST_UNSUB_CHANGES if currently subscribed. Called on
// shutdown; errors are logged by the caller, not raised.
func (c *Commands) Unsubscribe() error {
	c.subscribedMu.Lock()
	if !c.subscribed {
		c.subscribedMu.Unlock()
		return nil
	}
	c.subscribed = false
	c.subscribedMu.Unlock()

	_, err := c.send(wsproto.VerbUnsubscribeChanges, nil, c.commandTimeout)
	return err
}

// ListConnected sends GET_DYN_CONNECTED and returns the raw Data dictionary
// unparsed — sensor discovery (C9) owns the parse/filter/select logic.
func (c *Commands) ListConnected() (json.RawMessage, error) {
	return c.send(wsproto.VerbGetConnected, nil, c.commandTimeout)
}

type takeReadingData struct {
	Serial string `json:"Serial"`
}

// TakeReading sends TAKE_DYN_READING{Serial}. The acknowledgement is this
// command's RTN_; the actual waveform arrives later as notifications that
// the acquisition orchestrator awaits separately.
func (c *Commands) TakeReading(serial string) error {
	_, err := c.send(wsproto.VerbTakeReading, takeReadingData{Serial: serial}, c.commandTimeout)
	return err
}
