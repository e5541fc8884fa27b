// Package mailbox keeps one mailbox connection per bot and turns its unread
// messages into decoded Message values.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrNotConnected is returned when no session is held.
	ErrNotConnected = errors.New("mailbox not connected")
	// ErrSuspended is returned by Connect while the connector is suspended.
	ErrSuspended = errors.New("mailbox connection suspended")
	// ErrBackingOff is returned by Reconnect while waiting out a failed dial.
	ErrBackingOff = errors.New("mailbox reconnect backing off")
)

// Account is what a connection is established with.
type Account struct {
	Address  string
	Password string
	Server   string
	Folder   string
}

// Message is a decoded unread message.
type Message struct {
	ID      uint32
	Subject string
	Body    string
	Arrived time.Time
}

// RawMessage is a message as fetched, before decoding.
type RawMessage struct {
	UID     uint32
	Raw     []byte
	Arrived time.Time
}

// Session is one logged-in mailbox connection with its folder selected.
type Session interface {
	// FetchUnread returns unseen messages without marking them seen. ordered
	// is true when the server sorted them newest first.
	FetchUnread(ctx context.Context) (msgs []RawMessage, ordered bool, err error)
	MarkRead(ctx context.Context, uid uint32) error
	MarkUnread(ctx context.Context, uid uint32) error
	Noop() error
	// Close logs out.
	Close() error
	// Terminate drops the connection, interrupting any command in flight.
	Terminate() error
}

// Dialer opens sessions.
type Dialer interface {
	Dial(ctx context.Context, acct Account) (Session, error)
}

// Logger receives bot-scoped log lines.
type Logger interface {
	Appendf(format string, args ...interface{})
}

// Health is the outcome of a KeepAlive probe.
type Health int

const (
	Healthy Health = iota
	Stale
	Disconnected
)

func (h Health) String() string {
	switch h {
	case Healthy:
		return "healthy"
	case Stale:
		return "stale"
	default:
		return "disconnected"
	}
}

// Connector owns the mailbox session of one bot.
type Connector struct {
	dialer  Dialer
	account Account
	log     Logger

	// OnReconnect, if set, is called with the reason before every reconnect.
	OnReconnect func(reason string)
	// Backoff spaces out reconnects after failed dials.
	Backoff Backoff

	now func() time.Time

	mu        sync.Mutex
	sess      Session
	suspended bool
	warned    bool // unordered fallback already logged for this session
	// skipped holds undecodable uids already logged for this session.
	skipped  map[uint32]struct{}
	failures int
	retryAt  time.Time

	// cmd serializes commands on the session. Terminate bypasses it.
	cmd sync.Mutex
}

// NewConnector creates a disconnected connector.
func NewConnector(dialer Dialer, account Account, log Logger) *Connector {
	return &Connector{
		dialer:  dialer,
		account: account,
		log:     log,
		Backoff: DefaultBackoff(),
		now:     time.Now,
	}
}

// Connect replaces any current session with a new one. Failure leaves the
// connector without a session and delays the next Reconnect.
func (c *Connector) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.suspended {
		c.mu.Unlock()
		return ErrSuspended
	}
	c.dropLocked()
	c.mu.Unlock()

	sess, err := c.dialer.Dial(ctx, c.account)
	if err != nil {
		c.mu.Lock()
		c.failures++
		c.retryAt = c.now().Add(c.Backoff.Next(c.failures))
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.suspended {
		sess.Terminate()
		return ErrSuspended
	}
	// A concurrent Connect may have installed a session meanwhile.
	c.dropLocked()
	c.sess = sess
	c.warned = false
	c.skipped = nil
	c.failures = 0
	c.retryAt = time.Time{}
	return nil
}

func (c *Connector) dropLocked() {
	if c.sess != nil {
		c.sess.Terminate()
		c.sess = nil
	}
}

// Connected reports whether a session is held.
func (c *Connector) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess != nil
}

func (c *Connector) session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// discard drops sess if it is still the current session.
func (c *Connector) discard(sess Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == sess {
		c.dropLocked()
	}
}

// Reconnect connects unless a previous dial failed recently, in which case it
// returns ErrBackingOff without dialing.
func (c *Connector) Reconnect(ctx context.Context, reason string) error {
	c.mu.Lock()
	wait := c.retryAt.Sub(c.now())
	c.mu.Unlock()
	if wait > 0 {
		return fmt.Errorf("%w for %s", ErrBackingOff, wait.Round(time.Second))
	}
	if c.OnReconnect != nil {
		c.OnReconnect(reason)
	}
	return c.Connect(ctx)
}

// FetchUnreadNewestFirst returns decoded unread messages, newest first when
// the server supports sorting. Messages that fail to decode are logged and
// skipped; they stay unread. A fetch error drops the session.
func (c *Connector) FetchUnreadNewestFirst(ctx context.Context) ([]Message, error) {
	sess := c.session()
	if sess == nil {
		return nil, ErrNotConnected
	}

	c.cmd.Lock()
	raws, ordered, err := sess.FetchUnread(ctx)
	c.cmd.Unlock()
	if err != nil {
		c.discard(sess)
		return nil, err
	}

	if !ordered && len(raws) > 0 {
		c.mu.Lock()
		warn := !c.warned
		c.warned = true
		c.mu.Unlock()
		if warn {
			c.log.Appendf("Server does not support SORT, processing unread messages unordered")
		}
	}

	msgs := make([]Message, 0, len(raws))
	for _, raw := range raws {
		subject, body, err := Decode(raw.Raw)
		if err != nil {
			if c.firstSkip(raw.UID) {
				c.log.Appendf("Skipping message %d: %v", raw.UID, err)
			}
			continue
		}
		msgs = append(msgs, Message{ID: raw.UID, Subject: subject, Body: body, Arrived: raw.Arrived})
	}
	return msgs, nil
}

func (c *Connector) firstSkip(uid uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.skipped[uid]; ok {
		return false
	}
	if c.skipped == nil {
		c.skipped = make(map[uint32]struct{})
	}
	c.skipped[uid] = struct{}{}
	return true
}

// MarkRead flags a message seen. Failures reconnect and retry once, then are
// only logged.
func (c *Connector) MarkRead(ctx context.Context, id uint32) {
	c.mark(ctx, id, true)
}

// MarkUnread clears the seen flag, with the same retry policy as MarkRead.
func (c *Connector) MarkUnread(ctx context.Context, id uint32) {
	c.mark(ctx, id, false)
}

func (c *Connector) mark(ctx context.Context, id uint32, seen bool) {
	verb := "unread"
	if seen {
		verb = "read"
	}
	call := func(sess Session) error {
		c.cmd.Lock()
		defer c.cmd.Unlock()
		if seen {
			return sess.MarkRead(ctx, id)
		}
		return sess.MarkUnread(ctx, id)
	}

	var err error
	if sess := c.session(); sess != nil {
		if err = call(sess); err == nil {
			return
		}
	} else {
		err = ErrNotConnected
	}

	c.log.Appendf("Error marking message %d as %s: %v. Reconnecting", id, verb, err)
	if err := c.Reconnect(ctx, "mark_"+verb); err != nil {
		c.log.Appendf("Reconnect failed: %v", err)
		return
	}
	sess := c.session()
	if sess == nil {
		return
	}
	if err := call(sess); err != nil {
		c.log.Appendf("Retry marking message %d as %s failed: %v", id, verb, err)
	}
}

// KeepAlive probes the session with NOOP and reconnects when it is missing
// or stale.
func (c *Connector) KeepAlive(ctx context.Context) Health {
	sess := c.session()
	if sess == nil {
		if c.isSuspended() {
			return Disconnected
		}
		if err := c.Reconnect(ctx, "keepalive_missing"); err != nil && !errors.Is(err, ErrBackingOff) {
			c.log.Appendf("Mailbox reconnect failed: %v", err)
		}
		return Disconnected
	}

	c.cmd.Lock()
	err := sess.Noop()
	c.cmd.Unlock()
	if err == nil {
		return Healthy
	}

	c.log.Appendf("Mailbox connection stale (%v), reconnecting", err)
	c.discard(sess)
	if err := c.Reconnect(ctx, "keepalive_stale"); err != nil && !errors.Is(err, ErrBackingOff) {
		c.log.Appendf("Mailbox reconnect failed: %v", err)
	}
	return Stale
}

func (c *Connector) isSuspended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suspended
}

// Suspend drops the session immediately, even mid-command, and refuses
// further connects until Reopen.
func (c *Connector) Suspend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suspended = true
	c.dropLocked()
}

// Reopen lifts a suspension and connects at once, ignoring any backoff.
func (c *Connector) Reopen(ctx context.Context) error {
	c.mu.Lock()
	c.suspended = false
	c.failures = 0
	c.retryAt = time.Time{}
	c.mu.Unlock()
	return c.Connect(ctx)
}

// Close logs out gracefully and suspends the connector.
func (c *Connector) Close() {
	c.mu.Lock()
	sess := c.sess
	c.sess = nil
	c.suspended = true
	c.mu.Unlock()
	if sess == nil {
		return
	}
	c.cmd.Lock()
	defer c.cmd.Unlock()
	if err := sess.Close(); err != nil {
		sess.Terminate()
	}
}
