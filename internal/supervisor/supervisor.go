// Package supervisor owns the registry of bots and drives their mailbox
// polling, signal extraction and dispatch.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/vikasavnish/signalrelay/internal/engine"
	"github.com/vikasavnish/signalrelay/internal/logstream"
	"github.com/vikasavnish/signalrelay/internal/mailbox"
	"github.com/vikasavnish/signalrelay/internal/metrics"
	"github.com/vikasavnish/signalrelay/internal/signals"
	"github.com/vikasavnish/signalrelay/internal/venue"
)

var (
	ErrValidation  = errors.New("validation error")
	ErrDuplicate   = errors.New("bot already exists")
	ErrNotFound    = errors.New("bot not found")
	ErrProbeFailed = errors.New("mailbox connection failed")
)

const (
	heartbeatChance = 0.01
	bodyEchoLimit   = 500
	notedLimit      = 1024
)

// Store persists bot configuration.
type Store interface {
	ListBots(ctx context.Context) ([]BotConfig, error)
	CreateBot(ctx context.Context, cfg BotConfig) error
	SetPaused(ctx context.Context, name string, paused bool) error
}

// Options configures a Supervisor.
type Options struct {
	Dialer mailbox.Dialer
	Venues venue.Options
	// Store may be nil, in which case nothing is persisted.
	Store Store
	Logs  *logstream.Registry
	// Folder is used for accounts that do not name one.
	Folder string
	// Backoff spaces out mailbox reconnects. Zero uses mailbox.DefaultBackoff.
	Backoff mailbox.Backoff
}

// Supervisor is the process-wide registry of bots.
type Supervisor struct {
	dialer  mailbox.Dialer
	venues  venue.Options
	store   Store
	logs    *logstream.Registry
	folder  string
	backoff mailbox.Backoff
	engine  *engine.Engine
	chance  func() float64

	mu   sync.RWMutex
	bots map[string]*Bot
}

// New creates an empty supervisor.
func New(opts Options) *Supervisor {
	logs := opts.Logs
	if logs == nil {
		logs = logstream.NewRegistry(nil)
	}
	folder := opts.Folder
	if folder == "" {
		folder = "INBOX"
	}
	backoff := opts.Backoff
	if backoff == (mailbox.Backoff{}) {
		backoff = mailbox.DefaultBackoff()
	}
	return &Supervisor{
		dialer:  opts.Dialer,
		venues:  opts.Venues,
		store:   opts.Store,
		logs:    logs,
		folder:  folder,
		backoff: backoff,
		engine:  engine.New(metrics.EngineObserver{}),
		chance:  rand.Float64,
		bots:    make(map[string]*Bot),
	}
}

func (s *Supervisor) build(cfg BotConfig) (*Bot, error) {
	vopts := s.venues
	vopts.MT5 = cfg.MT5
	adapter, err := venue.New(cfg.Venue, vopts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if cfg.Mailbox.Folder == "" {
		cfg.Mailbox.Folder = s.folder
	}

	stream := s.logs.Stream(cfg.Name)
	conn := mailbox.NewConnector(s.dialer, cfg.Mailbox, stream)
	conn.OnReconnect = metrics.Reconnect
	conn.Backoff = s.backoff

	b := &Bot{
		cfg:      cfg,
		rule:     cfg.rule(),
		account:  venue.Account{Adapter: adapter, Credentials: cfg.Credentials},
		position: engine.NewPosition(engine.Neutral),
		conn:     conn,
		log:      stream,
		noted:    make(map[uint32]struct{}),
	}
	b.paused.Store(cfg.Paused)
	return b, nil
}

func (s *Supervisor) lookup(name string) (*Bot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bots[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return b, nil
}

func (s *Supervisor) snapshot() []*Bot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Bot, 0, len(s.bots))
	for _, b := range s.bots {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].cfg.Name < out[j].cfg.Name })
	return out
}

// Register validates cfg, probes its mailbox, persists it and admits the bot.
func (s *Supervisor) Register(ctx context.Context, cfg BotConfig) (Status, error) {
	if err := cfg.Validate(); err != nil {
		return Status{}, err
	}
	if _, err := s.lookup(cfg.Name); err == nil {
		return Status{}, fmt.Errorf("%w: %s", ErrDuplicate, cfg.Name)
	}
	cfg.Paused = false

	b, err := s.build(cfg)
	if err != nil {
		return Status{}, err
	}
	if err := b.conn.Connect(ctx); err != nil {
		return Status{}, fmt.Errorf("%w: %v", ErrProbeFailed, err)
	}

	s.mu.Lock()
	if _, exists := s.bots[cfg.Name]; exists {
		s.mu.Unlock()
		b.conn.Close()
		return Status{}, fmt.Errorf("%w: %s", ErrDuplicate, cfg.Name)
	}
	s.bots[cfg.Name] = b
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.CreateBot(ctx, b.cfg); err != nil {
			s.mu.Lock()
			delete(s.bots, cfg.Name)
			s.mu.Unlock()
			b.conn.Close()
			return Status{}, fmt.Errorf("save bot: %w", err)
		}
	}

	b.log.Appendf("Bot created for %s %s on %s", b.cfg.Symbol, b.cfg.Quantity, b.cfg.Venue)
	s.publish()
	return b.status(), nil
}

// Pause tears the bot's mailbox connection down at once and stops its polling.
func (s *Supervisor) Pause(ctx context.Context, name string) error {
	b, err := s.lookup(name)
	if err != nil {
		return err
	}
	// Drop the session before waiting on a resume that may be dialing.
	b.conn.Suspend()

	b.life.Lock()
	s.pause(ctx, b)
	b.life.Unlock()
	s.publish()
	return nil
}

// Resume clears the paused flag and reconnects. A failed reconnect is logged
// and retried by later ticks.
func (s *Supervisor) Resume(ctx context.Context, name string) error {
	b, err := s.lookup(name)
	if err != nil {
		return err
	}
	b.life.Lock()
	s.resume(ctx, b)
	b.life.Unlock()
	s.publish()
	return nil
}

// Toggle flips the paused flag and returns the new value.
func (s *Supervisor) Toggle(ctx context.Context, name string) (bool, error) {
	b, err := s.lookup(name)
	if err != nil {
		return false, err
	}
	b.life.Lock()
	paused := !b.Paused()
	if paused {
		s.pause(ctx, b)
	} else {
		s.resume(ctx, b)
	}
	b.life.Unlock()
	s.publish()
	return paused, nil
}

// pause and resume run with b.life held.
func (s *Supervisor) pause(ctx context.Context, b *Bot) {
	b.paused.Store(true)
	b.conn.Suspend()
	b.log.Append("Bot paused")
	s.persistPaused(ctx, b, true)
}

func (s *Supervisor) resume(ctx context.Context, b *Bot) {
	b.paused.Store(false)
	s.persistPaused(ctx, b, false)
	if err := b.conn.Reopen(ctx); err != nil {
		b.log.Appendf("Resumed, but mailbox reconnect failed: %v", err)
	} else {
		b.log.Append("Bot resumed")
	}
}

func (s *Supervisor) persistPaused(ctx context.Context, b *Bot, paused bool) {
	if s.store == nil {
		return
	}
	if err := s.store.SetPaused(ctx, b.cfg.Name, paused); err != nil {
		log.Printf("Error saving paused state for bot %s: %v", b.cfg.Name, err)
	}
}

// Tick runs one polling pass. Active bots are processed concurrently; a
// bot's batch never overlaps another batch of the same bot.
func (s *Supervisor) Tick(ctx context.Context) {
	var wg sync.WaitGroup
	for _, b := range s.snapshot() {
		if b.Paused() {
			if s.chance() < heartbeatChance {
				b.log.AppendPauseNotice()
			}
			continue
		}
		wg.Add(1)
		go func(b *Bot) {
			defer wg.Done()
			s.guard(b, "tick", func() { s.poll(ctx, b) })
		}(b)
	}
	wg.Wait()
	s.publish()
}

// guard isolates one bot's work so a panic cannot reach the loops.
func (s *Supervisor) guard(b *Bot, what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Appendf("Unexpected error during %s: %v", what, r)
		}
	}()
	fn()
}

func (s *Supervisor) poll(ctx context.Context, b *Bot) {
	b.proc.Lock()
	defer b.proc.Unlock()

	if !b.conn.Connected() {
		if err := b.conn.Reconnect(ctx, "tick"); err != nil {
			if !errors.Is(err, mailbox.ErrSuspended) && !errors.Is(err, mailbox.ErrBackingOff) {
				b.log.Appendf("Mailbox not connected, reconnect failed: %v", err)
			}
			return
		}
		b.log.Append("Reconnected to mailbox")
	}

	msgs, err := b.conn.FetchUnreadNewestFirst(ctx)
	if err != nil {
		if !b.Paused() {
			b.log.Appendf("Error fetching messages: %v", err)
		}
		return
	}

	for _, m := range msgs {
		if b.Paused() {
			b.log.Append("Paused, stopping message processing")
			return
		}
		s.handle(ctx, b, m)
	}
}

func (s *Supervisor) handle(ctx context.Context, b *Bot, m mailbox.Message) {
	sig, verdict := signals.Extract(b.rule, m.Subject, m.Body)
	metrics.Extracted(verdict, sig)

	switch verdict {
	case signals.NotQualified:
		b.conn.MarkUnread(ctx, m.ID)
		return
	case signals.NoSignal:
		if _, seen := b.noted[m.ID]; !seen {
			if len(b.noted) >= notedLimit {
				b.noted = make(map[uint32]struct{})
			}
			b.noted[m.ID] = struct{}{}
			b.log.Appendf("No trade signal in %q: %s", m.Subject, logstream.Truncate(m.Body, bodyEchoLimit))
		}
		b.conn.MarkUnread(ctx, m.ID)
		return
	}
	delete(b.noted, m.ID)

	id := uuid.NewString()
	b.log.Appendf("Signal %s: %s %s %s from %q", id, sig.Action, sig.Quantity, sig.Symbol, m.Subject)

	res := s.engine.Dispatch(ctx, b.position, b.account, sig, b.conn, m.ID)
	switch res.Outcome {
	case engine.Executed:
		b.log.Appendf("Signal %s executed on %s, position now %s", id, b.cfg.Venue, res.Exposure)
	case engine.Acknowledged:
		b.log.Appendf("Signal %s ignored: %s", id, res.Reason)
	case engine.Rejected:
		b.log.Appendf("Signal %s rejected: %s", id, res.Reason)
	case engine.VenueError:
		b.log.Appendf("Signal %s failed: %s", id, res.Reason)
	}
}

// KeepAlive probes every active bot's mailbox and reconnects stale ones.
func (s *Supervisor) KeepAlive(ctx context.Context) {
	var wg sync.WaitGroup
	for _, b := range s.snapshot() {
		if b.Paused() {
			continue
		}
		wg.Add(1)
		go func(b *Bot) {
			defer wg.Done()
			s.guard(b, "keep-alive", func() { b.conn.KeepAlive(ctx) })
		}(b)
	}
	wg.Wait()
	s.publish()
}

// LoadFromStore rebuilds the registry from persisted configuration. Bots
// that fail to connect stay registered and are retried by the loops; paused
// bots are not connected.
func (s *Supervisor) LoadFromStore(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, nil
	}
	cfgs, err := s.store.ListBots(ctx)
	if err != nil {
		return 0, fmt.Errorf("list bots: %w", err)
	}

	loaded := 0
	for _, cfg := range cfgs {
		if err := cfg.Validate(); err != nil {
			log.Printf("Skipping stored bot %s: %v", cfg.Name, err)
			continue
		}
		if _, err := s.lookup(cfg.Name); err == nil {
			continue
		}
		b, err := s.build(cfg)
		if err != nil {
			log.Printf("Skipping stored bot %s: %v", cfg.Name, err)
			continue
		}

		if cfg.Paused {
			b.conn.Suspend()
			b.log.Append("Bot loaded paused")
		} else if err := b.conn.Connect(ctx); err != nil {
			b.log.Appendf("Bot loaded, mailbox connection failed: %v", err)
		} else {
			b.log.Append("Bot loaded and connected")
		}

		s.mu.Lock()
		s.bots[cfg.Name] = b
		s.mu.Unlock()
		loaded++
	}
	s.publish()
	return loaded, nil
}

// List returns bot snapshots sorted by name. An empty owner lists every bot.
func (s *Supervisor) List(owner string) []Status {
	var out []Status
	for _, b := range s.snapshot() {
		if owner != "" && b.cfg.Owner != owner {
			continue
		}
		out = append(out, b.status())
	}
	return out
}

// Get returns one bot's snapshot.
func (s *Supervisor) Get(name string) (Status, error) {
	b, err := s.lookup(name)
	if err != nil {
		return Status{}, err
	}
	return b.status(), nil
}

// Owner returns the owner of a bot.
func (s *Supervisor) Owner(name string) (string, error) {
	b, err := s.lookup(name)
	if err != nil {
		return "", err
	}
	return b.cfg.Owner, nil
}

// Logs returns a bot's log stream.
func (s *Supervisor) Logs(name string) (*logstream.Stream, error) {
	b, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	return b.log, nil
}

// Shutdown logs every bot out of its mailbox.
func (s *Supervisor) Shutdown() {
	var wg sync.WaitGroup
	for _, b := range s.snapshot() {
		wg.Add(1)
		go func(b *Bot) {
			defer wg.Done()
			b.conn.Close()
		}(b)
	}
	wg.Wait()
	log.Println("Released all mailbox connections")
}

func (s *Supervisor) publish() {
	var active, paused, disconnected int
	for _, b := range s.snapshot() {
		switch {
		case b.Paused():
			paused++
		case b.Connected():
			active++
		default:
			disconnected++
		}
	}
	metrics.SetBots(active, paused, disconnected)
}
