package supervisor

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/vikasavnish/signalrelay/internal/engine"
	"github.com/vikasavnish/signalrelay/internal/logstream"
	"github.com/vikasavnish/signalrelay/internal/mailbox"
	"github.com/vikasavnish/signalrelay/internal/signals"
	"github.com/vikasavnish/signalrelay/internal/venue"
)

// BotConfig is everything needed to build a bot. It is what the store persists.
type BotConfig struct {
	Name          string
	Owner         string
	Venue         venue.Kind
	Symbol        string
	Quantity      decimal.Decimal
	Mailbox       mailbox.Account
	SubjectFilter string
	Credentials   venue.Credentials
	MT5           venue.MT5Options
	Paused        bool
}

// Validate checks the fields every bot needs plus the ones its venue needs.
func (c BotConfig) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(c.Symbol) == "" {
		missing = append(missing, "symbol")
	}
	if c.Mailbox.Address == "" {
		missing = append(missing, "email")
	}
	if c.Mailbox.Password == "" {
		missing = append(missing, "email password")
	}
	if c.Mailbox.Server == "" {
		missing = append(missing, "imap server")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrValidation, strings.Join(missing, ", "))
	}
	if !c.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	if _, err := venue.ParseKind(string(c.Venue)); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := c.Credentials.Validate(c.Venue); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if c.Venue == venue.MetaTrader5 {
		if c.MT5.Slippage <= 0 || c.MT5.Deviation <= 0 || c.MT5.MagicNumber <= 0 {
			return fmt.Errorf("%w: metatrader5 needs slippage, deviation and magic number", ErrValidation)
		}
	}
	return nil
}

func (c BotConfig) rule() signals.Rule {
	return signals.Rule{SubjectFilter: c.SubjectFilter, Symbol: c.Symbol, Quantity: c.Quantity}
}

// Bot is one registered bot and its runtime state.
type Bot struct {
	cfg      BotConfig
	rule     signals.Rule
	account  venue.Account
	position *engine.Position
	conn     *mailbox.Connector
	log      *logstream.Stream
	paused   atomic.Bool

	// life serializes pause and resume for this bot.
	life sync.Mutex
	// proc serializes batch processing for this bot.
	proc sync.Mutex
	// noted holds ids of unread messages already reported as carrying no signal.
	noted map[uint32]struct{}
}

// Name returns the bot's registry key.
func (b *Bot) Name() string { return b.cfg.Name }

// Paused reports the paused flag.
func (b *Bot) Paused() bool { return b.paused.Load() }

// Exposure returns the bot's current exposure.
func (b *Bot) Exposure() engine.Exposure { return b.position.Exposure() }

// Connected reports whether the bot holds a live mailbox session.
func (b *Bot) Connected() bool { return b.conn.Connected() }

// Status is a read-only snapshot of a bot, with secrets masked.
type Status struct {
	Name          string            `json:"botName"`
	Owner         string            `json:"owner,omitempty"`
	Venue         venue.Kind        `json:"exchange"`
	Symbol        string            `json:"symbol"`
	Quantity      decimal.Decimal   `json:"quantity"`
	Email         string            `json:"email"`
	IMAPServer    string            `json:"imapServer"`
	SubjectFilter string            `json:"subjectFilter,omitempty"`
	Credentials   venue.Credentials `json:"credentials"`
	Exposure      engine.Exposure   `json:"position"`
	Paused        bool              `json:"paused"`
	Connected     bool              `json:"connected"`
	Status        string            `json:"status"`
}

func (b *Bot) status() Status {
	st := Status{
		Name:          b.cfg.Name,
		Owner:         b.cfg.Owner,
		Venue:         b.cfg.Venue,
		Symbol:        b.cfg.Symbol,
		Quantity:      b.cfg.Quantity,
		Email:         b.cfg.Mailbox.Address,
		IMAPServer:    b.cfg.Mailbox.Server,
		SubjectFilter: b.cfg.SubjectFilter,
		Credentials:   b.cfg.Credentials.Masked(),
		Exposure:      b.Exposure(),
		Paused:        b.Paused(),
		Connected:     b.Connected(),
	}
	switch {
	case st.Paused:
		st.Status = "paused"
	case st.Connected:
		st.Status = "running"
	default:
		st.Status = "disconnected"
	}
	return st
}
