// Package venue holds one order adapter per supported trading venue.
//
// Adapters only move a TradeSignal over the wire and report transport-level
// failures. Any HTTP status of 400 or above is treated as a venue error.
package venue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vikasavnish/signalrelay/internal/signals"
)

var (
	ErrUnknownVenue       = errors.New("unsupported venue")
	ErrMissingCredentials = errors.New("missing credentials")
)

// Kind identifies a venue
type Kind string

const (
	Binance     Kind = "binance"
	Bybit       Kind = "bybit"
	KuCoin      Kind = "kucoin"
	Bitget      Kind = "bitget"
	OANDA       Kind = "oanda"
	MetaTrader5 Kind = "metatrader5"
)

// Kinds lists every supported venue.
var Kinds = []Kind{Binance, Bybit, KuCoin, Bitget, OANDA, MetaTrader5}

// ParseKind resolves a venue name case-insensitively.
func ParseKind(name string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownVenue, name)
}

// Credentials is the union of every credential shape a venue may need.
// Only the fields required by the configured venue are populated.
type Credentials struct {
	APIKey     string `json:"apiKey,omitempty"`
	APISecret  string `json:"apiSecret,omitempty"`
	Passphrase string `json:"passphrase,omitempty"`
	AccountID  string `json:"accountId,omitempty"`
	Login      string `json:"login,omitempty"`
	Password   string `json:"password,omitempty"`
	Server     string `json:"server,omitempty"`
}

// MT5Options are the MetaTrader5 order extras captured at registration.
type MT5Options struct {
	Slippage    int `json:"slippage,omitempty"`
	Deviation   int `json:"deviation,omitempty"`
	MagicNumber int `json:"magicNumber,omitempty"`
}

// RequiredFields names the credential fields a venue cannot trade without.
func RequiredFields(k Kind) []string {
	switch k {
	case Binance, Bybit:
		return []string{"apiKey", "apiSecret"}
	case KuCoin, Bitget:
		return []string{"apiKey", "apiSecret", "passphrase"}
	case OANDA:
		return []string{"apiKey", "accountId"}
	case MetaTrader5:
		return []string{"login", "password", "server"}
	default:
		return nil
	}
}

func (c Credentials) field(name string) string {
	switch name {
	case "apiKey":
		return c.APIKey
	case "apiSecret":
		return c.APISecret
	case "passphrase":
		return c.Passphrase
	case "accountId":
		return c.AccountID
	case "login":
		return c.Login
	case "password":
		return c.Password
	case "server":
		return c.Server
	default:
		return ""
	}
}

// Validate checks that every field the venue needs is populated.
func (c Credentials) Validate(k Kind) error {
	if _, err := ParseKind(string(k)); err != nil {
		return err
	}
	var missing []string
	for _, name := range RequiredFields(k) {
		if strings.TrimSpace(c.field(name)) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w for %s: %s", ErrMissingCredentials, k, strings.Join(missing, ", "))
	}
	return nil
}

// Masked returns a copy safe to show to users.
func (c Credentials) Masked() Credentials {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	return Credentials{
		APIKey:     mask(c.APIKey),
		APISecret:  mask(c.APISecret),
		Passphrase: mask(c.Passphrase),
		AccountID:  c.AccountID,
		Login:      c.Login,
		Password:   mask(c.Password),
		Server:     c.Server,
	}
}

// Response is the raw venue reply to an order request.
type Response struct {
	Status int
	Body   json.RawMessage
}

// Adapter places market orders on one venue.
type Adapter interface {
	Kind() Kind
	PlaceOrder(ctx context.Context, creds Credentials, sig signals.TradeSignal) (Response, error)
}

// Options configures adapter construction.
type Options struct {
	HTTPClient *http.Client
	// BaseURLs overrides the default endpoint of a venue.
	BaseURLs map[Kind]string
	MT5      MT5Options
	// Now is used for request timestamps.
	Now func() time.Time
}

var defaultBaseURLs = map[Kind]string{
	Binance:     "https://api.binance.com",
	Bybit:       "https://api.bybit.com",
	KuCoin:      "https://api.kucoin.com",
	Bitget:      "https://api.bitget.com",
	OANDA:       "https://api-fxpractice.oanda.com",
	MetaTrader5: "http://localhost:5000",
}

func (o Options) baseURL(k Kind) string {
	if u, ok := o.BaseURLs[k]; ok && strings.TrimSpace(u) != "" {
		return strings.TrimRight(u, "/")
	}
	return defaultBaseURLs[k]
}

func (o Options) client() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return &http.Client{Timeout: 15 * time.Second}
}

func (o Options) now() func() time.Time {
	if o.Now != nil {
		return o.Now
	}
	return time.Now
}

// New returns the adapter for a venue. Unknown venues are rejected here,
// once, rather than on every order.
func New(k Kind, opts Options) (Adapter, error) {
	hc := httpCaller{client: opts.client(), base: opts.baseURL(k), venue: k}
	now := opts.now()
	switch k {
	case Binance:
		return &binanceAdapter{http: hc, now: now}, nil
	case Bybit:
		return &bybitAdapter{http: hc}, nil
	case KuCoin:
		return &kucoinAdapter{http: hc, now: now}, nil
	case Bitget:
		return &bitgetAdapter{http: hc, now: now}, nil
	case OANDA:
		return &oandaAdapter{http: hc}, nil
	case MetaTrader5:
		return &mt5Adapter{http: hc, opts: opts.MT5}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownVenue, k)
	}
}

// Account binds an adapter to the credentials of one bot.
type Account struct {
	Adapter     Adapter
	Credentials Credentials
}

// Validate checks the bound credentials against the adapter's venue.
func (a Account) Validate() error {
	if a.Adapter == nil {
		return ErrUnknownVenue
	}
	return a.Credentials.Validate(a.Adapter.Kind())
}

// Venue names the bound venue.
func (a Account) Venue() string {
	if a.Adapter == nil {
		return ""
	}
	return string(a.Adapter.Kind())
}

// PlaceOrder forwards the signal to the bound adapter.
func (a Account) PlaceOrder(ctx context.Context, sig signals.TradeSignal) (Response, error) {
	if a.Adapter == nil {
		return Response{}, ErrUnknownVenue
	}
	return a.Adapter.PlaceOrder(ctx, a.Credentials, sig)
}
