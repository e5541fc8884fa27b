package signals

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Action is the direction of a trade signal
type Action string

const (
	Buy  Action = "buy"
	Sell Action = "sell"
)

// Opposite returns the action that closes a position opened by a.
func (a Action) Opposite() Action {
	if a == Buy {
		return Sell
	}
	return Buy
}

// TradeSignal is an extracted buy/sell instruction. It is consumed once by the dispatch engine.
type TradeSignal struct {
	Action   Action
	Symbol   string
	Quantity decimal.Decimal
}

// Verdict describes what extraction concluded about a message
type Verdict int

const (
	NotQualified Verdict = iota
	NoSignal
	Signal
)

func (v Verdict) String() string {
	switch v {
	case NotQualified:
		return "not_qualified"
	case NoSignal:
		return "no_signal"
	case Signal:
		return "signal"
	default:
		return "unknown"
	}
}

var (
	buyPattern  = regexp.MustCompile(`(?i)\b(buy|demand)\b`)
	sellPattern = regexp.MustCompile(`(?i)\b(sell|supply)\b`)
)

// Rule carries the per-bot settings that decide whether a message is a signal.
type Rule struct {
	SubjectFilter string
	Symbol        string
	Quantity      decimal.Decimal
}

// NormalizeSymbol strips everything except letters and digits and upper-cases the rest.
func NormalizeSymbol(symbol string) string {
	var b strings.Builder
	for _, r := range symbol {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// Qualifies reports whether a subject should be scanned for keywords.
// A non-blank subject filter wins over the symbol match.
func (r Rule) Qualifies(subject string) bool {
	subject = strings.ToLower(subject)
	if filter := strings.TrimSpace(r.SubjectFilter); filter != "" {
		return strings.Contains(subject, strings.ToLower(r.SubjectFilter))
	}
	symbol := NormalizeSymbol(r.Symbol)
	if symbol == "" {
		return false
	}
	return strings.Contains(subject, strings.ToLower(symbol))
}

// DetectAction scans a body for whole-word keywords. Bodies that mention
// both directions, or neither, yield no action.
func DetectAction(body string) (Action, bool) {
	buy := buyPattern.MatchString(body)
	sell := sellPattern.MatchString(body)
	switch {
	case buy && !sell:
		return Buy, true
	case sell && !buy:
		return Sell, true
	default:
		return "", false
	}
}

// Extract turns a message into at most one trade signal.
func Extract(rule Rule, subject, body string) (TradeSignal, Verdict) {
	if !rule.Qualifies(subject) {
		return TradeSignal{}, NotQualified
	}
	action, ok := DetectAction(body)
	if !ok {
		return TradeSignal{}, NoSignal
	}
	return TradeSignal{
		Action:   action,
		Symbol:   rule.Symbol,
		Quantity: rule.Quantity,
	}, Signal
}
