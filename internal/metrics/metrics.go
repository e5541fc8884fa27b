// Package metrics holds the Prometheus collectors updated by the bot loops.
//
//   - signalrelay_messages_total{verdict}            unread messages by extraction verdict
//   - signalrelay_signals_total{action}              extracted signals
//   - signalrelay_dispatch_total{venue,outcome}      dispatch results
//   - signalrelay_venue_calls_total{venue,leg}       venue order calls (failed ones too)
//   - signalrelay_venue_errors_total{venue,leg}      failed venue order calls
//   - signalrelay_mailbox_reconnects_total{reason}   mailbox reconnect attempts
//   - signalrelay_bots{state}                        registered bots by state
//
// Collectors are registered in init() and served at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vikasavnish/signalrelay/internal/engine"
	"github.com/vikasavnish/signalrelay/internal/signals"
)

var (
	Messages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalrelay_messages_total",
			Help: "Unread messages examined, by extraction verdict",
		},
		[]string{"verdict"},
	)

	Signals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalrelay_signals_total",
			Help: "Trade signals extracted",
		},
		[]string{"action"},
	)

	Dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalrelay_dispatch_total",
			Help: "Dispatch results",
		},
		[]string{"venue", "outcome"},
	)

	VenueCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalrelay_venue_calls_total",
			Help: "Order calls sent to venues",
		},
		[]string{"venue", "leg"},
	)

	VenueErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalrelay_venue_errors_total",
			Help: "Order calls that failed",
		},
		[]string{"venue", "leg"},
	)

	Reconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalrelay_mailbox_reconnects_total",
			Help: "Mailbox reconnect attempts",
		},
		[]string{"reason"},
	)

	// Bots is set from the registry after every tick and lifecycle change.
	Bots = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "signalrelay_bots",
			Help: "Registered bots by state (active, paused, disconnected)",
		},
		[]string{"state"},
	)
)

func init() {
	prometheus.MustRegister(Messages, Signals, Dispatches, VenueCalls, VenueErrors, Reconnects, Bots)
}

// Extracted records one extraction verdict.
func Extracted(verdict signals.Verdict, sig signals.TradeSignal) {
	Messages.WithLabelValues(verdict.String()).Inc()
	if verdict == signals.Signal {
		Signals.WithLabelValues(string(sig.Action)).Inc()
	}
}

// Reconnect records a mailbox reconnect attempt.
func Reconnect(reason string) {
	Reconnects.WithLabelValues(reason).Inc()
}

// SetBots publishes registry counts.
func SetBots(active, paused, disconnected int) {
	Bots.WithLabelValues("active").Set(float64(active))
	Bots.WithLabelValues("paused").Set(float64(paused))
	Bots.WithLabelValues("disconnected").Set(float64(disconnected))
}

// EngineObserver feeds engine events into the collectors.
type EngineObserver struct{}

func (EngineObserver) VenueCall(venue string, leg engine.Leg, _ signals.TradeSignal, err error) {
	VenueCalls.WithLabelValues(venue, string(leg)).Inc()
	if err != nil {
		VenueErrors.WithLabelValues(venue, string(leg)).Inc()
	}
}

func (EngineObserver) Dispatched(venue string, _ signals.TradeSignal, res engine.Result) {
	Dispatches.WithLabelValues(venue, res.Outcome.String()).Inc()
}
