package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/vikasavnish/signalrelay/internal/signals"
	"github.com/vikasavnish/signalrelay/internal/venue"
)

// Exposure is a bot's current directional position.
type Exposure string

const (
	Neutral Exposure = "neutral"
	Long    Exposure = "long"
	Short   Exposure = "short"
)

// Valid reports whether e is one of the three known exposures.
func (e Exposure) Valid() bool {
	switch e {
	case Neutral, Long, Short:
		return true
	default:
		return false
	}
}

func opened(a signals.Action) Exposure {
	if a == signals.Buy {
		return Long
	}
	return Short
}

// openedBy is the action that opens exposure e.
func openedBy(e Exposure) signals.Action {
	if e == Long {
		return signals.Buy
	}
	return signals.Sell
}

// Outcome classifies a dispatch
type Outcome int

const (
	// Executed means every venue call succeeded.
	Executed Outcome = iota
	// Acknowledged means the signal repeated the current direction; nothing was sent.
	Acknowledged
	// Rejected means dispatch was refused before any network call.
	Rejected
	// VenueError means a venue call failed.
	VenueError
)

func (o Outcome) String() string {
	switch o {
	case Executed:
		return "executed"
	case Acknowledged:
		return "acknowledged"
	case Rejected:
		return "rejected"
	case VenueError:
		return "venue_error"
	default:
		return "unknown"
	}
}

// Result is what Process reports back to the caller.
type Result struct {
	Outcome  Outcome
	Reason   string
	Exposure Exposure
}

// Succeeded reports whether the originating message should be marked read.
func (r Result) Succeeded() bool {
	return r.Outcome == Executed || r.Outcome == Acknowledged
}

// Position holds one bot's exposure. Its lock is held for the whole of a
// dispatch so two dispatches for the same bot never interleave.
type Position struct {
	mu       sync.Mutex
	exposure Exposure
	// view mirrors exposure for readers that must not wait on a dispatch.
	view atomic.Value
}

// NewPosition returns a position starting at e (Neutral if e is not valid).
func NewPosition(e Exposure) *Position {
	if !e.Valid() {
		e = Neutral
	}
	p := &Position{exposure: e}
	p.view.Store(e)
	return p
}

// Exposure returns the current exposure without waiting for a running dispatch.
func (p *Position) Exposure() Exposure {
	return p.view.Load().(Exposure)
}

func (p *Position) set(e Exposure) {
	p.exposure = e
	p.view.Store(e)
}

// OrderPlacer is a venue account: credentials bound to an adapter.
type OrderPlacer interface {
	Validate() error
	Venue() string
	PlaceOrder(ctx context.Context, sig signals.TradeSignal) (venue.Response, error)
}

// MessageMarker sets the read state of the message a signal came from.
type MessageMarker interface {
	MarkRead(ctx context.Context, id uint32)
	MarkUnread(ctx context.Context, id uint32)
}

// Leg is either the closing or the opening order of a dispatch.
type Leg string

const (
	LegClose Leg = "close"
	LegOpen  Leg = "open"
)

// Observer is notified about every venue call and dispatch result.
type Observer interface {
	VenueCall(venue string, leg Leg, sig signals.TradeSignal, err error)
	Dispatched(venue string, sig signals.TradeSignal, res Result)
}

// Engine applies trade signals to positions.
type Engine struct {
	observer Observer
}

// New creates an engine. observer may be nil.
func New(observer Observer) *Engine {
	return &Engine{observer: observer}
}

// Process applies sig to pos through placer.
//
// A reversal (long+sell, short+buy) sends a closing order and then an
// opening order. A failed close leaves the exposure untouched and skips the
// open. A failed open after a successful close leaves the bot neutral; there
// is no rollback of the close.
func (e *Engine) Process(ctx context.Context, pos *Position, placer OrderPlacer, sig signals.TradeSignal) Result {
	pos.mu.Lock()
	defer pos.mu.Unlock()

	res := e.process(ctx, pos, placer, sig)
	if e.observer != nil {
		e.observer.Dispatched(placer.Venue(), sig, res)
	}
	return res
}

func (e *Engine) process(ctx context.Context, pos *Position, placer OrderPlacer, sig signals.TradeSignal) Result {
	target := opened(sig.Action)
	if pos.exposure == target {
		return Result{
			Outcome:  Acknowledged,
			Reason:   fmt.Sprintf("already %s %s", pos.exposure, sig.Symbol),
			Exposure: pos.exposure,
		}
	}

	if err := placer.Validate(); err != nil {
		return Result{Outcome: Rejected, Reason: err.Error(), Exposure: pos.exposure}
	}

	if pos.exposure != Neutral {
		closing := sig
		closing.Action = openedBy(pos.exposure).Opposite()
		if err := e.place(ctx, placer, LegClose, closing); err != nil {
			return Result{
				Outcome:  VenueError,
				Reason:   fmt.Sprintf("close %s position: %v", pos.exposure, err),
				Exposure: pos.exposure,
			}
		}
		pos.set(Neutral)
	}

	if err := e.place(ctx, placer, LegOpen, sig); err != nil {
		return Result{
			Outcome:  VenueError,
			Reason:   fmt.Sprintf("open %s position: %v", target, err),
			Exposure: pos.exposure,
		}
	}
	pos.set(target)
	return Result{Outcome: Executed, Exposure: pos.exposure}
}

func (e *Engine) place(ctx context.Context, placer OrderPlacer, leg Leg, sig signals.TradeSignal) error {
	_, err := placer.PlaceOrder(ctx, sig)
	if e.observer != nil {
		e.observer.VenueCall(placer.Venue(), leg, sig, err)
	}
	return err
}

// Dispatch processes sig and settles the source message: read when the
// dispatch succeeded, unread otherwise so a later poll retries it.
func (e *Engine) Dispatch(ctx context.Context, pos *Position, placer OrderPlacer, sig signals.TradeSignal, marker MessageMarker, msgID uint32) Result {
	res := e.Process(ctx, pos, placer, sig)
	if res.Succeeded() {
		marker.MarkRead(ctx, msgID)
	} else {
		marker.MarkUnread(ctx, msgID)
	}
	return res
}
