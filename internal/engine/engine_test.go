package engine

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vikasavnish/signalrelay/internal/signals"
	"github.com/vikasavnish/signalrelay/internal/venue"
)

type fakePlacer struct {
	validateErr error
	// fail[i] is returned for call i; calls past the end succeed.
	fail  []error
	calls []signals.TradeSignal
}

func (f *fakePlacer) Validate() error { return f.validateErr }
func (f *fakePlacer) Venue() string   { return "binance" }

func (f *fakePlacer) PlaceOrder(_ context.Context, sig signals.TradeSignal) (venue.Response, error) {
	i := len(f.calls)
	f.calls = append(f.calls, sig)
	if i < len(f.fail) && f.fail[i] != nil {
		return venue.Response{}, f.fail[i]
	}
	return venue.Response{Status: 200}, nil
}

type fakeMarker struct {
	read, unread []uint32
}

func (m *fakeMarker) MarkRead(_ context.Context, id uint32)   { m.read = append(m.read, id) }
func (m *fakeMarker) MarkUnread(_ context.Context, id uint32) { m.unread = append(m.unread, id) }

type recordingObserver struct {
	legs []Leg
}

func (o *recordingObserver) VenueCall(_ string, leg Leg, _ signals.TradeSignal, _ error) {
	o.legs = append(o.legs, leg)
}
func (o *recordingObserver) Dispatched(string, signals.TradeSignal, Result) {}

func sig(a signals.Action) signals.TradeSignal {
	return signals.TradeSignal{Action: a, Symbol: "BTCUSD", Quantity: decimal.NewFromInt(1)}
}

func TestOpenFromNeutral(t *testing.T) {
	e := New(nil)
	for _, tc := range []struct {
		action signals.Action
		want   Exposure
	}{{signals.Buy, Long}, {signals.Sell, Short}} {
		pos := NewPosition(Neutral)
		placer := &fakePlacer{}
		res := e.Process(context.Background(), pos, placer, sig(tc.action))
		assert.Equal(t, Executed, res.Outcome)
		assert.Equal(t, tc.want, pos.Exposure())
		assert.Len(t, placer.calls, 1)
	}
}

func TestDuplicateDirectionIsNoop(t *testing.T) {
	e := New(nil)
	pos := NewPosition(Long)
	placer := &fakePlacer{}

	res := e.Process(context.Background(), pos, placer, sig(signals.Buy))
	assert.Equal(t, Acknowledged, res.Outcome)
	assert.True(t, res.Succeeded())
	assert.Empty(t, placer.calls)
	assert.Equal(t, Long, pos.Exposure())
}

func TestReversalClosesBeforeOpening(t *testing.T) {
	obs := &recordingObserver{}
	e := New(obs)
	pos := NewPosition(Long)
	placer := &fakePlacer{}

	res := e.Process(context.Background(), pos, placer, sig(signals.Sell))
	require.Equal(t, Executed, res.Outcome)
	assert.Equal(t, Short, pos.Exposure())
	require.Len(t, placer.calls, 2)
	assert.Equal(t, signals.Sell, placer.calls[0].Action)
	assert.Equal(t, signals.Sell, placer.calls[1].Action)
	assert.Equal(t, []Leg{LegClose, LegOpen}, obs.legs)
}

func TestFailedCloseKeepsExposureAndSkipsOpen(t *testing.T) {
	e := New(nil)
	pos := NewPosition(Long)
	placer := &fakePlacer{fail: []error{errors.New("timeout")}}

	res := e.Process(context.Background(), pos, placer, sig(signals.Sell))
	assert.Equal(t, VenueError, res.Outcome)
	assert.Contains(t, res.Reason, "close long")
	assert.Equal(t, Long, pos.Exposure())
	assert.Len(t, placer.calls, 1)
}

func TestFailedOpenAfterCloseLeavesNeutral(t *testing.T) {
	e := New(nil)
	pos := NewPosition(Short)
	placer := &fakePlacer{fail: []error{nil, errors.New("rejected")}}

	res := e.Process(context.Background(), pos, placer, sig(signals.Buy))
	assert.Equal(t, VenueError, res.Outcome)
	assert.Equal(t, Neutral, pos.Exposure())
	assert.Equal(t, Neutral, res.Exposure)
}

func TestMissingCredentialsRejectedWithoutNetwork(t *testing.T) {
	e := New(nil)
	pos := NewPosition(Neutral)
	placer := &fakePlacer{validateErr: venue.ErrMissingCredentials}

	res := e.Process(context.Background(), pos, placer, sig(signals.Buy))
	assert.Equal(t, Rejected, res.Outcome)
	assert.Empty(t, placer.calls)
	assert.Equal(t, Neutral, pos.Exposure())
}

func TestDispatchMarksMessages(t *testing.T) {
	e := New(nil)
	marker := &fakeMarker{}

	pos := NewPosition(Neutral)
	failing := &fakePlacer{fail: []error{errors.New("venue down")}}
	res := e.Dispatch(context.Background(), pos, failing, sig(signals.Buy), marker, 7)
	assert.Equal(t, VenueError, res.Outcome)
	assert.Equal(t, []uint32{7}, marker.unread)
	assert.Empty(t, marker.read)

	// Same still-unread message after the venue recovers.
	recovered := &fakePlacer{}
	res = e.Dispatch(context.Background(), pos, recovered, sig(signals.Buy), marker, 7)
	assert.Equal(t, Executed, res.Outcome)
	assert.Equal(t, []uint32{7}, marker.read)
	assert.Equal(t, Long, pos.Exposure())
}

func TestExposureAlwaysValid(t *testing.T) {
	e := New(nil)
	pos := NewPosition(Exposure("bogus"))
	require.Equal(t, Neutral, pos.Exposure())

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		action := signals.Buy
		if rng.Intn(2) == 0 {
			action = signals.Sell
		}
		var fail []error
		if rng.Intn(3) == 0 {
			fail = []error{errors.New("boom")}
		}
		e.Process(context.Background(), pos, &fakePlacer{fail: fail}, sig(action))
		require.True(t, pos.Exposure().Valid())
	}
}
