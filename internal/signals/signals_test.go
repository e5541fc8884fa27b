package signals

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSymbol(t *testing.T) {
	assert.Equal(t, "BTCUSD", NormalizeSymbol("btc/usd"))
	assert.Equal(t, "EURUSD", NormalizeSymbol(" EUR_USD "))
	assert.Equal(t, "", NormalizeSymbol("--"))
}

func TestRuleQualifies(t *testing.T) {
	symbolOnly := Rule{Symbol: "BTC-USD"}
	assert.True(t, symbolOnly.Qualifies("btcusd Alert"))
	assert.False(t, symbolOnly.Qualifies("ETH Alert"))

	filtered := Rule{Symbol: "BTCUSD", SubjectFilter: "TradingView"}
	assert.True(t, filtered.Qualifies("Alert from tradingview"))
	assert.False(t, filtered.Qualifies("BTCUSD Alert"), "filter wins over symbol match")

	blankFilter := Rule{Symbol: "BTCUSD", SubjectFilter: "   "}
	assert.True(t, blankFilter.Qualifies("BTCUSD Alert"))
}

func TestDetectAction(t *testing.T) {
	cases := []struct {
		body   string
		action Action
		ok     bool
	}{
		{"We recommend you BUY now", Buy, true},
		{"strong demand zone", Buy, true},
		{"time to sell", Sell, true},
		{"supply incoming", Sell, true},
		{"buy the dip, then sell the rip", "", false},
		{"nothing to see", "", false},
		{"buyers are absent, reselling", "", false},
	}
	for _, tc := range cases {
		action, ok := DetectAction(tc.body)
		assert.Equal(t, tc.ok, ok, tc.body)
		assert.Equal(t, tc.action, action, tc.body)
	}
}

func TestExtract(t *testing.T) {
	rule := Rule{Symbol: "BTCUSD", Quantity: decimal.NewFromFloat(1.0)}

	sig, verdict := Extract(rule, "BTCUSD Alert", "We recommend you buy now")
	require.Equal(t, Signal, verdict)
	assert.Equal(t, Buy, sig.Action)
	assert.Equal(t, "BTCUSD", sig.Symbol)
	assert.True(t, sig.Quantity.Equal(decimal.NewFromInt(1)))

	_, verdict = Extract(rule, "ETH Alert", "buy now")
	assert.Equal(t, NotQualified, verdict)

	_, verdict = Extract(rule, "BTCUSD Alert", "hold")
	assert.Equal(t, NoSignal, verdict)
}

func TestActionOpposite(t *testing.T) {
	assert.Equal(t, Sell, Buy.Opposite())
	assert.Equal(t, Buy, Sell.Opposite())
}
