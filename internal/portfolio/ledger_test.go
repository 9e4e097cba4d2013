package portfolio

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategylab/internal/domain"
)

var (
	d1 = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	d2 = time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestBuyThenSellRoundTrip(t *testing.T) {
	l := NewLedger(1_000_000)

	buy, ok := l.Buy("005930", d1, 70_000, 0.0015, 0.70)
	require.True(t, ok)
	assert.Equal(t, int64(10), buy.Quantity)
	assert.True(t, buy.Amount.Equal(dec("700000")), "amount %s", buy.Amount)
	assert.True(t, buy.Commission.Equal(dec("1050")), "commission %s", buy.Commission)
	assert.True(t, buy.NetAmount.Equal(dec("701050")), "net %s", buy.NetAmount)
	assert.True(t, buy.CashDelta.Equal(dec("-701050")))
	assert.True(t, l.Cash().Equal(dec("298950")), "cash %s", l.Cash())

	sell, ok := l.Sell("005930", d2, 72_000, 0.0015)
	require.True(t, ok)
	assert.Equal(t, int64(10), sell.Quantity)
	assert.True(t, sell.NetAmount.Equal(dec("718920")), "net %s", sell.NetAmount)
	assert.True(t, sell.RealizedPnL.Equal(dec("17870")), "pnl %s", sell.RealizedPnL)
	assert.Equal(t, 4, sell.HoldingDays)

	assert.True(t, l.Cash().Equal(dec("1017870")), "cash %s", l.Cash())
	assert.True(t, l.Commissions().Equal(dec("2130")))
	assert.Empty(t, l.Positions())

	// Every fee deducted from cash is accounted for in the commission total.
	spent := dec("1000000").Sub(l.Cash())
	gross := buy.Amount.Sub(sell.Amount)
	assert.True(t, spent.Sub(gross).Equal(l.Commissions()))
}

func TestBuyRespectsMaxFraction(t *testing.T) {
	l := NewLedger(1_000_000)
	trade, ok := l.Buy("AAA", d1, 70_000, 0.0015, DefaultMaxPositionPct)
	require.True(t, ok)
	assert.Equal(t, int64(1), trade.Quantity)
	assert.True(t, trade.Amount.LessThanOrEqual(dec("100000")))
}

func TestBuyNoOps(t *testing.T) {
	l := NewLedger(1000)

	_, ok := l.Buy("AAA", d1, 2000, 0.001, 0.10)
	assert.False(t, ok, "budget below one share")

	_, ok = l.Buy("AAA", d1, 0, 0.001, 0.10)
	assert.False(t, ok, "zero price")

	// A full-cash budget leaves no room for commission.
	_, ok = l.Buy("AAA", d1, 100, 0.01, 1.0)
	assert.False(t, ok, "commission pushes cost over cash")

	assert.True(t, l.Cash().Equal(dec("1000")))
	assert.Empty(t, l.Positions())
	assert.True(t, l.Commissions().IsZero())
}

func TestSellWithoutPosition(t *testing.T) {
	l := NewLedger(1000)
	_, ok := l.Sell("AAA", d1, 10, 0.001)
	assert.False(t, ok)
}

func TestBuyAccumulatesPosition(t *testing.T) {
	l := NewLedger(10_000)
	_, ok := l.Buy("AAA", d1, 100, 0, 0.10)
	require.True(t, ok)
	_, ok = l.Buy("AAA", d2, 100, 0, 0.10)
	require.True(t, ok)

	p, ok := l.Position("AAA")
	require.True(t, ok)
	assert.Equal(t, int64(19), p.Quantity, "10 then 9 shares")
	assert.True(t, p.CostBasis.Equal(dec("1900")))
	assert.Equal(t, d1, p.OpenedAt)
}

func TestMarkToMarketCarriesLastPrice(t *testing.T) {
	l := NewLedger(10_000)
	_, ok := l.Buy("AAA", d1, 100, 0, 0.50)
	require.True(t, ok)

	v := l.MarkToMarket(map[string]float64{"AAA": 110})
	assert.True(t, v.Positions.Equal(dec("5500")))
	assert.True(t, v.Total.Equal(v.Cash.Add(v.Positions)))

	// Missing from the day's prices: valued at 110, not dropped.
	v = l.MarkToMarket(map[string]float64{"BBB": 5})
	assert.True(t, v.Positions.Equal(dec("5500")), "positions %s", v.Positions)
	assert.True(t, v.Total.Equal(dec("10500")))
	assert.False(t, v.Cash.IsNegative())
}

func TestRiskManagerMaxFraction(t *testing.T) {
	assert.Equal(t, 0.25, NewRiskManager(0.25).MaxFraction())
	assert.Equal(t, DefaultMaxPositionPct, NewRiskManager(0).MaxFraction())
	assert.Equal(t, DefaultMaxPositionPct, NewRiskManager(1.5).MaxFraction())

	var rm *RiskManager
	assert.Equal(t, DefaultMaxPositionPct, rm.MaxFraction())
}

func TestTradeNetAmountConsistency(t *testing.T) {
	l := NewLedger(50_000)
	buy, _ := l.Buy("AAA", d1, 123.45, 0.0025, 0.30)
	sell, _ := l.Sell("AAA", d2, 130.10, 0.0025)

	assert.True(t, buy.NetAmount.Equal(buy.Amount.Add(buy.Commission)))
	assert.True(t, sell.NetAmount.Equal(sell.Amount.Sub(sell.Commission)))
	assert.Equal(t, domain.SideBuy, buy.Side)
	assert.Equal(t, domain.SideSell, sell.Side)
}
