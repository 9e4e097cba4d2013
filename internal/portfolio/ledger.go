// Package portfolio keeps the cash and position books of one simulation run.
package portfolio

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"strategylab/internal/domain"
)

// Valuation is a mark-to-market snapshot of the ledger.
type Valuation struct {
	Total     decimal.Decimal
	Cash      decimal.Decimal
	Positions decimal.Decimal
}

// Ledger tracks cash and per-symbol positions in memory. A Ledger belongs to
// a single run and is not safe for concurrent use.
type Ledger struct {
	cash        decimal.Decimal
	positions   map[string]*domain.Position
	commissions decimal.Decimal
}

// NewLedger creates a Ledger holding initialCash and no positions.
func NewLedger(initialCash float64) *Ledger {
	return &Ledger{
		cash:      decimal.NewFromFloat(initialCash),
		positions: make(map[string]*domain.Position),
	}
}

// Cash returns the available cash.
func (l *Ledger) Cash() decimal.Decimal {
	return l.cash
}

// Commissions returns the total commission paid so far.
func (l *Ledger) Commissions() decimal.Decimal {
	return l.commissions
}

// Position returns a copy of the open position in symbol.
func (l *Ledger) Position(symbol string) (domain.Position, bool) {
	p, ok := l.positions[symbol]
	if !ok {
		return domain.Position{}, false
	}
	return *p, true
}

// Positions returns copies of all open positions ordered by symbol.
func (l *Ledger) Positions() []domain.Position {
	out := make([]domain.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Buy spends at most maxFraction of the available cash on whole shares of
// symbol. It reports false, leaving the ledger untouched, when no share is
// affordable or the cost including commission exceeds the cash.
func (l *Ledger) Buy(symbol string, date time.Time, price, commissionRate, maxFraction float64) (domain.Trade, bool) {
	if price <= 0 || maxFraction <= 0 || commissionRate < 0 {
		return domain.Trade{}, false
	}
	px := decimal.NewFromFloat(price)
	budget := l.cash.Mul(decimal.NewFromFloat(maxFraction))
	qty := budget.Div(px).Floor()
	if !qty.IsPositive() {
		return domain.Trade{}, false
	}

	amount := px.Mul(qty)
	commission := amount.Mul(decimal.NewFromFloat(commissionRate))
	net := amount.Add(commission)
	if net.GreaterThan(l.cash) {
		return domain.Trade{}, false
	}

	l.cash = l.cash.Sub(net)
	l.commissions = l.commissions.Add(commission)

	p, ok := l.positions[symbol]
	if !ok {
		p = &domain.Position{Symbol: symbol, CostBasis: decimal.Zero, OpenedAt: date}
		l.positions[symbol] = p
	}
	p.Quantity += qty.IntPart()
	p.CostBasis = p.CostBasis.Add(net)
	p.LastPrice = px

	return domain.Trade{
		Symbol:     symbol,
		Date:       date,
		Side:       domain.SideBuy,
		Price:      px,
		Quantity:   qty.IntPart(),
		Amount:     amount,
		Commission: commission,
		NetAmount:  net,
		CashDelta:  net.Neg(),
	}, true
}

// Sell liquidates the whole position in symbol and realizes its P&L against
// the position's cost basis. It reports false when nothing is held.
func (l *Ledger) Sell(symbol string, date time.Time, price, commissionRate float64) (domain.Trade, bool) {
	p, ok := l.positions[symbol]
	if !ok || p.Quantity <= 0 || price <= 0 || commissionRate < 0 {
		return domain.Trade{}, false
	}
	px := decimal.NewFromFloat(price)
	amount := px.Mul(decimal.NewFromInt(p.Quantity))
	commission := amount.Mul(decimal.NewFromFloat(commissionRate))
	net := amount.Sub(commission)

	l.cash = l.cash.Add(net)
	l.commissions = l.commissions.Add(commission)
	delete(l.positions, symbol)

	return domain.Trade{
		Symbol:      symbol,
		Date:        date,
		Side:        domain.SideSell,
		Price:       px,
		Quantity:    p.Quantity,
		Amount:      amount,
		Commission:  commission,
		NetAmount:   net,
		CashDelta:   net,
		RealizedPnL: net.Sub(p.CostBasis),
		HoldingDays: int(domain.Day(date).Sub(domain.Day(p.OpenedAt)).Hours() / 24),
	}, true
}

// MarkToMarket values the ledger with the given prices. A held symbol that
// is absent from prices is valued at its last known price.
func (l *Ledger) MarkToMarket(prices map[string]float64) Valuation {
	positions := decimal.Zero
	for sym, p := range l.positions {
		if px, ok := prices[sym]; ok && px > 0 {
			p.LastPrice = decimal.NewFromFloat(px)
		}
		positions = positions.Add(p.LastPrice.Mul(decimal.NewFromInt(p.Quantity)))
	}
	return Valuation{
		Total:     l.cash.Add(positions),
		Cash:      l.cash,
		Positions: positions,
	}
}
