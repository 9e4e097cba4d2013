package util

import (
	"time"

	"strategylab/internal/domain"
)

// TradingCalendar decides which calendar days are simulated. Only weekends
// are closed; exchange holidays surface as data gaps instead.
type TradingCalendar struct {
	market domain.Market
}

// NewTradingCalendar creates a TradingCalendar for the given market.
func NewTradingCalendar(market domain.Market) *TradingCalendar {
	return &TradingCalendar{market: market}
}

// Market returns the calendar's market.
func (tc *TradingCalendar) Market() domain.Market {
	return tc.market
}

// IsTradingDay reports whether t falls on a weekday.
func (tc *TradingCalendar) IsTradingDay(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return true
}

// TradingDays returns every weekday in [start, end], inclusive, as UTC
// midnights. It returns nil when end is before start.
func (tc *TradingCalendar) TradingDays(start, end time.Time) []time.Time {
	start, end = domain.Day(start), domain.Day(end)
	if end.Before(start) {
		return nil
	}
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if tc.IsTradingDay(d) {
			days = append(days, d)
		}
	}
	return days
}

// NextTradingDay returns the first weekday strictly after t.
func (tc *TradingCalendar) NextTradingDay(t time.Time) time.Time {
	d := domain.Day(t).AddDate(0, 0, 1)
	for !tc.IsTradingDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}
