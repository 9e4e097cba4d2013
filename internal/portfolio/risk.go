package portfolio

// DefaultMaxPositionPct caps a single buy at 10% of available cash.
const DefaultMaxPositionPct = 0.10

// RiskManager enforces the position sizing limit applied to every buy.
type RiskManager struct {
	maxPositionPct float64
}

// NewRiskManager creates a RiskManager with the given maximum fraction of
// available cash per buy (e.g. 0.10 for 10%). Values outside (0, 1] fall
// back to DefaultMaxPositionPct.
func NewRiskManager(maxPositionPct float64) *RiskManager {
	if maxPositionPct <= 0 || maxPositionPct > 1 {
		maxPositionPct = DefaultMaxPositionPct
	}
	return &RiskManager{maxPositionPct: maxPositionPct}
}

// MaxFraction returns the fraction of available cash one buy may spend.
func (rm *RiskManager) MaxFraction() float64 {
	if rm == nil {
		return DefaultMaxPositionPct
	}
	return rm.maxPositionPct
}
