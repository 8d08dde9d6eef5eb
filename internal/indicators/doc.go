// Package indicators holds stateless technical indicators over price series.
// Every series is ordered oldest first. Functions never fail: when history is
// shorter than an indicator needs they return the documented degenerate value,
// so callers on signal-critical paths must check MinHistory themselves.
package indicators

// Standard parameters used by the signal scorer.
const (
	RSIPeriod       = 14
	MACDFast        = 12
	MACDSlow        = 26
	MACDSignal      = 9
	BollingerPeriod = 20
	BollingerK      = 2.0
	ATRPeriod       = 14
	EMAFastPeriod   = 50
	EMASlowPeriod   = 200
	VolumePeriod    = 20
)

// MinHistory is the number of candles needed for every indicator above to be
// fully seeded (EMA200 dominates).
const MinHistory = EMASlowPeriod
