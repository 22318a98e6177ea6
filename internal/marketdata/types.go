package marketdata

import (
	"math"
	"time"

	"options-backtest/internal/pricing"
)

// Quote 历史期权链中的一行快照。
// Close/VWAP 缺失时以 NaN 表示。
type Quote struct {
	Date         time.Time
	Symbol       string
	Type         pricing.OptionType
	Strike       float64
	Expiration   time.Time
	DTE          int
	Delta        float64
	Gamma        float64
	Theta        float64
	Vega         float64
	IV           float64
	Close        float64
	VWAP         float64
	Volume       float64
	OpenInterest float64
}

// Price 返回可用的成交价：优先 close，缺失时回退 vwap。
func (q Quote) Price() (float64, bool) {
	if !math.IsNaN(q.Close) {
		return q.Close, true
	}
	if !math.IsNaN(q.VWAP) {
		return q.VWAP, true
	}
	return 0, false
}

// AbsDelta 返回 delta 的绝对值，便于对 put 做区间比较。
func (q Quote) AbsDelta() float64 {
	return math.Abs(q.Delta)
}
