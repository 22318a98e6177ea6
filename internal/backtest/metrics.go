package backtest

import (
	"math"

	"options-backtest/internal/strategy"
)

// 夏普比率使用的年化无风险利率与年交易日数。
const (
	sharpeRiskFree  = 0.03
	tradingDaysYear = 252
)

// Metrics 记录回测绩效指标。
type Metrics struct {
	TotalTrades  int
	Wins         int
	Losses       int
	WinRate      float64
	TotalPnL     float64
	AvgPnL       float64
	AvgDaysHeld  float64
	TotalReturn  float64
	ProfitFactor float64
	Expectancy   float64
	MaxDrawdown  float64
	SharpeRatio  float64

	ByStrategy map[string]GroupMetrics
	ByTicker   map[string]GroupMetrics
	ByDTE      map[string]GroupMetrics
}

// GroupMetrics 分组统计。
type GroupMetrics struct {
	Trades   int
	Wins     int
	WinRate  float64
	TotalPnL float64
	AvgPnL   float64
}

func calculateMetrics(closed []*strategy.Position, equity []EquityPoint, initialCapital float64) Metrics {
	m := Metrics{
		ByStrategy: make(map[string]GroupMetrics),
		ByTicker:   make(map[string]GroupMetrics),
		ByDTE:      make(map[string]GroupMetrics),
	}

	var returns []float64
	var daysHeld, grossProfit, grossLoss float64
	for _, pos := range closed {
		m.TotalTrades++
		m.TotalPnL += pos.PnL
		daysHeld += float64(pos.DaysHeld)
		if pos.PnL > 0 {
			m.Wins++
			grossProfit += pos.PnL
		} else {
			m.Losses++
			grossLoss += -pos.PnL
		}

		if risk := math.Abs(pos.MaxRisk); risk > 0 {
			returns = append(returns, pos.PnL/risk)
		}

		accumulate(m.ByStrategy, pos.Strategy, pos.PnL)
		accumulate(m.ByTicker, pos.Symbol, pos.PnL)
		accumulate(m.ByDTE, dteBucket(pos.DTEAtEntry), pos.PnL)
	}

	if m.TotalTrades > 0 {
		m.WinRate = float64(m.Wins) / float64(m.TotalTrades)
		m.AvgPnL = m.TotalPnL / float64(m.TotalTrades)
		m.AvgDaysHeld = daysHeld / float64(m.TotalTrades)

		// 期望值 = 胜率×平均盈利 - 败率×平均亏损。
		avgWin, avgLoss := 0.0, 0.0
		if m.Wins > 0 {
			avgWin = grossProfit / float64(m.Wins)
		}
		if m.Losses > 0 {
			avgLoss = grossLoss / float64(m.Losses)
		}
		m.Expectancy = m.WinRate*avgWin - (1-m.WinRate)*avgLoss
	}
	if grossLoss > 0 {
		m.ProfitFactor = grossProfit / grossLoss
	}
	if initialCapital > 0 {
		m.TotalReturn = m.TotalPnL / initialCapital
	}

	finalize(m.ByStrategy)
	finalize(m.ByTicker)
	finalize(m.ByDTE)

	m.MaxDrawdown = computeDrawdown(equity)
	m.SharpeRatio = computeSharpe(returns)
	return m
}

func accumulate(groups map[string]GroupMetrics, key string, pnl float64) {
	g := groups[key]
	g.Trades++
	g.TotalPnL += pnl
	if pnl > 0 {
		g.Wins++
	}
	groups[key] = g
}

func finalize(groups map[string]GroupMetrics) {
	for key, g := range groups {
		if g.Trades > 0 {
			g.WinRate = float64(g.Wins) / float64(g.Trades)
			g.AvgPnL = g.TotalPnL / float64(g.Trades)
		}
		groups[key] = g
	}
}

func dteBucket(dte int) string {
	switch {
	case dte <= 21:
		return "short(<=21)"
	case dte <= 35:
		return "medium(22-35)"
	case dte <= 60:
		return "long(36-60)"
	default:
		return "very_long(>60)"
	}
}

func computeDrawdown(equity []EquityPoint) float64 {
	var peak float64
	maxDD := 0.0
	for _, p := range equity {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak <= 0 {
			continue
		}
		dd := (p.Equity - peak) / peak
		if dd < maxDD {
			maxDD = dd
		}
	}
	return math.Abs(maxDD)
}

// computeSharpe 以逐笔风险收益率为样本，按交易日年化。
func computeSharpe(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		diff := r - mean
		variance += diff * diff
	}
	if len(returns) > 1 {
		variance /= float64(len(returns) - 1)
	}

	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}

	daily := sharpeRiskFree / tradingDaysYear
	return (mean - daily) / std * math.Sqrt(tradingDaysYear)
}
