package strategy

import (
	"sort"

	"options-backtest/internal/marketdata"
)

// 历史链数据不含买卖价，统一按假定点差估计。
const assumedSpreadPct = 5.0

// DTEFilter 保留 [Min, Max] 窗口内的行。
type DTEFilter struct {
	Min int
	Max int
}

func (f DTEFilter) Apply(chain []marketdata.Quote) []marketdata.Quote {
	var out []marketdata.Quote
	for _, q := range chain {
		if q.DTE >= f.Min && q.DTE <= f.Max {
			out = append(out, q)
		}
	}
	return out
}

// LiquidityFilter 按成交量、持仓量与点差筛选。
type LiquidityFilter struct {
	MinVolume       float64
	MinOpenInterest float64
	MaxSpreadPct    float64
}

// ForDTE 按窗口中位 DTE 收紧流动性要求：临近到期的
// 合约流动性衰减更快，要求更高的量仓与更窄的点差。
func (f LiquidityFilter) ForDTE(medianDTE int) LiquidityFilter {
	switch {
	case medianDTE <= 21:
		f.MinVolume *= 1.5
		f.MinOpenInterest *= 1.5
		f.MaxSpreadPct *= 0.7
	case medianDTE <= 35:
		f.MinVolume *= 1.2
		f.MinOpenInterest *= 1.2
		f.MaxSpreadPct *= 0.85
	}
	return f
}

func (f LiquidityFilter) Apply(chain []marketdata.Quote) []marketdata.Quote {
	var out []marketdata.Quote
	for _, q := range chain {
		if q.Volume < f.MinVolume || q.OpenInterest < f.MinOpenInterest {
			continue
		}
		if assumedSpreadPct > f.MaxSpreadPct {
			continue
		}
		out = append(out, q)
	}
	return out
}

// VolatilityFilter 按市场级 IV rank 决定是否扫描。
// IV rank 是日级标量，不满足时整条链被拒绝。
type VolatilityFilter struct {
	MinIVRank float64
}

// ForDTE 临近到期时要求更高的 IV rank 补偿 gamma 风险。
func (f VolatilityFilter) ForDTE(medianDTE int) VolatilityFilter {
	if medianDTE <= 21 {
		f.MinIVRank += 10
		if f.MinIVRank < 70 {
			f.MinIVRank = 70
		}
	}
	return f
}

func (f VolatilityFilter) Apply(chain []marketdata.Quote, ivRank float64) []marketdata.Quote {
	if ivRank < f.MinIVRank {
		return nil
	}
	return chain
}

// DeltaFilter 保留 |delta| 位于 [Min, Max] 的行。
type DeltaFilter struct {
	Min float64
	Max float64
}

func (f DeltaFilter) Apply(chain []marketdata.Quote) []marketdata.Quote {
	var out []marketdata.Quote
	for _, q := range chain {
		if d := q.AbsDelta(); d >= f.Min && d <= f.Max {
			out = append(out, q)
		}
	}
	return out
}

// Selector 固定顺序的过滤管线：DTE → 流动性 → 波动率 → delta。
// 流动性与波动率阈值按窗口中位 DTE 调整。
type Selector struct {
	DTE        DTEFilter
	Liquidity  LiquidityFilter
	Volatility VolatilityFilter
	Delta      DeltaFilter
}

func (s Selector) Select(chain []marketdata.Quote, mkt MarketContext) []marketdata.Quote {
	out := s.DTE.Apply(chain)
	if len(out) == 0 {
		return nil
	}

	med := medianDTE(out)
	out = s.Liquidity.ForDTE(med).Apply(out)
	out = s.Volatility.ForDTE(med).Apply(out, mkt.IVRank)
	out = s.Delta.Apply(out)
	return out
}

func medianDTE(chain []marketdata.Quote) int {
	dtes := make([]int, len(chain))
	for i, q := range chain {
		dtes[i] = q.DTE
	}
	sort.Ints(dtes)

	n := len(dtes)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return dtes[n/2]
	}
	return (dtes[n/2-1] + dtes[n/2]) / 2
}
