package backtest

import (
	"time"

	"options-backtest/internal/pricing"
	"options-backtest/internal/strategy"
)

// 模型估值回退所用的常量：无风险利率与兜底隐含波动率。
const (
	valuationRiskFree  = 0.05
	fallbackVolatility = 0.25
)

// ValuationStats 估值诊断计数，按仓位-交易日各计一次。
type ValuationStats struct {
	Attempts         int // 估值尝试
	MarketDataMisses int // 市场数据缺腿
	ModelFallbacks   int // 回退到模型估值
	Unavailable      int // 市场与模型均不可用, 当日跳过
}

// marketValue 按当日市场报价计算组合平仓价值(美元)。
// 任意一条腿找不到可用报价即整体失败。
func marketValue(pos *strategy.Position, source ChainSource, date time.Time) (float64, bool) {
	quotes := source.QuotesFor(pos.Symbol, date, pos.Expiration)
	if len(quotes) == 0 {
		return 0, false
	}

	type key struct {
		typ    pricing.OptionType
		strike float64
	}
	byLeg := make(map[key]float64, len(quotes))
	for _, q := range quotes {
		if p, ok := q.Price(); ok {
			byLeg[key{q.Type, q.Strike}] = p
		}
	}

	total := 0.0
	for _, leg := range pos.Legs {
		price, ok := byLeg[key{leg.Type, leg.Strike}]
		if !ok {
			return 0, false
		}
		v := price * 100 * float64(leg.Contracts)
		if leg.Side == strategy.Short {
			total += v
		} else {
			total -= v
		}
	}
	return total, true
}

// modelValue 市场报价缺失时用 BSM 估算组合价值。
// 波动率取当日同到期链的 IV 中位数，缺失时用兜底值。
func modelValue(pos *strategy.Position, source ChainSource, date time.Time) (float64, bool) {
	spot, ok := source.UnderlyingPrice(pos.Symbol, date)
	if !ok {
		return 0, false
	}

	sigma, ok := source.MedianIV(pos.Symbol, date, pos.Expiration)
	if !ok || sigma <= 0 {
		sigma = fallbackVolatility
	}

	days := pos.Expiration.Sub(date).Hours() / 24
	if days <= 0 {
		return pos.IntrinsicValue(spot), true
	}
	t := days / 365

	total := 0.0
	for _, leg := range pos.Legs {
		price, err := pricing.Price(spot, leg.Strike, t, valuationRiskFree, sigma, leg.Type)
		if err != nil {
			return 0, false
		}
		v := price * 100 * float64(leg.Contracts)
		if leg.Side == strategy.Short {
			total += v
		} else {
			total -= v
		}
	}
	return total, true
}
