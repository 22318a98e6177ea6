// Package scoring 对候选机会做加权打分，供多标的资金分配排序。
// 权重固定: 风险回报 0.45, DTE 0.20, 流动性 0.15, IV rank 0.10,
// 权利金 0.05, delta 0.05, 总分落在 [0,1]。
package scoring

import (
	"math"

	"options-backtest/internal/strategy"
)

// Components 各维度得分明细，已乘权重。
type Components struct {
	ReturnOnRisk float64
	DTE          float64
	Liquidity    float64
	IVRank       float64
	Credit       float64
	Delta        float64
}

// Score 计算机会的综合得分。
//
// 风险回报率按 年化400% 封顶线性归一；DTE 偏好 42-56 的
// 卖方甜区；流动性取腿均值按量 100/仓 200 归一。
func Score(opp strategy.Opportunity, mkt strategy.MarketContext) (float64, Components) {
	premium := opp.Credit * 100

	ror := 0.0
	if opp.MaxRisk != 0 {
		ror = premium / math.Abs(opp.MaxRisk) * 100
	}

	var avgVol, avgOI float64
	if n := len(opp.Legs); n > 0 {
		for _, lq := range opp.Legs {
			avgVol += lq.Quote.Volume
			avgOI += lq.Quote.OpenInterest
		}
		avgVol /= float64(n)
		avgOI /= float64(n)
	}

	c := Components{
		ReturnOnRisk: clamp01(ror/400) * 0.45,
		DTE:          dteScore(opp.DTE) * 0.20,
		Liquidity:    (clamp01(avgVol/100) + clamp01(avgOI/200)) / 2 * 0.15,
		IVRank:       clamp01(mkt.IVRank/100) * 0.10,
		Credit:       clamp01(premium/500) * 0.05,
		Delta:        0.05,
	}

	total := c.ReturnOnRisk + c.DTE + c.Liquidity + c.IVRank + c.Credit + c.Delta
	return clamp01(total), c
}

func dteScore(dte int) float64 {
	switch {
	case dte >= 42 && dte <= 56:
		return 1.0
	case (dte >= 36 && dte <= 41) || (dte >= 57 && dte <= 60):
		return 0.85
	case dte >= 30 && dte <= 35:
		return 0.60
	case dte >= 22 && dte <= 29:
		return 0.40
	default:
		return 0.20
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
