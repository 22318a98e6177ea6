// Package probability 提供两种独立的获利概率(PoP)估计方法：
// 历史重采样与蒙特卡洛 GBM 模拟。该子系统仅用于分析，
// 不参与回测引擎的开平仓决策。
package probability

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/markcheno/go-talib"
)

// ErrInsufficientHistory 表示历史样本不足以支撑重采样估计。
var ErrInsufficientHistory = errors.New("probability: 历史数据不足")

// DefaultMinSamples 窗口化之后要求的最小样本数。
const DefaultMinSamples = 30

// Distribution 描述一组终值价格的统计分布。
type Distribution struct {
	Mean float64
	Std  float64
	P5   float64
	P25  float64
	P50  float64
	P75  float64
	P95  float64
}

// Result 单一方法的估计结果。
type Result struct {
	PoP        float64 // [0,1]
	PoPPct     float64
	Profitable int
	Total      int
	Prices     Distribution
}

// Empirical 使用历史 N 日滚动收益的经验分布估计 PoP。
//
// 将历史 N 日收益逐一乘性应用到当前价格上，统计落在
// [lo, hi] 区间内的比例。窗口化后样本数不足 minSamples
// 时返回 ErrInsufficientHistory。
func Empirical(prices []float64, daysToExpiry int, lo, hi float64, minSamples int) (Result, error) {
	if daysToExpiry <= 0 {
		return Result{}, fmt.Errorf("probability: daysToExpiry 必须大于0, 实际 %d", daysToExpiry)
	}
	if lo >= hi {
		return Result{}, fmt.Errorf("probability: 获利区间非法 [%v, %v]", lo, hi)
	}
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}
	if len(prices) < daysToExpiry+minSamples {
		return Result{}, fmt.Errorf("%w: 需要 %d 条, 实际 %d 条",
			ErrInsufficientHistory, daysToExpiry+minSamples, len(prices))
	}

	// Rocp 前 N 个值为回看期填充，截掉后即滚动 N 日收益序列。
	returns := talib.Rocp(prices, daysToExpiry)[daysToExpiry:]
	if len(returns) < minSamples {
		return Result{}, fmt.Errorf("%w: 滚动收益样本需要 %d 条, 实际 %d 条",
			ErrInsufficientHistory, minSamples, len(returns))
	}

	current := prices[len(prices)-1]
	projected := make([]float64, len(returns))
	profitable := 0
	for i, r := range returns {
		p := current * (1 + r)
		projected[i] = p
		if p >= lo && p <= hi {
			profitable++
		}
	}

	pop := float64(profitable) / float64(len(projected))
	return Result{
		PoP:        pop,
		PoPPct:     pop * 100,
		Profitable: profitable,
		Total:      len(projected),
		Prices:     describe(projected),
	}, nil
}

// MonteCarlo 在几何布朗运动假设下模拟终值价格分布估计 PoP。
//
//	S(T) = S·exp((r - σ²/2)T + σ√T·Z), Z ~ N(0,1)
//
// 相同 seed 下结果可复现。
func MonteCarlo(s, sigma, r, t, lo, hi float64, trials int, seed int64) (Result, error) {
	if s <= 0 || sigma <= 0 || t <= 0 {
		return Result{}, fmt.Errorf("probability: 模拟参数非法 S=%v sigma=%v T=%v", s, sigma, t)
	}
	if r < -1 || r > 1 {
		return Result{}, fmt.Errorf("probability: 无风险利率必须位于[-1,1], 实际 %v", r)
	}
	if trials <= 0 {
		return Result{}, fmt.Errorf("probability: trials 必须大于0, 实际 %d", trials)
	}
	if lo >= hi {
		return Result{}, fmt.Errorf("probability: 获利区间非法 [%v, %v]", lo, hi)
	}

	rng := rand.New(rand.NewSource(seed))

	drift := (r - 0.5*sigma*sigma) * t
	vol := sigma * math.Sqrt(t)

	finals := make([]float64, trials)
	profitable := 0
	for i := 0; i < trials; i++ {
		p := s * math.Exp(drift+vol*rng.NormFloat64())
		finals[i] = p
		if p >= lo && p <= hi {
			profitable++
		}
	}

	pop := float64(profitable) / float64(trials)
	return Result{
		PoP:        pop,
		PoPPct:     pop * 100,
		Profitable: profitable,
		Total:      trials,
		Prices:     describe(finals),
	}, nil
}

// Comparison 两种方法的对比结论。
type Comparison struct {
	Empirical      Result
	MonteCarlo     Result
	DiffPct        float64 // MC - 经验, 百分点
	Ratio          float64 // MC / 经验
	Interpretation string
}

// Compare 同时运行两种方法并给出定性解读。
// 差异小于5个百分点视为一致，超过10个百分点给出方向性提示。
func Compare(prices []float64, s, sigma, r float64, daysToExpiry int, lo, hi float64, trials int, seed int64) (Comparison, error) {
	emp, err := Empirical(prices, daysToExpiry, lo, hi, DefaultMinSamples)
	if err != nil {
		return Comparison{}, err
	}

	t := float64(daysToExpiry) / 365
	mc, err := MonteCarlo(s, sigma, r, t, lo, hi, trials, seed)
	if err != nil {
		return Comparison{}, err
	}

	diff := mc.PoPPct - emp.PoPPct
	ratio := math.Inf(1)
	if emp.PoP > 0 {
		ratio = mc.PoP / emp.PoP
	}

	var interpretation string
	switch {
	case math.Abs(diff) < 5:
		interpretation = "两种方法结论一致(差异<5pp)"
	case diff > 10:
		interpretation = "蒙特卡洛 PoP 显著更高: 可能波动率假设偏低, 或近期历史对该策略不利"
	case diff < -10:
		interpretation = "经验 PoP 显著更高: 可能波动率假设偏高, 或近期历史对该策略有利"
	default:
		interpretation = fmt.Sprintf("中等差异 %.1fpp", diff)
	}

	return Comparison{
		Empirical:      emp,
		MonteCarlo:     mc,
		DiffPct:        diff,
		Ratio:          ratio,
		Interpretation: interpretation,
	}, nil
}

func describe(values []float64) Distribution {
	n := len(values)
	if n == 0 {
		return Distribution{}
	}

	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(n)

	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	if n > 1 {
		variance /= float64(n - 1)
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	return Distribution{
		Mean: mean,
		Std:  math.Sqrt(variance),
		P5:   quantile(sorted, 0.05),
		P25:  quantile(sorted, 0.25),
		P50:  quantile(sorted, 0.50),
		P75:  quantile(sorted, 0.75),
		P95:  quantile(sorted, 0.95),
	}
}

// quantile 线性插值分位数，输入必须已排序。
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	pos := q * float64(n-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	frac := pos - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}
