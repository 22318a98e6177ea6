// Package pricing 实现 Black-Scholes-Merton 欧式期权定价模型及一阶希腊值。
package pricing

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidInput 表示定价参数非法，单次计算中止。
var ErrInvalidInput = errors.New("pricing: 输入参数非法")

// OptionType 期权类型。
type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// Valid 校验期权类型取值。
func (t OptionType) Valid() bool {
	return t == Call || t == Put
}

// Greeks 一阶希腊值。Theta 按日历日计，Vega/Rho 按1%变动计。
type Greeks struct {
	Delta float64
	Gamma float64
	Vega  float64
	Theta float64
	Rho   float64
}

// calendarDaysPerYear 用于 theta 的按日折算。
const calendarDaysPerYear = 365

// validateInputs 校验定价输入，不做任何截断修正。
func validateInputs(s, k, t, r, sigma float64) error {
	if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
		return fmt.Errorf("%w: 标的价格必须大于0, 实际 %v", ErrInvalidInput, s)
	}
	if k <= 0 || math.IsNaN(k) || math.IsInf(k, 0) {
		return fmt.Errorf("%w: 行权价必须大于0, 实际 %v", ErrInvalidInput, k)
	}
	if t <= 0 || math.IsNaN(t) || math.IsInf(t, 0) {
		return fmt.Errorf("%w: 到期时间必须大于0, 实际 %v", ErrInvalidInput, t)
	}
	if sigma <= 0 || math.IsNaN(sigma) || math.IsInf(sigma, 0) {
		return fmt.Errorf("%w: 波动率必须大于0, 实际 %v", ErrInvalidInput, sigma)
	}
	if r < -1 || r > 1 || math.IsNaN(r) {
		return fmt.Errorf("%w: 无风险利率必须位于[-1,1], 实际 %v", ErrInvalidInput, r)
	}
	return nil
}

// D1D2 计算模型的辅助变量 d1、d2。
//
//	d1 = [ln(S/K) + (r + σ²/2)T] / (σ√T)
//	d2 = d1 - σ√T
func D1D2(s, k, t, r, sigma float64) (float64, float64, error) {
	if err := validateInputs(s, k, t, r, sigma); err != nil {
		return 0, 0, err
	}

	sqrtT := math.Sqrt(t)
	d1 := (math.Log(s/k) + (r+0.5*sigma*sigma)*t) / (sigma * sqrtT)
	d2 := d1 - sigma*sqrtT

	return d1, d2, nil
}

// Price 计算欧式期权理论价格。
//
//	Call: C = S·N(d1) - K·e^(-rT)·N(d2)
//	Put:  P = K·e^(-rT)·N(-d2) - S·N(-d1)
func Price(s, k, t, r, sigma float64, typ OptionType) (float64, error) {
	if !typ.Valid() {
		return 0, fmt.Errorf("%w: 期权类型必须为 call 或 put, 实际 %q", ErrInvalidInput, typ)
	}

	d1, d2, err := D1D2(s, k, t, r, sigma)
	if err != nil {
		return 0, err
	}

	discount := math.Exp(-r * t)

	if typ == Call {
		return s*normCDF(d1) - k*discount*normCDF(d2), nil
	}
	return k*discount*normCDF(-d2) - s*normCDF(-d1), nil
}

// CalcGreeks 同时计算 call 与 put 的一阶希腊值。
// put delta = call delta - 1；gamma/vega 对两类期权相同。
func CalcGreeks(s, k, t, r, sigma float64) (call Greeks, put Greeks, err error) {
	d1, d2, err := D1D2(s, k, t, r, sigma)
	if err != nil {
		return Greeks{}, Greeks{}, err
	}

	sqrtT := math.Sqrt(t)
	discount := math.Exp(-r * t)
	pdfD1 := normPDF(d1)

	deltaCall := normCDF(d1)
	gamma := pdfD1 / (s * sigma * sqrtT)
	vega := s * pdfD1 * sqrtT / 100

	thetaCommon := -(s * pdfD1 * sigma) / (2 * sqrtT)
	thetaCall := (thetaCommon - r*k*discount*normCDF(d2)) / calendarDaysPerYear
	thetaPut := (thetaCommon + r*k*discount*normCDF(-d2)) / calendarDaysPerYear

	rhoCall := k * t * discount * normCDF(d2) / 100
	rhoPut := -k * t * discount * normCDF(-d2) / 100

	call = Greeks{Delta: deltaCall, Gamma: gamma, Vega: vega, Theta: thetaCall, Rho: rhoCall}
	put = Greeks{Delta: deltaCall - 1, Gamma: gamma, Vega: vega, Theta: thetaPut, Rho: rhoPut}
	return call, put, nil
}

// Intrinsic 返回到期内在价值，时间价值为0。
func Intrinsic(finalPrice, strike float64, typ OptionType) float64 {
	if typ == Call {
		return math.Max(0, finalPrice-strike)
	}
	return math.Max(0, strike-finalPrice)
}

func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}
