package pricing

import (
	"errors"
	"math"
	"testing"
)

func TestPutCallParity(t *testing.T) {
	cases := []struct {
		s, k, tm, r, sigma float64
	}{
		{100, 100, 30.0 / 365, 0.05, 0.25},
		{100, 90, 45.0 / 365, 0.05, 0.20},
		{670, 700, 60.0 / 365, 0.03, 0.35},
		{50, 55, 0.5, 0.10, 0.60},
		{250, 180, 1.5, 0.01, 0.15},
	}

	for _, c := range cases {
		call, err := Price(c.s, c.k, c.tm, c.r, c.sigma, Call)
		if err != nil {
			t.Fatalf("call price failed: %v", err)
		}
		put, err := Price(c.s, c.k, c.tm, c.r, c.sigma, Put)
		if err != nil {
			t.Fatalf("put price failed: %v", err)
		}

		left := call - put
		right := c.s - c.k*math.Exp(-c.r*c.tm)
		if diff := math.Abs(left - right); diff > 1e-6 {
			t.Errorf("put-call parity violated for S=%v K=%v: C-P=%v, S-K·e^(-rT)=%v, diff=%v",
				c.s, c.k, left, right, diff)
		}
	}
}

func TestGreeksBounds(t *testing.T) {
	for _, k := range []float64{80, 90, 100, 110, 120} {
		call, put, err := CalcGreeks(100, k, 45.0/365, 0.05, 0.25)
		if err != nil {
			t.Fatalf("greeks failed for K=%v: %v", k, err)
		}

		if call.Delta <= 0 || call.Delta >= 1 {
			t.Errorf("call delta out of (0,1) for K=%v: %v", k, call.Delta)
		}
		if put.Delta <= -1 || put.Delta >= 0 {
			t.Errorf("put delta out of (-1,0) for K=%v: %v", k, put.Delta)
		}
		if call.Gamma < 0 || put.Gamma < 0 {
			t.Errorf("negative gamma for K=%v", k)
		}
		if call.Vega < 0 || put.Vega < 0 {
			t.Errorf("negative vega for K=%v", k)
		}
		if math.Abs(put.Delta-(call.Delta-1)) > 1e-12 {
			t.Errorf("put delta != call delta - 1 for K=%v", k)
		}
	}
}

func TestDeltaMonotonicInSpot(t *testing.T) {
	var prevCall, prevPut float64
	for i, s := range []float64{80, 90, 100, 110, 120} {
		call, put, err := CalcGreeks(s, 100, 45.0/365, 0.05, 0.25)
		if err != nil {
			t.Fatalf("greeks failed for S=%v: %v", s, err)
		}
		if i > 0 {
			if call.Delta < prevCall {
				t.Errorf("call delta not non-decreasing in spot at S=%v: %v < %v", s, call.Delta, prevCall)
			}
			if put.Delta < prevPut {
				t.Errorf("put delta not non-decreasing in spot at S=%v: %v < %v", s, put.Delta, prevPut)
			}
		}
		prevCall, prevPut = call.Delta, put.Delta
	}
}

func TestPriceDecaysTowardIntrinsic(t *testing.T) {
	const (
		s, k, r, sigma = 100.0, 95.0, 0.05, 0.25
	)
	intrinsic := Intrinsic(s, k, Call)

	var prev float64 = math.Inf(1)
	for _, days := range []float64{60, 30, 10, 3, 1, 0.1} {
		price, err := Price(s, k, days/365, r, sigma, Call)
		if err != nil {
			t.Fatalf("price failed for T=%v days: %v", days, err)
		}
		if price < intrinsic-1e-6 {
			t.Errorf("price below intrinsic at T=%v days: %v < %v", days, price, intrinsic)
		}
		if price > prev+1e-9 {
			t.Errorf("price did not decay at T=%v days: %v > %v", days, price, prev)
		}
		prev = price
	}

	final, err := Price(s, k, 0.01/365, r, sigma, Call)
	if err != nil {
		t.Fatalf("price failed near expiry: %v", err)
	}
	if math.Abs(final-intrinsic) > 0.05 {
		t.Errorf("price did not converge to intrinsic: got %v, want ~%v", final, intrinsic)
	}
}

func TestInvalidInputs(t *testing.T) {
	cases := []struct {
		name               string
		s, k, tm, r, sigma float64
	}{
		{"zero spot", 0, 100, 0.1, 0.05, 0.25},
		{"negative strike", 100, -5, 0.1, 0.05, 0.25},
		{"zero time", 100, 100, 0, 0.05, 0.25},
		{"zero vol", 100, 100, 0.1, 0.05, 0},
		{"rate too high", 100, 100, 0.1, 1.5, 0.25},
		{"rate too low", 100, 100, 0.1, -1.5, 0.25},
		{"nan spot", math.NaN(), 100, 0.1, 0.05, 0.25},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := Price(c.s, c.k, c.tm, c.r, c.sigma, Call); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}

	if _, err := Price(100, 100, 0.1, 0.05, 0.25, OptionType("straddle")); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for bad option type, got %v", err)
	}
}

func TestKnownATMValue(t *testing.T) {
	// 30 天 ATM call, 25% IV, 5% 利率：参考值约 $3.06。
	price, err := Price(100, 100, 30.0/365, 0.05, 0.25, Call)
	if err != nil {
		t.Fatalf("price failed: %v", err)
	}
	if price < 2.5 || price > 3.5 {
		t.Errorf("ATM call price out of expected band: %v", price)
	}

	call, _, err := CalcGreeks(100, 100, 30.0/365, 0.05, 0.25)
	if err != nil {
		t.Fatalf("greeks failed: %v", err)
	}
	if call.Delta < 0.50 || call.Delta > 0.60 {
		t.Errorf("ATM call delta out of expected band: %v", call.Delta)
	}
	if call.Theta >= 0 {
		t.Errorf("ATM call theta should be negative, got %v", call.Theta)
	}
}
