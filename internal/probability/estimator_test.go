package probability

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func syntheticPrices(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	prices := make([]float64, n)
	price := 100.0
	for i := 0; i < n; i++ {
		price *= 1 + 0.0005 + 0.02*rng.NormFloat64()
		prices[i] = price
	}
	return prices
}

func TestEmpiricalInsufficientHistory(t *testing.T) {
	prices := syntheticPrices(40, 1)

	_, err := Empirical(prices, 45, 90, 110, 30)
	if !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("expected ErrInsufficientHistory, got %v", err)
	}
}

func TestEmpiricalBasics(t *testing.T) {
	prices := syntheticPrices(252, 1)
	current := prices[len(prices)-1]

	res, err := Empirical(prices, 45, current*0.9, current*1.1, 30)
	if err != nil {
		t.Fatalf("empirical failed: %v", err)
	}

	if res.PoP < 0 || res.PoP > 1 {
		t.Errorf("pop out of [0,1]: %v", res.PoP)
	}
	if res.Total != 252-45 {
		t.Errorf("expected %d scenarios, got %d", 252-45, res.Total)
	}
	if res.Profitable > res.Total {
		t.Errorf("profitable %d exceeds total %d", res.Profitable, res.Total)
	}

	// 区间全覆盖时 PoP 必为1。
	wide, err := Empirical(prices, 45, 0.0001, 1e9, 30)
	if err != nil {
		t.Fatalf("empirical failed: %v", err)
	}
	if wide.PoP != 1 {
		t.Errorf("expected pop=1 for all-covering range, got %v", wide.PoP)
	}
}

func TestEmpiricalInvalidRange(t *testing.T) {
	prices := syntheticPrices(252, 1)
	if _, err := Empirical(prices, 45, 110, 90, 30); err == nil {
		t.Fatal("expected error for inverted range")
	}
	if _, err := Empirical(prices, 0, 90, 110, 30); err == nil {
		t.Fatal("expected error for non-positive daysToExpiry")
	}
}

func TestMonteCarloDeterministic(t *testing.T) {
	a, err := MonteCarlo(100, 0.25, 0.05, 45.0/365, 95, 105, 10000, 42)
	if err != nil {
		t.Fatalf("monte carlo failed: %v", err)
	}
	b, err := MonteCarlo(100, 0.25, 0.05, 45.0/365, 95, 105, 10000, 42)
	if err != nil {
		t.Fatalf("monte carlo failed: %v", err)
	}

	if a.PoP != b.PoP || a.Prices.Mean != b.Prices.Mean {
		t.Errorf("same seed should reproduce results: %v vs %v", a.PoP, b.PoP)
	}

	c, err := MonteCarlo(100, 0.25, 0.05, 45.0/365, 95, 105, 10000, 7)
	if err != nil {
		t.Fatalf("monte carlo failed: %v", err)
	}
	if a.PoP == c.PoP && a.Prices.Mean == c.Prices.Mean {
		t.Errorf("different seeds produced identical distributions")
	}
}

func TestMonteCarloDistribution(t *testing.T) {
	res, err := MonteCarlo(100, 0.25, 0.05, 45.0/365, 95, 105, 20000, 42)
	if err != nil {
		t.Fatalf("monte carlo failed: %v", err)
	}

	// 风险中性漂移下终值期望 ≈ S·e^(rT)。
	expected := 100 * math.Exp(0.05*45.0/365)
	if math.Abs(res.Prices.Mean-expected) > 1.0 {
		t.Errorf("mean final price %v too far from %v", res.Prices.Mean, expected)
	}
	if res.Prices.P5 >= res.Prices.P50 || res.Prices.P50 >= res.Prices.P95 {
		t.Errorf("percentiles not ordered: %+v", res.Prices)
	}
	if res.PoP <= 0 || res.PoP >= 1 {
		t.Errorf("pop should be strictly inside (0,1) for ±5%% band, got %v", res.PoP)
	}
}

func TestCompareAgreementBand(t *testing.T) {
	prices := syntheticPrices(504, 3)
	current := prices[len(prices)-1]

	cmp, err := Compare(prices, current, 0.25, 0.05, 45, current*0.9, current*1.1, 10000, 42)
	if err != nil {
		t.Fatalf("compare failed: %v", err)
	}

	if cmp.Interpretation == "" {
		t.Error("expected non-empty interpretation")
	}
	wantDiff := cmp.MonteCarlo.PoPPct - cmp.Empirical.PoPPct
	if math.Abs(cmp.DiffPct-wantDiff) > 1e-9 {
		t.Errorf("diff mismatch: got %v want %v", cmp.DiffPct, wantDiff)
	}
}
