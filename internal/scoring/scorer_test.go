package scoring

import (
	"math"
	"testing"

	"options-backtest/internal/marketdata"
	"options-backtest/internal/strategy"
)

func opp(credit, maxRisk float64, dte int, vol, oi float64) strategy.Opportunity {
	return strategy.Opportunity{
		Credit:  credit,
		MaxRisk: maxRisk,
		DTE:     dte,
		Legs: []strategy.LegQuote{
			{Quote: marketdata.Quote{Volume: vol, OpenInterest: oi}, Side: strategy.Short},
		},
	}
}

func TestScoreWithinUnitInterval(t *testing.T) {
	cases := []strategy.Opportunity{
		opp(1.40, 360, 45, 500, 2000),
		opp(0.10, 10000, 5, 0, 0),
		opp(9.00, 100, 49, 1e6, 1e6),
	}
	for _, o := range cases {
		total, _ := Score(o, strategy.MarketContext{IVRank: 80})
		if total < 0 || total > 1 {
			t.Errorf("score out of [0,1]: %v for %+v", total, o)
		}
	}
}

func TestScoreComponents(t *testing.T) {
	// credit 1.40 → premium $140, max risk $360 → ror ≈ 38.9%。
	o := opp(1.40, 360, 45, 200, 400)
	total, c := Score(o, strategy.MarketContext{IVRank: 80})

	wantRoR := math.Min(140.0/360*100/400, 1) * 0.45
	if math.Abs(c.ReturnOnRisk-wantRoR) > 1e-9 {
		t.Errorf("ror component = %v, want %v", c.ReturnOnRisk, wantRoR)
	}
	if c.DTE != 0.20 {
		t.Errorf("dte 45 should score full 0.20, got %v", c.DTE)
	}
	if c.Liquidity != 0.15 {
		t.Errorf("deep liquidity should score full 0.15, got %v", c.Liquidity)
	}
	if math.Abs(c.IVRank-0.08) > 1e-9 {
		t.Errorf("iv rank 80 should contribute 0.08, got %v", c.IVRank)
	}
	if math.Abs(c.Credit-140.0/500*0.05) > 1e-9 {
		t.Errorf("credit component = %v", c.Credit)
	}
	if c.Delta != 0.05 {
		t.Errorf("delta component should be flat 0.05, got %v", c.Delta)
	}

	sum := c.ReturnOnRisk + c.DTE + c.Liquidity + c.IVRank + c.Credit + c.Delta
	if math.Abs(total-sum) > 1e-9 {
		t.Errorf("total %v != component sum %v", total, sum)
	}
}

func TestScoreDTESchedule(t *testing.T) {
	cases := []struct {
		dte  int
		want float64
	}{
		{45, 0.20},
		{56, 0.20},
		{38, 0.17},
		{58, 0.17},
		{32, 0.12},
		{25, 0.08},
		{10, 0.04},
		{70, 0.04},
	}
	for _, tc := range cases {
		_, c := Score(opp(1, 400, tc.dte, 0, 0), strategy.MarketContext{})
		if math.Abs(c.DTE-tc.want) > 1e-9 {
			t.Errorf("dte %d: component %v, want %v", tc.dte, c.DTE, tc.want)
		}
	}
}

func TestScoreZeroMaxRisk(t *testing.T) {
	total, c := Score(opp(1.00, 0, 45, 100, 200), strategy.MarketContext{})
	if c.ReturnOnRisk != 0 {
		t.Errorf("zero max risk should not contribute ror, got %v", c.ReturnOnRisk)
	}
	if total < 0 || total > 1 {
		t.Errorf("score out of [0,1]: %v", total)
	}
}
