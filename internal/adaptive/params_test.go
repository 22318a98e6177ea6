package adaptive

import "testing"

func TestConfigPureLookup(t *testing.T) {
	m := NewManager(nil)

	a := m.Config("SPY")
	b := m.Config("SPY")
	if a != b {
		t.Errorf("same symbol should yield identical parameters: %+v vs %+v", a, b)
	}
}

func TestVolatilityTiers(t *testing.T) {
	m := NewManager(nil)

	cases := []struct {
		symbol string
		ptPct  float64
		slPct  float64
	}{
		{"IWM", 25, 200},  // high
		{"AAPL", 25, 200}, // high
		{"GLD", 25, 200},  // high
	}
	for _, tc := range cases {
		p := m.Config(tc.symbol)
		if p.ProfitTargetPct != tc.ptPct || p.StopLossPct != tc.slPct {
			t.Errorf("%s: got pt=%v sl=%v, want pt=%v sl=%v",
				tc.symbol, p.ProfitTargetPct, p.StopLossPct, tc.ptPct, tc.slPct)
		}
	}
}

func TestProfitTargetOverrides(t *testing.T) {
	m := NewManager(nil)

	if p := m.Config("TSLA"); p.ProfitTargetPct != 20 {
		t.Errorf("TSLA override should set profit target to 20%%, got %v", p.ProfitTargetPct)
	}
	if p := m.Config("SPY"); p.ProfitTargetPct != 30 {
		t.Errorf("SPY override should set profit target to 30%%, got %v", p.ProfitTargetPct)
	}
	// 覆盖不影响止损。
	if p := m.Config("TSLA"); p.StopLossPct != 200 {
		t.Errorf("TSLA stop loss should stay at high-vol default 200%%, got %v", p.StopLossPct)
	}
}

func TestDTEWindowsByAssetClass(t *testing.T) {
	m := NewManager(nil)

	cases := []struct {
		symbol   string
		min, max int
	}{
		{"SPY", 49, 56},
		{"NVDA", 42, 49},
		{"GLD", 56, 60},
	}
	for _, tc := range cases {
		min, max := m.DTERange(tc.symbol)
		if min != tc.min || max != tc.max {
			t.Errorf("%s: dte window [%d,%d], want [%d,%d]", tc.symbol, min, max, tc.min, tc.max)
		}
	}
}

func TestUnknownSymbolDefaults(t *testing.T) {
	m := NewManager(nil)

	p := m.Config("XYZ")
	if p.AssetClass != AssetETF || p.Volatility != VolatilityMedium {
		t.Errorf("unknown symbol should default to etf/medium, got %s/%s", p.AssetClass, p.Volatility)
	}
	if p.ProfitTargetPct != 35 || p.StopLossPct != 150 {
		t.Errorf("unknown symbol should use medium-vol defaults, got pt=%v sl=%v",
			p.ProfitTargetPct, p.StopLossPct)
	}
	if p.Reasoning == "" {
		t.Error("unknown symbol should carry a default-reasoning note")
	}
}

func TestDollarHelpers(t *testing.T) {
	m := NewManager(nil)

	// SPY: 止盈30%, 止损150%。
	if got := m.ProfitTarget("SPY", 200); got != 60 {
		t.Errorf("profit target for $200 premium should be $60, got %v", got)
	}
	if got := m.StopLoss("SPY", -400); got != 600 {
		t.Errorf("stop loss for $400 max risk should be $600, got %v", got)
	}
}
