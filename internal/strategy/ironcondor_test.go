package strategy

import (
	"math"
	"testing"
	"time"

	"options-backtest/internal/adaptive"
	"options-backtest/internal/marketdata"
	"options-backtest/internal/pricing"
)

func testDay() time.Time {
	return time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC)
}

func chainQuote(typ pricing.OptionType, strike, delta, price float64) marketdata.Quote {
	d := testDay()
	return marketdata.Quote{
		Date:         d,
		Symbol:       "SPY",
		Type:         typ,
		Strike:       strike,
		Expiration:   d.AddDate(0, 0, 45),
		DTE:          45,
		Delta:        delta,
		IV:           0.25,
		Close:        price,
		VWAP:         math.NaN(),
		Volume:       100,
		OpenInterest: 500,
	}
}

// condorChain 构造一条可以组出铁鹰的最小期权链。
func condorChain() []marketdata.Quote {
	return []marketdata.Quote{
		chainQuote(pricing.Put, 650, -0.20, 1.80),  // 卖出腿
		chainQuote(pricing.Put, 645, -0.08, 1.10),  // 保护腿
		chainQuote(pricing.Call, 690, 0.20, 1.60),  // 卖出腿
		chainQuote(pricing.Call, 695, 0.08, 0.90),  // 保护腿
	}
}

func newTestCondor(t *testing.T) *IronCondor {
	t.Helper()
	s, err := NewIronCondor("SPY", DefaultIronCondorConfig(), adaptive.NewManager(nil), nil)
	if err != nil {
		t.Fatalf("new iron condor: %v", err)
	}
	return s
}

func TestIronCondorScanPairsWings(t *testing.T) {
	s := newTestCondor(t)
	mkt := MarketContext{UnderlyingPrice: 670, IVRank: 75}

	opps := s.Scan(condorChain(), mkt)
	if len(opps) != 1 {
		t.Fatalf("expected 1 opportunity, got %d", len(opps))
	}

	opp := opps[0]
	wantCredit := (1.80 - 1.10) + (1.60 - 0.90)
	if math.Abs(opp.Credit-wantCredit) > 1e-9 {
		t.Errorf("credit = %v, want %v", opp.Credit, wantCredit)
	}
	wantRisk := (5 - wantCredit) * 100
	if math.Abs(opp.MaxRisk-wantRisk) > 1e-9 {
		t.Errorf("max risk = %v, want %v", opp.MaxRisk, wantRisk)
	}
	wantRoR := wantCredit / 5 * 100
	if math.Abs(opp.ReturnOnRisk-wantRoR) > 1e-9 {
		t.Errorf("return on risk = %v, want %v", opp.ReturnOnRisk, wantRoR)
	}
	if len(opp.Legs) != 4 {
		t.Errorf("expected 4 legs, got %d", len(opp.Legs))
	}
}

func TestIronCondorScanRejectsLowIVRank(t *testing.T) {
	s := newTestCondor(t)
	mkt := MarketContext{UnderlyingPrice: 670, IVRank: 30}

	if opps := s.Scan(condorChain(), mkt); len(opps) != 0 {
		t.Errorf("expected no opportunities below min iv rank, got %d", len(opps))
	}
}

func TestIronCondorScanRejectsThinCredit(t *testing.T) {
	s := newTestCondor(t)
	mkt := MarketContext{UnderlyingPrice: 670, IVRank: 75}

	chain := condorChain()
	chain[0].Close = 1.15 // 净权利金降到 0.60 以下
	chain[2].Close = 1.05

	if opps := s.Scan(chain, mkt); len(opps) != 0 {
		t.Errorf("expected no opportunities below min credit, got %d", len(opps))
	}
}

func TestIronCondorScanSkipsMissingWing(t *testing.T) {
	s := newTestCondor(t)
	mkt := MarketContext{UnderlyingPrice: 670, IVRank: 75}

	chain := condorChain()[:3] // 缺少看涨保护腿

	if opps := s.Scan(chain, mkt); len(opps) != 0 {
		t.Errorf("expected no opportunities without a protective wing, got %d", len(opps))
	}
}

func TestIronCondorConstruct(t *testing.T) {
	s := newTestCondor(t)
	mkt := MarketContext{UnderlyingPrice: 670, IVRank: 75}

	opps := s.Scan(condorChain(), mkt)
	if len(opps) != 1 {
		t.Fatalf("expected 1 opportunity, got %d", len(opps))
	}

	pos, err := s.Construct(opps[0])
	if err != nil {
		t.Fatalf("construct failed: %v", err)
	}

	if pos.Status != StatusOpen {
		t.Errorf("new position should be open, got %s", pos.Status)
	}
	if math.Abs(pos.Premium-opps[0].Credit*100) > 1e-9 {
		t.Errorf("premium = %v, want %v", pos.Premium, opps[0].Credit*100)
	}
	// SPY: 止盈30%权利金, 止损150%最大风险。
	if math.Abs(pos.ProfitTarget-pos.Premium*0.30) > 1e-9 {
		t.Errorf("profit target = %v, want %v", pos.ProfitTarget, pos.Premium*0.30)
	}
	if math.Abs(pos.StopLoss-pos.MaxRisk*1.50) > 1e-9 {
		t.Errorf("stop loss = %v, want %v", pos.StopLoss, pos.MaxRisk*1.50)
	}
}

func TestIronCondorIntrinsicAtExpiry(t *testing.T) {
	s := newTestCondor(t)
	opps := s.Scan(condorChain(), MarketContext{UnderlyingPrice: 670, IVRank: 75})
	pos, err := s.Construct(opps[0])
	if err != nil {
		t.Fatalf("construct failed: %v", err)
	}

	// 收盘在区间内: 四腿皆归零。
	if v := pos.IntrinsicValue(670); v != 0 {
		t.Errorf("inside the wings all legs expire worthless, got %v", v)
	}
	// 跌破卖出 put 但未到保护腿: 欠 (650-647)×100。
	if v := pos.IntrinsicValue(647); math.Abs(v-300) > 1e-9 {
		t.Errorf("short put breached: want 300, got %v", v)
	}
	// 跌穿保护腿: 损失封顶在翼宽。
	if v := pos.IntrinsicValue(600); v != 500 {
		t.Errorf("loss capped at wing width: want 500, got %v", v)
	}
}

func TestIronCondorEvaluateExit(t *testing.T) {
	s := newTestCondor(t)
	pos := &Position{Premium: 140, MaxRisk: 360, ProfitTarget: 42, StopLoss: 540}

	if d := s.EvaluateExit(pos, 50, 40); !d.Exit || d.Reason != "profit_target" {
		t.Errorf("expected profit_target exit, got %+v", d)
	}
	if d := s.EvaluateExit(pos, -600, 40); !d.Exit || d.Reason != "stop_loss" {
		t.Errorf("expected stop_loss exit, got %+v", d)
	}
	if d := s.EvaluateExit(pos, 10, 5); !d.Exit || d.Reason != "rollout_window" {
		t.Errorf("expected rollout_window exit at dte=5, got %+v", d)
	}
	if d := s.EvaluateExit(pos, 10, 40); d.Exit {
		t.Errorf("expected no exit mid-life, got %+v", d)
	}

	hot := &Position{Premium: 140, MaxRisk: 360, ProfitTarget: 42, StopLoss: 540, NetDelta: -0.55}
	if d := s.EvaluateExit(hot, 10, 30); !d.Exit || d.Reason != "delta_breach" {
		t.Errorf("expected delta_breach at dte=30 with |delta|=0.55, got %+v", d)
	}
}
