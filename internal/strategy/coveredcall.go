package strategy

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"options-backtest/internal/adaptive"
	"options-backtest/internal/marketdata"
	"options-backtest/internal/pricing"
)

// CoveredCallMode 备兑开仓的两种玩法。
type CoveredCallMode string

const (
	// ModeIncome 收租：卖低 delta OTM call 赚权利金，不想被行权。
	ModeIncome CoveredCallMode = "income"
	// ModeAssignment 出货：卖高 delta call 主动寻求被行权减仓。
	ModeAssignment CoveredCallMode = "assignment"
)

// CoveredCallConfig 备兑开仓参数。
type CoveredCallConfig struct {
	DTEMin          int
	DTEMax          int
	DeltaMin        float64
	DeltaMax        float64
	MinIVRank       float64
	MinVolume       float64
	MinOpenInterest float64
	MinPremium      float64 // 每股
}

// DefaultCoveredCallConfig 按模式给出默认参数。
func DefaultCoveredCallConfig(mode CoveredCallMode) CoveredCallConfig {
	cfg := CoveredCallConfig{
		DTEMin:          15,
		DTEMax:          60,
		MinIVRank:       40,
		MinVolume:       10,
		MinOpenInterest: 50,
	}
	if mode == ModeAssignment {
		cfg.DeltaMin, cfg.DeltaMax = 0.60, 0.70
		cfg.MinPremium = 0.30
	} else {
		cfg.DeltaMin, cfg.DeltaMax = 0.30, 0.40
		cfg.MinPremium = 0.25
	}
	return cfg
}

// CoveredCall 备兑开仓：持有正股的前提下卖出看涨期权。
// 回测只跟踪期权腿，股票腿以建仓时标的价入账。
type CoveredCall struct {
	cfg      CoveredCallConfig
	mode     CoveredCallMode
	symbol   string
	adaptive *adaptive.Manager
	logger   *zap.Logger
}

// NewCoveredCall 创建备兑开仓策略实例。
func NewCoveredCall(symbol string, mode CoveredCallMode, cfg CoveredCallConfig, mgr *adaptive.Manager, logger *zap.Logger) (*CoveredCall, error) {
	if symbol == "" {
		return nil, errors.New("strategy: 标的不能为空")
	}
	if mode != ModeIncome && mode != ModeAssignment {
		return nil, fmt.Errorf("strategy: 备兑模式非法 %q", mode)
	}
	if mgr == nil {
		return nil, errors.New("strategy: 自适应参数管理器不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CoveredCall{cfg: cfg, mode: mode, symbol: symbol, adaptive: mgr, logger: logger}, nil
}

func (s *CoveredCall) Name() string {
	return "covered_call_" + string(s.mode)
}

// Scan 在当日链上寻找备兑卖出的 call。
// 收租模式按年化收益降序，出货模式按 |delta| 降序。
func (s *CoveredCall) Scan(chain []marketdata.Quote, mkt MarketContext) []Opportunity {
	if mkt.UnderlyingPrice <= 0 {
		return nil
	}

	selector := Selector{
		DTE:        DTEFilter{Min: s.cfg.DTEMin, Max: s.cfg.DTEMax},
		Liquidity:  LiquidityFilter{MinVolume: s.cfg.MinVolume, MinOpenInterest: s.cfg.MinOpenInterest, MaxSpreadPct: assumedSpreadPct},
		Volatility: VolatilityFilter{MinIVRank: s.cfg.MinIVRank},
		Delta:      DeltaFilter{Min: s.cfg.DeltaMin, Max: s.cfg.DeltaMax},
	}

	var opps []Opportunity
	for _, q := range selector.Select(chain, mkt) {
		if q.Type != pricing.Call {
			continue
		}
		if opp, ok := s.build(q, mkt.UnderlyingPrice); ok {
			opps = append(opps, opp)
		}
	}

	sort.Slice(opps, func(i, j int) bool {
		a, b := opps[i], opps[j]
		if s.mode == ModeAssignment {
			if a.AssignmentProb != b.AssignmentProb {
				return a.AssignmentProb > b.AssignmentProb
			}
		} else if a.AnnualizedReturn != b.AnnualizedReturn {
			return a.AnnualizedReturn > b.AnnualizedReturn
		}
		if a.Credit != b.Credit {
			return a.Credit > b.Credit
		}
		if !a.Expiration.Equal(b.Expiration) {
			return a.Expiration.Before(b.Expiration)
		}
		return a.Legs[0].Quote.Strike < b.Legs[0].Quote.Strike
	})
	return opps
}

func (s *CoveredCall) build(q marketdata.Quote, underlying float64) (Opportunity, bool) {
	premium, ok := q.Price()
	if !ok || premium < s.cfg.MinPremium {
		return Opportunity{}, false
	}
	if q.DTE <= 0 {
		return Opportunity{}, false
	}

	ros := premium / underlying * 100
	moneyness := OTM
	switch {
	case abs(q.Strike-underlying) < 5:
		moneyness = ATM
	case q.Strike < underlying:
		moneyness = ITM
	}

	return Opportunity{
		Symbol:     q.Symbol,
		Strategy:   s.Name(),
		Date:       q.Date,
		Expiration: q.Expiration,
		DTE:        q.DTE,
		Underlying: underlying,
		Legs:       []LegQuote{{Quote: q, Side: Short}},

		Credit:       premium,
		MaxRisk:      underlying*100 - premium*100,
		ReturnOnRisk: ros,
		NetDelta:     -q.Delta,
		AvgIV:        q.IV,

		ReturnOnStock:      ros,
		AnnualizedReturn:   ros * 365 / float64(q.DTE),
		DownsideProtection: ros,
		UpsidePotential:    (q.Strike - underlying + premium) / underlying * 100,
		PoP:                (1 - q.AbsDelta()) * 100,
		AssignmentProb:     q.AbsDelta() * 100,
		Moneyness:          moneyness,
	}, true
}

// Construct 将备兑机会落实为仓位。
func (s *CoveredCall) Construct(opp Opportunity) (*Position, error) {
	if len(opp.Legs) != 1 {
		return nil, fmt.Errorf("strategy: 备兑开仓只有1条期权腿, 实际 %d 条", len(opp.Legs))
	}

	q := opp.Legs[0].Quote
	premium := opp.Credit * 100
	return &Position{
		Symbol:          opp.Symbol,
		Strategy:        s.Name(),
		EntryDate:       opp.Date,
		Expiration:      opp.Expiration,
		DTEAtEntry:      opp.DTE,
		UnderlyingEntry: opp.Underlying,
		Legs: []Leg{{
			Type:       q.Type,
			Strike:     q.Strike,
			Side:       Short,
			EntryPrice: opp.Credit,
			Delta:      q.Delta,
			Gamma:      q.Gamma,
			Theta:      q.Theta,
			Vega:       q.Vega,
			Contracts:  1,
		}},
		Premium:      premium,
		MaxRisk:      opp.MaxRisk,
		ProfitTarget: s.adaptive.ProfitTarget(opp.Symbol, premium),
		StopLoss:     s.adaptive.StopLoss(opp.Symbol, opp.MaxRisk),
		NetDelta:     -q.Delta,
		NetGamma:     -q.Gamma,
		NetTheta:     -q.Theta,
		NetVega:      -q.Vega,
		Status:       StatusOpen,
	}, nil
}

// EvaluateExit 按模式评估离场。
//
// 收租模式分档止盈(权利金的 30/40/50%)，浮亏超过两倍权利金
// 止损；出货模式持有到期等待行权，不主动平仓。
func (s *CoveredCall) EvaluateExit(pos *Position, pnl float64, dte int) ExitDecision {
	if s.mode == ModeAssignment {
		return ExitDecision{}
	}

	ptPct, rollWindow := 50.0, 21
	switch {
	case dte <= 21:
		ptPct, rollWindow = 30, 7
	case dte <= 35:
		ptPct, rollWindow = 40, 14
	}

	if pnl >= pos.Premium*ptPct/100 {
		return ExitDecision{Exit: true, Reason: "profit_target"}
	}
	if pnl <= -2*pos.Premium {
		return ExitDecision{Exit: true, Reason: "stop_loss"}
	}
	if dte <= rollWindow {
		return ExitDecision{Exit: true, Reason: "rollout_window"}
	}
	return ExitDecision{}
}
