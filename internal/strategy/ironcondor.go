package strategy

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"options-backtest/internal/adaptive"
	"options-backtest/internal/marketdata"
	"options-backtest/internal/pricing"
)

// IronCondorConfig 铁鹰策略参数。
type IronCondorConfig struct {
	DTEMin          int
	DTEMax          int
	ShortDeltaMin   float64
	ShortDeltaMax   float64
	LongDeltaMin    float64
	LongDeltaMax    float64
	WingWidth       float64
	MinIVRank       float64
	MinVolume       float64
	MinOpenInterest float64
	MinCredit       float64 // 每股
}

// DefaultIronCondorConfig 默认参数。
func DefaultIronCondorConfig() IronCondorConfig {
	return IronCondorConfig{
		DTEMin:          15,
		DTEMax:          60,
		ShortDeltaMin:   0.16,
		ShortDeltaMax:   0.25,
		LongDeltaMin:    0.05,
		LongDeltaMax:    0.10,
		WingWidth:       5,
		MinIVRank:       60,
		MinVolume:       10,
		MinOpenInterest: 50,
		MinCredit:       0.60,
	}
}

// IronCondor 铁鹰：卖出 OTM 看跌/看涨价差各一组，
// 四腿同到期，收取净权利金。
type IronCondor struct {
	cfg      IronCondorConfig
	symbol   string
	adaptive *adaptive.Manager
	logger   *zap.Logger
}

// NewIronCondor 创建铁鹰策略实例。
func NewIronCondor(symbol string, cfg IronCondorConfig, mgr *adaptive.Manager, logger *zap.Logger) (*IronCondor, error) {
	if symbol == "" {
		return nil, errors.New("strategy: 标的不能为空")
	}
	if mgr == nil {
		return nil, errors.New("strategy: 自适应参数管理器不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IronCondor{cfg: cfg, symbol: symbol, adaptive: mgr, logger: logger}, nil
}

func (s *IronCondor) Name() string { return "iron_condor" }

type legKey struct {
	expiration time.Time
	typ        pricing.OptionType
	strike     float64
}

// Scan 在当日链上构造铁鹰机会，按风险回报率降序。
func (s *IronCondor) Scan(chain []marketdata.Quote, mkt MarketContext) []Opportunity {
	selector := Selector{
		DTE:        DTEFilter{Min: s.cfg.DTEMin, Max: s.cfg.DTEMax},
		Liquidity:  LiquidityFilter{MinVolume: s.cfg.MinVolume, MinOpenInterest: s.cfg.MinOpenInterest, MaxSpreadPct: assumedSpreadPct},
		Volatility: VolatilityFilter{MinIVRank: s.cfg.MinIVRank},
		Delta:      DeltaFilter{Min: s.cfg.ShortDeltaMin, Max: s.cfg.ShortDeltaMax},
	}
	shorts := selector.Select(chain, mkt)
	if len(shorts) == 0 {
		return nil
	}

	// 保护腿在未过滤链中按精确行权价查找。
	byKey := make(map[legKey]marketdata.Quote, len(chain))
	for _, q := range chain {
		byKey[legKey{q.Expiration, q.Type, q.Strike}] = q
	}

	putSpreads := make(map[time.Time][][2]marketdata.Quote)
	callSpreads := make(map[time.Time][][2]marketdata.Quote)
	for _, short := range shorts {
		var longStrike float64
		if short.Type == pricing.Put {
			longStrike = short.Strike - s.cfg.WingWidth
		} else {
			longStrike = short.Strike + s.cfg.WingWidth
		}

		long, ok := byKey[legKey{short.Expiration, short.Type, longStrike}]
		if !ok {
			continue
		}
		if d := long.AbsDelta(); d < s.cfg.LongDeltaMin || d > s.cfg.LongDeltaMax {
			continue
		}

		pair := [2]marketdata.Quote{short, long}
		if short.Type == pricing.Put {
			putSpreads[short.Expiration] = append(putSpreads[short.Expiration], pair)
		} else {
			callSpreads[short.Expiration] = append(callSpreads[short.Expiration], pair)
		}
	}

	var opps []Opportunity
	for expiration, puts := range putSpreads {
		calls, ok := callSpreads[expiration]
		if !ok {
			continue
		}
		for _, ps := range puts {
			for _, cs := range calls {
				if opp, ok := s.build(ps, cs, mkt.UnderlyingPrice); ok {
					opps = append(opps, opp)
				}
			}
		}
	}

	// 按到期与行权价补足排序键, 全序消除价差组合映射的遍历随机性。
	sort.Slice(opps, func(i, j int) bool {
		a, b := opps[i], opps[j]
		if a.ReturnOnRisk != b.ReturnOnRisk {
			return a.ReturnOnRisk > b.ReturnOnRisk
		}
		if a.Credit != b.Credit {
			return a.Credit > b.Credit
		}
		if !a.Expiration.Equal(b.Expiration) {
			return a.Expiration.Before(b.Expiration)
		}
		if a.Legs[0].Quote.Strike != b.Legs[0].Quote.Strike {
			return a.Legs[0].Quote.Strike < b.Legs[0].Quote.Strike
		}
		return a.Legs[2].Quote.Strike < b.Legs[2].Quote.Strike
	})
	return opps
}

func (s *IronCondor) build(put, call [2]marketdata.Quote, underlying float64) (Opportunity, bool) {
	shortPut, longPut := put[0], put[1]
	shortCall, longCall := call[0], call[1]

	// 看涨价差必须位于看跌价差上方。
	if shortCall.Strike <= shortPut.Strike {
		return Opportunity{}, false
	}

	prices := make([]float64, 0, 4)
	for _, q := range []marketdata.Quote{shortPut, longPut, shortCall, longCall} {
		p, ok := q.Price()
		if !ok {
			return Opportunity{}, false
		}
		prices = append(prices, p)
	}

	credit := (prices[0] - prices[1]) + (prices[2] - prices[3])
	if credit < s.cfg.MinCredit {
		return Opportunity{}, false
	}

	maxRisk := (s.cfg.WingWidth - credit) * 100
	if maxRisk <= 0 {
		return Opportunity{}, false
	}

	netDelta := longPut.Delta - shortPut.Delta + longCall.Delta - shortCall.Delta
	avgIV := (shortPut.IV + longPut.IV + shortCall.IV + longCall.IV) / 4

	return Opportunity{
		Symbol:     shortPut.Symbol,
		Strategy:   s.Name(),
		Date:       shortPut.Date,
		Expiration: shortPut.Expiration,
		DTE:        shortPut.DTE,
		Underlying: underlying,
		Legs: []LegQuote{
			{Quote: shortPut, Side: Short},
			{Quote: longPut, Side: Long},
			{Quote: shortCall, Side: Short},
			{Quote: longCall, Side: Long},
		},
		Credit:       credit,
		MaxRisk:      maxRisk,
		ReturnOnRisk: credit / s.cfg.WingWidth * 100,
		NetDelta:     netDelta,
		AvgIV:        avgIV,
	}, true
}

// Construct 将铁鹰机会落实为仓位，止盈止损来自自适应参数。
func (s *IronCondor) Construct(opp Opportunity) (*Position, error) {
	if len(opp.Legs) != 4 {
		return nil, fmt.Errorf("strategy: 铁鹰需要4条腿, 实际 %d 条", len(opp.Legs))
	}

	premium := opp.Credit * 100
	pos := &Position{
		Symbol:          opp.Symbol,
		Strategy:        s.Name(),
		EntryDate:       opp.Date,
		Expiration:      opp.Expiration,
		DTEAtEntry:      opp.DTE,
		UnderlyingEntry: opp.Underlying,
		Premium:         premium,
		MaxRisk:         opp.MaxRisk,
		ProfitTarget:    s.adaptive.ProfitTarget(opp.Symbol, premium),
		StopLoss:        s.adaptive.StopLoss(opp.Symbol, opp.MaxRisk),
		Status:          StatusOpen,
	}

	for _, lq := range opp.Legs {
		price, ok := lq.Quote.Price()
		if !ok {
			return nil, fmt.Errorf("strategy: 腿 %s@%v 无入场价", lq.Quote.Type, lq.Quote.Strike)
		}
		pos.Legs = append(pos.Legs, Leg{
			Type:       lq.Quote.Type,
			Strike:     lq.Quote.Strike,
			Side:       lq.Side,
			EntryPrice: price,
			Delta:      lq.Quote.Delta,
			Gamma:      lq.Quote.Gamma,
			Theta:      lq.Quote.Theta,
			Vega:       lq.Quote.Vega,
			Contracts:  1,
		})

		sign := 1.0
		if lq.Side == Short {
			sign = -1
		}
		pos.NetDelta += sign * lq.Quote.Delta
		pos.NetGamma += sign * lq.Quote.Gamma
		pos.NetTheta += sign * lq.Quote.Theta
		pos.NetVega += sign * lq.Quote.Vega
	}
	return pos, nil
}

// EvaluateExit 按 DTE 分档评估离场。
//
//	dte <= 21: 展期窗口 7 天, delta 预警 0.40
//	dte <= 35: 展期窗口 14 天, delta 预警 0.50
//	其余:      展期窗口 21 天, delta 预警 0.60
func (s *IronCondor) EvaluateExit(pos *Position, pnl float64, dte int) ExitDecision {
	if pnl >= pos.ProfitTarget {
		return ExitDecision{Exit: true, Reason: "profit_target"}
	}
	if pnl <= -pos.StopLoss {
		return ExitDecision{Exit: true, Reason: "stop_loss"}
	}

	rollWindow := 21
	deltaAlert := 0.60
	switch {
	case dte <= 21:
		rollWindow, deltaAlert = 7, 0.40
	case dte <= 35:
		rollWindow, deltaAlert = 14, 0.50
	}

	if dte <= rollWindow {
		return ExitDecision{Exit: true, Reason: "rollout_window"}
	}
	if d := abs(pos.NetDelta); d >= deltaAlert {
		return ExitDecision{Exit: true, Reason: "delta_breach"}
	}
	return ExitDecision{}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
