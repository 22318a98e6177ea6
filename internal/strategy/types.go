// Package strategy 定义期权卖方策略的扫描、建仓与离场规则。
// 各策略共享固定顺序的过滤管线与统一的机会(Opportunity)表示。
package strategy

import (
	"time"

	"options-backtest/internal/marketdata"
)

// MarketContext 扫描时的市场环境。
type MarketContext struct {
	UnderlyingPrice float64
	IVRank          float64 // [0,100]
	CurrentIV       float64
}

// LegQuote 机会中的一条腿及其方向。
type LegQuote struct {
	Quote marketdata.Quote
	Side  Side
}

// Moneyness 相对标的价格的实值程度。
type Moneyness string

const (
	ITM Moneyness = "itm"
	ATM Moneyness = "atm"
	OTM Moneyness = "otm"
)

// Opportunity 扫描产出的候选建仓机会。
// Credit 为每股净权利金，MaxRisk 为每份合约的美元风险。
type Opportunity struct {
	Symbol     string
	Strategy   string
	Date       time.Time
	Expiration time.Time
	DTE        int
	Underlying float64
	Legs       []LegQuote

	Credit       float64 // 每股
	MaxRisk      float64 // 美元
	ReturnOnRisk float64 // 百分比
	NetDelta     float64
	AvgIV        float64

	// 备兑开仓专用指标。
	ReturnOnStock      float64 // 百分比
	AnnualizedReturn   float64 // 百分比
	DownsideProtection float64 // 百分比
	UpsidePotential    float64 // 百分比
	PoP                float64 // 百分比
	AssignmentProb     float64 // 百分比
	Moneyness          Moneyness
}

// ExitDecision 持仓管理评估结论。仅当 Exit 为真时平仓，
// 其余字段为提示性信息。
type ExitDecision struct {
	Exit   bool
	Reason string
}

// Strategy 单一策略的完整行为。
type Strategy interface {
	Name() string

	// Scan 在当日期权链上寻找建仓机会，按策略自身的
	// 排序规则降序返回。
	Scan(chain []marketdata.Quote, mkt MarketContext) []Opportunity

	// Construct 将机会落实为仓位，含止盈止损参数。
	Construct(opp Opportunity) (*Position, error)

	// EvaluateExit 按当日盈亏与 DTE 评估是否应平仓。
	// pnl 为当前浮动盈亏(美元)，dte 为剩余天数。
	EvaluateExit(pos *Position, pnl float64, dte int) ExitDecision
}
