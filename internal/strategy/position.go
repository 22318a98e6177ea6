package strategy

import (
	"time"

	"options-backtest/internal/pricing"
)

// Status 仓位生命周期状态。开仓后只会进入唯一一个终态。
type Status string

const (
	StatusOpen              Status = "open"
	StatusClosedProfit      Status = "closed_profit"
	StatusClosedLoss        Status = "closed_loss"
	StatusClosedEnd         Status = "closed_end"
	StatusExpiredProfitable Status = "expired_profitable"
	StatusExpiredLoss       Status = "expired_loss"
)

// Terminal 判断状态是否为终态。
func (s Status) Terminal() bool {
	return s != StatusOpen
}

// Side 腿的方向。
type Side string

const (
	Short Side = "short"
	Long  Side = "long"
)

// Leg 仓位中的单条腿，入场时的快照。
type Leg struct {
	Type       pricing.OptionType
	Strike     float64
	Side       Side
	EntryPrice float64 // 每股
	Delta      float64
	Gamma      float64
	Theta      float64
	Vega       float64
	Contracts  int
}

// Position 一笔已建仓的策略仓位。金额字段均为美元
// (每股价格 ×100)，Premium 为净收取的权利金。
type Position struct {
	Symbol          string
	Strategy        string
	EntryDate       time.Time
	Expiration      time.Time
	DTEAtEntry      int
	UnderlyingEntry float64
	Legs            []Leg

	Premium      float64 // 美元
	MaxRisk      float64 // 美元
	ProfitTarget float64 // 美元
	StopLoss     float64 // 美元

	NetDelta float64
	NetGamma float64
	NetTheta float64
	NetVega  float64

	Status    Status
	ExitDate  time.Time
	ExitCode  string  // 平仓原因
	ExitValue float64 // 平仓时组合价值, 美元
	PnL       float64
	DaysHeld  int

	// 最近一次成功估值的组合价值，用于权益曲线。
	LastMark float64
	Marked   bool
}

// IntrinsicValue 到期日按内在价值结算的组合价值(美元)。
// short 腿为正(平仓需付出)，long 腿为负(平仓可收回)。
func (p *Position) IntrinsicValue(finalPrice float64) float64 {
	total := 0.0
	for _, leg := range p.Legs {
		v := pricing.Intrinsic(finalPrice, leg.Strike, leg.Type) * 100 * float64(leg.Contracts)
		if leg.Side == Short {
			total += v
		} else {
			total -= v
		}
	}
	return total
}
