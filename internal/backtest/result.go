package backtest

import (
	"time"

	"options-backtest/internal/strategy"
)

// EquityPoint 权益曲线上的一个采样点。
type EquityPoint struct {
	Date            time.Time
	Equity          float64
	Cash            float64
	OpenPositions   int
	ClosedPositions int
}

// TradeRecord 平仓流水中的一笔交易。
type TradeRecord struct {
	Symbol     string
	Strategy   string
	EntryDate  time.Time
	ExitDate   time.Time
	Expiration time.Time
	DTEAtEntry int
	DaysHeld   int
	Premium    float64
	MaxRisk    float64
	ExitValue  float64
	PnL        float64
	ReturnPct  float64
	Profitable bool
	Status     string
	ExitReason string
}

// Result 汇总回测结果。
type Result struct {
	Metrics     Metrics
	Trades      []TradeRecord
	EquityCurve []EquityPoint
	FinalEquity float64
	Valuation   ValuationStats
}

func toTradeRecord(pos *strategy.Position) TradeRecord {
	returnPct := 0.0
	if risk := pos.MaxRisk; risk != 0 {
		if risk < 0 {
			risk = -risk
		}
		returnPct = pos.PnL / risk * 100
	}
	return TradeRecord{
		Symbol:     pos.Symbol,
		Strategy:   pos.Strategy,
		EntryDate:  pos.EntryDate,
		ExitDate:   pos.ExitDate,
		Expiration: pos.Expiration,
		DTEAtEntry: pos.DTEAtEntry,
		DaysHeld:   pos.DaysHeld,
		Premium:    pos.Premium,
		MaxRisk:    pos.MaxRisk,
		ExitValue:  pos.ExitValue,
		PnL:        pos.PnL,
		ReturnPct:  returnPct,
		Profitable: pos.PnL > 0,
		Status:     string(pos.Status),
		ExitReason: pos.ExitCode,
	}
}
