// Package adaptive 按标的分类提供自适应风险参数：
// 止盈/止损百分比与建仓 DTE 窗口。全部为静态查表，
// 同一标的任意次查询结果一致。
package adaptive

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// VolatilityCategory 标的波动率分类。
type VolatilityCategory string

const (
	VolatilityHigh   VolatilityCategory = "high"
	VolatilityMedium VolatilityCategory = "medium"
	VolatilityLow    VolatilityCategory = "low"
)

// AssetClass 标的资产类别，决定建仓 DTE 窗口。
type AssetClass string

const (
	AssetETF       AssetClass = "etf"
	AssetEquity    AssetClass = "equity"
	AssetTech      AssetClass = "tech"
	AssetCommodity AssetClass = "commodity"
)

// TickerParameters 单一标的的完整风险参数。
type TickerParameters struct {
	Symbol          string
	AssetClass      AssetClass
	Volatility      VolatilityCategory
	ProfitTargetPct float64 // 权利金的百分比
	StopLossPct     float64 // 最大风险的百分比
	DTEMin          int
	DTEMax          int
	Reasoning       string
}

type classification struct {
	class      AssetClass
	volatility VolatilityCategory
}

// 内置标的分类。未收录的标的按 ETF/中波动处理。
var classifications = map[string]classification{
	"SPY":  {AssetETF, VolatilityMedium},
	"QQQ":  {AssetETF, VolatilityMedium},
	"IWM":  {AssetETF, VolatilityHigh},
	"AAPL": {AssetTech, VolatilityHigh},
	"MSFT": {AssetTech, VolatilityHigh},
	"AMZN": {AssetTech, VolatilityHigh},
	"NVDA": {AssetTech, VolatilityHigh},
	"TSLA": {AssetTech, VolatilityHigh},
	"GLD":  {AssetCommodity, VolatilityHigh},
	"SLV":  {AssetCommodity, VolatilityHigh},
}

// 个别标的对波动率档位默认值的覆盖，只覆盖止盈。
var profitTargetOverrides = map[string]float64{
	"TSLA": 20,
	"QQQ":  30,
	"SPY":  30,
}

// Manager 自适应参数管理器，带结果缓存。
type Manager struct {
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[string]TickerParameters
}

// NewManager 创建参数管理器。
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		logger: logger,
		cache:  make(map[string]TickerParameters),
	}
}

// Config 返回标的的完整风险参数。
func (m *Manager) Config(symbol string) TickerParameters {
	m.mu.RLock()
	cached, ok := m.cache[symbol]
	m.mu.RUnlock()
	if ok {
		return cached
	}

	params := resolve(symbol)

	m.mu.Lock()
	m.cache[symbol] = params
	m.mu.Unlock()

	m.logger.Debug("自适应参数",
		zap.String("symbol", symbol),
		zap.String("asset_class", string(params.AssetClass)),
		zap.String("volatility", string(params.Volatility)),
		zap.Float64("profit_target_pct", params.ProfitTargetPct),
		zap.Float64("stop_loss_pct", params.StopLossPct))
	return params
}

func resolve(symbol string) TickerParameters {
	cls, known := classifications[symbol]
	if !known {
		cls = classification{AssetETF, VolatilityMedium}
	}

	var ptPct, slPct float64
	switch cls.volatility {
	case VolatilityHigh:
		ptPct, slPct = 25, 200
	case VolatilityLow:
		ptPct, slPct = 50, 100
	default:
		ptPct, slPct = 35, 150
	}

	if override, ok := profitTargetOverrides[symbol]; ok {
		ptPct = override
	}

	var dteMin, dteMax int
	switch cls.class {
	case AssetETF:
		dteMin, dteMax = 49, 56
	case AssetCommodity:
		dteMin, dteMax = 56, 60
	default: // equity / tech
		dteMin, dteMax = 42, 49
	}

	reasoning := fmt.Sprintf("%s/%s: 止盈 %.0f%% 止损 %.0f%% DTE %d-%d",
		cls.class, cls.volatility, ptPct, slPct, dteMin, dteMax)
	if !known {
		reasoning = "未收录标的, 按 ETF/中波动默认参数处理: " + reasoning
	}

	return TickerParameters{
		Symbol:          symbol,
		AssetClass:      cls.class,
		Volatility:      cls.volatility,
		ProfitTargetPct: ptPct,
		StopLossPct:     slPct,
		DTEMin:          dteMin,
		DTEMax:          dteMax,
		Reasoning:       reasoning,
	}
}

// DTERange 返回标的的建仓 DTE 窗口。
func (m *Manager) DTERange(symbol string) (min, max int) {
	p := m.Config(symbol)
	return p.DTEMin, p.DTEMax
}

// ProfitTarget 按权利金(美元)计算止盈金额。
func (m *Manager) ProfitTarget(symbol string, premium float64) float64 {
	return premium * m.Config(symbol).ProfitTargetPct / 100
}

// StopLoss 按最大风险(美元)计算止损金额，入参取绝对值。
func (m *Manager) StopLoss(symbol string, maxRisk float64) float64 {
	if maxRisk < 0 {
		maxRisk = -maxRisk
	}
	return maxRisk * m.Config(symbol).StopLossPct / 100
}
