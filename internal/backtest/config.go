package backtest

import "time"

// Config 定义回测参数。
type Config struct {
	StartDate             time.Time // 起始日
	EndDate               time.Time // 结束日
	InitialCapital        float64   // 初始资金
	MaxPositions          int       // 全局持仓上限
	MaxPositionsPerTicker int       // 单标的持仓上限
	MinFreeCapital        float64   // 可用资金低于此值不再开仓
	Tickers               []string  // 回测标的
}

func (c *Config) normalize() Config {
	cfg := *c
	if cfg.InitialCapital <= 0 {
		cfg.InitialCapital = 100000
	}
	if cfg.MaxPositions <= 0 {
		cfg.MaxPositions = 5
	}
	if cfg.MaxPositionsPerTicker <= 0 {
		cfg.MaxPositionsPerTicker = 2
	}
	if cfg.MinFreeCapital <= 0 {
		cfg.MinFreeCapital = 5000
	}
	return cfg
}
