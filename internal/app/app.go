// Package app 聚合核心依赖并驱动一次完整回测：
// 预加载期权链、运行引擎、输出报告并将结果落库。
package app

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"options-backtest/internal/adaptive"
	"options-backtest/internal/backtest"
	"options-backtest/internal/config"
	"options-backtest/internal/marketdata"
	"options-backtest/internal/probability"
	"options-backtest/internal/store"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Run 执行一次回测并落库。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("回测系统已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.Strings("tickers", a.cfg.Backtest.Tickers),
		zap.Strings("strategies", a.cfg.Backtest.Strategies),
	)

	loader, err := marketdata.NewLoader(a.store.DB(), a.logger)
	if err != nil {
		return err
	}
	if err := loader.Preload(ctx, a.cfg.Backtest.Tickers); err != nil {
		return fmt.Errorf("预加载期权链失败: %w", err)
	}

	a.probabilityReport(loader)

	engine, err := backtest.NewEngine(
		backtest.Config{
			StartDate:             a.cfg.Backtest.StartDate,
			EndDate:               a.cfg.Backtest.EndDate,
			InitialCapital:        a.cfg.Backtest.InitialCapital,
			MaxPositions:          a.cfg.Backtest.MaxPositions,
			MaxPositionsPerTicker: a.cfg.Backtest.MaxPositionsPerTicker,
			MinFreeCapital:        a.cfg.Backtest.MinFreeCapital,
			Tickers:               a.cfg.Backtest.Tickers,
		},
		loader,
		a.cfg.Backtest.Strategies,
		adaptive.NewManager(a.logger),
		a.logger,
	)
	if err != nil {
		return err
	}

	result, err := engine.Run(ctx)
	if err != nil {
		return fmt.Errorf("回测执行失败: %w", err)
	}

	a.report(result)

	ledger, err := backtest.NewLedger(a.store.DB(), a.logger)
	if err != nil {
		return err
	}
	runID := time.Now().UTC().Format("20060102T150405Z")
	if err := ledger.SaveRun(ctx, runID, result); err != nil {
		return err
	}
	return nil
}

// 概率报告的标准到期天数与获利区间半宽。
const (
	popHorizonDays = 45
	popBandPct     = 0.05
)

// probabilityReport 对每个标的输出经验与蒙特卡洛 PoP 对比。
// 仅作参考信息, 不影响引擎的任何决策。
func (a *App) probabilityReport(loader *marketdata.Loader) {
	for _, symbol := range a.cfg.Backtest.Tickers {
		prices := loader.UnderlyingHistory(symbol)
		if len(prices) < a.cfg.Probability.MinSamples+popHorizonDays {
			a.logger.Debug("历史不足, 跳过概率报告", zap.String("symbol", symbol))
			continue
		}
		current := prices[len(prices)-1]

		cmp, err := probability.Compare(prices, current, realizedVol(prices),
			a.cfg.Backtest.RiskFreeRate, popHorizonDays,
			current*(1-popBandPct), current*(1+popBandPct),
			a.cfg.Probability.MonteCarloTrials, a.cfg.Probability.Seed)
		if err != nil {
			a.logger.Warn("概率估计失败", zap.String("symbol", symbol), zap.Error(err))
			continue
		}

		a.logger.Info("获利概率参考",
			zap.String("symbol", symbol),
			zap.Float64("empirical_pct", cmp.Empirical.PoPPct),
			zap.Float64("monte_carlo_pct", cmp.MonteCarlo.PoPPct),
			zap.Float64("diff_pct", cmp.DiffPct),
			zap.String("interpretation", cmp.Interpretation))
	}
}

// realizedVol 以对数收益标准差年化估计历史波动率。
func realizedVol(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] > 0 && prices[i] > 0 {
			returns = append(returns, math.Log(prices[i]/prices[i-1]))
		}
	}
	if len(returns) < 2 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		diff := r - mean
		variance += diff * diff
	}
	variance /= float64(len(returns) - 1)

	return math.Sqrt(variance) * math.Sqrt(252)
}

func (a *App) report(result backtest.Result) {
	m := result.Metrics
	a.logger.Info("回测完成",
		zap.Int("trades", m.TotalTrades),
		zap.Float64("win_rate", m.WinRate),
		zap.Float64("total_pnl", m.TotalPnL),
		zap.Float64("total_return", m.TotalReturn),
		zap.Float64("profit_factor", m.ProfitFactor),
		zap.Float64("expectancy", m.Expectancy),
		zap.Float64("max_drawdown", m.MaxDrawdown),
		zap.Float64("sharpe", m.SharpeRatio),
		zap.Float64("final_equity", result.FinalEquity),
	)
	for name, g := range m.ByStrategy {
		a.logger.Info("策略分组",
			zap.String("strategy", name),
			zap.Int("trades", g.Trades),
			zap.Float64("win_rate", g.WinRate),
			zap.Float64("total_pnl", g.TotalPnL))
	}
	for symbol, g := range m.ByTicker {
		a.logger.Info("标的分组",
			zap.String("symbol", symbol),
			zap.Int("trades", g.Trades),
			zap.Float64("win_rate", g.WinRate),
			zap.Float64("total_pnl", g.TotalPnL))
	}
	for bucket, g := range m.ByDTE {
		a.logger.Info("DTE 分组",
			zap.String("bucket", bucket),
			zap.Int("trades", g.Trades),
			zap.Float64("win_rate", g.WinRate),
			zap.Float64("total_pnl", g.TotalPnL))
	}
}
