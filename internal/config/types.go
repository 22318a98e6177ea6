package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了回测系统运行所需的全部配置项。
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Backtest    BacktestConfig    `mapstructure:"backtest"`
	Probability ProbabilityConfig `mapstructure:"probability"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// BacktestConfig 描述一次回测的范围与资金约束。
type BacktestConfig struct {
	StartDate             time.Time `mapstructure:"start_date"`
	EndDate               time.Time `mapstructure:"end_date"`
	InitialCapital        float64   `mapstructure:"initial_capital"`
	MaxPositions          int       `mapstructure:"max_positions"`
	MaxPositionsPerTicker int       `mapstructure:"max_positions_per_ticker"`
	Tickers               []string  `mapstructure:"tickers"`
	Strategies            []string  `mapstructure:"strategies"`
	MinFreeCapital        float64   `mapstructure:"min_free_capital"`
	RiskFreeRate          float64   `mapstructure:"risk_free_rate"`
}

// ProbabilityConfig 控制概率估计器的采样参数。
type ProbabilityConfig struct {
	MinSamples       int   `mapstructure:"min_samples"`
	MonteCarloTrials int   `mapstructure:"monte_carlo_trials"`
	Seed             int64 `mapstructure:"seed"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// 已支持的策略名称。
var knownStrategies = map[string]bool{
	"iron_condor":             true,
	"covered_call":            true,
	"covered_call_income":     true,
	"covered_call_assignment": true,
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Backtest.StartDate.IsZero() {
		err = multierr.Append(err, errors.New("backtest.start_date 不能为空"))
	}
	if c.Backtest.EndDate.IsZero() {
		err = multierr.Append(err, errors.New("backtest.end_date 不能为空"))
	}
	if !c.Backtest.StartDate.IsZero() && !c.Backtest.EndDate.IsZero() && !c.Backtest.StartDate.Before(c.Backtest.EndDate) {
		err = multierr.Append(err, errors.New("backtest.start_date 必须早于 end_date"))
	}
	if c.Backtest.InitialCapital <= 0 {
		err = multierr.Append(err, errors.New("backtest.initial_capital 必须大于0"))
	}
	if c.Backtest.MaxPositions <= 0 {
		err = multierr.Append(err, errors.New("backtest.max_positions 必须大于0"))
	}
	if c.Backtest.MaxPositionsPerTicker <= 0 {
		err = multierr.Append(err, errors.New("backtest.max_positions_per_ticker 必须大于0"))
	}
	if c.Backtest.MaxPositionsPerTicker > c.Backtest.MaxPositions {
		err = multierr.Append(err, errors.New("backtest.max_positions_per_ticker 不能大于 max_positions"))
	}
	if len(c.Backtest.Tickers) == 0 {
		err = multierr.Append(err, errors.New("backtest.tickers 至少包含一个标的"))
	}
	if len(c.Backtest.Strategies) == 0 {
		err = multierr.Append(err, errors.New("backtest.strategies 至少包含一个策略"))
	}
	for _, name := range c.Backtest.Strategies {
		if !knownStrategies[name] {
			err = multierr.Append(err, fmt.Errorf("backtest.strategies 包含未知策略 %q", name))
		}
	}
	if c.Backtest.MinFreeCapital < 0 {
		err = multierr.Append(err, errors.New("backtest.min_free_capital 不能为负"))
	}
	if c.Backtest.RiskFreeRate < -1 || c.Backtest.RiskFreeRate > 1 {
		err = multierr.Append(err, errors.New("backtest.risk_free_rate 必须位于[-1,1]"))
	}
	if c.Probability.MinSamples <= 0 {
		err = multierr.Append(err, errors.New("probability.min_samples 必须大于0"))
	}
	if c.Probability.MonteCarloTrials <= 0 {
		err = multierr.Append(err, errors.New("probability.monte_carlo_trials 必须大于0"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
