package backtest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Ledger 将回测交易流水与权益曲线落库。
type Ledger struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewLedger 创建流水存储并初始化表结构。
func NewLedger(db *sql.DB, logger *zap.Logger) (*Ledger, error) {
	if db == nil {
		return nil, errors.New("backtest: 数据库实例不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ledger := &Ledger{db: db, logger: logger}
	if err := ledger.initSchema(); err != nil {
		return nil, err
	}
	return ledger, nil
}

func (l *Ledger) initSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS backtest_trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			strategy TEXT NOT NULL,
			entry_date TEXT NOT NULL,
			exit_date TEXT NOT NULL,
			expiration TEXT NOT NULL,
			dte_at_entry INTEGER NOT NULL,
			days_held INTEGER NOT NULL,
			premium REAL NOT NULL,
			max_risk REAL NOT NULL,
			exit_value REAL NOT NULL,
			pnl REAL NOT NULL,
			return_pct REAL NOT NULL,
			profitable INTEGER NOT NULL,
			status TEXT NOT NULL,
			exit_reason TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_backtest_trades_run ON backtest_trades(run_id);`,
		`CREATE TABLE IF NOT EXISTS backtest_equity (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			date TEXT NOT NULL,
			equity REAL NOT NULL,
			cash REAL NOT NULL,
			open_positions INTEGER NOT NULL,
			closed_positions INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_backtest_equity_run ON backtest_equity(run_id);`,
	}

	for _, stmt := range schema {
		if _, err := l.db.Exec(stmt); err != nil {
			return fmt.Errorf("backtest: 初始化表结构失败: %w", err)
		}
	}
	return nil
}

const dateLayout = "2006-01-02"

// SaveRun 在单个事务内写入一次回测的全部流水。
func (l *Ledger) SaveRun(ctx context.Context, runID string, result Result) error {
	if runID == "" {
		runID = time.Now().UTC().Format("20060102T150405Z")
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("backtest: 开启事务失败: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	tradeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO backtest_trades (
			run_id, symbol, strategy, entry_date, exit_date, expiration,
			dte_at_entry, days_held, premium, max_risk, exit_value, pnl,
			return_pct, profitable, status, exit_reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("backtest: 准备流水语句失败: %w", err)
	}
	defer tradeStmt.Close()

	for _, trade := range result.Trades {
		if _, err := tradeStmt.ExecContext(ctx,
			runID, trade.Symbol, trade.Strategy,
			trade.EntryDate.Format(dateLayout),
			trade.ExitDate.Format(dateLayout),
			trade.Expiration.Format(dateLayout),
			trade.DTEAtEntry, trade.DaysHeld,
			trade.Premium, trade.MaxRisk, trade.ExitValue, trade.PnL,
			trade.ReturnPct, trade.Profitable,
			trade.Status, trade.ExitReason,
		); err != nil {
			return fmt.Errorf("backtest: 写入交易流水失败: %w", err)
		}
	}

	equityStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO backtest_equity (run_id, date, equity, cash, open_positions, closed_positions)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("backtest: 准备权益语句失败: %w", err)
	}
	defer equityStmt.Close()

	for _, point := range result.EquityCurve {
		if _, err := equityStmt.ExecContext(ctx,
			runID, point.Date.Format(dateLayout),
			point.Equity, point.Cash, point.OpenPositions, point.ClosedPositions,
		); err != nil {
			return fmt.Errorf("backtest: 写入权益曲线失败: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("backtest: 提交事务失败: %w", err)
	}

	l.logger.Info("回测结果已落库",
		zap.String("run_id", runID),
		zap.Int("trades", len(result.Trades)),
		zap.Int("equity_points", len(result.EquityCurve)))
	return nil
}
