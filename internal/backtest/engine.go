package backtest

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"options-backtest/internal/adaptive"
	"options-backtest/internal/marketdata"
	"options-backtest/internal/scoring"
	"options-backtest/internal/strategy"
)

// 单策略每日最多纳入候选池的机会数。
const topPerStrategy = 3

// IV rank 计算的回看长度(交易日)。
const ivRankLookback = 252

// Engine 日步进回测引擎。每个交易日先管理存量仓位，
// 再扫描新机会，最后记录权益。资金按最大风险全额占用。
type Engine struct {
	cfg        Config
	source     ChainSource
	adaptive   *adaptive.Manager
	strategies map[string][]strategy.Strategy // 按标的
	logger     *zap.Logger

	cash     float64
	reserved float64
	open     []*strategy.Position
	closed   []*strategy.Position
	equity   []EquityPoint
	stats    ValuationStats

	ivHistory map[string][]float64
}

// NewEngine 构建回测引擎。
func NewEngine(cfg Config, source ChainSource, strategyNames []string, mgr *adaptive.Manager, logger *zap.Logger) (*Engine, error) {
	if source == nil {
		return nil, fmt.Errorf("backtest: 数据源不能为空")
	}
	if mgr == nil {
		return nil, fmt.Errorf("backtest: 自适应参数管理器不能为空")
	}
	if len(cfg.Tickers) == 0 {
		return nil, fmt.Errorf("backtest: 至少需要一个标的")
	}
	if len(strategyNames) == 0 {
		return nil, fmt.Errorf("backtest: 至少需要一个策略")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	normalized := cfg.normalize()

	strategies := make(map[string][]strategy.Strategy, len(normalized.Tickers))
	for _, symbol := range normalized.Tickers {
		built, err := buildStrategies(symbol, strategyNames, mgr, logger)
		if err != nil {
			return nil, err
		}
		strategies[symbol] = built
	}

	return &Engine{
		cfg:        normalized,
		source:     source,
		adaptive:   mgr,
		strategies: strategies,
		logger:     logger,
		cash:       normalized.InitialCapital,
		ivHistory:  make(map[string][]float64),
	}, nil
}

func buildStrategies(symbol string, names []string, mgr *adaptive.Manager, logger *zap.Logger) ([]strategy.Strategy, error) {
	var out []strategy.Strategy
	for _, name := range names {
		switch name {
		case "iron_condor":
			s, err := strategy.NewIronCondor(symbol, strategy.DefaultIronCondorConfig(), mgr, logger)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		case "covered_call", "covered_call_income":
			s, err := strategy.NewCoveredCall(symbol, strategy.ModeIncome,
				strategy.DefaultCoveredCallConfig(strategy.ModeIncome), mgr, logger)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		case "covered_call_assignment":
			s, err := strategy.NewCoveredCall(symbol, strategy.ModeAssignment,
				strategy.DefaultCoveredCallConfig(strategy.ModeAssignment), mgr, logger)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		default:
			return nil, fmt.Errorf("backtest: 未知策略 %q", name)
		}
	}
	return out, nil
}

// Run 执行完整回测。
func (e *Engine) Run(ctx context.Context) (Result, error) {
	dates := e.consolidatedDates()
	if len(dates) == 0 {
		return Result{}, fmt.Errorf("backtest: 区间 [%s, %s] 内无交易日数据",
			e.cfg.StartDate.Format("2006-01-02"), e.cfg.EndDate.Format("2006-01-02"))
	}

	e.logger.Info("回测开始",
		zap.Time("start", dates[0]),
		zap.Time("end", dates[len(dates)-1]),
		zap.Int("days", len(dates)),
		zap.Strings("tickers", e.cfg.Tickers),
		zap.Float64("capital", e.cfg.InitialCapital))

	for _, date := range dates {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		default:
		}

		e.managePositions(date)
		if len(e.open) < e.cfg.MaxPositions && e.cash >= e.cfg.MinFreeCapital {
			if err := e.findOpportunities(ctx, date); err != nil {
				return Result{}, err
			}
		}
		e.recordEquity(date)
	}

	e.closeRemaining(dates[len(dates)-1])

	e.logger.Info("估值诊断",
		zap.Int("attempts", e.stats.Attempts),
		zap.Int("market_data_misses", e.stats.MarketDataMisses),
		zap.Int("model_fallbacks", e.stats.ModelFallbacks),
		zap.Int("unavailable", e.stats.Unavailable))

	return e.buildResult(), nil
}

// consolidatedDates 合并全部标的的交易日，升序去重。
func (e *Engine) consolidatedDates() []time.Time {
	seen := make(map[time.Time]bool)
	var dates []time.Time
	for _, symbol := range e.cfg.Tickers {
		for _, d := range e.source.TradingDates(symbol, e.cfg.StartDate, e.cfg.EndDate) {
			if !seen[d] {
				seen[d] = true
				dates = append(dates, d)
			}
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// managePositions 逐仓评估到期结算与主动离场。
func (e *Engine) managePositions(date time.Time) {
	remaining := e.open[:0]
	for _, pos := range e.open {
		if !date.Before(pos.Expiration) {
			e.settleExpired(pos, date)
			continue
		}

		e.stats.Attempts++
		value, ok := marketValue(pos, e.source, date)
		if !ok {
			e.stats.MarketDataMisses++
			if value, ok = modelValue(pos, e.source, date); ok {
				e.stats.ModelFallbacks++
			}
		}
		if !ok {
			// 当日无法估值, 跳过, 沿用上一次估值。
			e.stats.Unavailable++
			remaining = append(remaining, pos)
			continue
		}

		pos.LastMark = value
		pos.Marked = true

		pnl := pos.Premium - value
		dte := int(pos.Expiration.Sub(date).Hours() / 24)

		strat := e.strategyFor(pos)
		if strat == nil {
			remaining = append(remaining, pos)
			continue
		}
		decision := strat.EvaluateExit(pos, pnl, dte)
		if !decision.Exit {
			remaining = append(remaining, pos)
			continue
		}

		status := strategy.StatusClosedLoss
		switch {
		case decision.Reason == "profit_target":
			status = strategy.StatusClosedProfit
		case decision.Reason == "stop_loss":
			status = strategy.StatusClosedLoss
		case pnl > 0:
			status = strategy.StatusClosedProfit
		}
		e.closePosition(pos, date, value, decision.Reason, status)
	}
	e.open = remaining
}

// settleExpired 到期日按内在价值结算。
func (e *Engine) settleExpired(pos *strategy.Position, date time.Time) {
	spot, ok := e.source.UnderlyingPrice(pos.Symbol, date)
	if !ok {
		// 到期日无行情, 退回入场时的标的价结算。
		spot = pos.UnderlyingEntry
	}
	value := pos.IntrinsicValue(spot)

	status := strategy.StatusExpiredLoss
	if pos.Premium-value > 0 {
		status = strategy.StatusExpiredProfitable
	}
	e.closePosition(pos, date, value, "expiration", status)
}

// closePosition 平仓并释放占用资金。占用的最大风险与
// 已实现盈亏一并回到现金，保证资金守恒。
func (e *Engine) closePosition(pos *strategy.Position, date time.Time, value float64, reason string, status strategy.Status) {
	pos.Status = status
	pos.ExitDate = date
	pos.ExitCode = reason
	pos.ExitValue = value
	pos.PnL = pos.Premium - value
	pos.DaysHeld = int(date.Sub(pos.EntryDate).Hours() / 24)

	e.cash += pos.MaxRisk + pos.PnL
	e.reserved -= pos.MaxRisk
	e.closed = append(e.closed, pos)

	e.logger.Debug("平仓",
		zap.String("symbol", pos.Symbol),
		zap.String("strategy", pos.Strategy),
		zap.String("status", string(status)),
		zap.String("reason", reason),
		zap.Float64("pnl", pos.PnL))
}

func (e *Engine) strategyFor(pos *strategy.Position) strategy.Strategy {
	for _, s := range e.strategies[pos.Symbol] {
		if s.Name() == pos.Strategy {
			return s
		}
	}
	return nil
}

type candidate struct {
	opp   strategy.Opportunity
	strat strategy.Strategy
	score float64
}

// scanInput 单标的扫描所需的当日快照。
type scanInput struct {
	symbol string
	chain  []marketdata.Quote
	mkt    strategy.MarketContext
}

// prepareScans 在主协程串行组装各标的的扫描输入。
// IV 历史只在这里写入, 积累顺序与并行调度无关。
func (e *Engine) prepareScans(date time.Time) []scanInput {
	var inputs []scanInput
	for _, symbol := range e.cfg.Tickers {
		dteMin, dteMax := e.adaptive.DTERange(symbol)
		chain := e.source.ChainForDate(symbol, date, dteMin, dteMax)
		if len(chain) == 0 {
			continue
		}

		currentIV := dayMedianIV(chain)
		rank := e.ivRank(symbol, currentIV)

		if e.openCount(symbol) >= e.cfg.MaxPositionsPerTicker {
			continue
		}
		spot, ok := e.source.UnderlyingPrice(symbol, date)
		if !ok {
			continue
		}
		inputs = append(inputs, scanInput{
			symbol: symbol,
			chain:  chain,
			mkt: strategy.MarketContext{
				UnderlyingPrice: spot,
				IVRank:          rank,
				CurrentIV:       currentIV,
			},
		})
	}
	return inputs
}

// findOpportunities 并行扫描各标的并按得分贪心建仓。
func (e *Engine) findOpportunities(ctx context.Context, date time.Time) error {
	inputs := e.prepareScans(date)
	if len(inputs) == 0 {
		return nil
	}

	// 各协程只写自己的槽位, 候选池按标的配置顺序拼接。
	results := make([][]candidate, len(inputs))
	g, ctx := errgroup.WithContext(ctx)
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			results[i] = e.scanSymbol(in)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var candidates []candidate
	for _, found := range results {
		candidates = append(candidates, found...)
	}

	// 得分降序, 同分按净权利金降序, 再按标的/到期/首腿行权价
	// 字典序保证可复现。
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.opp.Credit != b.opp.Credit {
			return a.opp.Credit > b.opp.Credit
		}
		if a.opp.Symbol != b.opp.Symbol {
			return a.opp.Symbol < b.opp.Symbol
		}
		if !a.opp.Expiration.Equal(b.opp.Expiration) {
			return a.opp.Expiration.Before(b.opp.Expiration)
		}
		return a.opp.Legs[0].Quote.Strike < b.opp.Legs[0].Quote.Strike
	})

	for _, c := range candidates {
		if len(e.open) >= e.cfg.MaxPositions {
			break
		}
		if e.openCount(c.opp.Symbol) >= e.cfg.MaxPositionsPerTicker {
			continue
		}
		if c.opp.MaxRisk > e.cash {
			continue
		}

		pos, err := c.strat.Construct(c.opp)
		if err != nil {
			e.logger.Warn("建仓失败", zap.String("symbol", c.opp.Symbol), zap.Error(err))
			continue
		}

		e.cash -= pos.MaxRisk
		e.reserved += pos.MaxRisk
		e.open = append(e.open, pos)

		e.logger.Debug("建仓",
			zap.String("symbol", pos.Symbol),
			zap.String("strategy", pos.Strategy),
			zap.Float64("score", c.score),
			zap.Float64("premium", pos.Premium),
			zap.Float64("max_risk", pos.MaxRisk))
	}
	return nil
}

// scanSymbol 扫描单一标的，每策略取前 topPerStrategy 个机会。
// 只读取输入快照, 可安全并行。
func (e *Engine) scanSymbol(in scanInput) []candidate {
	var out []candidate
	for _, s := range e.strategies[in.symbol] {
		opps := s.Scan(in.chain, in.mkt)
		if len(opps) > topPerStrategy {
			opps = opps[:topPerStrategy]
		}
		for _, opp := range opps {
			total, _ := scoring.Score(opp, in.mkt)
			out = append(out, candidate{opp: opp, strat: s, score: total})
		}
	}
	return out
}

// ivRank 以回看窗口内日度 IV 的最小最大值归一当前 IV。
// 历史不足或无波动时返回中性值 50。只能在主协程调用。
func (e *Engine) ivRank(symbol string, currentIV float64) float64 {
	history := append(e.ivHistory[symbol], currentIV)
	if len(history) > ivRankLookback {
		history = history[len(history)-ivRankLookback:]
	}
	e.ivHistory[symbol] = history

	if len(history) < 2 {
		return 50
	}
	lo, hi := history[0], history[0]
	for _, v := range history[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi == lo {
		return 50
	}
	return (currentIV - lo) / (hi - lo) * 100
}

func dayMedianIV(chain []marketdata.Quote) float64 {
	var ivs []float64
	for _, q := range chain {
		if !math.IsNaN(q.IV) && q.IV > 0 {
			ivs = append(ivs, q.IV)
		}
	}
	if len(ivs) == 0 {
		return fallbackVolatility
	}
	sort.Float64s(ivs)
	n := len(ivs)
	if n%2 == 1 {
		return ivs[n/2]
	}
	return (ivs[n/2-1] + ivs[n/2]) / 2
}

func (e *Engine) openCount(symbol string) int {
	count := 0
	for _, pos := range e.open {
		if pos.Symbol == symbol {
			count++
		}
	}
	return count
}

// recordEquity 记录当日权益: 现金 + 占用资金 + 浮动盈亏。
// 尚未成功估值的仓位浮动盈亏按零计。
func (e *Engine) recordEquity(date time.Time) {
	unrealized := 0.0
	for _, pos := range e.open {
		if pos.Marked {
			unrealized += pos.Premium - pos.LastMark
		}
	}
	e.equity = append(e.equity, EquityPoint{
		Date:            date,
		Equity:          e.cash + e.reserved + unrealized,
		Cash:            e.cash,
		OpenPositions:   len(e.open),
		ClosedPositions: len(e.closed),
	})
}

// closeRemaining 回测结束时强平剩余仓位。
func (e *Engine) closeRemaining(date time.Time) {
	for _, pos := range e.open {
		value, ok := marketValue(pos, e.source, date)
		if !ok {
			value, ok = modelValue(pos, e.source, date)
		}
		if !ok {
			if pos.Marked {
				value = pos.LastMark
			} else {
				value = pos.Premium // 无任何估值依据, 按零盈亏处理
			}
		}
		e.closePosition(pos, date, value, "backtest_end", strategy.StatusClosedEnd)
	}
	e.open = nil
}

func (e *Engine) buildResult() Result {
	trades := make([]TradeRecord, 0, len(e.closed))
	for _, pos := range e.closed {
		trades = append(trades, toTradeRecord(pos))
	}

	// 强平后已无持仓, 现金即最终权益。
	return Result{
		Metrics:     calculateMetrics(e.closed, e.equity, e.cfg.InitialCapital),
		Trades:      trades,
		EquityCurve: e.equity,
		FinalEquity: e.cash,
		Valuation:   e.stats,
	}
}
