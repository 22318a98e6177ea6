// Package marketdata 按标的加载历史期权链并提供只读的缓存访问。
package marketdata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"options-backtest/internal/pricing"
)

// ErrSchema 表示期权链数据缺少必需列或格式非法，加载阶段致命。
var ErrSchema = errors.New("marketdata: 数据结构非法")

const dateLayout = "2006-01-02"

// Loader 从 SQLite 加载期权链，按标的缓存。
// 缓存在回测启动时填充，运行期间只读。
type Loader struct {
	db     *sql.DB
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[string][]Quote
}

// NewLoader 创建期权链加载器。
func NewLoader(db *sql.DB, logger *zap.Logger) (*Loader, error) {
	if db == nil {
		return nil, errors.New("marketdata: 数据库实例不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Loader{
		db:     db,
		logger: logger,
		cache:  make(map[string][]Quote),
	}, nil
}

// NewStaticLoader 以内存数据构建加载器，便于测试与离线分析。
func NewStaticLoader(chains map[string][]Quote) *Loader {
	cache := make(map[string][]Quote, len(chains))
	for symbol, quotes := range chains {
		sorted := make([]Quote, len(quotes))
		copy(sorted, quotes)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })
		cache[symbol] = sorted
	}
	return &Loader{logger: zap.NewNop(), cache: cache}
}

// Preload 一次性加载全部标的的期权链。任一标的缺少必需列立即失败。
func (l *Loader) Preload(ctx context.Context, symbols []string) error {
	for _, symbol := range symbols {
		if _, err := l.load(ctx, symbol); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) load(ctx context.Context, symbol string) ([]Quote, error) {
	l.mu.RLock()
	cached, ok := l.cache[symbol]
	l.mu.RUnlock()
	if ok {
		return cached, nil
	}

	if l.db == nil {
		return nil, fmt.Errorf("marketdata: 标的 %s 未预加载且无数据库连接", symbol)
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT date, symbol, option_type, strike, expiration, dte,
		       delta, gamma, theta, vega, iv, close, vwap, volume, oi
		FROM option_chain
		WHERE symbol = ?
		ORDER BY date`, symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: 查询 %s 期权链失败: %v", ErrSchema, symbol, err)
	}
	defer rows.Close()

	var quotes []Quote
	for rows.Next() {
		var (
			q            Quote
			date, expiry string
			optType      string
			closeP, vwap sql.NullFloat64
		)
		if err := rows.Scan(&date, &q.Symbol, &optType, &q.Strike, &expiry, &q.DTE,
			&q.Delta, &q.Gamma, &q.Theta, &q.Vega, &q.IV, &closeP, &vwap, &q.Volume, &q.OpenInterest); err != nil {
			return nil, fmt.Errorf("%w: 解析 %s 期权链行失败: %v", ErrSchema, symbol, err)
		}

		q.Type = pricing.OptionType(optType)
		if !q.Type.Valid() {
			return nil, fmt.Errorf("%w: %s 期权类型非法 %q", ErrSchema, symbol, optType)
		}
		if q.Date, err = time.Parse(dateLayout, date); err != nil {
			return nil, fmt.Errorf("%w: %s 日期格式非法 %q", ErrSchema, symbol, date)
		}
		if q.Expiration, err = time.Parse(dateLayout, expiry); err != nil {
			return nil, fmt.Errorf("%w: %s 到期日格式非法 %q", ErrSchema, symbol, expiry)
		}

		q.Close = nullToNaN(closeP)
		q.VWAP = nullToNaN(vwap)
		quotes = append(quotes, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: 读取 %s 期权链失败: %v", ErrSchema, symbol, err)
	}

	l.mu.Lock()
	l.cache[symbol] = quotes
	l.mu.Unlock()

	l.logger.Info("期权链加载完成", zap.String("symbol", symbol), zap.Int("rows", len(quotes)))
	return quotes, nil
}

// chain 返回标的的全部缓存行，未加载时返回空。
func (l *Loader) chain(symbol string) []Quote {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cache[symbol]
}

// ChainForDate 返回某日位于 [minDTE, maxDTE] 窗口内的期权链。
// 无数据时返回空切片，调用方应视为"当日无行情"而非错误。
func (l *Loader) ChainForDate(symbol string, date time.Time, minDTE, maxDTE int) []Quote {
	var result []Quote
	for _, q := range l.chain(symbol) {
		if q.Date.Equal(date) && q.DTE >= minDTE && q.DTE <= maxDTE {
			result = append(result, q)
		}
	}
	return result
}

// QuotesFor 返回某日某到期日的全部行，用于逐腿估值。
func (l *Loader) QuotesFor(symbol string, date, expiration time.Time) []Quote {
	var result []Quote
	for _, q := range l.chain(symbol) {
		if q.Date.Equal(date) && q.Expiration.Equal(expiration) {
			result = append(result, q)
		}
	}
	return result
}

// UnderlyingPrice 从 ATM 期权反推标的价格。
//
// 顺序：delta 接近 0.5 的 call 取行权价中位数 → delta 最接近 0.5
// 的单个 call → 同样逻辑的 put → 全部行权价的中位数。
// 当日完全无行情时返回 false。
func (l *Loader) UnderlyingPrice(symbol string, date time.Time) (float64, bool) {
	var day []Quote
	for _, q := range l.chain(symbol) {
		if q.Date.Equal(date) {
			day = append(day, q)
		}
	}
	if len(day) == 0 {
		return 0, false
	}

	if price, ok := estimateFromType(day, pricing.Call); ok {
		return price, true
	}
	if price, ok := estimateFromType(day, pricing.Put); ok {
		return price, true
	}

	strikes := make([]float64, 0, len(day))
	for _, q := range day {
		strikes = append(strikes, q.Strike)
	}
	return median(strikes), true
}

func estimateFromType(day []Quote, typ pricing.OptionType) (float64, bool) {
	var (
		atmStrikes []float64
		closest    *Quote
		closestGap = math.Inf(1)
	)

	for i := range day {
		q := day[i]
		if q.Type != typ {
			continue
		}
		gap := math.Abs(q.AbsDelta() - 0.5)
		if gap <= 0.05 {
			atmStrikes = append(atmStrikes, q.Strike)
		}
		if gap < closestGap {
			closestGap = gap
			closest = &day[i]
		}
	}

	if len(atmStrikes) > 0 {
		return median(atmStrikes), true
	}
	if closest != nil {
		return closest.Strike, true
	}
	return 0, false
}

// MedianIV 返回某日某到期日的隐含波动率中位数，用于模型估值回退。
func (l *Loader) MedianIV(symbol string, date, expiration time.Time) (float64, bool) {
	var ivs []float64
	for _, q := range l.QuotesFor(symbol, date, expiration) {
		if !math.IsNaN(q.IV) && q.IV > 0 {
			ivs = append(ivs, q.IV)
		}
	}
	if len(ivs) == 0 {
		return 0, false
	}
	return median(ivs), true
}

// TradingDates 返回标的在 [start, end] 内的全部交易日，升序去重。
func (l *Loader) TradingDates(symbol string, start, end time.Time) []time.Time {
	seen := make(map[time.Time]bool)
	var dates []time.Time
	for _, q := range l.chain(symbol) {
		if q.Date.Before(start) || q.Date.After(end) {
			continue
		}
		if !seen[q.Date] {
			seen[q.Date] = true
			dates = append(dates, q.Date)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// DateRange 返回标的数据覆盖的首末日期。无数据时 ok 为 false。
func (l *Loader) DateRange(symbol string) (first, last time.Time, ok bool) {
	quotes := l.chain(symbol)
	if len(quotes) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return quotes[0].Date, quotes[len(quotes)-1].Date, true
}

// UnderlyingHistory 返回标的每个交易日的估计价格序列，升序。
// 供概率估计器做历史重采样使用。
func (l *Loader) UnderlyingHistory(symbol string) []float64 {
	dates := l.TradingDates(symbol, time.Time{}, time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC))
	prices := make([]float64, 0, len(dates))
	for _, d := range dates {
		if p, ok := l.UnderlyingPrice(symbol, d); ok {
			prices = append(prices, p)
		}
	}
	return prices
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func nullToNaN(v sql.NullFloat64) float64 {
	if v.Valid {
		return v.Float64
	}
	return math.NaN()
}
