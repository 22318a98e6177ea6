package backtest

import (
	"time"

	"options-backtest/internal/marketdata"
)

// ChainSource 提供回测所需的期权链数据。数据在启动前
// 预加载完毕，查询阶段不返回错误：查不到即当日无行情。
// marketdata.Loader 满足该接口。
type ChainSource interface {
	ChainForDate(symbol string, date time.Time, minDTE, maxDTE int) []marketdata.Quote
	QuotesFor(symbol string, date, expiration time.Time) []marketdata.Quote
	UnderlyingPrice(symbol string, date time.Time) (float64, bool)
	MedianIV(symbol string, date, expiration time.Time) (float64, bool)
	TradingDates(symbol string, start, end time.Time) []time.Time
}
