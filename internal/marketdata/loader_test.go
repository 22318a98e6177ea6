package marketdata

import (
	"math"
	"testing"
	"time"

	"options-backtest/internal/pricing"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func quote(symbol string, date time.Time, typ pricing.OptionType, strike, delta float64) Quote {
	return Quote{
		Date:       date,
		Symbol:     symbol,
		Type:       typ,
		Strike:     strike,
		Expiration: date.AddDate(0, 0, 45),
		DTE:        45,
		Delta:      delta,
		IV:         0.25,
		Close:      2.5,
		VWAP:       math.NaN(),
		Volume:     100,
	}
}

func TestUnderlyingPriceFromATMCalls(t *testing.T) {
	d := day(2025, 10, 20)
	loader := NewStaticLoader(map[string][]Quote{
		"SPY": {
			quote("SPY", d, pricing.Call, 665, 0.52),
			quote("SPY", d, pricing.Call, 670, 0.50),
			quote("SPY", d, pricing.Call, 675, 0.47),
			quote("SPY", d, pricing.Call, 700, 0.20),
			quote("SPY", d, pricing.Put, 650, -0.30),
		},
	})

	price, ok := loader.UnderlyingPrice("SPY", d)
	if !ok {
		t.Fatal("expected an underlying price estimate")
	}
	if price != 670 {
		t.Errorf("expected median ATM strike 670, got %v", price)
	}
}

func TestUnderlyingPriceClosestCallFallback(t *testing.T) {
	d := day(2025, 10, 20)
	loader := NewStaticLoader(map[string][]Quote{
		"SPY": {
			quote("SPY", d, pricing.Call, 700, 0.20),
			quote("SPY", d, pricing.Call, 690, 0.30),
			quote("SPY", d, pricing.Put, 650, -0.30),
		},
	})

	price, ok := loader.UnderlyingPrice("SPY", d)
	if !ok {
		t.Fatal("expected an underlying price estimate")
	}
	if price != 690 {
		t.Errorf("expected closest-to-0.5 call strike 690, got %v", price)
	}
}

func TestUnderlyingPricePutFallback(t *testing.T) {
	d := day(2025, 10, 20)
	loader := NewStaticLoader(map[string][]Quote{
		"SPY": {
			quote("SPY", d, pricing.Put, 660, -0.48),
			quote("SPY", d, pricing.Put, 640, -0.30),
		},
	})

	price, ok := loader.UnderlyingPrice("SPY", d)
	if !ok {
		t.Fatal("expected an underlying price estimate")
	}
	if price != 660 {
		t.Errorf("expected ATM put strike 660, got %v", price)
	}
}

func TestUnderlyingPriceNoData(t *testing.T) {
	loader := NewStaticLoader(map[string][]Quote{})
	if _, ok := loader.UnderlyingPrice("SPY", day(2025, 10, 20)); ok {
		t.Error("expected no estimate when there are no rows")
	}
}

func TestChainForDateWindow(t *testing.T) {
	d := day(2025, 10, 20)
	q1 := quote("SPY", d, pricing.Call, 670, 0.50)
	q1.DTE = 10
	q2 := quote("SPY", d, pricing.Call, 675, 0.45)
	q2.DTE = 45
	q3 := quote("SPY", d.AddDate(0, 0, 1), pricing.Call, 675, 0.45)
	q3.DTE = 44

	loader := NewStaticLoader(map[string][]Quote{"SPY": {q1, q2, q3}})

	chain := loader.ChainForDate("SPY", d, 15, 60)
	if len(chain) != 1 {
		t.Fatalf("expected 1 quote inside window, got %d", len(chain))
	}
	if chain[0].Strike != 675 {
		t.Errorf("wrong quote selected: strike %v", chain[0].Strike)
	}

	if got := loader.ChainForDate("SPY", day(2025, 1, 1), 15, 60); len(got) != 0 {
		t.Errorf("expected empty chain for unknown date, got %d rows", len(got))
	}
}

func TestQuotePriceFallback(t *testing.T) {
	q := Quote{Close: math.NaN(), VWAP: 1.75}
	price, ok := q.Price()
	if !ok || price != 1.75 {
		t.Errorf("expected vwap fallback 1.75, got %v ok=%v", price, ok)
	}

	q = Quote{Close: math.NaN(), VWAP: math.NaN()}
	if _, ok := q.Price(); ok {
		t.Error("expected no price when close and vwap are both missing")
	}
}

func TestMedianIV(t *testing.T) {
	d := day(2025, 10, 20)
	exp := d.AddDate(0, 0, 45)
	mk := func(iv float64) Quote {
		q := quote("SPY", d, pricing.Call, 670, 0.5)
		q.Expiration = exp
		q.IV = iv
		return q
	}
	loader := NewStaticLoader(map[string][]Quote{"SPY": {mk(0.20), mk(0.30), mk(0.40)}})

	iv, ok := loader.MedianIV("SPY", d, exp)
	if !ok {
		t.Fatal("expected median IV")
	}
	if iv != 0.30 {
		t.Errorf("expected median 0.30, got %v", iv)
	}

	if _, ok := loader.MedianIV("SPY", d, d.AddDate(0, 0, 99)); ok {
		t.Error("expected no IV for unknown expiration")
	}
}

func TestTradingDatesSortedUnique(t *testing.T) {
	d1 := day(2025, 10, 21)
	d2 := day(2025, 10, 20)
	loader := NewStaticLoader(map[string][]Quote{
		"SPY": {
			quote("SPY", d1, pricing.Call, 670, 0.5),
			quote("SPY", d2, pricing.Call, 670, 0.5),
			quote("SPY", d2, pricing.Put, 650, -0.3),
		},
	})

	dates := loader.TradingDates("SPY", day(2025, 1, 1), day(2025, 12, 31))
	if len(dates) != 2 {
		t.Fatalf("expected 2 unique dates, got %d", len(dates))
	}
	if !dates[0].Equal(d2) || !dates[1].Equal(d1) {
		t.Errorf("dates not sorted ascending: %v", dates)
	}
}
