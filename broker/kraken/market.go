package kraken

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rustyeddy/volaccel/market"
	"github.com/shopspring/decimal"
)

// Candles fetches OHLC bars. Kraken always returns the bar still forming as
// the last row; it is dropped.
func (c *Client) Candles(ctx context.Context, pair string, interval time.Duration, limit int) (market.Series, error) {
	minutes := int(interval / time.Minute)
	if minutes <= 0 {
		return nil, fmt.Errorf("kraken OHLC: interval %s is below one minute", interval)
	}

	var result map[string]json.RawMessage
	err := c.public(ctx, "OHLC", map[string]string{
		"pair":     pair,
		"interval": strconv.Itoa(minutes),
	}, &result)
	if err != nil {
		return nil, err
	}

	var rows [][]any
	for key, raw := range result {
		if key == "last" {
			continue
		}
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("kraken OHLC: %s: %w", key, err)
		}
		break
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("kraken OHLC: no rows for %s", pair)
	}
	rows = rows[:len(rows)-1]

	series := make(market.Series, 0, len(rows))
	for i, row := range rows {
		cdl, err := parseOHLC(row)
		if err != nil {
			return nil, fmt.Errorf("kraken OHLC row %d: %w", i, err)
		}
		series = append(series, cdl)
	}
	if limit > 0 && len(series) > limit {
		series = series[len(series)-limit:]
	}
	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("kraken OHLC: %w", err)
	}
	return series, nil
}

// parseOHLC reads [time, open, high, low, close, vwap, volume, count].
func parseOHLC(row []any) (market.Candle, error) {
	if len(row) < 7 {
		return market.Candle{}, fmt.Errorf("want 8 fields, got %d", len(row))
	}
	ts, ok := row[0].(float64)
	if !ok {
		return market.Candle{}, fmt.Errorf("bad time %v", row[0])
	}

	var v [5]float64
	for i, idx := range []int{1, 2, 3, 4, 6} {
		s, ok := row[idx].(string)
		if !ok {
			return market.Candle{}, fmt.Errorf("field %d: not a string", idx)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return market.Candle{}, fmt.Errorf("field %d: %w", idx, err)
		}
		v[i] = f
	}
	return market.Candle{
		Time:   time.Unix(int64(ts), 0).UTC(),
		Open:   v[0],
		High:   v[1],
		Low:    v[2],
		Close:  v[3],
		Volume: v[4],
	}, nil
}

// Pair is the trading metadata of an asset pair.
type Pair struct {
	Name         string
	LotDecimals  int32
	PairDecimals int32
	OrderMin     decimal.Decimal
}

type assetPair struct {
	LotDecimals  int32  `json:"lot_decimals"`
	PairDecimals int32  `json:"pair_decimals"`
	OrderMin     string `json:"ordermin"`
}

// PairInfo returns pair metadata, cached for an hour.
func (c *Client) PairInfo(ctx context.Context, pair string) (Pair, error) {
	if v, ok := c.pairs.Get(pair); ok {
		if p, ok := v.(Pair); ok {
			return p, nil
		}
	}

	var result map[string]assetPair
	if err := c.public(ctx, "AssetPairs", map[string]string{"pair": pair}, &result); err != nil {
		return Pair{}, err
	}
	for _, ap := range result {
		p := Pair{Name: pair, LotDecimals: ap.LotDecimals, PairDecimals: ap.PairDecimals}
		if ap.OrderMin != "" {
			om, err := decimal.NewFromString(ap.OrderMin)
			if err != nil {
				return Pair{}, fmt.Errorf("kraken AssetPairs: ordermin %q: %w", ap.OrderMin, err)
			}
			p.OrderMin = om
		}
		c.pairs.Set(pair, p, cache.DefaultExpiration)
		return p, nil
	}
	return Pair{}, fmt.Errorf("kraken AssetPairs: unknown pair %s", pair)
}

func (c *Client) MinOrderSize(ctx context.Context, pair string) (float64, error) {
	p, err := c.PairInfo(ctx, pair)
	if err != nil {
		return 0, err
	}
	return p.OrderMin.InexactFloat64(), nil
}

// Volume quantizes size down to the pair's lot decimals.
func (p Pair) Volume(size float64) decimal.Decimal {
	return decimal.NewFromFloat(size).RoundDown(p.LotDecimals)
}

// Price rounds a price to the pair's price decimals.
func (p Pair) Price(price float64) decimal.Decimal {
	return decimal.NewFromFloat(price).Round(p.PairDecimals)
}
