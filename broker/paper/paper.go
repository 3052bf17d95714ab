// Package paper is a broker.Broker that fills every order locally at the
// last close it served. Market data comes from any broker.MarketData.
package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rustyeddy/volaccel/broker"
	"github.com/rustyeddy/volaccel/market"
	"github.com/rustyeddy/volaccel/pkg/id"
)

type lot struct {
	size  float64
	price float64
}

type Broker struct {
	Data     broker.MarketData
	MinOrder float64

	mu        sync.Mutex
	balance   float64
	lastClose map[string]float64
	open      map[string][]lot
}

var _ broker.Broker = (*Broker)(nil)

func New(data broker.MarketData, balance float64) *Broker {
	return &Broker{
		Data:      data,
		balance:   balance,
		lastClose: map[string]float64{},
		open:      map[string][]lot{},
	}
}

func key(pair string, side market.Side) string { return pair + "/" + side.String() }

func (b *Broker) Candles(ctx context.Context, pair string, interval time.Duration, limit int) (market.Series, error) {
	s, err := b.Data.Candles(ctx, pair, interval, limit)
	if err != nil {
		return nil, err
	}
	if len(s) > 0 {
		b.mu.Lock()
		b.lastClose[pair] = s.Last().Close
		b.mu.Unlock()
	}
	return s, nil
}

func (b *Broker) TradableBalance(context.Context) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balance, nil
}

func (b *Broker) MinOrderSize(context.Context, string) (float64, error) {
	return b.MinOrder, nil
}

func (b *Broker) OpenPosition(_ context.Context, req broker.OrderRequest) (broker.Fill, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if req.Side == market.Flat {
		return broker.Fill{}, fmt.Errorf("paper: flat order for %s", req.Pair)
	}
	if req.Size <= 0 || req.Size < b.MinOrder {
		return broker.Fill{}, fmt.Errorf("paper: size %g below minimum %g", req.Size, b.MinOrder)
	}
	price, ok := b.lastClose[req.Pair]
	if !ok {
		return broker.Fill{}, fmt.Errorf("paper: no price for %s yet", req.Pair)
	}

	k := key(req.Pair, req.Side)
	b.open[k] = append(b.open[k], lot{size: req.Size, price: price})
	return broker.Fill{
		OrderID:     "P-" + id.New(),
		Size:        req.Size,
		Description: fmt.Sprintf("%s %g %s @ market", req.Side, req.Size, req.Pair),
	}, nil
}

// ClosePosition flattens every lot of the pair and side at the last close
// and books the difference into the balance.
func (b *Broker) ClosePosition(_ context.Context, req broker.CloseRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	k := key(req.Pair, req.Side)
	lots := b.open[k]
	if len(lots) == 0 {
		return fmt.Errorf("%w: %s %s", broker.ErrNoPosition, req.Pair, req.Side)
	}
	exit := b.lastClose[req.Pair]
	for _, l := range lots {
		b.balance += float64(req.Side) * (exit - l.price) * l.size
	}
	delete(b.open, k)
	return nil
}

// Open reports the open volume of a pair and side.
func (b *Broker) Open(pair string, side market.Side) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := 0.0
	for _, l := range b.open[key(pair, side)] {
		total += l.size
	}
	return total
}

// SeriesData serves a fixed series. Bars newer than Now are hidden so a
// replay can advance one bar per call.
type SeriesData struct {
	Series market.Series
	Now    func() time.Time
}

func (d SeriesData) Candles(_ context.Context, _ string, _ time.Duration, limit int) (market.Series, error) {
	s := d.Series
	if d.Now != nil {
		now := d.Now()
		n := 0
		for n < len(s) && !s[n].Time.After(now) {
			n++
		}
		s = s[:n]
	}
	if limit > 0 && len(s) > limit {
		s = s[len(s)-limit:]
	}
	return s, nil
}
