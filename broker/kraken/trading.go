package kraken

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/rustyeddy/volaccel/broker"
	"github.com/rustyeddy/volaccel/market"
	"github.com/rustyeddy/volaccel/pkg/logger"
	"github.com/shopspring/decimal"
)

// TradableBalance is the equivalent balance ("eb") of TradeBalance.
func (c *Client) TradableBalance(ctx context.Context) (float64, error) {
	var result struct {
		EB string `json:"eb"`
	}
	form := url.Values{}
	form.Set("asset", c.asset)
	if err := c.private(ctx, "TradeBalance", form, &result); err != nil {
		return 0, err
	}
	eb, err := strconv.ParseFloat(result.EB, 64)
	if err != nil {
		return 0, fmt.Errorf("kraken TradeBalance: eb %q: %w", result.EB, err)
	}
	return eb, nil
}

type addOrderResult struct {
	Descr struct {
		Order string `json:"order"`
	} `json:"descr"`
	TxID []string `json:"txid"`
}

func orderType(s market.Side) (string, error) {
	switch s {
	case market.Long:
		return "buy", nil
	case market.Short:
		return "sell", nil
	}
	return "", fmt.Errorf("kraken: no order type for side %s", s)
}

// OpenPosition sends a market margin order. The volume is rounded down to
// the pair's lot decimals and must reach the pair's minimum order size.
func (c *Client) OpenPosition(ctx context.Context, req broker.OrderRequest) (broker.Fill, error) {
	typ, err := orderType(req.Side)
	if err != nil {
		return broker.Fill{}, err
	}
	pair, err := c.PairInfo(ctx, req.Pair)
	if err != nil {
		return broker.Fill{}, err
	}

	vol := pair.Volume(req.Size)
	if vol.LessThan(pair.OrderMin) || !vol.IsPositive() {
		return broker.Fill{}, fmt.Errorf("kraken AddOrder: volume %s below minimum %s for %s", vol, pair.OrderMin, req.Pair)
	}

	form := url.Values{}
	form.Set("pair", req.Pair)
	form.Set("type", typ)
	form.Set("ordertype", "market")
	form.Set("volume", vol.String())
	if req.Leverage > 1 {
		form.Set("leverage", strconv.Itoa(req.Leverage))
	}
	if req.StopLoss > 0 {
		form.Set("close[ordertype]", "stop-loss")
		form.Set("close[price]", pair.Price(req.StopLoss).String())
	}

	var result addOrderResult
	if err := c.private(ctx, "AddOrder", form, &result); err != nil {
		return broker.Fill{}, err
	}
	if len(result.TxID) == 0 {
		return broker.Fill{}, fmt.Errorf("kraken AddOrder: no txid returned")
	}

	c.log.Info("order placed",
		logger.StringField("txid", result.TxID[0]),
		logger.StringField("order", result.Descr.Order),
	)
	return broker.Fill{
		OrderID:     result.TxID[0],
		Size:        vol.InexactFloat64(),
		Description: result.Descr.Order,
	}, nil
}

// Position is one entry of the OpenPositions endpoint.
type Position struct {
	TxID      string `json:"-"`
	Pair      string `json:"pair"`
	Type      string `json:"type"`
	Vol       string `json:"vol"`
	VolClosed string `json:"vol_closed"`
}

// Remaining is the open volume.
func (p Position) Remaining() (decimal.Decimal, error) {
	vol, err := decimal.NewFromString(p.Vol)
	if err != nil {
		return decimal.Zero, err
	}
	closed := decimal.Zero
	if p.VolClosed != "" {
		if closed, err = decimal.NewFromString(p.VolClosed); err != nil {
			return decimal.Zero, err
		}
	}
	return vol.Sub(closed), nil
}

func (c *Client) OpenPositions(ctx context.Context) ([]Position, error) {
	var result map[string]Position
	if err := c.private(ctx, "OpenPositions", nil, &result); err != nil {
		return nil, err
	}
	out := make([]Position, 0, len(result))
	for id, p := range result {
		p.TxID = id
		out = append(out, p)
	}
	return out, nil
}

// ClosePosition sums the open volume of req.Pair on req.Side and sends the
// reverse market order for it.
func (c *Client) ClosePosition(ctx context.Context, req broker.CloseRequest) error {
	typ, err := orderType(req.Side)
	if err != nil {
		return err
	}
	reverse, err := orderType(req.Side.Opposite())
	if err != nil {
		return err
	}

	positions, err := c.OpenPositions(ctx)
	if err != nil {
		return err
	}
	total := decimal.Zero
	for _, p := range positions {
		if p.Pair != req.Pair || p.Type != typ {
			continue
		}
		rem, err := p.Remaining()
		if err != nil {
			return fmt.Errorf("kraken OpenPositions %s: %w", p.TxID, err)
		}
		total = total.Add(rem)
	}
	if !total.IsPositive() {
		return fmt.Errorf("%w: %s %s", broker.ErrNoPosition, req.Pair, req.Side)
	}

	form := url.Values{}
	form.Set("pair", req.Pair)
	form.Set("type", reverse)
	form.Set("ordertype", "market")
	form.Set("volume", total.String())
	if req.Leverage > 1 {
		form.Set("leverage", strconv.Itoa(req.Leverage))
	}
	form.Set("reduce_only", "true")

	var result addOrderResult
	if err := c.private(ctx, "AddOrder", form, &result); err != nil {
		return err
	}
	c.log.Info("position closed",
		logger.StringField("pair", req.Pair),
		logger.StringField("side", req.Side.String()),
		logger.StringField("volume", total.String()),
	)
	return nil
}
