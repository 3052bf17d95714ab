package kraken

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/rustyeddy/volaccel/broker"
	"github.com/rustyeddy/volaccel/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSign(t *testing.T) {
	t.Parallel()

	// Example from the Kraken REST authentication guide.
	secret, err := base64.StdEncoding.DecodeString("kQH5HW/8p1uGOVjbgWA7FunAmGO8lsSUXNsu3eow76sz84Q18fWxnyRzBHCd3pd5nE9qa99HAZtuZuj6F1huXg==")
	require.NoError(t, err)

	got := Sign("/0/private/AddOrder", "1616492376594",
		"nonce=1616492376594&ordertype=limit&pair=XBTUSD&price=37500&type=buy&volume=1.25", secret)
	assert.Equal(t, "4/dpxb3iT4tp/ZCVEwSnEsLxx0bqyhLpdfOpc6fn7OR8+UClSV5n9E6aSS8MPtnRfp32bAb0nmbRn6H8ndwLUQ==", got)
}

var testSecret = []byte("super-secret-key")

type fakeKraken struct {
	t *testing.T

	mu         sync.Mutex
	pairCalls  int
	orders     []url.Values
	positions  string
	orderError string
}

func (f *fakeKraken) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/0/public/OHLC":
		assert.Equal(f.t, "XXRPZUSD", r.URL.Query().Get("pair"))
		assert.Equal(f.t, "60", r.URL.Query().Get("interval"))
		fmt.Fprint(w, `{"error":[],"result":{"XXRPZUSD":[
			[1700000000,"0.5000","0.5100","0.4900","0.5050","0.5","1200.5",10],
			[1700003600,"0.5050","0.5200","0.5000","0.5150","0.5","900",8],
			[1700007200,"0.5150","0.5300","0.5100","0.5250","0.5","1500",12],
			[1700010800,"0.5250","0.5250","0.5250","0.5250","0.5","3",1]
		],"last":1700007200}}`)
		return
	case "/0/public/AssetPairs":
		f.mu.Lock()
		f.pairCalls++
		f.mu.Unlock()
		fmt.Fprint(w, `{"error":[],"result":{"XXRPZUSD":{"lot_decimals":2,"pair_decimals":5,"ordermin":"10"}}}`)
		return
	}

	body, err := io.ReadAll(r.Body)
	assert.NoError(f.t, err)
	form, err := url.ParseQuery(string(body))
	assert.NoError(f.t, err)

	f.mu.Lock()
	defer f.mu.Unlock()

	assert.Equal(f.t, "key", r.Header.Get("API-Key"))
	assert.Equal(f.t, Sign(r.URL.Path, form.Get("nonce"), string(body), testSecret), r.Header.Get("API-Sign"))

	switch r.URL.Path {
	case "/0/private/TradeBalance":
		assert.Equal(f.t, "ZUSD", form.Get("asset"))
		fmt.Fprint(w, `{"error":[],"result":{"eb":"1234.50","tb":"1000"}}`)
	case "/0/private/AddOrder":
		f.orders = append(f.orders, form)
		if f.orderError != "" {
			fmt.Fprintf(w, `{"error":[%q]}`, f.orderError)
			return
		}
		fmt.Fprint(w, `{"error":[],"result":{"descr":{"order":"buy 150.00 XRPUSD @ market"},"txid":["OABC-123"]}}`)
	case "/0/private/OpenPositions":
		fmt.Fprint(w, f.positions)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeKraken) set(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn()
}

func (f *fakeKraken) sentOrders() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.orders...)
}

func newTestClient(t *testing.T, f *fakeKraken) *Client {
	t.Helper()

	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		BaseURL:           srv.URL,
		APIKey:            "key",
		APISecret:         base64.StdEncoding.EncodeToString(testSecret),
		RequestsPerSecond: 1000,
	}, nil)
	require.NoError(t, err)
	return c
}

func TestCandlesDropsFormingBar(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, &fakeKraken{t: t})
	s, err := c.Candles(context.Background(), "XXRPZUSD", time.Hour, 0)
	require.NoError(t, err)
	require.Len(t, s, 3)

	assert.Equal(t, time.Unix(1700000000, 0).UTC(), s[0].Time)
	assert.Equal(t, market.Candle{
		Time:   time.Unix(1700007200, 0).UTC(),
		Open:   0.515,
		High:   0.53,
		Low:    0.51,
		Close:  0.525,
		Volume: 1500,
	}, s[2])

	last2, err := c.Candles(context.Background(), "XXRPZUSD", time.Hour, 2)
	require.NoError(t, err)
	require.Len(t, last2, 2)
	assert.Equal(t, s[1], last2[0])

	_, err = c.Candles(context.Background(), "XXRPZUSD", time.Second, 0)
	assert.Error(t, err)
}

func TestTradableBalance(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, &fakeKraken{t: t})
	eb, err := c.TradableBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1234.5, eb)
}

func TestPrivateNeedsCredentials(t *testing.T) {
	t.Parallel()

	c, err := New(Config{BaseURL: "http://127.0.0.1:1"}, nil)
	require.NoError(t, err)
	_, err = c.TradableBalance(context.Background())
	assert.ErrorIs(t, err, ErrCredentials)

	_, err = New(Config{APIKey: "k", APISecret: "%%%"}, nil)
	assert.Error(t, err)
}

func TestOpenPosition(t *testing.T) {
	t.Parallel()

	f := &fakeKraken{t: t}
	c := newTestClient(t, f)
	ctx := context.Background()

	fill, err := c.OpenPosition(ctx, broker.OrderRequest{
		Pair:     "XXRPZUSD",
		Side:     market.Long,
		Size:     150.987,
		Leverage: 5,
		StopLoss: 0.5012345,
	})
	require.NoError(t, err)
	assert.Equal(t, "OABC-123", fill.OrderID)
	assert.Equal(t, 150.98, fill.Size)

	orders := f.sentOrders()
	require.Len(t, orders, 1)
	o := orders[0]
	assert.Equal(t, "buy", o.Get("type"))
	assert.Equal(t, "market", o.Get("ordertype"))
	assert.Equal(t, "150.98", o.Get("volume"))
	assert.Equal(t, "5", o.Get("leverage"))
	assert.Equal(t, "stop-loss", o.Get("close[ordertype]"))
	assert.Equal(t, "0.50123", o.Get("close[price]"))

	// pair metadata is cached
	_, err = c.OpenPosition(ctx, broker.OrderRequest{Pair: "XXRPZUSD", Side: market.Short, Size: 20, Leverage: 1})
	require.NoError(t, err)
	f.set(func() { assert.Equal(t, 1, f.pairCalls) })
	orders = f.sentOrders()
	assert.Equal(t, "sell", orders[1].Get("type"))
	assert.Empty(t, orders[1].Get("leverage"))
	assert.Empty(t, orders[1].Get("close[ordertype]"))

	minSize, err := c.MinOrderSize(ctx, "XXRPZUSD")
	require.NoError(t, err)
	assert.Equal(t, 10.0, minSize)
}

func TestOpenPositionRejects(t *testing.T) {
	t.Parallel()

	f := &fakeKraken{t: t}
	c := newTestClient(t, f)
	ctx := context.Background()

	_, err := c.OpenPosition(ctx, broker.OrderRequest{Pair: "XXRPZUSD", Side: market.Long, Size: 9.999})
	assert.ErrorContains(t, err, "below minimum")

	_, err = c.OpenPosition(ctx, broker.OrderRequest{Pair: "XXRPZUSD", Side: market.Flat, Size: 100})
	assert.Error(t, err)

	f.set(func() { f.orderError = "EOrder:Insufficient margin" })
	_, err = c.OpenPosition(ctx, broker.OrderRequest{Pair: "XXRPZUSD", Side: market.Long, Size: 100})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, []string{"EOrder:Insufficient margin"}, apiErr.Errors)
}

func TestClosePosition(t *testing.T) {
	t.Parallel()

	f := &fakeKraken{t: t, positions: `{"error":[],"result":{
		"T1":{"pair":"XXRPZUSD","type":"buy","vol":"100.5","vol_closed":"0.5"},
		"T2":{"pair":"XXRPZUSD","type":"buy","vol":"50","vol_closed":"0"},
		"T3":{"pair":"XXRPZUSD","type":"sell","vol":"70","vol_closed":"0"},
		"T4":{"pair":"XETHZUSD","type":"buy","vol":"1","vol_closed":"0"}
	}}`}
	c := newTestClient(t, f)
	ctx := context.Background()

	require.NoError(t, c.ClosePosition(ctx, broker.CloseRequest{Pair: "XXRPZUSD", Side: market.Long, Leverage: 4}))
	orders := f.sentOrders()
	require.Len(t, orders, 1)
	o := orders[0]
	assert.Equal(t, "sell", o.Get("type"))
	assert.Equal(t, "150", o.Get("volume"))
	assert.Equal(t, "4", o.Get("leverage"))

	f.set(func() { f.positions = `{"error":[],"result":{}}` })
	err := c.ClosePosition(ctx, broker.CloseRequest{Pair: "XXRPZUSD", Side: market.Short})
	assert.ErrorIs(t, err, broker.ErrNoPosition)
}
