package notify

import (
	"fmt"
	"html"
	"math"
	"strings"
	"time"

	"github.com/rustyeddy/volaccel/market"
	"github.com/rustyeddy/volaccel/pkg/logger"
	"github.com/rustyeddy/volaccel/risk"
	"github.com/rustyeddy/volaccel/signal"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const timeLayout = "2006-01-02 15:04:05 UTC"

// Startup is sent once when a live driver starts.
type Startup struct {
	At           time.Time
	Mode         string
	Pair         string
	Interval     time.Duration
	Capital      float64
	RiskPerTrade float64
	LeverageMin  int
	LeverageMax  int
	Trailing     bool
	MaxDailyLoss float64
}

func (Startup) Kind() string { return "startup" }

func (e Startup) HTML() string {
	var b strings.Builder
	fmt.Fprintf(&b, "🚀 <b>TRADING BOT STARTED</b> (%s)\n\n", esc(e.Mode))
	fmt.Fprintf(&b, "📅 %s\n", e.At.UTC().Format(timeLayout))
	fmt.Fprintf(&b, "💱 Pair: %s\n", esc(e.Pair))
	fmt.Fprintf(&b, "⏱ Interval: %s\n\n", e.Interval)
	b.WriteString("⚙️ <b>Settings:</b>\n")
	fmt.Fprintf(&b, "• Capital: %s\n", money(e.Capital))
	fmt.Fprintf(&b, "• Risk per trade: %g%%\n", e.RiskPerTrade*100)
	fmt.Fprintf(&b, "• Leverage: %d-%dx\n", e.LeverageMin, e.LeverageMax)
	fmt.Fprintf(&b, "• Trailing stop: %s\n", check(e.Trailing))
	fmt.Fprintf(&b, "• Max daily loss: %s", money(e.MaxDailyLoss))
	return b.String()
}

func (e Startup) Fields() []zap.Field {
	return []zap.Field{
		logger.StringField("mode", e.Mode),
		logger.StringField("pair", e.Pair),
		zap.Duration("interval", e.Interval),
		logger.FloatField("capital", e.Capital),
	}
}

// Signal reports a directional decision on the latest bar.
type Signal struct {
	Pair   string
	Signal signal.Signal
}

func (Signal) Kind() string { return "signal" }

func (e Signal) HTML() string {
	s := e.Signal
	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>SIGNAL: %s</b> %s\n\n", sideEmoji(s.Side), strings.ToUpper(s.Side.String()), esc(e.Pair))
	fmt.Fprintf(&b, "💰 Price: %s\n", price(s.Snapshot.Close))
	fmt.Fprintf(&b, "📊 Acceleration: %.2f (run %d)\n", s.Snapshot.VolSecond, s.RunLength)
	fmt.Fprintf(&b, "📈 ADX: %.1f\n", s.Snapshot.ADX)
	fmt.Fprintf(&b, "📉 RSI: %.1f\n", s.Snapshot.RSI)
	fmt.Fprintf(&b, "✅ Confirmation: %.1f/%d", s.Agreements, s.Required)
	return b.String()
}

func (e Signal) Fields() []zap.Field {
	return []zap.Field{
		logger.StringField("pair", e.Pair),
		logger.StringField("side", e.Signal.Side.String()),
		logger.IntField("run", e.Signal.RunLength),
		logger.FloatField("agreements", e.Signal.Agreements),
		logger.FloatField("close", e.Signal.Snapshot.Close),
	}
}

// OrderPlaced reports a position opened at the broker.
type OrderPlaced struct {
	Pair     string
	Position risk.Position
}

func (OrderPlaced) Kind() string { return "order_placed" }

func (e OrderPlaced) HTML() string {
	p := e.Position
	cost := p.Entry * p.Size
	lev := max(p.Leverage, 1)
	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>ORDER FILLED: %s</b> %s\n\n", sideEmoji(p.Side), strings.ToUpper(p.Side.String()), esc(e.Pair))
	fmt.Fprintf(&b, "📝 ID: <code>%s</code>\n", esc(p.OrderID))
	fmt.Fprintf(&b, "💰 Entry: %s\n", price(p.Entry))
	fmt.Fprintf(&b, "📊 Size: %.4f\n", p.Size)
	fmt.Fprintf(&b, "💵 Cost: %s\n", money(cost))
	fmt.Fprintf(&b, "⚡ Leverage: %dx\n", lev)
	fmt.Fprintf(&b, "💼 Margin: %s\n\n", money(cost/float64(lev)))
	fmt.Fprintf(&b, "🎯 Take profit: %s\n", price(p.Target))
	fmt.Fprintf(&b, "🛑 Stop loss: %s\n", price(p.Stop))
	fmt.Fprintf(&b, "⚖️ Risk: %s (R:R %.2f)", money(risk.PlannedRisk(p.Size, p.Entry, p.Stop)), risk.RR(p.Entry, p.Stop, p.Target))
	return b.String()
}

func (e OrderPlaced) Fields() []zap.Field {
	p := e.Position
	return []zap.Field{
		logger.StringField("pair", e.Pair),
		logger.StringField("position", p.ID),
		logger.StringField("order", p.OrderID),
		logger.StringField("side", p.Side.String()),
		logger.FloatField("entry", p.Entry),
		logger.FloatField("size", p.Size),
		logger.IntField("leverage", p.Leverage),
		logger.FloatField("stop", p.Stop),
		logger.FloatField("planned_risk", risk.PlannedRisk(p.Size, p.Entry, p.Stop)),
		logger.FloatField("rr", risk.RR(p.Entry, p.Stop, p.Target)),
	}
}

// OrderClosed reports a position closed at the broker.
type OrderClosed struct {
	Pair    string
	OrderID string
	Trade   risk.Trade
	Balance float64
}

func (OrderClosed) Kind() string { return "order_closed" }

func (e OrderClosed) HTML() string {
	t := e.Trade
	head, pl := "❌", "💸"
	if t.Win() {
		head, pl = "✅", "💰"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>POSITION CLOSED</b> %s\n\n", head, esc(e.Pair))
	fmt.Fprintf(&b, "📝 ID: <code>%s</code>\n", esc(orDefault(e.OrderID, t.ID)))
	fmt.Fprintf(&b, "📊 Direction: %s\n\n", strings.ToUpper(t.Side.String()))
	fmt.Fprintf(&b, "💰 Entry: %s\n", price(t.EntryPrice))
	fmt.Fprintf(&b, "💰 Exit: %s\n", price(t.ExitPrice))
	fmt.Fprintf(&b, "⏱ Duration: %s\n\n", duration(t.Duration()))
	fmt.Fprintf(&b, "%s <b>P&amp;L: %s</b>\n", pl, signedMoney(t.PnL))
	fmt.Fprintf(&b, "📈 Return: %+.2f%%\n", t.ReturnPct())
	fmt.Fprintf(&b, "🎯 Reason: %s\n\n", esc(string(t.Reason)))
	fmt.Fprintf(&b, "💼 Balance: %s", money(e.Balance))
	return b.String()
}

func (e OrderClosed) Fields() []zap.Field {
	t := e.Trade
	return []zap.Field{
		logger.StringField("pair", e.Pair),
		logger.StringField("position", t.ID),
		logger.StringField("reason", string(t.Reason)),
		logger.FloatField("pnl", t.PnL),
		logger.FloatField("return_pct", t.ReturnPct()),
		zap.Duration("duration", t.Duration()),
		logger.FloatField("balance", e.Balance),
	}
}

// TrailingUpdate reports a ratcheted trailing stop.
type TrailingUpdate struct {
	PositionID   string
	NewStop      float64
	ProfitPoints float64
}

func (TrailingUpdate) Kind() string { return "trailing_update" }

func (e TrailingUpdate) HTML() string {
	return fmt.Sprintf("📊 <b>TRAILING STOP MOVED</b>\n\n📝 Position: <code>%s</code>\n🛑 New stop: %s\n💰 Profit: %.1f points",
		esc(e.PositionID), price(e.NewStop), e.ProfitPoints)
}

func (e TrailingUpdate) Fields() []zap.Field {
	return []zap.Field{
		logger.StringField("position", e.PositionID),
		logger.FloatField("stop", e.NewStop),
		logger.FloatField("profit_points", e.ProfitPoints),
	}
}

// DailyLossLimit reports the circuit breaker closing everything.
type DailyLossLimit struct {
	Loss  float64
	Limit float64
}

func (DailyLossLimit) Kind() string { return "daily_loss_limit" }

func (e DailyLossLimit) HTML() string {
	return fmt.Sprintf("⚠️ <b>DAILY LOSS LIMIT REACHED</b>\n\n💸 Day P&amp;L: %s\n🚫 Limit: %s\n\n🛑 Trading stopped until 00:00 UTC\n❌ All positions closed",
		signedMoney(e.Loss), money(e.Limit))
}

func (e DailyLossLimit) Fields() []zap.Field {
	return []zap.Field{logger.FloatField("loss", e.Loss), logger.FloatField("limit", e.Limit)}
}

// Fault reports an error the driver recovered from.
type Fault struct {
	Op  string
	Err error
}

func (Fault) Kind() string { return "error" }

func (e Fault) HTML() string {
	msg := "unknown error"
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("❌ <b>ERROR</b> %s\n\n🐛 %s\n\n⚠️ Check the logs", esc(e.Op), esc(msg))
}

func (e Fault) Fields() []zap.Field {
	return []zap.Field{logger.StringField("op", e.Op), logger.ErrorField(e.Err)}
}

// DailySummary is the end of day report.
type DailySummary struct {
	Date           string
	Trades         int
	Wins           int
	Losses         int
	PnL            float64
	Balance        float64
	MaxDrawdownPct float64
	Best           float64
	Worst          float64
}

func (DailySummary) Kind() string { return "daily_summary" }

func (e DailySummary) WinRate() float64 {
	if e.Trades == 0 {
		return 0
	}
	return float64(e.Wins) / float64(e.Trades) * 100
}

func (e DailySummary) HTML() string {
	pl, verdict := "💸", "🔴 Negative day"
	if e.PnL >= 0 {
		pl, verdict = "💰", "🟢 Positive day"
	}
	var b strings.Builder
	b.WriteString("📊 <b>DAILY SUMMARY</b>\n\n")
	fmt.Fprintf(&b, "📅 %s\n\n", esc(e.Date))
	fmt.Fprintf(&b, "📈 Trades: %d\n", e.Trades)
	fmt.Fprintf(&b, "✅ Wins: %d\n", e.Wins)
	fmt.Fprintf(&b, "❌ Losses: %d\n", e.Losses)
	fmt.Fprintf(&b, "📊 Win rate: %.1f%%\n\n", e.WinRate())
	fmt.Fprintf(&b, "%s <b>Day P&amp;L: %s</b>\n", pl, signedMoney(e.PnL))
	fmt.Fprintf(&b, "💼 Balance: %s\n", money(e.Balance))
	fmt.Fprintf(&b, "📉 Max drawdown: %.2f%%\n\n", e.MaxDrawdownPct)
	fmt.Fprintf(&b, "🎯 Best trade: %s\n", signedMoney(e.Best))
	fmt.Fprintf(&b, "💸 Worst trade: %s\n\n", signedMoney(e.Worst))
	b.WriteString(verdict)
	return b.String()
}

func (e DailySummary) Fields() []zap.Field {
	return []zap.Field{
		logger.StringField("date", e.Date),
		logger.IntField("trades", e.Trades),
		logger.IntField("wins", e.Wins),
		logger.FloatField("pnl", e.PnL),
		logger.FloatField("balance", e.Balance),
	}
}

// PositionUpdate reports the floating state of an open position.
type PositionUpdate struct {
	Pair     string
	Position risk.Position
	Price    float64
	PnL      float64
	At       time.Time
}

func (PositionUpdate) Kind() string { return "position_update" }

// PnLPct is the floating price move in the position direction.
func (e PositionUpdate) PnLPct() float64 {
	p := e.Position
	if p.Entry == 0 {
		return 0
	}
	return float64(p.Side) * (e.Price - p.Entry) / p.Entry * 100
}

func (e PositionUpdate) HTML() string {
	p := e.Position
	pl := "💸"
	if e.PnL >= 0 {
		pl = "💰"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📊 <b>POSITION UPDATE</b> %s\n\n", esc(e.Pair))
	fmt.Fprintf(&b, "📝 ID: <code>%s</code>\n", esc(p.ID))
	fmt.Fprintf(&b, "💰 Price: %s\n", price(e.Price))
	fmt.Fprintf(&b, "💰 Entry: %s\n\n", price(p.Entry))
	fmt.Fprintf(&b, "%s P&amp;L: %s (%+.2f%%)\n", pl, signedMoney(e.PnL), e.PnLPct())
	fmt.Fprintf(&b, "⏱ Open for: %s\n\n", duration(e.At.Sub(p.EntryTime)))
	fmt.Fprintf(&b, "🎯 TP: %s\n", price(p.Target))
	fmt.Fprintf(&b, "🛑 SL: %s", price(p.Stop))
	return b.String()
}

func (e PositionUpdate) Fields() []zap.Field {
	return []zap.Field{
		logger.StringField("position", e.Position.ID),
		logger.FloatField("price", e.Price),
		logger.FloatField("pnl", e.PnL),
		logger.FloatField("stop", e.Position.Stop),
	}
}

func esc(s string) string { return html.EscapeString(s) }

func check(b bool) string {
	if b {
		return "✅"
	}
	return "❌"
}

func sideEmoji(s market.Side) string {
	switch s {
	case market.Long:
		return "🟢"
	case market.Short:
		return "🔴"
	}
	return "⚪"
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func price(v float64) string {
	return "$" + decimal.NewFromFloat(v).StringFixed(5)
}

// money renders v with two decimals and thousands separators.
func money(v float64) string {
	if v < 0 {
		return "-" + money(-v)
	}
	s := decimal.NewFromFloat(v).StringFixed(2)
	whole, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return "$" + b.String() + "." + frac
}

func signedMoney(v float64) string {
	if v < 0 {
		return money(v)
	}
	return "+" + money(v)
}

func duration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Minute)
	days := int(d / (24 * time.Hour))
	h := int(math.Mod(d.Hours(), 24))
	m := int(math.Mod(d.Minutes(), 60))
	if days > 0 {
		return fmt.Sprintf("%dd %dh %02dm", days, h, m)
	}
	return fmt.Sprintf("%dh %02dm", h, m)
}
