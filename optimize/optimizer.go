package optimize

import (
	"context"
	"runtime"
	"sort"
	"sync/atomic"

	"github.com/rustyeddy/volaccel/backtest"
	"github.com/rustyeddy/volaccel/market"
	"github.com/rustyeddy/volaccel/pkg/logger"
	"github.com/rustyeddy/volaccel/signal"
	"golang.org/x/sync/errgroup"
)

// progressEvery is how often, in finished variants, progress is logged.
const progressEvery = 100

// Result is the score of one variant.
type Result struct {
	Variant   Variant
	Scorecard backtest.Scorecard
}

// Report is the outcome of a whole grid.
type Report struct {
	Tested int
	// Failed counts variants whose config did not validate.
	Failed int
	// Valid holds results with at least MinTrades trades, best first.
	Valid []Result
	Names []string
}

// Top returns at most n of the best results.
func (r Report) Top(n int) []Result {
	if n > len(r.Valid) {
		n = len(r.Valid)
	}
	return r.Valid[:n]
}

type Optimizer struct {
	Grid    Grid
	Workers int
	Log     *logger.Logger
}

func New(g Grid, workers int, log *logger.Logger) *Optimizer {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Optimizer{Grid: g, Workers: workers, Log: log}
}

// Run scores every variant of the grid against series. Indicators are
// computed once and shared read-only by the workers. Cancelling ctx stops
// the run between variants.
func (o *Optimizer) Run(ctx context.Context, series market.Series) (Report, error) {
	variants, err := Enumerate(o.Grid)
	if err != nil {
		return Report{}, err
	}
	if err := series.Require(max(o.Grid.Warmup, backtest.DefaultWarmup) + 1); err != nil {
		return Report{}, err
	}

	frame := signal.NewFrame(series)
	o.Log.Info("optimizer started",
		logger.IntField("variants", len(variants)),
		logger.IntField("bars", frame.Len()),
		logger.IntField("workers", o.Workers),
	)

	results := make([]*Result, len(variants))
	var done, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.Workers)
	for i := range variants {
		if gctx.Err() != nil {
			break
		}
		v := variants[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			defer func() {
				if n := done.Add(1); n%progressEvery == 0 {
					o.Log.Info("optimizer progress", logger.IntField("done", int(n)), logger.IntField("total", len(variants)))
				}
			}()

			sim, err := backtest.New(v.Config, backtest.Options{
				InitialCapital: o.Grid.InitialCapital,
				Warmup:         o.Grid.Warmup,
				Seed:           int64(v.Index),
			})
			if err != nil {
				failed.Add(1)
				o.Log.Warn("variant skipped", logger.IntField("variant", v.Index), logger.ErrorField(err))
				return nil
			}
			res, err := sim.Run(gctx, frame, signal.Generate(frame, v.Config))
			if err != nil {
				return err
			}
			results[v.Index] = &Result{Variant: v, Scorecard: res.Scorecard}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	rep := Report{
		Tested: len(variants),
		Failed: int(failed.Load()),
		Names:  o.Grid.ParamNames(),
	}
	for _, r := range results {
		if r != nil && r.Scorecard.Trades >= o.Grid.MinTrades {
			rep.Valid = append(rep.Valid, *r)
		}
	}
	sort.SliceStable(rep.Valid, func(i, j int) bool {
		return rep.Valid[i].Scorecard.Sharpe > rep.Valid[j].Scorecard.Sharpe
	})

	o.Log.Info("optimizer finished",
		logger.IntField("tested", rep.Tested),
		logger.IntField("valid", len(rep.Valid)),
		logger.IntField("failed", rep.Failed),
	)
	return rep, nil
}
