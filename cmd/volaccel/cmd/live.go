package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rustyeddy/volaccel/live"
	"github.com/rustyeddy/volaccel/pkg/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Run the live trading driver",
	Long: `Drive the strategy against Kraken (live.mode: kraken) or a local paper
broker on Kraken market data (live.mode: paper).

Subcommands:
  run      - Process the newest bar once and exit (for an external cron)
  schedule - Run on the built-in cron schedule until interrupted

The state is kept in live.state_path between invocations.

Examples:
  volaccel live run
  VOLACCEL_LIVE_MODE=kraken volaccel live schedule --summary "55 23 * * *"`,
}

var liveRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Process the newest bar once",
	Args:  cobra.NoArgs,
	RunE:  runLiveOnce,
}

var liveScheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run on a cron schedule",
	Args:  cobra.NoArgs,
	RunE:  runLiveSchedule,
}

var (
	liveSpec        string
	liveSummarySpec string
)

func init() {
	rootCmd.AddCommand(liveCmd)
	liveCmd.AddCommand(liveRunCmd)
	liveCmd.AddCommand(liveScheduleCmd)

	liveScheduleCmd.Flags().StringVar(&liveSpec, "spec", "", "cron spec of the trading cycle in UTC (default live.schedule)")
	liveScheduleCmd.Flags().StringVar(&liveSummarySpec, "summary", "", "cron spec of the daily summary in UTC (off when empty)")
}

func runLiveOnce(cmd *cobra.Command, args []string) error {
	r, closeFn, err := newRunner()
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, stop := interruptContext(cmd.Context())
	defer stop()

	out := r.RunOnce(ctx)
	printOutcome(out)
	if out.Status == live.StatusFailed {
		return fmt.Errorf("live cycle failed (%s): %w", out.Kind, out.Err)
	}
	return nil
}

func printOutcome(out live.Outcome) {
	fmt.Printf("%s: %s\n", out.Status, out.Reason)
	for _, t := range out.Report.Closed {
		fmt.Printf("  closed %s %s pnl %+.2f (%s)\n", t.ID, t.Side, t.PnL, t.Reason)
	}
	if p := out.Report.Opened; p != nil {
		fmt.Printf("  opened %s %s size %.4f @ %.5f x%d\n", p.ID, p.Side, p.Size, p.Entry, p.Leverage)
	}
}

// cronLogger adapts the zap logger to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.s.Errorw(msg, append(kv, "error", err)...)
}

func runLiveSchedule(cmd *cobra.Command, args []string) error {
	r, closeFn, err := newRunner()
	if err != nil {
		return err
	}
	defer closeFn()

	spec := firstNonEmpty(liveSpec, cfg.Live.Schedule)
	if spec == "" {
		return fmt.Errorf("no schedule: pass --spec or set live.schedule")
	}

	ctx, stop := interruptContext(cmd.Context())
	defer stop()

	cl := cronLogger{s: log.Sugar()}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	if _, err := c.AddFunc(spec, func() {
		cycleCtx, cancel := context.WithTimeout(ctx, cfg.Live.Interval)
		defer cancel()
		printOutcome(r.RunOnce(cycleCtx))
	}); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}

	if liveSummarySpec != "" {
		j := r.Journal
		if _, err := c.AddFunc(liveSummarySpec, func() {
			var h live.History
			if db, ok := j.(live.History); ok {
				h = db
			}
			if _, err := r.SendSummary(ctx, time.Now(), h); err != nil {
				log.Error("Daily summary failed", logger.ErrorField(err))
			}
		}); err != nil {
			return fmt.Errorf("schedule %q: %w", liveSummarySpec, err)
		}
	}

	r.Startup(ctx)
	log.Info("Live schedule started", logger.StringField("spec", spec),
		logger.StringField("pair", cfg.Live.Pair), logger.StringField("mode", cfg.Live.Mode))
	c.Start()

	<-ctx.Done()
	log.Info("Stopping live schedule")
	<-c.Stop().Done()
	return nil
}
