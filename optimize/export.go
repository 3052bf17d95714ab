package optimize

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rustyeddy/volaccel/backtest"
	"github.com/rustyeddy/volaccel/journal"
)

const (
	ResultsFile     = "optimization_results.csv"
	BestConfigsFile = "best_configs.json"
)

var scoreHeader = []string{
	"trades", "wins", "losses", "win_rate_pct", "total_return_pct", "avg_win", "avg_loss",
	"profit_factor", "max_drawdown_pct", "sharpe", "final_capital",
}

// WriteCSV writes every valid result, best first, one column per varied
// parameter.
func (r Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := append([]string{"rank", "variant"}, r.Names...)
	if err := cw.Write(append(header, scoreHeader...)); err != nil {
		return err
	}

	for i, res := range r.Valid {
		row := []string{strconv.Itoa(i + 1), strconv.Itoa(res.Variant.Index)}
		for _, name := range r.Names {
			if x, ok := res.Variant.Numbers[name]; ok {
				row = append(row, strconv.FormatFloat(x, 'f', -1, 64))
			} else {
				row = append(row, strconv.FormatBool(res.Variant.Bools[name]))
			}
		}
		sc := res.Scorecard
		row = append(row,
			strconv.Itoa(sc.Trades),
			strconv.Itoa(sc.Wins),
			strconv.Itoa(sc.Losses),
			f(sc.WinRatePct),
			f(sc.TotalReturnPct),
			f(sc.AvgWin),
			f(sc.AvgLoss),
			f(sc.ProfitFactor),
			f(sc.MaxDrawdownPct),
			f(sc.Sharpe),
			f(sc.FinalCapital),
		)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// BestConfig is one entry of the best configs file.
type BestConfig struct {
	Rank      int                `json:"rank"`
	Variant   int                `json:"variant"`
	Params    map[string]any     `json:"params"`
	Scorecard backtest.Scorecard `json:"scorecard"`
}

// Best returns the top n results in their exported form.
func (r Report) Best(n int) []BestConfig {
	top := r.Top(n)
	out := make([]BestConfig, 0, len(top))
	for i, res := range top {
		out = append(out, BestConfig{
			Rank:      i + 1,
			Variant:   res.Variant.Index,
			Params:    res.Variant.Params(),
			Scorecard: res.Scorecard,
		})
	}
	return out
}

func (r Report) WriteBestJSON(w io.Writer, n int) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(r.Best(n))
}

// Save writes the results CSV and the best configs JSON into dir.
func (r Report) Save(dir string, n int) error {
	if err := writeFile(filepath.Join(dir, ResultsFile), r.WriteCSV); err != nil {
		return err
	}
	return writeFile(filepath.Join(dir, BestConfigsFile), func(w io.Writer) error {
		return r.WriteBestJSON(w, n)
	})
}

func writeFile(path string, write func(io.Writer) error) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(fh); err != nil {
		fh.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return fh.Close()
}

// Records converts the top n results for the journal.
func (r Report) Records(runID string, n int) ([]journal.OptimizationRecord, error) {
	var out []journal.OptimizationRecord
	for _, b := range r.Best(n) {
		params, err := json.Marshal(b.Params)
		if err != nil {
			return nil, err
		}
		sc := b.Scorecard
		out = append(out, journal.OptimizationRecord{
			RunID:        runID,
			Rank:         b.Rank,
			Variant:      b.Variant,
			Params:       string(params),
			Trades:       sc.Trades,
			ReturnPct:    sc.TotalReturnPct,
			WinRate:      sc.WinRatePct,
			ProfitFactor: sc.ProfitFactor,
			MaxDDPct:     sc.MaxDrawdownPct,
			Sharpe:       sc.Sharpe,
			FinalCapital: sc.FinalCapital,
		})
	}
	return out, nil
}

// PrintTop renders the best n results.
func (r Report) PrintTop(w io.Writer, n int) {
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintf(w, " Top %d configurations (by Sharpe)\n", n)
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintf(w, "Tested: %d  Valid: %d  Failed: %d\n", r.Tested, len(r.Valid), r.Failed)

	for _, b := range r.Best(n) {
		sc := b.Scorecard
		fmt.Fprintln(w)
		fmt.Fprintf(w, "#%d (variant %d)\n", b.Rank, b.Variant)
		fmt.Fprintln(w, "--------------------------------------------------")
		fmt.Fprintf(w, "Sharpe Ratio:  %8.3f\n", sc.Sharpe)
		fmt.Fprintf(w, "Return:        %8.2f%%\n", sc.TotalReturnPct)
		fmt.Fprintf(w, "Win Rate:      %8.2f%%\n", sc.WinRatePct)
		fmt.Fprintf(w, "Profit Factor: %8.2f\n", sc.ProfitFactor)
		fmt.Fprintf(w, "Max Drawdown:  %8.2f%%\n", sc.MaxDrawdownPct)
		fmt.Fprintf(w, "Trades:        %8d\n", sc.Trades)
		for _, name := range r.Names {
			fmt.Fprintf(w, "  %-24s %v\n", name, b.Params[name])
		}
	}
	fmt.Fprintln(w)
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
