package journal

// OptimizationRecord is one ranked optimizer result.
type OptimizationRecord struct {
	RunID        string
	Rank         int
	Variant      int
	Params       string // JSON object of varied parameters
	Trades       int
	ReturnPct    float64
	WinRate      float64
	ProfitFactor float64
	MaxDDPct     float64
	Sharpe       float64
	FinalCapital float64
}
