package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"edge-lab/internal/domain"
	"edge-lab/internal/engine"
	"edge-lab/internal/generator"
	"edge-lab/internal/marketdata"
	"edge-lab/internal/orchestrator"
)

type barFlags struct {
	instrument string
	csvPath    string
	synthetic  bool
	start      string
	days       int
	price      float64
	tick       float64
	volatility float64
	seed       int64
}

// register adds the bar flags. The run command owns --instrument through
// --instruments, so only import-bars takes the source flags.
func (f *barFlags) register(cmd *cobra.Command, withSource bool) {
	if withSource {
		cmd.Flags().StringVar(&f.instrument, "instrument", "NQ", "instrument symbol")
		cmd.Flags().StringVar(&f.csvPath, "csv", "", "bar CSV file (timestamp,open,high,low,close,volume)")
		cmd.Flags().BoolVar(&f.synthetic, "synthetic", false, "generate a random-walk series instead of reading a file")
	}
	cmd.Flags().StringVar(&f.start, "from", "2024-01-02", "first synthetic calendar day, YYYY-MM-DD")
	cmd.Flags().IntVar(&f.days, "days", 120, "synthetic weekday sessions")
	cmd.Flags().Float64Var(&f.price, "price", 17000, "synthetic start price")
	cmd.Flags().Float64Var(&f.tick, "tick", 0.25, "synthetic tick size")
	cmd.Flags().Float64Var(&f.volatility, "volatility", 0, "synthetic per-bar volatility in ticks (0 = default)")
	cmd.Flags().Int64Var(&f.seed, "seed", 1, "synthetic seed")
}

// load reads or generates the bars. Synthetic series cover the widest
// session among windows.
func (f *barFlags) load(windows []domain.TimeWindow) ([]*domain.Bar, error) {
	if f.csvPath != "" {
		if f.synthetic {
			return nil, errors.New("--csv and --synthetic are mutually exclusive")
		}
		file, err := os.Open(f.csvPath)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		return marketdata.ReadBars(file, f.instrument)
	}
	if !f.synthetic {
		return nil, errors.New("one of --csv or --synthetic is required")
	}
	if len(windows) == 0 {
		return nil, errors.New("no session windows")
	}
	widest := windows[0]
	for _, w := range windows[1:] {
		if w.SessionMinutes > widest.SessionMinutes {
			widest = w
		}
	}
	return marketdata.Synthetic(marketdata.SyntheticOptions{
		Instrument: f.instrument,
		Window:     widest,
		StartDate:  f.start,
		Days:       f.days,
		StartPrice: f.price,
		TickSize:   f.tick,
		Volatility: f.volatility,
		Seed:       f.seed,
	})
}

func newImportBarsCmd(get appFunc) *cobra.Command {
	var f barFlags
	cmd := &cobra.Command{
		Use:   "import-bars",
		Short: "Store minute bars and precompute session features for the default windows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			windows := generator.DefaultSpace().Windows
			bars, err := f.load(windows)
			if err != nil {
				return err
			}
			sum, err := get().engine.ImportBars(cmd.Context(), bars, windows)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sum)
		},
	}
	f.register(cmd, true)
	return cmd
}

// runOutput is the JSON shape of a full pipeline pass.
type runOutput struct {
	Import   *engine.ImportSummary   `json:"import,omitempty"`
	Generate generateOutput          `json:"generate"`
	Validate *engine.ValidateSummary `json:"validate"`
	Approve  *engine.ApproveSummary  `json:"approve,omitempty"`
	Stats    *engine.Stats           `json:"stats,omitempty"`
}

func newRunOutput(res *orchestrator.RunResult) runOutput {
	out := runOutput{
		Import:   res.Import,
		Validate: res.Validate,
		Approve:  res.Approve,
		Stats:    res.Stats,
	}
	if res.Generate != nil {
		out.Generate = newGenerateOutput(res.Generate)
	}
	return out
}

func newRunCmd(get appFunc) *cobra.Command {
	var (
		bars    barFlags
		gen     generateFlags
		val     validateFlags
		minTier string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Import synthetic bars, generate, validate and approve in one process",
		Long: `run executes the whole discovery pipeline in one invocation. It is the way to
exercise the memory backend, whose state does not outlive the process.
Every instrument gets its own synthetic series; bars already stored are kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			tier := domain.ConfidenceTier(minTier)
			if minTier != "" && !tier.IsValid() {
				return fmt.Errorf("unknown tier %q", minTier)
			}

			plan := orchestrator.Plan{
				Generate: gen.request(),
				Validate: val.request(),
				MinTier:  tier,
			}
			bars.synthetic = true
			for i, inst := range plan.Generate.Instruments {
				b := bars
				b.instrument = inst
				b.seed = bars.seed + int64(i)
				series, err := b.load(plan.Generate.Space.Windows)
				if err != nil {
					return err
				}
				plan.Bars = append(plan.Bars, series...)
			}

			o := orchestrator.New(orchestrator.Options{Engine: a.engine, Logger: a.logger})
			res, err := o.Run(cmd.Context(), plan)
			if res != nil {
				if perr := printJSON(cmd.OutOrStdout(), newRunOutput(res)); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	bars.register(cmd, false)
	gen.register(cmd)
	val.register(cmd)
	cmd.Flags().StringVar(&minTier, "min-tier", "", "minimum tier (default: manifest.min_tier)")
	return cmd
}
