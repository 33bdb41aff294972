package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"edge-lab/internal/domain"
	"edge-lab/internal/engine"
	"edge-lab/internal/generator"
	"edge-lab/internal/reporting"
	"edge-lab/internal/verification"
)

// appFunc returns the app opened for the running command.
type appFunc func() *app

// generateOutput is the JSON shape of a generation run.
type generateOutput struct {
	RunID       string   `json:"run_id"`
	Mode        string   `json:"mode"`
	Instruments []string `json:"instruments"`
	Requested   int      `json:"requested"`
	Generated   int      `json:"generated"`
	Accepted    int      `json:"accepted"`
	Duplicates  int      `json:"duplicates"`
	Candidates  []string `json:"candidates"`
}

func newGenerateOutput(res *generator.Result) generateOutput {
	return generateOutput{
		RunID:       res.Run.RunID,
		Mode:        res.Run.Mode,
		Instruments: res.Run.Instruments,
		Requested:   res.Run.Requested,
		Generated:   res.Run.Generated,
		Accepted:    res.Run.Accepted,
		Duplicates:  res.Run.Duplicates,
		Candidates:  res.Accepted,
	}
}

type generateFlags struct {
	mode        string
	count       int
	instruments []string
	seed        int64
}

func (f *generateFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.mode, "mode", domain.GenerationModeSample, "enumerate or sample")
	cmd.Flags().IntVar(&f.count, "count", 50, "candidates to draw")
	cmd.Flags().StringSliceVar(&f.instruments, "instruments", []string{"NQ"}, "instruments to generate for")
	cmd.Flags().Int64Var(&f.seed, "seed", 1, "sampling seed")
}

func (f *generateFlags) request() generator.Request {
	return generator.Request{
		Mode:        f.mode,
		Count:       f.count,
		Instruments: f.instruments,
		Space:       generator.DefaultSpace(),
		Seed:        f.seed,
	}
}

func newGenerateCmd(get appFunc) *cobra.Command {
	var f generateFlags
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Draw candidates from the default parameter space",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := get().engine.Generate(cmd.Context(), f.request())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), newGenerateOutput(res))
		},
	}
	f.register(cmd)
	return cmd
}

type validateFlags struct {
	limit      int
	start, end string
}

func (f *validateFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.limit, "limit", 0, "maximum candidates (0 = all pending)")
	cmd.Flags().StringVar(&f.start, "start", "", "first session date, YYYY-MM-DD")
	cmd.Flags().StringVar(&f.end, "end", "", "last session date, YYYY-MM-DD")
}

func (f *validateFlags) request() engine.ValidateRequest {
	return engine.ValidateRequest{Limit: f.limit, StartDate: f.start, EndDate: f.end}
}

func newValidateCmd(get appFunc) *cobra.Command {
	var f validateFlags
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run the validation battery over pending candidates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sum, err := get().engine.Validate(cmd.Context(), f.request())
			if sum != nil {
				if perr := printJSON(cmd.OutOrStdout(), sum); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	f.register(cmd)
	return cmd
}

func newApproveCmd(get appFunc) *cobra.Command {
	var minTier string
	cmd := &cobra.Command{
		Use:   "approve",
		Short: "Promote survivors at or above a confidence tier into the manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tier := domain.ConfidenceTier(minTier)
			if minTier != "" && !tier.IsValid() {
				return fmt.Errorf("unknown tier %q", minTier)
			}
			sum, err := get().engine.Approve(cmd.Context(), tier)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sum)
		},
	}
	cmd.Flags().StringVar(&minTier, "min-tier", "", "minimum tier (default: manifest.min_tier)")
	return cmd
}

func newSyncCmd(get appFunc) *cobra.Command {
	var consumer string
	cmd := &cobra.Command{
		Use:   "sync <param-hash>",
		Short: "Record that a consumer ingested a manifest entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := get().engine.Sync(cmd.Context(), args[0], consumer)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&consumer, "consumer", "", "consumer name")
	_ = cmd.MarkFlagRequired("consumer")
	return cmd
}

func newSuspendCmd(get appFunc) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "suspend <param-hash>",
		Short: "Retire an approved or active edge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := get().engine.Suspend(cmd.Context(), args[0], reason); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{"suspended": args[0], "reason": reason})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "suspended by operator", "reason recorded in the lifecycle")
	return cmd
}

func newRetryCmd(get appFunc) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "retry <candidate-id>",
		Short: "Create the next revision of a failed or suspended candidate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := get().engine.Retry(cmd.Context(), args[0], reason)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"retried":      args[0],
				"candidate_id": spec.ID(),
				"revision":     spec.Revision,
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded in the lifecycle")
	return cmd
}

func newStatsCmd(get appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count candidates per stage and manifest entries per status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := get().engine.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}
}

func newExportCmd(get appFunc) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the manifest as the consumer YAML document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			doc, err := get().engine.Export(cmd.Context())
			if err != nil {
				return err
			}
			if out == "" {
				_, err = cmd.OutOrStdout().Write(doc)
				return err
			}
			return os.WriteFile(out, doc, 0o644)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

func newVerifyCmd(get appFunc) *cobra.Command {
	var (
		runID string
		rng   validateFlags
	)
	cmd := &cobra.Command{
		Use:   "verify <candidate-id>",
		Short: "Replay a stored validation run and compare its results",
		Long: `verify re-runs the validation battery for one stored run with the run's id
and clock, then compares every stored scenario result and the verdict.
Pass the same --start/--end the run was validated over.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := get().engine.Verify(cmd.Context(), verification.Request{
				CandidateID: args[0],
				RunID:       runID,
				StartDate:   rng.start,
				EndDate:     rng.end,
			})
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), rep); err != nil {
				return err
			}
			if !rep.Match {
				return errors.New("replay diverged from stored results")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "validation run id (default latest)")
	cmd.Flags().StringVar(&rng.start, "start", "", "first session date, YYYY-MM-DD")
	cmd.Flags().StringVar(&rng.end, "end", "", "last session date, YYYY-MM-DD")
	return cmd
}

func newReportCmd(get appFunc) *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render the validation report as Markdown or CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := get().engine.Report(cmd.Context())
			if err != nil {
				return err
			}
			var doc string
			switch format {
			case "md", "markdown":
				doc = reporting.RenderMarkdown(r)
			case "csv":
				doc = reporting.RenderCSV(r.Candidates)
			default:
				return fmt.Errorf("unknown format %q (md or csv)", format)
			}
			if out == "" {
				_, err = io.WriteString(cmd.OutOrStdout(), doc)
				return err
			}
			return os.WriteFile(out, []byte(doc), 0o644)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "md", "md or csv")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}
