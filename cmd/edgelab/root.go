package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// newRootCmd builds the command tree. Subcommands that need the engine get
// it from the app opened in PersistentPreRunE.
func newRootCmd() *cobra.Command {
	var (
		configPath string
		a          *app
		stop       context.CancelFunc
	)

	root := &cobra.Command{
		Use:   "edgelab",
		Short: "Generate, validate and promote opening-range trading edges",
		Long: `edgelab searches a parameter space of opening-range rules, attacks each
candidate with cost, robustness and regime tests, and promotes the survivors
into a versioned edge manifest.

Configuration comes from --config (YAML) and EDGELAB_* environment variables.
With the default memory backend state lives only for one invocation; use
"edgelab run" there, or configure the postgres backend.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			stop = cancel
			cmd.SetContext(ctx)

			var err error
			a, err = newApp(ctx, configPath)
			return err
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if stop != nil {
				stop()
			}
			if a == nil {
				return nil
			}
			return a.Close()
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (YAML)")

	get := func() *app { return a }
	root.AddCommand(
		newGenerateCmd(get),
		newValidateCmd(get),
		newApproveCmd(get),
		newSyncCmd(get),
		newSuspendCmd(get),
		newRetryCmd(get),
		newStatsCmd(get),
		newExportCmd(get),
		newImportBarsCmd(get),
		newRunCmd(get),
		newVerifyCmd(get),
		newReportCmd(get),
	)
	return root
}
