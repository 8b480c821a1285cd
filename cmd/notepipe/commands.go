package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tigerroll/notepipe/internal/app"
	config "github.com/tigerroll/notepipe/pkg/batch/core/config"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/exception"
)

// Exit codes.
const (
	exitFailure     = 1
	exitConfig      = 2
	exitInterrupted = 130
)

// exitCode maps an error returned by a command to the process exit status.
func exitCode(err error) int {
	switch {
	case exception.IsCancellation(err):
		return exitInterrupted
	case exception.IsConfigurationError(err):
		return exitConfig
	default:
		return exitFailure
	}
}

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configFile  string
	envFile     string
	runName     string
	dbProviders string
}

// options builds app.Options from the flags, reading --config when given.
func (f *rootFlags) options(defaultConfig []byte) (app.Options, error) {
	cfg := defaultConfig
	if f.configFile != "" {
		data, err := os.ReadFile(f.configFile)
		if err != nil {
			return app.Options{}, exception.NewConfigurationError("cli", fmt.Sprintf("cannot read config file '%s'", f.configFile), err)
		}
		cfg = data
	}
	return app.Options{
		ConfigBytes: config.EmbeddedConfig(cfg),
		EnvFilePath: f.envFile,
		RunName:     f.runName,
		DBProviders: f.dbProviders,
	}, nil
}

func newRootCmd(defaultConfig []byte) *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "notepipe",
		Short:         "Resumable, checkpointed note-processing pipeline",
		Long:          `Run the raw_export, enrichment, clustering and final_merge stages over exported notes, resuming from the checkpoint of the run.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "load configuration from this YAML file instead of the built-in defaults")
	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", os.Getenv("ENV_FILE_PATH"), "load environment variables from this .env file")
	cmd.PersistentFlags().StringVar(&flags.runName, "run", "", "run name (overrides notepipe.pipeline.run_name)")
	cmd.PersistentFlags().StringVar(&flags.dbProviders, "db-providers", os.Getenv("DB_ADAPTERS"), "comma-separated database providers to register (default "+app.DefaultDBProviders+")")

	cmd.AddCommand(newRunCmd(flags, defaultConfig))
	cmd.AddCommand(newStatusCmd(flags, defaultConfig))
	cmd.AddCommand(newMigrateCmd(flags, defaultConfig))
	return cmd
}

func newRunCmd(flags *rootFlags, defaultConfig []byte) *cobra.Command {
	var newRun bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "run every unfinished stage of the pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := flags.options(defaultConfig)
			if err != nil {
				return err
			}
			o.NewRun = newRun

			result, err := app.Run(cmd.Context(), o)
			if result != nil {
				printRunResult(cmd.OutOrStdout(), result)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&newRun, "new-run", false, "start a new run under a generated run name")
	return cmd
}

func newStatusCmd(flags *rootFlags, defaultConfig []byte) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "show the recorded progress of a run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := flags.options(defaultConfig)
			if err != nil {
				return err
			}
			report, err := app.Status(cmd.Context(), o)
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), report)
			return nil
		},
	}
}

func newMigrateCmd(flags *rootFlags, defaultConfig []byte) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "apply or roll back the SQL checkpoint schema",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(app.MigrateUp), string(app.MigrateDown)},
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := flags.options(defaultConfig)
			if err != nil {
				return err
			}
			direction := app.MigrateUp
			if len(args) == 1 {
				direction = app.MigrateDirection(args[0])
			}
			version, ok, err := app.Migrate(cmd.Context(), o, direction)
			if err != nil {
				return err
			}
			if ok {
				fmt.Fprintf(cmd.OutOrStdout(), "checkpoint schema at version %d\n", version)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "checkpoint schema has no migrations applied")
			}
			return nil
		},
	}
	return cmd
}

func printRunResult(w io.Writer, result *app.Result) {
	fmt.Fprintf(w, "run %s: %d notes\n", result.RunName, result.TotalItems)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tPROCESSED\tFAILED\tNOTE")
	for _, r := range result.Reports {
		note := ""
		if r.Skipped {
			note = "already completed"
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", r.Stage, r.Processed, len(r.Failures), note)
	}
	_ = tw.Flush()
	for _, r := range result.Reports {
		for _, f := range r.Failures {
			fmt.Fprintf(w, "  %s item %s: %s\n", r.Stage, f.ID, f.Message)
		}
	}
	if result.Exported > 0 {
		fmt.Fprintf(w, "exported %d merged notes\n", result.Exported)
	}
}

func printStatus(w io.Writer, report *app.StatusReport) {
	if !report.Found {
		fmt.Fprintf(w, "run %s: no checkpoint\n", report.RunName)
		return
	}
	fmt.Fprintf(w, "run %s: %d notes, last updated %s\n", report.RunName, report.TotalItems, report.LastUpdated)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tSTATUS\tPROCESSED\tFAILED\tPERCENT\tERROR")
	for _, line := range report.Stages {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.1f%%\t%s\n", line.Stage, line.Status, line.Processed, line.Failed, line.PercentComplete, line.Error)
	}
	_ = tw.Flush()
}
