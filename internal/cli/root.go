package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"sol-fee-audit/internal/app"
	"sol-fee-audit/internal/config"
	"sol-fee-audit/internal/logging"
)

// Exit codes returned by the binary.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitInput       = 2
	ExitInterrupted = 130
)

var (
	cfgFile   string
	logLevel  string
	appHandle *app.App

	format      string
	csvPath     string
	pngPath     string
	metricsFile string
	workers     int
	pageSize    int
	progress    bool
)

var rootCmd = &cobra.Command{
	Use:   "feeaudit <wallet_address> <hours_to_look_back> [rpc_endpoint]",
	Short: "Report the fees a Solana wallet paid over a lookback window",
	Long: `feeaudit walks a wallet's signature history back to now minus the given
number of hours, fetches every transaction the wallet paid for and prints the
total, count, average, min and max fee with the success rate.

The endpoint defaults to rpc.endpoint (FEEAUDIT_RPC_ENDPOINT) and may be
overridden by the optional third argument.`,
	Args:          parseArgsValidator,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil {
			return nil
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}

		logger := logging.NewLogger(cfg.Logging)
		appHandle = app.NewApp(cfg, logger)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := parseArgs(args)
		if err != nil {
			return err
		}

		a := getApp()
		if err := applyFlags(cmd, a.Config); err != nil {
			return err
		}
		return a.Analyze(cmd.Context(), opts)
	},
}

// Execute runs the root command and exits with the code matching its error.
func Execute() {
	err := rootCmd.ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(ExitCode(err))
}

// ExitCode maps a command error onto the process exit status.
func ExitCode(err error) int {
	var inputErr *app.InputError
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &inputErr):
		return ExitInput
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	default:
		return ExitFailure
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")

	flags := rootCmd.Flags()
	flags.StringVar(&format, "format", "", "Report format: text or json")
	flags.StringVar(&csvPath, "csv", "", "Write per-transaction rows and the summary to this CSV file")
	flags.StringVar(&pngPath, "png", "", "Write an hourly fee chart to this PNG file")
	flags.StringVar(&metricsFile, "metrics-file", "", "Write Prometheus textfile metrics to this path")
	flags.IntVar(&workers, "workers", 0, "Concurrent transaction fetches per page")
	flags.IntVar(&pageSize, "page-size", 0, "Signatures requested per page (1-1000)")
	flags.BoolVar(&progress, "progress", false, "Show a progress bar on stderr")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &app.InputError{Field: "flags", Err: err}
	})

	rootCmd.AddCommand(versionCmd)
}

func parseArgsValidator(cmd *cobra.Command, args []string) error {
	_, err := parseArgs(args)
	return err
}

// parseArgs turns the positional arguments into analysis options.
func parseArgs(args []string) (app.AnalyzeOptions, error) {
	if len(args) < 2 || len(args) > 3 {
		return app.AnalyzeOptions{}, &app.InputError{
			Field: "arguments",
			Err:   fmt.Errorf("expected <wallet_address> <hours_to_look_back> [rpc_endpoint], got %d argument(s)", len(args)),
		}
	}

	hours, err := strconv.Atoi(args[1])
	if err != nil {
		return app.AnalyzeOptions{}, &app.InputError{Field: "hours_to_look_back", Err: fmt.Errorf("%q is not an integer", args[1])}
	}

	opts := app.AnalyzeOptions{Wallet: args[0], Hours: hours}
	if len(args) == 3 {
		opts.Endpoint = args[2]
	}
	if err := opts.Validate(); err != nil {
		return app.AnalyzeOptions{}, err
	}
	return opts, nil
}

// applyFlags layers explicitly set flags over the loaded configuration.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("format") {
		cfg.Output.Format = format
	}
	if flags.Changed("csv") {
		cfg.Output.CSVPath = csvPath
	}
	if flags.Changed("png") {
		cfg.Output.PNGPath = pngPath
	}
	if flags.Changed("metrics-file") {
		cfg.Metrics.TextfilePath = metricsFile
	}
	if flags.Changed("workers") {
		cfg.Pipeline.Workers = workers
	}
	if flags.Changed("page-size") {
		cfg.RPC.PageSize = pageSize
	}
	if flags.Changed("progress") {
		cfg.Output.Progress = progress
	}
	if err := cfg.Validate(); err != nil {
		return &app.InputError{Field: "flags", Err: err}
	}
	return nil
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}
