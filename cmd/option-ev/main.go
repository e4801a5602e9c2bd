package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/contactkeval/option-ev/internal/config"
	"github.com/contactkeval/option-ev/internal/data"
	"github.com/contactkeval/option-ev/internal/engine"
	"github.com/contactkeval/option-ev/internal/logger"
	"github.com/contactkeval/option-ev/internal/report"
	"github.com/contactkeval/option-ev/internal/server"
)

var (
	configPath string
	envFile    string
	verbosity  int
	providers  []string
)

var rootCmd = &cobra.Command{
	Use:   "option-ev",
	Short: "Expected value and expected return of option spreads",
	Long: "option-ev values an option spread at one or more future dates under a " +
		"risk-neutral log-normal model and reports EV, ER and the P/L curve.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbosity >= 0 {
			logger.SetVerbosity(verbosity)
		}
		return config.LoadEnv(envFile)
	},
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Compute EV and ER for every eval date and write reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		noReport, _ := cmd.Flags().GetBool("no-report")

		cfg, res, err := run(cmd.Context())
		if err != nil {
			return err
		}
		report.PrintResults(cmd.OutOrStdout(), res)
		if noReport {
			return nil
		}
		return report.WriteAll(res, cfg.ReportDir)
	},
}

var curveCmd = &cobra.Command{
	Use:   "curve",
	Short: "Print the P/L curve at the first eval date",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, res, err := run(cmd.Context())
		if err != nil {
			return err
		}
		report.PrintCurve(cmd.OutOrStdout(), res)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve evaluations over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		dataDir, _ := cmd.Flags().GetString("data-dir")

		settings := data.SettingsFromEnv()
		if dataDir != "" {
			settings.CSVDir = dataDir
		}
		prov, err := data.NewChain(providers, settings)
		if err != nil {
			return err
		}
		logger.Infof("event=providers chain=%v", data.ChainNames(prov))

		return server.New(prov, settings, timeout).ListenAndServe(cmd.Context(), addr)
	},
}

// run loads the config, builds the provider chain and evaluates.
func run(ctx context.Context) (*config.Config, *engine.Result, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if verbosity < 0 {
		logger.SetVerbosity(cfg.Verbosity)
	}

	settings := data.SettingsFromEnv()
	if cfg.DataDir != "" {
		settings.CSVDir = cfg.DataDir
	}
	names := cfg.Providers
	if len(providers) > 0 {
		names = providers
	}
	prov, err := data.NewChain(names, settings)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	start := time.Now()
	res, err := engine.NewEngine(cfg, prov).Run(ctx)
	if err != nil {
		return nil, nil, err
	}
	logger.Infof("event=done underlying=%s dates=%d elapsed=%s", cfg.Underlying, len(res.Results), time.Since(start))
	return cfg, res, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "option-ev.yaml", "Path to the YAML or JSON request file.")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "File of KEY=VALUE vendor credentials, loaded if present.")
	rootCmd.PersistentFlags().IntVarP(&verbosity, "verbosity", "v", -1, "0=errors, 1=info, 2=debug, 3=trace. Defaults to the config value.")
	rootCmd.PersistentFlags().StringSliceVar(&providers, "providers", nil, "Data provider chain, first asked first, e.g. 'orats,polygon,fred'.")

	evaluateCmd.Flags().Bool("no-report", false, "Print the table only; do not write report files.")

	serveCmd.Flags().String("addr", ":8080", "Listen address.")
	serveCmd.Flags().Duration("timeout", 30*time.Second, "Per-request evaluation timeout.")
	serveCmd.Flags().String("data-dir", "", "Directory for the csv provider.")

	rootCmd.AddCommand(evaluateCmd, curveCmd, serveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Errorf("event=command_failed err=%v", err)
		stop()
		os.Exit(1)
	}
}
