package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/user/listing-scraper/pkg/config"
	"github.com/user/listing-scraper/pkg/logger"
)

var (
	v   = viper.New()
	cfg *config.Config
	log *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "scraper",
	Short:         "scraper searches a business directory and saves the listings it finds to CSV.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(v)
		if err != nil {
			return fmt.Errorf("could not load config: %w", err)
		}
		log, err = logger.New(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return fmt.Errorf("could not build logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("log-level", "info", "Log level: debug, info, warn or error.")
	flags.String("log-format", "json", "Log format: json or console.")
	flags.String("driver", config.DriverChromedp, "Browser driver: chromedp or static.")
	flags.Bool("headless", true, "Run Chrome without a window.")
	flags.String("landing-url", "", "Landing page of the directory site.")
	flags.String("results-dir", "", "Directory the CSV files are written to.")

	bind := map[string]string{
		"LOG_LEVEL":   "log-level",
		"LOG_FORMAT":  "log-format",
		"DRIVER":      "driver",
		"HEADLESS":    "headless",
		"LANDING_URL": "landing-url",
		"RESULTS_DIR": "results-dir",
	}
	for key, name := range bind {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
