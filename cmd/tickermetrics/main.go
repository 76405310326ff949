// tickermetrics is a command-line client for the tickermetrics server.
//
// It requests metrics in poll mode and retries at the configured interval
// until the server has computed them.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bobmcallan/tickermetrics/internal/client/poller"
	"github.com/bobmcallan/tickermetrics/internal/common"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var cfg *common.Config

var rootCmd = &cobra.Command{
	Use:           "tickermetrics",
	Short:         "Fetch derived valuation metrics from a tickermetrics server",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configFile, _ := cmd.Flags().GetString("config")
		if configFile == "" {
			configFile = os.Getenv("TICKERMETRICS_CONFIG")
		}
		var err error
		cfg, err = common.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path")
	rootCmd.PersistentFlags().String("server", "", "server base URL (default: from config)")
	rootCmd.PersistentFlags().String("token", "", "bearer token for authenticated servers")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(metricsCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tickermetrics %s\n", common.GetFullVersion())
	},
}

var metricsCmd = &cobra.Command{
	Use:   "metrics [ticker]",
	Short: "Poll the server until metrics for a ticker are available",
	Long: `Request metrics in poll mode. When the server has not computed them yet
the request is retried every interval until it succeeds or the attempt limit
is reached.

Examples:
  tickermetrics metrics AAPL
  tickermetrics metrics MSFT --interval 1s --max-attempts 30`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetDuration("interval")
		maxAttempts, _ := cmd.Flags().GetInt("max-attempts")
		verbose, _ := cmd.Flags().GetBool("verbose")
		token, _ := cmd.Flags().GetString("token")
		if token == "" {
			token = os.Getenv("TICKERMETRICS_TOKEN")
		}

		if interval <= 0 {
			interval = cfg.Polling.GetInterval()
		}
		if maxAttempts <= 0 {
			maxAttempts = cfg.Polling.MaxAttempts
		}

		logLevel := "warn"
		if verbose {
			logLevel = "debug"
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fetcher := poller.NewHTTPFetcher(serverURL(cmd), poller.WithBearerToken(token))
		metrics, err := poller.Poll(ctx, fetcher, args[0], poller.Options{
			Interval:    interval,
			MaxAttempts: maxAttempts,
			Logger:      common.NewLogger(logLevel),
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(metrics)
	},
}

func init() {
	metricsCmd.Flags().Duration("interval", 0, "retry interval (default: polling.interval from config)")
	metricsCmd.Flags().Int("max-attempts", 0, "maximum attempts (default: polling.max_attempts from config)")
	metricsCmd.Flags().BoolP("verbose", "v", false, "log each attempt")
}

func serverURL(cmd *cobra.Command) string {
	if s, _ := cmd.Flags().GetString("server"); s != "" {
		return s
	}
	if s := os.Getenv("TICKERMETRICS_SERVER_URL"); s != "" {
		return s
	}
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, cfg.Server.Port)
}

