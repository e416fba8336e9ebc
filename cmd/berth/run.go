package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"charterhub/berth/pkg/cli"
	"charterhub/berth/pkg/config"
	"charterhub/berth/pkg/server"
	"charterhub/berth/pkg/telemetry/logging"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	var flags struct {
		listenAddress string
		logLevel      string
		dryRun        bool
	}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the berth server",
		Long: `Start the berth server with the specified configuration.

The server listens on the configured address until it receives SIGINT or
SIGTERM, then drains in-flight requests for up to server.shutdown_timeout.

Examples:
  # Start with default config
  berth run

  # Start with custom config
  berth run --config /etc/berth/berth.yaml

  # Override listen address
  berth run --listen 0.0.0.0:8080

  # Validate config without starting server
  berth run --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}

			if flags.listenAddress != "" {
				cfg.Server.ListenAddress = flags.listenAddress
			}
			if flags.logLevel != "" {
				cfg.Telemetry.Logging.Level = flags.logLevel
			}
			if err := config.Validate(cfg); err != nil {
				return cli.NewConfigError("flags", err.Error())
			}

			out := cmd.OutOrStdout()
			if flags.dryRun {
				fmt.Fprintln(out, "✓ Configuration valid")
				return nil
			}

			logger, err := logging.New(cfg.Telemetry.Logging, os.Stdout)
			if err != nil {
				return cli.NewConfigError("telemetry.logging", err.Error())
			}
			slog.SetDefault(logger)

			ctx, stop := cli.SignalContext(cmd.Context())
			defer stop()

			app, err := server.NewApp(ctx, cfg, root.configFile, buildInfo(), logger)
			if err != nil {
				return cli.NewCommandError("run", err)
			}
			defer func() {
				if err := app.Close(); err != nil {
					logger.Error("shutdown failed", "error", err)
				}
			}()

			printBanner(cmd, root.configFile, cfg)

			if err := app.Run(ctx); err != nil {
				return cli.NewCommandError("run", err)
			}

			fmt.Fprintln(out, "✓ Server stopped")
			return nil
		},
	}

	cmd.Flags().StringVarP(&flags.listenAddress, "listen", "l", "", "override listen address")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "validate config without starting server")
	return cmd
}

func printBanner(cmd *cobra.Command, path string, cfg *config.Config) {
	out := cmd.ErrOrStderr()
	fmt.Fprintf(out, "Berth v%s\n", Version)
	fmt.Fprintf(out, "✓ Configuration loaded from %s\n", path)
	fmt.Fprintf(out, "✓ Storage: %s (pool %d-%d sessions)\n",
		cfg.Storage.Driver, cfg.Pool.MinConnections, cfg.Pool.MaxConnections)
	fmt.Fprintf(out, "✓ Rate limits: %d endpoints, %s store\n",
		len(cfg.RateLimits.Endpoints), cfg.RateLimits.Store.Backend)
	scheme := "http"
	if cfg.Server.TLS.Enabled {
		scheme = "https"
		fmt.Fprintf(out, "✓ TLS: min version %s, mTLS %t\n", cfg.Server.TLS.MinVersion, cfg.Server.TLS.MTLS.Enabled)
	}
	fmt.Fprintf(out, "✓ Listening on %s\n", cfg.Server.ListenAddress)
	fmt.Fprintf(out, "✓ Readiness endpoint: %s://%s%s\n", scheme, cfg.Server.ListenAddress, cfg.Telemetry.Health.ReadinessPath)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Fprintf(out, "✓ Metrics endpoint: %s://%s%s\n", scheme, cfg.Server.ListenAddress, cfg.Telemetry.Metrics.Path)
	}
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")
}
