package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"charterhub/berth/pkg/cli"
	"charterhub/berth/pkg/config"
)

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configFile string
	format     string

	// loaded is the configuration read by the running subcommand.
	loaded *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "berth",
		Short: "Berth - slot reservation service",
		Long: `Berth serves an HTTP API for capacity-bounded time slots.

Reservations are committed with a compare-and-swap on the slot's booked
count, so concurrent bookings never exceed capacity. Every API route is
rate limited per caller with configurable fixed windows, and storage
sessions are drawn from a bounded connection pool.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, _, err := opts.formatter()
			return err
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "berth.yaml", "config file path")
	cmd.PersistentFlags().StringVarP(&opts.format, "format", "o", "text", "output format: text, json, csv")

	cmd.AddCommand(
		newRunCmd(opts),
		newValidateCmd(opts),
		newSlotsCmd(opts),
		newBenchCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the command line and returns the process exit status.
func Execute(args []string) int {
	return execute(context.Background(), args, os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return cli.ExitCode(err)
	}
	return cli.ExitOK
}

// loadConfig reads the --config file with environment overrides applied.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(o.configFile)
	if err != nil {
		return nil, cli.WrapConfigError(o.configFile, err)
	}
	return cfg, nil
}

// formatter returns the --format formatter and whether it is plain text.
func (o *rootOptions) formatter() (f cli.Formatter, text bool, err error) {
	format, err := cli.ParseFormat(o.format)
	if err != nil {
		return nil, false, cli.NewConfigError("--format", err.Error())
	}
	f, err = cli.NewFormatter(string(format))
	if err != nil {
		return nil, false, cli.NewConfigError("--format", err.Error())
	}
	return f, format == cli.FormatText, nil
}
