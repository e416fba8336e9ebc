/*
Package cli provides command-line helpers shared by the berth commands.

Output Formatting:

Command results can be rendered as text, JSON or CSV. Values that implement
Tabular are rendered as aligned columns in text mode and as rows in CSV
mode:

	formatter, err := cli.NewFormatter(cli.FormatJSON)
	if err != nil {
		return err
	}
	if err := formatter.FormatTo(cmd.OutOrStdout(), result); err != nil {
		return err
	}

Progress Reporting:

Concurrent workers report each finished item; the reporter counts failures
separately:

	progress := cli.NewProgressReporter(os.Stderr)
	progress.Start(total)
	// in each worker
	progress.Increment(err == nil)
	// after all workers return
	progress.Finish()

Signal Handling:

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()
	// ctx is cancelled on SIGINT or SIGTERM

Exit Codes:

ExitCode maps a command error to the process exit status: configuration
problems exit with 2, other failures with 1.
*/
package cli
