/*
Package cli provides command-line helpers used by the dfas command.

Output Formatting:

Results are printed as aligned text, JSON or CSV. Types that implement
Tabular can be printed in every format:

	formatter := cli.NewFormatter(cli.FormatCSV)
	if err := formatter.FormatTo(os.Stdout, records); err != nil {
		return err
	}

Progress Reporting:

Progress implements pipeline.Metrics and renders running counts while a
collection is in flight:

	progress := cli.NewProgress(os.Stderr, 200*time.Millisecond)
	defer progress.Finish()

Signal Handling:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()

Exit Codes:

ExitCode maps command errors to process exit codes: 2 for configuration
errors, 3 when a case is sealed, 4 when a command completed with problems
and 130 when interrupted.
*/
package cli
