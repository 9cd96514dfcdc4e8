package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dfas-hq/dfas/pkg/cli"
)

var (
	// Global flags
	cfgFile      string
	verbose      bool
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "dfas",
	Short: "Digital forensics evidence collection and sealed packaging",
	Long: `dfas collects digital evidence from a filesystem with a verifiable
identity for every file, records each action in an append-only chain of
custody and seals cases into hash-anchored packages.

Pipeline:
  collect  - discover files under the scan roots, hash and record them
  package  - seal a case into <case>_package_NNN.zip
  verify   - re-hash sources or a package against the custody log

Configuration is read from --config (YAML) and DFAS_* environment
variables. Without a file, defaults and the environment are used.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with a code derived from the
// returned error.
func Execute() {
	ctx, stop := cli.SetupSignalHandler(context.Background())
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.ExitCode(err))
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: built-in defaults)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "text", "output format: text, json, csv")
}

// commandContext returns the command's context, or Background when the
// command was invoked directly.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// printResult writes data to the command's output in the selected format.
func printResult(cmd *cobra.Command, data any) error {
	format, err := cli.ParseOutputFormat(outputFormat)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), data)
}
