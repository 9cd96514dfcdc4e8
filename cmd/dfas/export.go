package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dfas-hq/dfas/pkg/cli"
	"dfas-hq/dfas/pkg/packaging"
)

var exportFlags struct {
	caseID string
	format string
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write CSV or JSON exports of a case",
	Long: `Write the records of a case to packaging.output_dir as CSV, JSON or both.

Records are sorted by ID. Every export is recorded in the chain of custody
with its SHA-256 as export_created. Exporting does not seal the case.

Examples:
  dfas export --case 2026-017
  dfas export --case 2026-017 --type csv`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVar(&exportFlags.caseID, "case", "", "case id (overrides case.id)")
	exportCmd.Flags().StringVar(&exportFlags.format, "type", "both", "export type: csv, json, both")
}

type exportList []*packaging.ExportFile

func (l exportList) Table() cli.Table {
	t := cli.Table{Headers: []string{"FORMAT", "RECORDS", "SHA256", "SEQUENCE", "PATH"}}
	for _, f := range l {
		t.Rows = append(t.Rows, []string{f.Format, fmt.Sprint(f.Records), f.SHA256, fmt.Sprint(f.Sequence), f.Path})
	}
	return t
}

func runExport(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)

	var csv, json bool
	switch exportFlags.format {
	case "csv":
		csv = true
	case "json":
		json = true
	case "both", "":
		csv, json = true, true
	default:
		return cli.NewConfigError("--type", fmt.Sprintf("unknown export type %q (use csv, json or both)", exportFlags.format))
	}

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	caseID, err := a.caseID(exportFlags.caseID)
	if err != nil {
		return err
	}
	p, err := a.packager(ctx, false)
	if err != nil {
		return err
	}

	var files exportList
	if csv {
		f, err := p.ExportCSV(ctx, caseID)
		if err != nil {
			return cli.NewCommandError("export", err)
		}
		files = append(files, f)
	}
	if json {
		f, err := p.ExportJSON(ctx, caseID)
		if err != nil {
			return cli.NewCommandError("export", err)
		}
		files = append(files, f)
	}

	return printResult(cmd, files)
}
