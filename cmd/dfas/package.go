package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dfas-hq/dfas/pkg/cli"
	"dfas-hq/dfas/pkg/packaging"
)

var packageFlags struct {
	caseID string
	upload bool
}

var packageCmd = &cobra.Command{
	Use:   "package",
	Short: "Seal a case into a hash-anchored package",
	Long: `Seal a case into <case>_package_NNN.zip in packaging.output_dir.

The archive holds the manifest, CSV and JSON exports, the chain of custody
and the original content of every record. Its SHA-256 is recorded in a
package_created custody entry and the case is sealed: later collections
into it fail with exit status 3.

With --upload the sealed archive is copied to the configured S3 bucket and
a package_uploaded entry is recorded.

Examples:
  dfas package --case 2026-017
  dfas package --case 2026-017 --upload -f json`,
	RunE: runPackage,
}

func init() {
	rootCmd.AddCommand(packageCmd)

	packageCmd.Flags().StringVar(&packageFlags.caseID, "case", "", "case id (overrides case.id)")
	packageCmd.Flags().BoolVar(&packageFlags.upload, "upload", false, "upload the sealed package to packaging.upload.s3")
}

// packageResult is the printable outcome of the package command.
type packageResult struct {
	*packaging.Package
	Location string `json:"location,omitempty"`
}

func (r packageResult) Table() cli.Table {
	t := cli.Table{
		Headers: []string{"FIELD", "VALUE"},
		Rows: [][]string{
			{"case", r.CaseID},
			{"number", fmt.Sprintf("%03d", r.Number)},
			{"path", r.Path},
			{"sha256", r.SHA256},
			{"size", fmt.Sprint(r.Size)},
			{"records", fmt.Sprint(r.Records)},
			{"custody sequence", fmt.Sprint(r.Sequence)},
		},
	}
	if r.Location != "" {
		t.Rows = append(t.Rows, []string{"uploaded", r.Location})
	}
	return t
}

func runPackage(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	caseID, err := a.caseID(packageFlags.caseID)
	if err != nil {
		return err
	}
	p, err := a.packager(ctx, packageFlags.upload)
	if err != nil {
		return err
	}

	pkg, err := p.CreatePackage(ctx, caseID)
	if err != nil {
		return cli.NewCommandError("package", err)
	}
	result := packageResult{Package: pkg}

	if packageFlags.upload {
		location, err := p.Upload(ctx, pkg)
		if err != nil {
			// The package is sealed either way; report it before failing.
			if perr := printResult(cmd, result); perr != nil {
				return perr
			}
			return cli.NewCommandError("upload", err)
		}
		result.Location = location
	}

	return printResult(cmd, result)
}
