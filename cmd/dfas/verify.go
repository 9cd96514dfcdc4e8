package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"dfas-hq/dfas/pkg/cli"
	"dfas-hq/dfas/pkg/evidence/verify"
	"dfas-hq/dfas/pkg/packaging"
)

var verifyFlags struct {
	caseID      string
	packagePath string
	schedule    bool
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Re-hash evidence against the chain of custody",
	Long: `Check that collected evidence still matches its recorded digests.

With --case every source file of the case is re-hashed. With --package the
archive digest is matched to its package_created entry and every member is
re-hashed. Each outcome is appended to the chain of custody as
integrity_verified or integrity_failed, and any mismatch exits with status 4.

With --schedule the command runs verify.cases on verify.schedule until
interrupted, serving metrics when telemetry.metrics.listen_address is set.

Examples:
  dfas verify --case 2026-017
  dfas verify --package packages/2026-017_package_001.zip
  dfas verify --schedule`,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().StringVar(&verifyFlags.caseID, "case", "", "case to re-hash (overrides case.id)")
	verifyCmd.Flags().StringVar(&verifyFlags.packagePath, "package", "", "sealed package to verify")
	verifyCmd.Flags().BoolVar(&verifyFlags.schedule, "schedule", false, "verify on verify.schedule until interrupted")
	verifyCmd.MarkFlagsMutuallyExclusive("case", "package", "schedule")
}

type caseVerification struct {
	*verify.Result
}

func (r caseVerification) Table() cli.Table {
	t := cli.Table{Headers: []string{"RECORD", "PATH", "REASON"}}
	for _, f := range r.Failures {
		t.Rows = append(t.Rows, []string{f.RecordID, f.Path, f.Reason})
	}
	t.Rows = append(t.Rows, []string{"", "", fmt.Sprintf("%s: %d/%d verified", r.CaseID, r.Verified, r.Checked)})
	return t
}

type packageVerification struct {
	*packaging.Verification
	OK bool `json:"ok"`
}

func (v packageVerification) Table() cli.Table {
	status := "verified"
	if !v.OK {
		status = "FAILED"
	}
	t := cli.Table{
		Headers: []string{"FIELD", "VALUE"},
		Rows: [][]string{
			{"case", v.CaseID},
			{"path", v.Path},
			{"sha256", v.SHA256},
			{"custody sequence", fmt.Sprint(v.Sequence)},
			{"members", fmt.Sprint(v.Members)},
			{"status", status},
		},
	}
	if len(v.Problems) > 0 {
		t.Rows = append(t.Rows, []string{"problems", strings.Join(v.Problems, "; ")})
	}
	return t
}

func runVerify(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	switch {
	case verifyFlags.packagePath != "":
		p, err := a.packager(ctx, false)
		if err != nil {
			return err
		}
		v, err := p.VerifyPackage(ctx, verifyFlags.packagePath)
		if err != nil {
			return cli.NewCommandError("verify", err)
		}
		if err := printResult(cmd, packageVerification{Verification: v, OK: v.OK()}); err != nil {
			return err
		}
		if !v.OK() {
			return fmt.Errorf("package %s failed verification: %w", v.Path, cli.ErrIncomplete)
		}
		return nil

	case verifyFlags.schedule:
		scheduler := verify.NewScheduler(
			verify.NewVerifier(a.store, a.cfg.Case.AgentID),
			a.cfg.Verify.Schedule,
			a.cfg.Verify.Cases,
		)
		if err := scheduler.Start(ctx); err != nil {
			return cli.NewConfigError("verify.schedule", err.Error())
		}
		a.serveMetrics(ctx)
		if next := scheduler.NextRun(); next != nil {
			a.logger.Info("waiting for scheduled verification", "next_run", next.Format("2006-01-02 15:04:05"))
		}
		<-ctx.Done()
		scheduler.Stop()
		return nil

	default:
		caseID, err := a.caseID(verifyFlags.caseID)
		if err != nil {
			return err
		}
		result, err := verify.NewVerifier(a.store, a.cfg.Case.AgentID).VerifyCase(ctx, caseID)
		if err != nil {
			return cli.NewCommandError("verify", err)
		}
		if err := printResult(cmd, caseVerification{result}); err != nil {
			return err
		}
		if !result.OK() {
			return fmt.Errorf("%d of %d records failed verification: %w", len(result.Failures), result.Checked, cli.ErrIncomplete)
		}
		return nil
	}
}
