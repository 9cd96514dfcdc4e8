package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"dfas-hq/dfas/pkg/cli"
	"dfas-hq/dfas/pkg/evidence"
)

var (
	recordsFlags struct {
		caseID string
	}
	custodyFlags struct {
		caseID string
		action string
	}
)

var casesCmd = &cobra.Command{
	Use:   "cases",
	Short: "List known cases",
	RunE:  runCases,
}

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List the evidence records of a case",
	Long: `List the evidence records of a case ordered by record ID.

Examples:
  dfas records --case 2026-017
  dfas records --case 2026-017 -f csv > records.csv`,
	RunE: runRecords,
}

var custodyCmd = &cobra.Command{
	Use:   "custody",
	Short: "Show the chain of custody of a case",
	Long: `Show the custody entries of a case in sequence order.

Examples:
  dfas custody --case 2026-017
  dfas custody --case 2026-017 --action package_created`,
	RunE: runCustody,
}

func init() {
	rootCmd.AddCommand(casesCmd)
	rootCmd.AddCommand(recordsCmd)
	rootCmd.AddCommand(custodyCmd)

	recordsCmd.Flags().StringVar(&recordsFlags.caseID, "case", "", "case id (overrides case.id)")

	custodyCmd.Flags().StringVar(&custodyFlags.caseID, "case", "", "case id (overrides case.id)")
	custodyCmd.Flags().StringVar(&custodyFlags.action, "action", "", "only entries with this action")
}

const timeLayout = time.RFC3339

type caseList []*evidence.Case

func (l caseList) Table() cli.Table {
	t := cli.Table{Headers: []string{"CASE", "STATUS", "CREATED", "ROOTS"}}
	for _, c := range l {
		var roots string
		if c.Scan != nil {
			roots = strings.Join(c.Scan.Roots, ",")
		}
		t.Rows = append(t.Rows, []string{c.ID, c.Status, c.CreatedAt.Format(timeLayout), roots})
	}
	return t
}

type recordList []*evidence.EvidenceRecord

func (l recordList) Table() cli.Table {
	t := cli.Table{Headers: []string{"ID", "SIZE", "TYPE", "SHA256", "TAGS", "PATH"}}
	for _, r := range l {
		t.Rows = append(t.Rows, []string{
			r.ID,
			fmt.Sprint(r.Size),
			r.MediaType,
			r.SHA256,
			strings.Join(r.Tags, ","),
			r.SourcePath,
		})
	}
	return t
}

type custodyList []*evidence.CustodyEntry

func (l custodyList) Table() cli.Table {
	t := cli.Table{Headers: []string{"SEQ", "TIME", "ACTION", "ACTOR", "RECORD", "DIGEST", "DETAILS"}}
	for _, e := range l {
		t.Rows = append(t.Rows, []string{
			fmt.Sprint(e.Sequence),
			e.Timestamp.Format(timeLayout),
			e.Action,
			e.Actor,
			e.RecordID,
			e.Digest,
			e.Details,
		})
	}
	return t
}

func runCases(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	cases, err := a.store.ListCases(ctx)
	if err != nil {
		return cli.NewCommandError("cases", err)
	}
	return printResult(cmd, caseList(cases))
}

func runRecords(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	caseID, err := a.caseID(recordsFlags.caseID)
	if err != nil {
		return err
	}
	records, err := a.store.QueryRecords(ctx, caseID)
	if err != nil {
		return cli.NewCommandError("records", err)
	}
	return printResult(cmd, recordList(records))
}

func runCustody(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	caseID, err := a.caseID(custodyFlags.caseID)
	if err != nil {
		return err
	}
	entries, err := a.store.QueryCustody(ctx, caseID, custodyFlags.action)
	if err != nil {
		return cli.NewCommandError("custody", err)
	}
	return printResult(cmd, custodyList(entries))
}
