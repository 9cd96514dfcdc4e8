package export

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"dfas-hq/dfas/pkg/evidence"
)

// Columns is the fixed CSV header. It follows the record field order.
var Columns = []string{
	"id", "case_id", "source_path", "relative_path", "size",
	"created_time", "modified_time", "accessed_time",
	"owner", "media_type", "extension", "sha256", "tags",
	"collected_by", "collected_at", "notes",
}

// TagSeparator joins tags inside the single CSV tags column.
const TagSeparator = ";"

// CSVExporter exports evidence records to CSV format.
type CSVExporter struct {
	// IncludeHeader includes a header row with column names.
	IncludeHeader bool

	// RequireNonEmpty makes Export fail with evidence.ErrEmptyCase when there
	// are no records.
	RequireNonEmpty bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{
		IncludeHeader: includeHeader,
	}
}

// Export writes evidence records to the provided writer in CSV format,
// ordered by record ID. An empty set produces only the header row.
func (e *CSVExporter) Export(ctx context.Context, records []*evidence.EvidenceRecord, w io.Writer) error {
	if len(records) == 0 && e.RequireNonEmpty {
		return evidence.NewExportError("csv", 0, evidence.ErrEmptyCase)
	}

	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(Columns); err != nil {
			return evidence.NewExportError("csv", len(records), err)
		}
	}

	for _, record := range sortedByID(records) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writer.Write(recordToRow(record)); err != nil {
			return evidence.NewExportError("csv", len(records), err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return evidence.NewExportError("csv", len(records), err)
	}
	return nil
}

// ExportStream exports evidence records from a channel to CSV format.
// Records are written in the order they arrive; store streams are already
// ordered by record ID.
func (e *CSVExporter) ExportStream(ctx context.Context, recordsCh <-chan *evidence.EvidenceRecord, w io.Writer) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if e.IncludeHeader {
		if err := writer.Write(Columns); err != nil {
			return evidence.NewExportError("csv", 0, err)
		}
	}

	recordCount := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case record, ok := <-recordsCh:
			if !ok {
				if recordCount == 0 && e.RequireNonEmpty {
					return evidence.NewExportError("csv", 0, evidence.ErrEmptyCase)
				}
				writer.Flush()
				if err := writer.Error(); err != nil {
					return evidence.NewExportError("csv", recordCount, err)
				}
				return nil
			}

			if err := writer.Write(recordToRow(record)); err != nil {
				return evidence.NewExportError("csv", recordCount, err)
			}

			recordCount++

			// Flush periodically (every 100 records)
			if recordCount%100 == 0 {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return evidence.NewExportError("csv", recordCount, err)
				}
			}
		}
	}
}

// recordToRow converts an evidence record to a CSV row in Columns order.
func recordToRow(record *evidence.EvidenceRecord) []string {
	return []string{
		record.ID,
		record.CaseID,
		record.SourcePath,
		record.RelativePath,
		strconv.FormatInt(record.Size, 10),
		formatTime(record.CreatedTime),
		formatTime(record.ModifiedTime),
		formatTime(record.AccessedTime),
		record.Owner,
		record.MediaType,
		record.Extension,
		record.SHA256,
		strings.Join(record.Tags, TagSeparator),
		record.CollectedBy,
		formatTime(record.CollectedAt),
		record.Notes,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
