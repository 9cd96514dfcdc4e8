package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"dfas-hq/dfas/pkg/evidence"
)

// JSONExporter exports evidence records as a JSON array.
type JSONExporter struct {
	// Pretty enables pretty-printing with indentation.
	Pretty bool

	// RequireNonEmpty makes Export fail with evidence.ErrEmptyCase when there
	// are no records.
	RequireNonEmpty bool
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{
		Pretty: pretty,
	}
}

// Export writes evidence records to the provided writer as a JSON array
// ordered by record ID. An empty set is written as [].
func (e *JSONExporter) Export(ctx context.Context, records []*evidence.EvidenceRecord, w io.Writer) error {
	if len(records) == 0 {
		if e.RequireNonEmpty {
			return evidence.NewExportError("json", 0, evidence.ErrEmptyCase)
		}
		_, err := w.Write([]byte("[]"))
		return err
	}

	sorted := sortedByID(records)

	var data []byte
	var err error
	if e.Pretty {
		data, err = json.MarshalIndent(sorted, "", "  ")
	} else {
		data, err = json.Marshal(sorted)
	}
	if err != nil {
		return evidence.NewExportError("json", len(records), err)
	}

	if _, err := w.Write(data); err != nil {
		return evidence.NewExportError("json", len(records), err)
	}

	return nil
}

// ExportStream exports evidence records from a channel as a JSON array.
func (e *JSONExporter) ExportStream(ctx context.Context, recordsCh <-chan *evidence.EvidenceRecord, w io.Writer) error {
	if _, err := w.Write([]byte("[")); err != nil {
		return evidence.NewExportError("json", 0, err)
	}

	first := true
	recordCount := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case record, ok := <-recordsCh:
			if !ok {
				if recordCount == 0 && e.RequireNonEmpty {
					return evidence.NewExportError("json", 0, evidence.ErrEmptyCase)
				}
				if _, err := w.Write([]byte("]")); err != nil {
					return evidence.NewExportError("json", recordCount, err)
				}
				return nil
			}

			// Write comma and newline before all but first record
			if !first {
				sep := ","
				if e.Pretty {
					sep = ",\n"
				}
				if _, err := w.Write([]byte(sep)); err != nil {
					return evidence.NewExportError("json", recordCount, err)
				}
			}
			first = false

			data, err := e.serializeRecord(record)
			if err != nil {
				return evidence.NewExportError("json", recordCount, err)
			}

			if _, err := w.Write(data); err != nil {
				return evidence.NewExportError("json", recordCount, err)
			}

			recordCount++
		}
	}
}

// serializeRecord serializes a single evidence record to JSON.
func (e *JSONExporter) serializeRecord(record *evidence.EvidenceRecord) ([]byte, error) {
	if e.Pretty {
		return json.MarshalIndent(record, "  ", "  ")
	}
	return json.Marshal(record)
}

// DecodeJSON reads a JSON array produced by JSONExporter. Unknown fields are
// rejected and every record is validated.
func DecodeJSON(r io.Reader) ([]*evidence.EvidenceRecord, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var records []*evidence.EvidenceRecord
	if err := dec.Decode(&records); err != nil {
		return nil, evidence.NewExportError("json", 0, err)
	}

	for i, record := range records {
		if err := record.Validate(); err != nil {
			return nil, evidence.NewExportError("json", len(records), fmt.Errorf("record %d: %w", i, err))
		}
		if record.Tags == nil {
			record.Tags = []string{}
		}
	}
	if records == nil {
		records = []*evidence.EvidenceRecord{}
	}
	return records, nil
}

// WriteCustody writes custody entries as an indented JSON array in sequence
// order.
func WriteCustody(entries []*evidence.CustodyEntry, w io.Writer) error {
	sorted := make([]*evidence.CustodyEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Sequence < sorted[j].Sequence
	})

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sorted); err != nil {
		return evidence.NewExportError("custody", len(entries), err)
	}
	return nil
}

// sortedByID returns a copy of records ordered by record ID.
func sortedByID(records []*evidence.EvidenceRecord) []*evidence.EvidenceRecord {
	sorted := make([]*evidence.EvidenceRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}
