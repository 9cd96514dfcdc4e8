// Package export provides evidence record exporters.
//
// # Export Formats
//
//   - JSON: an array of records with the record's JSON keys
//   - CSV: one row per record in the fixed Columns order, tags joined with ";"
//
// Both formats order records by record ID, so exporting the same case twice
// produces identical bytes. An empty case exports as a header-only CSV or [].
// Set RequireNonEmpty to get evidence.ErrEmptyCase instead.
//
//	exporter := export.NewCSVExporter(true)
//	f, _ := os.Create("case-001_evidence.csv")
//	defer f.Close()
//
//	if err := exporter.Export(ctx, records, f); err != nil {
//	    log.Fatal(err)
//	}
//
// # Streaming
//
// ExportStream consumes the channel returned by Store.QueryRecordsStream and
// writes records as they arrive.
//
// # Re-import
//
// DecodeJSON reads a JSON export back, rejecting unknown fields and records
// that fail validation.
package export
