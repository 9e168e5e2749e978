// package formatter renders ledger contents and run history to various formats (CSV, JSON, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/desertthunder/gpyt/internal/ledger"
	"github.com/desertthunder/gpyt/internal/models"
	"github.com/desertthunder/gpyt/internal/shared"
	"github.com/dustin/go-humanize"
)

// Formats lists the accepted export formats.
var Formats = []string{"json", "csv", "markdown", "txt"}

var csvHeaders = []string{"Source Key", "Destination Ref", "Created At"}

// LedgerToCSV converts ledger records to CSV format with columns: Source Key, Destination Ref, Created At
func LedgerToCSV(records []models.MigrationRecord) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(csvHeaders); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, r := range records {
		record := []string{r.SourceKey, r.DestinationRef, formatTime(r.CreatedAt)}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// LedgerToJSON renders records as a ledger document, readable by [ParseLedger].
func LedgerToJSON(records []models.MigrationRecord) ([]byte, error) {
	entries := make(map[string]ledger.Entry, len(records))
	for _, r := range records {
		entries[r.SourceKey] = ledger.Entry{Ref: r.DestinationRef, CreatedAt: r.CreatedAt}
	}
	return ledger.Encode(entries)
}

// LedgerToMarkdown renders records as a table.
func LedgerToMarkdown(records []models.MigrationRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Migrated videos\n\n")
	fmt.Fprintf(&buf, "**Videos**: %d\n\n", len(records))

	buf.WriteString("| # | Source | Video |\n")
	buf.WriteString("|---|--------|-------|\n")
	for i, r := range records {
		fmt.Fprintf(&buf, "| %d | %s | %s |\n", i+1, escapeCell(r.SourceKey), escapeCell(r.DestinationRef))
	}

	return buf.Bytes(), nil
}

// LedgerToText renders one "source -> video" line per record.
func LedgerToText(records []models.MigrationRecord) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Migrated videos: %d\n\n", len(records))
	for i, r := range records {
		fmt.Fprintf(&buf, "%d. %s -> %s\n", i+1, r.SourceKey, r.DestinationRef)
	}

	return buf.Bytes(), nil
}

// FormatLedger dispatches on format. Unknown formats are an error.
func FormatLedger(records []models.MigrationRecord, format string) ([]byte, error) {
	switch format {
	case "csv":
		return LedgerToCSV(records)
	case "markdown", "md":
		return LedgerToMarkdown(records)
	case "txt", "text":
		return LedgerToText(records)
	case "json", "":
		return LedgerToJSON(records)
	default:
		return nil, fmt.Errorf("%w: unknown format %q (use %s)", shared.ErrInvalidArgument, format, strings.Join(Formats, ", "))
	}
}

// WriteLedgerExport writes records to path in format.
//
// Defaults to gpyt_ledger_{epoch}.{ext} as the filename.
func WriteLedgerExport(records []models.MigrationRecord, format, path string) (string, error) {
	data, err := FormatLedger(records, format)
	if err != nil {
		return "", err
	}

	if path == "" {
		path = fmt.Sprintf("gpyt_ledger_%d.%s", time.Now().Unix(), extension(format))
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write ledger export: %w", err)
	}
	return path, nil
}

// ParseLedger reads a ledger export back into a mapping. JSON documents and CSV exports are accepted.
func ParseLedger(r io.Reader) (map[string]ledger.Entry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger export: %w", err)
	}

	if trimmed := bytes.TrimSpace(data); len(trimmed) == 0 || trimmed[0] == '{' {
		return ledger.Decode(data)
	}
	return parseLedgerCSV(data)
}

func parseLedgerCSV(data []byte) (map[string]ledger.Entry, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrCorruptLedger, err)
	}

	entries := map[string]ledger.Entry{}
	for i, row := range rows {
		if i == 0 && len(row) > 0 && row[0] == csvHeaders[0] {
			continue
		}
		if len(row) < 2 || row[0] == "" || row[1] == "" {
			return nil, fmt.Errorf("%w: row %d needs a source key and a destination ref", shared.ErrCorruptLedger, i+1)
		}

		entry := ledger.Entry{Ref: row[1]}
		if len(row) > 2 && row[2] != "" {
			t, err := time.Parse(time.RFC3339, row[2])
			if err != nil {
				return nil, fmt.Errorf("%w: row %d has created at %q", shared.ErrCorruptLedger, i+1, row[2])
			}
			entry.CreatedAt = t.UTC()
		}
		entries[row[0]] = entry
	}
	return entries, nil
}

// RunsToText renders run history, newest first as given.
func RunsToText(runs []*models.MigrationRun) string {
	if len(runs) == 0 {
		return "No migration runs recorded.\n"
	}

	var b strings.Builder
	for _, run := range runs {
		fmt.Fprintf(&b, "#%d %s  %s  pages=%d seen=%d migrated=%d skipped=%d failed=%d uploaded=%s",
			run.Sequence(),
			run.Status(),
			formatTime(run.CreatedAt()),
			run.Pages(),
			run.ItemsSeen(),
			run.Migrated(),
			run.Skipped(),
			run.Failed(),
			FormatBytes(run.BytesUploaded()),
		)
		if start, end := run.StartedAt(), run.CompletedAt(); start != nil && end != nil {
			fmt.Fprintf(&b, " took=%s", end.Sub(*start).Round(time.Second))
		}
		if run.LastPageToken() != "" {
			fmt.Fprintf(&b, " resume=%s", run.LastPageToken())
		}
		if run.ErrorMessage() != "" {
			fmt.Fprintf(&b, "\n    error: %s", run.ErrorMessage())
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FormatBytes renders n with a binary unit, e.g. 2.9 MiB.
func FormatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func extension(format string) string {
	switch format {
	case "markdown", "md":
		return "md"
	case "txt", "text":
		return "txt"
	case "csv":
		return "csv"
	default:
		return "json"
	}
}
