// Package cli provides output formatting for the studydesk commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/hyperjump/studydesk/internal/extract"
	"github.com/hyperjump/studydesk/internal/models"
	"github.com/hyperjump/studydesk/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case OutputText, OutputJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

// WriteBatch writes an extraction batch to w. Text output prints a per-file
// summary followed by the corpus; previewLen limits the corpus (0 = full).
func WriteBatch(w io.Writer, result extract.BatchResult, format OutputFormat, previewLen int) error {
	if format == OutputJSON {
		return writeJSON(w, result)
	}
	ok := len(result.PerFile) - len(result.Failures)
	fmt.Fprintf(w, "Extracted %d of %d files\n\n", ok, len(result.PerFile))
	for _, r := range result.PerFile {
		if r.Succeeded {
			fmt.Fprintf(w, "  ok    %-32s %s, %d chars\n", r.FileName, r.Format, len([]rune(r.Text)))
		} else {
			fmt.Fprintf(w, "  skip  %-32s %s\n", r.FileName, r.ErrorReason)
		}
	}
	if result.Corpus != "" {
		fmt.Fprintln(w, "\n─────────────────────────────────────────────────────────")
		fmt.Fprintln(w, utils.Truncate(result.Corpus, previewLen))
	}
	return nil
}

// WriteStatus writes a status summary to w.
func WriteStatus(w io.Writer, status *models.Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	names := make([]string, 0, len(status.Records))
	for name := range status.Records {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%-18s %d   # records\n", name+":", status.Records[name])
	}
	fmt.Fprintf(w, "%-18s %d\n", "tutors:", status.Tutors)
	if status.DiskUsageBytes != nil {
		fmt.Fprintf(w, "%-18s %s   # uploads + tables on disk\n", "disk_usage:", utils.FormatSize(*status.DiskUsageBytes))
	}
	if status.DiskUsageFiles != nil {
		fmt.Fprintf(w, "%-18s %d\n", "disk_files:", *status.DiskUsageFiles)
	}
	if c := status.Config; c != nil {
		fmt.Fprintln(w, "\nconfig:")
		fmt.Fprintf(w, "  storage_driver:  %s\n", c.StorageDriver)
		fmt.Fprintf(w, "  data_dir:        %s\n", c.DataDir)
		fmt.Fprintf(w, "  upload_limits:   %d files, %s each\n", c.MaxFiles, utils.FormatSize(c.MaxFileBytes))
		fmt.Fprintf(w, "  providers:       %v\n", c.Providers)
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
