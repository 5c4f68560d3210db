package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tonimelisma/sharepoint-sync/internal/sync"
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(quiet bool, format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// formatSize returns a human-readable size string (e.g. "1.2 MiB").
func formatSize(bytes int64) string {
	return humanize.IBytes(uint64(max(bytes, 0)))
}

// formatAge renders t relative to now ("3 minutes ago").
func formatAge(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}

	return humanize.RelTime(t, now, "ago", "from now")
}

// formatDuration rounds to a unit a human cares about.
func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "0s"
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}

	return humanize.Comma(int64(n)) + " " + word + "s"
}

// printTable writes aligned columns to the given writer.
// headers and each row must have the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

// printRow writes a single padded row. The last column is not padded.
func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		if i == len(cells)-1 {
			parts[i] = cell
			continue
		}

		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.Join(parts, "  "))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// reportJSON is the --json rendering of a run or watch batch.
type reportJSON struct {
	RunID          string     `json:"run_id"`
	DryRun         bool       `json:"dry_run"`
	StartedAt      time.Time  `json:"started_at"`
	DurationMS     int64      `json:"duration_ms"`
	Uploaded       int        `json:"uploaded"`
	Failed         int        `json:"failed"`
	Bytes          int64      `json:"bytes"`
	FoldersCreated int        `json:"folders_created"`
	Ignored        int        `json:"ignored"`
	PlannedFolders []string   `json:"planned_folders,omitempty"`
	Error          string     `json:"error,omitempty"`
	Files          []fileJSON `json:"files"`
}

type fileJSON struct {
	Path       string `json:"path"`
	RemotePath string `json:"remote_path"`
	Size       int64  `json:"size"`
	Outcome    string `json:"outcome"`
	Chunked    bool   `json:"chunked,omitempty"`
	Attempts   int    `json:"attempts,omitempty"`
	Kind       string `json:"error_kind,omitempty"`
	Error      string `json:"error,omitempty"`
}

func newReportJSON(r *sync.Report, runErr error) reportJSON {
	out := reportJSON{
		RunID:          r.RunID,
		DryRun:         r.DryRun,
		StartedAt:      r.StartedAt,
		DurationMS:     r.Duration().Milliseconds(),
		Uploaded:       r.Uploaded,
		Failed:         r.FailedCount,
		Bytes:          r.Bytes,
		FoldersCreated: r.FoldersCreated,
		Ignored:        r.Ignored,
		PlannedFolders: r.Planned,
		Files:          make([]fileJSON, 0, len(r.Files)),
	}

	if runErr != nil {
		out.Error = runErr.Error()
	}

	for _, f := range r.Files {
		fj := fileJSON{
			Path:       f.RelPath,
			RemotePath: f.RemotePath,
			Size:       f.Size,
			Outcome:    string(f.Outcome),
			Chunked:    f.Chunked,
			Attempts:   f.Attempts,
			Kind:       f.Kind,
		}

		if f.Err != nil {
			fj.Error = f.Err.Error()
		}

		out.Files = append(out.Files, fj)
	}

	return out
}

// printReport writes the run summary to w in the format chosen by the
// global flags.
func printReport(w io.Writer, r *sync.Report, runErr error) {
	if err := writeReport(w, r, runErr, flagJSON, flagQuiet); err != nil {
		statusf(false, "cannot write summary: %v\n", err)
	}
}

// writeReport renders the summary. Failures are listed even in quiet
// mode; the one-line totals are not.
func writeReport(w io.Writer, r *sync.Report, runErr error, asJSON, quiet bool) error {
	if r == nil {
		return nil
	}

	if asJSON {
		return printJSON(w, newReportJSON(r, runErr))
	}

	if r.DryRun {
		return writePlan(w, r, quiet)
	}

	if !quiet {
		fmt.Fprintf(w, "Uploaded %s (%s) in %s", plural(r.Uploaded, "file"), formatSize(r.Bytes), formatDuration(r.Duration()))

		if r.FoldersCreated > 0 {
			fmt.Fprintf(w, ", %s created", plural(r.FoldersCreated, "folder"))
		}

		if r.Ignored > 0 {
			fmt.Fprintf(w, ", %d ignored", r.Ignored)
		}

		fmt.Fprintln(w)
	}

	failures := r.Failures()
	if len(failures) > 0 {
		fmt.Fprintf(w, "Failed %s:\n", plural(len(failures), "file"))

		for _, f := range failures {
			fmt.Fprintf(w, "  %s [%s]: %v\n", f.RelPath, f.Kind, f.Err)
		}
	}

	if runErr != nil {
		fmt.Fprintf(w, "Run aborted: %v\n", runErr)
	}

	return nil
}

func writePlan(w io.Writer, r *sync.Report, quiet bool) error {
	var total int64

	planned := 0

	for _, f := range r.Files {
		if f.Outcome != sync.OutcomePlanned {
			continue
		}

		planned++
		total += f.Size

		if !quiet {
			fmt.Fprintf(w, "  %s -> %s (%s)\n", f.RelPath, f.RemotePath, formatSize(f.Size))
		}
	}

	fmt.Fprintf(w, "Dry run: would upload %s (%s) into %s", plural(planned, "file"), formatSize(total), plural(len(r.Planned), "folder"))

	if r.Ignored > 0 {
		fmt.Fprintf(w, ", %d ignored", r.Ignored)
	}

	fmt.Fprintln(w)

	for _, f := range r.Failures() {
		fmt.Fprintf(w, "  unreadable: %s: %v\n", f.RelPath, f.Err)
	}

	return nil
}
