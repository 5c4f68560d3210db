package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/sharepoint-sync/internal/config"
	"github.com/tonimelisma/sharepoint-sync/internal/graph"
	"github.com/tonimelisma/sharepoint-sync/internal/history"
	"github.com/tonimelisma/sharepoint-sync/internal/sync"
)

const defaultHistoryLimit = 20

var (
	flagLimit int
	flagRunID string
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent sync runs",
		Long: `List runs recorded in the history database (history_db or --history-db).
With --run, list the files attempted by one run.`,
		Args: cobra.NoArgs,
		RunE: runHistory,
	}

	cmd.Flags().IntVar(&flagLimit, "limit", defaultHistoryLimit, "maximum number of runs to list")
	cmd.Flags().StringVar(&flagRunID, "run", "", "show the files of one run")

	return cmd
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg := resolvedCfg
	if cfg.HistoryDB == "" {
		return errors.New("no history database configured: set history_db or pass --history-db")
	}

	if flagLimit <= 0 {
		return fmt.Errorf("--limit must be positive, got %d", flagLimit)
	}

	logger, sink := buildLogger(cfg, os.Stderr)
	logSink = sink

	ctx := cmd.Context()

	store, err := history.Open(ctx, cfg.HistoryDB, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if flagRunID != "" {
		files, err := store.RunFiles(ctx, flagRunID)
		if err != nil {
			return err
		}

		if flagJSON {
			return printJSON(os.Stdout, files)
		}

		if len(files) == 0 {
			statusf(flagQuiet, "No files recorded for run %s.\n", flagRunID)
			return nil
		}

		printFiles(os.Stdout, files)

		return nil
	}

	runs, err := store.RecentRuns(ctx, flagLimit)
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(os.Stdout, runs)
	}

	if len(runs) == 0 {
		statusf(flagQuiet, "No runs recorded.\n")
		return nil
	}

	printRuns(os.Stdout, runs, time.Now())

	return nil
}

func printRuns(w io.Writer, runs []history.RunRecord, now time.Time) {
	rows := make([][]string, 0, len(runs))

	for _, r := range runs {
		rows = append(rows, []string{
			r.ID,
			formatAge(r.StartedAt, now),
			formatDuration(r.FinishedAt.Sub(r.StartedAt)),
			r.Status,
			strconv.Itoa(r.Uploaded),
			strconv.Itoa(r.Failed),
			formatSize(r.Bytes),
			r.Target,
		})
	}

	printTable(w, []string{"RUN", "STARTED", "DURATION", "STATUS", "UPLOADED", "FAILED", "SIZE", "TARGET"}, rows)
}

func printFiles(w io.Writer, files []history.FileRecord) {
	rows := make([][]string, 0, len(files))

	for _, f := range files {
		detail := f.RemotePath
		if f.Message != "" {
			detail = f.ErrorKind + ": " + f.Message
		}

		rows = append(rows, []string{f.Outcome, formatSize(f.Size), f.Path, detail})
	}

	printTable(w, []string{"OUTCOME", "SIZE", "PATH", "DETAIL"}, rows)
}

// recorder writes each report to the history database. With no database
// configured every method is a no-op.
type recorder struct {
	store    *history.Store
	ctx      context.Context
	localDir string
	target   string
	logger   *slog.Logger
}

func openRecorder(ctx context.Context, cfg *config.Resolved, localDir string, logger *slog.Logger) (*recorder, error) {
	r := &recorder{
		ctx:      detach(ctx),
		localDir: localDir,
		target:   targetLabel(cfg),
		logger:   logger,
	}

	if cfg.HistoryDB == "" {
		return r, nil
	}

	store, err := history.Open(ctx, cfg.HistoryDB, logger)
	if err != nil {
		return nil, err
	}

	r.store = store

	return r, nil
}

// Record stores one report. A failed write is logged, not returned, so
// history trouble never changes the outcome of a sync.
func (r *recorder) Record(report *sync.Report, runErr error) {
	if r.store == nil || report == nil {
		return
	}

	run, files := runRecord(report, runErr, r.localDir, r.target)

	if err := r.store.RecordRun(r.ctx, run, files); err != nil {
		r.logger.Warn("cannot record run history", slog.String("error", err.Error()))
	}
}

func (r *recorder) Close() error {
	if r.store == nil {
		return nil
	}

	return r.store.Close()
}

// runRecord converts a report into history rows.
func runRecord(report *sync.Report, runErr error, localDir, target string) (history.RunRecord, []history.FileRecord) {
	run := history.RunRecord{
		ID:             report.RunID,
		StartedAt:      report.StartedAt,
		FinishedAt:     report.FinishedAt,
		LocalDir:       localDir,
		Target:         target,
		DryRun:         report.DryRun,
		Uploaded:       report.Uploaded,
		Failed:         report.FailedCount,
		Bytes:          report.Bytes,
		FoldersCreated: report.FoldersCreated,
		Ignored:        report.Ignored,
	}

	switch {
	case runErr != nil:
		run.Status = history.StatusAborted
		run.Error = runErr.Error()
	case report.DryRun:
		run.Status = history.StatusDryRun
	case report.Failed():
		run.Status = history.StatusFailed
	default:
		run.Status = history.StatusOK
	}

	files := make([]history.FileRecord, 0, len(report.Files))

	for _, f := range report.Files {
		fr := history.FileRecord{
			Path:       f.RelPath,
			RemotePath: f.RemotePath,
			Size:       f.Size,
			Outcome:    string(f.Outcome),
			ErrorKind:  f.Kind,
		}

		if f.Err != nil {
			fr.Message = f.Err.Error()
		}

		files = append(files, fr)
	}

	return run, files
}

// targetLabel names the destination as site/drive:/folder.
func targetLabel(cfg *config.Resolved) string {
	drive := graph.DriveRef{SiteID: cfg.SiteID, DriveID: cfg.DriveID}

	return drive.String() + ":/" + sync.NormalizeFolder(cfg.BaseFolder)
}
