package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"slices"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"github.com/tonimelisma/sharepoint-sync/internal/graph"
	"github.com/tonimelisma/sharepoint-sync/internal/ignore"
)

// EngineConfig holds the options for NewEngine.
type EngineConfig struct {
	Fs         afero.Fs // local filesystem; nil means the OS filesystem
	LocalDir   string   // absolute path to the sync root
	BaseFolder string   // remote folder under the drive root, "" for the root
	Drive      graph.DriveRef
	Matcher    *ignore.Matcher

	// Token, Meta and Transfer are unused in dry-run mode and may be nil.
	Token    graph.TokenSource
	Meta     MetaAPI
	Transfer TransferAPI
	Uploads  UploaderConfig

	DryRun bool
	RunID  string          // generated when empty
	Clock  clockwork.Clock // real clock when nil
	Logger *slog.Logger
}

// Engine uploads a local tree into a drive folder. The folder cache
// persists across Run and SyncPaths calls; the failed-subtree set lasts one
// call, so a later watch batch retries a folder that failed before. Not
// safe for concurrent use.
type Engine struct {
	cfg      EngineConfig
	folders  *FolderEnsurer
	uploader *Uploader
	walker   *walker
	clock    clockwork.Clock
	logger   *slog.Logger

	// failedFolders holds case-folded remote folder paths that could not
	// be ensured in the current call. Files beneath them fail without
	// further API calls.
	failedFolders map[string]error
}

// NewEngine wires the folder ensurer, uploader and walker for cfg.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.LocalDir == "" {
		return nil, errors.New("sync: local directory is required")
	}

	if !cfg.DryRun && (cfg.Token == nil || cfg.Meta == nil || cfg.Transfer == nil) {
		return nil, errors.New("sync: token source and Graph clients are required unless dry-run")
	}

	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}

	cfg.BaseFolder = NormalizeFolder(cfg.BaseFolder)

	return &Engine{
		cfg:      cfg,
		folders:  NewFolderEnsurer(cfg.Meta, cfg.Drive, cfg.Logger),
		uploader: NewUploader(cfg.Transfer, cfg.Drive, cfg.Fs, cfg.Uploads, cfg.Logger),
		walker:   newWalker(cfg.Fs, cfg.LocalDir, cfg.Matcher, cfg.Logger),
		clock:    cfg.Clock,
		logger:   cfg.Logger,
	}, nil
}

// RunID identifies the initial run in logs and history.
func (e *Engine) RunID() string {
	return e.cfg.RunID
}

// Run authenticates, checks the target drive, then walks the whole local
// tree uploading every eligible file. Per-file failures are recorded in
// the report and do not stop the run; the returned error is non-nil only
// when the run was aborted (authentication, preflight, cancellation, or
// an unreadable root).
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	report := e.newReport(e.cfg.RunID)
	e.failedFolders = make(map[string]error)

	e.logger.Info("sync starting",
		slog.String("local_dir", e.cfg.LocalDir),
		slog.String("drive", e.cfg.Drive.String()),
		slog.String("base_folder", e.cfg.BaseFolder),
		slog.Bool("dry_run", e.cfg.DryRun),
	)

	if !e.cfg.DryRun {
		if err := e.preflight(ctx); err != nil {
			return e.finish(report), err
		}
	}

	ignoredBefore := e.walker.ignored
	createdBefore := e.folders.Created()
	planned := make(map[string]bool)

	err := e.walker.Walk(func(f LocalFile, walkErr error) error {
		return e.syncFile(ctx, report, planned, f, walkErr)
	})

	report.Ignored = e.walker.ignored - ignoredBefore
	report.FoldersCreated = e.folders.Created() - createdBefore
	e.finish(report)

	if err != nil {
		return report, err
	}

	e.logSummary(report)

	return report, nil
}

// SyncPaths uploads the given root-relative files through the same
// pipeline as Run. Paths that are missing, ignored or not regular files
// are skipped. Each call gets its own report and run ID.
func (e *Engine) SyncPaths(ctx context.Context, relPaths []string) (*Report, error) {
	report := e.newReport(uuid.NewString())
	e.failedFolders = make(map[string]error)
	createdBefore := e.folders.Created()
	planned := make(map[string]bool)

	paths := slices.Clone(relPaths)
	slices.Sort(paths)
	paths = slices.Compact(paths)

	for _, rel := range paths {
		f, ok, err := e.walker.Stat(rel)
		if !ok && err == nil {
			e.logger.Debug("skipping path", slog.String("path", rel))
			continue
		}

		if abortErr := e.syncFile(ctx, report, planned, f, err); abortErr != nil {
			report.FoldersCreated = e.folders.Created() - createdBefore
			return e.finish(report), abortErr
		}
	}

	report.FoldersCreated = e.folders.Created() - createdBefore
	e.finish(report)
	e.logSummary(report)

	return report, nil
}

// preflight proves the credentials and the target before any upload.
func (e *Engine) preflight(ctx context.Context) error {
	if _, err := e.cfg.Token.Token(ctx); err != nil {
		return abortError(ctx, fmt.Errorf("%w: %w", ErrAuth, err))
	}

	drive, err := e.cfg.Meta.Drive(ctx, e.cfg.Drive)
	if err != nil {
		if fatal(ctx, err) {
			return abortError(ctx, err)
		}

		return fmt.Errorf("%w: target drive %s: %w", ErrRemote, e.cfg.Drive, err)
	}

	e.logger.Info("target drive verified",
		slog.String("drive_name", drive.Name),
		slog.String("drive_type", drive.DriveType),
	)

	return nil
}

// syncFile runs one file through map, ensure and upload. It returns a
// non-nil error only when the whole run must stop.
func (e *Engine) syncFile(ctx context.Context, report *Report, planned map[string]bool, f LocalFile, walkErr error) error {
	if err := ctx.Err(); err != nil {
		return abortError(ctx, err)
	}

	folder, name := MapPath(f.RelPath, e.cfg.BaseFolder)
	fo := FileOutcome{RelPath: f.RelPath, RemotePath: joinRemote(folder, name), Size: f.Size}

	if walkErr != nil {
		report.recordFailure(fo, walkErr)
		return nil
	}

	if e.cfg.DryRun {
		e.plan(report, planned, folder)
		e.logger.Info("would upload", slog.String("path", f.RelPath), slog.String("remote_path", fo.RemotePath), slog.Int64("size", f.Size))
		report.recordPlanned(fo)

		return nil
	}

	if prev := e.failedAncestor(folder); prev != nil {
		err := &FolderError{Path: folder, Err: fmt.Errorf("parent folder failed earlier: %w", prev)}
		e.logger.Warn("skipping file under failed folder", slog.String("path", f.RelPath))
		report.recordFailure(fo, err)

		return nil
	}

	parentID, err := e.folders.Ensure(ctx, folder)
	if err != nil {
		if fatal(ctx, err) {
			return abortError(ctx, err)
		}

		e.markFailed(err)
		e.logger.Error("cannot ensure remote folder",
			slog.String("path", f.RelPath),
			slog.String("remote_folder", folder),
			slog.String("error", err.Error()),
		)
		report.recordFailure(fo, err)

		return nil
	}

	res, err := e.uploader.Upload(ctx, f.AbsPath, parentID, name)
	if err != nil {
		if fatal(ctx, err) {
			return abortError(ctx, err)
		}

		e.logger.Error("upload failed",
			slog.String("path", f.RelPath),
			slog.String("kind", Kind(err)),
			slog.String("error", err.Error()),
		)
		report.recordFailure(fo, err)

		return nil
	}

	fo.Size = res.Size
	fo.Chunked = res.Chunked
	fo.Attempts = res.Attempts

	e.logger.Info("uploaded",
		slog.String("path", f.RelPath),
		slog.String("remote_path", fo.RemotePath),
		slog.Int64("size", res.Size),
		slog.Bool("chunked", res.Chunked),
		slog.Int("attempts", res.Attempts),
	)
	report.recordUpload(fo)

	return nil
}

// plan records every folder prefix a dry run would ensure.
func (e *Engine) plan(report *Report, planned map[string]bool, folder string) {
	prefix := ""

	for _, seg := range cleanSegments(folder) {
		prefix = joinRemote(prefix, seg)
		if key := folderKey(prefix); !planned[key] {
			planned[key] = true
			report.Planned = append(report.Planned, prefix)
		}
	}
}

func (e *Engine) markFailed(err error) {
	var fe *FolderError
	if errors.As(err, &fe) {
		e.failedFolders[folderKey(fe.Path)] = err
	}
}

// failedAncestor returns the recorded error for folder or any ancestor.
func (e *Engine) failedAncestor(folder string) error {
	if len(e.failedFolders) == 0 {
		return nil
	}

	key := folderKey(folder)
	for key != "" && key != "." {
		if err, ok := e.failedFolders[key]; ok {
			return err
		}

		key = path.Dir(key)
	}

	return nil
}

// filesUnder lists eligible files beneath a root-relative directory.
func (e *Engine) filesUnder(relDir string) ([]string, error) {
	var out []string

	dir := filepath.Join(e.cfg.LocalDir, filepath.FromSlash(relDir))

	err := e.walker.WalkDir(dir, func(f LocalFile, walkErr error) error {
		if walkErr == nil {
			out = append(out, f.RelPath)
		}

		return nil
	})

	return out, err
}

func (e *Engine) newReport(runID string) *Report {
	return &Report{RunID: runID, DryRun: e.cfg.DryRun, StartedAt: e.clock.Now()}
}

func (e *Engine) finish(r *Report) *Report {
	r.FinishedAt = e.clock.Now()
	return r
}

func (e *Engine) logSummary(r *Report) {
	attrs := []any{
		slog.String("run_id", r.RunID),
		slog.Int("uploaded", r.Uploaded),
		slog.Int("failed", r.FailedCount),
		slog.Int64("bytes", r.Bytes),
		slog.Int("folders_created", r.FoldersCreated),
		slog.Int("ignored", r.Ignored),
		slog.Duration("duration", r.Duration()),
	}

	if r.Failed() {
		e.logger.Warn("sync finished with failures", attrs...)
		return
	}

	e.logger.Info("sync finished", attrs...)
}
