package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/sharepoint-sync/internal/config"
	"github.com/tonimelisma/sharepoint-sync/internal/graph"
	"github.com/tonimelisma/sharepoint-sync/internal/ignore"
	"github.com/tonimelisma/sharepoint-sync/internal/sync"
)

// Sync flags. Target flags are read by loadConfig only when set.
var (
	flagDryRun       bool
	flagWatch        bool
	flagDebounce     time.Duration
	flagTenantID     string
	flagClientID     string
	flagSiteID       string
	flagDriveID      string
	flagLocalDir     string
	flagRemoteFolder string
	flagIgnoreFile   string
)

// graphBaseURL is the Graph endpoint. Tests point it at a fake server.
var graphBaseURL = graph.DefaultBaseURL

// errSyncFailed is returned when the run completed but some files did not
// upload. main exits 1 without printing it again.
var errSyncFailed = errors.New("one or more files failed to upload")

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Upload the local directory to the SharePoint drive",
		Long: `Walk the local directory and upload every file not excluded by the
ignore file, creating remote folders as needed. Existing remote files are
replaced. Nothing is ever deleted remotely.

With --watch the process keeps running after the first pass and uploads
files as they are created or modified.`,
		Args: cobra.NoArgs,
		RunE: runSync,
	}

	f := cmd.Flags()
	f.BoolVar(&flagDryRun, "dry-run", false, "list what would be uploaded without contacting Graph")
	f.BoolVar(&flagWatch, "watch", false, "keep uploading changes until interrupted")
	f.DurationVar(&flagDebounce, "debounce", 0, "quiet period before uploading watched changes (default 2s)")
	f.StringVar(&flagTenantID, "tenant-id", "", "Entra ID tenant")
	f.StringVar(&flagClientID, "client-id", "", "app registration client ID")
	f.StringVar(&flagSiteID, "site-id", "", "SharePoint site ID")
	f.StringVar(&flagDriveID, "drive-id", "", "document library drive ID")
	f.StringVar(&flagLocalDir, "local-dir", "", "local directory to upload")
	f.StringVar(&flagRemoteFolder, "remote-folder", "", "remote folder under the drive root")
	f.StringVar(&flagIgnoreFile, "ignore-file", "", "gitignore-style file, relative to the local directory")
	cmd.MarkFlagsMutuallyExclusive("dry-run", "watch")

	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	cfg := resolvedCfg

	logger, sink := buildLogger(cfg, os.Stderr)
	logSink = sink

	runID := uuid.NewString()
	logger = logger.With(slog.String("run_id", runID))

	parent, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	ctx := shutdownContext(parent, logger)

	localDir, err := filepath.Abs(cfg.LocalDir)
	if err != nil {
		return fmt.Errorf("resolving local directory: %w", err)
	}

	matcher, err := ignore.Load(afero.NewOsFs(), cfg.IgnoreFile)
	if err != nil {
		return err
	}

	logger.Debug("ignore rules loaded", slog.String("file", cfg.IgnoreFile), slog.Int("rules", matcher.Len()))

	rec, err := openRecorder(ctx, cfg, localDir, logger)
	if err != nil {
		return err
	}
	defer rec.Close()

	engine, err := newEngine(cfg, localDir, matcher, runID, logger)
	if err != nil {
		return err
	}

	report, runErr := engine.Run(ctx)
	rec.Record(report, runErr)
	printReport(os.Stdout, report, runErr)

	if runErr != nil {
		return runErr
	}

	failed := report.Failed()

	if flagWatch {
		statusf(flagQuiet, "Watching %s for changes (Ctrl-C to stop)\n", localDir)

		err := engine.Watch(ctx, sync.WatchOpts{
			Debounce: flagDebounce,
			OnBatch: func(r *sync.Report, batchErr error) {
				rec.Record(r, batchErr)
				printReport(os.Stdout, r, batchErr)

				if r.Failed() {
					failed = true
				}
			},
		})
		if err != nil {
			return err
		}
	}

	if failed {
		return errSyncFailed
	}

	return nil
}

// newEngine builds the Graph clients and the engine. Dry runs get no
// clients at all, so they cannot reach the network.
func newEngine(
	cfg *config.Resolved, localDir string, matcher *ignore.Matcher, runID string, logger *slog.Logger,
) (*sync.Engine, error) {
	policy := retryPolicy(cfg)

	ec := sync.EngineConfig{
		LocalDir:   localDir,
		BaseFolder: cfg.BaseFolder,
		Drive:      graph.DriveRef{SiteID: cfg.SiteID, DriveID: cfg.DriveID},
		Matcher:    matcher,
		Uploads: sync.UploaderConfig{
			SimpleUploadMax: cfg.SimpleUploadMax,
			ChunkSize:       cfg.ChunkSize,
			Retry:           policy,
			Bandwidth:       sync.NewBandwidthLimiter(cfg.BandwidthLimit, logger),
		},
		DryRun: cfg.DryRun,
		RunID:  runID,
		Logger: logger,
	}

	if !cfg.DryRun {
		meta := metaHTTPClient(cfg)

		auth, err := graph.NewAuthenticator(
			graph.Credentials{TenantID: cfg.TenantID, ClientID: cfg.ClientID, ClientSecret: cfg.ClientSecret},
			graph.AuthOptions{TokenURL: cfg.TokenURL, HTTPClient: meta, Retry: policy},
			logger,
		)
		if err != nil {
			return nil, err
		}

		ua := userAgent(cfg)

		metaClient := graph.NewClient(graphBaseURL, meta, auth, logger, ua)
		metaClient.SetRetryPolicy(policy)

		// Transfer calls are single attempts; the uploader owns their retries.
		transferClient := graph.NewClient(graphBaseURL, transferHTTPClient(cfg), auth, logger, ua)

		ec.Token = auth
		ec.Meta = metaClient
		ec.Transfer = transferClient
	}

	return sync.NewEngine(ec)
}

// detach keeps values but drops cancellation, so a report for an
// interrupted run still reaches the history database.
func detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
