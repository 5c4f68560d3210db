package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/spf13/afero"

	"github.com/tonimelisma/sharepoint-sync/internal/graph"
)

const (
	defaultSimpleUploadMax = 4 * 1024 * 1024
	defaultChunkSize       = 10 * 1024 * 1024
	cancelSessionTimeout   = 10 * time.Second
)

// UploaderConfig tunes the uploader. Zero values take defaults.
type UploaderConfig struct {
	// SimpleUploadMax is the largest file sent in a single PUT.
	SimpleUploadMax int64
	// ChunkSize is the upload-session chunk size, a multiple of
	// graph.ChunkAlignment.
	ChunkSize int64
	Retry     graph.RetryPolicy
	Bandwidth *BandwidthLimiter
}

// UploadResult describes a completed upload.
type UploadResult struct {
	Item     *graph.Item
	Size     int64
	Chunked  bool
	Attempts int
	// HashVerified is false when the remote reported no hash or a
	// different one.
	HashVerified bool
}

// Uploader sends local files to a drive, one at a time.
type Uploader struct {
	api    TransferAPI
	drive  graph.DriveRef
	fs     afero.Fs
	cfg    UploaderConfig
	logger *slog.Logger

	// sleep waits out a Retry-After hint. Tests replace it.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewUploader returns an uploader reading from fsys.
func NewUploader(api TransferAPI, drive graph.DriveRef, fsys afero.Fs, cfg UploaderConfig, logger *slog.Logger) *Uploader {
	if cfg.SimpleUploadMax <= 0 {
		cfg.SimpleUploadMax = defaultSimpleUploadMax
	}

	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}

	return &Uploader{api: api, drive: drive, fs: fsys, cfg: cfg, logger: logger, sleep: sleepCtx}
}

// Upload sends localPath into the folder parentID as name, replacing any
// existing file. Errors match ErrUpload, or ErrLocalIO when the local file
// cannot be read.
func (u *Uploader) Upload(ctx context.Context, localPath, parentID, name string) (*UploadResult, error) {
	f, err := u.fs.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", ErrLocalIO, localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %w", ErrLocalIO, localPath, err)
	}

	size := info.Size()

	var res *UploadResult
	if size <= u.cfg.SimpleUploadMax {
		res, err = u.simple(ctx, f, parentID, name, size)
	} else {
		res, err = u.chunked(ctx, f, parentID, name, size, info.ModTime())
	}

	if err != nil {
		return nil, err
	}

	res.HashVerified = u.verify(localPath, res.Item)

	return res, nil
}

func (u *Uploader) simple(ctx context.Context, f io.ReaderAt, parentID, name string, size int64) (*UploadResult, error) {
	res := &UploadResult{Size: size}

	err := u.withRetry(ctx, name, &res.Attempts, func(ctx context.Context) error {
		body := u.cfg.Bandwidth.WrapReader(ctx, io.NewSectionReader(f, 0, size))

		item, err := u.api.SimpleUpload(ctx, u.drive, parentID, name, body, size)
		if err != nil {
			return err
		}

		res.Item = item

		return nil
	})
	if err != nil {
		return nil, uploadError(name, err)
	}

	return res, nil
}

func (u *Uploader) chunked(
	ctx context.Context, f io.ReaderAt, parentID, name string, size int64, mtime time.Time,
) (*UploadResult, error) {
	res := &UploadResult{Size: size, Chunked: true}

	var session *graph.UploadSession

	err := u.withRetry(ctx, name, &res.Attempts, func(ctx context.Context) error {
		s, err := u.api.CreateUploadSession(ctx, u.drive, parentID, name, size, mtime)
		if err != nil {
			return err
		}

		session = s

		return nil
	})
	if err != nil {
		return nil, uploadError(name, err)
	}

	for offset := int64(0); offset < size; offset += u.cfg.ChunkSize {
		length := min(u.cfg.ChunkSize, size-offset)

		err := u.withRetry(ctx, name, &res.Attempts, func(ctx context.Context) error {
			chunk := u.cfg.Bandwidth.WrapReader(ctx, io.NewSectionReader(f, offset, length))

			item, err := u.api.UploadChunk(ctx, session, chunk, offset, length, size)
			if err != nil {
				return err
			}

			if item != nil {
				res.Item = item
			}

			return nil
		})
		if err != nil {
			u.cancelSession(ctx, session, name)
			return nil, uploadError(name, err)
		}
	}

	if res.Item == nil {
		u.cancelSession(ctx, session, name)
		return nil, fmt.Errorf("%w: %s: session ended without a final item", ErrUpload, name)
	}

	return res, nil
}

// withRetry runs fn until it succeeds, fails permanently, or the retry
// budget runs out. attempts counts every call to fn.
func (u *Uploader) withRetry(ctx context.Context, name string, attempts *int, fn func(context.Context) error) error {
	return retry.Do(ctx, u.cfg.Retry.Backoff(), func(ctx context.Context) error {
		*attempts++

		err := fn(ctx)
		if err == nil || !graph.IsTransient(err) || ctx.Err() != nil {
			return err
		}

		u.logger.Warn("upload attempt failed",
			slog.String("name", name),
			slog.Int("attempt", *attempts),
			slog.String("error", err.Error()),
		)

		var ge *graph.GraphError
		if errors.As(err, &ge) && ge.RetryAfter > 0 {
			if sleepErr := u.sleep(ctx, ge.RetryAfter); sleepErr != nil {
				return sleepErr
			}
		}

		return retry.RetryableError(err)
	})
}

// cancelSession discards a partial upload. It runs even when ctx is
// already canceled and never fails the caller.
func (u *Uploader) cancelSession(ctx context.Context, session *graph.UploadSession, name string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelSessionTimeout)
	defer cancel()

	if err := u.api.CancelUploadSession(ctx, session); err != nil {
		u.logger.Warn("could not cancel upload session",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
	}
}

// verify compares the local QuickXorHash with the remote one. SharePoint
// may rewrite Office documents after upload, so a mismatch only warns.
func (u *Uploader) verify(localPath string, item *graph.Item) bool {
	if item == nil || item.QuickXorHash == "" {
		u.logger.Debug("remote reported no hash, skipping verification", slog.String("path", localPath))
		return false
	}

	local, err := localQuickXorHash(u.fs, localPath)
	if err != nil {
		u.logger.Warn("could not hash local file", slog.String("path", localPath), slog.String("error", err.Error()))
		return false
	}

	if local != item.QuickXorHash {
		u.logger.Warn("hash mismatch after upload",
			slog.String("path", localPath),
			slog.String("local", local),
			slog.String("remote", item.QuickXorHash),
		)

		return false
	}

	return true
}

func uploadError(name string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUpload, name, err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
