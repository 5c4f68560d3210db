package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/tonimelisma/sharepoint-sync/internal/graph"
)

// Error kinds. Every per-file failure in a Report matches exactly one of
// these with errors.Is.
var (
	ErrAuth    = errors.New("authentication failed")
	ErrRemote  = errors.New("remote folder error")
	ErrUpload  = errors.New("upload failed")
	ErrLocalIO = errors.New("local I/O error")
)

// FolderError reports which remote folder could not be resolved or
// created. It matches ErrRemote and the underlying cause.
type FolderError struct {
	Path string
	Err  error
}

func (e *FolderError) Error() string {
	return fmt.Sprintf("remote folder %q: %v", e.Path, e.Err)
}

func (e *FolderError) Unwrap() []error {
	return []error{ErrRemote, e.Err}
}

// Kind returns the short label of err's kind for logs and history rows.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuth), errors.Is(err, graph.ErrAuthFailed):
		return "auth"
	case errors.Is(err, ErrLocalIO):
		return "local_io"
	case errors.Is(err, ErrRemote):
		return "remote"
	case errors.Is(err, ErrUpload):
		return "upload"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "unknown"
	}
}

// fatal reports whether err must stop the whole run rather than just the
// current file.
func fatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, graph.ErrAuthFailed) || errors.Is(err, ErrAuth)
}

// abortError converts a fatal error into what Run returns.
func abortError(ctx context.Context, err error) error {
	if errors.Is(err, ErrAuth) {
		return err
	}

	if errors.Is(err, graph.ErrAuthFailed) {
		return fmt.Errorf("%w: %w", ErrAuth, err)
	}

	if ctx.Err() != nil {
		return fmt.Errorf("sync canceled: %w", ctx.Err())
	}

	return err
}
