package sync

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/tonimelisma/sharepoint-sync/internal/ignore"
)

// LocalFile is an eligible regular file found by the walker.
type LocalFile struct {
	AbsPath string
	RelPath string // slash-separated, relative to the sync root
	Size    int64
	ModTime time.Time
}

// walkFunc receives each eligible file, or a non-nil walkErr for a path
// that could not be read. Returning an error stops the walk.
type walkFunc func(f LocalFile, walkErr error) error

// walker traverses a local tree depth-first in lexical order, pruning
// ignored directories.
type walker struct {
	fs      afero.Fs
	root    string
	matcher *ignore.Matcher
	logger  *slog.Logger
	ignored int
}

func newWalker(fsys afero.Fs, root string, matcher *ignore.Matcher, logger *slog.Logger) *walker {
	if matcher == nil {
		matcher = ignore.New()
	}

	return &walker{fs: fsys, root: root, matcher: matcher, logger: logger}
}

// Walk visits the whole tree under the root.
func (w *walker) Walk(fn walkFunc) error {
	return w.WalkDir(w.root, fn)
}

// WalkDir visits the subtree at dir, which must lie under the root.
func (w *walker) WalkDir(dir string, fn walkFunc) error {
	return afero.Walk(w.fs, dir, func(path string, info os.FileInfo, err error) error {
		rel, relErr := w.rel(path)
		if relErr != nil {
			return relErr
		}

		if err != nil {
			if rel == "" {
				return fmt.Errorf("%w: reading %s: %w", ErrLocalIO, path, err)
			}

			w.logger.Warn("cannot read local path", slog.String("path", rel), slog.String("error", err.Error()))

			return fn(LocalFile{AbsPath: path, RelPath: rel}, fmt.Errorf("%w: %w", ErrLocalIO, err))
		}

		if rel == "" {
			return nil
		}

		isDir := info.IsDir()
		if w.matcher.IsIgnored(rel, isDir) {
			w.logger.Debug("ignored", slog.String("path", rel), slog.Bool("dir", isDir))
			w.ignored++

			if isDir {
				return filepath.SkipDir
			}

			return nil
		}

		if isDir {
			return nil
		}

		if !info.Mode().IsRegular() {
			w.logger.Debug("skipping non-regular file", slog.String("path", rel), slog.String("mode", info.Mode().String()))
			return nil
		}

		return fn(LocalFile{AbsPath: path, RelPath: rel, Size: info.Size(), ModTime: info.ModTime()}, nil)
	})
}

// Stat resolves a root-relative path to a LocalFile. It reports ok=false
// when the path is ignored, missing, a directory, or not a regular file.
func (w *walker) Stat(rel string) (LocalFile, bool, error) {
	rel = filepath.ToSlash(filepath.Clean(rel))
	abs := filepath.Join(w.root, filepath.FromSlash(rel))

	info, err := w.fs.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return LocalFile{}, false, nil
		}

		return LocalFile{AbsPath: abs, RelPath: rel}, false, fmt.Errorf("%w: %w", ErrLocalIO, err)
	}

	if info.IsDir() || !info.Mode().IsRegular() || w.matcher.IsIgnored(rel, false) {
		return LocalFile{}, false, nil
	}

	return LocalFile{AbsPath: abs, RelPath: rel, Size: info.Size(), ModTime: info.ModTime()}, true, nil
}

// Ignored reports whether a root-relative path is excluded.
func (w *walker) Ignored(rel string, isDir bool) bool {
	return w.matcher.IsIgnored(filepath.ToSlash(rel), isDir)
}

func (w *walker) rel(path string) (string, error) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return "", fmt.Errorf("relativizing %s: %w", path, err)
	}

	if rel == "." {
		return "", nil
	}

	return filepath.ToSlash(rel), nil
}
