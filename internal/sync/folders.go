package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tonimelisma/sharepoint-sync/internal/graph"
)

const rootItemID = "root"

// FolderEnsurer resolves remote folder paths to item IDs, creating missing
// folders on the way. Resolved IDs are cached for the life of the ensurer,
// so each folder is looked up or created at most once per run. Not safe
// for concurrent use; the engine drives it from a single goroutine.
type FolderEnsurer struct {
	api    FolderAPI
	drive  graph.DriveRef
	logger *slog.Logger

	// cache maps case-folded folder paths to item IDs. SharePoint names
	// are case-insensitive within a parent.
	cache   map[string]string
	created int
}

// NewFolderEnsurer returns an ensurer whose cache holds only the drive root.
func NewFolderEnsurer(api FolderAPI, drive graph.DriveRef, logger *slog.Logger) *FolderEnsurer {
	return &FolderEnsurer{
		api:    api,
		drive:  drive,
		logger: logger,
		cache:  map[string]string{"": rootItemID},
	}
}

// Ensure returns the item ID of remotePath, creating every missing folder
// from the root down. Failures are *FolderError values naming the first
// prefix that could not be resolved.
func (f *FolderEnsurer) Ensure(ctx context.Context, remotePath string) (string, error) {
	parentID := f.cache[""]
	prefix := ""

	for _, seg := range cleanSegments(remotePath) {
		prefix = joinRemote(prefix, seg)
		key := folderKey(prefix)

		if id, ok := f.cache[key]; ok {
			parentID = id
			continue
		}

		id, err := f.resolve(ctx, parentID, seg)
		if err != nil {
			return "", &FolderError{Path: prefix, Err: err}
		}

		f.cache[key] = id
		parentID = id
	}

	return parentID, nil
}

// Created returns how many folders this ensurer has created.
func (f *FolderEnsurer) Created() int {
	return f.created
}

// resolve finds or creates the folder called name under parentID.
func (f *FolderEnsurer) resolve(ctx context.Context, parentID, name string) (string, error) {
	item, err := f.api.GetChild(ctx, f.drive, parentID, name)
	if err == nil {
		return folderID(item)
	}

	if !errors.Is(err, graph.ErrNotFound) {
		return "", err
	}

	item, err = f.api.CreateFolder(ctx, f.drive, parentID, name)
	if err == nil {
		f.created++
		f.logger.Info("created remote folder",
			slog.String("name", name),
			slog.String("item_id", item.ID),
		)

		return item.ID, nil
	}

	if !errors.Is(err, graph.ErrConflict) {
		return "", err
	}

	// Someone else created it between our lookup and create.
	f.logger.Debug("folder appeared concurrently, reusing", slog.String("name", name))

	item, err = f.api.GetChild(ctx, f.drive, parentID, name)
	if err != nil {
		return "", err
	}

	return folderID(item)
}

func folderID(item *graph.Item) (string, error) {
	if !item.IsFolder {
		return "", fmt.Errorf("%q exists and is not a folder", item.Name)
	}

	return item.ID, nil
}

func folderKey(p string) string {
	return strings.ToLower(p)
}
