package sync

import (
	"context"
	"io"
	"time"

	"github.com/tonimelisma/sharepoint-sync/internal/graph"
)

// FolderAPI is the slice of the Graph client the folder ensurer uses.
// Satisfied by *graph.Client.
type FolderAPI interface {
	GetChild(ctx context.Context, drive graph.DriveRef, parentID, name string) (*graph.Item, error)
	CreateFolder(ctx context.Context, drive graph.DriveRef, parentID, name string) (*graph.Item, error)
}

// DriveAPI fetches the target drive for the preflight check.
// Satisfied by *graph.Client.
type DriveAPI interface {
	Drive(ctx context.Context, drive graph.DriveRef) (*graph.Drive, error)
}

// MetaAPI groups the metadata calls made with the short-timeout client.
type MetaAPI interface {
	FolderAPI
	DriveAPI
}

// TransferAPI is the slice of the Graph client the uploader uses. Each
// method makes a single attempt; the uploader owns retry.
// Satisfied by *graph.Client.
type TransferAPI interface {
	SimpleUpload(ctx context.Context, drive graph.DriveRef, parentID, name string, r io.Reader, size int64) (*graph.Item, error)
	CreateUploadSession(ctx context.Context, drive graph.DriveRef, parentID, name string, size int64, mtime time.Time) (*graph.UploadSession, error)
	UploadChunk(ctx context.Context, session *graph.UploadSession, chunk io.Reader, offset, length, total int64) (*graph.Item, error)
	CancelUploadSession(ctx context.Context, session *graph.UploadSession) error
}

// Compile-time checks.
var (
	_ MetaAPI     = (*graph.Client)(nil)
	_ TransferAPI = (*graph.Client)(nil)
)
