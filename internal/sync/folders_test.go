package sync

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/sharepoint-sync/internal/graph"
)

func TestEnsure_CreatesMissingChain(t *testing.T) {
	fg := newFakeGraph(t)
	fe := NewFolderEnsurer(fg.client(t), testDriveRef, testLogger(t))

	id, err := fe.Ensure(context.Background(), "Proj/Latest/docs")
	require.NoError(t, err)

	docs := fg.lookup("Proj/Latest/docs")
	require.NotNil(t, docs)
	assert.Equal(t, docs.id, id)
	assert.True(t, docs.folder)
	assert.Equal(t, 3, fe.Created())
}

func TestEnsure_SecondCallMakesNoRequests(t *testing.T) {
	fg := newFakeGraph(t)
	fe := NewFolderEnsurer(fg.client(t), testDriveRef, testLogger(t))
	ctx := context.Background()

	first, err := fe.Ensure(ctx, "Proj/Latest")
	require.NoError(t, err)

	before := len(fg.requestLog())

	second, err := fe.Ensure(ctx, "Proj/Latest")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Case differences hit the same cache entry.
	third, err := fe.Ensure(ctx, "proj/LATEST")
	require.NoError(t, err)
	assert.Equal(t, first, third)

	assert.Len(t, fg.requestLog(), before)
}

func TestEnsure_ReusesExistingFolder(t *testing.T) {
	fg := newFakeGraph(t)
	existing := fg.putLocked("root", "Proj", true, nil)

	fe := NewFolderEnsurer(fg.client(t), testDriveRef, testLogger(t))

	id, err := fe.Ensure(context.Background(), "Proj")
	require.NoError(t, err)
	assert.Equal(t, existing.id, id)
	assert.Zero(t, fe.Created())
	assert.Zero(t, fg.countRequests("POST "))
}

func TestEnsure_RootIsFree(t *testing.T) {
	fg := newFakeGraph(t)
	fe := NewFolderEnsurer(fg.client(t), testDriveRef, testLogger(t))

	id, err := fe.Ensure(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "root", id)
	assert.Empty(t, fg.requestLog())
}

func TestEnsure_ConflictOnCreateReusesFolder(t *testing.T) {
	fg := newFakeGraph(t)
	fg.createConflict["Proj"] = true

	fe := NewFolderEnsurer(fg.client(t), testDriveRef, testLogger(t))

	id, err := fe.Ensure(context.Background(), "Proj")
	require.NoError(t, err)

	proj := fg.lookup("Proj")
	require.NotNil(t, proj)
	assert.Equal(t, proj.id, id)
	assert.Zero(t, fe.Created())
}

func TestEnsure_FileInTheWay(t *testing.T) {
	fg := newFakeGraph(t)
	fg.putLocked("root", "Proj", false, []byte("not a folder"))

	fe := NewFolderEnsurer(fg.client(t), testDriveRef, testLogger(t))

	_, err := fe.Ensure(context.Background(), "Proj/docs")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRemote)

	var fe2 *FolderError
	require.True(t, errors.As(err, &fe2))
	assert.Equal(t, "Proj", fe2.Path)
}

func TestEnsure_ForbiddenIsRemoteError(t *testing.T) {
	fg := newFakeGraph(t)
	fg.failNext["Locked"] = []int{http.StatusForbidden}

	fe := NewFolderEnsurer(fg.client(t), testDriveRef, testLogger(t))

	_, err := fe.Ensure(context.Background(), "Locked/sub")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRemote)
	assert.ErrorIs(t, err, graph.ErrForbidden)
	assert.Equal(t, "remote", Kind(err))
}

func TestEnsure_TransientLookupRetried(t *testing.T) {
	fg := newFakeGraph(t)
	fg.failNext["Proj"] = []int{http.StatusServiceUnavailable, http.StatusBadGateway}

	fe := NewFolderEnsurer(fg.client(t), testDriveRef, testLogger(t))

	_, err := fe.Ensure(context.Background(), "Proj")
	require.NoError(t, err)
	assert.NotNil(t, fg.lookup("Proj"))
}
