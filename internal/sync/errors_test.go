package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/sharepoint-sync/internal/graph"
)

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("%w: x", ErrAuth), "auth"},
		{fmt.Errorf("wrapped: %w", graph.ErrAuthFailed), "auth"},
		{fmt.Errorf("%w: x", ErrLocalIO), "local_io"},
		{&FolderError{Path: "a", Err: graph.ErrForbidden}, "remote"},
		{fmt.Errorf("%w: x", ErrUpload), "upload"},
		{context.Canceled, "canceled"},
		{errors.New("other"), "unknown"},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, Kind(tc.err), "%v", tc.err)
	}
}

func TestFolderError_MatchesCause(t *testing.T) {
	err := fmt.Errorf("ensure: %w", &FolderError{Path: "A/B", Err: graph.ErrConflict})

	assert.ErrorIs(t, err, ErrRemote)
	assert.ErrorIs(t, err, graph.ErrConflict)
	assert.Contains(t, err.Error(), `"A/B"`)
}

func TestAbortError(t *testing.T) {
	ctx := context.Background()

	err := abortError(ctx, fmt.Errorf("upload: %w", graph.ErrAuthFailed))
	assert.ErrorIs(t, err, ErrAuth)

	canceled, cancel := context.WithCancel(ctx)
	cancel()

	err = abortError(canceled, errors.New("request failed"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, fatal(canceled, errors.New("x")))
	assert.False(t, fatal(ctx, ErrUpload))
}

func TestLocalQuickXorHash(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/empty", nil, 0o644))

	got, err := localQuickXorHash(fs, "/empty")
	require.NoError(t, err)
	assert.Equal(t, "AAAAAAAAAAAAAAAAAAAAAAAAAAA=", got)

	_, err = localQuickXorHash(fs, "/missing")
	assert.Error(t, err)
}
