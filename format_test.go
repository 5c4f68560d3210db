package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/sharepoint-sync/internal/history"
	"github.com/tonimelisma/sharepoint-sync/internal/sync"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		name  string
		bytes int64
		want  string
	}{
		{"zero", 0, "0 B"},
		{"bytes", 512, "512 B"},
		{"kibibytes", 1536, "1.5 KiB"},
		{"mebibytes", 5242880, "5.0 MiB"},
		{"gibibytes", 1610612736, "1.5 GiB"},
		{"negative clamps", -1, "0 B"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatSize(tt.bytes))
		})
	}
}

func TestFormatAge(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "3 minutes ago", formatAge(now.Add(-3*time.Minute), now))
	assert.Equal(t, "2 hours ago", formatAge(now.Add(-2*time.Hour), now))
	assert.Equal(t, "-", formatAge(time.Time{}, now))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0s", formatDuration(0))
	assert.Equal(t, "250ms", formatDuration(250*time.Millisecond+300*time.Microsecond))
	assert.Equal(t, "1m5s", formatDuration(65*time.Second+400*time.Millisecond))
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer

	printTable(&buf, []string{"NAME", "SIZE", "NOTE"}, [][]string{
		{"file.txt", "1.2 MiB", "ok"},
		{"a", "0 B", "x"},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "NAME      SIZE     NOTE", lines[0])
	assert.Equal(t, "file.txt  1.2 MiB  ok", lines[1])
	assert.Equal(t, "a         0 B      x", lines[2])
}

func sampleReport() *sync.Report {
	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	return &sync.Report{
		RunID:          "run-1",
		StartedAt:      start,
		FinishedAt:     start.Add(3 * time.Second),
		Uploaded:       2,
		FailedCount:    1,
		Bytes:          2048,
		FoldersCreated: 1,
		Ignored:        4,
		Files: []sync.FileOutcome{
			{RelPath: "a.txt", RemotePath: "B/a.txt", Size: 1024, Outcome: sync.OutcomeUploaded, Attempts: 1},
			{RelPath: "big.bin", RemotePath: "B/big.bin", Size: 1024, Outcome: sync.OutcomeUploaded, Chunked: true, Attempts: 2},
			{RelPath: "bad.txt", RemotePath: "B/bad.txt", Outcome: sync.OutcomeFailed, Kind: "upload", Err: errors.New("403 forbidden")},
		},
	}
}

func TestWriteReport_Text(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, writeReport(&buf, sampleReport(), nil, false, false))

	out := buf.String()
	assert.Contains(t, out, "Uploaded 2 files (2.0 KiB) in 3s, 1 folder created, 4 ignored")
	assert.Contains(t, out, "Failed 1 file:")
	assert.Contains(t, out, "bad.txt [upload]: 403 forbidden")
	assert.NotContains(t, out, "aborted")
}

func TestWriteReport_QuietStillListsFailures(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, writeReport(&buf, sampleReport(), nil, false, true))

	out := buf.String()
	assert.NotContains(t, out, "Uploaded")
	assert.Contains(t, out, "bad.txt")
}

func TestWriteReport_Aborted(t *testing.T) {
	var buf bytes.Buffer

	r := &sync.Report{RunID: "r"}
	require.NoError(t, writeReport(&buf, r, fmt.Errorf("%w: token rejected", sync.ErrAuth), false, false))

	assert.Contains(t, buf.String(), "Run aborted: authentication failed: token rejected")
}

func TestWriteReport_JSON(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, writeReport(&buf, sampleReport(), nil, true, false))

	var got reportJSON
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))

	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, int64(3000), got.DurationMS)
	assert.Equal(t, 2, got.Uploaded)
	assert.Equal(t, 1, got.Failed)
	require.Len(t, got.Files, 3)
	assert.True(t, got.Files[1].Chunked)
	assert.Equal(t, "upload", got.Files[2].Kind)
	assert.Equal(t, "403 forbidden", got.Files[2].Error)
	assert.Empty(t, got.Error)
}

func TestWriteReport_DryRunPlan(t *testing.T) {
	var buf bytes.Buffer

	r := &sync.Report{
		RunID:   "r",
		DryRun:  true,
		Planned: []string{"B", "B/docs"},
		Ignored: 1,
		Files: []sync.FileOutcome{
			{RelPath: "a.txt", RemotePath: "B/a.txt", Size: 10, Outcome: sync.OutcomePlanned},
			{RelPath: "docs/b.txt", RemotePath: "B/docs/b.txt", Size: 20, Outcome: sync.OutcomePlanned},
		},
	}

	require.NoError(t, writeReport(&buf, r, nil, false, false))

	out := buf.String()
	assert.Contains(t, out, "docs/b.txt -> B/docs/b.txt (20 B)")
	assert.Contains(t, out, "Dry run: would upload 2 files (30 B) into 2 folders, 1 ignored")
}

func TestWriteReport_NilReport(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, writeReport(&buf, nil, nil, true, false))
	assert.Zero(t, buf.Len())
}

func TestPrintRuns(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	var buf bytes.Buffer

	printRuns(&buf, []history.RunRecord{{
		ID:         "run-9",
		StartedAt:  now.Add(-10 * time.Minute),
		FinishedAt: now.Add(-10*time.Minute + 42*time.Second),
		Status:     history.StatusFailed,
		Uploaded:   3,
		Failed:     1,
		Bytes:      3 << 20,
		Target:     "s/d:/B",
	}}, now)

	out := buf.String()
	assert.Contains(t, out, "RUN")
	assert.Contains(t, out, "run-9")
	assert.Contains(t, out, "10 minutes ago")
	assert.Contains(t, out, "42s")
	assert.Contains(t, out, "3.0 MiB")
	assert.Contains(t, out, "s/d:/B")
}

func TestPrintFiles(t *testing.T) {
	var buf bytes.Buffer

	printFiles(&buf, []history.FileRecord{
		{Path: "a.txt", RemotePath: "B/a.txt", Size: 5, Outcome: "uploaded"},
		{Path: "b.txt", RemotePath: "B/b.txt", Outcome: "failed", ErrorKind: "upload", Message: "boom"},
	})

	out := buf.String()
	assert.Contains(t, out, "B/a.txt")
	assert.Contains(t, out, "upload: boom")
}
