package config

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResolved() *Resolved {
	return &Resolved{
		TenantID:         "tenant",
		ClientID:         "client",
		ClientSecret:     "s3cr3t",
		SiteID:           "contoso.sharepoint.com,1,2",
		DriveID:          "b!drive",
		BaseFolder:       "Proj/Latest",
		LocalDir:         "/src",
		IgnoreFile:       "/src/.gitignore",
		SimpleUploadMax:  4 << 20,
		ChunkSize:        10 << 20,
		MaxRetries:       3,
		RetryBaseDelay:   time.Second,
		BandwidthLimit:   1_000_000,
		LogLevel:         "info",
		LogFormat:        "auto",
		LogRetentionDays: 30,
		ConnectTimeout:   10 * time.Second,
		DataTimeout:      time.Minute,
		UserAgent:        "sharepoint-sync/dev",
		ConfigPath:       "/etc/sharepoint-sync/config.toml",
	}
}

func TestRenderEffective(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderEffective(sampleResolved(), &buf))

	out := buf.String()
	assert.Contains(t, out, "/etc/sharepoint-sync/config.toml")
	assert.Contains(t, out, `base_folder   = "Proj/Latest"`)
	assert.Contains(t, out, `chunk_size        = "10485760"`)
	assert.Contains(t, out, `bandwidth_limit   = "1000000/s"`)
	assert.Contains(t, out, `data_timeout    = "1m0s"`)
	assert.Contains(t, out, "# network")
	assert.NotContains(t, out, "token_url", "unset optional keys are omitted")
}

func TestRenderEffective_MasksSecret(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderEffective(sampleResolved(), &buf))

	assert.NotContains(t, buf.String(), "s3cr3t")
	assert.Contains(t, buf.String(), `client_secret = "********"`)

	r := sampleResolved()
	r.ClientSecret = ""
	buf.Reset()
	require.NoError(t, RenderEffective(r, &buf))
	assert.Contains(t, buf.String(), `client_secret = ""`)
}

func TestRenderEffective_RoundTripsThroughLoad(t *testing.T) {
	clearEnv(t)

	r := sampleResolved()
	r.ClientSecret = ""

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(r, &buf))

	cfg, err := Load(writeTestConfig(t, buf.String()))
	require.NoError(t, err)
	assert.Equal(t, "Proj/Latest", cfg.BaseFolder)
	assert.Equal(t, "1000000/s", cfg.BandwidthLimit)
}

// failingWriter always returns an error on Write.
type failingWriter struct{}

var errWriteFailed = errors.New("write failed")

func (failingWriter) Write([]byte) (int, error) {
	return 0, errWriteFailed
}

func TestRenderEffective_WriteError(t *testing.T) {
	err := RenderEffective(sampleResolved(), failingWriter{})
	assert.ErrorIs(t, err, errWriteFailed)
}
