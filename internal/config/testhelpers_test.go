package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

var allEnvVars = []string{
	EnvConfig, EnvTokenURL, EnvHistoryDB,
	EnvTenantID, EnvClientID, EnvClientSecret, EnvSiteID, EnvDriveID, EnvLocalDir, EnvBaseFolder,
	EnvInputTenantID, EnvInputClientID, EnvInputClientSecret, EnvInputSiteID, EnvInputDriveID,
	EnvInputLocalDir, EnvInputBaseFolder,
}

// clearEnv blanks every variable the package reads so the host
// environment cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()

	for _, name := range allEnvVars {
		t.Setenv(name, "")
	}
}

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func strPtr(s string) *string {
	return &s
}
