package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/mitchellh/go-homedir"
)

const (
	appName        = "sharepoint-sync"
	configFileName = "config.toml"
)

// DefaultConfigDir returns the per-user config directory. On Linux it
// respects XDG_CONFIG_HOME; macOS uses Application Support.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" && runtime.GOOS != "darwin" {
		return filepath.Join(xdg, appName)
	}

	home, err := homedir.Dir()
	if err != nil {
		return ""
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", appName)
	}

	return filepath.Join(home, ".config", appName)
}

// DefaultConfigPath is the config file used when neither --config nor
// SHAREPOINT_SYNC_CONFIG is given.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}

// expandPath expands a leading "~" and, when base is non-empty, resolves a
// relative result against base. Empty stays empty.
func expandPath(p, base string) (string, error) {
	if p == "" {
		return "", nil
	}

	expanded, err := homedir.Expand(p)
	if err != nil {
		return "", fmt.Errorf("expanding %q: %w", p, err)
	}

	if base != "" && !filepath.IsAbs(expanded) {
		expanded = filepath.Join(base, expanded)
	}

	return filepath.Abs(expanded)
}
