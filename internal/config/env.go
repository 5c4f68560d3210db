package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Environment variable names. Each setting accepts a plain name and the
// GitHub Action input form; the plain name wins when both are set.
const (
	EnvConfig    = "SHAREPOINT_SYNC_CONFIG"
	EnvTokenURL  = "SHAREPOINT_SYNC_TOKEN_URL"
	EnvHistoryDB = "SHAREPOINT_SYNC_HISTORY_DB"

	EnvTenantID     = "TENANT_ID"
	EnvClientID     = "CLIENT_ID"
	EnvClientSecret = "CLIENT_SECRET"
	EnvSiteID       = "SITE_ID"
	EnvDriveID      = "DRIVE_ID"
	EnvLocalDir     = "LOCAL_DIRECTORY_PATH"
	EnvBaseFolder   = "SHAREPOINT_BASE_FOLDER"

	EnvInputTenantID     = "INPUT_TENANT-ID"
	EnvInputClientID     = "INPUT_CLIENT-ID"
	EnvInputClientSecret = "INPUT_CLIENT-SECRET"
	EnvInputSiteID       = "INPUT_SITE-ID"
	EnvInputDriveID      = "INPUT_DRIVE-ID"
	EnvInputLocalDir     = "INPUT_LOCAL-DIRECTORY"
	EnvInputBaseFolder   = "INPUT_SHAREPOINT-FOLDER"
)

// EnvOverrides holds values found in the environment. Empty means unset.
type EnvOverrides struct {
	ConfigPath   string
	TokenURL     string
	HistoryDB    string
	TenantID     string
	ClientID     string
	ClientSecret string
	SiteID       string
	DriveID      string
	LocalDir     string
	BaseFolder   string
}

// ReadEnvOverrides reads the process environment.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:   os.Getenv(EnvConfig),
		TokenURL:     os.Getenv(EnvTokenURL),
		HistoryDB:    os.Getenv(EnvHistoryDB),
		TenantID:     firstEnv(EnvTenantID, EnvInputTenantID),
		ClientID:     firstEnv(EnvClientID, EnvInputClientID),
		ClientSecret: firstEnv(EnvClientSecret, EnvInputClientSecret),
		SiteID:       firstEnv(EnvSiteID, EnvInputSiteID),
		DriveID:      firstEnv(EnvDriveID, EnvInputDriveID),
		LocalDir:     firstEnv(EnvLocalDir, EnvInputLocalDir),
		BaseFolder:   firstEnv(EnvBaseFolder, EnvInputBaseFolder),
	}
}

// LoadEnvFile merges a dotenv file into the process environment without
// overriding variables that are already set.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading env file %s: %w", path, err)
	}

	return nil
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}

	return ""
}

// apply copies every non-empty override onto cfg.
func (e EnvOverrides) apply(cfg *Config) {
	setIf(&cfg.TokenURL, e.TokenURL)
	setIf(&cfg.HistoryDB, e.HistoryDB)
	setIf(&cfg.TenantID, e.TenantID)
	setIf(&cfg.ClientID, e.ClientID)
	setIf(&cfg.ClientSecret, e.ClientSecret)
	setIf(&cfg.SiteID, e.SiteID)
	setIf(&cfg.DriveID, e.DriveID)
	setIf(&cfg.LocalDir, e.LocalDir)
	setIf(&cfg.BaseFolder, e.BaseFolder)
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
