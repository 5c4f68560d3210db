// Package config loads sharepoint-sync settings through a four-layer
// override chain: built-in defaults, then a TOML file with flat keys, then
// environment variables (including GitHub Action "INPUT_" forms), then CLI
// flags. The result is validated as a whole and returned as a Resolved
// value with sizes and durations already parsed.
package config

import "time"

// Config mirrors the TOML file. Embedded sections flatten into top-level
// keys, so the file has no tables.
type Config struct {
	TargetConfig
	TransferConfig
	LoggingConfig
	NetworkConfig
}

// TargetConfig says what to sync where, and with which app registration.
type TargetConfig struct {
	TenantID     string `toml:"tenant_id"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	TokenURL     string `toml:"token_url"`
	SiteID       string `toml:"site_id"`
	DriveID      string `toml:"drive_id"`
	BaseFolder   string `toml:"base_folder"`
	LocalDir     string `toml:"local_dir"`
	IgnoreFile   string `toml:"ignore_file"`
	HistoryDB    string `toml:"history_db"`
}

// TransferConfig controls upload strategy, retry and throttling.
// chunk_size must be a multiple of 320 KiB per the upload session API.
type TransferConfig struct {
	SimpleUploadMax string `toml:"simple_upload_max"`
	ChunkSize       string `toml:"chunk_size"`
	MaxRetries      int    `toml:"max_retries"`
	RetryBaseDelay  string `toml:"retry_base_delay"`
	BandwidthLimit  string `toml:"bandwidth_limit"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	LogLevel         string `toml:"log_level"`
	LogFormat        string `toml:"log_format"`
	LogFile          string `toml:"log_file"`
	LogRetentionDays int    `toml:"log_retention_days"`
}

// NetworkConfig controls HTTP client behavior.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
	UserAgent      string `toml:"user_agent"`
}

// Resolved is the fully merged configuration with every string value
// parsed. Paths are absolute with "~" expanded.
type Resolved struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	TokenURL     string
	SiteID       string
	DriveID      string
	BaseFolder   string
	LocalDir     string
	IgnoreFile   string
	HistoryDB    string

	SimpleUploadMax int64
	ChunkSize       int64
	MaxRetries      int
	RetryBaseDelay  time.Duration
	BandwidthLimit  int64 // bytes per second, 0 = unlimited

	LogLevel         string
	LogFormat        string
	LogFile          string
	LogRetentionDays int

	ConnectTimeout time.Duration
	DataTimeout    time.Duration
	UserAgent      string

	DryRun     bool
	ConfigPath string
}
