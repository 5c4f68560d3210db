package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// CLIOverrides holds flag values. Nil pointers were not given on the
// command line.
type CLIOverrides struct {
	ConfigPath string
	TenantID   *string
	ClientID   *string
	SiteID     *string
	DriveID    *string
	LocalDir   *string
	BaseFolder *string
	IgnoreFile *string
	HistoryDB  *string
	LogLevel   *string
	LogFormat  *string
	DryRun     bool
}

func (c CLIOverrides) apply(cfg *Config) {
	setPtr(&cfg.TenantID, c.TenantID)
	setPtr(&cfg.ClientID, c.ClientID)
	setPtr(&cfg.SiteID, c.SiteID)
	setPtr(&cfg.DriveID, c.DriveID)
	setPtr(&cfg.LocalDir, c.LocalDir)
	setPtr(&cfg.BaseFolder, c.BaseFolder)
	setPtr(&cfg.IgnoreFile, c.IgnoreFile)
	setPtr(&cfg.HistoryDB, c.HistoryDB)
	setPtr(&cfg.LogLevel, c.LogLevel)
	setPtr(&cfg.LogFormat, c.LogFormat)
}

func setPtr(dst, v *string) {
	if v != nil {
		*dst = *v
	}
}

// Load reads and parses a TOML config file and validates it. Unknown keys
// are fatal, with "did you mean?" suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve applies defaults, the config file, env and flags in that order
// and returns the validated result.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	env.apply(cfg)
	cli.apply(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	r, err := build(cfg)
	if err != nil {
		return nil, err
	}

	r.DryRun = cli.DryRun
	r.ConfigPath = cfgPath

	if err := ValidateResolved(r); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return r, nil
}

// build converts a validated Config into a Resolved. Parse errors cannot
// occur for validated input but are still propagated.
func build(cfg *Config) (*Resolved, error) {
	r := &Resolved{
		TenantID:         cfg.TenantID,
		ClientID:         cfg.ClientID,
		ClientSecret:     cfg.ClientSecret,
		TokenURL:         cfg.TokenURL,
		SiteID:           cfg.SiteID,
		DriveID:          cfg.DriveID,
		BaseFolder:       cfg.BaseFolder,
		MaxRetries:       cfg.MaxRetries,
		LogLevel:         cfg.LogLevel,
		LogFormat:        cfg.LogFormat,
		LogRetentionDays: cfg.LogRetentionDays,
		UserAgent:        cfg.UserAgent,
	}

	var err error

	if r.LocalDir, err = expandPath(cfg.LocalDir, ""); err != nil {
		return nil, fmt.Errorf("local_dir: %w", err)
	}

	if r.IgnoreFile, err = expandPath(cfg.IgnoreFile, r.LocalDir); err != nil {
		return nil, fmt.Errorf("ignore_file: %w", err)
	}

	if r.LogFile, err = expandPath(cfg.LogFile, ""); err != nil {
		return nil, fmt.Errorf("log_file: %w", err)
	}

	if r.HistoryDB, err = expandPath(cfg.HistoryDB, ""); err != nil {
		return nil, fmt.Errorf("history_db: %w", err)
	}

	sizes := []struct {
		dst *int64
		raw string
	}{
		{&r.SimpleUploadMax, cfg.SimpleUploadMax},
		{&r.ChunkSize, cfg.ChunkSize},
	}

	for _, s := range sizes {
		if *s.dst, err = ParseSize(s.raw); err != nil {
			return nil, err
		}
	}

	if r.BandwidthLimit, err = ParseRate(cfg.BandwidthLimit); err != nil {
		return nil, err
	}

	durations := []struct {
		dst *time.Duration
		raw string
	}{
		{&r.RetryBaseDelay, cfg.RetryBaseDelay},
		{&r.ConnectTimeout, cfg.ConnectTimeout},
		{&r.DataTimeout, cfg.DataTimeout},
	}

	for _, d := range durations {
		if *d.dst, err = time.ParseDuration(d.raw); err != nil {
			return nil, err
		}
	}

	return r, nil
}
