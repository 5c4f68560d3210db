package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/tonimelisma/sharepoint-sync/internal/graph"
)

const (
	minChunkSize    = graph.ChunkAlignment
	maxChunkSize    = 60 * mebibyte
	maxRetriesLimit = 10
)

var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"auto": true, "text": true, "json": true}
)

// Validate checks the raw values of cfg and returns every problem found,
// joined, rather than stopping at the first.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateTransfer(&cfg.TransferConfig)...)
	errs = append(errs, validateLogging(&cfg.LoggingConfig)...)
	errs = append(errs, validateNetwork(&cfg.NetworkConfig)...)

	return errors.Join(errs...)
}

func validateTransfer(t *TransferConfig) []error {
	var errs []error

	if n, err := ParseSize(t.SimpleUploadMax); err != nil {
		errs = append(errs, fmt.Errorf("simple_upload_max: %w", err))
	} else if n <= 0 || n > graph.SimpleUploadLimit {
		errs = append(errs, fmt.Errorf("simple_upload_max: must be between 1 byte and 250MiB, got %q", t.SimpleUploadMax))
	}

	if n, err := ParseSize(t.ChunkSize); err != nil {
		errs = append(errs, fmt.Errorf("chunk_size: %w", err))
	} else if n < minChunkSize || n > maxChunkSize || n%graph.ChunkAlignment != 0 {
		errs = append(errs, fmt.Errorf("chunk_size: must be a multiple of 320KiB between 320KiB and 60MiB, got %q", t.ChunkSize))
	}

	if t.MaxRetries < 0 || t.MaxRetries > maxRetriesLimit {
		errs = append(errs, fmt.Errorf("max_retries: must be between 0 and %d, got %d", maxRetriesLimit, t.MaxRetries))
	}

	if err := validatePositiveDuration("retry_base_delay", t.RetryBaseDelay); err != nil {
		errs = append(errs, err)
	}

	if _, err := ParseRate(t.BandwidthLimit); err != nil {
		errs = append(errs, fmt.Errorf("bandwidth_limit: %w", err))
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	if l.LogRetentionDays < 1 {
		errs = append(errs, fmt.Errorf("log_retention_days: must be >= 1, got %d", l.LogRetentionDays))
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	if err := validatePositiveDuration("connect_timeout", n.ConnectTimeout); err != nil {
		errs = append(errs, err)
	}

	if err := validatePositiveDuration("data_timeout", n.DataTimeout); err != nil {
		errs = append(errs, err)
	}

	return errs
}

func validatePositiveDuration(key, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}

	if d <= 0 {
		return fmt.Errorf("%s: must be positive, got %q", key, value)
	}

	return nil
}

// ValidateResolved checks the merged result: credentials and target are
// required for a real run, and the local directory must exist.
func ValidateResolved(r *Resolved) error {
	var errs []error

	if !r.DryRun {
		required := []struct{ name, value string }{
			{"tenant_id", r.TenantID},
			{"client_id", r.ClientID},
			{"client_secret", r.ClientSecret},
			{"site_id", r.SiteID},
			{"drive_id", r.DriveID},
		}

		for _, f := range required {
			if f.value == "" {
				errs = append(errs, fmt.Errorf("%s is required", f.name))
			}
		}
	}

	info, err := os.Stat(r.LocalDir)

	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("local_dir: %w", err))
	case !info.IsDir():
		errs = append(errs, fmt.Errorf("local_dir: %s is not a directory", r.LocalDir))
	}

	return errors.Join(errs...)
}
