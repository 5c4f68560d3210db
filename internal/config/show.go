package config

import (
	"fmt"
	"io"
)

const redacted = "********"

// RenderEffective writes the resolved configuration as TOML-like text to
// w. The client secret is masked. This powers "config show", giving users
// visibility into the values that survive all four override layers.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", r.ConfigPath)

	renderTarget(ew, r)
	renderTransfer(ew, r)
	renderLogging(ew, r)
	renderNetwork(ew, r)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops, so callers can chain
// printf calls without checking each one individually.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func renderTarget(ew *errWriter, r *Resolved) {
	secret := ""
	if r.ClientSecret != "" {
		secret = redacted
	}

	ew.printf("# target\n")
	ew.printf("tenant_id     = %q\n", r.TenantID)
	ew.printf("client_id     = %q\n", r.ClientID)
	ew.printf("client_secret = %q\n", secret)

	if r.TokenURL != "" {
		ew.printf("token_url     = %q\n", r.TokenURL)
	}

	ew.printf("site_id       = %q\n", r.SiteID)
	ew.printf("drive_id      = %q\n", r.DriveID)
	ew.printf("base_folder   = %q\n", r.BaseFolder)
	ew.printf("local_dir     = %q\n", r.LocalDir)
	ew.printf("ignore_file   = %q\n", r.IgnoreFile)
	ew.printf("history_db    = %q\n", r.HistoryDB)
	ew.printf("\n")
}

func renderTransfer(ew *errWriter, r *Resolved) {
	bandwidth := "0"
	if r.BandwidthLimit > 0 {
		bandwidth = fmt.Sprintf("%d/s", r.BandwidthLimit)
	}

	ew.printf("# transfer\n")
	ew.printf("simple_upload_max = %q\n", fmt.Sprintf("%d", r.SimpleUploadMax))
	ew.printf("chunk_size        = %q\n", fmt.Sprintf("%d", r.ChunkSize))
	ew.printf("max_retries       = %d\n", r.MaxRetries)
	ew.printf("retry_base_delay  = %q\n", r.RetryBaseDelay.String())
	ew.printf("bandwidth_limit   = %q\n", bandwidth)
	ew.printf("\n")
}

func renderLogging(ew *errWriter, r *Resolved) {
	ew.printf("# logging\n")
	ew.printf("log_level          = %q\n", r.LogLevel)
	ew.printf("log_format         = %q\n", r.LogFormat)
	ew.printf("log_file           = %q\n", r.LogFile)
	ew.printf("log_retention_days = %d\n", r.LogRetentionDays)
	ew.printf("\n")
}

func renderNetwork(ew *errWriter, r *Resolved) {
	ew.printf("# network\n")
	ew.printf("connect_timeout = %q\n", r.ConnectTimeout.String())
	ew.printf("data_timeout    = %q\n", r.DataTimeout.String())
	ew.printf("user_agent      = %q\n", r.UserAgent)
}
