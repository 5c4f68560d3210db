package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tonimelisma/sharepoint-sync/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagEnvFile    string
	flagHistoryDB  string
	flagLogFormat  string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
var resolvedCfg *config.Resolved

// logSink is the rotating log file, if log_file is set. main closes it.
var logSink io.Closer

// credentialFreeCommands resolve config as if --dry-run were given, so they
// work without tenant, client or drive settings.
var credentialFreeCommands = map[string]bool{
	"sharepoint-sync history":     true,
	"sharepoint-sync config show": true,
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sharepoint-sync",
		Short:   "Upload a local directory to SharePoint",
		Long:    "Mirror a local directory tree into a SharePoint document library through Microsoft Graph.",
		Version: version,
		// Errors are printed once by main.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if flagEnvFile != "" {
				if err := config.LoadEnvFile(flagEnvFile); err != nil {
					return err
				}
			}

			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", "", "dotenv file loaded before reading the environment")
	cmd.PersistentFlags().StringVar(&flagHistoryDB, "history-db", "", "SQLite run history database")
	cmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "log format: auto, text or json")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the four-layer
// override chain. Only flags the user actually set take part.
func loadConfig(cmd *cobra.Command) error {
	cli := config.CLIOverrides{
		ConfigPath: flagConfigPath,
		TenantID:   changed(cmd, "tenant-id", &flagTenantID),
		ClientID:   changed(cmd, "client-id", &flagClientID),
		SiteID:     changed(cmd, "site-id", &flagSiteID),
		DriveID:    changed(cmd, "drive-id", &flagDriveID),
		LocalDir:   changed(cmd, "local-dir", &flagLocalDir),
		BaseFolder: changed(cmd, "remote-folder", &flagRemoteFolder),
		IgnoreFile: changed(cmd, "ignore-file", &flagIgnoreFile),
		HistoryDB:  changed(cmd, "history-db", &flagHistoryDB),
		LogFormat:  changed(cmd, "log-format", &flagLogFormat),
		DryRun:     flagDryRun || credentialFreeCommands[cmd.CommandPath()],
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = resolved

	return nil
}

// changed returns v when the named flag was set on the command line.
func changed(cmd *cobra.Command, name string, v *string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}

	return v
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win. When log_file is set,
// records go to stderr and to a rotating file.
func buildLogger(cfg *config.Resolved, stderr *os.File) (*slog.Logger, io.Closer) {
	level := slog.LevelInfo

	if cfg != nil {
		switch strings.ToLower(cfg.LogLevel) {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	var (
		out    io.Writer = stderr
		closer io.Closer
		format = "auto"
	)

	if cfg != nil {
		format = cfg.LogFormat

		if cfg.LogFile != "" {
			lj := &lumberjack.Logger{
				Filename: cfg.LogFile,
				MaxAge:   cfg.LogRetentionDays,
				Compress: true,
			}
			out = io.MultiWriter(stderr, lj)
			closer = lj
		}
	}

	opts := &slog.HandlerOptions{Level: level}

	if useJSONLogs(format, stderr) {
		return slog.New(slog.NewJSONHandler(out, opts)), closer
	}

	return slog.New(slog.NewTextHandler(out, opts)), closer
}

// useJSONLogs resolves the "auto" format: text on a terminal, JSON
// otherwise.
func useJSONLogs(format string, f *os.File) bool {
	switch strings.ToLower(format) {
	case "json":
		return true
	case "text":
		return false
	}

	fd := f.Fd()

	return !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd)
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
