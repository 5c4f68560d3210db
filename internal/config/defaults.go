package config

// Layer 0 of the override chain.
const (
	defaultLocalDir         = "."
	defaultIgnoreFile       = ".gitignore"
	defaultSimpleUploadMax  = "4MiB"
	defaultChunkSize        = "10MiB"
	defaultMaxRetries       = 3
	defaultRetryBaseDelay   = "1s"
	defaultBandwidthLimit   = "0"
	defaultLogLevel         = "info"
	defaultLogFormat        = "auto"
	defaultLogRetentionDays = 30
	defaultConnectTimeout   = "10s"
	defaultDataTimeout      = "60s"
)

// DefaultConfig returns a Config populated with all default values. It is
// the decode target for the TOML file, so unset keys keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		TargetConfig: TargetConfig{
			LocalDir:   defaultLocalDir,
			IgnoreFile: defaultIgnoreFile,
		},
		TransferConfig: TransferConfig{
			SimpleUploadMax: defaultSimpleUploadMax,
			ChunkSize:       defaultChunkSize,
			MaxRetries:      defaultMaxRetries,
			RetryBaseDelay:  defaultRetryBaseDelay,
			BandwidthLimit:  defaultBandwidthLimit,
		},
		LoggingConfig: LoggingConfig{
			LogLevel:         defaultLogLevel,
			LogFormat:        defaultLogFormat,
			LogRetentionDays: defaultLogRetentionDays,
		},
		NetworkConfig: NetworkConfig{
			ConnectTimeout: defaultConnectTimeout,
			DataTimeout:    defaultDataTimeout,
		},
	}
}
