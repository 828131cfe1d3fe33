package config

// Default values for configuration options ("layer 0").
const (
	defaultAuthMode             = "certificate"
	defaultAction               = "move"
	defaultDoneFolder           = "_done"
	defaultErrorFolder          = "_error"
	defaultPollIntervalSeconds  = 300
	defaultBaseBackoff          = "2s"
	defaultMaxBackoff           = "16m"
	defaultDirPermissions       = "0755"
	defaultFilePermissions      = "0644"
	defaultLogLevel             = "info"
	defaultLogFormat            = "auto"
	defaultConnectTimeout       = "10s"
	defaultDataTimeout          = "60s"
	defaultJournalRetentionDays = 30
)

// defaultIgnorePatterns skips the library's hidden Forms folder (view
// definitions, never user content).
var defaultIgnorePatterns = []string{"/Forms"}

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for decoding, so unset fields keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		Auth:     AuthConfig{Mode: defaultAuthMode},
		Tracking: defaultTrackingConfig(),
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Network: NetworkConfig{
			ConnectTimeout: defaultConnectTimeout,
			DataTimeout:    defaultDataTimeout,
		},
		State: StateConfig{JournalRetentionDays: defaultJournalRetentionDays},
	}
}

func defaultTrackingConfig() TrackingConfig {
	return TrackingConfig{
		IgnorePatterns:       append([]string(nil), defaultIgnorePatterns...),
		VerifyHash:           true,
		ActionAfterProcessed: defaultAction,
		DoneFolder:           defaultDoneFolder,
		ErrorFolder:          defaultErrorFolder,
		PollIntervalSeconds:  defaultPollIntervalSeconds,
		BaseBackoff:          defaultBaseBackoff,
		MaxBackoff:           defaultMaxBackoff,
		DirPermissions:       defaultDirPermissions,
		FilePermissions:      defaultFilePermissions,
	}
}
