package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig       = "SPMIRROR_CONFIG"
	EnvLocalRoot    = "SPMIRROR_LOCAL_ROOT"
	EnvClientSecret = "SPMIRROR_CLIENT_SECRET" //nolint:gosec // variable name, not a credential
	EnvPFXPassword  = "SPMIRROR_PFX_PASSWORD"  //nolint:gosec // variable name, not a credential
)

// EnvOverrides holds values derived from environment variables. Secrets are
// usually supplied here rather than in the config file.
type EnvOverrides struct {
	ConfigPath   string
	LocalRoot    string
	ClientSecret string
	PFXPassword  string
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. It does not modify a Config.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:   os.Getenv(EnvConfig),
		LocalRoot:    os.Getenv(EnvLocalRoot),
		ClientSecret: os.Getenv(EnvClientSecret),
		PFXPassword:  os.Getenv(EnvPFXPassword),
	}
}
