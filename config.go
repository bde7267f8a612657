package snowpipe

import (
	"fmt"
	"os"
	"time"
)

// Default tunables, per the spec's External Interfaces section.
const (
	DefaultJWTTTLSeconds        = 3600
	DefaultConnectionTimeoutSec = 60
	DefaultMaxConnections       = 16
	DefaultMaxThreadsPerQuery   = 8
	DefaultThreadScaleFactor    = 4
	DefaultHTTPRetries          = 2
	DefaultLogLevel             = "info"
)

// Config holds everything needed to construct a Client. BaseURI,
// PrivateKeyPEM, Organization, Account, User, and DefaultWarehouse are
// required; the remaining fields fall back to their documented defaults
// when zero.
type Config struct {
	BaseURI          string
	PrivateKeyPEM    []byte
	Organization     string
	Account          string
	User             string
	DefaultWarehouse string

	JWTTTLSeconds        int
	ConnectionTimeoutSec int
	MaxConnections       int
	MaxThreadsPerQuery   int
	ThreadScaleFactor    int
	HTTPRetries          int
	LogLevel             string
}

// withDefaults returns a copy of cfg with documented defaults applied to
// any zero-valued tunable.
func (cfg Config) withDefaults() Config {
	if cfg.JWTTTLSeconds == 0 {
		cfg.JWTTTLSeconds = DefaultJWTTTLSeconds
	}
	if cfg.ConnectionTimeoutSec == 0 {
		cfg.ConnectionTimeoutSec = DefaultConnectionTimeoutSec
	}
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = DefaultMaxConnections
	}
	if cfg.MaxThreadsPerQuery == 0 {
		cfg.MaxThreadsPerQuery = DefaultMaxThreadsPerQuery
	}
	if cfg.ThreadScaleFactor == 0 {
		cfg.ThreadScaleFactor = DefaultThreadScaleFactor
	}
	if cfg.HTTPRetries == 0 {
		cfg.HTTPRetries = DefaultHTTPRetries
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	return cfg
}

// validate checks required fields and the pool/thread sizing invariant
// noted in the spec's design notes: max_connections must be at least
// max_threads_per_query + 1, or the threaded strategy can deadlock waiting
// on connections that statement submission already holds.
func (cfg Config) validate() error {
	if cfg.BaseURI == "" {
		return &ConfigError{Reason: "BaseURI is required"}
	}
	if len(cfg.PrivateKeyPEM) == 0 {
		return &ConfigError{Reason: "PrivateKeyPEM is required"}
	}
	if cfg.Organization == "" || cfg.Account == "" || cfg.User == "" {
		return &ConfigError{Reason: "Organization, Account, and User are required"}
	}
	if cfg.DefaultWarehouse == "" {
		return &ConfigError{Reason: "DefaultWarehouse is required"}
	}
	if cfg.MaxConnections < cfg.MaxThreadsPerQuery+1 {
		return &ConfigError{
			Reason: fmt.Sprintf(
				"MaxConnections (%d) must be at least MaxThreadsPerQuery+1 (%d)",
				cfg.MaxConnections, cfg.MaxThreadsPerQuery+1,
			),
		}
	}
	if cfg.HTTPRetries < 0 {
		return &ConfigError{
			Reason: fmt.Sprintf("HTTPRetries (%d) must not be negative", cfg.HTTPRetries),
		}
	}
	return nil
}

func (cfg Config) jwtTTL() time.Duration {
	return time.Duration(cfg.JWTTTLSeconds) * time.Second
}

func (cfg Config) connectionTimeout() time.Duration {
	return time.Duration(cfg.ConnectionTimeoutSec) * time.Second
}

// ConfigFromEnvironment builds a Config from the environment variables
// named in the spec's External Interfaces section. Missing required
// variables surface as ConfigError once passed to New/Connect.
func ConfigFromEnvironment() (Config, error) {
	cfg := Config{
		BaseURI:          os.Getenv("SNOWFLAKE_URI"),
		Organization:     os.Getenv("SNOWFLAKE_ORGANIZATION"),
		Account:          os.Getenv("SNOWFLAKE_ACCOUNT"),
		User:             os.Getenv("SNOWFLAKE_USER"),
		DefaultWarehouse: os.Getenv("SNOWFLAKE_DEFAULT_WAREHOUSE"),
	}

	if pem := os.Getenv("SNOWFLAKE_PRIVATE_KEY"); pem != "" {
		cfg.PrivateKeyPEM = []byte(pem)
	} else if path := os.Getenv("SNOWFLAKE_PRIVATE_KEY_PATH"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, &ConfigError{Reason: fmt.Sprintf("reading %s: %v", path, err)}
		}
		cfg.PrivateKeyPEM = data
	}

	return cfg, nil
}
