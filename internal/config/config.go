// Package config loads dirpipe configuration from a YAML file and
// DIRPIPE_* environment variables, applies struct-tag defaults, and
// validates the result.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/dirpipe/dirpipe/internal/change"
	"github.com/dirpipe/dirpipe/internal/ldap"
)

// Config is the complete dirpipe configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DIRPIPE_*)
//  2. Configuration file (YAML)
//  3. Default values
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Directory contains connection settings for the remote store
	Directory DirectoryConfig `mapstructure:"directory"`

	// Trash controls the soft-delete interceptor
	Trash TrashConfig `mapstructure:"trash"`

	// Change maps semantic change events onto directory attributes
	Change ChangeConfig `mapstructure:"change"`

	// Checker bounds concurrent existence lookups
	Checker CheckerConfig `mapstructure:"checker"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	Level string `mapstructure:"level" default:"info" validate:"required,oneof=trace debug info warn error"`

	// Format specifies the log output format
	Format string `mapstructure:"format" default:"text" validate:"required,oneof=text json"`
}

// Logger builds the root logger for this configuration.
func (c *LoggingConfig) Logger(name string) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      hclog.LevelFromString(c.Level),
		JSONFormat: c.Format == "json",
	})
}

// DirectoryConfig contains connection settings for the remote directory.
// Either Domain (SRV discovery) or URLs must be provided.
type DirectoryConfig struct {
	// Domain enables DNS SRV server discovery
	Domain string `mapstructure:"domain"`

	// URLs lists directory servers directly, overriding discovery
	URLs []string `mapstructure:"urls"`

	// BaseDN is the default search base
	BaseDN string `mapstructure:"base_dn" validate:"required"`

	// Timeout applies to dial and per-operation deadlines
	Timeout time.Duration `mapstructure:"timeout" default:"30s" validate:"gt=0"`

	// BindDN is the DN or principal used to bind
	BindDN string `mapstructure:"bind_dn"`

	// BindPassword is the password for simple bind
	BindPassword string `mapstructure:"bind_password"`

	// KerberosRealm enables GSSAPI authentication when set
	KerberosRealm string `mapstructure:"kerberos_realm"`

	// KerberosKeytab is the path to a keytab file
	KerberosKeytab string `mapstructure:"kerberos_keytab"`

	// KerberosCCache is the path to a credential cache
	KerberosCCache string `mapstructure:"kerberos_ccache"`

	// KerberosConfig is the path to krb5.conf
	KerberosConfig string `mapstructure:"kerberos_config"`

	// UseTLS forces TLS negotiation
	UseTLS bool `mapstructure:"use_tls" default:"true"`

	// SkipTLS disables TLS entirely (not recommended)
	SkipTLS bool `mapstructure:"skip_tls"`

	// MaxConnections caps the connection pool size
	MaxConnections int `mapstructure:"max_connections" default:"10" validate:"gte=1,lte=100"`

	// MaxIdleTime is how long an idle connection is kept
	MaxIdleTime time.Duration `mapstructure:"max_idle_time" default:"5m" validate:"gt=0"`

	// HealthCheck is the pool health check interval
	HealthCheck time.Duration `mapstructure:"health_check" default:"30s"`

	// MaxRetries caps retry attempts per operation
	MaxRetries int `mapstructure:"max_retries" default:"3" validate:"gte=0"`

	// InitialBackoff is the first retry delay
	InitialBackoff time.Duration `mapstructure:"initial_backoff" default:"500ms"`

	// MaxBackoff caps the retry delay
	MaxBackoff time.Duration `mapstructure:"max_backoff" default:"30s"`

	// BackoffFactor multiplies the delay between attempts
	BackoffFactor float64 `mapstructure:"backoff_factor" default:"2.0" validate:"gt=1"`
}

// ConnectionConfig converts the directory section into the client's
// connection configuration.
func (c *DirectoryConfig) ConnectionConfig() *ldap.ConnectionConfig {
	cfg := ldap.DefaultConfig()
	cfg.Domain = c.Domain
	cfg.URLs = c.URLs
	cfg.BaseDN = c.BaseDN
	cfg.Timeout = c.Timeout
	cfg.BindDN = c.BindDN
	cfg.BindPassword = c.BindPassword
	cfg.KerberosRealm = c.KerberosRealm
	cfg.KerberosKeytab = c.KerberosKeytab
	cfg.KerberosCCache = c.KerberosCCache
	cfg.KerberosConfig = c.KerberosConfig
	cfg.UseTLS = c.UseTLS
	cfg.SkipTLS = c.SkipTLS
	cfg.MaxConnections = c.MaxConnections
	cfg.MaxIdleTime = c.MaxIdleTime
	cfg.HealthCheck = c.HealthCheck
	cfg.MaxRetries = c.MaxRetries
	cfg.InitialBackoff = c.InitialBackoff
	cfg.MaxBackoff = c.MaxBackoff
	cfg.BackoffFactor = c.BackoffFactor
	return cfg
}

// TrashConfig controls the soft-delete interceptor.
type TrashConfig struct {
	// Branch is the DN of the trash container
	Branch string `mapstructure:"branch" validate:"required"`

	// WatchedBranches lists subtrees whose entries are trashed instead of
	// deleted. Empty means every entry outside the trash branch itself.
	WatchedBranches []string `mapstructure:"watched_branches"`

	// AddMetadata annotates trashed entries with origin and timestamp
	AddMetadata bool `mapstructure:"add_metadata" default:"true"`

	// AutoCreate creates the trash branch on first use if missing
	AutoCreate bool `mapstructure:"auto_create" default:"true"`
}

// ChangeConfig maps semantic change events onto directory attributes.
type ChangeConfig struct {
	// IdentifierAttribute is the primary addressing attribute
	IdentifierAttribute string `mapstructure:"identifier_attribute" default:"mail" validate:"required"`

	// QuotaAttribute holds the numeric storage quota
	QuotaAttribute string `mapstructure:"quota_attribute" default:"mailQuota" validate:"required"`

	// AliasAttribute holds secondary addresses
	AliasAttribute string `mapstructure:"alias_attribute" default:"mailAlias" validate:"required"`

	// DisplayNameAttribute holds the preferred display name
	DisplayNameAttribute string `mapstructure:"display_name_attribute" default:"displayName" validate:"required"`

	// GivenNameAttribute feeds the display name fallback
	GivenNameAttribute string `mapstructure:"given_name_attribute" default:"givenName" validate:"required"`

	// SurnameAttribute feeds the display name fallback
	SurnameAttribute string `mapstructure:"surname_attribute" default:"sn" validate:"required"`
}

// Mappings converts the change section into engine attribute mappings.
func (c *ChangeConfig) Mappings() change.Mappings {
	return change.Mappings{
		IdentifierAttribute:  c.IdentifierAttribute,
		QuotaAttribute:       c.QuotaAttribute,
		AliasAttribute:       c.AliasAttribute,
		DisplayNameAttribute: c.DisplayNameAttribute,
		GivenNameAttribute:   c.GivenNameAttribute,
		SurnameAttribute:     c.SurnameAttribute,
	}
}

// CheckerConfig bounds concurrent existence lookups.
type CheckerConfig struct {
	// MaxConcurrent caps simultaneous directory searches
	MaxConcurrent int64 `mapstructure:"max_concurrent" default:"8" validate:"gte=1"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: path to config file (empty string uses the default location)
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("failed to set default values: %w", err)
	}

	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// decodeHooks composes the mapstructure hooks used during unmarshalling.
// Duration fields accept "30s" style strings; list fields accept
// comma-separated strings so they can be set from environment variables.
func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// setupViper configures environment variable and config file handling.
func setupViper(v *viper.Viper, configPath string) {
	// Example: DIRPIPE_DIRECTORY_BASE_DN=dc=example,dc=org
	v.SetEnvPrefix("DIRPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.AddConfigPath(".")
		v.SetConfigName("dirpipe")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. A missing file
// is fine, everything then comes from defaults and the environment.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path, preferring
// XDG_CONFIG_HOME over ~/.config.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dirpipe")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "dirpipe")
}
