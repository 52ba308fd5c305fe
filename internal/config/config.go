// Package config loads and validates application configuration from YAML files
// and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Project       ProjectConfig       `yaml:"project"`
	Schema        SchemaConfig        `yaml:"schema"`
	Identity      IdentityConfig      `yaml:"identity"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORS            CORSConfig    `yaml:"cors"`
}

// CORSConfig describes Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// ProjectConfig describes where the content documents live.
type ProjectConfig struct {
	// Root is a local project directory. Ignored when StorageURL is set.
	Root string `yaml:"root"`
	// StorageURL opens the project as a blob bucket, e.g. file:///data/game
	// or mem://.
	StorageURL   string        `yaml:"storage_url"`
	PollInterval time.Duration `yaml:"poll_interval"`
	ReadOnly     bool          `yaml:"read_only"`
	// SwitchRoots bound the locations a running server may switch to:
	// directories that must contain the new project, or bucket URL prefixes.
	// Empty means the configured root or storage URL.
	SwitchRoots []string `yaml:"switch_roots"`
}

// SwitchAllowed reports whether location lies under one of the switch roots.
func (c ProjectConfig) SwitchAllowed(location string) bool {
	roots := c.SwitchRoots
	if len(roots) == 0 {
		roots = []string{c.Root}
		if c.StorageURL != "" {
			roots = []string{c.StorageURL}
		}
	}
	isURL := strings.Contains(location, "://")
	for _, root := range roots {
		switch {
		case root == "":
		case strings.Contains(root, "://"):
			prefix := strings.TrimSuffix(root, "/")
			if isURL && (location == prefix || strings.HasPrefix(location, prefix+"/")) {
				return true
			}
		case !isURL && withinDir(root, location):
			return true
		}
	}
	return false
}

func withinDir(root, path string) bool {
	r, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	p, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(r, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// SchemaConfig describes effect schema extensions.
type SchemaConfig struct {
	ExtensionFile string `yaml:"extension_file"`
}

// IdentityConfig describes bearer token settings. Authentication is off when
// the signing key variable is unset.
type IdentityConfig struct {
	SigningKeyEnv string        `yaml:"signing_key_env"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	TokenTTL      time.Duration `yaml:"token_ttl"`
	Leeway        time.Duration `yaml:"leeway"`
}

// SigningKey returns the HS256 key from the configured environment variable.
func (c IdentityConfig) SigningKey() []byte {
	if c.SigningKeyEnv == "" {
		return nil
	}
	v := os.Getenv(c.SigningKeyEnv)
	if v == "" {
		return nil
	}
	return []byte(v)
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel  string        `yaml:"log_level"`
	LogFormat string        `yaml:"log_format"` // json or console
	Tracing   TracingConfig `yaml:"tracing"`
	Metrics   MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			HandlerTimeout:  25 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORS: CORSConfig{
				AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type", "X-Correlation-Id"},
				MaxAge:         86400,
			},
		},
		Project: ProjectConfig{
			Root:         ".",
			PollInterval: 2 * time.Second,
		},
		Identity: IdentityConfig{
			SigningKeyEnv: "CARDFORGE_SIGNING_KEY",
			Issuer:        "cardforge",
			Audience:      "cardforge-editor",
			TokenTTL:      12 * time.Hour,
			Leeway:        30 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates the result. An empty path loads the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Port >= 1 && c.Server.Port <= 65535, "server.port must be between 1 and 65535")
	check(c.Project.Root != "" || c.Project.StorageURL != "", "project.root or project.storage_url is required")
	check(c.Project.PollInterval >= 100*time.Millisecond, "project.poll_interval must be at least 100ms")
	if c.Identity.SigningKeyEnv != "" {
		check(c.Identity.Issuer != "", "identity.issuer is required when a signing key is configured")
		check(c.Identity.Audience != "", "identity.audience is required when a signing key is configured")
		check(c.Identity.TokenTTL > 0, "identity.token_ttl must be positive")
	}
	obs := c.Observability
	check(logLevels[strings.ToLower(obs.LogLevel)], "observability.log_level %q is not one of debug, info, warn, error", obs.LogLevel)
	check(obs.LogFormat == "" || obs.LogFormat == "json" || obs.LogFormat == "console", "observability.log_format %q is not json or console", obs.LogFormat)
	check(obs.Tracing.SamplingRate >= 0 && obs.Tracing.SamplingRate <= 1, "observability.tracing.sampling_rate must be between 0 and 1")

	return errors.Join(errs...)
}

// envOverride binds one CARDFORGE_* variable to a field. A value that does
// not parse leaves the field alone.
type envOverride struct {
	name string
	set  func(v string)
}

func parsed[T any](dst *T, parse func(string) (T, error)) func(string) {
	return func(v string) {
		if x, err := parse(v); err == nil {
			*dst = x
		}
	}
}

func verbatim(dst *string) func(string) {
	return func(v string) { *dst = v }
}

func envOverrides(cfg *Config) []envOverride {
	return []envOverride{
		{"CARDFORGE_SERVER_PORT", parsed(&cfg.Server.Port, strconv.Atoi)},
		{"CARDFORGE_PROJECT_ROOT", verbatim(&cfg.Project.Root)},
		{"CARDFORGE_PROJECT_STORAGE_URL", verbatim(&cfg.Project.StorageURL)},
		{"CARDFORGE_PROJECT_POLL_INTERVAL", parsed(&cfg.Project.PollInterval, time.ParseDuration)},
		{"CARDFORGE_PROJECT_READ_ONLY", parsed(&cfg.Project.ReadOnly, strconv.ParseBool)},
		{"CARDFORGE_PROJECT_SWITCH_ROOTS", func(v string) { cfg.Project.SwitchRoots = strings.Split(v, ",") }},
		{"CARDFORGE_SCHEMA_EXTENSION_FILE", verbatim(&cfg.Schema.ExtensionFile)},
		{"CARDFORGE_IDENTITY_ISSUER", verbatim(&cfg.Identity.Issuer)},
		{"CARDFORGE_IDENTITY_AUDIENCE", verbatim(&cfg.Identity.Audience)},
		{"CARDFORGE_OBSERVABILITY_LOG_LEVEL", verbatim(&cfg.Observability.LogLevel)},
		{"CARDFORGE_OBSERVABILITY_LOG_FORMAT", verbatim(&cfg.Observability.LogFormat)},
	}
}

func applyEnvOverrides(cfg *Config) {
	for _, o := range envOverrides(cfg) {
		if v := os.Getenv(o.name); v != "" {
			o.set(v)
		}
	}
}

// ProjectLocation returns the storage URL when set, otherwise the root
// directory.
func (c *Config) ProjectLocation() string {
	if c.Project.StorageURL != "" {
		return c.Project.StorageURL
	}
	return c.Project.Root
}
