// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/threadline/internal/util"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "THREADLINE_"

// Cache backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete threadline configuration.
type Config struct {
	API       APIConfig       `toml:"api" json:"api" yaml:"api"`
	Cache     CacheConfig     `toml:"cache" json:"cache" yaml:"cache"`
	Reconcile ReconcileConfig `toml:"reconcile" json:"reconcile" yaml:"reconcile"`
	Log       LogConfig       `toml:"log" json:"log" yaml:"log"`
	Metrics   MetricsConfig   `toml:"metrics" json:"metrics" yaml:"metrics"`
}

// APIConfig configures the message API transport.
type APIConfig struct {
	BaseURL   string `toml:"base_url" json:"base_url" yaml:"base_url"`
	UserAgent string `toml:"user_agent" json:"user_agent" yaml:"user_agent"`
	Token     string `toml:"token" json:"token" yaml:"token"`

	// User is recorded as createdBy on optimistic entries.
	User string `toml:"user" json:"user" yaml:"user"`

	TimeoutSecs       int     `toml:"timeout_secs" json:"timeout_secs" yaml:"timeout_secs"`
	StreamTimeoutSecs int     `toml:"stream_timeout_secs" json:"stream_timeout_secs" yaml:"stream_timeout_secs"`
	MaxRetries        int     `toml:"max_retries" json:"max_retries" yaml:"max_retries"`
	MaxResponseBytes  int64   `toml:"max_response_bytes" json:"max_response_bytes" yaml:"max_response_bytes"`
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `toml:"burst" json:"burst" yaml:"burst"`
}

// Timeout returns the non-streaming request timeout.
func (a APIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSecs) * time.Second
}

// StreamTimeout returns the streaming timeout; zero means unbounded.
func (a APIConfig) StreamTimeout() time.Duration {
	return time.Duration(a.StreamTimeoutSecs) * time.Second
}

// CacheConfig selects where thread snapshots persist.
type CacheConfig struct {
	Backend      string `toml:"backend" json:"backend" yaml:"backend"`
	Dir          string `toml:"dir" json:"dir" yaml:"dir"`
	SQLitePath   string `toml:"sqlite_path" json:"sqlite_path" yaml:"sqlite_path"`
	RedisAddr    string `toml:"redis_addr" json:"redis_addr" yaml:"redis_addr"`
	RedisPrefix  string `toml:"redis_prefix" json:"redis_prefix" yaml:"redis_prefix"`
	RedisTTLSecs int    `toml:"redis_ttl_secs" json:"redis_ttl_secs" yaml:"redis_ttl_secs"`
}

// RedisTTL returns the snapshot expiry; zero means no expiry.
func (c CacheConfig) RedisTTL() time.Duration {
	return time.Duration(c.RedisTTLSecs) * time.Second
}

// ReconcileConfig tunes the reconciler.
type ReconcileConfig struct {
	// RollbackScope is "thread" or "operation".
	RollbackScope      string `toml:"rollback_scope" json:"rollback_scope" yaml:"rollback_scope"`
	RefreshConcurrency int    `toml:"refresh_concurrency" json:"refresh_concurrency" yaml:"refresh_concurrency"`
}

// LogConfig configures logging.
type LogConfig struct {
	Mode  string `toml:"mode" json:"mode" yaml:"mode"`
	Level string `toml:"level" json:"level" yaml:"level"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Namespace string `toml:"namespace" json:"namespace" yaml:"namespace"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a new Config with default values.
func Default() *Config {
	return &Config{
		API: APIConfig{
			UserAgent:         "threadline/0.1.0",
			TimeoutSecs:       30,
			StreamTimeoutSecs: 300,
			MaxRetries:        3,
			MaxResponseBytes:  10 * 1024 * 1024,
			Burst:             1,
		},
		Cache: CacheConfig{
			Backend:     BackendFile,
			RedisAddr:   "localhost:6379",
			RedisPrefix: "threadline:thread:",
		},
		Reconcile: ReconcileConfig{
			RollbackScope:      "thread",
			RefreshConcurrency: 4,
		},
		Log: LogConfig{
			Mode:  "prod",
			Level: "info",
		},
		Metrics: MetricsConfig{
			Namespace: "threadline",
		},
	}
}

// SetDefaults replaces zero values that are never valid with their defaults.
func (c *Config) SetDefaults() {
	d := Default()
	if c.API.UserAgent == "" {
		c.API.UserAgent = d.API.UserAgent
	}
	if c.API.TimeoutSecs == 0 {
		c.API.TimeoutSecs = d.API.TimeoutSecs
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = d.API.MaxRetries
	}
	if c.API.MaxResponseBytes == 0 {
		c.API.MaxResponseBytes = d.API.MaxResponseBytes
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = d.Cache.Backend
	}
	if c.Cache.RedisPrefix == "" {
		c.Cache.RedisPrefix = d.Cache.RedisPrefix
	}
	if c.Reconcile.RollbackScope == "" {
		c.Reconcile.RollbackScope = d.Reconcile.RollbackScope
	}
	if c.Reconcile.RefreshConcurrency == 0 {
		c.Reconcile.RefreshConcurrency = d.Reconcile.RefreshConcurrency
	}
	if c.Log.Mode == "" {
		c.Log.Mode = d.Log.Mode
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = d.Metrics.Namespace
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns $THREADLINE_HOME, or ~/.threadline when unset.
func ConfigDir() (string, error) {
	if home := os.Getenv(EnvPrefix + "HOME"); home != "" {
		return home, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".threadline"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// candidateFiles lists config file names in precedence order.
var candidateFiles = []string{"config.toml", "config.json", "config.yaml", "config.yml"}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config directory. See LoadDir.
func Load() (*Config, error) {
	dir, err := ConfigDir()
	if err != nil {
		cfg := Default()
		cfg.applyEnv(os.LookupEnv)
		cfg.SetDefaults()
		if verr := cfg.Validate(); verr != nil {
			return nil, fmt.Errorf("invalid config: %w", verr)
		}
		return cfg, err
	}
	return LoadDir(dir)
}

// LoadDir loads the first config file found in dir, then applies .env
// values and THREADLINE_* environment overrides. Real environment
// variables win over .env entries. A file that fails to parse is skipped
// and its error is returned alongside the otherwise valid config.
func LoadDir(dir string) (*Config, error) {
	cfg := Default()
	var loadErr error

	for _, name := range candidateFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := loadFile(cfg, path); err != nil {
			loadErr = fmt.Errorf("failed to load %s: %w", name, err)
			cfg = Default()
			continue
		}
		loadErr = nil
		break
	}

	cfg.applyEnv(envLookup(dir))
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, loadErr
}

// LoadFromPath loads a single file with full validation. The format is
// chosen by extension; anything other than .json, .yaml or .yml is TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if err := loadFile(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	cfg.applyEnv(envLookup(filepath.Dir(path)))
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to decode YAML: %w", err)
		}
	default:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("failed to decode TOML: %w", err)
		}
	}
	return nil
}

// envLookup checks the process environment first, then .env files in the
// working directory and in dir.
func envLookup(dir string) func(string) (string, bool) {
	dotenv := map[string]string{}
	for _, path := range []string{filepath.Join(dir, ".env"), ".env"} {
		vals, err := godotenv.Read(path)
		if err != nil {
			continue
		}
		for k, v := range vals {
			if _, seen := dotenv[k]; !seen {
				dotenv[k] = v
			}
		}
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// SaveTOML writes the configuration to path with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# threadline configuration file\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - THREADLINE_BASE_URL, THREADLINE_TOKEN, THREADLINE_USER, THREADLINE_USER_AGENT
//   - THREADLINE_TIMEOUT_SECS, THREADLINE_STREAM_TIMEOUT_SECS
//   - THREADLINE_CACHE_BACKEND, THREADLINE_CACHE_DIR, THREADLINE_SQLITE_PATH
//   - THREADLINE_REDIS_ADDR
//   - THREADLINE_ROLLBACK_SCOPE
//   - THREADLINE_LOG_MODE, THREADLINE_LOG_LEVEL
//   - THREADLINE_METRICS: "1" or "true" enables metrics
//
// Numeric values that fail to parse are ignored.
func (c *Config) ApplyEnvOverrides() {
	c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = n
			}
		}
	}

	str("BASE_URL", &c.API.BaseURL)
	str("TOKEN", &c.API.Token)
	str("USER", &c.API.User)
	str("USER_AGENT", &c.API.UserAgent)
	num("TIMEOUT_SECS", &c.API.TimeoutSecs)
	num("STREAM_TIMEOUT_SECS", &c.API.StreamTimeoutSecs)
	str("CACHE_BACKEND", &c.Cache.Backend)
	str("CACHE_DIR", &c.Cache.Dir)
	str("SQLITE_PATH", &c.Cache.SQLitePath)
	str("REDIS_ADDR", &c.Cache.RedisAddr)
	str("ROLLBACK_SCOPE", &c.Reconcile.RollbackScope)
	str("LOG_MODE", &c.Log.Mode)
	str("LOG_LEVEL", &c.Log.Level)

	if v, ok := lookup(EnvPrefix + "METRICS"); ok && v != "" {
		c.Metrics.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var metricNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Validate checks every section and returns ValidateErrors when any field
// is out of range.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// API
	if c.API.BaseURL != "" {
		u, err := url.Parse(c.API.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add("api.base_url", "invalid URL '%s', must be an absolute http or https URL", c.API.BaseURL)
		}
	}
	if c.API.TimeoutSecs < 1 || c.API.TimeoutSecs > 600 {
		add("api.timeout_secs", "must be between 1 and 600, got %d", c.API.TimeoutSecs)
	}
	if c.API.StreamTimeoutSecs < 0 {
		add("api.stream_timeout_secs", "must not be negative, got %d", c.API.StreamTimeoutSecs)
	}
	if c.API.MaxRetries < 1 || c.API.MaxRetries > 10 {
		add("api.max_retries", "must be between 1 and 10, got %d", c.API.MaxRetries)
	}
	if c.API.MaxResponseBytes < 1024 {
		add("api.max_response_bytes", "must be at least 1024, got %d", c.API.MaxResponseBytes)
	}
	if c.API.RequestsPerSecond < 0 {
		add("api.requests_per_second", "must not be negative, got %g", c.API.RequestsPerSecond)
	}
	if c.API.Burst < 0 {
		add("api.burst", "must not be negative, got %d", c.API.Burst)
	}

	// Cache
	switch c.Cache.Backend {
	case BackendMemory, BackendFile, BackendSQLite:
	case BackendRedis:
		if c.Cache.RedisAddr == "" {
			add("cache.redis_addr", "required when backend is redis")
		}
	default:
		add("cache.backend", "invalid backend '%s', must be one of: memory, file, sqlite, redis", c.Cache.Backend)
	}
	if c.Cache.RedisTTLSecs < 0 {
		add("cache.redis_ttl_secs", "must not be negative, got %d", c.Cache.RedisTTLSecs)
	}

	// Reconcile
	switch c.Reconcile.RollbackScope {
	case "thread", "operation":
	default:
		add("reconcile.rollback_scope", "invalid scope '%s', must be one of: thread, operation", c.Reconcile.RollbackScope)
	}
	if c.Reconcile.RefreshConcurrency < 1 || c.Reconcile.RefreshConcurrency > 64 {
		add("reconcile.refresh_concurrency", "must be between 1 and 64, got %d", c.Reconcile.RefreshConcurrency)
	}

	// Log
	switch strings.ToLower(c.Log.Mode) {
	case "dev", "prod":
	default:
		add("log.mode", "invalid mode '%s', must be one of: dev, prod", c.Log.Mode)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("log.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level)
	}

	// Metrics
	if c.Metrics.Enabled && !metricNamePattern.MatchString(c.Metrics.Namespace) {
		add("metrics.namespace", "invalid namespace '%s'", c.Metrics.Namespace)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// GET HELPER (DOT NOTATION)
// =============================================================================

// Get retrieves a value by its file key, e.g. "api.base_url".
func (c *Config) Get(key string) (interface{}, error) {
	if key == "" {
		return nil, errors.New("empty key")
	}
	parts := strings.Split(key, ".")
	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
			return nil, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field.Interface(), nil
		}
		if field.Kind() != reflect.Struct {
			return nil, fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return nil, fmt.Errorf("invalid key: %s", key)
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := strings.SplitN(t.Field(i).Tag.Get("toml"), ",", 2)[0]
		if strings.EqualFold(tag, name) {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// Clone creates a copy of the configuration. Config holds no reference
// types, so a value copy is deep.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String renders the config as indented JSON with the token redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.API.Token != "" {
		safe.API.Token = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance, loading it on first
// access. Load errors fall back to defaults.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		}
		if cfg == nil {
			cfg = Default()
		}
		globalConfigMu.Lock()
		if globalConfig == nil {
			globalConfig = cfg
		}
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// SetGlobal sets the global configuration instance.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
