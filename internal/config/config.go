// Package config provides configuration loading and management for the runebook gateway.
package config

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/runebook/runebook-gateway/internal/telemetry"
	"github.com/runebook/runebook-gateway/internal/validators"
)

const (
	// SourceTypeProbuild scrapes HTML guide pages
	SourceTypeProbuild = "probuild"

	// SourceTypeLolalytics reads the lolalytics JSON build API
	SourceTypeLolalytics = "lolalytics"
)

const (
	// StorageTypeNone keeps builds in memory only
	StorageTypeNone = "none"

	// StorageTypeFile persists build snapshots as JSON files
	StorageTypeFile = "file"

	// StorageTypeDatabase persists build snapshots in PostgreSQL
	StorageTypeDatabase = "database"
)

const (
	defaultDataDragonEndpoint = "https://ddragon.leagueoflegends.com"
	defaultLocale             = "en_US"
	defaultVersionTTL         = 5 * time.Minute
	defaultFetchTimeout       = 10 * time.Second
	defaultMaxEntries         = 512
	defaultRefreshTimeout     = 20 * time.Second
	defaultPatchWatchInterval = 10 * time.Minute

	// DatabasePasswordEnv is read when no password file is configured
	DatabasePasswordEnv = "RUNEBOOK_DATABASE_PASSWORD"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML, JSON or HuJSON file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks; this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) && !filepath.IsLocal(realPath) {
			return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// Sources lists the guide providers, in the order they are reported to clients
	Sources    []SourceConfig    `yaml:"sources"`
	DataDragon DataDragonConfig  `yaml:"dataDragon,omitempty"`
	Fetch      FetchConfig       `yaml:"fetch,omitempty"`
	Cache      CacheConfig       `yaml:"cache,omitempty"`
	Storage    StorageConfig     `yaml:"storage,omitempty"`
	PatchWatch PatchWatchConfig  `yaml:"patchWatch,omitempty"`
	Telemetry  *telemetry.Config `yaml:"telemetry,omitempty"`
}

// SourceConfig defines a single guide provider
type SourceConfig struct {
	// Name is the source id exposed under /api/source/{name}
	Name string `yaml:"name"`

	// Type selects the adapter (probuild or lolalytics)
	Type string `yaml:"type"`

	// Endpoint is the provider base URL
	Endpoint string `yaml:"endpoint"`

	// RequestsPerSecond paces outbound requests to this provider. Zero disables pacing.
	RequestsPerSecond float64 `yaml:"requestsPerSecond,omitempty"`

	// Burst is the number of requests allowed above the steady rate. Defaults to 1.
	Burst int `yaml:"burst,omitempty"`
}

// DataDragonConfig defines the static catalog mirror
type DataDragonConfig struct {
	Endpoint string `yaml:"endpoint,omitempty"`
	Locale   string `yaml:"locale,omitempty"`

	// VersionTTL is how long an observed patch version is reused (e.g., "5m")
	VersionTTL string `yaml:"versionTTL,omitempty"`
}

// FetchConfig defines outbound HTTP timeouts
type FetchConfig struct {
	ReadTimeout  string `yaml:"readTimeout,omitempty"`
	WriteTimeout string `yaml:"writeTimeout,omitempty"`
}

// CacheConfig defines the versioned cache bounds
type CacheConfig struct {
	MaxEntries int `yaml:"maxEntries,omitempty"`

	// MaxAge additionally expires entries by age; empty disables it
	MaxAge string `yaml:"maxAge,omitempty"`

	RefreshTimeout string `yaml:"refreshTimeout,omitempty"`
}

// StorageConfig defines where installed builds are persisted
type StorageConfig struct {
	Type     string          `yaml:"type,omitempty"`
	File     *FileConfig     `yaml:"file,omitempty"`
	Database *DatabaseConfig `yaml:"database,omitempty"`
}

// FileConfig defines local snapshot storage
type FileConfig struct {
	// Path is the data directory; defaults to $XDG_DATA_HOME/runebook-gateway
	Path string `yaml:"path,omitempty"`
}

// PatchWatchConfig defines the background patch poller
type PatchWatchConfig struct {
	// Interval between patch checks (e.g., "10m"); "0" disables the watcher
	Interval string `yaml:"interval,omitempty"`
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password.
	// The file should contain only the password with optional trailing whitespace.
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`

	// MaxIdleConns is the maximum number of idle connections in the pool
	MaxIdleConns int32 `yaml:"maxIdleConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from the RUNEBOOK_DATABASE_PASSWORD environment variable
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		cleanPath := filepath.Clean(d.PasswordFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}

		return strings.TrimSpace(string(data)), nil
	}

	if envPassword := os.Getenv(DatabasePasswordEnv); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or %s environment variable", DatabasePasswordEnv,
	)
}

// GetConnectionString builds a PostgreSQL connection string.
// The password is URL-escaped to handle special characters safely.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User),
		url.QueryEscape(password),
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	)

	return connString, nil
}

// GetConnMaxLifetime returns the parsed connection lifetime, zero when unset
func (d *DatabaseConfig) GetConnMaxLifetime() time.Duration {
	return parseDurationOr(d.ConnMaxLifetime, 0)
}

// LoadConfig loads, parses and validates configuration from a file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data, filepath.Ext(loaderCfg.path))
}

// Parse decodes and validates configuration. Files ending in .json or .hujson may carry
// comments and trailing commas; everything else is read as YAML.
func Parse(data []byte, ext string) (*Config, error) {
	switch strings.ToLower(ext) {
	case ".json", ".hujson", ".jsonc":
		standard, err := hujson.Standardize(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse HuJSON config: %w", err)
		}
		data = standard
	}

	// JSON is a subset of YAML, so one decoder serves all formats
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source must be configured")
	}

	var errs []error

	names := make(map[string]bool)
	for i, src := range c.Sources {
		if src.Name == "" {
			errs = append(errs, fmt.Errorf("source[%d]: name is required", i))
			continue
		}
		if names[src.Name] {
			errs = append(errs, fmt.Errorf("source[%d]: duplicate source name '%s'", i, src.Name))
			continue
		}
		names[src.Name] = true

		if err := validateSourceConfig(&src, i); err != nil {
			errs = append(errs, err)
		}
	}

	durations := map[string]string{
		"dataDragon.versionTTL": c.DataDragon.VersionTTL,
		"fetch.readTimeout":     c.Fetch.ReadTimeout,
		"fetch.writeTimeout":    c.Fetch.WriteTimeout,
		"cache.maxAge":          c.Cache.MaxAge,
		"cache.refreshTimeout":  c.Cache.RefreshTimeout,
		"patchWatch.interval":   c.PatchWatch.Interval,
	}
	for _, field := range slices.Sorted(maps.Keys(durations)) {
		if err := validateDuration(field, durations[field]); err != nil {
			errs = append(errs, err)
		}
	}

	if c.Cache.MaxEntries < 0 {
		errs = append(errs, fmt.Errorf("cache.maxEntries must not be negative"))
	}

	if c.DataDragon.Endpoint != "" {
		if err := validateEndpoint(c.DataDragon.Endpoint); err != nil {
			errs = append(errs, fmt.Errorf("dataDragon.endpoint: %w", err))
		}
	}

	if err := c.Storage.validate(); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}

	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	return errors.Join(errs...)
}

// validateSourceConfig validates a single source configuration
func validateSourceConfig(src *SourceConfig, index int) error {
	prefix := fmt.Sprintf("source[%d] (%s)", index, src.Name)

	if _, err := validators.ValidateSourceName(src.Name); err != nil {
		return fmt.Errorf("%s: %w", prefix, err)
	}

	switch src.Type {
	case SourceTypeProbuild, SourceTypeLolalytics:
	case "":
		return fmt.Errorf("%s: type is required", prefix)
	default:
		return fmt.Errorf("%s: unsupported source type '%s'", prefix, src.Type)
	}

	if src.Endpoint == "" {
		return fmt.Errorf("%s: endpoint is required", prefix)
	}
	if err := validateEndpoint(src.Endpoint); err != nil {
		return fmt.Errorf("%s: endpoint: %w", prefix, err)
	}

	if src.RequestsPerSecond < 0 {
		return fmt.Errorf("%s: requestsPerSecond must not be negative", prefix)
	}
	if src.Burst < 0 {
		return fmt.Errorf("%s: burst must not be negative", prefix)
	}

	return nil
}

func validateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got '%s'", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

func validateDuration(field, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s must be a valid duration (e.g., '30s', '10m'): %w", field, err)
	}
	if d < 0 {
		return fmt.Errorf("%s must not be negative", field)
	}
	return nil
}

func (s *StorageConfig) validate() error {
	switch s.GetType() {
	case StorageTypeNone, StorageTypeFile:
		return nil
	case StorageTypeDatabase:
		if s.Database == nil {
			return fmt.Errorf("database configuration is required when type is %s", StorageTypeDatabase)
		}
		if s.Database.Host == "" || s.Database.Database == "" || s.Database.User == "" {
			return fmt.Errorf("database host, user and database are required")
		}
		if s.Database.Port <= 0 {
			return fmt.Errorf("database port must be positive")
		}
		return validateDuration("database.connMaxLifetime", s.Database.ConnMaxLifetime)
	default:
		return fmt.Errorf("unsupported storage type '%s'", s.Type)
	}
}

// GetType returns the storage type, defaulting to none
func (s *StorageConfig) GetType() string {
	if s.Type == "" {
		return StorageTypeNone
	}
	return s.Type
}

// GetFilePath returns the snapshot directory
func (s *StorageConfig) GetFilePath() string {
	if s.File != nil && s.File.Path != "" {
		return s.File.Path
	}
	return filepath.Join(xdg.DataHome, "runebook-gateway")
}

// GetEndpoint returns the Data Dragon base URL
func (d DataDragonConfig) GetEndpoint() string {
	if d.Endpoint == "" {
		return defaultDataDragonEndpoint
	}
	return d.Endpoint
}

// GetLocale returns the catalog locale
func (d DataDragonConfig) GetLocale() string {
	if d.Locale == "" {
		return defaultLocale
	}
	return d.Locale
}

// GetVersionTTL returns how long a patch version is reused
func (d DataDragonConfig) GetVersionTTL() time.Duration {
	return parseDurationOr(d.VersionTTL, defaultVersionTTL)
}

// GetReadTimeout returns the outbound read timeout
func (f FetchConfig) GetReadTimeout() time.Duration {
	return parseDurationOr(f.ReadTimeout, defaultFetchTimeout)
}

// GetWriteTimeout returns the outbound write timeout
func (f FetchConfig) GetWriteTimeout() time.Duration {
	return parseDurationOr(f.WriteTimeout, defaultFetchTimeout)
}

// GetMaxEntries returns the LRU bound
func (c CacheConfig) GetMaxEntries() int {
	if c.MaxEntries <= 0 {
		return defaultMaxEntries
	}
	return c.MaxEntries
}

// GetMaxAge returns the optional age bound, zero when disabled
func (c CacheConfig) GetMaxAge() time.Duration {
	return parseDurationOr(c.MaxAge, 0)
}

// GetRefreshTimeout returns the bound on one detached refresh
func (c CacheConfig) GetRefreshTimeout() time.Duration {
	return parseDurationOr(c.RefreshTimeout, defaultRefreshTimeout)
}

// GetInterval returns the patch watch interval; zero disables the watcher
func (p PatchWatchConfig) GetInterval() time.Duration {
	return parseDurationOr(p.Interval, defaultPatchWatchInterval)
}

// GetBurst returns the limiter burst for the source
func (s SourceConfig) GetBurst() int {
	if s.Burst <= 0 {
		return 1
	}
	return s.Burst
}

// SourceNames returns the configured source names in order
func (c *Config) SourceNames() []string {
	names := make([]string, 0, len(c.Sources))
	for _, src := range c.Sources {
		names = append(names, src.Name)
	}
	return names
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
