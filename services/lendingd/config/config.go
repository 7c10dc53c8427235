package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"yeifinance/crypto"
	"yeifinance/services/lending/indexer"
	"yeifinance/services/lending/middleware"
)

const (
	defaultListen  = ":8080"
	defaultTimeout = 10 * time.Second

	// StorageMemory keeps protocol state in process memory.
	StorageMemory = "memory"
	// StorageLevelDB persists protocol state in a LevelDB directory.
	StorageLevelDB = "leveldb"

	minSecretLength = 16
)

// Config captures the runtime settings for the lending service daemon.
type Config struct {
	ListenAddress  string                     `yaml:"listen"`
	Environment    string                     `yaml:"environment"`
	RequestTimeout time.Duration              `yaml:"request_timeout"`
	TLS            TLSConfig                  `yaml:"tls"`
	Auth           AuthConfig                 `yaml:"auth"`
	Storage        StorageConfig              `yaml:"storage"`
	Genesis        GenesisConfig              `yaml:"genesis"`
	Indexer        IndexerConfig              `yaml:"indexer"`
	Log            LogConfig                  `yaml:"log"`
	RateLimits     map[string]RateLimitConfig `yaml:"rate_limits"`
	CORS           CORSConfig                 `yaml:"cors"`
}

// TLSConfig describes the TLS material for the HTTP listener.
type TLSConfig struct {
	CertPath      string `yaml:"cert"`
	KeyPath       string `yaml:"key"`
	ClientCAPath  string `yaml:"client_ca"`
	AllowInsecure bool   `yaml:"allow_insecure"`
}

// AuthConfig configures bearer token verification for mutating routes.
type AuthConfig struct {
	Enabled   bool          `yaml:"enabled"`
	JWTSecret string        `yaml:"jwt_secret"`
	Issuer    string        `yaml:"issuer"`
	Audience  string        `yaml:"audience"`
	ClockSkew time.Duration `yaml:"clock_skew"`
}

// StorageConfig selects the state backend.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// GenesisConfig names the genesis file. Without a path the default deployment
// is minted to Deployer.
type GenesisConfig struct {
	Path     string `yaml:"path"`
	Deployer string `yaml:"deployer"`
}

// IndexerConfig selects the event history database.
type IndexerConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// LogConfig controls log verbosity and the optional rotated file sink.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// RateLimitConfig bounds one route class.
type RateLimitConfig struct {
	RatePerSecond float64        `yaml:"rate_per_second"`
	Burst         int            `yaml:"burst"`
	Tokens        map[string]int `yaml:"tokens"`
}

// CORSConfig lists the browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowCredentials bool     `yaml:"allow_credentials"`
}

// Load reads the YAML configuration from disk, applies LENDINGD_* environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{ListenAddress: defaultListen}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.applyEnv(os.Getenv)
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) applyEnv(getenv func(string) string) {
	overrides := []struct {
		key    string
		target *string
	}{
		{"LENDINGD_LISTEN", &cfg.ListenAddress},
		{"LENDINGD_ENV", &cfg.Environment},
		{"LENDINGD_JWT_SECRET", &cfg.Auth.JWTSecret},
		{"LENDINGD_STORAGE_PATH", &cfg.Storage.Path},
		{"LENDINGD_GENESIS", &cfg.Genesis.Path},
		{"LENDINGD_INDEXER_DSN", &cfg.Indexer.DSN},
		{"LENDINGD_LOG_LEVEL", &cfg.Log.Level},
	}
	for _, o := range overrides {
		if value := strings.TrimSpace(getenv(o.key)); value != "" {
			*o.target = value
		}
	}
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListen
	}
	cfg.Environment = strings.TrimSpace(cfg.Environment)
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultTimeout
	}
	cfg.TLS.normalize()
	cfg.Auth.JWTSecret = strings.TrimSpace(cfg.Auth.JWTSecret)
	cfg.Auth.Issuer = strings.TrimSpace(cfg.Auth.Issuer)
	cfg.Auth.Audience = strings.TrimSpace(cfg.Auth.Audience)

	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = StorageMemory
	}
	cfg.Storage.Path = strings.TrimSpace(cfg.Storage.Path)
	cfg.Genesis.Path = strings.TrimSpace(cfg.Genesis.Path)
	cfg.Genesis.Deployer = strings.TrimSpace(cfg.Genesis.Deployer)

	cfg.Indexer.Driver = strings.ToLower(strings.TrimSpace(cfg.Indexer.Driver))
	if cfg.Indexer.Driver == "" {
		cfg.Indexer.Driver = indexer.DriverSQLite
	}
	cfg.Indexer.DSN = strings.TrimSpace(cfg.Indexer.DSN)
	cfg.Log.File = strings.TrimSpace(cfg.Log.File)

	origins := make([]string, 0, len(cfg.CORS.AllowedOrigins))
	for _, origin := range cfg.CORS.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	cfg.CORS.AllowedOrigins = origins
}

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if err := cfg.TLS.validate(); err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	if cfg.Auth.Enabled && len(cfg.Auth.JWTSecret) < minSecretLength {
		return fmt.Errorf("auth: jwt_secret must be at least %d bytes when auth is enabled", minSecretLength)
	}
	switch cfg.Storage.Backend {
	case StorageMemory:
	case StorageLevelDB:
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage: path is required for the leveldb backend")
		}
	default:
		return fmt.Errorf("storage: unknown backend %q", cfg.Storage.Backend)
	}
	if cfg.Genesis.Path == "" {
		if _, err := crypto.ParseAddress(cfg.Genesis.Deployer); err != nil {
			return fmt.Errorf("genesis: deployer is required without a genesis path: %w", err)
		}
	}
	switch cfg.Indexer.Driver {
	case indexer.DriverSQLite:
	case indexer.DriverPostgres:
		if cfg.Indexer.DSN == "" {
			return fmt.Errorf("indexer: dsn is required for postgres")
		}
	default:
		return fmt.Errorf("indexer: unknown driver %q", cfg.Indexer.Driver)
	}
	for class, limit := range cfg.RateLimits {
		if limit.RatePerSecond <= 0 || limit.Burst <= 0 {
			return fmt.Errorf("rate_limits.%s: rate_per_second and burst must be positive", class)
		}
	}
	return nil
}

func (cfg *TLSConfig) normalize() {
	if cfg == nil {
		return
	}
	cfg.CertPath = strings.TrimSpace(cfg.CertPath)
	cfg.KeyPath = strings.TrimSpace(cfg.KeyPath)
	cfg.ClientCAPath = strings.TrimSpace(cfg.ClientCAPath)
}

func (cfg TLSConfig) validate() error {
	hasCert := cfg.CertPath != ""
	hasKey := cfg.KeyPath != ""
	if hasCert != hasKey {
		return fmt.Errorf("cert and key must either both be provided or both be empty")
	}
	if !cfg.AllowInsecure && !hasCert {
		return fmt.Errorf("cert and key are required unless allow_insecure=true")
	}
	if cfg.ClientCAPath != "" && !hasCert {
		return fmt.Errorf("client_ca requires a server certificate and key")
	}
	return nil
}

// MTLSEnabled reports whether mutual TLS verification is configured.
func (cfg TLSConfig) MTLSEnabled() bool {
	return strings.TrimSpace(cfg.ClientCAPath) != ""
}

// Middleware converts the auth section into the server authenticator config.
func (cfg AuthConfig) Middleware() middleware.AuthConfig {
	return middleware.AuthConfig{
		Enabled:     cfg.Enabled,
		HMACSecret:  cfg.JWTSecret,
		Issuer:      cfg.Issuer,
		Audience:    cfg.Audience,
		PublicPaths: []string{"/healthz", "/metrics"},
		ClockSkew:   cfg.ClockSkew,
	}
}

// Limits converts the rate limit section, keyed by route class.
func (cfg Config) Limits() map[string]middleware.RateLimit {
	if len(cfg.RateLimits) == 0 {
		return nil
	}
	out := make(map[string]middleware.RateLimit, len(cfg.RateLimits))
	for class, limit := range cfg.RateLimits {
		out[class] = middleware.RateLimit{
			RatePerSecond: limit.RatePerSecond,
			Burst:         limit.Burst,
			DefaultTokens: 1,
			Tokens:        limit.Tokens,
		}
	}
	return out
}

// Middleware returns the CORS settings, nil when no origin is allowed.
func (cfg CORSConfig) Middleware() *middleware.CORSConfig {
	if len(cfg.AllowedOrigins) == 0 {
		return nil
	}
	return &middleware.CORSConfig{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowCredentials: cfg.AllowCredentials,
	}
}

// Indexer converts the indexer section.
func (cfg IndexerConfig) Indexer() indexer.Config {
	return indexer.Config{Driver: cfg.Driver, DSN: cfg.DSN}
}
