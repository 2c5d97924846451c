package app

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"teamdash/cmd/internal/apiclient"
	"teamdash/cmd/internal/notify"

	"gopkg.in/yaml.v3"
)

// Token store backends.
const (
	StoreFile     = "file"
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Log formats.
const (
	LogFormatJSON   = "json"
	LogFormatPretty = "pretty"
)

// ErrConfig wraps every configuration problem reported by LoadConfig.
var ErrConfig = errors.New("invalid config")

// Config contains all runtime configuration.
//
// Values are layered: built-in defaults, then the YAML file named by
// TEAMDASH_CONFIG, then TEAMDASH_* variables (a .env file named by
// TEAMDASH_ENV_FILE only fills variables that are not already set).
type Config struct {
	APIBaseURL     string
	HTTPTimeout    time.Duration
	RefreshTimeout time.Duration
	UserAgent      string

	LogLevel  string
	LogFormat string

	TokenStore      string
	TokenFile       string
	VaultPassphrase string

	// If true, the file store refuses to write tokens in plaintext.
	RequireVault bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	DatabaseURL  string
	DBMaxConns   int32
	DBMinConns   int32
	TokenProfile string

	Heartbeat  time.Duration
	PingFormat notify.PingFormat
	FeedSize   int

	// Serves /metrics, /healthz and /readyz while `watch` runs. Empty disables it.
	MetricsAddr string
}

// fileConfig is the YAML layout of TEAMDASH_CONFIG.
type fileConfig struct {
	API struct {
		BaseURL        string `yaml:"base_url"`
		Timeout        string `yaml:"timeout"`
		RefreshTimeout string `yaml:"refresh_timeout"`
		UserAgent      string `yaml:"user_agent"`
	} `yaml:"api"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	Tokens struct {
		Store        string `yaml:"store"`
		File         string `yaml:"file"`
		RequireVault bool   `yaml:"require_vault"`
		Redis        struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		Postgres struct {
			URL      string `yaml:"url"`
			MaxConns int32  `yaml:"max_conns"`
			MinConns int32  `yaml:"min_conns"`
			Profile  string `yaml:"profile"`
		} `yaml:"postgres"`
	} `yaml:"tokens"`

	Notify struct {
		Heartbeat  string `yaml:"heartbeat"`
		PingFormat string `yaml:"ping_format"`
		FeedSize   int    `yaml:"feed_size"`
	} `yaml:"notify"`

	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		APIBaseURL:     apiclient.DefaultBaseURL,
		HTTPTimeout:    30 * time.Second,
		RefreshTimeout: 15 * time.Second,
		UserAgent:      "teamdash",

		LogLevel:  "warn",
		LogFormat: LogFormatJSON,

		TokenStore:  StoreFile,
		TokenFile:   defaultTokenFile(),
		RedisAddr:   "127.0.0.1:6379",
		RedisPrefix: "teamdash:",

		DBMaxConns:   4,
		TokenProfile: "default",

		Heartbeat:  notify.DefaultHeartbeat,
		PingFormat: notify.PingJSON,
		FeedSize:   notify.DefaultFeedSize,
	}
}

// LoadConfig loads Config from the optional .env and YAML files and the environment.
func LoadConfig() (Config, error) {
	if p := strings.TrimSpace(os.Getenv("TEAMDASH_ENV_FILE")); p != "" {
		if err := LoadDotEnv(p); err != nil {
			return Config{}, fmt.Errorf("%w: env file: %v", ErrConfig, err)
		}
	}

	cfg := DefaultConfig()
	if p := strings.TrimSpace(os.Getenv("TEAMDASH_CONFIG")); p != "" {
		if err := applyConfigFile(&cfg, p); err != nil {
			return Config{}, err
		}
	}

	var env envReader
	cfg.APIBaseURL = env.String("TEAMDASH_API_URL", cfg.APIBaseURL)
	cfg.HTTPTimeout = env.Duration("TEAMDASH_HTTP_TIMEOUT", cfg.HTTPTimeout)
	cfg.RefreshTimeout = env.Duration("TEAMDASH_REFRESH_TIMEOUT", cfg.RefreshTimeout)
	cfg.UserAgent = env.String("TEAMDASH_USER_AGENT", cfg.UserAgent)

	cfg.LogLevel = env.String("TEAMDASH_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(env.String("TEAMDASH_LOG_FORMAT", cfg.LogFormat))

	cfg.TokenStore = strings.ToLower(env.String("TEAMDASH_TOKEN_STORE", cfg.TokenStore))
	cfg.TokenFile = env.String("TEAMDASH_TOKEN_FILE", cfg.TokenFile)
	cfg.VaultPassphrase = os.Getenv("TEAMDASH_VAULT_PASSPHRASE")
	cfg.RequireVault = env.Bool("TEAMDASH_REQUIRE_VAULT", cfg.RequireVault)

	cfg.RedisAddr = env.String("TEAMDASH_REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = env.String("TEAMDASH_REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = env.Int("TEAMDASH_REDIS_DB", cfg.RedisDB)
	cfg.RedisPrefix = env.String("TEAMDASH_REDIS_PREFIX", cfg.RedisPrefix)

	cfg.DatabaseURL = env.String("TEAMDASH_DATABASE_URL", cfg.DatabaseURL)
	cfg.DBMaxConns = env.Int32("TEAMDASH_DB_MAX_CONNS", cfg.DBMaxConns)
	cfg.DBMinConns = env.Int32("TEAMDASH_DB_MIN_CONNS", cfg.DBMinConns)
	cfg.TokenProfile = env.String("TEAMDASH_TOKEN_PROFILE", cfg.TokenProfile)

	cfg.Heartbeat = env.Duration("TEAMDASH_HEARTBEAT_INTERVAL", cfg.Heartbeat)
	cfg.FeedSize = env.Int("TEAMDASH_FEED_SIZE", cfg.FeedSize)
	if v := env.String("TEAMDASH_PING_FORMAT", ""); v != "" {
		pf, err := notify.ParsePingFormat(v)
		if err != nil {
			env.fail("TEAMDASH_PING_FORMAT", v, "want json or text")
		} else {
			cfg.PingFormat = pf
		}
	}

	cfg.MetricsAddr = env.String("TEAMDASH_METRICS_ADDR", cfg.MetricsAddr)

	if err := env.Err(); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("api base url %q must be an absolute http(s) URL", c.APIBaseURL))
	}

	switch c.LogFormat {
	case LogFormatJSON, LogFormatPretty:
	default:
		errs = append(errs, fmt.Errorf("log format %q: want json or pretty", c.LogFormat))
	}

	switch c.TokenStore {
	case StoreMemory:
	case StoreFile:
		if strings.TrimSpace(c.TokenFile) == "" {
			errs = append(errs, errors.New("token file path is required for the file store"))
		}
	case StoreRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			errs = append(errs, errors.New("redis address is required for the redis store"))
		}
	case StorePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			errs = append(errs, errors.New("database url is required for the postgres store"))
		}
		if c.DBMinConns > c.DBMaxConns && c.DBMaxConns > 0 {
			errs = append(errs, fmt.Errorf("db min conns %d exceeds max conns %d", c.DBMinConns, c.DBMaxConns))
		}
	default:
		errs = append(errs, fmt.Errorf("token store %q: want file, memory, redis or postgres", c.TokenStore))
	}

	if c.FeedSize <= 0 {
		errs = append(errs, fmt.Errorf("feed size %d must be positive", c.FeedSize))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrConfig, errors.Join(errs...))
}

func applyConfigFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: reading config file: %v", ErrConfig, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("%w: parsing config file: %v", ErrConfig, err)
	}

	setString(&cfg.APIBaseURL, fc.API.BaseURL)
	setString(&cfg.UserAgent, fc.API.UserAgent)
	setString(&cfg.LogLevel, fc.Log.Level)
	setString(&cfg.LogFormat, strings.ToLower(fc.Log.Format))
	setString(&cfg.TokenStore, strings.ToLower(fc.Tokens.Store))
	setString(&cfg.TokenFile, fc.Tokens.File)
	cfg.RequireVault = cfg.RequireVault || fc.Tokens.RequireVault
	setString(&cfg.RedisAddr, fc.Tokens.Redis.Addr)
	setString(&cfg.RedisPassword, fc.Tokens.Redis.Password)
	setString(&cfg.RedisPrefix, fc.Tokens.Redis.Prefix)
	if fc.Tokens.Redis.DB > 0 {
		cfg.RedisDB = fc.Tokens.Redis.DB
	}
	setString(&cfg.DatabaseURL, fc.Tokens.Postgres.URL)
	setString(&cfg.TokenProfile, fc.Tokens.Postgres.Profile)
	if fc.Tokens.Postgres.MaxConns > 0 {
		cfg.DBMaxConns = fc.Tokens.Postgres.MaxConns
	}
	if fc.Tokens.Postgres.MinConns > 0 {
		cfg.DBMinConns = fc.Tokens.Postgres.MinConns
	}
	if fc.Notify.FeedSize > 0 {
		cfg.FeedSize = fc.Notify.FeedSize
	}
	setString(&cfg.MetricsAddr, fc.Metrics.Addr)

	var errs []error
	setDuration(&cfg.HTTPTimeout, "api.timeout", fc.API.Timeout, &errs)
	setDuration(&cfg.RefreshTimeout, "api.refresh_timeout", fc.API.RefreshTimeout, &errs)
	setDuration(&cfg.Heartbeat, "notify.heartbeat", fc.Notify.Heartbeat, &errs)
	if fc.Notify.PingFormat != "" {
		pf, err := notify.ParsePingFormat(fc.Notify.PingFormat)
		if err != nil {
			errs = append(errs, fmt.Errorf("notify.ping_format: %w", err))
		} else {
			cfg.PingFormat = pf
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s: %w", ErrConfig, path, errors.Join(errs...))
	}
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key, v string, errs *[]error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		*errs = append(*errs, fmt.Errorf("%s=%q: want a positive duration", key, v))
		return
	}
	*dst = d
}

func defaultTokenFile() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "teamdash", "tokens.json")
	}
	return filepath.Join(".teamdash", "tokens.json")
}
