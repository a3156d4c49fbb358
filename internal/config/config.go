package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                 = "WEDDING"
	defaultHTTPAddress        = "0.0.0.0:8080"
	defaultEnvironment        = EnvironmentProduction
	defaultDatabaseDriver     = DatabaseDriverSQLite
	defaultDatabasePath       = "wedding.db"
	defaultLogLevel           = "info"
	defaultFeedPollInterval   = 10 * time.Second
	defaultChangefeedBackend  = ChangefeedBackendLocal
	defaultRedisChannelPrefix = "wedding:changes"
	defaultSiteBaseURL        = "http://localhost:8080"
	defaultWeddingCouple      = "P&M"
	defaultWeddingDate        = "2026-04-25T17:00:00+07:00"
	defaultWeddingVenue       = "Grand Ballroom, Paradise Hotel"
)

// Environment names accepted by the environment key.
const (
	EnvironmentDevelopment = "development"
	EnvironmentProduction  = "production"
)

// Database drivers accepted by database.driver.
const (
	DatabaseDriverSQLite   = "sqlite"
	DatabaseDriverPostgres = "postgres"
)

// Change notification backends accepted by changefeed.backend.
const (
	ChangefeedBackendLocal    = "local"
	ChangefeedBackendRedis    = "redis"
	ChangefeedBackendPostgres = "postgres"
)

// AppConfig captures runtime configuration for the invitation server.
type AppConfig struct {
	HTTPAddress        string
	Environment        string
	LogLevel           string
	DatabaseDriver     string
	DatabasePath       string
	DatabaseDSN        string
	FeedPollInterval   time.Duration
	ChangefeedBackend  string
	RedisURL           string
	RedisChannelPrefix string
	SiteBaseURL        string
	AllowedOrigins     []string
	WeddingCouple      string
	WeddingDate        time.Time
	WeddingVenue       string
}

// SecureCookies reports whether cookies should carry the Secure attribute.
func (c AppConfig) SecureCookies() bool {
	return c.Environment != EnvironmentDevelopment
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("environment", defaultEnvironment)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("database.dsn", "")
	configViper.SetDefault("feed.poll_interval", defaultFeedPollInterval)
	configViper.SetDefault("changefeed.backend", defaultChangefeedBackend)
	configViper.SetDefault("redis.url", "")
	configViper.SetDefault("redis.channel_prefix", defaultRedisChannelPrefix)
	configViper.SetDefault("site.base_url", defaultSiteBaseURL)
	configViper.SetDefault("cors.allowed_origins", []string{})
	configViper.SetDefault("wedding.couple", defaultWeddingCouple)
	configViper.SetDefault("wedding.date", defaultWeddingDate)
	configViper.SetDefault("wedding.venue", defaultWeddingVenue)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	weddingDate, err := time.Parse(time.RFC3339, strings.TrimSpace(configViper.GetString("wedding.date")))
	if err != nil {
		return AppConfig{}, fmt.Errorf("wedding.date must be RFC3339: %w", err)
	}

	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		Environment:        strings.ToLower(strings.TrimSpace(configViper.GetString("environment"))),
		LogLevel:           configViper.GetString("log.level"),
		DatabaseDriver:     strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:       configViper.GetString("database.path"),
		DatabaseDSN:        configViper.GetString("database.dsn"),
		FeedPollInterval:   configViper.GetDuration("feed.poll_interval"),
		ChangefeedBackend:  strings.ToLower(strings.TrimSpace(configViper.GetString("changefeed.backend"))),
		RedisURL:           configViper.GetString("redis.url"),
		RedisChannelPrefix: configViper.GetString("redis.channel_prefix"),
		SiteBaseURL:        strings.TrimRight(configViper.GetString("site.base_url"), "/"),
		AllowedOrigins:     configViper.GetStringSlice("cors.allowed_origins"),
		WeddingCouple:      configViper.GetString("wedding.couple"),
		WeddingDate:        weddingDate,
		WeddingVenue:       configViper.GetString("wedding.venue"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	switch c.Environment {
	case EnvironmentDevelopment, EnvironmentProduction:
	default:
		return fmt.Errorf("environment must be %q or %q", EnvironmentDevelopment, EnvironmentProduction)
	}
	switch c.DatabaseDriver {
	case DatabaseDriverSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required")
		}
	case DatabaseDriverPostgres:
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.DatabaseDriver)
	}
	if c.FeedPollInterval <= 0 {
		return fmt.Errorf("feed.poll_interval must be positive")
	}
	switch c.ChangefeedBackend {
	case ChangefeedBackendLocal:
	case ChangefeedBackendRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			return fmt.Errorf("redis.url is required for the redis changefeed backend")
		}
	case ChangefeedBackendPostgres:
		if c.DatabaseDriver != DatabaseDriverPostgres {
			return fmt.Errorf("changefeed.backend postgres requires database.driver postgres")
		}
	default:
		return fmt.Errorf("changefeed.backend %q is not supported", c.ChangefeedBackend)
	}
	if strings.TrimSpace(c.SiteBaseURL) == "" {
		return fmt.Errorf("site.base_url is required")
	}
	return nil
}
