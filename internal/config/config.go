package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix             = "LUMINA"
	defaultHTTPAddress    = "127.0.0.1:8080"
	defaultStorageDriver  = StorageDriverSQLite
	defaultNotesKey       = "lumina_notes"
	defaultDatabasePath   = "lumina.db"
	defaultRedisAddress   = "127.0.0.1:6379"
	defaultRedisKeyPrefix = "lumina:"
	defaultEditDebounce   = time.Second
	defaultSessionTTL     = 12 * time.Hour
	defaultCookieName     = "lumina_session"
	defaultLogLevel       = "info"
)

// Supported storage drivers.
const (
	StorageDriverSQLite = "sqlite"
	StorageDriverRedis  = "redis"
	StorageDriverMemory = "memory"
)

// AppConfig captures runtime configuration for the notes server and CLI.
type AppConfig struct {
	HTTPAddress       string
	AllowedOrigins    []string
	StorageDriver     string
	NotesKey          string
	DatabasePath      string
	RedisAddress      string
	RedisKeyPrefix    string
	EditDebounce      time.Duration
	GatePassword      string
	SessionTTL        time.Duration
	SessionCookieName string
	LogLevel          string
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
	configViper.SetDefault("http.allowed_origins", []string{})
	configViper.SetDefault("storage.driver", defaultStorageDriver)
	configViper.SetDefault("storage.notes_key", defaultNotesKey)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("redis.address", defaultRedisAddress)
	configViper.SetDefault("redis.key_prefix", defaultRedisKeyPrefix)
	configViper.SetDefault("editor.debounce", defaultEditDebounce)
	configViper.SetDefault("gate.password", "")
	configViper.SetDefault("session.ttl", defaultSessionTTL)
	configViper.SetDefault("session.cookie_name", defaultCookieName)
	configViper.SetDefault("log.level", defaultLogLevel)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:       strings.TrimSpace(configViper.GetString("http.address")),
		AllowedOrigins:    parseOrigins(configViper.GetStringSlice("http.allowed_origins")),
		StorageDriver:     strings.ToLower(strings.TrimSpace(configViper.GetString("storage.driver"))),
		NotesKey:          strings.TrimSpace(configViper.GetString("storage.notes_key")),
		DatabasePath:      strings.TrimSpace(configViper.GetString("database.path")),
		RedisAddress:      strings.TrimSpace(configViper.GetString("redis.address")),
		RedisKeyPrefix:    configViper.GetString("redis.key_prefix"),
		EditDebounce:      configViper.GetDuration("editor.debounce"),
		GatePassword:      configViper.GetString("gate.password"),
		SessionTTL:        configViper.GetDuration("session.ttl"),
		SessionCookieName: strings.TrimSpace(configViper.GetString("session.cookie_name")),
		LogLevel:          configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if c.HTTPAddress == "" {
		return fmt.Errorf("http.address is required")
	}
	for _, origin := range c.AllowedOrigins {
		if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("http.allowed_origins entry %q must be an http or https origin", origin)
		}
	}
	if c.NotesKey == "" {
		return fmt.Errorf("storage.notes_key is required")
	}
	switch c.StorageDriver {
	case StorageDriverSQLite:
		if c.DatabasePath == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case StorageDriverRedis:
		if c.RedisAddress == "" {
			return fmt.Errorf("redis.address is required for the redis driver")
		}
	case StorageDriverMemory:
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.StorageDriver)
	}
	if c.EditDebounce <= 0 {
		return fmt.Errorf("editor.debounce must be positive")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session.ttl must be positive")
	}
	if c.SessionCookieName == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if c.GatePassword != "" && len([]rune(c.GatePassword)) < 4 {
		return fmt.Errorf("gate.password must be at least 4 characters")
	}
	return nil
}

// parseOrigins accepts list entries as well as comma separated values from env.
func parseOrigins(values []string) []string {
	origins := []string{}
	for _, value := range values {
		for _, origin := range strings.Split(value, ",") {
			origin = strings.TrimRight(strings.TrimSpace(origin), "/")
			if origin != "" {
				origins = append(origins, origin)
			}
		}
	}
	return origins
}
