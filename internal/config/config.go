// Package config loads the service configuration with viper.
// Precedence, lowest first: defaults, the YAML config file, VOICESURVEY_
// environment variables, flags bound by the caller.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/aretw0/voicesurvey/internal/logging"
	"github.com/aretw0/voicesurvey/pkg/domain"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. VOICESURVEY_PROVIDER_API_KEY.
const EnvPrefix = "VOICESURVEY"

type StoreType string

const (
	StoreMemory   StoreType = "memory"
	StoreRedis    StoreType = "redis"
	StoreMongo    StoreType = "mongo"
	StoreSQLite   StoreType = "sqlite"
	StorePostgres StoreType = "postgres"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Survey   SurveyConfig   `mapstructure:"survey"`
	Store    StoreConfig    `mapstructure:"store"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Provider ProviderConfig `mapstructure:"provider"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// PublicURL is the externally reachable /callStep URL. Empty derives it per request.
	PublicURL       string        `mapstructure:"public_url"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type SurveyConfig struct {
	Questions      string       `mapstructure:"questions"`
	StrictPayloads bool         `mapstructure:"strict_payloads"`
	Title          string       `mapstructure:"title"`
	Welcome        string       `mapstructure:"welcome"`
	Completion     string       `mapstructure:"completion"`
	Voice          domain.Voice `mapstructure:"voice"`
	FinishOnKey    string       `mapstructure:"finish_on_key"`
	RecordTimeout  int          `mapstructure:"record_timeout"`
}

type StoreConfig struct {
	Type StoreType `mapstructure:"type"`
	// EncryptionKey is a base64 AES-256 key sealing destination numbers at rest.
	EncryptionKey string   `mapstructure:"encryption_key"`
	FallbackKeys  []string `mapstructure:"fallback_keys"`
	// MaskDestination keeps only the last four digits of destination numbers.
	MaskDestination bool `mapstructure:"mask_destination"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
	// Lock serializes callbacks of one call across replicas.
	Lock    bool          `mapstructure:"lock"`
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

type MongoConfig struct {
	URI        string        `mapstructure:"uri"`
	Database   string        `mapstructure:"database"`
	Collection string        `mapstructure:"collection"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type ProviderConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers every key so environment overrides apply on Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.public_url", "")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("survey.questions", "questions.json")
	v.SetDefault("survey.strict_payloads", false)
	v.SetDefault("survey.title", domain.DefaultFlowTitle)
	v.SetDefault("survey.welcome", domain.DefaultWelcomeTemplate)
	v.SetDefault("survey.completion", domain.DefaultCompletionMessage)
	v.SetDefault("survey.voice.voice", domain.DefaultVoice.Voice)
	v.SetDefault("survey.voice.language", domain.DefaultVoice.Language)
	v.SetDefault("survey.finish_on_key", domain.DefaultFinishOnKey)
	v.SetDefault("survey.record_timeout", domain.DefaultRecordTimeout)

	v.SetDefault("store.type", string(StoreMemory))
	v.SetDefault("store.encryption_key", "")
	v.SetDefault("store.fallback_keys", []string{})
	v.SetDefault("store.mask_destination", false)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "voicesurvey:participant:")
	v.SetDefault("redis.ttl", time.Duration(0))
	v.SetDefault("redis.lock", false)
	v.SetDefault("redis.lock_ttl", 30*time.Second)

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "voicesurvey")
	v.SetDefault("mongo.collection", "survey_participants")
	v.SetDefault("mongo.timeout", 5*time.Second)

	v.SetDefault("sqlite.path", "voicesurvey.db")

	v.SetDefault("postgres.dsn", "")

	v.SetDefault("provider.base_url", "https://voice.messagebird.com")
	v.SetDefault("provider.api_key", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configFile (if not empty) and the environment into a validated Config.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		storeTypeHook(),
	)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// storeTypeHook normalizes store names, so "Redis" and " redis " both select redis.
func storeTypeHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf(StoreType("")) {
			return data, nil
		}
		return StoreType(strings.ToLower(strings.TrimSpace(data.(string)))), nil
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Type {
	case StoreMemory:
	case StoreRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis store"))
		}
	case StoreMongo:
		if c.Mongo.URI == "" {
			errs = append(errs, errors.New("mongo.uri is required for the mongo store"))
		}
	case StoreSQLite:
		if c.SQLite.Path == "" {
			errs = append(errs, errors.New("sqlite.path is required for the sqlite store"))
		}
	case StorePostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres.dsn is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store type %q (want memory, redis, mongo, sqlite or postgres)", c.Store.Type))
	}

	if c.Store.EncryptionKey != "" {
		if _, err := DecodeKey(c.Store.EncryptionKey); err != nil {
			errs = append(errs, fmt.Errorf("store.encryption_key: %w", err))
		}
	}
	for i, k := range c.Store.FallbackKeys {
		if _, err := DecodeKey(k); err != nil {
			errs = append(errs, fmt.Errorf("store.fallback_keys[%d]: %w", i, err))
		}
	}
	if c.Redis.Lock && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when redis.lock is enabled"))
	}
	if c.Survey.Questions == "" {
		errs = append(errs, errors.New("survey.questions is required"))
	}
	if c.Survey.RecordTimeout < 0 {
		errs = append(errs, errors.New("survey.record_timeout must not be negative"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// DecodeKey decodes a base64 AES-256 key.
func DecodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("key is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}
