// Package config loads the metering server configuration and the CLI's
// per-user settings.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fmueller/dictado/internal/quota"
	"github.com/fmueller/dictado/internal/store"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	envPrefix   = "DICTADO"
	DefaultPort = "3001"
)

// Server is the configuration of `dictado serve`.
type Server struct {
	Port            string        `validate:"required,numeric"`
	GroqAPIKey      string
	AdminKey        string
	TokenSecret     string        `validate:"omitempty,min=16"`
	ProviderTimeout time.Duration `validate:"gt=0"`
	DailyLimit      float64       `validate:"gt=0"`
	MaxUploadBytes  int64         `validate:"gt=0"`
	HistoryFile     string
	Store           StoreConfig
}

type StoreConfig struct {
	Driver string `validate:"oneof=file redis sql"`
	File   string `validate:"required_if=Driver file"`
	Redis  store.RedisOptions
	SQL    store.SQLOptions
}

// StoreOptions converts the store section into store.Options.
func (s Server) StoreOptions() store.Options {
	return store.Options{
		Driver: s.Store.Driver,
		Path:   s.Store.File,
		Redis:  s.Store.Redis,
		SQL:    s.Store.SQL,
	}
}

// LoadServer reads configuration from an optional YAML file and the
// environment. DICTADO_* variables override the file; GROQ_API_KEY, ADMIN_KEY
// and PORT are honoured as well.
func LoadServer(configFile string) (Server, error) {
	v := viper.New()
	setServerDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("dictado")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Server{}, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("groq_api_key", "DICTADO_GROQ_API_KEY", "GROQ_API_KEY")
	_ = v.BindEnv("admin_key", "DICTADO_ADMIN_KEY", "ADMIN_KEY")
	_ = v.BindEnv("port", "DICTADO_PORT", "PORT")

	cfg := Server{
		Port:            v.GetString("port"),
		GroqAPIKey:      v.GetString("groq_api_key"),
		AdminKey:        v.GetString("admin_key"),
		TokenSecret:     v.GetString("token_secret"),
		ProviderTimeout: v.GetDuration("provider_timeout"),
		DailyLimit:      v.GetFloat64("daily_limit"),
		MaxUploadBytes:  v.GetInt64("max_upload_bytes"),
		HistoryFile:     v.GetString("history_file"),
		Store: StoreConfig{
			Driver: v.GetString("store.driver"),
			File:   v.GetString("store.file"),
			Redis: store.RedisOptions{
				Addr:     v.GetString("store.redis.addr"),
				Password: v.GetString("store.redis.password"),
				DB:       v.GetInt("store.redis.db"),
				Prefix:   v.GetString("store.redis.prefix"),
			},
			SQL: store.SQLOptions{
				Dialect: v.GetString("store.sql.dialect"),
				DSN:     v.GetString("store.sql.dsn"),
			},
		},
	}

	if err := validateStruct(cfg); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

func setServerDefaults(v *viper.Viper) {
	v.SetDefault("port", DefaultPort)
	v.SetDefault("groq_api_key", "")
	v.SetDefault("admin_key", "")
	v.SetDefault("token_secret", "")
	v.SetDefault("provider_timeout", 2*time.Minute)
	v.SetDefault("daily_limit", float64(quota.DailyLimitMinutes))
	v.SetDefault("max_upload_bytes", int64(25<<20))
	v.SetDefault("history_file", "")
	v.SetDefault("store.driver", store.DriverFile)
	v.SetDefault("store.file", "data.json")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.prefix", "dictado")
	v.SetDefault("store.sql.dialect", store.DialectSQLite)
	v.SetDefault("store.sql.dsn", "dictado.db")
}

var validate = validator.New()

// validateStruct reports the first failed rule as a readable error.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	first := fieldErrs[0]
	if first.Param() != "" {
		return fmt.Errorf("invalid configuration: %s fails %q (%s)", first.Namespace(), first.Tag(), first.Param())
	}
	return fmt.Errorf("invalid configuration: %s fails %q", first.Namespace(), first.Tag())
}
