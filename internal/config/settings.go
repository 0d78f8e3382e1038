package config

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/fmueller/dictado/internal/dispatch"
	"github.com/fmueller/dictado/internal/provider"
	"github.com/fmueller/dictado/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	DefaultProvider = provider.KindGroq
	DefaultLanguage = "auto"
)

// Settings are the CLI's per-user preferences, stored as YAML.
type Settings struct {
	Identity   string `mapstructure:"identity" yaml:"identity" validate:"required"`
	Provider   string `mapstructure:"provider" yaml:"provider" validate:"oneof=openai groq backend"`
	APIKey     string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	BackendURL string `mapstructure:"backend_url" yaml:"backend_url,omitempty" validate:"omitempty,url"`
	Token      string `mapstructure:"token" yaml:"token,omitempty"`
	Language   string `mapstructure:"language" yaml:"language"`
	Model      string `mapstructure:"model" yaml:"model,omitempty"`
	Prompt     string `mapstructure:"prompt" yaml:"prompt,omitempty"`
	LicenseKey string `mapstructure:"license_key" yaml:"license_key,omitempty"`
	Sound      bool   `mapstructure:"sound" yaml:"sound"`
}

func DefaultSettings() Settings {
	return Settings{
		Provider: string(DefaultProvider),
		Language: DefaultLanguage,
		Sound:    true,
	}
}

// LoadSettings reads path. A missing file yields defaults. An identity is
// minted and saved on first load so it stays stable afterwards.
func LoadSettings(path string) (Settings, error) {
	settings := DefaultSettings()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return Settings{}, fmt.Errorf("read settings %s: %w", path, err)
		}
	} else if err := v.Unmarshal(&settings); err != nil {
		return Settings{}, fmt.Errorf("decode settings %s: %w", path, err)
	}

	if settings.Identity == "" {
		settings.Identity = uuid.NewString()
		if err := settings.Save(path); err != nil {
			return Settings{}, err
		}
	}
	return settings, nil
}

// Save validates and writes the settings. The file holds credentials and
// is created readable by the owner only.
func (s Settings) Save(path string) error {
	if err := validateStruct(s); err != nil {
		return err
	}
	content, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := store.WriteFileAtomic(path, content); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// DispatchConfig returns the provider selection these settings describe.
func (s Settings) DispatchConfig() dispatch.Config {
	return dispatch.Config{
		Provider:   provider.Kind(s.Provider),
		APIKey:     s.APIKey,
		BackendURL: s.BackendURL,
		Token:      s.Token,
		DeviceID:   s.Identity,
	}
}

func (s Settings) ProviderOptions() provider.Options {
	return provider.Options{Language: s.Language, Model: s.Model, Prompt: s.Prompt}
}

var settingSetters = map[string]func(*Settings, string) error{
	"provider": func(s *Settings, value string) error {
		kind, err := provider.ParseKind(value)
		if err != nil {
			return err
		}
		s.Provider = string(kind)
		return nil
	},
	"api-key":     func(s *Settings, value string) error { s.APIKey = value; return nil },
	"backend-url": func(s *Settings, value string) error { s.BackendURL = strings.TrimRight(value, "/"); return nil },
	"token":       func(s *Settings, value string) error { s.Token = value; return nil },
	"language": func(s *Settings, value string) error {
		if value == "" {
			value = DefaultLanguage
		}
		s.Language = strings.ToLower(value)
		return nil
	},
	"model":  func(s *Settings, value string) error { s.Model = value; return nil },
	"prompt": func(s *Settings, value string) error { s.Prompt = value; return nil },
	"sound": func(s *Settings, value string) error {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("sound must be true or false: %w", err)
		}
		s.Sound = enabled
		return nil
	},
}

// SettingKeys lists the keys accepted by Set.
func SettingKeys() []string {
	keys := make([]string, 0, len(settingSetters))
	for key := range settingSetters {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Set updates one user-editable setting by key.
func (s *Settings) Set(key, value string) error {
	setter, ok := settingSetters[key]
	if !ok {
		return fmt.Errorf("unknown setting %q (known settings: %s)", key, strings.Join(SettingKeys(), ", "))
	}
	return setter(s, strings.TrimSpace(value))
}

// Redacted returns a copy safe to print: credentials keep only their last
// four characters.
func (s Settings) Redacted() Settings {
	s.APIKey = redact(s.APIKey)
	s.Token = redact(s.Token)
	return s
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}
