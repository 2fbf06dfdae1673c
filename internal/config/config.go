package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds connection details for the research server.
type ServerConfig struct {
	BaseURL     string `yaml:"base_url" validate:"required,url"`
	TokenEnv    string `yaml:"token_env"`
	TimeoutSecs int    `yaml:"timeout_secs" validate:"gt=0"`
}

// EmbeddingConfig bounds the indexing calls.
type EmbeddingConfig struct {
	SubmitTimeoutSecs int `yaml:"submit_timeout_secs" validate:"gt=0"`
	PollTimeoutSecs   int `yaml:"poll_timeout_secs" validate:"gt=0"`
}

// ChatConfig configures conversation behaviour.
type ChatConfig struct {
	SendTimeoutSecs int `yaml:"send_timeout_secs" validate:"gt=0"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level   string `yaml:"level" validate:"oneof=debug info warn error"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chat      ChatConfig      `yaml:"chat"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// Timeout returns the per-request timeout for ordinary server calls.
func (c ServerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// SubmitTimeout bounds one embedding submission (both batches).
func (c EmbeddingConfig) SubmitTimeout() time.Duration {
	return time.Duration(c.SubmitTimeoutSecs) * time.Second
}

// PollTimeout bounds one status query.
func (c EmbeddingConfig) PollTimeout() time.Duration {
	return time.Duration(c.PollTimeoutSecs) * time.Second
}

// SendTimeout bounds one message exchange.
func (c ChatConfig) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSecs) * time.Second
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	applyEnvOverrides(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/researchchat/config.yaml.
// If neither exists, it writes defaults to ~/.config/researchchat/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	applyEnvOverrides(cfg)
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks field constraints.
func Validate(cfg *AppConfig) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Token returns the API token from the environment variable named in the config.
func (c ServerConfig) Token() string {
	if c.TokenEnv == "" {
		return ""
	}
	return os.Getenv(c.TokenEnv)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "researchchat", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Server:    ServerConfig{BaseURL: "http://localhost:8000", TokenEnv: "RESEARCHCHAT_TOKEN", TimeoutSecs: 30},
		Embedding: EmbeddingConfig{SubmitTimeoutSecs: 600, PollTimeoutSecs: 15},
		Chat:      ChatConfig{SendTimeoutSecs: 180},
		Logging:   LoggingConfig{Level: "info", File: defaultLogPath()},
	}
	return cfg
}

func defaultLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "researchchat.log"
	}
	return filepath.Join(home, ".config", "researchchat", "researchchat.log")
}

func applyConfigDefaults(cfg *AppConfig) {
	def := defaultConfig()
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = def.Server.BaseURL
	}
	if cfg.Server.TokenEnv == "" {
		cfg.Server.TokenEnv = def.Server.TokenEnv
	}
	if cfg.Server.TimeoutSecs == 0 {
		cfg.Server.TimeoutSecs = def.Server.TimeoutSecs
	}
	if cfg.Embedding.SubmitTimeoutSecs == 0 {
		cfg.Embedding.SubmitTimeoutSecs = def.Embedding.SubmitTimeoutSecs
	}
	if cfg.Embedding.PollTimeoutSecs == 0 {
		cfg.Embedding.PollTimeoutSecs = def.Embedding.PollTimeoutSecs
	}
	if cfg.Chat.SendTimeoutSecs == 0 {
		cfg.Chat.SendTimeoutSecs = def.Chat.SendTimeoutSecs
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = def.Logging.File
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv("RESEARCHCHAT_BASE_URL"); v != "" {
		cfg.Server.BaseURL = v
	}
	if v := os.Getenv("RESEARCHCHAT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
