package claudeauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Duration parses from human-friendly strings (e.g., "60s") or numeric seconds.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if data[0] == '"' {
		var value string
		if err := json.Unmarshal(data, &value); err != nil {
			return err
		}
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	}
	var seconds int64
	if err := json.Unmarshal(data, &seconds); err != nil {
		return err
	}
	d.Duration = time.Duration(seconds) * time.Second
	return nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var text string
	if err := value.Decode(&text); err == nil {
		parsed, err := time.ParseDuration(text)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	}
	var seconds int64
	if err := value.Decode(&seconds); err == nil {
		d.Duration = time.Duration(seconds) * time.Second
		return nil
	}
	return errors.New("invalid duration format")
}

// Config holds the resolver's global configuration. OAuth endpoint details
// default to the Anthropic console and only need overriding for testing or
// self-hosted token services.
type Config struct {
	CredentialsPath  string   `json:"credentials_path" yaml:"credentials_path"`
	TokenEndpoint    string   `json:"token_endpoint" yaml:"token_endpoint"`
	ClientID         string   `json:"client_id" yaml:"client_id"`
	APIKeyEnv        string   `json:"api_key_env" yaml:"api_key_env"`
	RefreshThreshold Duration `json:"refresh_threshold" yaml:"refresh_threshold"`
	RequestTimeout   Duration `json:"request_timeout" yaml:"request_timeout"`
	WatchCredentials bool     `json:"watch_credentials" yaml:"watch_credentials"`
	LogLevel         string   `json:"log_level" yaml:"log_level"`
}

func DefaultConfig() Config {
	return Config{
		CredentialsPath:  DefaultCredentialsPath(),
		TokenEndpoint:    anthropicTokenEndpoint,
		ClientID:         anthropicOAuthClientID,
		APIKeyEnv:        EnvAPIKey,
		RefreshThreshold: Duration{Duration: defaultRefreshThreshold},
		RequestTimeout:   Duration{Duration: 30 * time.Second},
		LogLevel:         "info",
	}
}

func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		format := detectFormat(path)
		if err := decodeConfig(format, data, &cfg); err != nil {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
	}

	ensureDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.CredentialsPath == "" {
		return errors.New("credentials_path cannot be empty")
	}
	if c.TokenEndpoint == "" {
		return errors.New("token_endpoint cannot be empty")
	}
	if c.APIKeyEnv == "" {
		return errors.New("api_key_env cannot be empty")
	}
	if c.RefreshThreshold.Duration <= 0 {
		return errors.New("refresh_threshold must be positive")
	}
	if c.RequestTimeout.Duration <= 0 {
		return errors.New("request_timeout must be positive")
	}
	return nil
}

// DiscoveryOptions builds the discovery cascade options for this config.
// The configured credentials path acts as the custom-path override only
// when it differs from the platform default.
func (c *Config) DiscoveryOptions(logger *zap.Logger) DiscoveryOptions {
	opts := DiscoveryOptions{
		DefaultPath:      DefaultCredentialsPath(),
		APIKeyEnv:        c.APIKeyEnv,
		TokenEndpoint:    c.TokenEndpoint,
		ClientID:         c.ClientID,
		HTTPClient:       c.HTTPClient(),
		RefreshThreshold: c.RefreshThreshold,
		Logger:           logger,
	}
	if c.CredentialsPath != opts.DefaultPath {
		opts.CredentialsPath = c.CredentialsPath
	}
	return opts
}

func detectFormat(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		return "json"
	case ".yml", ".yaml":
		return "yaml"
	default:
		return "yaml" // prefer YAML when ambiguous
	}
}

func decodeConfig(format string, data []byte, cfg *Config) error {
	switch format {
	case "json":
		return json.Unmarshal(data, cfg)
	case "yaml":
		return yaml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config format: %s", format)
	}
}

func ensureDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.CredentialsPath == "" {
		cfg.CredentialsPath = def.CredentialsPath
	}
	if cfg.TokenEndpoint == "" {
		cfg.TokenEndpoint = def.TokenEndpoint
	}
	if cfg.ClientID == "" {
		cfg.ClientID = def.ClientID
	}
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = def.APIKeyEnv
	}
	if cfg.RefreshThreshold.Duration == 0 {
		cfg.RefreshThreshold = def.RefreshThreshold
	}
	if cfg.RequestTimeout.Duration == 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
}

// HTTPClient returns a client honoring the configured request timeout, used
// for the refresh call.
func (c *Config) HTTPClient() *http.Client {
	return &http.Client{Timeout: c.RequestTimeout.Duration}
}
