// Package config loads the adapter shell's configuration: which provider
// is selected, its credentials, the optional extraction/upload
// credentials, and the HTTP listener settings. Values support ${VAR} and
// ${VAR:-default} environment expansion so secrets stay out of the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"msgbridge/internal/provider"
)

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Provider ProviderConfig `yaml:"provider"`
	Core     CoreConfig     `yaml:"core"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ProviderConfig selects and credentials one messaging provider plus the
// shared cross-cutting extraction/upload settings.
type ProviderConfig struct {
	Selected       string           `yaml:"selected"` // "whatsapp" | "evolutionAPI"
	WhatsApp       WhatsAppConfig   `yaml:"whatsapp"`
	Evolution      EvolutionConfig  `yaml:"evolutionAPI"`
	Cloudflare     CloudflareConfig `yaml:"cloudflare"`
	AWS            AWSConfig        `yaml:"aws"`
	UploadEndpoint string           `yaml:"uploadEndpoint"`
}

type WhatsAppConfig struct {
	Token         string `yaml:"token"`
	PhoneNumberID string `yaml:"phoneNumberId"`
	VerifyToken   string `yaml:"verifyToken"`
	AppSecret     string `yaml:"appSecret"`
	GraphBaseURL  string `yaml:"graphBaseUrl"`
}

type EvolutionConfig struct {
	APIURL     string `yaml:"apiUrl"`
	APIKey     string `yaml:"apiKey"`
	InstanceID string `yaml:"instanceId"`
}

type CloudflareConfig struct {
	AccountID string `yaml:"accountId"`
	APIToken  string `yaml:"apiToken"`
}

type AWSConfig struct {
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Region    string `yaml:"region"`
}

// CoreConfig points at the downstream consumer of standardized messages.
type CoreConfig struct {
	APIURL string `yaml:"apiUrl"`
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
}

// Defaults returns the baseline configuration.
func Defaults() *Config {
	return &Config{
		Server:  ServerConfig{Host: "0.0.0.0", Port: 8080},
		Logging: LoggingConfig{Level: "info"},
		Provider: ProviderConfig{
			Selected: string(provider.KindWhatsApp),
			AWS:      AWSConfig{Region: "us-east-1"},
		},
	}
}

// DefaultConfigPath returns the default config file location
// (~/.msgbridge/config.yaml).
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".msgbridge", "config.yaml")
	}
	return filepath.Join(home, ".msgbridge", "config.yaml")
}

// Load reads, expands, parses, and validates the config file.
func Load(path string) (*Config, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot resolve home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Save writes the config as YAML, creating the directory if needed.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}

	switch provider.Kind(cfg.Provider.Selected) {
	case provider.KindWhatsApp, provider.KindEvolution:
	default:
		errs = append(errs, fmt.Sprintf("provider.selected must be %q or %q", provider.KindWhatsApp, provider.KindEvolution))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// LogLevel maps the configured level onto slog.
func (c *Config) LogLevel() string {
	if c.Logging.Level == "" {
		return "info"
	}
	return c.Logging.Level
}

// ProviderConfig converts the shell config into the per-request provider
// config union handed to the normalization engine. Optional credential
// blocks become nil when unset so provider modules can degrade cleanly.
func (c *Config) ProviderConfig() provider.Config {
	out := provider.Config{
		Selected:       provider.Kind(c.Provider.Selected),
		UploadEndpoint: c.Provider.UploadEndpoint,
	}

	if w := c.Provider.WhatsApp; w.Token != "" || w.PhoneNumberID != "" {
		out.WhatsApp = &provider.WhatsAppCredentials{
			Token:         w.Token,
			PhoneNumberID: w.PhoneNumberID,
			GraphBaseURL:  w.GraphBaseURL,
		}
	}
	if e := c.Provider.Evolution; e.APIURL != "" || e.APIKey != "" || e.InstanceID != "" {
		out.Evolution = &provider.EvolutionCredentials{
			APIURL:     e.APIURL,
			APIKey:     e.APIKey,
			InstanceID: e.InstanceID,
		}
	}
	if cf := c.Provider.Cloudflare; cf.AccountID != "" && cf.APIToken != "" {
		out.Cloudflare = &provider.CloudflareCredentials{
			AccountID: cf.AccountID,
			APIToken:  cf.APIToken,
		}
	}
	if a := c.Provider.AWS; a.AccessKey != "" && a.SecretKey != "" {
		out.AWS = &provider.AWSCredentials{
			AccessKey: a.AccessKey,
			SecretKey: a.SecretKey,
			Region:    a.Region,
		}
	}

	return out
}
