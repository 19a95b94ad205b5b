package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"goalkeeper/internal/domain"
)

const FileName = "goalkeeper.yml"

// Config models goalkeeper.yml.
type Config struct {
	IDs struct {
		Scheme    string `yaml:"scheme" json:"scheme"`
		Prefix    string `yaml:"prefix" json:"prefix"`
		Namespace string `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	} `yaml:"ids" json:"ids"`
	Server struct {
		Addr        string `yaml:"addr" json:"addr"`
		BasePath    string `yaml:"base_path" json:"base_path"`
		TokenSecret string `yaml:"token_secret,omitempty" json:"-"`
	} `yaml:"server" json:"server"`
	Journal struct {
		Enabled bool `yaml:"enabled" json:"enabled"`
	} `yaml:"journal" json:"journal"`
	Log struct {
		Level  string `yaml:"level" json:"level"`
		Format string `yaml:"format" json:"format"`
	} `yaml:"log" json:"log"`
	Webhooks []Webhook `yaml:"webhooks,omitempty" json:"webhooks,omitempty"`
}

// Webhook posts journaled goal changes to an external URL.
type Webhook struct {
	URL            string   `yaml:"url" json:"url"`
	Kinds          []string `yaml:"kinds,omitempty" json:"kinds,omitempty"`
	Secret         string   `yaml:"secret,omitempty" json:"-"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

// Active reports whether the hook should receive deliveries.
func (w Webhook) Active() bool {
	return strings.TrimSpace(w.URL) != "" && (w.Enabled == nil || *w.Enabled)
}

const (
	SchemeCounter = "counter"
	SchemeUUID    = "uuid"
)

var validLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true, "disabled": true,
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.IDs.Scheme {
	case SchemeCounter:
		if strings.TrimSpace(c.IDs.Prefix) == "" {
			return fmt.Errorf("config.ids.prefix is required for the counter scheme")
		}
	case SchemeUUID:
		if c.IDs.Namespace != "" {
			if _, err := uuid.Parse(c.IDs.Namespace); err != nil {
				return fmt.Errorf("config.ids.namespace is not a valid uuid: %w", err)
			}
		}
	default:
		return fmt.Errorf("config.ids.scheme must be 'counter' or 'uuid', got %q", c.IDs.Scheme)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with '/'")
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("config.log.level %q is invalid", c.Log.Level)
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		return fmt.Errorf("config.log.format must be 'console' or 'json'")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		for _, kind := range hook.Kinds {
			if !domain.ChangeKind(kind).Valid() {
				return fmt.Errorf("config.webhooks[%d] has unknown kind %q", i, kind)
			}
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	if len(c.Webhooks) > 0 && !c.Journal.Enabled {
		return fmt.Errorf("config.webhooks require journal.enabled")
	}
	return nil
}

// Namespace returns the configured uuid namespace, or uuid.Nil.
func (c *Config) Namespace() uuid.UUID {
	if c.IDs.Namespace == "" {
		return uuid.Nil
	}
	ns, err := uuid.Parse(c.IDs.Namespace)
	if err != nil {
		return uuid.Nil
	}
	return ns
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with gk config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := parse([]byte(DefaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("default config template: %v", err))
	}
	return cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing
// from data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(DefaultTemplate), &cfg); err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	return &cfg, nil
}

const DefaultTemplate = `ids:
  # counter yields g-1, g-2, ...; uuid yields name-based uuids
  scheme: counter
  prefix: g-

server:
  addr: 127.0.0.1:8080
  base_path: /v0

journal:
  enabled: true

log:
  level: info
  format: console
`
