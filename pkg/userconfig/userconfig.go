// Package userconfig reads and writes ~/.config/agent-webclient/config.yaml:
// the platform endpoint, the access token and a few client defaults.
package userconfig

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/natefinch/atomic"

	"github.com/linlay/agent-webclient/pkg/paths"
)

const CurrentVersion = "v1"

var (
	ErrEmptyToken   = errors.New("access token is empty")
	ErrBearerPrefix = errors.New("enter the raw access token without the Bearer prefix")
	ErrUnknownKey   = errors.New("unknown config key")
)

var bearerRe = regexp.MustCompile(`(?i)^bearer\s+`)

// NormalizeAccessToken trims a user supplied token and rejects empty input
// or input that still carries the "Bearer " scheme.
func NormalizeAccessToken(raw string) (string, error) {
	token := strings.TrimSpace(raw)
	if token == "" {
		return "", ErrEmptyToken
	}
	if bearerRe.MatchString(token) {
		return "", ErrBearerPrefix
	}
	return token, nil
}

type Settings struct {
	// Theme is "light" or "dark".
	Theme string `yaml:"theme,omitempty"`
	// IncludeRawMessages asks the server for raw messages on chat loads.
	IncludeRawMessages bool `yaml:"include_raw_messages,omitempty"`
	// ToolPolicy is what happens when a frontend tool arrives while another
	// one is open: replace, reject or queue.
	ToolPolicy string `yaml:"tool_policy,omitempty"`
}

type Config struct {
	mu sync.Mutex

	Version     string    `yaml:"version,omitempty"`
	BaseURL     string    `yaml:"base_url,omitempty"`
	AccessToken string    `yaml:"access_token,omitempty"`
	Agent       string    `yaml:"agent,omitempty"`
	Timeout     string    `yaml:"timeout,omitempty"`
	Settings    *Settings `yaml:"settings,omitempty"`
}

func Path() string {
	return paths.ConfigFile()
}

func Load() (*Config, error) {
	return LoadFrom(Path())
}

// LoadFrom reads the config at path. A missing file is an empty config. A
// stored token that fails normalization is dropped.
func LoadFrom(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if cfg.AccessToken != "" {
		token, err := NormalizeAccessToken(cfg.AccessToken)
		if err != nil {
			token = ""
		}
		cfg.AccessToken = token
	}
	return cfg, nil
}

func (c *Config) Save() error {
	return c.SaveTo(Path())
}

func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	c.mu.Lock()
	c.Version = CurrentVersion
	data, err := yaml.Marshal(c)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return atomic.WriteFile(path, bytes.NewReader(data))
}

func (c *Config) GetSettings() *Settings {
	if c.Settings == nil {
		return &Settings{}
	}
	return c.Settings
}

// RequestTimeout parses Timeout. Empty means zero, letting the client pick
// its default.
func (c *Config) RequestTimeout() (time.Duration, error) {
	if strings.TrimSpace(c.Timeout) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(c.Timeout))
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
	}
	return d, nil
}

// Keys lists the names accepted by Get and Set.
func Keys() []string {
	return []string{"base_url", "access_token", "agent", "timeout", "theme", "include_raw_messages", "tool_policy"}
}

func (c *Config) Get(key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.GetSettings()
	switch key {
	case "base_url":
		return c.BaseURL, nil
	case "access_token":
		return c.AccessToken, nil
	case "agent":
		return c.Agent, nil
	case "timeout":
		return c.Timeout, nil
	case "theme":
		return s.Theme, nil
	case "include_raw_messages":
		return strconv.FormatBool(s.IncludeRawMessages), nil
	case "tool_policy":
		return s.ToolPolicy, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
}

// Set validates and stores one value. An empty value clears the key.
func (c *Config) Set(key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	value = strings.TrimSpace(value)
	switch key {
	case "base_url":
		c.BaseURL = value
	case "access_token":
		if value == "" {
			c.AccessToken = ""
			return nil
		}
		token, err := NormalizeAccessToken(value)
		if err != nil {
			return err
		}
		c.AccessToken = token
	case "agent":
		c.Agent = strings.TrimPrefix(value, "@")
	case "timeout":
		if value != "" {
			if _, err := time.ParseDuration(value); err != nil {
				return fmt.Errorf("invalid timeout %q: %w", value, err)
			}
		}
		c.Timeout = value
	case "theme":
		if value != "" && value != "light" && value != "dark" {
			return fmt.Errorf("invalid theme %q: want light or dark", value)
		}
		c.settings().Theme = value
	case "include_raw_messages":
		b := false
		if value != "" {
			var err error
			if b, err = strconv.ParseBool(value); err != nil {
				return fmt.Errorf("invalid boolean %q: %w", value, err)
			}
		}
		c.settings().IncludeRawMessages = b
	case "tool_policy":
		if value != "" && !slices.Contains([]string{"replace", "reject", "queue"}, value) {
			return fmt.Errorf("invalid tool policy %q: want replace, reject or queue", value)
		}
		c.settings().ToolPolicy = value
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return nil
}

func (c *Config) settings() *Settings {
	if c.Settings == nil {
		c.Settings = &Settings{}
	}
	return c.Settings
}
