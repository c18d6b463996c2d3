// Package config loads settings from an optional YAML file and the
// environment. Environment variables use the GITUNDERSTAND_ prefix with
// double underscores for nesting, e.g. GITUNDERSTAND_BACKEND__BASE_URL.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Backend BackendConfig `koanf:"backend"`
	Storage StorageConfig `koanf:"storage"`
	Render  RenderConfig  `koanf:"render"`
	Preview PreviewConfig `koanf:"preview"`
	Chat    ChatConfig    `koanf:"chat"`
}

type BackendConfig struct {
	BaseURL string `koanf:"base_url"`
	// Token is sent with ingest requests for private repositories. It may
	// reference an environment variable as ${VAR_NAME}.
	Token string `koanf:"token"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, memory
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type RenderConfig struct {
	KrokiURL      string `koanf:"kroki_url"`
	Theme         string `koanf:"theme"`
	SecurityLevel string `koanf:"security_level"`
	Zoom          bool   `koanf:"zoom"`
}

type PreviewConfig struct {
	Port int `koanf:"port"`
}

type ChatConfig struct {
	// HistoryBudget caps the tokens of history sent per chat turn. Zero
	// sends the full history.
	HistoryBudget int `koanf:"history_budget"`
}

const (
	defaultConfigFile = "gitunderstand.yaml"
	envPrefix         = "GITUNDERSTAND_"
)

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (the default file when empty), layers environment
// variables over it, and fills in defaults. A missing default file is fine;
// a missing explicit path is an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = defaultConfigFile
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	if !k.Exists("backend.base_url") {
		k.Set("backend.base_url", "http://localhost:8080")
	}
	if !k.Exists("storage.type") {
		k.Set("storage.type", "sqlite")
	}
	if !k.Exists("storage.sqlite.path") {
		k.Set("storage.sqlite.path", "gitunderstand.db")
	}
	if !k.Exists("render.kroki_url") {
		k.Set("render.kroki_url", "https://kroki.io")
	}
	if !k.Exists("preview.port") {
		k.Set("preview.port", 4400)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.Backend.Token = substituteEnvVars(cfg.Backend.Token)

	return &cfg, nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
