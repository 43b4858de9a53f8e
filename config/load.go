package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Load reads the YAML file at path when it exists and overlays TRUSTLOG_*
// environment variables. An empty path reads the environment only.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig
	path = strings.TrimSpace(path)
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, &cfg); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
			return normalize(&cfg)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat config %s: %w", path, err)
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	return normalize(&cfg)
}

func normalize(cfg *AppConfig) (*AppConfig, error) {
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	if cfg.IsPostgres() && strings.TrimSpace(cfg.DBURL) == "" {
		return nil, errors.New("db_url is required for postgres")
	}
	var exts []string
	seen := map[string]struct{}{}
	for _, raw := range cfg.Attachments.AllowedExtensions {
		ext := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), "."))
		if ext == "" {
			continue
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		exts = append(exts, ext)
	}
	if len(exts) == 0 {
		return nil, errors.New("attachments.allowed_extensions must not be empty")
	}
	cfg.Attachments.AllowedExtensions = exts
	return cfg, nil
}

// Usage returns the environment variable description for --help output.
func Usage() string {
	var cfg AppConfig
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return text
}
