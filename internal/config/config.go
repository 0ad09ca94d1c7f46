package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	RedisURL    string `yaml:"redis_url"`
	DatabaseURL string `yaml:"database_url"`

	ListenAddr     string   `yaml:"listen_addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	ProblemAPIURL string `yaml:"problem_api_url"`

	StateDir string `yaml:"state_dir"`

	// PublishDebounceMS is the window during which repeated outbound
	// writes are dropped. Resets always bypass it.
	PublishDebounceMS int `yaml:"publish_debounce_ms"`
}

// Load reads an optional YAML file pointed at by CONFIG_FILE, then applies
// environment overrides on top.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:        ":8080",
		StateDir:          ".leetbattle",
		PublishDebounceMS: 50,
	}

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, err
		}
	}

	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		cfg.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("PROBLEM_API_URL")); v != "" {
		cfg.ProblemAPIURL = v
	}
	if v := strings.TrimSpace(os.Getenv("STATE_DIR")); v != "" {
		cfg.StateDir = v
	}
	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		cfg.AllowedOrigins = nil
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, s)
			}
		}
	}
	if v := strings.TrimSpace(os.Getenv("PUBLISH_DEBOUNCE_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PublishDebounceMS = n
		}
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	return cfg, nil
}
