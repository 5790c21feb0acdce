package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"irrigation-go-home/internal/caddy"
	"irrigation-go-home/internal/coordinator"
	"irrigation-go-home/internal/discovery"
)

type Config struct {
	Web struct {
		Listen         string   `yaml:"listen"`
		APIKey         string   `yaml:"api_key"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"web"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		Broker      string `yaml:"broker"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		TopicPrefix string `yaml:"topic_prefix"`
		ClientID    string `yaml:"client_id"`
	} `yaml:"mqtt"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Discovery struct {
		Concurrency    int           `yaml:"concurrency"`
		ConnectTimeout time.Duration `yaml:"connect_timeout"`
		ReadTimeout    time.Duration `yaml:"read_timeout"`
		ScanInterval   time.Duration `yaml:"scan_interval"` // 0 disables rescans
		PollInterval   time.Duration `yaml:"poll_interval"` // 0 disables polling
		Static         []string      `yaml:"static"`
	} `yaml:"discovery"`
	ScriptsDir string `yaml:"scripts_dir"`
}

func (c *Config) validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Discovery.Concurrency < 1 || c.Discovery.Concurrency > 256 {
		return fmt.Errorf("discovery.concurrency must be 1-256, got %d", c.Discovery.Concurrency)
	}
	if c.Discovery.ConnectTimeout <= 0 || c.Discovery.ReadTimeout <= 0 {
		return fmt.Errorf("discovery timeouts must be positive")
	}
	if c.Discovery.ScanInterval < 0 || c.Discovery.PollInterval < 0 {
		return fmt.Errorf("discovery intervals must not be negative")
	}
	for _, addr := range c.Discovery.Static {
		if _, err := coordinator.ParseAddress(addr); err != nil {
			return fmt.Errorf("discovery.static: %w", err)
		}
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	return nil
}

// defaultConfig is used when no config file exists.
func defaultConfig() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Web.Listen == "" {
		c.Web.Listen = "127.0.0.1:8080"
	}
	if c.Store.Path == "" {
		c.Store.Path = "irrigation-home.db"
	}
	if c.ScriptsDir == "" {
		c.ScriptsDir = "scripts"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "irrigation"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Discovery.Concurrency == 0 {
		c.Discovery.Concurrency = discovery.DefaultConcurrency
	}
	if c.Discovery.ConnectTimeout == 0 {
		c.Discovery.ConnectTimeout = caddy.DefaultConnectTimeout
	}
	if c.Discovery.ReadTimeout == 0 {
		c.Discovery.ReadTimeout = caddy.DefaultReadTimeout
	}
}

func newLogger(cfg *Config, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
