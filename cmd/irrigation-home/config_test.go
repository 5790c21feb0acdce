package main

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Web.Listen != "127.0.0.1:8080" {
		t.Errorf("web.listen = %q", cfg.Web.Listen)
	}
	if cfg.Store.Path != "irrigation-home.db" {
		t.Errorf("store.path = %q", cfg.Store.Path)
	}
	if cfg.Discovery.Concurrency != 32 {
		t.Errorf("discovery.concurrency = %d, want 32", cfg.Discovery.Concurrency)
	}
	if cfg.Discovery.ConnectTimeout != 300*time.Millisecond {
		t.Errorf("discovery.connect_timeout = %v", cfg.Discovery.ConnectTimeout)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if err := cfg.validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadConfigValues(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, `
web:
  listen: ":9090"
  api_key: secret
mqtt:
  enabled: true
  broker: tcp://localhost:1883
discovery:
  concurrency: 8
  read_timeout: 2s
  scan_interval: 30m
  poll_interval: 1m
  static:
    - 192.168.3.40
    - 10.0.0.5:8080
log:
  level: debug
  format: json
scripts_dir: /var/lib/irrigation/scripts
`))
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Web.Listen != ":9090" || cfg.Web.APIKey != "secret" {
		t.Errorf("web = %+v", cfg.Web)
	}
	if cfg.MQTT.TopicPrefix != "irrigation" {
		t.Errorf("mqtt.topic_prefix = %q", cfg.MQTT.TopicPrefix)
	}
	if cfg.Discovery.ReadTimeout != 2*time.Second {
		t.Errorf("read_timeout = %v", cfg.Discovery.ReadTimeout)
	}
	if cfg.Discovery.ScanInterval != 30*time.Minute || cfg.Discovery.PollInterval != time.Minute {
		t.Errorf("intervals = %v, %v", cfg.Discovery.ScanInterval, cfg.Discovery.PollInterval)
	}
	if len(cfg.Discovery.Static) != 2 {
		t.Errorf("static = %v", cfg.Discovery.Static)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("missing file err = %v, want fs.ErrNotExist", err)
	}
	if _, err := loadConfig(writeConfig(t, "web: [unclosed\n")); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"concurrency", func(c *Config) { c.Discovery.Concurrency = 1000 }, "concurrency"},
		{"timeout", func(c *Config) { c.Discovery.ReadTimeout = -time.Second }, "timeouts"},
		{"interval", func(c *Config) { c.Discovery.PollInterval = -time.Second }, "intervals"},
		{"static", func(c *Config) { c.Discovery.Static = []string{"fe80::1"} }, "discovery.static"},
		{"broker", func(c *Config) { c.MQTT.Enabled = true }, "mqtt.broker"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := defaultConfig()
	cfg.Log.Level = "warn"
	cfg.Log.Format = "json"

	logger := newLogger(cfg, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "addr", "10.0.0.5")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"addr":"10.0.0.5"`) {
		t.Errorf("json output = %s", out)
	}
}

func TestLogLevelFlagOverridesConfig(t *testing.T) {
	path := writeConfig(t, "log:\n  level: error\n")
	if _, err := newTestRoot(t, &fakeDevice{}, "--config", path, "--log-level", "nonsense", "zones", "10.0.0.5"); err == nil {
		t.Error("expected validation error for bad --log-level")
	}
	if _, err := newTestRoot(t, &fakeDevice{}, "--config", path, "--log-level", "debug", "zones", "10.0.0.5"); err != nil {
		t.Errorf("valid override: %v", err)
	}
}
