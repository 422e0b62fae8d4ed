package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envConfigPath = "PHANTOMD_CONFIG"
	defaultPath   = "phantom.yaml"
)

// fileConfig mirrors the on-disk YAML layout before defaulting.
type fileConfig struct {
	Seed  int64 `yaml:"seed"`
	Paths struct {
		TrapsDir     string `yaml:"traps_dir"`
		TemplatesDir string `yaml:"templates_dir"`
		Manifest     string `yaml:"manifest"`
	} `yaml:"paths"`
	Sensor struct {
		Enabled  *bool  `yaml:"enabled"`
		Debounce string `yaml:"debounce"`
	} `yaml:"sensor"`
	Alerting struct {
		NATSURL string `yaml:"nats_url"`
		Subject string `yaml:"subject"`
		Stream  string `yaml:"stream"`
	} `yaml:"alerting"`
	Journal struct {
		DSN string `yaml:"dsn"`
	} `yaml:"journal"`
	Health struct {
		Listen string `yaml:"listen"`
	} `yaml:"health"`
}

// Load reads the daemon configuration. An explicit path wins, then
// PHANTOMD_CONFIG, then ./phantom.yaml. Unknown YAML keys are rejected.
func Load(path string) (Config, error) {
	if path == "" {
		path = getEnv(envConfigPath, defaultPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %q: %w", path, err)
	}

	var raw fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config %q: %w", path, err)
	}

	cfg := Config{Seed: raw.Seed}
	if v := os.Getenv("PHANTOMD_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid PHANTOMD_SEED: %q", v)
		}
		cfg.Seed = n
	}

	cfg.Paths.TrapsDir = fallback(raw.Paths.TrapsDir, "./decoys")
	cfg.Paths.TemplatesDir = fallback(raw.Paths.TemplatesDir, "./templates")
	cfg.Paths.Manifest = fallback(raw.Paths.Manifest, "./traps.yaml")

	cfg.Sensor.Enabled = true
	if raw.Sensor.Enabled != nil {
		cfg.Sensor.Enabled = *raw.Sensor.Enabled
	}
	cfg.Sensor.Debounce = 2 * time.Second
	if raw.Sensor.Debounce != "" {
		d, err := time.ParseDuration(raw.Sensor.Debounce)
		if err != nil || d < 0 {
			return Config{}, fmt.Errorf("invalid sensor.debounce %q", raw.Sensor.Debounce)
		}
		cfg.Sensor.Debounce = d
	}

	cfg.Alerting.NATSURL = getEnv("PHANTOMD_NATS_URL", raw.Alerting.NATSURL)
	cfg.Alerting.Subject = fallback(raw.Alerting.Subject, "phantomd.alerts")
	cfg.Alerting.Stream = fallback(raw.Alerting.Stream, "PHANTOM_ALERTS")

	// An empty DSN leaves the journal off.
	cfg.Journal.DSN = getEnv("PHANTOMD_JOURNAL_DSN", raw.Journal.DSN)

	cfg.Health.Listen = fallback(raw.Health.Listen, "127.0.0.1:8844")

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func fallback(v, def string) string {
	if strings.TrimSpace(v) != "" {
		return v
	}
	return def
}
