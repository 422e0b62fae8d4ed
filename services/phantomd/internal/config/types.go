package config

import "time"

type Config struct {
	Seed     int64
	Paths    PathsConfig
	Sensor   SensorConfig
	Alerting AlertingConfig
	Journal  JournalConfig
	Health   HealthConfig
}

type PathsConfig struct {
	TrapsDir     string
	TemplatesDir string
	Manifest     string
}

type SensorConfig struct {
	Enabled  bool
	Debounce time.Duration
}

type AlertingConfig struct {
	NATSURL string
	Subject string
	Stream  string
}

type JournalConfig struct {
	DSN string
}

type HealthConfig struct {
	Listen string
}
