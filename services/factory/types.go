package factory

import "time"

// TrapTask is one entry of the deployment manifest.
type TrapTask struct {
	ID       string `yaml:"id"`
	Template string `yaml:"template"`
	Output   string `yaml:"output"`
	Format   string `yaml:"format"`
	Category string `yaml:"category"`
	Priority string `yaml:"priority"`
}

// Metadata travels with a single artifact through generation and into logs
// and alerts.
type Metadata struct {
	Category string
	Priority string
	TrapID   string
}

// Summary reports the outcome of one deployment run.
type Summary struct {
	Deployed int           `json:"deployed"`
	Total    int           `json:"total"`
	Context  SystemContext `json:"context"`
}

// SystemContext records where and as whom a run executed.
type SystemContext struct {
	User string `json:"user"`
	Host string `json:"host"`
}

// ArtifactInfo describes one deployed artifact on disk.
type ArtifactInfo struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}
