package factory

import (
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// loadTasks reads the deployment manifest. A missing or malformed manifest
// is logged and yields no tasks, so the run reports zero totals instead of
// aborting.
func (f *Factory) loadTasks() []TrapTask {
	data, err := os.ReadFile(f.cfg.ManifestPath)
	if err != nil {
		f.log.Error("read trap manifest", zap.String("path", f.cfg.ManifestPath), zap.Error(err))
		return nil
	}

	var doc struct {
		Traps []TrapTask `yaml:"traps"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		f.log.Error("parse trap manifest", zap.String("path", f.cfg.ManifestPath), zap.Error(err))
		return nil
	}
	return doc.Traps
}
