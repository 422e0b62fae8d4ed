package factory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"phantomd/pkg/identity"
)

// Config locates the working directories of a deployment run.
type Config struct {
	TrapsDir     string
	TemplatesDir string
	ManifestPath string
}

// Factory turns a trap manifest into deployed artifacts. One Factory serves
// one deployment run; the base profile is fixed at construction so every
// artifact tells the same story.
type Factory struct {
	cfg      Config
	provider *identity.Provider
	base     identity.Profile
	system   SystemContext
	log      *zap.Logger
	now      func() time.Time
}

// New builds a Factory around the given identity provider.
func New(cfg Config, provider *identity.Provider, logger *zap.Logger) (*Factory, error) {
	if provider == nil {
		return nil, errors.New("nil provider")
	}
	if cfg.TrapsDir == "" || cfg.TemplatesDir == "" || cfg.ManifestPath == "" {
		return nil, errors.New("traps dir, templates dir and manifest path are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Factory{
		cfg:      cfg,
		provider: provider,
		base:     provider.BaseProfile(),
		system:   collectSystemContext(),
		log:      logger,
		now:      time.Now,
	}, nil
}

// BaseProfile exposes the run's shared identity for diagnostics.
func (f *Factory) BaseProfile() identity.Profile {
	return f.base.Clone()
}

// System reports the ambient user and host the factory runs under.
func (f *Factory) System() SystemContext {
	return f.system
}

// DeployTraps executes the manifest strictly in order and reports how many
// traps landed. Per task failures are logged and skipped; a finished run
// always yields a summary.
func (f *Factory) DeployTraps(ctx context.Context) (Summary, error) {
	summary := Summary{Context: f.system}

	tasks := f.loadTasks()
	summary.Total = len(tasks)

	if err := os.MkdirAll(f.cfg.TrapsDir, 0o755); err != nil {
		return summary, fmt.Errorf("create traps dir: %w", err)
	}

	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		templatePath := filepath.Join(f.cfg.TemplatesDir, task.Template)
		outputPath := filepath.Join(f.cfg.TrapsDir, task.Output)

		if _, err := os.Stat(templatePath); err != nil {
			f.log.Warn("template missing, skipping trap",
				zap.String("template", templatePath),
				zap.String("trap", task.Output))
			tasksSkipped.Inc()
			continue
		}

		meta := Metadata{Category: task.Category, Priority: task.Priority, TrapID: task.ID}
		if meta.Category == "" {
			meta.Category = "generic"
		}
		if meta.Priority == "" {
			meta.Priority = "medium"
		}

		var err error
		if strings.EqualFold(task.Format, "text") {
			tc := enrichContext(f.provider, f.base, task.Template, f.now())
			err = f.createTextTrap(templatePath, outputPath, tc, meta)
		} else {
			err = f.createBinaryTrap(templatePath, outputPath, meta)
		}
		if err != nil {
			f.log.Error("deploy trap", zap.String("trap", task.Output), zap.Error(err))
			tasksSkipped.Inc()
			continue
		}
		summary.Deployed++
		trapsDeployed.Inc()
	}

	f.log.Info("deployment finished",
		zap.Int("deployed", summary.Deployed),
		zap.Int("total", summary.Total),
		zap.String("user", f.system.User),
		zap.String("host", f.system.Host))
	return summary, nil
}

// collectSystemContext never fails; unknown values degrade to fixed strings.
func collectSystemContext() SystemContext {
	sc := SystemContext{User: "unknown", Host: "unknown"}
	if u, err := user.Current(); err == nil && u.Username != "" {
		sc.User = u.Username
	} else if v := os.Getenv("USER"); v != "" {
		sc.User = v
	}
	if h, err := os.Hostname(); err == nil && h != "" {
		sc.Host = h
	}
	return sc
}
