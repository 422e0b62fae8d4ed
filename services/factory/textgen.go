package factory

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"go.uber.org/zap"
)

// createTextTrap renders a template into place and backdates the result.
func (f *Factory) createTextTrap(templatePath, outputPath string, tc TrapContext, meta Metadata) error {
	raw, err := os.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("read template: %w", err)
	}

	tmpl, err := template.New(filepath.Base(templatePath)).Parse(string(raw))
	if err != nil {
		return fmt.Errorf("parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, tc); err != nil {
		return fmt.Errorf("render template: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(outputPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write trap: %w", err)
	}

	f.stompTimestamp(outputPath)

	f.log.Info("planted text trap",
		zap.String("path", outputPath),
		zap.String("category", meta.Category),
		zap.String("trap_id", meta.TrapID))
	return nil
}
