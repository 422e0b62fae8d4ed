package seed

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

//go:embed all:content
var files embed.FS

// Write materialises the starter configuration, trap manifest and template
// set into dir. Existing files are kept unless force is set.
func Write(dir string, force bool, stdout io.Writer) error {
	if dir == "" {
		return errors.New("target directory is required")
	}
	if stdout == nil {
		stdout = os.Stdout
	}

	return fs.WalkDir(files, "content", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel := strings.TrimPrefix(path, "content/")
		target := filepath.Join(dir, filepath.FromSlash(rel))

		if !force {
			if _, err := os.Stat(target); err == nil {
				fmt.Fprintf(stdout, "kept %s (already exists)\n", rel)
				return nil
			}
		}

		data, err := files.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read embedded %q: %w", rel, err)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("create dir for %q: %w", rel, err)
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return fmt.Errorf("write %q: %w", rel, err)
		}

		fmt.Fprintf(stdout, "wrote %s\n", rel)
		return nil
	})
}
