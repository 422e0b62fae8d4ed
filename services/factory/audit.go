package factory

import (
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
)

// freshnessWindow is how old a planted file must look. Backdating places
// mtimes at least ten days back, so anything younger than a day means the
// stomp failed or someone rewrote the file since.
const freshnessWindow = 24 * time.Hour

// Issue flags a deployed artifact that would give the ruse away.
type Issue struct {
	Path   string `json:"path"`
	Detail string `json:"detail"`
}

// Audit walks a deployed traps tree and re-checks it the way a wary
// intruder would: timestamps must look aged and container formats must
// still open cleanly.
func Audit(root string, now time.Time) ([]Issue, error) {
	var issues []Issue
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		if age := now.Sub(info.ModTime()); age < freshnessWindow {
			issues = append(issues, Issue{
				Path:   rel,
				Detail: fmt.Sprintf("fresh mtime, modified %s ago", age.Round(time.Second)),
			})
		}

		if zipExtensions[strings.ToLower(filepath.Ext(path))] {
			if err := checkZip(path); err != nil {
				issues = append(issues, Issue{
					Path:   rel,
					Detail: fmt.Sprintf("corrupt container: %v", err),
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("audit %s: %w", root, err)
	}
	return issues, nil
}

// checkZip reads every entry end to end so checksum mismatches surface,
// not just truncated central directories.
func checkZip(path string) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}
		if _, err := io.Copy(io.Discard, rc); err != nil {
			rc.Close()
			return fmt.Errorf("%s: %w", f.Name, err)
		}
		rc.Close()
	}
	return nil
}
