package factory

import (
	"errors"
	"io/fs"
	"path/filepath"
)

// Inventory walks the traps directory and lists what is deployed right now.
// The filesystem is the only source of truth; there is no database to drift
// out of sync with it.
func (f *Factory) Inventory() ([]ArtifactInfo, error) {
	var items []ArtifactInfo
	err := filepath.WalkDir(f.cfg.TrapsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(f.cfg.TrapsDir, path)
		if err != nil {
			return err
		}

		items = append(items, ArtifactInfo{
			Name:    d.Name(),
			Path:    filepath.ToSlash(rel),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			inventoryFiles.Set(0)
			return nil, nil
		}
		return nil, err
	}
	inventoryFiles.Set(float64(len(items)))
	return items, nil
}
