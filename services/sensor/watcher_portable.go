//go:build !linux

package sensor

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// portableSensor watches traps with fsnotify. It cannot observe opens or
// reads, so detection degrades to writes, renames, deletions and permission
// changes on platforms without inotify.
type portableSensor struct {
	emitter
	root    string
	watcher *fsnotify.Watcher
}

func newPlatformSensor(root string, debounce time.Duration, logger *zap.Logger) (Sensor, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat watch root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root %q is not a directory", root)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	s := &portableSensor{
		emitter: newEmitter(debounce, logger),
		root:    root,
		watcher: watcher,
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return watcher.Add(path)
	})
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch tree: %w", err)
	}
	return s, nil
}

// Run blocks until ctx ends, pumping filesystem observations into Events.
func (s *portableSensor) Run(ctx context.Context) error {
	defer close(s.events)
	defer s.watcher.Close()

	s.log.Info("sensor watching traps", zap.String("root", s.root))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-s.watcher.Events:
			if !ok {
				return nil
			}
			s.handle(event)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("watcher error", zap.Error(err))
		}
	}
}

func (s *portableSensor) handle(event fsnotify.Event) {
	now := time.Now()

	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := s.watcher.Add(event.Name); err != nil {
				s.log.Warn("watch new directory", zap.String("path", event.Name), zap.Error(err))
			}
			return
		}
	}

	if op, ok := fsnotifyOp(event.Op); ok {
		s.emit(event.Name, op, now)
	}
}

func fsnotifyOp(op fsnotify.Op) (Op, bool) {
	switch {
	case op.Has(fsnotify.Write):
		return OpModify, true
	case op.Has(fsnotify.Remove):
		return OpRemove, true
	case op.Has(fsnotify.Rename):
		return OpRename, true
	case op.Has(fsnotify.Chmod):
		return OpAttrib, true
	case op.Has(fsnotify.Create):
		return OpCreate, true
	}
	return "", false
}
