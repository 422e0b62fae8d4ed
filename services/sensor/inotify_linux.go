//go:build linux

package sensor

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const watchMask = unix.IN_OPEN | unix.IN_ACCESS | unix.IN_MODIFY | unix.IN_ATTRIB |
	unix.IN_CREATE | unix.IN_DELETE | unix.IN_MOVED_FROM | unix.IN_MOVED_TO

const pollTimeoutMs = 250

// inotifySensor watches traps with raw inotify. Unlike portable watchers it
// sees opens and reads, which is the point: a honeytoken fires on read, not
// on write.
type inotifySensor struct {
	emitter
	root    string
	fd      int
	watches map[int32]string
}

func newPlatformSensor(root string, debounce time.Duration, logger *zap.Logger) (Sensor, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat watch root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root %q is not a directory", root)
	}

	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("inotify init: %w", err)
	}

	s := &inotifySensor{
		emitter: newEmitter(debounce, logger),
		root:    root,
		fd:      fd,
		watches: make(map[int32]string),
	}

	if err := s.watchTree(root); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return s, nil
}

// watchTree registers the root and every subdirectory beneath it.
func (s *inotifySensor) watchTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return s.addWatch(path)
	})
}

func (s *inotifySensor) addWatch(dir string) error {
	wd, err := unix.InotifyAddWatch(s.fd, dir, watchMask)
	if err != nil {
		return fmt.Errorf("watch %q: %w", dir, err)
	}
	s.watches[int32(wd)] = dir
	return nil
}

// Run blocks until ctx ends, pumping filesystem observations into Events.
func (s *inotifySensor) Run(ctx context.Context) error {
	defer close(s.events)
	defer unix.Close(s.fd)

	s.log.Info("sensor watching traps",
		zap.String("root", s.root), zap.Int("dirs", len(s.watches)))

	buf := make([]byte, 64*(unix.SizeofInotifyEvent+unix.NAME_MAX+1))
	pfd := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLIN}}

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := unix.Poll(pfd, pollTimeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("poll inotify: %w", err)
		}
		if n == 0 {
			continue
		}

		read, err := unix.Read(s.fd, buf)
		if err != nil {
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			return fmt.Errorf("read inotify: %w", err)
		}

		s.drain(buf[:read])
	}
}

// drain walks the packed inotify records in buf.
func (s *inotifySensor) drain(buf []byte) {
	now := time.Now()
	for offset := 0; offset+unix.SizeofInotifyEvent <= len(buf); {
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		end := offset + unix.SizeofInotifyEvent + int(raw.Len)

		name := ""
		if raw.Len > 0 {
			name = strings.TrimRight(string(buf[offset+unix.SizeofInotifyEvent:end]), "\x00")
		}
		s.handle(raw.Wd, raw.Mask, name, now)
		offset = end
	}
}

func (s *inotifySensor) handle(wd int32, mask uint32, name string, now time.Time) {
	if mask&unix.IN_Q_OVERFLOW != 0 {
		s.log.Warn("inotify queue overflow, events lost")
		return
	}
	if mask&unix.IN_IGNORED != 0 {
		delete(s.watches, wd)
		return
	}

	dir, ok := s.watches[wd]
	if !ok {
		return
	}
	path := dir
	if name != "" {
		path = filepath.Join(dir, name)
	}

	if mask&unix.IN_ISDIR != 0 {
		// New subdirectories join the watch; directory opens are noise.
		if mask&(unix.IN_CREATE|unix.IN_MOVED_TO) != 0 {
			if err := s.addWatch(path); err != nil {
				s.log.Warn("watch new directory", zap.String("path", path), zap.Error(err))
			}
		}
		return
	}

	if op, ok := maskToOp(mask); ok {
		s.emit(path, op, now)
	}
}

func maskToOp(mask uint32) (Op, bool) {
	switch {
	case mask&unix.IN_OPEN != 0:
		return OpOpen, true
	case mask&unix.IN_ACCESS != 0:
		return OpAccess, true
	case mask&unix.IN_MODIFY != 0:
		return OpModify, true
	case mask&unix.IN_ATTRIB != 0:
		return OpAttrib, true
	case mask&(unix.IN_DELETE|unix.IN_DELETE_SELF) != 0:
		return OpRemove, true
	case mask&(unix.IN_MOVED_FROM|unix.IN_MOVED_TO) != 0:
		return OpRename, true
	case mask&unix.IN_CREATE != 0:
		return OpCreate, true
	}
	return "", false
}
