package factory

import (
	"os"
	"time"

	"go.uber.org/zap"

	"phantomd/pkg/identity"
)

const (
	stompMinDays      = 10
	stompMaxDays      = 300
	stompNoiseSeconds = 86400
	stompAccessMinGap = 5
	stompAccessMaxGap = 300
)

// stompTimestamp backdates a file so it blends in with long-lived neighbors
// instead of clustering around deployment time. Failures are logged and
// swallowed, a fresh timestamp is not worth losing a trap.
func (f *Factory) stompTimestamp(path string) {
	if _, err := os.Stat(path); err != nil {
		f.log.Debug("stomp target missing", zap.String("path", path))
		return
	}

	atime, mtime := stompTimes(f.provider, f.now())
	if err := os.Chtimes(path, atime, mtime); err != nil {
		f.log.Warn("stomp timestamps", zap.String("path", path), zap.Error(err))
	}
}

// stompTimes picks the backdated pair. Access always lands a little after
// modification; filesystems never produce the reverse order.
func stompTimes(p *identity.Provider, now time.Time) (atime, mtime time.Time) {
	daysAgo := p.Between(stompMinDays, stompMaxDays)
	noise := time.Duration(p.Between(0, stompNoiseSeconds)) * time.Second
	mtime = now.Add(-time.Duration(daysAgo)*24*time.Hour - noise)
	atime = mtime.Add(time.Duration(p.Between(stompAccessMinGap, stompAccessMaxGap)) * time.Second)
	return atime, mtime
}
