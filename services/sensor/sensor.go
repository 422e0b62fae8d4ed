package sensor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Op classifies what happened to a watched trap.
type Op string

const (
	OpOpen   Op = "open"
	OpAccess Op = "access"
	OpModify Op = "modify"
	OpAttrib Op = "attrib"
	OpRemove Op = "remove"
	OpRename Op = "rename"
	OpCreate Op = "create"
)

// Event is one observation on a path under the traps root.
type Event struct {
	Path       string    `json:"path"`
	Op         Op        `json:"op"`
	ObservedAt time.Time `json:"observed_at"`
}

// Sensor watches the traps root and emits events until its context ends.
// Sensors only produce; deciding what an event means happens downstream.
type Sensor interface {
	Run(ctx context.Context) error
	Events() <-chan Event
}

const (
	defaultDebounce = 2 * time.Second
	eventBuffer     = 64
)

// New returns the sensor for this platform: raw inotify on Linux, which can
// see reads and opens, or a portable write oriented watcher elsewhere.
func New(root string, debounce time.Duration, logger *zap.Logger) (Sensor, error) {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return newPlatformSensor(root, debounce, logger)
}

// throttle suppresses repeats of the same observation inside a window. The
// first touch is the signal; the burst that follows is noise.
type throttle struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
}

func newThrottle(window time.Duration) *throttle {
	return &throttle{window: window, last: make(map[string]time.Time)}
}

func (t *throttle) allow(key string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.last[key]; ok && now.Sub(prev) < t.window {
		return false
	}
	t.last[key] = now
	return true
}

// emitter is the shared delivery half of both sensor implementations.
type emitter struct {
	events chan Event
	thr    *throttle
	log    *zap.Logger
}

func newEmitter(debounce time.Duration, logger *zap.Logger) emitter {
	return emitter{
		events: make(chan Event, eventBuffer),
		thr:    newThrottle(debounce),
		log:    logger,
	}
}

// emit delivers without ever blocking the watch loop; a full buffer drops
// the event rather than stalling the platform reader.
func (e *emitter) emit(path string, op Op, now time.Time) {
	if !e.thr.allow(string(op)+"|"+path, now) {
		return
	}
	select {
	case e.events <- Event{Path: path, Op: op, ObservedAt: now}:
	default:
		e.log.Warn("sensor buffer full, dropping event",
			zap.String("path", path), zap.String("op", string(op)))
	}
}

func (e *emitter) Events() <-chan Event {
	return e.events
}
