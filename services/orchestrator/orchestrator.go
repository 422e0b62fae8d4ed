package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"phantomd/pkg/bus"
	"phantomd/services/factory"
	"phantomd/services/sensor"
)

// DefaultSubject is the bus subject alerts go out on when the configuration
// does not name one.
const DefaultSubject = "phantomd.alerts"

// Alert records a touch on a deployed trap.
type Alert struct {
	Trap       string    `json:"trap" db:"trap"`
	Path       string    `json:"path" db:"path"`
	Op         sensor.Op `json:"op" db:"op"`
	ObservedAt time.Time `json:"observed_at" db:"observed_at"`
	Host       string    `json:"host" db:"host"`
	User       string    `json:"user" db:"actor"`
}

// Config carries the orchestrator dependencies.
type Config struct {
	// Bus is optional. Without one alerts are only logged.
	Bus     *bus.Bus
	Subject string
	// Journal is optional. When set every alert is also written to the
	// database.
	Journal *Journal
	System  factory.SystemContext
	Logger  *zap.Logger
}

// Orchestrator matches sensor events against the deployed inventory and
// turns hits into alerts.
type Orchestrator struct {
	bus     *bus.Bus
	subject string
	journal *Journal
	system  factory.SystemContext
	log     *zap.Logger

	trapsMu sync.RWMutex
	traps   map[string]string
}

// New creates an orchestrator. All dependencies are optional.
func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}

	return &Orchestrator{
		bus:     cfg.Bus,
		subject: cfg.Subject,
		journal: cfg.Journal,
		system:  cfg.System,
		log:     cfg.Logger,
		traps:   make(map[string]string),
	}
}

// SetInventory replaces the set of watched artifacts. Events are keyed by
// absolute on-disk path; alerts name the trap by its path relative to the
// traps directory.
func (o *Orchestrator) SetInventory(root string, artifacts []factory.ArtifactInfo) {
	if o == nil {
		return
	}

	traps := make(map[string]string, len(artifacts))
	for _, artifact := range artifacts {
		traps[filepath.Join(root, filepath.FromSlash(artifact.Path))] = artifact.Path
	}

	o.trapsMu.Lock()
	o.traps = traps
	o.trapsMu.Unlock()
}

// Tracked reports how many artifacts the orchestrator is matching against.
func (o *Orchestrator) Tracked() int {
	if o == nil {
		return 0
	}
	o.trapsMu.RLock()
	defer o.trapsMu.RUnlock()
	return len(o.traps)
}

// Run consumes sensor events until the channel closes or the context ends.
func (o *Orchestrator) Run(ctx context.Context, events <-chan sensor.Event) error {
	if o == nil {
		return errors.New("nil orchestrator")
	}
	if events == nil {
		return errors.New("events channel is required")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			o.handle(ctx, ev)
		}
	}
}

func (o *Orchestrator) handle(ctx context.Context, ev sensor.Event) {
	trapEvents.WithLabelValues(string(ev.Op)).Inc()

	trap, ok := o.lookup(ev.Path)
	if !ok {
		o.log.Debug("event outside inventory",
			zap.String("path", ev.Path),
			zap.String("op", string(ev.Op)),
		)
		return
	}

	alert := Alert{
		Trap:       trap,
		Path:       ev.Path,
		Op:         ev.Op,
		ObservedAt: ev.ObservedAt,
		Host:       o.system.Host,
		User:       o.system.User,
	}

	o.log.Warn("trap touched",
		zap.String("trap", alert.Trap),
		zap.String("path", alert.Path),
		zap.String("op", string(alert.Op)),
		zap.Time("observed_at", alert.ObservedAt),
	)

	if o.journal != nil {
		if err := o.journal.RecordAlert(ctx, alert); err != nil {
			o.log.Error("record alert", zap.String("trap", alert.Trap), zap.Error(err))
		}
	}

	if o.bus == nil {
		return
	}
	if err := o.bus.Publish(ctx, o.subject, alert); err != nil {
		alertsDropped.Inc()
		o.log.Error("publish alert", zap.String("trap", alert.Trap), zap.Error(err))
		return
	}
	alertsPublished.Inc()
}

func (o *Orchestrator) lookup(path string) (string, bool) {
	o.trapsMu.RLock()
	defer o.trapsMu.RUnlock()
	trap, ok := o.traps[path]
	return trap, ok
}

// Tail subscribes to alerts on the given subject and hands each decoded
// alert to fn. Close the returned closer to stop.
func Tail(ctx context.Context, b *bus.Bus, subject, durable string, fn func(Alert)) (io.Closer, error) {
	if b == nil {
		return nil, errors.New("bus is required")
	}
	if fn == nil {
		return nil, errors.New("handler is required")
	}
	if subject == "" {
		subject = DefaultSubject
	}

	return b.Subscribe(ctx, subject, durable, func(_ context.Context, data []byte) error {
		var alert Alert
		if err := json.Unmarshal(data, &alert); err != nil {
			return err
		}
		fn(alert)
		return nil
	})
}
