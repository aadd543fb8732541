// Package daemon runs the background side of DocFlow.
//
// Several independent producers decide that a sync pass is due:
//
//  1. The connectivity monitor, when the remote becomes reachable again
//  2. A periodic timer, while online with records waiting
//  3. Explicit requests (RequestSync, the dashboard's POST /api/sync)
//  4. The inbox watcher, after importing record files
//
// They all enqueue onto one trigger queue of capacity 1 consumed by a single
// goroutine that calls the engine. A trigger arriving while one is already
// queued is coalesced, so at most one pass runs and at most one more waits.
package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/pacetech/docflow/internal/docflow/db"
	"github.com/pacetech/docflow/internal/docflow/formtype"
	"github.com/pacetech/docflow/internal/docflow/schema"
	docsync "github.com/pacetech/docflow/internal/docflow/sync"
	"github.com/pacetech/docflow/internal/logging"
)

// Trigger reasons.
const (
	ReasonStartup      = "startup"
	ReasonConnectivity = "connectivity"
	ReasonTimer        = "timer"
	ReasonRequest      = "request"
	ReasonInbox        = "inbox"
)

// Syncer runs one sync pass. *sync.Engine satisfies it.
type Syncer interface {
	SyncNow(ctx context.Context) (docsync.Result, error)
}

// Store is the part of the local store the daemon uses.
type Store interface {
	Save(ctx context.Context, rec *schema.Record) (int64, error)
	GetStats(ctx context.Context) (db.Stats, error)
}

var (
	_ Syncer = (*docsync.Engine)(nil)
	_ Store  = (*db.DB)(nil)
)

// Config holds configuration for the daemon.
type Config struct {
	// SyncInterval is how often the timer considers a pass
	SyncInterval time.Duration

	// ProbeInterval is how often connectivity is re-checked
	ProbeInterval time.Duration

	// SettleDelay is how long to wait after coming online before syncing
	SettleDelay time.Duration

	// ProbeTimeout bounds a single connectivity probe
	ProbeTimeout time.Duration

	// DebounceInterval is how long an inbox file must be quiet before import
	DebounceInterval time.Duration

	// InboxDir receives record files from the form layer. Empty disables the inbox.
	InboxDir string

	// RetryErrored lets the timer fire for error records as well as pending ones
	RetryErrored bool

	// FormTypes validates imported records. Defaults to the built-ins.
	FormTypes *formtype.Registry

	// Indicator receives offline/online changes from the monitor
	Indicator docsync.Indicator

	// Logger for daemon activity
	Logger *zerolog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	l := logging.Component("daemon")
	return &Config{
		SyncInterval:     5 * time.Minute,
		ProbeInterval:    30 * time.Second,
		SettleDelay:      time.Second,
		ProbeTimeout:     5 * time.Second,
		DebounceInterval: 250 * time.Millisecond,
		RetryErrored:     true,
		Logger:           &l,
	}
}

// Daemon owns the trigger queue and its producers.
type Daemon struct {
	store   Store
	engine  Syncer
	monitor *Monitor
	config  *Config
	logger  zerolog.Logger

	triggers chan string

	watcher       *fsnotify.Watcher
	changeQueue   map[string]time.Time // inbox path -> last event
	changeQueueMu sync.Mutex

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a Daemon. monitor may be nil, in which case the remote is
// assumed reachable and no probing happens.
func New(store Store, engine Syncer, monitor *Monitor, config *Config) (*Daemon, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}

	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.SyncInterval <= 0 {
		config.SyncInterval = defaults.SyncInterval
	}
	if config.ProbeInterval <= 0 {
		config.ProbeInterval = defaults.ProbeInterval
	}
	if config.SettleDelay < 0 {
		config.SettleDelay = 0
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = defaults.ProbeTimeout
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = defaults.DebounceInterval
	}
	if config.FormTypes == nil {
		config.FormTypes = formtype.Builtin()
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	if monitor == nil {
		monitor = NewMonitor(nil)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		store:       store,
		engine:      engine,
		monitor:     monitor,
		config:      config,
		logger:      *config.Logger,
		triggers:    make(chan string, 1),
		changeQueue: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Monitor returns the connectivity monitor.
func (d *Daemon) Monitor() *Monitor {
	return d.monitor
}

// Start runs the producers and the sync consumer.
//
// This blocks until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.logger.Info().Msg("starting daemon")

	if d.config.InboxDir != "" {
		if err := d.startInbox(); err != nil {
			d.cancel()
			return err
		}
	}

	online := d.probe()
	d.publishConnectivity(online)

	d.wg.Add(3)
	go d.consume()
	go d.watchConnectivity()
	go d.periodicSync()

	if online {
		d.RequestSync(ReasonStartup)
	}

	select {
	case <-ctx.Done():
		d.logger.Info().Msg("shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop shuts the daemon down, letting a running pass finish first.
func (d *Daemon) Stop() error {
	d.stopOnce.Do(func() {
		d.logger.Info().Msg("stopping daemon")
		d.cancel()

		if d.watcher != nil {
			if err := d.watcher.Close(); err != nil {
				d.logger.Warn().Err(err).Msg("error closing inbox watcher")
			}
		}

		d.wg.Wait()
		d.logger.Info().Msg("daemon stopped")
	})
	return nil
}

// RequestSync enqueues a pass. It returns false when a pass is already queued
// and this request was coalesced into it.
func (d *Daemon) RequestSync(reason string) bool {
	select {
	case d.triggers <- reason:
		d.logger.Debug().Str("reason", reason).Msg("sync requested")
		return true
	default:
		d.logger.Debug().Str("reason", reason).Msg("sync already queued, coalesced")
		return false
	}
}

// consume runs one pass per dequeued trigger.
func (d *Daemon) consume() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case reason := <-d.triggers:
			d.runPass(reason)
		}
	}
}

// runPass runs one pass. The pass is not interruptible: shutdown waits for it.
func (d *Daemon) runPass(reason string) {
	ctx := context.WithoutCancel(d.ctx)

	res, err := d.engine.SyncNow(ctx)
	if err != nil {
		d.logger.Error().Err(err).Str("reason", reason).Msg("sync pass failed")
		return
	}

	evt := d.logger.Info()
	if res.Skipped {
		evt = d.logger.Debug()
	}
	evt.Str("reason", reason).Msg(res.Summary())
}

// periodicSync triggers a pass on every tick while online with work waiting.
func (d *Daemon) periodicSync() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			if !d.monitor.Online() {
				continue
			}

			stats, err := d.store.GetStats(d.ctx)
			if err != nil {
				d.logger.Warn().Err(err).Msg("failed to read stats for periodic sync")
				continue
			}

			if stats.Pending > 0 || (d.config.RetryErrored && stats.Error > 0) {
				d.RequestSync(ReasonTimer)
			}
		}
	}
}
