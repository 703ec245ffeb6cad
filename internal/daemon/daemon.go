package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"greenroom/internal/assignment"
	"greenroom/internal/config"
	"greenroom/internal/logging"
	"greenroom/internal/notifications"
	"greenroom/internal/rating"
	"greenroom/internal/review"
	"greenroom/internal/roles"
	"greenroom/internal/scheduler"
	"greenroom/internal/store"
)

// Daemon composes the store, engines, and scheduler into a single
// lifecycle and enforces single-instance execution with a file lock.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	notifier notifications.Service

	gate      *roles.Gate
	rating    *rating.Engine
	topics    *assignment.Engine
	reviews   *review.Engine
	scheduler *scheduler.Scheduler

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	DatabasePath string
	LockFilePath string
	Pipeline     []store.PipelineCount
}

// New wires the full engine graph over an open store.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || st == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	notifier := notifications.NewService(cfg)
	gate := roles.NewGate(st)
	ratingEngine := rating.NewEngine(st, cfg.Rating, logger)
	topics := assignment.NewEngine(st, gate, notifier, cfg.Assignment, logger)
	reviews := review.NewEngine(st, gate, ratingEngine, topics, notifier, cfg.Review, logger)
	sched := scheduler.New(cfg, st, gate, ratingEngine, topics, reviews, notifier, logger)

	lockPath := filepath.Join(cfg.Paths.DataDir, "greenroomd.lock")
	return &Daemon{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		notifier:  notifier,
		gate:      gate,
		rating:    ratingEngine,
		topics:    topics,
		reviews:   reviews,
		scheduler: sched,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock and launches the scheduler.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another greenroom daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.scheduler.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		return fmt.Errorf("start scheduler: %w", err)
	}
	d.cancel = cancel
	d.running.Store(true)

	d.logger.Info("daemon started",
		logging.String(logging.FieldEvent, logging.EventStartup),
		logging.String("lock", d.lockPath),
	)
	return nil
}

// Stop halts the scheduler and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.scheduler.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)

	d.logger.Info("daemon stopped", logging.String(logging.FieldEvent, logging.EventShutdown))
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Status reports runtime information including the pipeline summary.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	pipeline, err := d.store.PipelineSummary(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Running:      d.running.Load(),
		DatabasePath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
		Pipeline:     pipeline,
	}, nil
}

// TestNotification sends a test push using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.cfg.Notifications.NtfyTopic == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
