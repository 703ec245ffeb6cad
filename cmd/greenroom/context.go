package main

import (
	"strings"
	"sync"

	"greenroom/internal/assignment"
	"greenroom/internal/config"
	"greenroom/internal/importer"
	"greenroom/internal/logging"
	"greenroom/internal/notifications"
	"greenroom/internal/rating"
	"greenroom/internal/report"
	"greenroom/internal/review"
	"greenroom/internal/roles"
	"greenroom/internal/scheduler"
	"greenroom/internal/store"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// engineSet bundles everything a store-backed command may need. CLI
// commands operate on the shared database directly; the daemon holds the
// instance lock only for its scheduler.
type engineSet struct {
	cfg       *config.Config
	store     *store.Store
	gate      *roles.Gate
	rating    *rating.Engine
	topics    *assignment.Engine
	reviews   *review.Engine
	scheduler *scheduler.Scheduler
	reporter  *report.Reporter
	importer  *importer.Importer
}

func (c *commandContext) withEngines(fn func(*engineSet) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	logger := logging.NewNop()
	notifier := notifications.NewService(cfg)
	gate := roles.NewGate(st)
	ratingEngine := rating.NewEngine(st, cfg.Rating, logger)
	topics := assignment.NewEngine(st, gate, notifier, cfg.Assignment, logger)
	reviews := review.NewEngine(st, gate, ratingEngine, topics, notifier, cfg.Review, logger)
	sched := scheduler.New(cfg, st, gate, ratingEngine, topics, reviews, notifier, logger)

	return fn(&engineSet{
		cfg:       cfg,
		store:     st,
		gate:      gate,
		rating:    ratingEngine,
		topics:    topics,
		reviews:   reviews,
		scheduler: sched,
		reporter:  report.New(st, cfg),
		importer:  importer.New(st, logger),
	})
}
