package cli

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lazypower/kura/internal/config"
	"github.com/lazypower/kura/internal/engine"
	"github.com/lazypower/kura/internal/logging"
	"github.com/lazypower/kura/internal/memory"
	"github.com/lazypower/kura/internal/metrics"
	"github.com/lazypower/kura/internal/pattern"
	"github.com/lazypower/kura/internal/quota"
	"github.com/lazypower/kura/internal/store"
)

// app is every component a command may need, wired from one Config.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	db      *store.DB
	engine  *engine.Engine
	memory  *memory.Store
	quotas  *quota.Lookup
	metrics *metrics.Metrics
	dbPath  string
}

func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, err
	}

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	db, err := store.Open(dbPath, cfg.Database.MaxOpenConns)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	a, err := wire(cfg, db, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	a.dbPath = dbPath
	return a, nil
}

// wire builds the engine, quota lookup and memory store over an open db.
func wire(cfg *config.Config, db *store.DB, log *zap.Logger) (*app, error) {
	patterns := pattern.Default()
	if cfg.Classifier.PatternsFile != "" {
		p, err := pattern.LoadFile(cfg.Classifier.PatternsFile)
		if err != nil {
			return nil, err
		}
		patterns = p
	}

	quotas, err := quota.New(db, planOverrides(cfg.Memory.Plans), cfg.Memory.DefaultPlan)
	if err != nil {
		return nil, err
	}

	m := metrics.New()

	eng := engine.New(db, log)
	eng.Patterns = patterns
	eng.Metrics = m
	eng.Options = engine.Options{
		DefaultProjectName: cfg.Classifier.DefaultProject,
		Interval:           cfg.Schedule.Interval,
		MinConfidence:      cfg.Schedule.MinConfidence,
		BatchLimit:         cfg.Schedule.BatchLimit,
	}

	mem := memory.New(db, quotas, log)
	mem.Metrics = m
	mem.Options = memory.Options{
		MediumTTL:      cfg.Memory.MediumTTL,
		DedupThreshold: cfg.Memory.DedupThreshold,
	}
	eng.Memory = mem

	return &app{
		cfg:     cfg,
		log:     log,
		db:      db,
		engine:  eng,
		memory:  mem,
		quotas:  quotas,
		metrics: m,
	}, nil
}

// planOverrides layers configured tiers over the built-in plan of the same
// name. Tiers left unset in a new plan are disabled.
func planOverrides(plans map[string]config.PlanLimits) map[string]quota.Limits {
	builtin := quota.DefaultPlans()
	out := make(map[string]quota.Limits, len(plans))
	for name, p := range plans {
		l := builtin[name]
		if p.Short != nil {
			l.Short = *p.Short
		}
		if p.Medium != nil {
			l.Medium = *p.Medium
		}
		if p.Long != nil {
			l.Long = *p.Long
		}
		out[name] = l
	}
	return out
}

// startMaintenance schedules the periodic maintenance pass when enabled.
func (a *app) startMaintenance() error {
	if !a.cfg.Schedule.Enabled {
		return nil
	}
	return a.engine.StartMaintenance(a.cfg.Schedule.Cron)
}

func (a *app) Close() error {
	a.engine.Stop()
	a.log.Sync()
	return a.db.Close()
}
