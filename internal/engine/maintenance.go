package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// RunMaintenance reclassifies, consolidates and compresses memories for every
// known owner. Owner failures are joined; the remaining owners still run.
func (e *Engine) RunMaintenance(ctx context.Context) error {
	owners, err := e.DB.ListOwners(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, owner := range owners {
		if _, err := e.BatchReclassify(ctx, owner); err != nil {
			errs = append(errs, fmt.Errorf("owner %d reclassify: %w", owner, err))
			continue
		}
		if _, err := e.ConsolidateTemporaryProjects(ctx, owner); err != nil {
			errs = append(errs, fmt.Errorf("owner %d consolidate: %w", owner, err))
			continue
		}
		if e.Memory != nil {
			if _, err := e.Memory.Compress(ctx, owner); err != nil {
				errs = append(errs, fmt.Errorf("owner %d compress: %w", owner, err))
			}
		}
	}
	return errors.Join(errs...)
}

// StartMaintenance schedules RunMaintenance on a cron spec (standard five
// fields or descriptors such as "@every 6h").
func (e *Engine) StartMaintenance(spec string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cron != nil {
		return fmt.Errorf("maintenance already running")
	}

	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if err := e.RunMaintenance(context.Background()); err != nil {
			e.log.Error("maintenance", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule maintenance %q: %w", spec, err)
	}
	c.Start()
	e.cron = c
	e.log.Info("maintenance scheduled", zap.String("spec", spec))
	return nil
}

// Stop shuts down the maintenance schedule and waits for a running job.
func (e *Engine) Stop() {
	e.mu.Lock()
	c := e.cron
	e.cron = nil
	e.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}
