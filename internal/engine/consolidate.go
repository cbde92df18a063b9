package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lazypower/kura/internal/store"
)

// ConsolidationResult tallies one consolidation run.
type ConsolidationResult struct {
	Consolidated int `json:"consolidated"`
	Merged       int `json:"merged"`
}

// ConsolidateTemporaryProjects moves the auto rooms of every temporary
// project into the owner's default project and clears the temporary flag.
// Projects and memories are never deleted.
func (e *Engine) ConsolidateTemporaryProjects(ctx context.Context, ownerID int64) (ConsolidationResult, error) {
	var res ConsolidationResult

	temps, err := e.DB.ListTemporaryProjects(ctx, ownerID)
	if err != nil {
		return res, err
	}
	if len(temps) == 0 {
		return res, nil
	}

	def, err := e.DB.GetOrCreateDefaultProject(ctx, ownerID, e.Options.DefaultProjectName)
	if err != nil {
		return res, err
	}

	log := e.log.With(zap.String("run_id", uuid.NewString()), zap.Int64("owner_id", ownerID))
	for _, p := range temps {
		rooms, err := e.DB.ListProjectRooms(ctx, ownerID, p.ID, store.LockAuto, 0)
		if err != nil {
			return res, err
		}

		merged := 0
		for _, r := range rooms {
			ok, err := e.DB.UpdateRoomClassification(ctx, r.ID, def.ID, defaultConfidence, e.now())
			if err != nil {
				return res, fmt.Errorf("merge room %d: %w", r.ID, err)
			}
			if ok {
				merged++
			}
		}

		if err := e.DB.SetProjectTemporary(ctx, p.ID, false); err != nil {
			return res, fmt.Errorf("clear temporary %d: %w", p.ID, err)
		}
		res.Consolidated++
		res.Merged += merged
		log.Debug("consolidated project", zap.Int64("project_id", p.ID), zap.String("name", p.Name), zap.Int("rooms", merged))
	}

	e.Metrics.RecordConsolidation(res.Consolidated, res.Merged)
	log.Info("consolidation", zap.Int("consolidated", res.Consolidated), zap.Int("merged", res.Merged))
	return res, nil
}
