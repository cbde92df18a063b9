package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lazypower/kura/internal/store"
)

// historyMessages is how much of a room's conversation feeds reclassification.
const historyMessages = 10

// BatchResult tallies one batch reclassification run.
type BatchResult struct {
	Reclassified int `json:"reclassified"`
	Skipped      int `json:"skipped"`
	Errors       int `json:"errors"`
}

// NeedsReclassification reports whether a classification made at last is
// stale at now.
func NeedsReclassification(last, now time.Time, interval time.Duration) bool {
	return now.Sub(last) >= interval
}

// Due reports whether a room should be reclassified: its last classification
// (or creation, if never classified) is stale, or its stored confidence is
// below the configured minimum. Manual rooms are never due.
func (e *Engine) Due(r *store.Room) bool {
	if r.Manual() {
		return false
	}
	last := r.CreatedAt
	if r.LastClassifiedAt != nil {
		last = *r.LastClassifiedAt
	}
	if NeedsReclassification(time.UnixMilli(last), e.now(), e.Options.Interval) {
		return true
	}
	return r.Confidence != nil && *r.Confidence < e.Options.MinConfidence
}

// ReclassifyRoom classifies a room again from its title and recent history
// and stores the result. A manually locked room is left alone and yields
// nil; so does a room that gets locked before the result is written.
func (e *Engine) ReclassifyRoom(ctx context.Context, roomID, ownerID int64) (*Classification, error) {
	room, err := e.DB.GetRoom(ctx, ownerID, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, fmt.Errorf("room %d: %w", roomID, ErrRoomNotFound)
	}
	if room.Manual() {
		return nil, nil
	}

	msgs, err := e.Messages.RecentMessages(ctx, roomID, historyMessages)
	if err != nil {
		return nil, fmt.Errorf("room history: %w", err)
	}
	history := make([]string, len(msgs))
	for i, m := range msgs {
		history[i] = m.Content
	}

	// Classify may create a project or rewrite a temporary flag, so a lock
	// taken while history was loading must stop it here.
	room, err = e.DB.GetRoom(ctx, ownerID, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, fmt.Errorf("room %d: %w", roomID, ErrRoomNotFound)
	}
	if room.Manual() {
		e.log.Info("room locked during reclassification", zap.Int64("room_id", roomID))
		return nil, nil
	}

	c, err := e.Classify(ctx, Input{
		Text:    room.Title,
		History: history,
		OwnerID: ownerID,
		Room:    room,
	})
	if err != nil {
		return nil, err
	}

	written, err := e.DB.UpdateRoomClassification(ctx, roomID, c.ProjectID, c.Confidence, e.now())
	if err != nil {
		return nil, err
	}
	if !written {
		e.log.Info("room locked during reclassification", zap.Int64("room_id", roomID))
		return nil, nil
	}
	return c, nil
}

// BatchReclassify walks the owner's most recently updated auto rooms and
// reclassifies the due ones, one at a time. Per-room failures are counted
// and do not stop the run.
func (e *Engine) BatchReclassify(ctx context.Context, ownerID int64) (BatchResult, error) {
	var res BatchResult
	start := time.Now()
	log := e.log.With(zap.String("run_id", uuid.NewString()), zap.Int64("owner_id", ownerID))

	rooms, err := e.DB.ListRooms(ctx, ownerID, store.LockAuto, e.Options.BatchLimit)
	if err != nil {
		return res, fmt.Errorf("list rooms: %w", err)
	}

	for i := range rooms {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !e.Due(&rooms[i]) {
			continue
		}

		c, err := e.ReclassifyRoom(ctx, rooms[i].ID, ownerID)
		switch {
		case err != nil:
			res.Errors++
			log.Warn("reclassify room", zap.Int64("room_id", rooms[i].ID), zap.Error(err))
		case c == nil:
			res.Skipped++
		default:
			res.Reclassified++
		}
	}

	e.Metrics.RecordBatch(res.Reclassified, res.Skipped, res.Errors, time.Since(start).Seconds())
	log.Info("batch reclassification",
		zap.Int("examined", len(rooms)),
		zap.Int("reclassified", res.Reclassified),
		zap.Int("skipped", res.Skipped),
		zap.Int("errors", res.Errors),
	)
	return res, nil
}
