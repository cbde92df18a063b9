package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/lazypower/kura/internal/logging"
	"github.com/lazypower/kura/internal/metrics"
	"github.com/lazypower/kura/internal/pattern"
	"github.com/lazypower/kura/internal/similarity"
	"github.com/lazypower/kura/internal/store"
)

// ErrRoomNotFound is returned when a room does not exist for the owner.
var ErrRoomNotFound = errors.New("room not found")

// MessageSource yields a room's most recent turns in chronological order.
type MessageSource interface {
	RecentMessages(ctx context.Context, roomID int64, limit int) ([]store.Message, error)
}

// Compressor folds an owner's retained memories into long-term summaries.
type Compressor interface {
	Compress(ctx context.Context, ownerID int64) (int, error)
}

// Options tunes the classifier and the scheduler.
type Options struct {
	// DefaultProjectName names the catch-all project created per owner.
	DefaultProjectName string
	// Interval is how long a classification stays fresh.
	Interval time.Duration
	// MinConfidence marks stored classifications below it as due.
	MinConfidence float64
	// BatchLimit caps the rooms examined per batch run.
	BatchLimit int
}

// DefaultOptions returns the stock tuning.
func DefaultOptions() Options {
	return Options{
		DefaultProjectName: "Default",
		Interval:           30 * 24 * time.Hour,
		MinConfidence:      0.3,
		BatchLimit:         100,
	}
}

// Engine routes rooms into projects and keeps those routes fresh.
type Engine struct {
	DB       *store.DB
	Messages MessageSource
	Memory   Compressor // optional; maintenance skips compression when nil
	Score    similarity.Func
	Patterns *pattern.Registry
	Metrics  *metrics.Metrics
	Options  Options

	log *zap.Logger
	now func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// New creates an Engine backed by db, using the built-in similarity measure
// and category table. A nil logger discards output.
func New(db *store.DB, log *zap.Logger) *Engine {
	return &Engine{
		DB:       db,
		Messages: db,
		Score:    similarity.Cosine,
		Patterns: pattern.Default(),
		Options:  DefaultOptions(),
		log:      logging.OrNop(log),
		now:      time.Now,
	}
}
