// Package memory retains facts about an owner across three horizons and
// assembles them into conversation context.
//
// Short entries are scratch, medium entries expire after a TTL and long
// entries are kept until removed by the owner. Every tier is capped by the
// owner's quota: -1 is unlimited, 0 disables the tier, N caps live entries.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lazypower/kura/internal/logging"
	"github.com/lazypower/kura/internal/metrics"
	"github.com/lazypower/kura/internal/similarity"
	"github.com/lazypower/kura/internal/store"
)

var (
	ErrInvalidTier  = errors.New("invalid memory tier")
	ErrEmptyContent = errors.New("memory content is empty")
)

// QuotaSource reports how many live entries an owner may keep in a tier.
type QuotaSource interface {
	Quota(ctx context.Context, ownerID int64, tier store.Tier) (int, error)
}

// planNamer is implemented by quota sources that know plan names.
type planNamer interface {
	PlanName(ctx context.Context, ownerID int64) (string, error)
}

// Options tunes retention.
type Options struct {
	MediumTTL      time.Duration
	DedupThreshold float64
}

// DefaultOptions returns a 30 day medium TTL and a 0.8 dedup threshold.
func DefaultOptions() Options {
	return Options{
		MediumTTL:      30 * 24 * time.Hour,
		DedupThreshold: 0.8,
	}
}

// Store is the quota-gated tiered memory store.
type Store struct {
	DB      *store.DB
	Quotas  QuotaSource
	Score   similarity.Func
	Metrics *metrics.Metrics
	Options Options

	log *zap.Logger
	now func() time.Time
}

// New creates a Store using the built-in similarity measure.
func New(db *store.DB, quotas QuotaSource, log *zap.Logger) *Store {
	return &Store{
		DB:      db,
		Quotas:  quotas,
		Score:   similarity.Cosine,
		Options: DefaultOptions(),
		log:     logging.OrNop(log),
		now:     time.Now,
	}
}

func (s *Store) expiry(tier store.Tier, now time.Time) *int64 {
	if tier != store.TierMedium {
		return nil
	}
	ms := now.Add(s.Options.MediumTTL).UnixMilli()
	return &ms
}

// Save retains content in a tier. It returns false without error when the
// tier is disabled for the owner or already at quota. Content similar to a
// live entry of the same tier refreshes that entry instead of adding one.
func (s *Store) Save(ctx context.Context, ownerID int64, tier store.Tier, content, importance, category string) (bool, error) {
	if !tier.Valid() {
		return false, fmt.Errorf("%w: %q", ErrInvalidTier, tier)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return false, ErrEmptyContent
	}

	limit, err := s.Quotas.Quota(ctx, ownerID, tier)
	if err != nil {
		return false, fmt.Errorf("quota: %w", err)
	}
	if limit == 0 {
		s.Metrics.RecordMemorySave(string(tier), "rejected")
		return false, nil
	}

	now := s.now()
	live, err := s.DB.ListLiveMemories(ctx, ownerID, tier, now, 0)
	if err != nil {
		return false, err
	}
	if limit > 0 && len(live) >= limit {
		s.Metrics.RecordMemorySave(string(tier), "rejected")
		s.log.Debug("memory quota reached",
			zap.Int64("owner_id", ownerID), zap.String("tier", string(tier)), zap.Int("limit", limit))
		return false, nil
	}

	for _, e := range live {
		if s.Score(content, e.Content) < s.Options.DedupThreshold {
			continue
		}
		if err := s.DB.RefreshMemory(ctx, e.ID, importance, category, s.expiry(tier, now)); err != nil {
			return false, err
		}
		s.Metrics.RecordMemorySave(string(tier), "refreshed")
		s.log.Debug("memory refreshed", zap.Int64("owner_id", ownerID), zap.Int64("memory_id", e.ID))
		return true, nil
	}

	entry := &store.MemoryEntry{
		OwnerID:    ownerID,
		Tier:       tier,
		Content:    content,
		Category:   category,
		Importance: importance,
		ExpiresAt:  s.expiry(tier, now),
	}
	stored, err := s.DB.InsertMemoryWithinQuota(ctx, entry, limit, now)
	if err != nil {
		return false, err
	}
	if !stored {
		s.Metrics.RecordMemorySave(string(tier), "rejected")
		return false, nil
	}
	s.Metrics.RecordMemorySave(string(tier), "stored")
	return true, nil
}

// Context is the retained knowledge handed to a conversation.
type Context struct {
	LTM []string `json:"ltm"`
	MTM []string `json:"mtm"`
	STM []string `json:"stm"`
}

// LoadContext assembles an owner's live entries, newest first and truncated
// to quota per tier. STM starts with the supplied conversation history.
func (s *Store) LoadContext(ctx context.Context, ownerID int64, history []string) (*Context, error) {
	now := s.now()
	out := &Context{LTM: []string{}, MTM: []string{}, STM: []string{}}
	out.STM = append(out.STM, history...)

	for _, tier := range store.Tiers {
		entries, err := s.liveWithinQuota(ctx, ownerID, tier, now)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			switch tier {
			case store.TierLong:
				out.LTM = append(out.LTM, e.Content)
			case store.TierMedium:
				out.MTM = append(out.MTM, e.Content)
			case store.TierShort:
				out.STM = append(out.STM, e.Content)
			}
		}
	}
	return out, nil
}

func (s *Store) liveWithinQuota(ctx context.Context, ownerID int64, tier store.Tier, now time.Time) ([]store.MemoryEntry, error) {
	limit, err := s.Quotas.Quota(ctx, ownerID, tier)
	if err != nil {
		return nil, fmt.Errorf("quota: %w", err)
	}
	if limit == 0 {
		return nil, nil
	}
	if limit < 0 {
		limit = 0 // all
	}
	return s.DB.ListLiveMemories(ctx, ownerID, tier, now, limit)
}

// List returns the owner's live entries of a tier, newest first, including
// any beyond the current quota.
func (s *Store) List(ctx context.Context, ownerID int64, tier store.Tier) ([]store.MemoryEntry, error) {
	if !tier.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTier, tier)
	}
	return s.DB.ListLiveMemories(ctx, ownerID, tier, s.now(), 0)
}

// TierStats is the usage of one tier.
type TierStats struct {
	Tier  store.Tier `json:"tier"`
	Count int        `json:"count"`
	Limit int        `json:"limit"`
}

// Stats summarizes an owner's memory usage.
type Stats struct {
	Plan  string      `json:"plan,omitempty"`
	Tiers []TierStats `json:"tiers"`
}

// Stats reports live counts and limits per tier.
func (s *Store) Stats(ctx context.Context, ownerID int64) (*Stats, error) {
	now := s.now()
	out := &Stats{}
	if pn, ok := s.Quotas.(planNamer); ok {
		name, err := pn.PlanName(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		out.Plan = name
	}

	for _, tier := range store.Tiers {
		limit, err := s.Quotas.Quota(ctx, ownerID, tier)
		if err != nil {
			return nil, fmt.Errorf("quota: %w", err)
		}
		n, err := s.DB.CountLiveMemories(ctx, ownerID, tier, now)
		if err != nil {
			return nil, err
		}
		out.Tiers = append(out.Tiers, TierStats{Tier: tier, Count: n, Limit: limit})
	}
	return out, nil
}
