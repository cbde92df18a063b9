package memory

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/lazypower/kura/internal/store"
)

// ErrMemoryNotFound is returned when an entry does not exist for the owner
// or has expired.
var ErrMemoryNotFound = errors.New("memory not found")

const (
	// compressMinEntries is how many high-importance medium entries an owner
	// needs before Compress does anything.
	compressMinEntries = 5
	// compressMinGroup is the smallest category group folded into one entry.
	compressMinGroup = 3
)

func highImportance(label string) bool {
	switch strings.ToLower(label) {
	case "high", "critical":
		return true
	}
	return false
}

// Promote copies a live entry into the long tier with high importance. The
// copy is quota-gated and deduplicated like any Save; the source entry is
// kept. An entry already in the long tier reports true.
func (s *Store) Promote(ctx context.Context, ownerID, memoryID int64) (bool, error) {
	e, err := s.DB.GetMemory(ctx, ownerID, memoryID)
	if err != nil {
		return false, err
	}
	if e == nil || (e.ExpiresAt != nil && *e.ExpiresAt <= s.now().UnixMilli()) {
		return false, ErrMemoryNotFound
	}
	if e.Tier == store.TierLong {
		return true, nil
	}

	saved, err := s.Save(ctx, ownerID, store.TierLong, e.Content, "high", e.Category)
	if err != nil {
		return false, err
	}
	s.log.Debug("memory promoted",
		zap.Int64("owner_id", ownerID), zap.Int64("memory_id", memoryID), zap.Bool("saved", saved))
	return saved, nil
}

// Compress folds high-importance medium entries into long-tier summaries.
// Once the owner has at least five such entries, every category holding three
// or more is joined, oldest first, into one long entry. Source entries are
// kept and run out their TTL. It returns how many medium entries were folded
// into a saved summary.
func (s *Store) Compress(ctx context.Context, ownerID int64) (int, error) {
	live, err := s.DB.ListLiveMemories(ctx, ownerID, store.TierMedium, s.now(), 0)
	if err != nil {
		return 0, err
	}

	groups := map[string][]store.MemoryEntry{}
	total := 0
	for _, e := range live {
		if !highImportance(e.Importance) {
			continue
		}
		groups[e.Category] = append(groups[e.Category], e)
		total++
	}
	if total < compressMinEntries {
		return 0, nil
	}

	categories := make([]string, 0, len(groups))
	for c := range groups {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	folded := 0
	for _, category := range categories {
		entries := groups[category]
		if len(entries) < compressMinGroup {
			continue
		}
		// live is newest first.
		parts := make([]string, len(entries))
		for i, e := range entries {
			parts[len(entries)-1-i] = e.Content
		}

		saved, err := s.Save(ctx, ownerID, store.TierLong, strings.Join(parts, "\n"), "high", category)
		if err != nil {
			return folded, err
		}
		if !saved {
			s.log.Debug("memory summary not saved",
				zap.Int64("owner_id", ownerID), zap.String("category", category))
			continue
		}
		folded += len(entries)
	}
	if folded > 0 {
		s.log.Info("memories compressed", zap.Int64("owner_id", ownerID), zap.Int("folded", folded))
	}
	return folded, nil
}
