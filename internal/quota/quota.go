// Package quota maps owners to per-tier memory limits through their plan.
package quota

import (
	"context"
	"fmt"
	"sort"

	"github.com/lazypower/kura/internal/store"
)

// Unlimited is the limit value that disables a cap.
const Unlimited = -1

// Built-in plan names.
const (
	Free    = "free"
	Basic   = "basic"
	Pro     = "pro"
	Founder = "founder"
)

// Limits is the maximum number of live entries per tier.
// -1 is unlimited, 0 disables the tier.
type Limits struct {
	Short  int
	Medium int
	Long   int
}

// For returns the limit for one tier. Unknown tiers are disabled.
func (l Limits) For(tier store.Tier) int {
	switch tier {
	case store.TierShort:
		return l.Short
	case store.TierMedium:
		return l.Medium
	case store.TierLong:
		return l.Long
	}
	return 0
}

// DefaultPlans returns the built-in plan table.
func DefaultPlans() map[string]Limits {
	return map[string]Limits{
		Founder: {Short: Unlimited, Medium: Unlimited, Long: Unlimited},
		Pro:     {Short: Unlimited, Medium: Unlimited, Long: Unlimited},
		Basic:   {Short: 50, Medium: 20, Long: 5},
		Free:    {Short: 10, Medium: 5, Long: 0},
	}
}

// Lookup resolves an owner's plan from the owner_plans table, falling back to
// a default plan for owners without a row or with an unknown plan.
type Lookup struct {
	db       *store.DB
	plans    map[string]Limits
	fallback string
}

// New builds a Lookup. overrides replace entries of the built-in table by
// plan name and may add new plans. fallback must name a known plan.
func New(db *store.DB, overrides map[string]Limits, fallback string) (*Lookup, error) {
	plans := DefaultPlans()
	for name, limits := range overrides {
		plans[name] = limits
	}
	if fallback == "" {
		fallback = Free
	}
	if _, ok := plans[fallback]; !ok {
		return nil, fmt.Errorf("unknown default plan %q", fallback)
	}
	return &Lookup{db: db, plans: plans, fallback: fallback}, nil
}

// Known reports whether plan names a configured plan.
func (l *Lookup) Known(plan string) bool {
	_, ok := l.plans[plan]
	return ok
}

// Names returns the configured plan names, sorted.
func (l *Lookup) Names() []string {
	names := make([]string, 0, len(l.plans))
	for name := range l.plans {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Plan returns the effective plan name and limits of an owner.
func (l *Lookup) Plan(ctx context.Context, ownerID int64) (string, Limits, error) {
	name, err := l.db.OwnerPlan(ctx, ownerID)
	if err != nil {
		return "", Limits{}, fmt.Errorf("lookup plan: %w", err)
	}
	limits, ok := l.plans[name]
	if !ok {
		name = l.fallback
		limits = l.plans[name]
	}
	return name, limits, nil
}

// PlanName returns the owner's effective plan name.
func (l *Lookup) PlanName(ctx context.Context, ownerID int64) (string, error) {
	name, _, err := l.Plan(ctx, ownerID)
	return name, err
}

// Quota returns the owner's limit for one tier.
func (l *Lookup) Quota(ctx context.Context, ownerID int64, tier store.Tier) (int, error) {
	_, limits, err := l.Plan(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	return limits.For(tier), nil
}

// SetPlan assigns a known plan to an owner.
func (l *Lookup) SetPlan(ctx context.Context, ownerID int64, plan string) error {
	if !l.Known(plan) {
		return fmt.Errorf("unknown plan %q", plan)
	}
	return l.db.SetOwnerPlan(ctx, ownerID, plan)
}
