package store

import (
	"context"
	"testing"
	"time"
)

func TestTierValid(t *testing.T) {
	for _, tier := range Tiers {
		if !tier.Valid() {
			t.Errorf("%q should be valid", tier)
		}
	}
	if Tier("forever").Valid() {
		t.Error("unknown tier reported valid")
	}
}

func TestLiveMemoriesExcludeExpired(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	now := time.Now()

	past := now.Add(-time.Hour).UnixMilli()
	future := now.Add(time.Hour).UnixMilli()
	entries := []MemoryEntry{
		{OwnerID: 1, Tier: TierMedium, Content: "expired", ExpiresAt: &past},
		{OwnerID: 1, Tier: TierMedium, Content: "live", ExpiresAt: &future},
		{OwnerID: 1, Tier: TierLong, Content: "forever"},
		{OwnerID: 2, Tier: TierMedium, Content: "someone else", ExpiresAt: &future},
	}
	for i := range entries {
		if err := db.InsertMemory(ctx, &entries[i]); err != nil {
			t.Fatalf("InsertMemory: %v", err)
		}
	}

	n, err := db.CountLiveMemories(ctx, 1, TierMedium, now)
	if err != nil {
		t.Fatalf("CountLiveMemories: %v", err)
	}
	if n != 1 {
		t.Errorf("live medium = %d, want 1", n)
	}

	list, err := db.ListLiveMemories(ctx, 1, TierMedium, now, 0)
	if err != nil {
		t.Fatalf("ListLiveMemories: %v", err)
	}
	if len(list) != 1 || list[0].Content != "live" {
		t.Errorf("live medium list = %+v", list)
	}

	// The expired row is still stored; expiry is only a read filter.
	var total int
	db.QueryRow(`SELECT COUNT(*) FROM memories WHERE owner_id = 1`).Scan(&total)
	if total != 3 {
		t.Errorf("stored rows = %d, want 3", total)
	}

	// Seen from before its expiry, the expired entry is live again.
	n, _ = db.CountLiveMemories(ctx, 1, TierMedium, now.Add(-2*time.Hour))
	if n != 2 {
		t.Errorf("live medium in the past = %d, want 2", n)
	}
}

func TestListLiveMemoriesNewestFirst(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	for _, c := range []string{"old", "mid", "new"} {
		if err := db.InsertMemory(ctx, &MemoryEntry{OwnerID: 1, Tier: TierShort, Content: c}); err != nil {
			t.Fatalf("InsertMemory: %v", err)
		}
	}

	list, err := db.ListLiveMemories(ctx, 1, TierShort, time.Now(), 2)
	if err != nil {
		t.Fatalf("ListLiveMemories: %v", err)
	}
	if len(list) != 2 || list[0].Content != "new" || list[1].Content != "mid" {
		t.Errorf("list = %+v", list)
	}
}

func TestInsertMemoryWithinQuota(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	now := time.Now()

	past := now.Add(-time.Hour).UnixMilli()
	db.InsertMemory(ctx, &MemoryEntry{OwnerID: 1, Tier: TierMedium, Content: "stale", ExpiresAt: &past})

	future := now.Add(time.Hour).UnixMilli()
	for i, want := range []bool{true, true, false} {
		e := MemoryEntry{OwnerID: 1, Tier: TierMedium, Content: "fact", ExpiresAt: &future}
		ok, err := db.InsertMemoryWithinQuota(ctx, &e, 2, now)
		if err != nil {
			t.Fatalf("InsertMemoryWithinQuota #%d: %v", i, err)
		}
		if ok != want {
			t.Errorf("insert #%d stored = %v, want %v", i, ok, want)
		}
		if ok && e.ID == 0 {
			t.Errorf("insert #%d: ID not set", i)
		}
		if !ok && e.ID != 0 {
			t.Errorf("insert #%d: refused entry got ID %d", i, e.ID)
		}
	}

	n, _ := db.CountLiveMemories(ctx, 1, TierMedium, now)
	if n != 2 {
		t.Errorf("live medium = %d, want 2", n)
	}

	// Other owners and tiers have their own count.
	ok, err := db.InsertMemoryWithinQuota(ctx, &MemoryEntry{OwnerID: 2, Tier: TierMedium, Content: "x", ExpiresAt: &future}, 2, now)
	if err != nil || !ok {
		t.Errorf("other owner: stored = %v, err = %v", ok, err)
	}
	ok, err = db.InsertMemoryWithinQuota(ctx, &MemoryEntry{OwnerID: 1, Tier: TierLong, Content: "x"}, 0, now)
	if err != nil || ok {
		t.Errorf("zero limit: stored = %v, err = %v", ok, err)
	}
	for i := 0; i < 3; i++ {
		ok, err = db.InsertMemoryWithinQuota(ctx, &MemoryEntry{OwnerID: 1, Tier: TierShort, Content: "x"}, -1, now)
		if err != nil || !ok {
			t.Errorf("unlimited #%d: stored = %v, err = %v", i, ok, err)
		}
	}
}

func TestGetMemory(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	e := MemoryEntry{OwnerID: 1, Tier: TierLong, Content: "likes go", Category: "pref", Importance: "high"}
	if err := db.InsertMemory(ctx, &e); err != nil {
		t.Fatalf("InsertMemory: %v", err)
	}

	got, err := db.GetMemory(ctx, 1, e.ID)
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}
	if got == nil || got.Content != "likes go" || got.Tier != TierLong || got.Category != "pref" {
		t.Errorf("GetMemory = %+v", got)
	}

	if got, _ := db.GetMemory(ctx, 2, e.ID); got != nil {
		t.Error("another owner's memory should not be found")
	}
	if got, _ := db.GetMemory(ctx, 1, 9999); got != nil {
		t.Error("missing memory should be nil")
	}
}

func TestRefreshMemory(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	exp := time.Now().Add(time.Hour).UnixMilli()
	e := MemoryEntry{OwnerID: 1, Tier: TierMedium, Content: "likes go", Category: "pref", Importance: "low", ExpiresAt: &exp}
	if err := db.InsertMemory(ctx, &e); err != nil {
		t.Fatalf("InsertMemory: %v", err)
	}

	later := time.Now().Add(48 * time.Hour).UnixMilli()
	if err := db.RefreshMemory(ctx, e.ID, "high", "", &later); err != nil {
		t.Fatalf("RefreshMemory: %v", err)
	}

	list, _ := db.ListLiveMemories(ctx, 1, TierMedium, time.Now(), 0)
	if len(list) != 1 {
		t.Fatalf("len = %d, want 1", len(list))
	}
	got := list[0]
	if got.Importance != "high" || got.Category != "pref" || got.Content != "likes go" {
		t.Errorf("refreshed entry = %+v", got)
	}
	if got.ExpiresAt == nil || *got.ExpiresAt != later {
		t.Errorf("ExpiresAt = %v, want %d", got.ExpiresAt, later)
	}
}

func TestOwnerPlan(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	plan, err := db.OwnerPlan(ctx, 1)
	if err != nil || plan != "" {
		t.Errorf("OwnerPlan unset = %q, %v", plan, err)
	}

	if err := db.SetOwnerPlan(ctx, 1, "basic"); err != nil {
		t.Fatalf("SetOwnerPlan: %v", err)
	}
	if err := db.SetOwnerPlan(ctx, 1, "pro"); err != nil {
		t.Fatalf("SetOwnerPlan replace: %v", err)
	}
	plan, err = db.OwnerPlan(ctx, 1)
	if err != nil || plan != "pro" {
		t.Errorf("OwnerPlan = %q, %v; want pro", plan, err)
	}
}
