package journal

import (
	"context"
	"testing"
)

func TestMemoryStoreAppendAndListByPeriod(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	for _, rec := range []*Record{
		NewRecord("p1", "strategy_evaluation", "DONE", ""),
		NewRecord("p1", "enter_pool_randomness", "DONE", ""),
		NewRecord("p2", "strategy_evaluation", "WAIT", ""),
	} {
		if err := store.Append(ctx, rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	records, err := store.ListByPeriod(ctx, "p1", 0)
	if err != nil {
		t.Fatalf("list by period: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records for p1, got %d", len(records))
	}
	if records[0].Round != "strategy_evaluation" || records[1].Round != "enter_pool_randomness" {
		t.Fatalf("records out of insertion order: %v, %v", records[0].Round, records[1].Round)
	}

	limited, err := store.ListByPeriod(ctx, "p1", 1)
	if err != nil {
		t.Fatalf("list by period with limit: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 record with limit, got %d", len(limited))
	}
}

func TestMemoryStoreRecentNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	first := NewRecord("p1", "r1", "DONE", "")
	second := NewRecord("p1", "r2", "DONE", "")
	for _, rec := range []*Record{first, second} {
		if err := store.Append(ctx, rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	recent, err := store.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != second.ID {
		t.Fatalf("recent must return the newest record first")
	}

	all, err := store.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("recent without limit: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected all records, got %d", len(all))
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	rec := NewRecord("p1", "r1", "DONE", "keeper=0x01")
	if err := store.Append(ctx, rec); err != nil {
		t.Fatalf("append: %v", err)
	}
	rec.Detail = "mutated after append"

	records, err := store.ListByPeriod(ctx, "p1", 0)
	if err != nil {
		t.Fatalf("list by period: %v", err)
	}
	if records[0].Detail != "keeper=0x01" {
		t.Fatalf("stored record shares memory with the caller")
	}
	records[0].Event = "mutated read"

	again, err := store.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if again[0].Event != "DONE" {
		t.Fatalf("read records share memory with the store")
	}
}

func TestMemoryStoreRejectsNilRecord(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	if err := store.Append(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil record")
	}
}
