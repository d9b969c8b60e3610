package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"LiquiSafe-Chain/internal/journal"
)

func seededStore(t *testing.T) journal.Store {
	t.Helper()
	store := journal.NewMemoryStore()
	ctx := context.Background()
	for _, rec := range []*journal.Record{
		journal.NewRecord("p1", "strategy_evaluation", "DONE", ""),
		journal.NewRecord("p1", "enter_pool_randomness", "DONE", ""),
		journal.NewRecord("p2", "strategy_evaluation", "WAIT", ""),
	} {
		if err := store.Append(ctx, rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	return store
}

func TestHandleJournalFiltersByPeriod(t *testing.T) {
	server := NewServer(":0", nil, seededStore(t))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/journal?period_id=p1", nil)
	rec := httptest.NewRecorder()
	server.handleJournal(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var records []*journal.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records for p1, got %d", len(records))
	}
	for _, r := range records {
		if r.PeriodID != "p1" {
			t.Fatalf("record from wrong period: %+v", r)
		}
	}
}

func TestHandleJournalHonorsLimit(t *testing.T) {
	server := NewServer(":0", nil, seededStore(t))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/journal?limit=1", nil)
	rec := httptest.NewRecorder()
	server.handleJournal(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var records []*journal.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record with limit, got %d", len(records))
	}
	// 无周期过滤时返回最新记录。
	if records[0].PeriodID != "p2" {
		t.Fatalf("expected newest record first, got %+v", records[0])
	}
}

func TestHandleJournalRejectsNonGET(t *testing.T) {
	server := NewServer(":0", nil, seededStore(t))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/journal", nil)
	rec := httptest.NewRecorder()
	server.handleJournal(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestHandleJournalWithoutStore(t *testing.T) {
	server := NewServer(":0", nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/journal", nil)
	rec := httptest.NewRecorder()
	server.handleJournal(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a journal store, got %d", rec.Code)
	}
}

func TestHandleStatusWithoutEngine(t *testing.T) {
	server := NewServer(":0", nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	server.handleStatus(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without an engine, got %d", rec.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	server := NewServer(":0", nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.handleHealth(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Fatalf("unexpected health body: %q", rec.Body.String())
	}
}

func TestWithContextRejectsAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	handler := withContext(ctx, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not run after shutdown")
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 after shutdown, got %d", rec.Code)
	}
}
