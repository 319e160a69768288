package supabase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/crimson-sun/sluice/internal/source"
)

func testConfig(endpoint string) source.Config {
	return source.Config{
		Provider: "supabase",
		Endpoint: endpoint,
		APIKey:   "service-key",
		Table:    "events",
	}
}

func TestNew_Validation(t *testing.T) {
	cfg := testConfig("")
	if _, err := New(cfg); err == nil || !strings.Contains(err.Error(), "project_ref") {
		t.Fatalf("expected project_ref error, got %v", err)
	}

	cfg.Extra = map[string]string{"project_ref": "abc"}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.path != "/rest/v1/events" {
		t.Fatalf("unexpected path %q", s.path)
	}

	cfg.APIKey = ""
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error for missing API key")
	}

	cfg = testConfig("http://x")
	cfg.Table = "events;drop"
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error for invalid table")
	}
}

func TestQuery_FilterAndHeaders(t *testing.T) {
	var gotQuery map[string][]string
	var gotKey, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/events" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		gotQuery = r.URL.Query()
		gotKey = r.Header.Get("apikey")
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`[
			{"id": 2, "message": "b", "severity": "warn", "source": "db", "timestamp": "2025-01-01T00:02:00+00:00"},
			{"id": 1, "message": "a", "severity": "info", "source": "api", "timestamp": "2025-01-01T00:01:00+00:00"}
		]`))
	}))
	defer srv.Close()

	s, err := New(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cursor := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rows, err := s.Query(context.Background(), cursor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := gotQuery["timestamp"]; len(got) != 1 || got[0] != "gt.2025-01-01T00:00:00Z" {
		t.Fatalf("unexpected timestamp filter: %v", got)
	}
	if got := gotQuery["order"]; len(got) != 1 || got[0] != "timestamp.asc,id.asc" {
		t.Fatalf("unexpected order: %v", got)
	}
	if got := gotQuery["select"]; len(got) != 1 || got[0] != "id,message,severity,source,timestamp" {
		t.Fatalf("unexpected select: %v", got)
	}
	if gotKey != "service-key" || gotAuth != "Bearer service-key" {
		t.Fatalf("unexpected auth headers: apikey=%q auth=%q", gotKey, gotAuth)
	}

	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].ID != "1" || rows[1].ID != "2" {
		t.Fatalf("expected rows sorted ascending, got %+v", rows)
	}
	if rows[1].Severity != "warn" || rows[1].Source != "db" {
		t.Fatalf("unexpected row: %+v", rows[1])
	}
}

func TestQuery_Pagination(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		var page []map[string]any
		for i := offset; i < offset+limit && i < 5; i++ {
			page = append(page, map[string]any{
				"id":        i,
				"message":   "m",
				"timestamp": time.Date(2025, 1, 1, 0, i, 0, 0, time.UTC).Format(time.RFC3339),
			})
		}
		if page == nil {
			page = []map[string]any{}
		}
		json.NewEncoder(w).Encode(page)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Extra = map[string]string{"page_size": "2"}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows, err := s.Query(context.Background(), time.Unix(0, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(rows))
	}
	// pages of 2, 2, 1, then the empty page that ends the scan
	if calls.Load() != 4 {
		t.Fatalf("expected 4 requests, got %d", calls.Load())
	}
}

func TestQuery_ServerRowCapBelowPageSize(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	table := []map[string]any{
		{"id": "r1", "message": "m", "timestamp": base.Add(1 * time.Second).Format(time.RFC3339)},
		{"id": "r2", "message": "m", "timestamp": base.Add(2 * time.Second).Format(time.RFC3339)},
		{"id": "r3", "message": "m", "timestamp": base.Add(2 * time.Second).Format(time.RFC3339)},
		{"id": "r4", "message": "m", "timestamp": base.Add(3 * time.Second).Format(time.RFC3339)},
	}
	const maxRows = 2 // PostgREST max-rows
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		after, _ := time.Parse(time.RFC3339Nano, strings.TrimPrefix(q.Get("timestamp"), "gt."))
		offset, _ := strconv.Atoi(q.Get("offset"))
		limit, _ := strconv.Atoi(q.Get("limit"))
		if limit > maxRows {
			limit = maxRows
		}
		var matching []map[string]any
		for _, rec := range table {
			ts, _ := time.Parse(time.RFC3339, rec["timestamp"].(string))
			if ts.After(after) {
				matching = append(matching, rec)
			}
		}
		page := []map[string]any{}
		for i := offset; i < offset+limit && i < len(matching); i++ {
			page = append(page, matching[i])
		}
		json.NewEncoder(w).Encode(page)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Extra = map[string]string{"page_size": "3"}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seen := map[string]bool{}
	cursor := time.Unix(0, 0)
	for run := 0; run < 3; run++ {
		rows, err := s.Query(context.Background(), cursor)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, r := range rows {
			seen[r.ID] = true
			if r.Timestamp.After(cursor) {
				cursor = r.Timestamp
			}
		}
	}
	for _, rec := range table {
		if id := rec["id"].(string); !seen[id] {
			t.Fatalf("row %s never extracted", id)
		}
	}
}

func TestQuery_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"message":"invalid key"}`))
	}))
	defer srv.Close()

	s, _ := New(testConfig(srv.URL))
	_, err := s.Query(context.Background(), time.Unix(0, 0))
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected 401 error, got %v", err)
	}
}

func TestQuery_BadTimestamp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id": 1, "timestamp": "last tuesday"}]`))
	}))
	defer srv.Close()

	s, _ := New(testConfig(srv.URL))
	if _, err := s.Query(context.Background(), time.Unix(0, 0)); err == nil {
		t.Fatal("expected error for unparseable timestamp")
	}
}

func TestParseTimestamp_Micros(t *testing.T) {
	got, err := parseTimestamp(float64(1700000000123456))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Unix(1700000000, 123456*1000)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
