package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/crimson-sun/sluice/internal/inference"
	"github.com/crimson-sun/sluice/internal/inference/httpinfer"
	"github.com/crimson-sun/sluice/internal/model"
	"github.com/crimson-sun/sluice/internal/source"
	_ "github.com/crimson-sun/sluice/internal/source/sqlsource"
	"github.com/crimson-sun/sluice/internal/watermark"
)

// TestIntegration_SQLiteFileHTTP runs the full scenario against a sqlite
// table, a file watermark, and an HTTP inference endpoint.
func TestIntegration_SQLiteFileHTTP(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "events.db")
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(`CREATE TABLE events (id INTEGER PRIMARY KEY, message TEXT, severity TEXT, source TEXT, "timestamp" TIMESTAMP)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	insert := func(i int) {
		t.Helper()
		if _, err := db.Exec(`INSERT INTO events (id, message, severity, source, "timestamp") VALUES (?, ?, ?, ?, ?)`,
			i, "entry", "info", "api", ts(i)); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	for i := 7; i >= 1; i-- {
		insert(i)
	}

	var mu sync.Mutex
	var counts []float64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		counts = append(counts, body["row_count"].(float64))
		mu.Unlock()
		w.Write([]byte(`{"text":"Hi"}`))
	}))
	defer srv.Close()

	src, err := source.Open(source.Config{Provider: "sqlite", DSN: dsn, Table: "events"})
	if err != nil {
		t.Fatalf("open source: %v", err)
	}
	defer src.Close()

	client, err := httpinfer.New(inference.Config{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store := watermark.New(watermark.NewFile(filepath.Join(dir, "hwm.json")), "sluice_pipeline_hwm")
	p := New(store, src, inference.NewCaller(client))
	ctx := context.Background()

	rep, err := p.Run(ctx, model.TriggerSchedule)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if rep.RowCount != 7 || rep.Degraded || rep.Inference.Text != "Hi" {
		t.Fatalf("first run: unexpected report %+v", rep)
	}

	rep, err = p.Run(ctx, model.TriggerSchedule)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if rep.RowCount != 0 || !rep.Inference.Skipped {
		t.Fatalf("second run: expected skipped empty batch, got %+v", rep)
	}

	insert(8)
	rep, err = p.Run(ctx, model.TriggerSchedule)
	if err != nil {
		t.Fatalf("third run: %v", err)
	}
	if rep.RowCount != 1 {
		t.Fatalf("third run: expected 1 row, got %d", rep.RowCount)
	}

	// A fresh store over the same file sees the persisted cursor.
	reopened := watermark.New(watermark.NewFile(filepath.Join(dir, "hwm.json")), "sluice_pipeline_hwm")
	if got := mustGet(t, reopened); !got.Equal(ts(8)) {
		t.Fatalf("expected persisted watermark t8, got %v", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(counts) != 2 || counts[0] != 7 || counts[1] != 1 {
		t.Fatalf("expected inference calls with 7 and 1 rows, got %v", counts)
	}
}
