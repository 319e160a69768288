package stdout

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/crimson-sun/sluice/internal/compactor"
	"github.com/crimson-sun/sluice/internal/model"
)

func testReport() model.RunReport {
	return model.RunReport{
		RunID:       "run-1",
		Pipeline:    "sluice",
		Trigger:     model.TriggerSchedule,
		StartedAt:   time.Date(2026, 2, 19, 12, 0, 0, 0, time.UTC),
		Status:      model.StatusSucceeded,
		CursorAfter: time.Date(2026, 2, 19, 11, 59, 0, 0, time.UTC),
		RowCount:    2,
		Advanced:    true,
		Inference:   &model.InferenceResult{Text: "Hi\nHi"},
	}
}

func TestWriteNDJSON(t *testing.T) {
	var buf bytes.Buffer
	s := NewWriter(&buf, compactor.Standard, false)
	if err := s.Write(context.Background(), testReport()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Write(context.Background(), testReport()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var got model.RunReport
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.RunID != "run-1" || got.RowCount != 2 || got.Inference.Text != "Hi\nHi" {
		t.Fatalf("unexpected report: %+v", got)
	}
}

func TestWriteMinimal(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf, compactor.Minimal, false).Write(context.Background(), testReport())
	if !strings.Contains(buf.String(), `"text":"Hi"`) {
		t.Fatalf("expected summarized text, got %s", buf.String())
	}
}

func TestWritePretty(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf, compactor.Standard, true).Write(context.Background(), testReport())
	if !strings.Contains(buf.String(), "\n  \"run_id\": \"run-1\"") {
		t.Fatalf("expected indented JSON, got %s", buf.String())
	}
}
