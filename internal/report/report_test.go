package report

import (
	"strings"
	"testing"

	"github.com/crimson-sun/sluice/internal/compactor"
	"github.com/crimson-sun/sluice/internal/model"
)

func testReport(text string) model.RunReport {
	return model.RunReport{
		RunID:     "r1",
		Status:    model.StatusSucceeded,
		RowCount:  3,
		Inference: &model.InferenceResult{Text: text},
	}
}

func TestFormatMinimalSummarizes(t *testing.T) {
	text := "Hi\nHi\nHi"
	r := testReport(text)

	got := Format(r, compactor.Minimal)
	if got.Inference.Text != "Hi" {
		t.Fatalf("expected first line only, got %q", got.Inference.Text)
	}
	if r.Inference.Text != text {
		t.Fatal("Format modified the original report")
	}
}

func TestFormatStandardUnchanged(t *testing.T) {
	text := strings.Repeat("Hi ", 100)
	for _, v := range []compactor.Verbosity{compactor.Standard, compactor.Full} {
		if got := Format(testReport(text), v); got.Inference.Text != text {
			t.Fatalf("%s: expected text unchanged", v)
		}
	}
}

func TestFormatNoInference(t *testing.T) {
	r := model.RunReport{RunID: "r2", Status: model.StatusFailed}
	if got := Format(r, compactor.Minimal); got.Inference != nil {
		t.Fatal("expected nil inference preserved")
	}
}
