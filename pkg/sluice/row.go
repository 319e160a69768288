package sluice

import (
	"time"

	"github.com/crimson-sun/sluice/internal/model"
)

// Row is one source record.
type Row struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"` // drives the watermark
}

// Report is the outcome of one run.
type Report struct {
	RunID          string        `json:"run_id"`
	Trigger        string        `json:"trigger"` // "schedule" or "manual"
	Succeeded      bool          `json:"succeeded"`
	FailedStage    string        `json:"failed_stage,omitempty"`
	Error          string        `json:"error,omitempty"`
	CursorBefore   time.Time     `json:"cursor_before"`
	CursorAfter    time.Time     `json:"cursor_after"`
	RowCount       int           `json:"row_count"`
	Advanced       bool          `json:"advanced"`
	Text           string        `json:"text,omitempty"`            // inference response or fallback text
	Fallback       bool          `json:"fallback,omitempty"`        // Text is the fallback
	FallbackReason string        `json:"fallback_reason,omitempty"` // timeout, rate_limited, bad_response, ...
	Skipped        bool          `json:"skipped,omitempty"`         // empty batch, no call issued
	Duration       time.Duration `json:"duration"`
}

func rowToModel(r Row) model.Row {
	return model.Row{ID: r.ID, Message: r.Message, Severity: r.Severity, Source: r.Source, Timestamp: r.Timestamp}
}

func rowFromModel(r model.Row) Row {
	return Row{ID: r.ID, Message: r.Message, Severity: r.Severity, Source: r.Source, Timestamp: r.Timestamp}
}

func reportFromModel(r model.RunReport) Report {
	rep := Report{
		RunID:        r.RunID,
		Trigger:      string(r.Trigger),
		Succeeded:    r.Status == model.StatusSucceeded,
		FailedStage:  string(r.FailedStage),
		Error:        r.Error,
		CursorBefore: r.CursorBefore,
		CursorAfter:  r.CursorAfter,
		RowCount:     r.RowCount,
		Advanced:     r.Advanced,
		Duration:     r.Duration(),
	}
	if inf := r.Inference; inf != nil {
		rep.Text = inf.Text
		rep.Fallback = inf.Fallback
		rep.FallbackReason = inf.Reason
		rep.Skipped = inf.Skipped
	}
	return rep
}
