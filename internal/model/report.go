package model

import "time"

// Stage names a step of a run.
type Stage string

const (
	StageWatermarkRead Stage = "watermark_read"
	StageExtract       Stage = "extract"
	StageInfer         Stage = "infer"
	StageAdvance       Stage = "advance"
)

// RunStatus is the terminal state of a run.
type RunStatus string

const (
	StatusSucceeded RunStatus = "succeeded"
	StatusFailed    RunStatus = "failed"
)

// Trigger records what started a run.
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
)

// RunReport is sluice's output type: the observable outcome of one run.
type RunReport struct {
	RunID        string           `json:"run_id"`
	Pipeline     string           `json:"pipeline"`
	Trigger      Trigger          `json:"trigger"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   time.Time        `json:"finished_at"`
	Status       RunStatus        `json:"status"`
	FailedStage  Stage            `json:"failed_stage,omitempty"`
	Error        string           `json:"error,omitempty"`
	CursorBefore time.Time        `json:"cursor_before"`
	CursorAfter  time.Time        `json:"cursor_after"`
	RowCount     int              `json:"row_count"`
	Advanced     bool             `json:"advanced"`
	Inference    *InferenceResult `json:"inference,omitempty"`
	Degraded     bool             `json:"degraded,omitempty"` // fallback used
}

// Duration returns how long the run took.
func (r RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
