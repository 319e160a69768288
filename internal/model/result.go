package model

import "time"

// Fallback reasons recorded on an InferenceResult.
const (
	ReasonTimeout     = "timeout"
	ReasonCanceled    = "canceled"
	ReasonRateLimited = "rate_limited"
	ReasonBadResponse = "bad_response"
	ReasonError       = "error"
)

// InferenceResult is the outcome of one inference call: either the service's
// text, or the fallback text plus the reason the call failed.
type InferenceResult struct {
	Text     string        `json:"text"`
	Fallback bool          `json:"fallback,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	Err      error         `json:"-"`
	Skipped  bool          `json:"skipped,omitempty"` // empty batch, no call issued
	Duration time.Duration `json:"duration_ns,omitempty"`
}

// Advance is the outcome of the watermark advancer.
type Advance struct {
	Advanced bool      `json:"advanced"`
	Previous time.Time `json:"previous"`
	Cursor   time.Time `json:"cursor"`
}
