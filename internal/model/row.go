package model

import "time"

// Row is one source record as produced by a source and consumed by the run stages.
type Row struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"` // open set: "info", "warn", "error", ...
	Source    string    `json:"source"`   // originating subsystem
	Timestamp time.Time `json:"timestamp"`
}

// Batch is the ordered set of rows extracted in one run.
// Rows are ascending by Timestamp and every row is strictly after After.
type Batch struct {
	After time.Time
	Rows  []Row
}

// Len returns the number of rows in the batch.
func (b Batch) Len() int { return len(b.Rows) }

// Empty reports whether the batch has no rows.
func (b Batch) Empty() bool { return len(b.Rows) == 0 }

// MaxTimestamp returns the newest row timestamp, or the zero time for an empty batch.
func (b Batch) MaxTimestamp() time.Time {
	var newest time.Time
	for _, r := range b.Rows {
		if r.Timestamp.After(newest) {
			newest = r.Timestamp
		}
	}
	return newest
}
