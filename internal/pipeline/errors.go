package pipeline

import (
	"errors"
	"fmt"

	"github.com/crimson-sun/sluice/internal/model"
)

var (
	// ErrExtractionFailed wraps any source failure. The run fails and the
	// watermark is left untouched.
	ErrExtractionFailed = errors.New("extraction failed")
	// ErrWatermarkRegression is returned when a batch would move the
	// watermark backwards or leave it in place.
	ErrWatermarkRegression = errors.New("watermark would not advance")
)

// StageError is a fatal failure of one run stage.
type StageError struct {
	Stage model.Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
