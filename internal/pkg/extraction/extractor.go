package extraction

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuelReschke/ReceiptFox/app/models"
)

// Extractor turns a stored receipt file into structured data. It runs outside any lock or
// transaction and every error it returns is a *Failure.
type Extractor interface {
	Extract(ctx context.Context, fileURL, filename string) (*models.ExtractedData, error)
}

// Stage names where an extraction failed
type Stage string

const (
	StageFetch    Stage = "fetch"
	StageSource   Stage = "source"
	StageRequest  Stage = "request"
	StageDecode   Stage = "decode"
	StageSchema   Stage = "schema"
	StageValidate Stage = "validate"
	StageTimeout  Stage = "timeout"
)

// Failure is the only error type produced by an Extractor
type Failure struct {
	Stage Stage
	Err   error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("extraction failed at %s", f.Stage)
	}
	return fmt.Sprintf("extraction failed at %s: %v", f.Stage, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Reason is the coarse, client-safe description stored on a failed file
func (f *Failure) Reason() string {
	switch f.Stage {
	case StageFetch:
		return "receipt file could not be downloaded"
	case StageSource:
		return "unsupported receipt file"
	case StageTimeout:
		return "extraction timed out"
	case StageSchema, StageDecode, StageValidate:
		return "receipt could not be read"
	default:
		return "extraction service unavailable"
	}
}

// Fail builds a Failure, classifying context expiry as a timeout
func Fail(stage Stage, err error) *Failure {
	if errors.Is(err, context.DeadlineExceeded) {
		stage = StageTimeout
	}
	return &Failure{Stage: stage, Err: err}
}

// AsFailure returns err as a *Failure, wrapping foreign errors at the request stage
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return Fail(StageRequest, err)
}
