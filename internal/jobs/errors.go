// Package jobs holds the shared machinery for long-running external analysis
// jobs: the typed failure taxonomy, the bounded polling helper, and run
// identifier derivation.
package jobs

import (
	"fmt"
	"time"
)

// SubmissionError reports that a job could not be started, either because the
// input was rejected or the capability was unreachable.
type SubmissionError struct {
	Job string
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit %s job: %v", e.Job, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// JobFailedError reports an explicit failed terminal state from the capability.
type JobFailedError struct {
	Job    string
	Reason string
}

func (e *JobFailedError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "Unknown"
	}
	return fmt.Sprintf("%s job failed: %s", e.Job, reason)
}

// JobTimeoutError reports that a job did not reach a terminal state within
// the polling budget.
type JobTimeoutError struct {
	Job    string
	Waited time.Duration
}

func (e *JobTimeoutError) Error() string {
	return fmt.Sprintf("%s job did not finish within %v", e.Job, e.Waited.Round(time.Second))
}

// TranscriptFetchError reports that a completed transcription's output
// document could not be retrieved or decoded.
type TranscriptFetchError struct {
	URI string
	Err error
}

func (e *TranscriptFetchError) Error() string {
	return fmt.Sprintf("fetch transcript %s: %v", e.URI, e.Err)
}

func (e *TranscriptFetchError) Unwrap() error { return e.Err }

// GenerationError reports a failed or empty report generation call.
type GenerationError struct {
	Backend string
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate report (%s): %v", e.Backend, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
