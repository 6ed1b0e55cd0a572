// Package status publishes the per-run progress snapshot that front-ends
// poll. Every transition overwrites the previous snapshot; nothing is
// appended and the pipeline never reads it back.
package status

import (
	"context"
	"fmt"
	"time"
)

// Step is a pipeline state as it appears in the status record.
type Step string

// Steps in the order a run advances through them. StepError is the
// absorbing failure state and may follow any non-terminal step.
const (
	StepInit            Step = "INIT"
	StepVideoStart      Step = "VIDEO_START"
	StepAudioStart      Step = "AUDIO_START"
	StepVideoWait       Step = "VIDEO_WAIT"
	StepVideoDone       Step = "VIDEO_DONE"
	StepAudioWait       Step = "AUDIO_WAIT"
	StepAudioDone       Step = "AUDIO_DONE"
	StepTextAnalysis    Step = "TEXT_ANALYSIS"
	StepFusion          Step = "FUSION"
	StepFrameSelection  Step = "FRAME_SELECTION"
	StepFrameExtraction Step = "FRAME_EXTRACTION"
	StepCompleted       Step = "COMPLETED"
	StepError           Step = "ERROR"
)

var stepOrder = []Step{
	StepInit, StepVideoStart, StepAudioStart, StepVideoWait, StepVideoDone,
	StepAudioWait, StepAudioDone, StepTextAnalysis, StepFusion,
	StepFrameSelection, StepFrameExtraction, StepCompleted, StepError,
}

// Ordinal returns the step's position in the run sequence, or -1 for an
// unknown step.
func (s Step) Ordinal() int {
	for i, st := range stepOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Terminal reports whether no transition may follow s.
func (s Step) Terminal() bool {
	return s == StepCompleted || s == StepError
}

// State is the coarse run state shown next to the step.
type State string

const (
	StateProcessing State = "processing"
	StateFinished   State = "finished"
	StateError      State = "error"
)

// StateFor maps a step to its coarse state.
func StateFor(s Step) State {
	switch s {
	case StepCompleted:
		return StateFinished
	case StepError:
		return StateError
	default:
		return StateProcessing
	}
}

// Record is the status snapshot persisted at status/{runId}.json.
type Record struct {
	Step      Step           `json:"step"`
	Message   string         `json:"message"`
	Timestamp float64        `json:"timestamp"`
	Details   map[string]any `json:"details"`
	Status    State          `json:"status"`
}

// NewRecord builds a snapshot stamped with now in fractional Unix seconds.
func NewRecord(step Step, message string, details map[string]any, now time.Time) Record {
	return Record{
		Step:      step,
		Message:   message,
		Timestamp: float64(now.UnixNano()) / float64(time.Second),
		Details:   details,
		Status:    StateFor(step),
	}
}

// Target identifies whose status is being written.
type Target struct {
	Bucket    string
	RunID     string
	SourceKey string
}

// Sink persists status snapshots.
type Sink interface {
	Put(ctx context.Context, target Target, rec Record) error
}

// PersistenceError wraps a failed status write. The Reporter logs and
// discards it; it never reaches the pipeline's result.
type PersistenceError struct {
	RunID string
	Step  Step
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist status %s for run %s: %v", e.Step, e.RunID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
