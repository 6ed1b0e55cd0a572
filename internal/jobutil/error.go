// Package jobutil provides shared helpers for pipeline run lifecycle
// operations.
package jobutil

import (
	"context"

	"github.com/rs/zerolog/log"
)

// ErrorWriter persists a run failure message, e.g. as an ERROR status.
type ErrorWriter func(ctx context.Context, runID, msg string)

// FailRun logs a run failure with its context, hands the user-facing
// message to write and returns that message.
func FailRun(ctx context.Context, runID, sourceKey, step string, err error, write ErrorWriter) string {
	msg := "Error: " + err.Error()
	log.Error().
		Err(err).
		Str("runId", runID).
		Str("key", sourceKey).
		Str("step", step).
		Msg("Run failed")
	if write != nil {
		write(ctx, runID, msg)
	}
	return msg
}
