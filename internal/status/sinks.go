package status

import (
	"context"
	"errors"
	"fmt"

	"github.com/fpang/video-risk-analyzer/internal/s3util"
)

// Key returns the object key of a run's status record.
func Key(runID string) string {
	return fmt.Sprintf("status/%s.json", runID)
}

// S3Sink writes the status record into the bucket the source video came from.
type S3Sink struct {
	client s3util.ObjectPutter
}

// NewS3Sink creates an S3Sink.
func NewS3Sink(client s3util.ObjectPutter) *S3Sink {
	return &S3Sink{client: client}
}

func (s *S3Sink) Put(ctx context.Context, target Target, rec Record) error {
	return s3util.PutJSON(ctx, s.client, target.Bucket, Key(target.RunID), rec)
}

// Multi fans a record out to every sink. All sinks are attempted; the
// joined error lists each failure.
type Multi []Sink

func (m Multi) Put(ctx context.Context, target Target, rec Record) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Put(ctx, target, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
