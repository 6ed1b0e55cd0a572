package analysis

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	rektypes "github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/rs/zerolog/log"

	"github.com/fpang/video-risk-analyzer/internal/jobs"
)

// JobEmotion is the job name used in errors and logs.
const JobEmotion = "emotion"

// RekognitionAPI is the subset of *rekognition.Client used for face
// emotion detection.
type RekognitionAPI interface {
	StartFaceDetection(ctx context.Context, params *rekognition.StartFaceDetectionInput, optFns ...func(*rekognition.Options)) (*rekognition.StartFaceDetectionOutput, error)
	GetFaceDetection(ctx context.Context, params *rekognition.GetFaceDetectionInput, optFns ...func(*rekognition.Options)) (*rekognition.GetFaceDetectionOutput, error)
}

var _ RekognitionAPI = (*rekognition.Client)(nil)

// faceDetectionPageSize is the maximum page size GetFaceDetection accepts.
const faceDetectionPageSize = 1000

// EmotionJob detects faces in a stored video and reduces each one to its
// predominant emotion.
type EmotionJob struct {
	client RekognitionAPI
	poll   jobs.PollConfig
}

// NewEmotionJob creates an EmotionJob.
func NewEmotionJob(client RekognitionAPI, poll jobs.PollConfig) *EmotionJob {
	return &EmotionJob{client: client, poll: poll}
}

// Submit starts face detection with all facial attributes and returns the
// job ID.
func (j *EmotionJob) Submit(ctx context.Context, bucket, key string) (string, error) {
	out, err := j.client.StartFaceDetection(ctx, &rekognition.StartFaceDetectionInput{
		Video: &rektypes.Video{
			S3Object: &rektypes.S3Object{Bucket: aws.String(bucket), Name: aws.String(key)},
		},
		FaceAttributes: rektypes.FaceAttributesAll,
	})
	if err != nil {
		return "", &jobs.SubmissionError{Job: JobEmotion, Err: err}
	}
	jobID := aws.ToString(out.JobId)
	if jobID == "" {
		return "", &jobs.SubmissionError{Job: JobEmotion, Err: fmt.Errorf("empty job ID")}
	}
	log.Info().Str("jobId", jobID).Str("key", key).Msg("Face detection started")
	return jobID, nil
}

// Await waits for the job to succeed and returns one observation per
// detected face that carries emotions, in the order the results list them.
func (j *EmotionJob) Await(ctx context.Context, jobID string) ([]EmotionObservation, error) {
	var first *rekognition.GetFaceDetectionOutput
	err := jobs.Poll(ctx, JobEmotion, j.poll, func(ctx context.Context) (bool, error) {
		out, err := j.client.GetFaceDetection(ctx, &rekognition.GetFaceDetectionInput{
			JobId:      aws.String(jobID),
			MaxResults: aws.Int32(faceDetectionPageSize),
		})
		if err != nil {
			return false, err
		}
		switch out.JobStatus {
		case rektypes.VideoJobStatusSucceeded:
			first = out
			return true, nil
		case rektypes.VideoJobStatusFailed:
			return false, &jobs.JobFailedError{Job: JobEmotion, Reason: aws.ToString(out.StatusMessage)}
		default:
			return false, nil
		}
	})
	if err != nil {
		return nil, err
	}

	observations := reduceFaces(first.Faces)
	for token := first.NextToken; token != nil && *token != ""; {
		var page *rekognition.GetFaceDetectionOutput
		err := jobs.Retry(ctx, JobEmotion, j.poll, func(ctx context.Context) error {
			var err error
			page, err = j.client.GetFaceDetection(ctx, &rekognition.GetFaceDetectionInput{
				JobId:      aws.String(jobID),
				MaxResults: aws.Int32(faceDetectionPageSize),
				NextToken:  token,
			})
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("get face detection page: %w", err)
		}
		observations = append(observations, reduceFaces(page.Faces)...)
		token = page.NextToken
	}

	log.Info().Str("jobId", jobID).Int("observations", len(observations)).Msg("Face detection results collected")
	return observations, nil
}

// reduceFaces keeps the highest-confidence emotion of each face. On a tie
// the emotion listed first wins. Faces without emotions are skipped.
func reduceFaces(faces []rektypes.FaceDetection) []EmotionObservation {
	out := make([]EmotionObservation, 0, len(faces))
	for _, f := range faces {
		if f.Face == nil || len(f.Face.Emotions) == 0 {
			continue
		}
		best := f.Face.Emotions[0]
		for _, e := range f.Face.Emotions[1:] {
			if aws.ToFloat32(e.Confidence) > aws.ToFloat32(best.Confidence) {
				best = e
			}
		}
		out = append(out, EmotionObservation{
			TimestampMillis: float64(f.Timestamp),
			Emotion:         normalizeEmotion(string(best.Type)),
			Confidence:      float64(aws.ToFloat32(best.Confidence)),
		})
	}
	return out
}

// normalizeEmotion maps Rekognition's SAD onto the SADNESS label the rest of
// the pipeline uses.
func normalizeEmotion(label string) string {
	if label == string(rektypes.EmotionNameSad) {
		return EmotionSadness
	}
	return label
}
