package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"
	transtypes "github.com/aws/aws-sdk-go-v2/service/transcribe/types"
	"github.com/rs/zerolog/log"

	"github.com/fpang/video-risk-analyzer/internal/jobs"
)

// JobTranscription is the job name used in errors and logs.
const JobTranscription = "transcription"

// DefaultTranscribeLanguage is the language hint passed to Transcribe.
const DefaultTranscribeLanguage = "pt-BR"

// maxJobNameChars is how many filename characters go into a job name.
const maxJobNameChars = 10

// TranscribeAPI is the subset of *transcribe.Client used for speech
// transcription.
type TranscribeAPI interface {
	StartTranscriptionJob(ctx context.Context, params *transcribe.StartTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.StartTranscriptionJobOutput, error)
	GetTranscriptionJob(ctx context.Context, params *transcribe.GetTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.GetTranscriptionJobOutput, error)
}

var _ TranscribeAPI = (*transcribe.Client)(nil)

// TranscriptionJob converts a stored video's speech to text.
type TranscriptionJob struct {
	client   TranscribeAPI
	http     *http.Client
	language string
	poll     jobs.PollConfig
	now      func() time.Time
}

// NewTranscriptionJob creates a TranscriptionJob. An empty language falls
// back to DefaultTranscribeLanguage and a nil httpClient to one with a
// 30 second timeout.
func NewTranscriptionJob(client TranscribeAPI, httpClient *http.Client, language string, poll jobs.PollConfig) *TranscriptionJob {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if language == "" {
		language = DefaultTranscribeLanguage
	}
	return &TranscriptionJob{client: client, http: httpClient, language: language, poll: poll, now: time.Now}
}

// JobName builds a transcription job name from the submission time and
// the first alphanumeric characters of the file's base name.
func JobName(key string, at time.Time) string {
	var b strings.Builder
	for _, r := range path.Base(key) {
		if b.Len() >= maxJobNameChars {
			break
		}
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return fmt.Sprintf("trans_%d_%s", at.Unix(), b.String())
}

// Submit starts a transcription job for s3://bucket/key and returns its name.
func (j *TranscriptionJob) Submit(ctx context.Context, bucket, key string) (string, error) {
	name := JobName(key, j.now())
	_, err := j.client.StartTranscriptionJob(ctx, &transcribe.StartTranscriptionJobInput{
		TranscriptionJobName: aws.String(name),
		Media:                &transtypes.Media{MediaFileUri: aws.String(fmt.Sprintf("s3://%s/%s", bucket, key))},
		LanguageCode:         transtypes.LanguageCode(j.language),
	})
	if err != nil {
		return "", &jobs.SubmissionError{Job: JobTranscription, Err: err}
	}
	log.Info().Str("jobName", name).Str("language", j.language).Msg("Transcription job started")
	return name, nil
}

// Await waits for the job to complete and downloads its transcript.
func (j *TranscriptionJob) Await(ctx context.Context, name string) (Transcript, error) {
	var uri string
	err := jobs.Poll(ctx, JobTranscription, j.poll, func(ctx context.Context) (bool, error) {
		out, err := j.client.GetTranscriptionJob(ctx, &transcribe.GetTranscriptionJobInput{
			TranscriptionJobName: aws.String(name),
		})
		if err != nil {
			return false, err
		}
		tj := out.TranscriptionJob
		if tj == nil {
			return false, fmt.Errorf("transcription job %s missing from response", name)
		}
		switch tj.TranscriptionJobStatus {
		case transtypes.TranscriptionJobStatusCompleted:
			if tj.Transcript != nil {
				uri = aws.ToString(tj.Transcript.TranscriptFileUri)
			}
			return true, nil
		case transtypes.TranscriptionJobStatusFailed:
			return false, &jobs.JobFailedError{Job: JobTranscription, Reason: aws.ToString(tj.FailureReason)}
		default:
			return false, nil
		}
	})
	if err != nil {
		return "", err
	}
	return j.fetch(ctx, uri)
}

// transcriptDocument is the part of Transcribe's output JSON we read.
type transcriptDocument struct {
	Results struct {
		Transcripts []struct {
			Transcript string `json:"transcript"`
		} `json:"transcripts"`
	} `json:"results"`
}

func (j *TranscriptionJob) fetch(ctx context.Context, uri string) (Transcript, error) {
	if uri == "" {
		return "", &jobs.TranscriptFetchError{URI: uri, Err: fmt.Errorf("completed job has no transcript URI")}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return "", &jobs.TranscriptFetchError{URI: uri, Err: err}
	}
	resp, err := j.http.Do(req)
	if err != nil {
		return "", &jobs.TranscriptFetchError{URI: uri, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &jobs.TranscriptFetchError{URI: uri, Err: fmt.Errorf("unexpected HTTP status %d", resp.StatusCode)}
	}

	var doc transcriptDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", &jobs.TranscriptFetchError{URI: uri, Err: fmt.Errorf("decode transcript: %w", err)}
	}
	if len(doc.Results.Transcripts) == 0 {
		return "", nil
	}
	text := doc.Results.Transcripts[0].Transcript
	log.Debug().Int("chars", len(text)).Msg("Transcript downloaded")
	return text, nil
}
