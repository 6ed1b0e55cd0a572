package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog/log"

	"github.com/fpang/video-risk-analyzer/internal/analysis"
	"github.com/fpang/video-risk-analyzer/internal/frames"
	"github.com/fpang/video-risk-analyzer/internal/jobs"
	"github.com/fpang/video-risk-analyzer/internal/jobutil"
	"github.com/fpang/video-risk-analyzer/internal/metrics"
	"github.com/fpang/video-risk-analyzer/internal/s3util"
	"github.com/fpang/video-risk-analyzer/internal/status"
)

// Response bodies.
const (
	BodyIgnored = "Ignored"
	BodySuccess = "Success"
)

// terminalWriteTimeout bounds the final status write and notification of a
// failed run, which outlive the invocation context.
const terminalWriteTimeout = 5 * time.Second

// EmotionAnalyzer detects per-face emotions in a stored video.
type EmotionAnalyzer interface {
	Submit(ctx context.Context, bucket, key string) (string, error)
	Await(ctx context.Context, jobID string) ([]analysis.EmotionObservation, error)
}

// Transcriber turns a stored video's speech into text.
type Transcriber interface {
	Submit(ctx context.Context, bucket, key string) (string, error)
	Await(ctx context.Context, jobName string) (analysis.Transcript, error)
}

// SentimentAnalyzer classifies transcript sentiment.
type SentimentAnalyzer interface {
	Analyze(ctx context.Context, text analysis.Transcript) (analysis.SentimentResult, error)
}

// ReportWriter fuses the analyses into a narrative report.
type ReportWriter interface {
	Generate(ctx context.Context, obs []analysis.EmotionObservation, transcript analysis.Transcript, sentiment analysis.SentimentResult) (string, error)
}

// FrameExtractor stores stills for selected observations.
type FrameExtractor interface {
	Extract(ctx context.Context, src frames.Source, selected []analysis.EmotionObservation) ([]frames.CriticalFrame, error)
}

var (
	_ EmotionAnalyzer   = (*analysis.EmotionJob)(nil)
	_ Transcriber       = (*analysis.TranscriptionJob)(nil)
	_ SentimentAnalyzer = (*analysis.SentimentJob)(nil)
	_ ReportWriter      = (*analysis.ReportJob)(nil)
	_ FrameExtractor    = (*frames.Extractor)(nil)
)

// Deps are the collaborators an Orchestrator drives. Frames and Notifier
// are optional.
type Deps struct {
	Emotion       EmotionAnalyzer
	Transcription Transcriber
	Sentiment     SentimentAnalyzer
	Report        ReportWriter
	Frames        FrameExtractor
	// Artifacts receives the final report.
	Artifacts s3util.ObjectPutter
	Status    status.Sink
	Notifier  Notifier
	// Metrics receives EMF documents; nil means stdout.
	Metrics io.Writer
	Now     func() time.Time
}

// Result is the outcome of one trigger invocation, shaped as the Lambda
// response.
type Result struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
	RunID      string `json:"-"`
	Skipped    bool   `json:"-"`
}

// Orchestrator drives pipeline runs.
type Orchestrator struct {
	cfg  Config
	deps Deps
}

// New creates an Orchestrator.
func New(cfg Config, deps Deps) *Orchestrator {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Metrics == nil {
		deps.Metrics = os.Stdout
	}
	return &Orchestrator{cfg: cfg, deps: deps}
}

// HandleTrigger processes every record of an S3 notification in order, each
// as an independent run. The first failed run determines the result;
// otherwise the last processed run does. An event with no acceptable video
// upload is ignored with a 200.
func (o *Orchestrator) HandleTrigger(ctx context.Context, event events.S3Event) Result {
	result := Result{StatusCode: 200, Body: BodyIgnored, Skipped: true}
	failed := false
	for _, rec := range event.Records {
		r := o.handleRecord(ctx, rec)
		switch {
		case failed:
		case r.StatusCode != 200:
			result, failed = r, true
		case !r.Skipped:
			result = r
		}
	}
	return result
}

func (o *Orchestrator) handleRecord(ctx context.Context, rec events.S3EventRecord) Result {
	bucket := rec.S3.Bucket.Name
	if bucket == "" {
		bucket = o.cfg.FallbackBucket
	}
	key, err := gate(rec.S3.Object.Key)
	log.Info().Str("bucket", bucket).Str("key", key).Msg("Event received")
	if err != nil {
		log.Info().Err(err).Str("rawKey", rec.S3.Object.Key).Msg("Ignoring object that is not a video under " + UploadPrefix)
		return Result{StatusCode: 200, Body: BodyIgnored, Skipped: true}
	}

	run := &Run{
		ID:        jobs.RunID(o.cfg.RunIDMode, bucket, key, rec.S3.Object.Sequencer),
		Bucket:    bucket,
		Key:       key,
		CreatedAt: o.deps.Now(),
	}
	target := status.Target{Bucket: bucket, RunID: run.ID, SourceKey: key}
	reporter := status.NewReporter(o.deps.Status, target).WithClock(o.deps.Now)

	final, err := o.process(ctx, run, reporter)
	run.CurrentStep = reporter.Last()

	runMetrics := metrics.NewWithWriter(metrics.Namespace, o.deps.Metrics).
		Duration("RunDurationMs", o.deps.Now().Sub(run.CreatedAt)).
		Property("runId", run.ID)

	if err != nil {
		// The invocation context may already be past its deadline.
		failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
		defer cancel()
		msg := jobutil.FailRun(failCtx, run.ID, key, string(run.CurrentStep), err, func(ctx context.Context, _ string, msg string) {
			reporter.Report(ctx, status.StepError, msg, nil)
		})
		runMetrics.Count("RunFailed").
			Property("failedStep", string(run.CurrentStep)).
			Property("jobError", IsJobError(err)).
			Flush()
		o.notify(failCtx, RunEvent{RunID: run.ID, Bucket: bucket, SourceKey: key, Status: string(status.StateError), Error: msg})
		return Result{StatusCode: 500, Body: msg, RunID: run.ID}
	}

	runMetrics.Count("RunCompleted").
		Metric("RiskScore", float64(final.RiskScore), metrics.UnitNone).
		Metric("FramesExtracted", float64(len(final.CriticalFrames)), metrics.UnitCount).
		Flush()
	score := final.RiskScore
	o.notify(ctx, RunEvent{
		RunID:          run.ID,
		Bucket:         bucket,
		SourceKey:      key,
		Status:         string(status.StateFinished),
		ReportKey:      ReportKey(run.ID),
		RiskScore:      &score,
		CriticalFrames: len(final.CriticalFrames),
	})
	return Result{StatusCode: 200, Body: BodySuccess, RunID: run.ID}
}

// stageClock emits one StageDurationMs metric per completed stage.
type stageClock struct {
	out   io.Writer
	now   func() time.Time
	stage status.Step
	start time.Time
}

func (c *stageClock) enter(step status.Step) {
	t := c.now()
	if c.stage != "" {
		metrics.NewWithWriter(metrics.Namespace, c.out).
			Dimension("Stage", string(c.stage)).
			Duration("StageDurationMs", t.Sub(c.start)).
			Flush()
	}
	c.stage, c.start = step, t
}

// process runs the state machine for one run and returns the artifact it
// wrote. Any error leaves the run at the last reported step.
func (o *Orchestrator) process(ctx context.Context, run *Run, rep *status.Reporter) (*FinalReport, error) {
	logger := log.With().Str("runId", run.ID).Str("key", run.Key).Logger()
	clock := &stageClock{out: o.deps.Metrics, now: o.deps.Now}
	defer clock.enter("")

	step := func(s status.Step, msg string, details map[string]any) {
		clock.enter(s)
		rep.Report(ctx, s, msg, details)
		logger.Info().Str("step", string(s)).Msg(msg)
	}

	step(status.StepInit, "Starting multimodal analysis...", nil)

	step(status.StepVideoStart, "Starting face emotion detection (video)...", nil)
	emotionJob, err := o.deps.Emotion.Submit(ctx, run.Bucket, run.Key)
	if err != nil {
		return nil, err
	}

	step(status.StepAudioStart, "Starting speech transcription (audio)...", nil)
	transcriptionJob, err := o.deps.Transcription.Submit(ctx, run.Bucket, run.Key)
	if err != nil {
		return nil, err
	}

	step(status.StepVideoWait, "Waiting for frame and emotion analysis...", nil)
	observations, err := o.deps.Emotion.Await(ctx, emotionJob)
	if err != nil {
		return nil, err
	}
	step(status.StepVideoDone, "Video analysis complete.", map[string]any{"emotions_count": len(observations)})

	step(status.StepAudioWait, "Waiting for audio transcription...", nil)
	transcript, err := o.deps.Transcription.Await(ctx, transcriptionJob)
	if err != nil {
		return nil, err
	}
	step(status.StepAudioDone, "Transcription complete.", map[string]any{"transcript_preview": TranscriptPreview(transcript)})

	step(status.StepTextAnalysis, "Analysing sentiment and language in the transcript...", nil)
	var sentiment analysis.SentimentResult
	if strings.TrimSpace(transcript) != "" {
		if sentiment, err = o.deps.Sentiment.Analyze(ctx, transcript); err != nil {
			return nil, err
		}
	}

	step(status.StepFusion, "Fusing modalities and identifying evidence...", nil)
	report, err := o.deps.Report.Generate(ctx, observations, transcript, sentiment)
	if err != nil {
		return nil, err
	}
	score := ExtractRiskScore(report)
	logger.Info().Int("riskScore", score).Msg("Risk score extracted")

	critical, err := o.extractFrames(ctx, run, observations, score, step)
	if err != nil {
		return nil, err
	}

	if observations == nil {
		observations = []analysis.EmotionObservation{}
	}
	final := &FinalReport{
		Report:         report,
		RiskScore:      score,
		Transcript:     transcript,
		VideoData:      observations,
		CriticalFrames: critical,
		RunID:          run.ID,
		SourceKey:      run.Key,
		GeneratedAt:    o.deps.Now().UTC(),
	}
	reportKey := ReportKey(run.ID)
	if err := s3util.PutJSON(ctx, o.deps.Artifacts, run.Bucket, reportKey, final); err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}

	step(status.StepCompleted, "Analysis complete! Report generated.", map[string]any{
		"report_key":      reportKey,
		"risk_score":      score,
		"critical_frames": len(critical),
	})
	return final, nil
}

func (o *Orchestrator) extractFrames(ctx context.Context, run *Run, obs []analysis.EmotionObservation, score int,
	step func(status.Step, string, map[string]any)) ([]frames.CriticalFrame, error) {
	if !o.cfg.FramesEnabled || o.deps.Frames == nil {
		return []frames.CriticalFrame{}, nil
	}

	step(status.StepFrameSelection, "Selecting critical frames...", nil)
	selected := frames.Select(obs, score, o.cfg.FrameCount)

	step(status.StepFrameExtraction, "Extracting critical frames...", map[string]any{"selected": len(selected)})
	if len(selected) == 0 {
		return []frames.CriticalFrame{}, nil
	}
	critical, err := o.deps.Frames.Extract(ctx, frames.Source{Bucket: run.Bucket, Key: run.Key, RunID: run.ID}, selected)
	if err != nil {
		return nil, fmt.Errorf("extract frames: %w", err)
	}

	metrics.NewWithWriter(metrics.Namespace, o.deps.Metrics).
		Metric("FramesSelected", float64(len(selected)), metrics.UnitCount).
		Metric("FramesDropped", float64(len(selected)-len(critical)), metrics.UnitCount).
		Property("runId", run.ID).
		Flush()
	return critical, nil
}

func (o *Orchestrator) notify(ctx context.Context, event RunEvent) {
	if o.deps.Notifier == nil {
		return
	}
	if err := o.deps.Notifier.RunFinished(ctx, event); err != nil {
		log.Warn().Err(err).Str("runId", event.RunID).Msg("Failed to publish run event")
	}
}

// IsJobError reports whether err came from one of the external analysis
// jobs rather than from the pipeline's own storage.
func IsJobError(err error) bool {
	var (
		sub     *jobs.SubmissionError
		failed  *jobs.JobFailedError
		timeout *jobs.JobTimeoutError
		fetch   *jobs.TranscriptFetchError
		gen     *jobs.GenerationError
	)
	return errors.As(err, &sub) || errors.As(err, &failed) || errors.As(err, &timeout) ||
		errors.As(err, &fetch) || errors.As(err, &gen)
}
