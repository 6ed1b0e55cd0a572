package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/fpang/video-risk-analyzer/internal/analysis"
	"github.com/fpang/video-risk-analyzer/internal/frames"
	"github.com/fpang/video-risk-analyzer/internal/status"
)

type fakeEmotion struct {
	obs       []analysis.EmotionObservation
	submitErr error
	awaitErr  error
	// blockUntilDone makes Await wait for the context to end.
	blockUntilDone bool
}

func (f *fakeEmotion) Submit(context.Context, string, string) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "rek-1", nil
}

func (f *fakeEmotion) Await(ctx context.Context, _ string) ([]analysis.EmotionObservation, error) {
	if f.blockUntilDone {
		<-ctx.Done()
		return nil, fmt.Errorf("poll emotion job: %w", ctx.Err())
	}
	return f.obs, f.awaitErr
}

type fakeTranscriber struct {
	text     string
	awaitErr error
}

func (f *fakeTranscriber) Submit(context.Context, string, string) (string, error) {
	return "trans-1", nil
}

func (f *fakeTranscriber) Await(context.Context, string) (analysis.Transcript, error) {
	return f.text, f.awaitErr
}

type fakeSentiment struct {
	calls int
}

func (f *fakeSentiment) Analyze(context.Context, analysis.Transcript) (analysis.SentimentResult, error) {
	f.calls++
	return analysis.SentimentResult{Label: "NEGATIVE", Scores: map[string]float64{analysis.ScoreNegative: 0.9}}, nil
}

type fakeReport struct {
	report    string
	err       error
	calls     int
	sentiment analysis.SentimentResult
}

func (f *fakeReport) Generate(_ context.Context, _ []analysis.EmotionObservation, _ analysis.Transcript, s analysis.SentimentResult) (string, error) {
	f.calls++
	f.sentiment = s
	return f.report, f.err
}

type fakeFrames struct {
	calls    int
	selected []analysis.EmotionObservation
	err      error
}

func (f *fakeFrames) Extract(_ context.Context, src frames.Source, selected []analysis.EmotionObservation) ([]frames.CriticalFrame, error) {
	f.calls++
	f.selected = selected
	if f.err != nil {
		return nil, f.err
	}
	out := make([]frames.CriticalFrame, 0, len(selected))
	for _, o := range selected {
		key := frames.Key(src.RunID, o.TimestampMillis)
		out = append(out, frames.CriticalFrame{EmotionObservation: o, FrameKey: key, FrameImageRef: "https://example.test/" + key})
	}
	return out, nil
}

// recordingSink keeps every record written, per run. With liveCtx set it
// rejects writes on a finished context, as the S3 and DynamoDB clients do.
type recordingSink struct {
	mu      sync.Mutex
	records map[string][]status.Record
	err     error
	liveCtx bool
}

func newRecordingSink() *recordingSink {
	return &recordingSink{records: make(map[string][]status.Record)}
}

func (s *recordingSink) Put(ctx context.Context, target status.Target, rec status.Record) error {
	if s.liveCtx && ctx.Err() != nil {
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[target.RunID] = append(s.records[target.RunID], rec)
	return s.err
}

func (s *recordingSink) steps(runID string) []status.Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []status.Step
	for _, r := range s.records[runID] {
		out = append(out, r.Step)
	}
	return out
}

func (s *recordingSink) last(runID string) status.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.records[runID]
	return recs[len(recs)-1]
}

type fakeNotifier struct {
	events  []RunEvent
	liveCtx bool
}

func (n *fakeNotifier) RunFinished(ctx context.Context, e RunEvent) error {
	if n.liveCtx && ctx.Err() != nil {
		return ctx.Err()
	}
	n.events = append(n.events, e)
	return nil
}
