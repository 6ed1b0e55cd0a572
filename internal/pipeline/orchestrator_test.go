package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/fpang/video-risk-analyzer/internal/analysis"
	"github.com/fpang/video-risk-analyzer/internal/jobs"
	"github.com/fpang/video-risk-analyzer/internal/s3util/s3test"
	"github.com/fpang/video-risk-analyzer/internal/status"
)

const testBucket = "media"

type harness struct {
	emotion   *fakeEmotion
	trans     *fakeTranscriber
	sentiment *fakeSentiment
	report    *fakeReport
	frames    *fakeFrames
	store     *s3test.Store
	sink      *recordingSink
	notifier  *fakeNotifier
	metrics   *bytes.Buffer
	cfg       Config
}

func newHarness() *harness {
	return &harness{
		emotion: &fakeEmotion{obs: []analysis.EmotionObservation{
			{TimestampMillis: 1000, Emotion: analysis.EmotionFear, Confidence: 92},
			{TimestampMillis: 1200, Emotion: analysis.EmotionAngry, Confidence: 80},
			{TimestampMillis: 4000, Emotion: analysis.EmotionSadness, Confidence: 70},
		}},
		trans:     &fakeTranscriber{text: "por favor me ajuda"},
		sentiment: &fakeSentiment{},
		report:    &fakeReport{report: "1. RISK SCORE: 82\n2. RISK LEVEL: High"},
		frames:    &fakeFrames{},
		store:     s3test.NewStore(),
		sink:      newRecordingSink(),
		notifier:  &fakeNotifier{},
		metrics:   &bytes.Buffer{},
		cfg:       Config{RunIDMode: jobs.RunIDStem, FramesEnabled: true, FrameCount: 6},
	}
}

func (h *harness) orchestrator() *Orchestrator {
	return New(h.cfg, Deps{
		Emotion:       h.emotion,
		Transcription: h.trans,
		Sentiment:     h.sentiment,
		Report:        h.report,
		Frames:        h.frames,
		Artifacts:     h.store,
		Status:        h.sink,
		Notifier:      h.notifier,
		Metrics:       h.metrics,
		Now:           func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
}

func s3Event(keys ...string) events.S3Event {
	var ev events.S3Event
	for _, k := range keys {
		var rec events.S3EventRecord
		rec.S3.Bucket.Name = testBucket
		rec.S3.Object.Key = k
		ev.Records = append(ev.Records, rec)
	}
	return ev
}

func TestAccept(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"uploads/clip.mp4", true},
		{"uploads/clip.MP4", true},
		{"uploads/nested/clip.mkv", true},
		{"uploads/clip.Mov", true},
		{"uploads/clip.avi", true},
		{"uploads/clip.txt", false},
		{"uploads/clip", false},
		{"reports/x.json", false},
		{"status/clip.json", false},
		{"frames/clip_1000.jpg", false},
		{"clip.mp4", false},
		{"Uploads/clip.mp4", false},
	}
	for _, tt := range tests {
		if got := Accept(tt.key); got != tt.want {
			t.Errorf("Accept(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestDecodeKey(t *testing.T) {
	got, err := DecodeKey("uploads/my+clip%281%29.MP4")
	if err != nil {
		t.Fatalf("DecodeKey: %v", err)
	}
	if got != "uploads/my clip(1).MP4" {
		t.Errorf("DecodeKey = %q", got)
	}
}

func TestHandleTrigger_SkipsNonVideo(t *testing.T) {
	for _, key := range []string{"reports/x.json", "uploads/clip.txt", "uploads/%zz.mp4"} {
		h := newHarness()
		res := h.orchestrator().HandleTrigger(context.Background(), s3Event(key))
		if res.StatusCode != 200 || res.Body != BodyIgnored || !res.Skipped {
			t.Errorf("%s: result = %+v", key, res)
		}
		if len(h.sink.records) != 0 {
			t.Errorf("%s: expected no status writes, got %v", key, h.sink.records)
		}
		if len(h.store.Puts()) != 0 {
			t.Errorf("%s: expected no objects, got %v", key, h.store.Puts())
		}
	}
}

func TestHandleTrigger_Success(t *testing.T) {
	h := newHarness()
	res := h.orchestrator().HandleTrigger(context.Background(), s3Event("uploads/clip.mp4"))

	if res.StatusCode != 200 || res.Body != BodySuccess || res.RunID != "clip" {
		t.Fatalf("result = %+v", res)
	}

	wantSteps := []status.Step{
		status.StepInit, status.StepVideoStart, status.StepAudioStart, status.StepVideoWait,
		status.StepVideoDone, status.StepAudioWait, status.StepAudioDone, status.StepTextAnalysis,
		status.StepFusion, status.StepFrameSelection, status.StepFrameExtraction, status.StepCompleted,
	}
	if got := h.sink.steps("clip"); !reflect.DeepEqual(got, wantSteps) {
		t.Errorf("steps = %v\nwant %v", got, wantSteps)
	}

	recs := h.sink.records["clip"]
	if recs[4].Details["emotions_count"] != 3 {
		t.Errorf("VIDEO_DONE details = %v", recs[4].Details)
	}
	if recs[6].Details["transcript_preview"] != "por favor me ajuda..." {
		t.Errorf("AUDIO_DONE details = %v", recs[6].Details)
	}
	last := h.sink.last("clip")
	if last.Status != status.StateFinished {
		t.Errorf("final status = %q", last.Status)
	}
	if last.Details["report_key"] != "reports/clip_report.json" || last.Details["risk_score"] != 82 || last.Details["critical_frames"] != 2 {
		t.Errorf("COMPLETED details = %v", last.Details)
	}

	obj, ok := h.store.Get(testBucket, "reports/clip_report.json")
	if !ok {
		t.Fatal("final report not written")
	}
	var final FinalReport
	if err := json.Unmarshal(obj.Data, &final); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if final.RiskScore != 82 || final.RunID != "clip" || final.SourceKey != "uploads/clip.mp4" {
		t.Errorf("report = %+v", final)
	}
	if len(final.VideoData) != 3 || final.Transcript != "por favor me ajuda" {
		t.Errorf("report data = %+v", final)
	}
	// High score: FEAR at 1s, ANGRY at 1.2s shares the second.
	if len(final.CriticalFrames) != 2 || final.CriticalFrames[0].FrameKey != "frames/clip_1000.jpg" {
		t.Errorf("critical frames = %+v", final.CriticalFrames)
	}
	if h.sentiment.calls != 1 {
		t.Errorf("sentiment called %d times", h.sentiment.calls)
	}

	if len(h.notifier.events) != 1 || h.notifier.events[0].Status != "finished" || *h.notifier.events[0].RiskScore != 82 {
		t.Errorf("events = %+v", h.notifier.events)
	}
	if !strings.Contains(h.metrics.String(), `"RunCompleted":1`) {
		t.Errorf("missing RunCompleted metric in %s", h.metrics.String())
	}
}

func TestHandleTrigger_TranscriptionFailure(t *testing.T) {
	h := newHarness()
	h.trans.awaitErr = &jobs.JobFailedError{Job: analysis.JobTranscription, Reason: "bad media"}

	res := h.orchestrator().HandleTrigger(context.Background(), s3Event("uploads/clip.mp4"))

	wantMsg := "Error: transcription job failed: bad media"
	if res.StatusCode != 500 || res.Body != wantMsg {
		t.Fatalf("result = %+v", res)
	}

	wantSteps := []status.Step{
		status.StepInit, status.StepVideoStart, status.StepAudioStart, status.StepVideoWait,
		status.StepVideoDone, status.StepAudioWait, status.StepError,
	}
	if got := h.sink.steps("clip"); !reflect.DeepEqual(got, wantSteps) {
		t.Errorf("steps = %v\nwant %v", got, wantSteps)
	}
	last := h.sink.last("clip")
	if last.Message != wantMsg || last.Status != status.StateError {
		t.Errorf("error record = %+v", last)
	}
	if _, ok := h.store.Get(testBucket, "reports/clip_report.json"); ok {
		t.Error("no report may be written for a failed run")
	}
	if h.report.calls != 0 || h.frames.calls != 0 {
		t.Error("later stages must not run after a failure")
	}
	if len(h.notifier.events) != 1 || h.notifier.events[0].Error != wantMsg {
		t.Errorf("events = %+v", h.notifier.events)
	}
}

func TestHandleTrigger_DeadlineStillWritesErrorStatus(t *testing.T) {
	h := newHarness()
	h.emotion.blockUntilDone = true
	h.sink.liveCtx = true
	h.notifier.liveCtx = true

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	res := h.orchestrator().HandleTrigger(ctx, s3Event("uploads/clip.mp4"))

	if res.StatusCode != 500 || !strings.Contains(res.Body, "context deadline exceeded") {
		t.Fatalf("result = %+v", res)
	}
	last := h.sink.last("clip")
	if last.Step != status.StepError || last.Status != status.StateError {
		t.Errorf("last persisted step = %s, want %s", last.Step, status.StepError)
	}
	if len(h.notifier.events) != 1 || h.notifier.events[0].Status != string(status.StateError) {
		t.Errorf("events = %+v", h.notifier.events)
	}
}

func TestHandleTrigger_SubmissionFailure(t *testing.T) {
	h := newHarness()
	h.emotion.submitErr = &jobs.SubmissionError{Job: analysis.JobEmotion, Err: errors.New("InvalidS3ObjectException")}

	res := h.orchestrator().HandleTrigger(context.Background(), s3Event("uploads/clip.mp4"))
	if res.StatusCode != 500 {
		t.Fatalf("result = %+v", res)
	}
	want := []status.Step{status.StepInit, status.StepVideoStart, status.StepError}
	if got := h.sink.steps("clip"); !reflect.DeepEqual(got, want) {
		t.Errorf("steps = %v, want %v", got, want)
	}
}

func TestHandleTrigger_EmptyTranscriptSkipsSentiment(t *testing.T) {
	h := newHarness()
	h.trans.text = ""

	res := h.orchestrator().HandleTrigger(context.Background(), s3Event("uploads/clip.mp4"))
	if res.StatusCode != 200 {
		t.Fatalf("result = %+v", res)
	}
	if h.sentiment.calls != 0 {
		t.Errorf("sentiment called %d times for empty transcript", h.sentiment.calls)
	}
	if !h.report.sentiment.IsEmpty() {
		t.Errorf("report got sentiment %+v, want empty", h.report.sentiment)
	}
	if h.sink.records["clip"][6].Details["transcript_preview"] != "..." {
		t.Errorf("preview = %v", h.sink.records["clip"][6].Details)
	}
}

func TestHandleTrigger_FramesDisabled(t *testing.T) {
	h := newHarness()
	h.cfg.FramesEnabled = false

	res := h.orchestrator().HandleTrigger(context.Background(), s3Event("uploads/clip.mp4"))
	if res.StatusCode != 200 {
		t.Fatalf("result = %+v", res)
	}
	for _, s := range h.sink.steps("clip") {
		if s == status.StepFrameSelection || s == status.StepFrameExtraction {
			t.Errorf("unexpected step %s with frames disabled", s)
		}
	}
	if h.frames.calls != 0 {
		t.Error("extractor should not run")
	}
	obj, _ := h.store.Get(testBucket, "reports/clip_report.json")
	if !strings.Contains(string(obj.Data), `"critical_frames": []`) {
		t.Errorf("critical_frames should be an empty list:\n%s", obj.Data)
	}
}

func TestHandleTrigger_EmptySelectionSkipsExtraction(t *testing.T) {
	h := newHarness()
	h.emotion.obs = nil

	res := h.orchestrator().HandleTrigger(context.Background(), s3Event("uploads/clip.mp4"))
	if res.StatusCode != 200 {
		t.Fatalf("result = %+v", res)
	}
	if h.frames.calls != 0 {
		t.Error("extractor should not run for an empty selection")
	}
	if h.sink.last("clip").Details["critical_frames"] != 0 {
		t.Errorf("details = %v", h.sink.last("clip").Details)
	}
}

func TestHandleTrigger_FrameDownloadFailureFailsRun(t *testing.T) {
	h := newHarness()
	h.frames.err = errors.New("NoSuchKey")

	res := h.orchestrator().HandleTrigger(context.Background(), s3Event("uploads/clip.mp4"))
	if res.StatusCode != 500 || !strings.Contains(res.Body, "extract frames") {
		t.Fatalf("result = %+v", res)
	}
	if _, ok := h.store.Get(testBucket, "reports/clip_report.json"); ok {
		t.Error("no report may be written for a failed run")
	}
}

func TestHandleTrigger_ReportWriteFailure(t *testing.T) {
	h := newHarness()
	h.store.FailPuts("reports/", errors.New("AccessDenied"))

	res := h.orchestrator().HandleTrigger(context.Background(), s3Event("uploads/clip.mp4"))
	if res.StatusCode != 500 || !strings.Contains(res.Body, "write report") {
		t.Fatalf("result = %+v", res)
	}
	if h.sink.last("clip").Step != status.StepError {
		t.Errorf("last step = %s", h.sink.last("clip").Step)
	}
}

func TestHandleTrigger_StatusFailuresAreSwallowed(t *testing.T) {
	h := newHarness()
	h.sink.err = errors.New("SlowDown")

	res := h.orchestrator().HandleTrigger(context.Background(), s3Event("uploads/clip.mp4"))
	if res.StatusCode != 200 {
		t.Fatalf("status write failures must not fail the run: %+v", res)
	}
}

func TestHandleTrigger_MultipleRecords(t *testing.T) {
	h := newHarness()
	res := h.orchestrator().HandleTrigger(context.Background(), s3Event("reports/a.json", "uploads/b.mov"))
	if res.StatusCode != 200 || res.Skipped || res.RunID != "b" {
		t.Errorf("result = %+v", res)
	}
	if len(h.sink.steps("b")) == 0 {
		t.Error("second record should have run")
	}
}

func TestHandleTrigger_UniqueRunID(t *testing.T) {
	h := newHarness()
	h.cfg.RunIDMode = jobs.RunIDUnique
	ev := s3Event("uploads/clip.mp4")
	ev.Records[0].S3.Object.Sequencer = "0055AED6DCD90281E5"

	res := h.orchestrator().HandleTrigger(context.Background(), ev)
	if res.RunID == "clip" || !strings.HasPrefix(res.RunID, "clip-") {
		t.Errorf("run ID = %q", res.RunID)
	}
	if _, ok := h.store.Get(testBucket, ReportKey(res.RunID)); !ok {
		t.Error("report should be keyed by the unique run ID")
	}
}

func TestNew_Defaults(t *testing.T) {
	o := New(Config{}, Deps{})
	if o.deps.Now == nil || o.deps.Metrics == nil {
		t.Error("New should default the clock and metrics writer")
	}
}
