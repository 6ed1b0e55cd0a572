package pipeline

import (
	"fmt"
	"time"

	"github.com/fpang/video-risk-analyzer/internal/analysis"
	"github.com/fpang/video-risk-analyzer/internal/frames"
	"github.com/fpang/video-risk-analyzer/internal/status"
)

// Run is one pass of the pipeline over one uploaded video.
type Run struct {
	ID          string
	Bucket      string
	Key         string
	CurrentStep status.Step
	CreatedAt   time.Time
}

// FinalReport is the artifact written once at the end of a successful run.
type FinalReport struct {
	Report         string                        `json:"report"`
	RiskScore      int                           `json:"risk_score"`
	Transcript     analysis.Transcript           `json:"transcript"`
	VideoData      []analysis.EmotionObservation `json:"video_data"`
	CriticalFrames []frames.CriticalFrame        `json:"critical_frames"`
	RunID          string                        `json:"run_id"`
	SourceKey      string                        `json:"source_key"`
	GeneratedAt    time.Time                     `json:"generated_at"`
}

// ReportKey returns the object key of a run's final report.
func ReportKey(runID string) string {
	return fmt.Sprintf("reports/%s_report.json", runID)
}

// previewRunes is the transcript preview length shown in the AUDIO_DONE status.
const previewRunes = 100

// TranscriptPreview returns the first 100 characters of a transcript
// followed by "...".
func TranscriptPreview(t analysis.Transcript) string {
	r := []rune(t)
	if len(r) > previewRunes {
		r = r[:previewRunes]
	}
	return string(r) + "..."
}
