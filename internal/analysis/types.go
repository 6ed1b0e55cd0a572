// Package analysis wraps the four external analysis capabilities the pipeline
// drives: face emotion detection (Rekognition), speech transcription
// (Transcribe), text sentiment (Comprehend), and narrative report generation
// (Bedrock or Gemini).
//
// Each capability is reached through a narrow interface that the AWS SDK v2
// and genai clients satisfy, so tests substitute hand-written fakes.
package analysis

// Emotion labels as reported for a detected face.
const (
	EmotionFear      = "FEAR"
	EmotionSadness   = "SADNESS"
	EmotionAngry     = "ANGRY"
	EmotionConfused  = "CONFUSED"
	EmotionSurprised = "SURPRISED"
	EmotionDisgusted = "DISGUSTED"
	EmotionCalm      = "CALM"
	EmotionHappy     = "HAPPY"
	EmotionUnknown   = "UNKNOWN"
)

// EmotionObservation is the predominant emotion of one detected face at one
// point in the video.
type EmotionObservation struct {
	// TimestampMillis is the offset from the start of the video.
	TimestampMillis float64 `json:"timestamp"`
	Emotion         string  `json:"emotion"`
	Confidence      float64 `json:"confidence"`
}

// Transcript is the plain text of the video's speech; empty when nothing
// was recognised.
type Transcript = string

// SentimentResult is the sentiment of the transcript. The zero value stands
// for "not analysed" and is what an empty transcript produces.
type SentimentResult struct {
	Label  string             `json:"sentiment,omitempty"`
	Scores map[string]float64 `json:"scores,omitempty"`
}

// IsEmpty reports whether no sentiment was computed.
func (s SentimentResult) IsEmpty() bool {
	return s.Label == "" && len(s.Scores) == 0
}
