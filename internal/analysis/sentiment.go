package analysis

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	comptypes "github.com/aws/aws-sdk-go-v2/service/comprehend/types"
	"github.com/rs/zerolog/log"
)

// DefaultComprehendLanguage is the language hint passed to Comprehend.
const DefaultComprehendLanguage = "pt"

// MaxSentimentBytes is Comprehend's DetectSentiment input limit.
const MaxSentimentBytes = 5000

// Sentiment score keys.
const (
	ScorePositive = "Positive"
	ScoreNegative = "Negative"
	ScoreNeutral  = "Neutral"
	ScoreMixed    = "Mixed"
)

// ComprehendAPI is the subset of *comprehend.Client used for sentiment.
type ComprehendAPI interface {
	DetectSentiment(ctx context.Context, params *comprehend.DetectSentimentInput, optFns ...func(*comprehend.Options)) (*comprehend.DetectSentimentOutput, error)
}

var _ ComprehendAPI = (*comprehend.Client)(nil)

// SentimentJob classifies transcript sentiment. Comprehend answers
// synchronously, so there is nothing to poll.
type SentimentJob struct {
	client   ComprehendAPI
	language string
}

// NewSentimentJob creates a SentimentJob. An empty language falls back to
// DefaultComprehendLanguage.
func NewSentimentJob(client ComprehendAPI, language string) *SentimentJob {
	if language == "" {
		language = DefaultComprehendLanguage
	}
	return &SentimentJob{client: client, language: language}
}

// Analyze returns the sentiment of text. Blank text yields the empty result
// without calling Comprehend.
func (j *SentimentJob) Analyze(ctx context.Context, text Transcript) (SentimentResult, error) {
	if strings.TrimSpace(text) == "" {
		log.Info().Msg("Transcript empty, skipping sentiment analysis")
		return SentimentResult{}, nil
	}
	text = TruncateUTF8(text, MaxSentimentBytes)

	out, err := j.client.DetectSentiment(ctx, &comprehend.DetectSentimentInput{
		Text:         aws.String(text),
		LanguageCode: comptypes.LanguageCode(j.language),
	})
	if err != nil {
		return SentimentResult{}, fmt.Errorf("detect sentiment: %w", err)
	}

	res := SentimentResult{Label: string(out.Sentiment), Scores: map[string]float64{}}
	if s := out.SentimentScore; s != nil {
		res.Scores[ScorePositive] = float64(aws.ToFloat32(s.Positive))
		res.Scores[ScoreNegative] = float64(aws.ToFloat32(s.Negative))
		res.Scores[ScoreNeutral] = float64(aws.ToFloat32(s.Neutral))
		res.Scores[ScoreMixed] = float64(aws.ToFloat32(s.Mixed))
	}
	log.Info().Str("sentiment", res.Label).Msg("Sentiment analysed")
	return res, nil
}

// TruncateUTF8 shortens s to at most n bytes without splitting a rune.
func TruncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
