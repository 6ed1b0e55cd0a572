package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fpang/video-risk-analyzer/internal/assets"
	"github.com/fpang/video-risk-analyzer/internal/jobs"
)

// Report backends.
const (
	BackendBedrock = "bedrock"
	BackendGemini  = "gemini"
)

// Bedrock defaults.
const (
	DefaultBedrockModel     = "anthropic.claude-3-haiku-20240307-v1:0"
	bedrockAnthropicVersion = "bedrock-2023-05-31"
	bedrockMaxTokens        = 2000
)

// DefaultGeminiModel is used when GEMINI_MODEL is unset.
const DefaultGeminiModel = "gemini-2.5-flash"

// PromptObservationLimit is how many observations are shown to the model.
const PromptObservationLimit = 20

// ReportGenerator turns a prompt into narrative text.
type ReportGenerator interface {
	// Backend names the generator in logs and errors.
	Backend() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// BedrockAPI is the subset of *bedrockruntime.Client used for generation.
type BedrockAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// GeminiAPI is satisfied by genai.Client.Models.
type GeminiAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

var (
	_ BedrockAPI      = (*bedrockruntime.Client)(nil)
	_ GeminiAPI       = (*genai.Models)(nil)
	_ ReportGenerator = (*BedrockGenerator)(nil)
	_ ReportGenerator = (*GeminiGenerator)(nil)
)

// BedrockGenerator calls an Anthropic model on Bedrock with the messages API.
type BedrockGenerator struct {
	client  BedrockAPI
	modelID string
}

// NewBedrockGenerator creates a BedrockGenerator. An empty modelID falls back
// to DefaultBedrockModel.
func NewBedrockGenerator(client BedrockAPI, modelID string) *BedrockGenerator {
	if modelID == "" {
		modelID = DefaultBedrockModel
	}
	return &BedrockGenerator{client: client, modelID: modelID}
}

func (g *BedrockGenerator) Backend() string { return BackendBedrock }

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	Messages         []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
}

func (g *BedrockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(anthropicRequest{
		AnthropicVersion: bedrockAnthropicVersion,
		MaxTokens:        bedrockMaxTokens,
		Messages: []anthropicMessage{{
			Role:    "user",
			Content: []anthropicContent{{Type: "text", Text: prompt}},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	out, err := g.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(g.modelID),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("invoke model %s: %w", g.modelID, err)
	}

	var resp anthropicResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	var sb strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	return sb.String(), nil
}

// GeminiGenerator calls a Gemini model through the genai SDK.
type GeminiGenerator struct {
	models GeminiAPI
	model  string
}

// NewGeminiGenerator creates a GeminiGenerator. An empty model falls back to
// DefaultGeminiModel.
func NewGeminiGenerator(models GeminiAPI, model string) *GeminiGenerator {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiGenerator{models: models, model: model}
}

// NewGeminiClient creates a genai client for the Gemini API.
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
}

func (g *GeminiGenerator) Backend() string { return BackendGemini }

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	// The persona is already part of the rendered prompt.
	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("generate content with %s: %w", g.model, err)
	}
	return resp.Text(), nil
}

// BuildReportPrompt assembles the fusion prompt from the three analyses.
// Only the first PromptObservationLimit observations are included.
func BuildReportPrompt(obs []EmotionObservation, transcript Transcript, sentiment SentimentResult) string {
	sample := obs
	if len(sample) > PromptObservationLimit {
		sample = sample[:PromptObservationLimit]
	}
	if sample == nil {
		sample = []EmotionObservation{}
	}
	emotionsJSON, _ := json.Marshal(sample)
	sentimentJSON, _ := json.Marshal(sentiment)

	return assets.RenderRiskReportPrompt(assets.RiskReportData{
		EmotionsJSON:      string(emotionsJSON),
		SampleSize:        len(sample),
		TotalObservations: len(obs),
		Transcript:        transcript,
		SentimentJSON:     string(sentimentJSON),
	})
}

// ReportJob fuses the three analyses into a narrative risk report.
type ReportJob struct {
	gen ReportGenerator
}

// NewReportJob creates a ReportJob backed by gen.
func NewReportJob(gen ReportGenerator) *ReportJob {
	return &ReportJob{gen: gen}
}

// Generate builds the prompt and returns the model's report. Any backend
// failure, including an empty answer, is a *jobs.GenerationError.
func (j *ReportJob) Generate(ctx context.Context, obs []EmotionObservation, transcript Transcript, sentiment SentimentResult) (string, error) {
	prompt := BuildReportPrompt(obs, transcript, sentiment)
	start := time.Now()
	report, err := j.gen.Generate(ctx, prompt)
	if err != nil {
		return "", &jobs.GenerationError{Backend: j.gen.Backend(), Err: err}
	}
	if strings.TrimSpace(report) == "" {
		return "", &jobs.GenerationError{Backend: j.gen.Backend(), Err: errors.New("empty response")}
	}
	log.Info().
		Str("backend", j.gen.Backend()).
		Int("promptChars", len(prompt)).
		Int("reportChars", len(report)).
		Dur("elapsed", time.Since(start)).
		Msg("Risk report generated")
	return report, nil
}
