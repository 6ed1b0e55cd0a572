// Package main provides the Lambda entry point for the video risk analysis
// pipeline.
//
// The Lambda is triggered by S3 ObjectCreated notifications. For every video
// uploaded under uploads/ it runs face emotion detection and speech
// transcription, analyses transcript sentiment, fuses the three into a risk
// report with a generative model, extracts illustrative frames, and writes
// status/{runId}.json, reports/{runId}_report.json and frames/ into the
// source bucket.
//
// Container: includes ffmpeg for frame capture
// Timeout: 15 minutes
package main

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"
	"github.com/rs/zerolog/log"

	"github.com/fpang/video-risk-analyzer/internal/analysis"
	"github.com/fpang/video-risk-analyzer/internal/frames"
	"github.com/fpang/video-risk-analyzer/internal/lambdaboot"
	"github.com/fpang/video-risk-analyzer/internal/logging"
	"github.com/fpang/video-risk-analyzer/internal/pipeline"
	"github.com/fpang/video-risk-analyzer/internal/status"
)

// commitHash is set at build time with -ldflags "-X main.commitHash=...".
var commitHash string

var orchestrator *pipeline.Orchestrator

var coldStart = true

func init() {
	initStart := time.Now()
	if err := lambdaboot.LoadDotEnv(""); err != nil {
		log.Warn().Err(err).Msg("Ignoring unreadable .env file")
	}
	logging.Init()

	cfg := pipeline.ConfigFromEnv()
	clients := lambdaboot.InitAWS()
	s3c := lambdaboot.InitS3(clients.Config, "MEDIA_BUCKET_NAME")
	cfg.FallbackBucket = s3c.Bucket

	sinks := status.Multi{status.NewS3Sink(s3c.Client)}
	runStore := lambdaboot.InitDynamoOptional(clients.Config, cfg.RunTable)
	if runStore != nil {
		sinks = append(sinks, runStore)
	}

	var generator analysis.ReportGenerator
	model := cfg.BedrockModelID
	switch cfg.ReportBackend {
	case analysis.BackendGemini:
		apiKey := lambdaboot.LoadGeminiKey(clients.SSM)
		client, err := analysis.NewGeminiClient(context.Background(), apiKey)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Gemini client")
		}
		generator = analysis.NewGeminiGenerator(client.Models, cfg.GeminiModel)
		model = cfg.GeminiModel
	case analysis.BackendBedrock:
		generator = analysis.NewBedrockGenerator(bedrockruntime.NewFromConfig(clients.Config), cfg.BedrockModelID)
	default:
		log.Fatal().Str("backend", cfg.ReportBackend).Msg("REPORT_BACKEND must be bedrock or gemini")
	}

	deps := pipeline.Deps{
		Emotion:       analysis.NewEmotionJob(rekognition.NewFromConfig(clients.Config), cfg.Poll),
		Transcription: analysis.NewTranscriptionJob(transcribe.NewFromConfig(clients.Config), nil, cfg.TranscribeLanguage, cfg.Poll),
		Sentiment:     analysis.NewSentimentJob(comprehend.NewFromConfig(clients.Config), cfg.ComprehendLanguage),
		Report:        analysis.NewReportJob(generator),
		Artifacts:     s3c.Client,
		Status:        sinks,
	}
	if cfg.FramesEnabled {
		deps.Frames = frames.NewExtractor(s3c.Client, s3c.Presigner, &frames.FFmpegCapturer{}, cfg.FrameMaxDimension)
	}
	if cfg.EventBus != "" {
		deps.Notifier = pipeline.NewEventNotifier(eventbridge.NewFromConfig(clients.Config), cfg.EventBus)
	}
	orchestrator = pipeline.New(cfg, deps)

	startup := lambdaboot.StartupLog("orchestrator-lambda", initStart).
		CommitHash(commitHash).
		S3Bucket("fallbackBucket", cfg.FallbackBucket).
		Model(cfg.ReportBackend, model).
		Feature("frames", cfg.FramesEnabled).
		Feature("runIndex", runStore != nil).
		Config("runIdMode", cfg.RunIDMode).
		Config("pollInterval", cfg.Poll.Interval.String()).
		Config("pollMaxWait", cfg.Poll.MaxWait.String()).
		Config("transcribeLanguage", cfg.TranscribeLanguage).
		Config("comprehendLanguage", cfg.ComprehendLanguage)
	if runStore != nil {
		startup.DynamoTable("runs", runStore.TableName())
	}
	if cfg.EventBus != "" {
		startup.EventBus("runEvents", cfg.EventBus)
	}
	if cfg.ReportBackend == analysis.BackendGemini {
		startup.SSMParam("geminiApiKey", logging.EnvOrDefault("SSM_API_KEY_PARAM", lambdaboot.DefaultGeminiKeyParam))
	}
	startup.Log()
}

func handler(ctx context.Context, event events.S3Event) (pipeline.Result, error) {
	if coldStart {
		coldStart = false
		log.Info().Str("function", "orchestrator-lambda").Msg("Cold start: first invocation")
	}
	start := time.Now()
	result := orchestrator.HandleTrigger(ctx, event)
	log.Info().
		Int("records", len(event.Records)).
		Int("statusCode", result.StatusCode).
		Str("runId", result.RunID).
		Bool("skipped", result.Skipped).
		Dur("duration", time.Since(start)).
		Msg("Invocation complete")
	return result, nil
}

func main() {
	lambda.Start(handler)
}
