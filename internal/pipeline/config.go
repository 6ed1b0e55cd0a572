package pipeline

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/video-risk-analyzer/internal/analysis"
	"github.com/fpang/video-risk-analyzer/internal/frames"
	"github.com/fpang/video-risk-analyzer/internal/jobs"
)

// Config holds the resolved pipeline settings.
type Config struct {
	// FallbackBucket is used only when a trigger record names no bucket.
	FallbackBucket string
	RunIDMode      string

	ReportBackend      string
	BedrockModelID     string
	GeminiModel        string
	TranscribeLanguage string
	ComprehendLanguage string

	Poll jobs.PollConfig

	FramesEnabled     bool
	FrameCount        int
	FrameMaxDimension int

	RunTable string
	EventBus string
}

// ConfigFromEnv reads Config from the environment. Malformed values are
// logged and replaced by their defaults.
func ConfigFromEnv() Config {
	return Config{
		FallbackBucket:     os.Getenv("MEDIA_BUCKET_NAME"),
		RunIDMode:          envString("RUN_ID_MODE", jobs.RunIDStem),
		ReportBackend:      strings.ToLower(envString("REPORT_BACKEND", analysis.BackendBedrock)),
		BedrockModelID:     envString("BEDROCK_MODEL_ID", analysis.DefaultBedrockModel),
		GeminiModel:        envString("GEMINI_MODEL", analysis.DefaultGeminiModel),
		TranscribeLanguage: envString("TRANSCRIBE_LANGUAGE", analysis.DefaultTranscribeLanguage),
		ComprehendLanguage: envString("COMPREHEND_LANGUAGE", analysis.DefaultComprehendLanguage),
		Poll: jobs.PollConfig{
			Interval:       envDuration("POLL_INTERVAL", jobs.DefaultPollInterval),
			MaxWait:        envDuration("POLL_MAX_WAIT", jobs.DefaultMaxWait),
			MaxTransient:   envInt("POLL_MAX_TRANSIENT", jobs.DefaultMaxTransient),
			DeadlineMargin: envDuration("POLL_DEADLINE_MARGIN", jobs.DefaultDeadlineMargin),
		},
		FramesEnabled:     envBool("FRAMES_ENABLED", true),
		FrameCount:        envInt("FRAME_COUNT", frames.DefaultFrameCount),
		FrameMaxDimension: envInt("FRAME_MAX_DIMENSION", frames.DefaultMaxDimension),
		RunTable:          os.Getenv("RUN_TABLE_NAME"),
		EventBus:          os.Getenv("EVENT_BUS_NAME"),
	}
}

func envString(name, def string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return def
}

func envInt(name string, def int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("envVar", name).Str("value", v).Int("default", def).Msg("Invalid integer, using default")
		return def
	}
	return n
}

func envBool(name string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Warn().Str("envVar", name).Str("value", v).Bool("default", def).Msg("Invalid boolean, using default")
		return def
	}
	return b
}

// envDuration accepts Go durations ("5s", "14m") or a bare number of seconds.
func envDuration(name string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warn().Str("envVar", name).Str("value", v).Dur("default", def).Msg("Invalid duration, using default")
		return def
	}
	return d
}
