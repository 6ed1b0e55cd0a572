package frames

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/video-risk-analyzer/internal/analysis"
	"github.com/fpang/video-risk-analyzer/internal/s3util"
)

// Extraction defaults.
const (
	DefaultMaxDimension = 1280
	LinkTTL             = time.Hour
)

// CriticalFrame is a selected observation with its stored still image.
type CriticalFrame struct {
	analysis.EmotionObservation
	// FrameImageRef is a presigned link to the image, valid for LinkTTL.
	FrameImageRef string `json:"frame_image_ref"`
	FrameKey      string `json:"frame_key"`
}

// Source identifies the video a run analysed.
type Source struct {
	Bucket string
	Key    string
	RunID  string
}

// Key returns the object key of the frame captured at ms for runID.
func Key(runID string, ms float64) string {
	return fmt.Sprintf("frames/%s_%s.jpg", runID, strconv.FormatFloat(ms, 'f', -1, 64))
}

// Extractor captures, stores and links the stills for selected observations.
type Extractor struct {
	store     s3util.BlobStore
	presigner s3util.Presigner
	capturer  Capturer
	maxDim    int
}

// NewExtractor creates an Extractor. maxDim bounds the longer side of stored
// frames; zero or less stores them as captured.
func NewExtractor(store s3util.BlobStore, presigner s3util.Presigner, capturer Capturer, maxDim int) *Extractor {
	return &Extractor{store: store, presigner: presigner, capturer: capturer, maxDim: maxDim}
}

// Extract downloads the source video once and produces a CriticalFrame per
// observation, in order. An observation whose capture, upload or link fails
// is dropped; only a failed video download fails the call.
func (e *Extractor) Extract(ctx context.Context, src Source, selected []analysis.EmotionObservation) ([]CriticalFrame, error) {
	frames := []CriticalFrame{}
	if len(selected) == 0 {
		return frames, nil
	}
	logger := log.With().Str("runId", src.RunID).Logger()

	dir, err := os.MkdirTemp("", "risk-frames-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn().Err(err).Str("dir", dir).Msg("Failed to remove scratch directory")
		}
	}()

	videoPath := filepath.Join(dir, "source"+path.Ext(src.Key))
	if err := s3util.DownloadToFile(ctx, e.store, src.Bucket, src.Key, videoPath); err != nil {
		return nil, fmt.Errorf("download source video: %w", err)
	}

	for _, obs := range selected {
		frame, err := e.extractOne(ctx, src, videoPath, obs)
		if err != nil {
			logger.Warn().Err(err).Float64("timestampMs", obs.TimestampMillis).Str("emotion", obs.Emotion).Msg("Dropping frame")
			continue
		}
		frames = append(frames, frame)
	}

	logger.Info().Int("selected", len(selected)).Int("extracted", len(frames)).Msg("Frame extraction complete")
	return frames, nil
}

func (e *Extractor) extractOne(ctx context.Context, src Source, videoPath string, obs analysis.EmotionObservation) (CriticalFrame, error) {
	imgPath, err := e.capturer.Capture(ctx, videoPath, obs.TimestampMillis/1000)
	if err != nil {
		return CriticalFrame{}, err
	}
	if imgPath == "" {
		return CriticalFrame{}, fmt.Errorf("no frame at %.3fs", obs.TimestampMillis/1000)
	}
	defer os.Remove(imgPath)

	data, err := os.ReadFile(imgPath)
	if err != nil {
		return CriticalFrame{}, fmt.Errorf("read frame: %w", err)
	}
	if data, err = Downscale(data, e.maxDim); err != nil {
		return CriticalFrame{}, err
	}

	key := Key(src.RunID, obs.TimestampMillis)
	if err := s3util.PutBytes(ctx, e.store, src.Bucket, key, data, s3util.ContentTypeJPEG); err != nil {
		return CriticalFrame{}, fmt.Errorf("upload frame: %w", err)
	}
	url, err := s3util.GeneratePresignedURL(ctx, e.presigner, src.Bucket, key, LinkTTL)
	if err != nil {
		return CriticalFrame{}, err
	}
	return CriticalFrame{EmotionObservation: obs, FrameImageRef: url, FrameKey: key}, nil
}
