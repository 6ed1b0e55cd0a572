package frames

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// frameJPEGQuality is ffmpeg's -q:v scale; 2 is near-lossless.
const frameJPEGQuality = 2

// Capturer grabs a single still from a local video. An empty path with a nil
// error means the tool produced no image for that instant.
type Capturer interface {
	Capture(ctx context.Context, videoPath string, seconds float64) (string, error)
}

// FFmpegCapturer captures stills with the ffmpeg binary.
type FFmpegCapturer struct {
	// Bin is the ffmpeg executable. Empty means look it up on PATH.
	Bin string
}

var _ Capturer = (*FFmpegCapturer)(nil)

// Capture seeks to seconds and writes one JPEG next to the video.
func (c *FFmpegCapturer) Capture(ctx context.Context, videoPath string, seconds float64) (string, error) {
	bin := c.Bin
	if bin == "" {
		p, err := exec.LookPath("ffmpeg")
		if err != nil {
			return "", fmt.Errorf("ffmpeg not found: frame capture requires ffmpeg: %w", err)
		}
		bin = p
	}

	ts := strconv.FormatFloat(seconds, 'f', 3, 64)
	out := filepath.Join(filepath.Dir(videoPath), "frame_"+strings.ReplaceAll(ts, ".", "_")+".jpg")
	args := []string{
		"-ss", ts,
		"-i", videoPath,
		"-frames:v", "1",
		"-q:v", strconv.Itoa(frameJPEGQuality),
		"-y", out,
	}

	log.Debug().Str("ffmpeg", bin).Strs("args", args).Msg("Capturing frame")
	cmd := exec.CommandContext(ctx, bin, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("ffmpeg capture at %ss failed: %w\nOutput: %s", ts, err, tail(output, 500))
	}

	// Seeking past the end exits cleanly without writing anything.
	if info, err := os.Stat(out); err != nil || info.Size() == 0 {
		return "", nil
	}
	return out, nil
}

func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}
