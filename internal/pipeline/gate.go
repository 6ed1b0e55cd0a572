// Package pipeline runs one uploaded video through emotion detection,
// transcription, sentiment analysis, report generation and frame
// extraction, publishing a status snapshot at every step and a final
// report on success.
package pipeline

import (
	"errors"
	"net/url"
	"path"
	"strings"
)

// UploadPrefix is the only key prefix that starts a run.
const UploadPrefix = "uploads/"

// ErrSkipped marks a trigger that was intentionally ignored.
var ErrSkipped = errors.New("not a video upload")

var videoExtensions = map[string]bool{
	".mp4": true,
	".mov": true,
	".avi": true,
	".mkv": true,
}

// DecodeKey percent-decodes an object key as it arrives in an S3
// notification, where spaces are encoded as '+'.
func DecodeKey(raw string) (string, error) {
	return url.QueryUnescape(raw)
}

// Accept reports whether a decoded key is a video upload the pipeline
// should process. Anything else, including the pipeline's own outputs,
// is ignored.
func Accept(key string) bool {
	if !strings.HasPrefix(key, UploadPrefix) {
		return false
	}
	return videoExtensions[strings.ToLower(path.Ext(key))]
}

// gate decodes and validates a raw trigger key, returning ErrSkipped for
// anything that is not a video upload.
func gate(raw string) (string, error) {
	key, err := DecodeKey(raw)
	if err != nil {
		return "", errors.Join(ErrSkipped, err)
	}
	if !Accept(key) {
		return key, ErrSkipped
	}
	return key, nil
}
