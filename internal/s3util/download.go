package s3util

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
)

// DownloadToFile downloads an S3 object to a specific local path.
func DownloadToFile(ctx context.Context, client ObjectGetter, bucket, key, localPath string) error {
	log.Debug().Str("bucket", bucket).Str("key", key).Str("localPath", localPath).Msg("Downloading from S3")
	result, err := client.GetObject(ctx, getInput(bucket, key))
	if err != nil {
		return fmt.Errorf("S3 GetObject: %w", err)
	}
	defer result.Body.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, result.Body)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	log.Debug().Str("key", key).Int64("bytes", n).Msg("Download complete")
	return nil
}
