package jobs

import (
	"path"
	"strings"

	"github.com/google/uuid"
)

// Run identifier modes.
const (
	// RunIDStem derives the run ID from the base filename up to its first
	// dot. Two uploads sharing a base name map to the same run ID and
	// overwrite each other's status, report and frames.
	RunIDStem = "stem"
	// RunIDUnique appends a short digest of the bucket, key and event
	// sequencer so concurrent uploads of equally named files stay apart.
	RunIDUnique = "unique"
)

// StemRunID returns the base filename of key up to its first dot.
func StemRunID(key string) string {
	base := path.Base(key)
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}
	return base
}

// UniqueRunID returns StemRunID(key) plus an 8-hex suffix. The suffix is a
// name-based UUID over bucket, key and sequencer, so a redelivered event
// maps to the same run. Without a sequencer a random UUID is used.
func UniqueRunID(bucket, key, sequencer string) string {
	var id uuid.UUID
	if sequencer == "" {
		id = uuid.New()
	} else {
		id = uuid.NewSHA1(uuid.NameSpaceURL, []byte("s3://"+bucket+"/"+key+"#"+sequencer))
	}
	return StemRunID(key) + "-" + strings.ReplaceAll(id.String(), "-", "")[:8]
}

// RunID derives the run identifier according to mode. Unknown modes fall
// back to RunIDStem.
func RunID(mode, bucket, key, sequencer string) string {
	if mode == RunIDUnique {
		return UniqueRunID(bucket, key, sequencer)
	}
	return StemRunID(key)
}
