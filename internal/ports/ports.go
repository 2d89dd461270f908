package ports

import (
	"context"
	"errors"
	"time"

	"github.com/forPelevin/shortify/internal/types"
)

type VideoTool interface {
	ExtractAudioMono16k(ctx context.Context, inMP4, outWav string) error
	RenderClip(ctx context.Context, inMP4 string, start, end time.Duration, outMP4 string, burnASS string) error
	ProbeDuration(ctx context.Context, inMP4 string) (time.Duration, error)
}

// Transcriber turns a mono 16 kHz wav into text with optional word timings.
type Transcriber interface {
	Transcribe(ctx context.Context, wavPath, cacheDir string) (types.Transcript, error)
}

// ContentAnalyzer proposes scored spans over a transcript. Returning no
// spans is not an error.
type ContentAnalyzer interface {
	Analyze(ctx context.Context, tr types.Transcript, words []types.Word, durationSec float64) ([]types.ScoredSpan, error)
}

// JobStore persists job records. Records are replaced whole, never patched.
type JobStore interface {
	Put(ctx context.Context, rec types.JobRecord) error
	// Get fails with apperr.ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (types.JobRecord, error)
	// List returns up to limit records, newest first.
	List(ctx context.Context, limit int) ([]types.JobRecord, error)
	// Update replaces the record with fn(current) atomically with respect
	// to other Updates and Puts. If fn returns ErrSkipUpdate the current
	// record is returned and nothing is written. Unknown ids fail with
	// apperr.ErrNotFound.
	Update(ctx context.Context, id string, fn func(cur types.JobRecord) (types.JobRecord, error)) (types.JobRecord, error)
}

// ErrSkipUpdate tells JobStore.Update to keep the current record.
var ErrSkipUpdate = errors.New("skip update")

// ArtifactStore publishes job outputs and returns a locator for them.
type ArtifactStore interface {
	PutFile(ctx context.Context, key, localPath string) (string, error)
	PutBytes(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Dispatcher hands a queued job to whatever executes it.
type Dispatcher interface {
	Dispatch(ctx context.Context, rec types.JobRecord) error
}
