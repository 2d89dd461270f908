//go:build integration

package itest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/forPelevin/shortify/internal/logger"
	"github.com/forPelevin/shortify/internal/ports/adapters/ffmpeg"
)

// findRepoRoot walks up from the working directory to the module root so the
// CLI can be started with go run.
func findRepoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for dir != filepath.Dir(dir) {
		if fi, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil && !fi.IsDir() {
			return dir, nil
		}
		dir = filepath.Dir(dir)
	}
	return "", errors.New("go.mod not found above working directory")
}

// probeDurationSeconds uses the same probe the pipeline relies on.
func probeDurationSeconds(mp4Path string) (float64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	d, err := ffmpeg.New("ffmpeg", "ffprobe", logger.Nop()).ProbeDuration(ctx, mp4Path)
	if err != nil {
		return 0, err
	}
	return d.Seconds(), nil
}
