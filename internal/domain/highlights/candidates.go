package highlights

import (
	"strings"
	"time"

	"github.com/forPelevin/shortify/internal/types"
)

// Candidate is a pre-ranked transcript window offered to the content
// analyzer.
type Candidate struct {
	Start time.Duration
	End   time.Duration
	Text  string
	Signals
}

// BuildCandidates slides windows of [minClip, maxClip] over the word
// stream, starting at (downsampled) word boundaries.
func BuildCandidates(words []types.Word, minClip, maxClip time.Duration) []Candidate {
	if minClip <= 0 {
		minClip = time.Second
	}
	if maxClip <= 0 || maxClip < minClip || len(words) < 2 {
		return nil
	}

	// Caps keep runtime predictable on long transcripts.
	const (
		maxCandidates = 500
		maxWordsInWin = 240
		maxStartCount = 140
		endStride     = 4
	)

	startStride := 1
	if len(words) > maxStartCount {
		startStride = (len(words) + maxStartCount - 1) / maxStartCount
	}
	startIdxs := make([]int, 0, len(words)/startStride+2)
	for i := 0; i < len(words)-1; i += startStride {
		startIdxs = append(startIdxs, i)
	}
	// Keep a near-tail start so the end of the video still contributes.
	if last := len(words) - 2; len(startIdxs) == 0 || startIdxs[len(startIdxs)-1] != last {
		startIdxs = append(startIdxs, last)
	}

	var out []Candidate
	for _, i := range startIdxs {
		start := types.Dur(words[i].StartSec)
		parts := make([]string, 0, 32)
		for j := i; j < len(words) && j-i <= maxWordsInWin; j++ {
			parts = append(parts, words[j].Text)
			if j == i || ((j-i)%endStride != 0 && j != i+1) {
				continue
			}
			end := types.Dur(words[j].EndSec)
			win := end - start
			if win > maxClip {
				break
			}
			if win < minClip {
				continue
			}
			text := strings.TrimSpace(strings.Join(parts, " "))
			if text == "" {
				continue
			}
			out = append(out, Candidate{Start: start, End: end, Text: text, Signals: Score(text)})
			if len(out) >= maxCandidates {
				return out
			}
		}
	}
	return out
}
