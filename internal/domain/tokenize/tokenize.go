package tokenize

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/forPelevin/shortify/internal/apperr"
	"github.com/forPelevin/shortify/internal/types"
)

// Options tune the fallback duration heuristic. Zero values pick the
// defaults.
type Options struct {
	BaseMs    float64 `yaml:"baseMs"`
	PerCharMs float64 `yaml:"perCharMs"`
}

const (
	defaultBaseMs    = 120
	defaultPerCharMs = 55
)

type Result struct {
	Words       []types.Word
	Source      types.TimingSource
	DurationSec float64
}

// Tokenize turns a provider transcript into an ordered word stream.
// Real ASR word timings are the primary source; the character-proportional
// estimate is used only when the provider returned none. The two are never
// mixed.
func Tokenize(tr types.Transcript, opts Options) (Result, error) {
	if len(tr.Words) > 0 {
		return passThrough(tr)
	}
	return estimate(tr.Text, tr.DurationSec, opts)
}

func passThrough(tr types.Transcript) (Result, error) {
	out := make([]types.Word, 0, len(tr.Words))
	for i, w := range tr.Words {
		text := strings.TrimSpace(w.Text)
		if text == "" {
			continue
		}
		if isBad(w.StartSec) || isBad(w.EndSec) || w.StartSec < 0 {
			return Result{}, apperr.New(apperr.KindInvalidDuration, "word %d has invalid timing [%v, %v]", i, w.StartSec, w.EndSec)
		}
		if w.EndSec <= w.StartSec {
			return Result{}, apperr.New(apperr.KindInvalidDuration, "word %d %q ends at %.3f before it starts at %.3f", i, text, w.EndSec, w.StartSec)
		}
		if n := len(out); n > 0 {
			prev := out[n-1]
			if w.StartSec < prev.StartSec {
				return Result{}, apperr.New(apperr.KindInvalidDuration, "word %d %q starts at %.3f before previous word at %.3f", i, text, w.StartSec, prev.StartSec)
			}
			if w.StartSec < prev.EndSec {
				return Result{}, apperr.New(apperr.KindInvalidDuration, "word %d %q overlaps previous word (%.3f < %.3f)", i, text, w.StartSec, prev.EndSec)
			}
		}
		out = append(out, types.Word{Text: text, StartSec: w.StartSec, EndSec: w.EndSec})
	}
	if len(out) == 0 {
		return Result{}, apperr.New(apperr.KindEmptyTranscript, "transcript has no words")
	}
	dur := tr.DurationSec
	if last := out[len(out)-1].EndSec; last > dur {
		dur = last
	}
	return Result{Words: out, Source: types.TimingASR, DurationSec: dur}, nil
}

func estimate(text string, totalSec float64, opts Options) (Result, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Result{}, apperr.New(apperr.KindEmptyTranscript, "transcript has no words")
	}
	if isBad(totalSec) || totalSec <= 0 {
		return Result{}, apperr.New(apperr.KindInvalidDuration, "total duration must be > 0, got %v", totalSec)
	}
	base := opts.BaseMs
	if base <= 0 {
		base = defaultBaseMs
	}
	perChar := opts.PerCharMs
	if perChar <= 0 {
		perChar = defaultPerCharMs
	}

	weights := make([]float64, len(fields))
	var sum float64
	for i, f := range fields {
		weights[i] = base + perChar*float64(utf8.RuneCountInString(f))
		sum += weights[i]
	}

	out := make([]types.Word, len(fields))
	var acc float64
	cursor := 0.0
	for i, f := range fields {
		acc += weights[i]
		end := totalSec * acc / sum
		if i == len(fields)-1 {
			// Pin the last word so rounding never leaves a tail.
			end = totalSec
		}
		out[i] = types.Word{Text: f, StartSec: cursor, EndSec: end}
		cursor = end
	}
	return Result{Words: out, Source: types.TimingHeuristic, DurationSec: totalSec}, nil
}

func isBad(x float64) bool { return math.IsNaN(x) || math.IsInf(x, 0) }
