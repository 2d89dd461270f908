package highlights

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/forPelevin/shortify/internal/apperr"
	"github.com/forPelevin/shortify/internal/types"
)

// Analyzer is the external content-analysis capability.
type Analyzer interface {
	Analyze(ctx context.Context, tr types.Transcript, words []types.Word, durationSec float64) ([]types.ScoredSpan, error)
}

type Config struct {
	// FallbackSpanCount > 0 enables the evenly spaced heuristic when the
	// analyzer finds nothing.
	FallbackSpanCount int `yaml:"fallbackSpanCount" json:"fallbackSpanCount"`
	// DedupeJaccard is the time-overlap ratio above which two spans are
	// considered the same moment.
	DedupeJaccard float64 `yaml:"dedupeJaccard" json:"dedupeJaccard"`
}

func DefaultConfig() Config {
	return Config{FallbackSpanCount: 0, DedupeJaccard: 0.9}
}

const fallbackConfidence = 0.5

// Scorer validates and normalizes analyzer output. It never invents
// confidence values of its own.
type Scorer struct {
	analyzer Analyzer
	cfg      Config
}

func NewScorer(a Analyzer, cfg Config) *Scorer {
	if cfg.DedupeJaccard <= 0 || cfg.DedupeJaccard > 1 {
		cfg.DedupeJaccard = 0.9
	}
	return &Scorer{analyzer: a, cfg: cfg}
}

func (s *Scorer) Score(ctx context.Context, tr types.Transcript, words []types.Word, durationSec float64) ([]types.ScoredSpan, error) {
	if math.IsNaN(durationSec) || durationSec <= 0 {
		return nil, apperr.New(apperr.KindInvalidDuration, "duration must be > 0, got %v", durationSec)
	}
	var raw []types.ScoredSpan
	if s.analyzer != nil {
		var err error
		raw, err = s.analyzer.Analyze(ctx, tr, words, durationSec)
		if err != nil {
			return nil, err
		}
	}
	spans := Normalize(raw, durationSec, s.cfg.DedupeJaccard)
	if len(spans) > 0 {
		return spans, nil
	}
	if s.cfg.FallbackSpanCount <= 0 {
		return nil, apperr.New(apperr.KindNoHighlightsFound, "analyzer returned no usable spans")
	}
	return Fallback(words, durationSec, s.cfg.FallbackSpanCount), nil
}

// Normalize clamps confidences, clips spans to the timeline, drops empty
// spans and collapses near-duplicates (keeping the more confident one).
// Output is ordered by start time.
func Normalize(raw []types.ScoredSpan, durationSec, jaccard float64) []types.ScoredSpan {
	cleaned := make([]types.ScoredSpan, 0, len(raw))
	for _, sp := range raw {
		if math.IsNaN(sp.StartSec) || math.IsNaN(sp.EndSec) {
			continue
		}
		st := clamp(sp.StartSec, 0, durationSec)
		en := clamp(sp.EndSec, 0, durationSec)
		if en-st <= 0 {
			continue
		}
		conf := sp.Confidence
		if math.IsNaN(conf) {
			conf = 0
		}
		src := sp.Source
		if src == "" {
			src = types.SourceAI
		}
		cleaned = append(cleaned, types.ScoredSpan{
			StartSec:   st,
			EndSec:     en,
			Type:       ParseSpanType(string(sp.Type)),
			Confidence: clamp(conf, 0, 1),
			Summary:    strings.TrimSpace(sp.Summary),
			Source:     src,
		})
	}

	sort.SliceStable(cleaned, func(i, j int) bool {
		a, b := cleaned[i], cleaned[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.StartSec != b.StartSec {
			return a.StartSec < b.StartSec
		}
		return a.EndSec < b.EndSec
	})

	kept := make([]types.ScoredSpan, 0, len(cleaned))
	for _, c := range cleaned {
		dup := false
		for _, k := range kept {
			if Jaccard(c, k) > jaccard {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, c)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].StartSec != kept[j].StartSec {
			return kept[i].StartSec < kept[j].StartSec
		}
		return kept[i].EndSec < kept[j].EndSec
	})
	return kept
}

// Jaccard is |a∩b| / |a∪b| over the two time ranges.
func Jaccard(a, b types.ScoredSpan) float64 {
	inter := math.Min(a.EndSec, b.EndSec) - math.Max(a.StartSec, b.StartSec)
	if inter <= 0 {
		return 0
	}
	union := (a.EndSec - a.StartSec) + (b.EndSec - b.StartSec) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// ParseSpanType maps analyzer labels onto the known span types; anything
// unrecognized is a highlight.
func ParseSpanType(s string) types.SpanType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hook", "intro", "opening":
		return types.SpanHook
	case "conclusion", "outro", "closing", "payoff":
		return types.SpanConclusion
	default:
		return types.SpanHighlight
	}
}

// Fallback bisects the timeline into n evenly spaced highlight spans,
// tagged as heuristic so callers can tell them apart from analyzer output.
func Fallback(words []types.Word, durationSec float64, n int) []types.ScoredSpan {
	if n <= 0 || durationSec <= 0 {
		return nil
	}
	step := durationSec / float64(n)
	out := make([]types.ScoredSpan, 0, n)
	for i := 0; i < n; i++ {
		st := float64(i) * step
		en := float64(i+1) * step
		if i == n-1 {
			en = durationSec
		}
		out = append(out, types.ScoredSpan{
			StartSec:   st,
			EndSec:     en,
			Type:       types.SpanHighlight,
			Confidence: fallbackConfidence,
			Summary:    excerpt(words, st, en, 20, i+1, n),
			Source:     types.SourceHeuristic,
		})
	}
	return out
}

func excerpt(words []types.Word, st, en float64, maxWords, idx, n int) string {
	parts := make([]string, 0, maxWords)
	for _, w := range words {
		mid := (w.StartSec + w.EndSec) / 2
		if mid < st || mid >= en {
			continue
		}
		parts = append(parts, w.Text)
		if len(parts) == maxWords {
			break
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("part %d of %d", idx, n)
	}
	return strings.Join(parts, " ")
}
