package windows

import (
	"fmt"
	"math"
	"sort"

	"github.com/forPelevin/shortify/internal/apperr"
	"github.com/forPelevin/shortify/internal/domain/captions"
	"github.com/forPelevin/shortify/internal/types"
)

type Strategy string

const (
	// StrategyGreedy accepts spans by descending confidence.
	StrategyGreedy Strategy = "greedy"
	// StrategyOptimal maximizes total confidence exactly.
	StrategyOptimal Strategy = "optimal"
)

type Config struct {
	MinClipSec            float64  `yaml:"minClipSec" json:"minClipSec"`
	MaxClipSec            float64  `yaml:"maxClipSec" json:"maxClipSec"`
	MaxClipCount          int      `yaml:"maxClipCount" json:"maxClipCount"`
	MinGapBetweenClipsSec float64  `yaml:"minGapBetweenClipsSec" json:"minGapBetweenClipsSec"`
	Strategy              Strategy `yaml:"strategy" json:"strategy"`
}

func DefaultConfig() Config {
	return Config{
		MinClipSec:            20,
		MaxClipSec:            60,
		MaxClipCount:          12,
		MinGapBetweenClipsSec: 2,
		Strategy:              StrategyGreedy,
	}
}

func (c Config) Validate() error {
	if c.MinClipSec <= 0 {
		return apperr.New(apperr.KindInvalidDuration, "min clip must be > 0")
	}
	if c.MaxClipSec <= 0 {
		return apperr.New(apperr.KindInvalidDuration, "max clip must be > 0")
	}
	if c.MinClipSec > c.MaxClipSec {
		return apperr.New(apperr.KindInvalidDuration, "min clip must be <= max clip")
	}
	if c.MaxClipCount <= 0 {
		return apperr.New(apperr.KindInvalidArgument, "max clip count must be > 0")
	}
	if c.MinGapBetweenClipsSec < 0 {
		return apperr.New(apperr.KindInvalidDuration, "gap between clips must be >= 0")
	}
	switch c.Strategy {
	case "", StrategyGreedy, StrategyOptimal:
		return nil
	default:
		return apperr.New(apperr.KindInvalidArgument, "unknown windowing strategy %q", c.Strategy)
	}
}

type candidate struct {
	span types.ScoredSpan
	idx  int
}

// Select turns scored spans into non-overlapping clip windows and attaches
// the caption segments each window covers. Fewer candidates than
// MaxClipCount is not an error.
func Select(spans []types.ScoredSpan, segs []types.CaptionSegment, durationSec float64, cfg Config) ([]types.ClipWindow, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if math.IsNaN(durationSec) || durationSec <= 0 {
		return nil, apperr.New(apperr.KindInvalidDuration, "duration must be > 0, got %v", durationSec)
	}

	cands := make([]candidate, 0, len(spans))
	for i, sp := range spans {
		if c, ok := Clamp(sp, durationSec, cfg.MinClipSec, cfg.MaxClipSec); ok {
			cands = append(cands, candidate{span: c, idx: i})
		}
	}

	var chosen []candidate
	if cfg.Strategy == StrategyOptimal {
		chosen = selectOptimal(cands, cfg.MaxClipCount, cfg.MinGapBetweenClipsSec)
	} else {
		chosen = selectGreedy(cands, cfg.MaxClipCount, cfg.MinGapBetweenClipsSec)
	}

	sort.SliceStable(chosen, func(i, j int) bool { return chosen[i].span.StartSec < chosen[j].span.StartSec })

	out := make([]types.ClipWindow, len(chosen))
	for i, c := range chosen {
		out[i] = types.ClipWindow{
			ID:         fmt.Sprintf("%03d", i+1),
			StartSec:   c.span.StartSec,
			EndSec:     c.span.EndSec,
			Type:       c.span.Type,
			Confidence: c.span.Confidence,
			Summary:    c.span.Summary,
			Source:     c.span.Source,
			Captions:   []types.CaptionSegment{},
		}
	}
	attachCaptions(out, segs)
	return out, nil
}

// Clamp resizes a span symmetrically around its centre into
// [minSec, maxSec] and shifts it to stay inside [0, durationSec]. It fails
// when the timeline is shorter than minSec.
func Clamp(sp types.ScoredSpan, durationSec, minSec, maxSec float64) (types.ScoredSpan, bool) {
	if durationSec < minSec || sp.EndSec <= sp.StartSec {
		return types.ScoredSpan{}, false
	}
	length := sp.EndSec - sp.StartSec
	switch {
	case length < minSec:
		length = minSec
	case length > maxSec:
		length = maxSec
	}
	center := (sp.StartSec + sp.EndSec) / 2
	st, en := center-length/2, center+length/2
	if st < 0 {
		en -= st
		st = 0
	}
	if en > durationSec {
		st -= en - durationSec
		en = durationSec
	}
	if st < 0 {
		st = 0
	}
	sp.StartSec, sp.EndSec = st, en
	return sp, true
}

// Conflicts reports whether [st, en) comes within gap of [os, oe).
func Conflicts(st, en, os, oe, gap float64) bool {
	return st < oe+gap && en > os-gap
}

func selectGreedy(cands []candidate, limit int, gap float64) []candidate {
	sorted := make([]candidate, len(cands))
	copy(sorted, cands)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].span, sorted[j].span
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.StartSec != b.StartSec {
			return a.StartSec < b.StartSec
		}
		return sorted[i].idx < sorted[j].idx
	})

	out := make([]candidate, 0, limit)
	for _, c := range sorted {
		if len(out) >= limit {
			break
		}
		ok := true
		for _, a := range out {
			if Conflicts(c.span.StartSec, c.span.EndSec, a.span.StartSec, a.span.EndSec, gap) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, c)
		}
	}
	return out
}

// A tiny per-clip bonus makes the DP prefer more clips among equal totals,
// matching what greedy would keep.
const clipBonus = 1e-6

// selectOptimal solves weighted interval scheduling with at most limit
// picks: dp[i][k] is the best total over the first i end-sorted intervals
// using at most k of them.
func selectOptimal(cands []candidate, limit int, gap float64) []candidate {
	n := len(cands)
	if n == 0 {
		return nil
	}
	sorted := make([]candidate, n)
	copy(sorted, cands)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].span, sorted[j].span
		if a.EndSec != b.EndSec {
			return a.EndSec < b.EndSec
		}
		if a.StartSec != b.StartSec {
			return a.StartSec < b.StartSec
		}
		return sorted[i].idx < sorted[j].idx
	})

	// prev[i]: count of intervals that may precede interval i.
	prev := make([]int, n)
	for i := range sorted {
		st := sorted[i].span.StartSec
		prev[i] = sort.Search(i, func(j int) bool { return sorted[j].span.EndSec+gap > st })
	}

	if limit > n {
		limit = n
	}
	dp := make([][]float64, n+1)
	take := make([][]bool, n+1)
	for i := range dp {
		dp[i] = make([]float64, limit+1)
		take[i] = make([]bool, limit+1)
	}
	for i := 1; i <= n; i++ {
		w := sorted[i-1].span.Confidence + clipBonus
		for k := 0; k <= limit; k++ {
			dp[i][k] = dp[i-1][k]
			if k == 0 {
				continue
			}
			if v := dp[prev[i-1]][k-1] + w; v > dp[i][k] {
				dp[i][k] = v
				take[i][k] = true
			}
		}
	}

	var out []candidate
	for i, k := n, limit; i > 0 && k > 0; {
		if take[i][k] {
			out = append(out, sorted[i-1])
			i = prev[i-1]
			k--
			continue
		}
		i--
	}
	return out
}

// attachCaptions gives every caption segment to the one window it overlaps
// most (earlier window on ties), clipped to that window's bounds.
func attachCaptions(ws []types.ClipWindow, segs []types.CaptionSegment) {
	for _, seg := range segs {
		best, bestOverlap := -1, 0.0
		for i, w := range ws {
			if ov := overlap(seg.StartSec, seg.EndSec, w.StartSec, w.EndSec); ov > bestOverlap {
				best, bestOverlap = i, ov
			}
		}
		if best < 0 {
			continue
		}
		if c, ok := clipSegment(seg, ws[best].StartSec, ws[best].EndSec); ok {
			ws[best].Captions = append(ws[best].Captions, c)
		}
	}
}

func clipSegment(seg types.CaptionSegment, st, en float64) (types.CaptionSegment, bool) {
	words := make([]types.Word, 0, len(seg.Words))
	for _, w := range seg.Words {
		ws, we := math.Max(w.StartSec, st), math.Min(w.EndSec, en)
		if we <= ws {
			continue
		}
		words = append(words, types.Word{Text: w.Text, StartSec: ws, EndSec: we})
	}
	if len(words) == 0 {
		return types.CaptionSegment{}, false
	}
	return types.CaptionSegment{
		StartSec: math.Max(seg.StartSec, st),
		EndSec:   math.Min(seg.EndSec, en),
		Text:     captions.JoinText(words),
		Words:    words,
		Style:    seg.Style,
	}, true
}

func overlap(a0, a1, b0, b1 float64) float64 {
	return math.Max(0, math.Min(a1, b1)-math.Max(a0, b0))
}
