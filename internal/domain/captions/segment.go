package captions

import (
	"strings"
	"unicode/utf8"

	"github.com/forPelevin/shortify/internal/apperr"
	"github.com/forPelevin/shortify/internal/types"
)

// Config bounds a single caption segment.
type Config struct {
	MaxSegmentChars       int     `yaml:"maxSegmentChars" json:"maxSegmentChars"`
	MaxSegmentWords       int     `yaml:"maxSegmentWords" json:"maxSegmentWords"`
	MaxSegmentDurationSec float64 `yaml:"maxSegmentDurationSec" json:"maxSegmentDurationSec"`
	MinGapSec             float64 `yaml:"minGapSec" json:"minGapSec"`
	// BreakOnSentenceEnd closes a segment right after terminal punctuation.
	BreakOnSentenceEnd bool `yaml:"breakOnSentenceEnd" json:"breakOnSentenceEnd"`
}

// DefaultConfig keeps captions readable on vertical-video layouts.
func DefaultConfig() Config {
	return Config{
		MaxSegmentChars:       42,
		MaxSegmentWords:       9,
		MaxSegmentDurationSec: 5,
	}
}

func (c Config) Validate() error {
	if c.MaxSegmentChars <= 0 {
		return apperr.New(apperr.KindInvalidArgument, "maxSegmentChars must be > 0")
	}
	if c.MaxSegmentWords <= 0 {
		return apperr.New(apperr.KindInvalidArgument, "maxSegmentWords must be > 0")
	}
	if c.MaxSegmentDurationSec <= 0 {
		return apperr.New(apperr.KindInvalidArgument, "maxSegmentDurationSec must be > 0")
	}
	if c.MinGapSec < 0 {
		return apperr.New(apperr.KindInvalidArgument, "minGapSec must be >= 0")
	}
	return nil
}

// float slack for duration comparisons on summed timings
const eps = 1e-9

// Segment groups words greedily into caption segments. Every input word
// lands in exactly one segment, in order; a word that alone exceeds the
// character budget still gets its own segment.
func Segment(words []types.Word, cfg Config) ([]types.CaptionSegment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(words) == 0 {
		return nil, apperr.New(apperr.KindEmptyTranscript, "no words to segment")
	}

	var (
		out    []types.CaptionSegment
		cur    []types.Word
		curLen int
	)
	for _, w := range words {
		wl := utf8.RuneCountInString(w.Text)
		if len(cur) > 0 {
			fits := curLen+1+wl <= cfg.MaxSegmentChars &&
				len(cur) < cfg.MaxSegmentWords &&
				w.EndSec-cur[0].StartSec <= cfg.MaxSegmentDurationSec+eps
			if !fits || (cfg.BreakOnSentenceEnd && EndsSentence(cur[len(cur)-1].Text)) {
				out = append(out, build(cur))
				cur = nil
				curLen = 0
			}
		}
		if len(cur) > 0 {
			curLen++
		}
		cur = append(cur, w)
		curLen += wl
	}
	out = append(out, build(cur))

	applyMinGap(out, cfg.MinGapSec)
	return out, nil
}

func build(ws []types.Word) types.CaptionSegment {
	words := make([]types.Word, len(ws))
	copy(words, ws)
	return types.CaptionSegment{
		StartSec: words[0].StartSec,
		EndSec:   words[len(words)-1].EndSec,
		Text:     JoinText(words),
		Words:    words,
	}
}

// applyMinGap pulls a segment's display end back so the next caption does
// not appear flush against it. Word timings stay untouched.
func applyMinGap(segs []types.CaptionSegment, minGap float64) {
	if minGap <= 0 {
		return
	}
	for i := 0; i+1 < len(segs); i++ {
		next := segs[i+1].StartSec
		if next-segs[i].EndSec >= minGap {
			continue
		}
		if end := next - minGap; end > segs[i].StartSec {
			segs[i].EndSec = end
		}
	}
}

// JoinText renders words as caption text.
func JoinText(words []types.Word) string {
	parts := make([]string, 0, len(words))
	for _, w := range words {
		if t := strings.TrimSpace(w.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// Flatten returns the word stream the segments were built from.
func Flatten(segs []types.CaptionSegment) []types.Word {
	var out []types.Word
	for _, s := range segs {
		out = append(out, s.Words...)
	}
	return out
}

// EndsSentence reports whether a word closes a sentence, ignoring
// trailing quotes and brackets.
func EndsSentence(s string) bool {
	s = strings.TrimRight(strings.TrimSpace(s), `"'`+"`"+")]}")
	if s == "" {
		return false
	}
	switch s[len(s)-1] {
	case '.', '!', '?':
		return true
	default:
		return false
	}
}
