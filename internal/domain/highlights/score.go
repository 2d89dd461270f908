package highlights

import (
	"regexp"
	"strings"
)

// Signals is a cheap lexical pre-rank of a transcript window, each part in
// [0, 10]. It only orders candidates for the analyzer prompt.
type Signals struct {
	Info float64
	Hook float64
}

type cue struct {
	re     *regexp.Regexp
	weight float64
	// once counts a match at most one time.
	once bool
}

var (
	infoCues = []cue{
		{re: regexp.MustCompile(`\b\d+(?:[.,]\d+)?%?`), weight: 0.4},
		{re: regexp.MustCompile(`(?i)\b(how\s+to|step\s+\d+|first|second|third|do\s+this|because|the\s+reason)\b`), weight: 1.2, once: true},
	}
	hookCues = []cue{
		{re: regexp.MustCompile(`(?i)\b(important|key|secret|mistake|never|always|here\s+is\s+why|remember|imagine|what\s+if|nobody|truth)\b`), weight: 0.9},
		{re: regexp.MustCompile(`(?i)\bstep\s+\d+\b`), weight: 0.4},
		{re: regexp.MustCompile(`\?`), weight: 0.7},
		{re: regexp.MustCompile(`!`), weight: 0.3},
	}
)

// lengthPenalty slightly favours tighter windows with the same cues.
const lengthPenalty = 0.0006

// Score computes the lexical signals of text.
func Score(text string) Signals {
	t := strings.TrimSpace(text)
	if t == "" {
		return Signals{}
	}
	info := sumCues(infoCues, t) - lengthPenalty*float64(len([]rune(t)))
	return Signals{
		Info: clamp(info, 0, 10),
		Hook: clamp(sumCues(hookCues, t), 0, 10),
	}
}

// Total is the combined pre-rank.
func (s Signals) Total() float64 { return s.Info + s.Hook }

func sumCues(cues []cue, text string) float64 {
	var total float64
	for _, c := range cues {
		if c.once {
			if c.re.MatchString(text) {
				total += c.weight
			}
			continue
		}
		total += float64(len(c.re.FindAllStringIndex(text, -1))) * c.weight
	}
	return total
}

func clamp(x, lo, hi float64) float64 {
	return min(max(x, lo), hi)
}
