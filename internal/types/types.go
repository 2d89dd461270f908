package types

import "time"

// Transcript is what a transcription provider hands back. Words is empty
// when the provider has no word-level timing.
type Transcript struct {
	Text        string  `json:"text"`
	Words       []Word  `json:"words,omitempty"`
	DurationSec float64 `json:"durationSec"`
}

type Word struct {
	Text     string  `json:"text"`
	StartSec float64 `json:"startSec"`
	EndSec   float64 `json:"endSec"`
}

type TimingSource string

const (
	TimingASR       TimingSource = "asr"
	TimingHeuristic TimingSource = "heuristic"
)

type CaptionSegment struct {
	StartSec float64         `json:"startSec"`
	EndSec   float64         `json:"endSec"`
	Text     string          `json:"text"`
	Words    []Word          `json:"words"`
	Style    StyleDescriptor `json:"style"`
}

type SpanType string

const (
	SpanHook       SpanType = "hook"
	SpanHighlight  SpanType = "highlight"
	SpanConclusion SpanType = "conclusion"
)

type SpanSource string

const (
	SourceAI        SpanSource = "ai"
	SourceHeuristic SpanSource = "heuristic"
)

type ScoredSpan struct {
	StartSec   float64    `json:"startSec"`
	EndSec     float64    `json:"endSec"`
	Type       SpanType   `json:"type"`
	Confidence float64    `json:"confidence"`
	Summary    string     `json:"summary"`
	Source     SpanSource `json:"source"`
}

type ClipWindow struct {
	ID         string           `json:"id"`
	StartSec   float64          `json:"startSec"`
	EndSec     float64          `json:"endSec"`
	Type       SpanType         `json:"type"`
	Confidence float64          `json:"confidence"`
	Summary    string           `json:"summary,omitempty"`
	Source     SpanSource       `json:"source,omitempty"`
	Captions   []CaptionSegment `json:"captions"`
}

// Duration returns the window length.
func (c ClipWindow) Duration() time.Duration {
	return Dur(c.EndSec - c.StartSec)
}

// StyleDescriptor is a resolved, renderable caption style. Values are
// copied, never shared.
type StyleDescriptor struct {
	FontSizePx      int    `json:"fontSizePx"`
	Color           string `json:"color"`
	BackgroundColor string `json:"backgroundColor"`
	FontWeight      int    `json:"fontWeight"`
	Animation       string `json:"animation"`
	Position        string `json:"position"`
}

type Manifest struct {
	JobID   string          `json:"job_id,omitempty"`
	Input   string          `json:"input"`
	Timing  TimingSource    `json:"timing"`
	Style   StyleDescriptor `json:"style"`
	Clips   []ManifestClip  `json:"clips"`
	Windows []ClipWindow    `json:"windows"`
}

type ManifestClip struct {
	ID         string     `json:"id"`
	StartSec   float64    `json:"start_sec"`
	EndSec     float64    `json:"end_sec"`
	Type       SpanType   `json:"type"`
	Confidence float64    `json:"confidence"`
	Source     SpanSource `json:"source"`
	Text       string     `json:"text"`
	Summary    string     `json:"summary"`
	File       string     `json:"file"`
	Subtitles  string     `json:"subtitles"`
}

// Dur converts seconds to a time.Duration.
func Dur(sec float64) time.Duration { return time.Duration(sec * float64(time.Second)) }
