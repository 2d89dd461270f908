package types

import "time"

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further transitions are expected.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobSucceeded, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// StyleOverrides are applied on top of a preset. Nil fields keep the
// preset value.
type StyleOverrides struct {
	FontSizePx      *int    `json:"fontSizePx,omitempty" yaml:"fontSizePx,omitempty"`
	Color           *string `json:"color,omitempty" yaml:"color,omitempty"`
	BackgroundColor *string `json:"backgroundColor,omitempty" yaml:"backgroundColor,omitempty"`
	FontWeight      *int    `json:"fontWeight,omitempty" yaml:"fontWeight,omitempty"`
	Animation       *string `json:"animation,omitempty" yaml:"animation,omitempty"`
	Position        *string `json:"position,omitempty" yaml:"position,omitempty"`
}

type StyleRequest struct {
	Preset    string         `json:"preset" yaml:"preset"`
	Animation string         `json:"animation" yaml:"animation"`
	Position  string         `json:"position" yaml:"position"`
	Overrides StyleOverrides `json:"overrides" yaml:"overrides"`
}

// JobRequest describes one video-processing job. Either InputMP4 or
// Transcript must be set; with a transcript the transcription stage is
// skipped.
type JobRequest struct {
	InputMP4   string       `json:"input,omitempty"`
	Transcript *Transcript  `json:"transcript,omitempty"`
	Render     bool         `json:"render"`
	Style      StyleRequest `json:"style"`
}

type JobResult struct {
	Timing   TimingSource     `json:"timing"`
	Captions []CaptionSegment `json:"captions"`
	Spans    []ScoredSpan     `json:"spans"`
	Clips    []ClipWindow     `json:"clips"`
	Manifest string           `json:"manifest,omitempty"`
}

// JobRecord is replaced as a whole on every transition.
type JobRecord struct {
	ID              string     `json:"id" bson:"_id"`
	Status          JobStatus  `json:"status" bson:"status"`
	Stage           string     `json:"stage,omitempty" bson:"stage"`
	CancelRequested bool       `json:"cancelRequested,omitempty" bson:"cancel_requested"`
	Request         JobRequest `json:"request" bson:"request"`
	Result          *JobResult `json:"result,omitempty" bson:"result,omitempty"`
	ErrorKind       string     `json:"errorKind,omitempty" bson:"error_kind,omitempty"`
	Error           string     `json:"error,omitempty" bson:"error,omitempty"`
	CreatedAt       time.Time  `json:"createdAt" bson:"created_at"`
	UpdatedAt       time.Time  `json:"updatedAt" bson:"updated_at"`
}
