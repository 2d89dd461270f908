package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/forPelevin/shortify/internal/apperr"
	"github.com/forPelevin/shortify/internal/domain/captions"
	"github.com/forPelevin/shortify/internal/domain/highlights"
	"github.com/forPelevin/shortify/internal/domain/style"
	"github.com/forPelevin/shortify/internal/domain/subtitles"
	"github.com/forPelevin/shortify/internal/domain/tokenize"
	"github.com/forPelevin/shortify/internal/domain/windows"
	"github.com/forPelevin/shortify/internal/logger"
	"github.com/forPelevin/shortify/internal/ports"
	"github.com/forPelevin/shortify/internal/types"
)

type Stage string

const (
	StageTranscribe Stage = "transcribe"
	StageTokenize   Stage = "tokenize"
	StageSegment    Stage = "segment"
	StageAnalyze    Stage = "analyze"
	StageWindow     Stage = "window"
	StageStyle      Stage = "style"
	StageRender     Stage = "render"
	StagePublish    Stage = "publish"
)

type Deps struct {
	// Video is only needed when transcribing from a media file or rendering.
	Video       ports.VideoTool
	Transcriber ports.Transcriber
	// Analyzer may be nil; the scorer then relies on its fallback.
	Analyzer  ports.ContentAnalyzer
	Artifacts ports.ArtifactStore
	Log       *logger.Logger
}

type RetryConfig struct {
	MaxTries        uint          `yaml:"maxTries" json:"maxTries"`
	InitialInterval time.Duration `yaml:"initialInterval" json:"initialInterval"`
	MaxInterval     time.Duration `yaml:"maxInterval" json:"maxInterval"`
}

func DefaultRetry() RetryConfig {
	return RetryConfig{MaxTries: 3, InitialInterval: 500 * time.Millisecond, MaxInterval: 5 * time.Second}
}

type Config struct {
	Tokenize          tokenize.Options
	Captions          captions.Config
	Highlights        highlights.Config
	Windows           windows.Config
	Retry             RetryConfig
	RenderConcurrency int
}

func DefaultConfig() Config {
	return Config{
		Captions:          captions.DefaultConfig(),
		Highlights:        highlights.DefaultConfig(),
		Windows:           windows.DefaultConfig(),
		Retry:             DefaultRetry(),
		RenderConcurrency: 2,
	}
}

type Usecase struct {
	d   Deps
	cfg Config
	log *logger.Logger
}

func New(d Deps, cfg Config) *Usecase {
	if cfg.RenderConcurrency <= 0 {
		cfg.RenderConcurrency = 1
	}
	if cfg.Retry.MaxTries == 0 {
		cfg.Retry.MaxTries = 1
	}
	return &Usecase{d: d, cfg: cfg, log: logger.OrNop(d.Log).With("service", "Usecase")}
}

type Input struct {
	JobID    string
	InputMP4 string
	// Transcript skips the transcribe stage when set.
	Transcript    *types.Transcript
	Render        bool
	BurnSubtitles bool
	Style         types.StyleRequest

	CacheDir string
	OutDir   string
	// ArtifactPrefix is prepended to every published key.
	ArtifactPrefix string

	// Checkpoint runs before every stage. A non-nil error stops the run
	// before the stage starts.
	Checkpoint func(ctx context.Context, stage Stage) error
	OnStage    func(stage Stage)
}

type Result struct {
	Timing      types.TimingSource
	Captions    []types.CaptionSegment
	Spans       []types.ScoredSpan
	Clips       []types.ClipWindow
	Manifest    types.Manifest
	ManifestURI string
}

func (r Result) JobResult() *types.JobResult {
	return &types.JobResult{
		Timing:   r.Timing,
		Captions: r.Captions,
		Spans:    r.Spans,
		Clips:    r.Clips,
		Manifest: r.ManifestURI,
	}
}

func (u *Usecase) Run(ctx context.Context, in Input) (Result, error) {
	log := u.log.With("job_id", in.JobID)
	enter := func(s Stage) error {
		if err := ctx.Err(); err != nil {
			return apperr.Wrap(apperr.KindCancelled, err, "before %s", s)
		}
		if in.Checkpoint != nil {
			if err := in.Checkpoint(ctx, s); err != nil {
				if apperr.KindOf(err) == "" {
					return apperr.Wrap(apperr.KindCancelled, err, "before %s", s)
				}
				return err
			}
		}
		if in.OnStage != nil {
			in.OnStage(s)
		}
		log.Info("stage started", "stage", string(s))
		return nil
	}

	tr, err := u.transcript(ctx, in, enter, log)
	if err != nil {
		return Result{}, err
	}

	if err := enter(StageTokenize); err != nil {
		return Result{}, err
	}
	tok, err := tokenize.Tokenize(tr, u.cfg.Tokenize)
	if err != nil {
		return Result{}, err
	}
	log.Info("tokenized", "words", len(tok.Words), "timing", string(tok.Source), "duration_sec", tok.DurationSec)

	if err := enter(StageSegment); err != nil {
		return Result{}, err
	}
	segs, err := captions.Segment(tok.Words, u.cfg.Captions)
	if err != nil {
		return Result{}, err
	}

	if err := enter(StageAnalyze); err != nil {
		return Result{}, err
	}
	var analyzer highlights.Analyzer
	if u.d.Analyzer != nil {
		analyzer = u.d.Analyzer
	}
	scorer := highlights.NewScorer(analyzer, u.cfg.Highlights)
	spans, err := retry(ctx, u.cfg.Retry, log, "analyze", func() ([]types.ScoredSpan, error) {
		return scorer.Score(ctx, tr, tok.Words, tok.DurationSec)
	})
	if err != nil {
		return Result{}, err
	}
	log.Info("spans scored", "count", len(spans))

	if err := enter(StageWindow); err != nil {
		return Result{}, err
	}
	clips, err := windows.Select(spans, segs, tok.DurationSec, u.cfg.Windows)
	if err != nil {
		return Result{}, err
	}

	if err := enter(StageStyle); err != nil {
		return Result{}, err
	}
	desc, err := style.Resolve(in.Style)
	if err != nil {
		return Result{}, err
	}
	clips = style.Apply(clips, desc)
	segs = style.ApplySegments(segs, desc)

	manifest := types.Manifest{
		JobID:   in.JobID,
		Input:   in.InputMP4,
		Timing:  tok.Source,
		Style:   desc,
		Clips:   manifestClips(clips),
		Windows: clips,
	}

	if in.Render && len(clips) > 0 {
		if err := enter(StageRender); err != nil {
			return Result{}, err
		}
		if err := u.render(ctx, in, clips, desc, manifest.Clips, log); err != nil {
			return Result{}, err
		}
	}

	if err := enter(StagePublish); err != nil {
		return Result{}, err
	}
	uri, err := u.publish(ctx, in, manifest)
	if err != nil {
		return Result{}, err
	}
	log.Info("job finished", "clips", len(clips), "manifest", uri)

	return Result{
		Timing:      tok.Source,
		Captions:    segs,
		Spans:       spans,
		Clips:       clips,
		Manifest:    manifest,
		ManifestURI: uri,
	}, nil
}

func (u *Usecase) transcript(ctx context.Context, in Input, enter func(Stage) error, log *logger.Logger) (types.Transcript, error) {
	if in.Transcript != nil {
		return *in.Transcript, nil
	}
	if err := enter(StageTranscribe); err != nil {
		return types.Transcript{}, err
	}
	if in.InputMP4 == "" {
		return types.Transcript{}, apperr.New(apperr.KindInvalidArgument, "either an input video or a transcript is required")
	}
	if u.d.Video == nil || u.d.Transcriber == nil {
		return types.Transcript{}, apperr.New(apperr.KindInvalidArgument, "transcription is not configured")
	}
	if err := os.MkdirAll(in.CacheDir, 0o755); err != nil {
		return types.Transcript{}, err
	}

	wav := filepath.Join(in.CacheDir, "audio_16k_mono.wav")
	if _, err := os.Stat(wav); err != nil {
		log.Info("extracting audio", "wav", wav)
		if err := u.d.Video.ExtractAudioMono16k(ctx, in.InputMP4, wav); err != nil {
			return types.Transcript{}, err
		}
	} else {
		log.Info("using cached audio", "wav", wav)
	}

	tr, err := retry(ctx, u.cfg.Retry, log, "transcribe", func() (types.Transcript, error) {
		return u.d.Transcriber.Transcribe(ctx, wav, in.CacheDir)
	})
	if err != nil {
		return types.Transcript{}, err
	}
	if tr.DurationSec <= 0 {
		d, err := u.d.Video.ProbeDuration(ctx, in.InputMP4)
		if err != nil {
			return types.Transcript{}, err
		}
		tr.DurationSec = d.Seconds()
	}
	return tr, nil
}

// render writes each clip's subtitles and video. mc is filled in place;
// goroutines touch disjoint indexes only.
func (u *Usecase) render(ctx context.Context, in Input, clips []types.ClipWindow, desc types.StyleDescriptor, mc []types.ManifestClip, log *logger.Logger) error {
	if in.InputMP4 == "" || u.d.Video == nil {
		return apperr.New(apperr.KindInvalidArgument, "rendering needs an input video")
	}
	clipsDir := filepath.Join(in.OutDir, "clips")
	subsDir := filepath.Join(in.OutDir, "subtitles")
	if err := os.MkdirAll(clipsDir, 0o755); err != nil {
		return err
	}
	if in.BurnSubtitles {
		if err := os.MkdirAll(subsDir, 0o755); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.cfg.RenderConcurrency)
	for i, c := range clips {
		g.Go(func() error {
			outMP4 := filepath.Join(clipsDir, c.ID+".mp4")
			var assPath string
			if in.BurnSubtitles {
				assPath = filepath.Join(subsDir, c.ID+".ass")
				if err := os.WriteFile(assPath, []byte(subtitles.RenderASS(c, desc)), 0o644); err != nil {
					return fmt.Errorf("write ass %s: %w", c.ID, err)
				}
				srtPath := filepath.Join(subsDir, c.ID+".srt")
				if err := os.WriteFile(srtPath, []byte(subtitles.RenderSRT(c)), 0o644); err != nil {
					return fmt.Errorf("write srt %s: %w", c.ID, err)
				}
				mc[i].Subtitles = path.Join("subtitles", c.ID+".ass")
			}
			log.Info("rendering clip", "clip", c.ID, "start_sec", c.StartSec, "end_sec", c.EndSec)
			if err := u.d.Video.RenderClip(gctx, in.InputMP4, types.Dur(c.StartSec), types.Dur(c.EndSec), outMP4, assPath); err != nil {
				return fmt.Errorf("render clip %s: %w", c.ID, err)
			}
			mc[i].File = path.Join("clips", c.ID+".mp4")
			return nil
		})
	}
	return g.Wait()
}

// publish uploads rendered files and the manifest. Manifest paths stay
// relative to the job so the artifact layout is portable.
func (u *Usecase) publish(ctx context.Context, in Input, m types.Manifest) (string, error) {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	if u.d.Artifacts == nil {
		if in.OutDir == "" {
			return "", nil
		}
		p := filepath.Join(in.OutDir, "manifest.json")
		if err := os.MkdirAll(in.OutDir, 0o755); err != nil {
			return "", err
		}
		return p, os.WriteFile(p, b, 0o644)
	}

	for _, c := range m.Clips {
		for _, rel := range []string{c.File, c.Subtitles} {
			if rel == "" {
				continue
			}
			if _, err := u.d.Artifacts.PutFile(ctx, path.Join(in.ArtifactPrefix, rel), filepath.Join(in.OutDir, filepath.FromSlash(rel))); err != nil {
				return "", fmt.Errorf("publish %s: %w", rel, err)
			}
		}
	}
	return u.d.Artifacts.PutBytes(ctx, path.Join(in.ArtifactPrefix, "manifest.json"), b, "application/json")
}

func manifestClips(clips []types.ClipWindow) []types.ManifestClip {
	out := make([]types.ManifestClip, 0, len(clips))
	for _, c := range clips {
		var words []types.Word
		for _, s := range c.Captions {
			words = append(words, s.Words...)
		}
		out = append(out, types.ManifestClip{
			ID:         c.ID,
			StartSec:   c.StartSec,
			EndSec:     c.EndSec,
			Type:       c.Type,
			Confidence: c.Confidence,
			Source:     c.Source,
			Text:       captions.JoinText(words),
			Summary:    c.Summary,
		})
	}
	return out
}

// retry repeats fn while it fails with a retryable provider error.
func retry[T any](ctx context.Context, rc RetryConfig, log *logger.Logger, op string, fn func() (T, error)) (T, error) {
	eb := backoff.NewExponentialBackOff()
	if rc.InitialInterval > 0 {
		eb.InitialInterval = rc.InitialInterval
	}
	if rc.MaxInterval > 0 {
		eb.MaxInterval = rc.MaxInterval
	}
	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if !apperr.Retryable(err) {
			return v, backoff.Permanent(err)
		}
		log.Warn("provider call failed", "op", op, "attempt", attempt, "error", err)
		return v, err
	}, backoff.WithBackOff(eb), backoff.WithMaxTries(rc.MaxTries))
}
