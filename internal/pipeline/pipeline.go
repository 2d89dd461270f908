package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/forPelevin/shortify/internal/config"
	"github.com/forPelevin/shortify/internal/domain/style"
	"github.com/forPelevin/shortify/internal/logger"
	"github.com/forPelevin/shortify/internal/ports"
	"github.com/forPelevin/shortify/internal/ports/adapters/artifacts"
	"github.com/forPelevin/shortify/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/shortify/internal/ports/adapters/gcpspeech"
	"github.com/forPelevin/shortify/internal/ports/adapters/openrouter"
	"github.com/forPelevin/shortify/internal/ports/adapters/whispercpp"
	"github.com/forPelevin/shortify/internal/types"
	"github.com/forPelevin/shortify/internal/usecase"
)

const (
	ASRWhisperCpp = "whispercpp"
	ASRGCP        = "gcp"
)

// Providers selects and configures the external adapters.
type Providers struct {
	FFmpegPath  string
	FFprobePath string

	// ASR is ASRWhisperCpp (default) or ASRGCP.
	ASR          string
	WhisperBin   string
	WhisperModel string
	GCP          gcpspeech.Config

	OpenRouterAPIKey       string
	OpenRouterModel        string
	OpenRouterBaseURL      string
	OpenRouterAllowedHosts []string
}

// Validate checks provider settings. The ASR name is always checked; the
// whisper model path only when needModel is set, since services that
// take transcript-only jobs never run whisper.cpp.
func (p Providers) Validate(needModel bool, engine config.Engine) error {
	switch p.ASR {
	case "", ASRWhisperCpp:
		if needModel && p.WhisperModel == "" {
			return fmt.Errorf("whisper model path is required")
		}
	case ASRGCP:
	default:
		return fmt.Errorf("unknown SHORTIFY_ASR %q (want %s or %s)", p.ASR, ASRWhisperCpp, ASRGCP)
	}
	if p.OpenRouterAPIKey == "" {
		if engine.Highlights.FallbackSpanCount <= 0 {
			return errors.New("OPENROUTER_API_KEY is required (set it in .env) unless highlights.fallbackSpanCount is enabled")
		}
		return nil
	}
	return openrouter.ValidateBaseURL(p.OpenRouterBaseURL, p.OpenRouterAllowedHosts)
}

// Adapters is the set of ports built from Providers. Close releases
// provider clients.
type Adapters struct {
	Video       ports.VideoTool
	Transcriber ports.Transcriber
	Analyzer    ports.ContentAnalyzer
	closers     []func() error
}

func (a *Adapters) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

func BuildAdapters(ctx context.Context, p Providers, engine config.Engine, log *logger.Logger) (*Adapters, error) {
	a := &Adapters{Video: ffmpeg.New(p.FFmpegPath, p.FFprobePath, log)}

	switch p.ASR {
	case ASRGCP:
		g, err := gcpspeech.New(ctx, p.GCP, log)
		if err != nil {
			return nil, err
		}
		a.Transcriber = g
		a.closers = append(a.closers, g.Close)
	default:
		a.Transcriber = whispercpp.New(p.WhisperBin, p.WhisperModel, log)
	}

	if p.OpenRouterAPIKey != "" {
		a.Analyzer = openrouter.New(p.OpenRouterAPIKey, p.OpenRouterModel, p.OpenRouterBaseURL, openrouter.Options{
			MinClip:          types.Dur(engine.Windows.MinClipSec),
			MaxClip:          types.Dur(engine.Windows.MaxClipSec),
			MaxSpans:         engine.Analyzer.MaxSpans,
			PromptCandidates: engine.Analyzer.PromptCandidates,
		}, log)
	}
	return a, nil
}

// Config drives a single local run.
type Config struct {
	// InputMP4 or TranscriptPath must be set. With a transcript the
	// transcription stage is skipped.
	InputMP4       string
	TranscriptPath string
	OutDir         string
	Render         bool
	BurnSubtitles  bool
	Style          types.StyleRequest

	// CacheDir is the base directory for local artifacts (audio, transcripts, etc.).
	// If empty, defaults to ".cache".
	CacheDir string

	Engine    config.Engine
	Providers Providers
	Log       *logger.Logger
}

func (c Config) Validate() error {
	if c.InputMP4 == "" && c.TranscriptPath == "" {
		return errors.New("input is empty")
	}
	if c.InputMP4 != "" {
		if _, err := os.Stat(c.InputMP4); err != nil {
			return fmt.Errorf("stat input: %w", err)
		}
	}
	if c.Render && c.InputMP4 == "" {
		return errors.New("render needs an input video")
	}
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if _, err := style.Resolve(c.Style); err != nil && c.Style != (types.StyleRequest{}) {
		return err
	}
	return c.Providers.Validate(c.TranscriptPath == "", c.Engine)
}

// Run executes one job in-process and writes its outputs under a fresh
// run directory. It returns the run directory.
func Run(ctx context.Context, cfg Config) (usecase.Result, string, error) {
	log := logger.OrNop(cfg.Log)

	var tr *types.Transcript
	if cfg.TranscriptPath != "" {
		t, err := LoadTranscript(cfg.TranscriptPath)
		if err != nil {
			return usecase.Result{}, "", err
		}
		tr = &t
	}

	adapters, err := BuildAdapters(ctx, cfg.Providers, cfg.Engine, log)
	if err != nil {
		return usecase.Result{}, "", err
	}
	defer func() {
		if err := adapters.Close(); err != nil {
			log.Warn("closing adapters", "error", err)
		}
	}()

	source := cfg.InputMP4
	if source == "" {
		source = cfg.TranscriptPath
	}
	jobID := hash(source)
	baseCache := cfg.CacheDir
	if baseCache == "" {
		baseCache = ".cache"
	}
	cacheDir := filepath.Join(baseCache, "runs", jobID)
	log.Info("preparing workspace", "cache", cacheDir)
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return usecase.Result{}, "", err
	}

	outDir := cfg.OutDir
	if outDir == "" {
		outDir = "out"
	}
	runOutDir := buildRunOutDir(outDir, source, time.Now().UTC())
	if err := os.MkdirAll(runOutDir, 0o755); err != nil {
		return usecase.Result{}, "", err
	}
	log.Info("output run dir", "dir", runOutDir)

	styleReq := cfg.Style
	if styleReq == (types.StyleRequest{}) {
		styleReq = cfg.Engine.Style
	}

	uc := usecase.New(usecase.Deps{
		Video:       adapters.Video,
		Transcriber: adapters.Transcriber,
		Analyzer:    adapters.Analyzer,
		Artifacts:   artifacts.NewLocal(runOutDir),
		Log:         log,
	}, cfg.Engine.Usecase())

	res, err := uc.Run(ctx, usecase.Input{
		JobID:         jobID,
		InputMP4:      cfg.InputMP4,
		Transcript:    tr,
		Render:        cfg.Render,
		BurnSubtitles: cfg.BurnSubtitles,
		Style:         styleReq,
		CacheDir:      cacheDir,
		OutDir:        runOutDir,
		OnStage: func(s usecase.Stage) {
			log.Debug("stage", "stage", string(s))
		},
	})
	if err != nil {
		return usecase.Result{}, runOutDir, err
	}
	log.Info("manifest written", "clips", len(res.Manifest.Clips), "path", res.ManifestURI)
	return res, runOutDir, nil
}

// LoadTranscript reads a JSON transcript ({"text", "words", "durationSec"}).
func LoadTranscript(path string) (types.Transcript, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("read transcript: %w", err)
	}
	var tr types.Transcript
	if err := json.Unmarshal(b, &tr); err != nil {
		return types.Transcript{}, fmt.Errorf("decode transcript %s: %w", path, err)
	}
	return tr, nil
}

func buildRunOutDir(outRoot, inputPath string, now time.Time) string {
	name := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	name = normalizePathSegment(name)
	if name == "" {
		name = "input"
	}
	ts := now.UTC().Format("20060102-150405Z")
	runSeed := fmt.Sprintf("%s|%d", inputPath, now.UTC().UnixNano())
	suffix := hash(runSeed)[:6]
	return filepath.Join(outRoot, fmt.Sprintf("%s-%s-%s", name, ts, suffix))
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

// ensure adapters implement ports
var (
	_ ports.VideoTool       = (*ffmpeg.Adapter)(nil)
	_ ports.Transcriber     = (*whispercpp.Adapter)(nil)
	_ ports.Transcriber     = (*gcpspeech.Adapter)(nil)
	_ ports.ContentAnalyzer = (*openrouter.Adapter)(nil)
)
