package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/forPelevin/shortify/internal/apperr"
	"github.com/forPelevin/shortify/internal/domain/captions"
	"github.com/forPelevin/shortify/internal/domain/highlights"
	"github.com/forPelevin/shortify/internal/domain/style"
	"github.com/forPelevin/shortify/internal/domain/tokenize"
	"github.com/forPelevin/shortify/internal/domain/windows"
	"github.com/forPelevin/shortify/internal/types"
	"github.com/forPelevin/shortify/internal/usecase"
)

// Engine holds the tunables of the caption and clip engine. Zero-valued
// fields in a YAML file keep their defaults.
type Engine struct {
	Tokenize          tokenize.Options    `yaml:"tokenize"`
	Captions          captions.Config     `yaml:"captions"`
	Highlights        highlights.Config   `yaml:"highlights"`
	Windows           windows.Config      `yaml:"windows"`
	Style             types.StyleRequest  `yaml:"style"`
	Retry             usecase.RetryConfig `yaml:"retry"`
	RenderConcurrency int                 `yaml:"renderConcurrency"`
	Analyzer          Analyzer            `yaml:"analyzer"`
}

type Analyzer struct {
	MaxSpans         int `yaml:"maxSpans"`
	PromptCandidates int `yaml:"promptCandidates"`
}

func Default() Engine {
	uc := usecase.DefaultConfig()
	return Engine{
		Tokenize:          uc.Tokenize,
		Captions:          uc.Captions,
		Highlights:        uc.Highlights,
		Windows:           uc.Windows,
		Style:             types.StyleRequest{Preset: style.DefaultPreset},
		Retry:             uc.Retry,
		RenderConcurrency: uc.RenderConcurrency,
		Analyzer:          Analyzer{MaxSpans: 12, PromptCandidates: 80},
	}
}

// Load reads a YAML engine config on top of Default. An empty path
// returns the defaults. Unknown keys are rejected.
func Load(path string) (Engine, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Engine{}, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Engine{}, apperr.Wrap(apperr.KindInvalidArgument, err, "parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return Engine{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Engine) Validate() error {
	if err := c.Captions.Validate(); err != nil {
		return err
	}
	if err := c.Windows.Validate(); err != nil {
		return err
	}
	if c.Highlights.FallbackSpanCount < 0 {
		return apperr.New(apperr.KindInvalidArgument, "highlights.fallbackSpanCount must be >= 0")
	}
	if j := c.Highlights.DedupeJaccard; j <= 0 || j > 1 {
		return apperr.New(apperr.KindInvalidArgument, "highlights.dedupeJaccard must be in (0, 1], got %v", j)
	}
	if c.Tokenize.BaseMs < 0 || c.Tokenize.PerCharMs < 0 {
		return apperr.New(apperr.KindInvalidArgument, "tokenize weights must be >= 0")
	}
	if c.RenderConcurrency <= 0 {
		return apperr.New(apperr.KindInvalidArgument, "renderConcurrency must be > 0")
	}
	if c.Retry.MaxTries == 0 {
		return apperr.New(apperr.KindInvalidArgument, "retry.maxTries must be > 0")
	}
	if c.Analyzer.MaxSpans <= 0 || c.Analyzer.PromptCandidates <= 0 {
		return apperr.New(apperr.KindInvalidArgument, "analyzer limits must be > 0")
	}
	if _, err := style.Resolve(c.Style); err != nil {
		return err
	}
	return nil
}

func (c Engine) Usecase() usecase.Config {
	return usecase.Config{
		Tokenize:          c.Tokenize,
		Captions:          c.Captions,
		Highlights:        c.Highlights,
		Windows:           c.Windows,
		Retry:             c.Retry,
		RenderConcurrency: c.RenderConcurrency,
	}
}
