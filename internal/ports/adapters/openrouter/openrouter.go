package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/forPelevin/shortify/internal/apperr"
	"github.com/forPelevin/shortify/internal/domain/highlights"
	"github.com/forPelevin/shortify/internal/logger"
	"github.com/forPelevin/shortify/internal/types"
)

type Options struct {
	MinClip  time.Duration
	MaxClip  time.Duration
	MaxSpans int
	// PromptCandidates caps how many pre-ranked windows go into the prompt.
	PromptCandidates int
}

func DefaultOptions() Options {
	return Options{MinClip: 20 * time.Second, MaxClip: 60 * time.Second, MaxSpans: 12, PromptCandidates: 80}
}

type Adapter struct {
	key     string
	model   string
	baseURL string
	opts    Options
	client  *http.Client
	log     *logger.Logger
}

const (
	requestTimeout = 90 * time.Second
)

func New(apiKey, model, baseURL string, opts Options, log *logger.Logger) *Adapter {
	if model == "" {
		model = "anthropic/claude-3.5-sonnet"
	}
	def := DefaultOptions()
	if opts.MinClip <= 0 {
		opts.MinClip = def.MinClip
	}
	if opts.MaxClip < opts.MinClip {
		opts.MaxClip = max(def.MaxClip, opts.MinClip)
	}
	if opts.MaxSpans <= 0 {
		opts.MaxSpans = def.MaxSpans
	}
	if opts.PromptCandidates <= 0 {
		opts.PromptCandidates = def.PromptCandidates
	}
	return &Adapter{
		key:     apiKey,
		model:   model,
		baseURL: normalizeBaseURL(baseURL),
		opts:    opts,
		client:  &http.Client{Timeout: 5 * time.Minute},
		log:     logger.OrNop(log),
	}
}

type promptCandidate struct {
	Idx      int     `json:"idx"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
	Text     string  `json:"text"`
	Info     float64 `json:"info"`
	Hook     float64 `json:"hook"`
}

type modelSpan struct {
	Idx        int      `json:"idx"`
	StartSec   *float64 `json:"start_sec"`
	EndSec     *float64 `json:"end_sec"`
	Type       string   `json:"type"`
	Confidence float64  `json:"confidence"`
	Summary    string   `json:"summary"`
}

// Analyze asks the model to pick and grade highlight spans among
// pre-ranked transcript windows. Transport, status and decoding failures
// surface as provider_unavailable.
func (a *Adapter) Analyze(ctx context.Context, tr types.Transcript, words []types.Word, durationSec float64) ([]types.ScoredSpan, error) {
	cands := highlights.BuildCandidates(words, a.opts.MinClip, a.opts.MaxClip)
	top := selectPromptCandidates(cands, a.opts.PromptCandidates)
	if len(top) == 0 {
		a.log.Debug("openrouter: no candidates to rank", "words", len(words))
		return nil, nil
	}

	arr := make([]promptCandidate, 0, len(top))
	for i, c := range top {
		arr = append(arr, promptCandidate{Idx: i, StartSec: c.Start.Seconds(), EndSec: c.End.Seconds(), Text: c.Text, Info: c.Info, Hook: c.Hook})
	}
	prompt := map[string]any{
		"maxSpans":    a.opts.MaxSpans,
		"minSec":      a.opts.MinClip.Seconds(),
		"maxSec":      a.opts.MaxClip.Seconds(),
		"durationSec": durationSec,
		"candidates":  arr,
	}
	pb, err := json.Marshal(prompt)
	if err != nil {
		return nil, fmt.Errorf("marshal prompt: %w", err)
	}

	content, err := a.complete(ctx, buildPrompt(pb))
	if err != nil {
		return nil, err
	}
	clean, err := extractJSONObject(content)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProviderUnavailable, err, "openrouter: malformed completion")
	}
	var out struct {
		Spans []modelSpan `json:"spans"`
	}
	if err := json.Unmarshal([]byte(clean), &out); err != nil {
		return nil, apperr.Wrap(apperr.KindProviderUnavailable, err, "openrouter: decode spans")
	}

	res := make([]types.ScoredSpan, 0, min(len(out.Spans), a.opts.MaxSpans))
	for _, s := range out.Spans {
		st, en, ok := spanRange(s, top, durationSec)
		if !ok {
			a.log.Debug("openrouter: dropping span without times", "idx", s.Idx)
			continue
		}
		res = append(res, types.ScoredSpan{
			StartSec:   st,
			EndSec:     en,
			Type:       highlights.ParseSpanType(s.Type),
			Confidence: s.Confidence,
			Summary:    strings.TrimSpace(s.Summary),
			Source:     types.SourceAI,
		})
		if len(res) >= a.opts.MaxSpans {
			break
		}
	}
	a.log.Info("openrouter: spans ranked", "model", a.model, "candidates", len(top), "spans", len(res))
	return res, nil
}

func (a *Adapter) complete(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"model":  a.model,
		"stream": false,
		"messages": []map[string]any{
			{"role": "user", "content": prompt},
		},
		"response_format": map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   "shortify_spans",
				"schema": spanSchema(),
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	url := a.baseURL + "/api/v1/chat/completions"

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+a.key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return "", apperr.New(apperr.KindProviderUnavailable, "openrouter timeout after %s (model=%s)", requestTimeout, a.model)
		}
		return "", apperr.Wrap(apperr.KindProviderUnavailable, errors.New(redactSecrets(err.Error(), a.key)), "openrouter request")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return "", apperr.New(apperr.KindProviderUnavailable, "openrouter status %d and read body failed: %v", resp.StatusCode, readErr)
		}
		return "", apperr.New(apperr.KindProviderUnavailable, "openrouter status %d: %s", resp.StatusCode, truncate(redactSecrets(string(rb), a.key), 400))
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content any `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", apperr.Wrap(apperr.KindProviderUnavailable, err, "openrouter: decode response")
	}
	if len(raw.Choices) == 0 {
		return "", apperr.New(apperr.KindProviderUnavailable, "openrouter: no choices")
	}
	content, err := messageContentToString(raw.Choices[0].Message.Content)
	if err != nil {
		return "", apperr.Wrap(apperr.KindProviderUnavailable, err, "openrouter: read content")
	}
	return content, nil
}

func spanSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"spans": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"idx":        map[string]any{"type": "integer"},
						"start_sec":  map[string]any{"type": "number"},
						"end_sec":    map[string]any{"type": "number"},
						"type":       map[string]any{"type": "string", "enum": []string{"hook", "highlight", "conclusion"}},
						"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
						"summary":    map[string]any{"type": "string"},
					},
					"required": []string{"idx", "start_sec", "end_sec", "type", "confidence", "summary"},
				},
			},
		},
		"required": []string{"spans"},
	}
}

func buildPrompt(candsJSON []byte) string {
	return "Pick the moments of this video worth cutting into short clips. " +
		"Return strictly valid JSON (no markdown, no code fences) matching the provided schema. " +
		"Label each span as hook (grabs attention), highlight (core value) or conclusion (payoff). " +
		"Give a calibrated confidence in [0,1]; do not inflate it. " +
		"Return at most maxSpans spans, each between minSec and maxSec long. " +
		"Spans must start cleanly and end on a complete thought. " +
		"Summarize each span in one short sentence." +
		"\n\nCandidates JSON:\n" + string(candsJSON)
}

func messageContentToString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []any:
		// Some providers return an array of {type,text} parts.
		var b strings.Builder
		for _, it := range x {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			if t, ok := m["text"].(string); ok {
				b.WriteString(t)
			}
		}
		s := b.String()
		if strings.TrimSpace(s) == "" {
			return "", errors.New("openrouter: empty content")
		}
		return s, nil
	default:
		return "", fmt.Errorf("openrouter: unexpected content type %T", v)
	}
}

func extractJSONObject(s string) (string, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return "", errors.New("openrouter: empty content")
	}

	if strings.HasPrefix(t, "```") {
		if i := strings.Index(t, "\n"); i >= 0 {
			t = t[i+1:]
		}
		if j := strings.LastIndex(t, "```"); j >= 0 {
			t = t[:j]
		}
		t = strings.TrimSpace(t)
	}

	start := strings.Index(t, "{")
	end := strings.LastIndex(t, "}")
	if start >= 0 && end > start {
		return t[start : end+1], nil
	}
	return "", fmt.Errorf("openrouter: could not locate JSON object in: %q", truncate(t, 200))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var (
	bearerTokenRE = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]+\b`)
	authHeaderRE  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*)([^\n\r,;]+)`)
	apiKeyFieldRE = regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)([^\n\r,;]+)`)
)

func redactSecrets(s, apiKey string) string {
	if s == "" {
		return s
	}
	out := s
	if apiKey != "" {
		out = strings.ReplaceAll(out, apiKey, "[REDACTED]")
	}
	out = bearerTokenRE.ReplaceAllString(out, "Bearer [REDACTED]")
	out = authHeaderRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyFieldRE.ReplaceAllString(out, "${1}[REDACTED]")
	return out
}

// selectPromptCandidates keeps the best-ranked distinct windows, topping up
// with timeline order when ranking leaves room, and returns them by start.
func selectPromptCandidates(cands []highlights.Candidate, limit int) []highlights.Candidate {
	if len(cands) == 0 || limit <= 0 {
		return nil
	}

	best := make([]highlights.Candidate, len(cands))
	copy(best, cands)
	sort.SliceStable(best, func(i, j int) bool {
		if best[i].Total() == best[j].Total() {
			return best[i].Start < best[j].Start
		}
		return best[i].Total() > best[j].Total()
	})

	out := make([]highlights.Candidate, 0, limit)
	for _, c := range best {
		if len(out) >= limit {
			break
		}
		if isDistinct(out, c.Start, c.End, 2*time.Second) {
			out = append(out, c)
		}
	}
	for _, c := range cands {
		if len(out) >= limit {
			break
		}
		if isDistinct(out, c.Start, c.End, 2*time.Second) {
			out = append(out, c)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// spanRange takes the model's times as given, clipped to the video. The
// referenced candidate is used only when the model left the times out.
// Length limits are applied later by the windower.
func spanRange(s modelSpan, cands []highlights.Candidate, durationSec float64) (float64, float64, bool) {
	var st, en float64
	switch {
	case validTime(s.StartSec) && validTime(s.EndSec):
		st, en = *s.StartSec, *s.EndSec
	case s.Idx >= 0 && s.Idx < len(cands):
		st, en = cands[s.Idx].Start.Seconds(), cands[s.Idx].End.Seconds()
	default:
		return 0, 0, false
	}
	st = math.Max(st, 0)
	if durationSec > 0 {
		en = math.Min(en, durationSec)
	}
	return st, en, true
}

func validTime(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}

func isDistinct(existing []highlights.Candidate, st, en, minGap time.Duration) bool {
	for _, e := range existing {
		if st < e.End+minGap && en > e.Start-minGap {
			return false
		}
	}
	return true
}
