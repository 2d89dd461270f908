package style

import (
	"regexp"
	"sort"
	"strings"

	"github.com/forPelevin/shortify/internal/apperr"
	"github.com/forPelevin/shortify/internal/types"
)

const (
	DefaultPreset = "classic"

	AnimationNone       = "none"
	AnimationFade       = "fade"
	AnimationPop        = "pop"
	AnimationBounce     = "bounce"
	AnimationTypewriter = "typewriter"
	AnimationKaraoke    = "karaoke"
	AnimationSlide      = "slide"

	PositionTop    = "top"
	PositionCenter = "center"
	PositionBottom = "bottom"
)

var presets = map[string]types.StyleDescriptor{
	"classic": {FontSizePx: 64, Color: "#FFFFFF", BackgroundColor: "#000000", FontWeight: 600, Animation: AnimationNone, Position: PositionBottom},
	"modern":  {FontSizePx: 72, Color: "#FFFFFF", BackgroundColor: "#1E1E1E", FontWeight: 700, Animation: AnimationFade, Position: PositionBottom},
	"bold":    {FontSizePx: 88, Color: "#FFEB3B", BackgroundColor: "#000000", FontWeight: 900, Animation: AnimationPop, Position: PositionCenter},
	"minimal": {FontSizePx: 56, Color: "#F5F5F5", BackgroundColor: "#00000000", FontWeight: 400, Animation: AnimationNone, Position: PositionBottom},
	"neon":    {FontSizePx: 76, Color: "#39FF14", BackgroundColor: "#0D0221", FontWeight: 800, Animation: AnimationBounce, Position: PositionCenter},
	"tiktok":  {FontSizePx: 78, Color: "#FFFFFF", BackgroundColor: "#000000", FontWeight: 800, Animation: AnimationKaraoke, Position: PositionBottom},
}

var animations = map[string]struct{}{
	AnimationNone: {}, AnimationFade: {}, AnimationPop: {}, AnimationBounce: {},
	AnimationTypewriter: {}, AnimationKaraoke: {}, AnimationSlide: {},
}

var positions = map[string]struct{}{
	PositionTop: {}, PositionCenter: {}, PositionBottom: {},
}

var colorRe = regexp.MustCompile(`^#([0-9A-Fa-f]{6}|[0-9A-Fa-f]{8})$`)

// Resolve merges a preset, an animation, a position and overrides into a
// descriptor. Empty preset means DefaultPreset; empty animation or position
// keep the preset's value. Unknown tokens are rejected, never defaulted.
func Resolve(req types.StyleRequest) (types.StyleDescriptor, error) {
	name := normalize(req.Preset)
	if name == "" {
		name = DefaultPreset
	}
	d, ok := presets[name]
	if !ok {
		return types.StyleDescriptor{}, apperr.New(apperr.KindUnknownStyleToken, "unknown preset %q", req.Preset)
	}
	if a := normalize(req.Animation); a != "" {
		if _, ok := animations[a]; !ok {
			return types.StyleDescriptor{}, apperr.New(apperr.KindUnknownStyleToken, "unknown animation %q", req.Animation)
		}
		d.Animation = a
	}
	if p := normalize(req.Position); p != "" {
		if _, ok := positions[p]; !ok {
			return types.StyleDescriptor{}, apperr.New(apperr.KindUnknownStyleToken, "unknown position %q", req.Position)
		}
		d.Position = p
	}
	return applyOverrides(d, req.Overrides)
}

func applyOverrides(d types.StyleDescriptor, o types.StyleOverrides) (types.StyleDescriptor, error) {
	if o.FontSizePx != nil {
		if *o.FontSizePx <= 0 || *o.FontSizePx > 400 {
			return types.StyleDescriptor{}, apperr.New(apperr.KindInvalidArgument, "font size must be in (0, 400], got %d", *o.FontSizePx)
		}
		d.FontSizePx = *o.FontSizePx
	}
	if o.Color != nil {
		if !colorRe.MatchString(*o.Color) {
			return types.StyleDescriptor{}, apperr.New(apperr.KindInvalidArgument, "color must be #RRGGBB or #RRGGBBAA, got %q", *o.Color)
		}
		d.Color = strings.ToUpper(*o.Color)
	}
	if o.BackgroundColor != nil {
		if !colorRe.MatchString(*o.BackgroundColor) {
			return types.StyleDescriptor{}, apperr.New(apperr.KindInvalidArgument, "background color must be #RRGGBB or #RRGGBBAA, got %q", *o.BackgroundColor)
		}
		d.BackgroundColor = strings.ToUpper(*o.BackgroundColor)
	}
	if o.FontWeight != nil {
		w := *o.FontWeight
		if w < 100 || w > 900 || w%100 != 0 {
			return types.StyleDescriptor{}, apperr.New(apperr.KindInvalidArgument, "font weight must be a multiple of 100 in [100, 900], got %d", w)
		}
		d.FontWeight = w
	}
	if o.Animation != nil {
		a := normalize(*o.Animation)
		if _, ok := animations[a]; !ok {
			return types.StyleDescriptor{}, apperr.New(apperr.KindUnknownStyleToken, "unknown animation %q", *o.Animation)
		}
		d.Animation = a
	}
	if o.Position != nil {
		p := normalize(*o.Position)
		if _, ok := positions[p]; !ok {
			return types.StyleDescriptor{}, apperr.New(apperr.KindUnknownStyleToken, "unknown position %q", *o.Position)
		}
		d.Position = p
	}
	return d, nil
}

// Apply returns copies of clips whose captions carry d.
func Apply(clips []types.ClipWindow, d types.StyleDescriptor) []types.ClipWindow {
	out := make([]types.ClipWindow, len(clips))
	for i, c := range clips {
		segs := make([]types.CaptionSegment, len(c.Captions))
		for j, s := range c.Captions {
			s.Words = append([]types.Word(nil), s.Words...)
			s.Style = d
			segs[j] = s
		}
		c.Captions = segs
		out[i] = c
	}
	return out
}

// ApplySegments is Apply for a flat caption list.
func ApplySegments(segs []types.CaptionSegment, d types.StyleDescriptor) []types.CaptionSegment {
	out := make([]types.CaptionSegment, len(segs))
	for i, s := range segs {
		s.Words = append([]types.Word(nil), s.Words...)
		s.Style = d
		out[i] = s
	}
	return out
}

func Presets() []string    { return sortedKeys(presets) }
func Animations() []string { return sortedKeys(animations) }
func Positions() []string  { return []string{PositionTop, PositionCenter, PositionBottom} }

// Preset returns the named preset as-is.
func Preset(name string) (types.StyleDescriptor, bool) {
	d, ok := presets[normalize(name)]
	return d, ok
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func normalize(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
