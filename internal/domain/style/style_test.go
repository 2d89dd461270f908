package style

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/forPelevin/shortify/internal/apperr"
	"github.com/forPelevin/shortify/internal/types"
)

func ptr[T any](v T) *T { return &v }

func TestResolve_EveryTokenCombination(t *testing.T) {
	t.Parallel()

	for _, p := range Presets() {
		for _, a := range Animations() {
			for _, pos := range Positions() {
				d, err := Resolve(types.StyleRequest{Preset: p, Animation: a, Position: pos})
				require.NoError(t, err, "%s/%s/%s", p, a, pos)
				require.Equal(t, a, d.Animation)
				require.Equal(t, pos, d.Position)
				require.Positive(t, d.FontSizePx)
				require.NotEmpty(t, d.Color)
			}
		}
	}
}

func TestResolve_TokenLists(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"bold", "classic", "minimal", "modern", "neon", "tiktok"}, Presets())
	require.Equal(t, []string{"bounce", "fade", "karaoke", "none", "pop", "slide", "typewriter"}, Animations())
	require.Equal(t, []string{"top", "center", "bottom"}, Positions())
}

func TestResolve_DefaultsToClassicPreset(t *testing.T) {
	t.Parallel()

	d, err := Resolve(types.StyleRequest{})
	require.NoError(t, err)
	want, _ := Preset(DefaultPreset)
	require.Equal(t, want, d)
}

func TestResolve_UnknownTokens(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  types.StyleRequest
	}{
		{name: "preset", req: types.StyleRequest{Preset: "comic"}},
		{name: "animation", req: types.StyleRequest{Animation: "wobble"}},
		{name: "position", req: types.StyleRequest{Position: "left"}},
		{name: "animation override", req: types.StyleRequest{Overrides: types.StyleOverrides{Animation: ptr("spin")}}},
		{name: "position override", req: types.StyleRequest{Overrides: types.StyleOverrides{Position: ptr("middle")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.req)
			require.ErrorIs(t, err, apperr.ErrUnknownStyleToken)
		})
	}
}

func TestResolve_OverridesAppliedLast(t *testing.T) {
	t.Parallel()

	d, err := Resolve(types.StyleRequest{
		Preset:    "bold",
		Animation: "fade",
		Position:  "top",
		Overrides: types.StyleOverrides{
			FontSizePx:      ptr(40),
			Color:           ptr("#ff0000"),
			BackgroundColor: ptr("#00000080"),
			FontWeight:      ptr(300),
			Animation:       ptr("slide"),
			Position:        ptr("bottom"),
		},
	})
	require.NoError(t, err)
	require.Equal(t, types.StyleDescriptor{
		FontSizePx:      40,
		Color:           "#FF0000",
		BackgroundColor: "#00000080",
		FontWeight:      300,
		Animation:       "slide",
		Position:        "bottom",
	}, d)
}

func TestResolve_InvalidOverrideValues(t *testing.T) {
	t.Parallel()

	for _, o := range []types.StyleOverrides{
		{FontSizePx: ptr(0)},
		{Color: ptr("red")},
		{BackgroundColor: ptr("#12345")},
		{FontWeight: ptr(450)},
	} {
		_, err := Resolve(types.StyleRequest{Overrides: o})
		require.ErrorIs(t, err, apperr.ErrInvalidArgument)
	}
}

func TestResolve_IsCaseInsensitive(t *testing.T) {
	t.Parallel()

	d, err := Resolve(types.StyleRequest{Preset: " TikTok ", Animation: "Pop", Position: "TOP"})
	require.NoError(t, err)
	require.Equal(t, "pop", d.Animation)
	require.Equal(t, "top", d.Position)
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	in := []types.ClipWindow{{
		ID: "001",
		Captions: []types.CaptionSegment{{
			Text:  "hi",
			Words: []types.Word{{Text: "hi", StartSec: 0, EndSec: 1}},
		}},
	}}
	d, err := Resolve(types.StyleRequest{Preset: "neon"})
	require.NoError(t, err)

	out := Apply(in, d)
	require.Equal(t, d, out[0].Captions[0].Style)
	require.Equal(t, types.StyleDescriptor{}, in[0].Captions[0].Style)

	out[0].Captions[0].Words[0].Text = "changed"
	require.Equal(t, "hi", in[0].Captions[0].Words[0].Text)
}
