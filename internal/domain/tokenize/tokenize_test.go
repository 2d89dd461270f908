package tokenize

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/forPelevin/shortify/internal/apperr"
	"github.com/forPelevin/shortify/internal/types"
)

func TestTokenize_HeuristicSumsToDuration(t *testing.T) {
	t.Parallel()

	res, err := Tokenize(types.Transcript{
		Text:        "Welcome to today's discussion about AI and the future of work.",
		DurationSec: 10,
	}, Options{})
	require.NoError(t, err)
	require.Equal(t, types.TimingHeuristic, res.Source)
	require.Len(t, res.Words, 11)

	var total float64
	for i, w := range res.Words {
		require.Greater(t, w.EndSec, w.StartSec)
		if i > 0 {
			require.Equal(t, res.Words[i-1].EndSec, w.StartSec)
		}
		total += w.EndSec - w.StartSec
	}
	require.InDelta(t, 10.0, total, 1e-9)
	require.Equal(t, 0.0, res.Words[0].StartSec)
	require.Equal(t, 10.0, res.Words[10].EndSec)
}

func TestTokenize_HeuristicLongerWordsGetMoreTime(t *testing.T) {
	t.Parallel()

	res, err := Tokenize(types.Transcript{Text: "a extraordinarily", DurationSec: 2}, Options{BaseMs: 100, PerCharMs: 50})
	require.NoError(t, err)
	short := res.Words[0].EndSec - res.Words[0].StartSec
	long := res.Words[1].EndSec - res.Words[1].StartSec
	require.Greater(t, long, short)
	// 150 / (150 + 100 + 50*15)
	require.InDelta(t, 2*150.0/1000.0, short, 1e-9)
}

func TestTokenize_PassesThroughASRWords(t *testing.T) {
	t.Parallel()

	words := []types.Word{
		{Text: " hello ", StartSec: 0.1, EndSec: 0.5},
		{Text: "", StartSec: 0.5, EndSec: 0.6},
		{Text: "world", StartSec: 0.7, EndSec: 1.2},
	}
	res, err := Tokenize(types.Transcript{Text: "ignored text here", Words: words, DurationSec: 1}, Options{})
	require.NoError(t, err)
	require.Equal(t, types.TimingASR, res.Source)
	require.Equal(t, []types.Word{
		{Text: "hello", StartSec: 0.1, EndSec: 0.5},
		{Text: "world", StartSec: 0.7, EndSec: 1.2},
	}, res.Words)
	require.Equal(t, 1.2, res.DurationSec)
}

func TestTokenize_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		tr   types.Transcript
		want error
	}{
		{"empty text", types.Transcript{Text: "   ", DurationSec: 3}, apperr.ErrEmptyTranscript},
		{"zero duration", types.Transcript{Text: "hi there", DurationSec: 0}, apperr.ErrInvalidDuration},
		{"negative duration", types.Transcript{Text: "hi there", DurationSec: -1}, apperr.ErrInvalidDuration},
		{"nan duration", types.Transcript{Text: "hi", DurationSec: math.NaN()}, apperr.ErrInvalidDuration},
		{"inverted word", types.Transcript{Words: []types.Word{{Text: "a", StartSec: 1, EndSec: 1}}}, apperr.ErrInvalidDuration},
		{"unordered words", types.Transcript{Words: []types.Word{
			{Text: "a", StartSec: 1, EndSec: 2},
			{Text: "b", StartSec: 0.5, EndSec: 0.8},
		}}, apperr.ErrInvalidDuration},
		{"overlapping words", types.Transcript{Words: []types.Word{
			{Text: "a", StartSec: 1, EndSec: 2},
			{Text: "b", StartSec: 1.5, EndSec: 2.5},
		}}, apperr.ErrInvalidDuration},
		{"only blank words", types.Transcript{Words: []types.Word{{Text: " ", StartSec: 0, EndSec: 1}}}, apperr.ErrEmptyTranscript},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Tokenize(tt.tr, Options{})
			require.ErrorIs(t, err, tt.want)
		})
	}
}
