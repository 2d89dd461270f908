package whispercpp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/forPelevin/shortify/internal/apperr"
	"github.com/forPelevin/shortify/internal/logger"
	"github.com/forPelevin/shortify/internal/types"
)

type Adapter struct {
	bin   string
	model string
	log   *logger.Logger
}

func New(binPath, modelPath string, log *logger.Logger) *Adapter {
	if binPath == "" {
		binPath = "whisper-cli"
	}
	return &Adapter{bin: binPath, model: modelPath, log: logger.OrNop(log)}
}

// Transcribe runs whisper.cpp with one word per segment so every segment
// carries word-level offsets.
func (a *Adapter) Transcribe(ctx context.Context, wavPath, cacheDir string) (types.Transcript, error) {
	if a.model == "" {
		return types.Transcript{}, apperr.New(apperr.KindInvalidArgument, "whisper model path is required")
	}
	outPrefix := filepath.Join(cacheDir, "whisper")
	args := []string{
		"-m", a.model,
		"-f", wavPath,
		"-oj",
		"-ml", "1",
		"-sow",
		"-of", outPrefix,
	}
	a.log.Debug("whisper.cpp: transcribing", "bin", a.bin, "wav", wavPath)
	cmd := exec.CommandContext(ctx, a.bin, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return types.Transcript{}, ctx.Err()
		}
		return types.Transcript{}, apperr.Wrap(apperr.KindProviderUnavailable, err, "whisper.cpp failed: %s", tail(string(b), 400))
	}

	jb, err := os.ReadFile(outPrefix + ".json")
	if err != nil {
		return types.Transcript{}, apperr.Wrap(apperr.KindProviderUnavailable, err, "whisper.cpp output")
	}
	tr, err := Decode(jb)
	if err != nil {
		return types.Transcript{}, apperr.Wrap(apperr.KindProviderUnavailable, err, "whisper.cpp output")
	}
	a.log.Info("whisper.cpp: transcribed", "words", len(tr.Words), "duration_sec", tr.DurationSec)
	return tr, nil
}

type whisperOutput struct {
	// whisper.cpp -oj
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`

	// segment/word layout used by other whisper front ends
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
		Words []struct {
			Start float64 `json:"start"`
			End   float64 `json:"end"`
			Word  string  `json:"word"`
		} `json:"words,omitempty"`
	} `json:"segments"`
}

// Decode reads either whisper.cpp's JSON or the segments/words layout.
// Segments without words still contribute text, leaving Words empty so
// callers fall back to estimated timing.
func Decode(b []byte) (types.Transcript, error) {
	var raw whisperOutput
	if err := json.Unmarshal(b, &raw); err != nil {
		return types.Transcript{}, fmt.Errorf("decode whisper json: %w", err)
	}

	var (
		tr       types.Transcript
		texts    []string
		allWords = true
	)
	for _, s := range raw.Transcription {
		text := strings.TrimSpace(s.Text)
		end := float64(s.Offsets.To) / 1000
		if end > tr.DurationSec {
			tr.DurationSec = end
		}
		if text == "" || isSpecialToken(text) {
			continue
		}
		texts = append(texts, text)
		tr.Words = append(tr.Words, types.Word{Text: text, StartSec: float64(s.Offsets.From) / 1000, EndSec: end})
	}
	for _, s := range raw.Segments {
		if s.End > tr.DurationSec {
			tr.DurationSec = s.End
		}
		if text := strings.TrimSpace(s.Text); text != "" {
			texts = append(texts, text)
		}
		if len(s.Words) == 0 {
			allWords = false
		}
		for _, w := range s.Words {
			text := strings.TrimSpace(w.Word)
			if text == "" {
				continue
			}
			tr.Words = append(tr.Words, types.Word{Text: text, StartSec: w.Start, EndSec: w.End})
		}
	}
	// Partial word timing would silently mix sources; drop it.
	if !allWords {
		tr.Words = nil
	}
	tr.Text = strings.Join(texts, " ")
	return tr, nil
}

func isSpecialToken(s string) bool {
	return strings.HasPrefix(s, "[_") && strings.HasSuffix(s, "_]")
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
