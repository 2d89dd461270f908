package subtitles

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/forPelevin/shortify/internal/domain/style"
	"github.com/forPelevin/shortify/internal/types"
)

const (
	playResX = 1920
	playResY = 1080
	marginV  = 85
)

type wword struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

type line struct {
	Start time.Duration
	End   time.Duration
	Words []wword
}

// RenderASS renders one clip's captions as an ASS script. Event times are
// clip-local: the clip's start is 0:00:00.00.
func RenderASS(clip types.ClipWindow, d types.StyleDescriptor) string {
	lines := clipLines(clip)

	var b strings.Builder
	b.WriteString(assHeader(d))
	b.WriteString("\n[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	for _, ln := range lines {
		b.WriteString("Dialogue: 0,")
		b.WriteString(assTime(ln.Start))
		b.WriteString(",")
		b.WriteString(assTime(ln.End))
		b.WriteString(",Caption,,0,0,0,,")
		b.WriteString(animate(ln, d))
		b.WriteString("\n")
	}
	return b.String()
}

func clipLines(clip types.ClipWindow) []line {
	origin := types.Dur(clip.StartSec)
	out := make([]line, 0, len(clip.Captions))
	for _, seg := range clip.Captions {
		ln := line{Start: types.Dur(seg.StartSec) - origin, End: types.Dur(seg.EndSec) - origin}
		for _, w := range seg.Words {
			text := sanitizeASS(w.Text)
			if text == "" {
				continue
			}
			ln.Words = append(ln.Words, wword{Start: types.Dur(w.StartSec) - origin, End: types.Dur(w.EndSec) - origin, Text: text})
		}
		if len(ln.Words) == 0 || ln.End <= ln.Start {
			continue
		}
		out = append(out, ln)
	}
	return out
}

func animate(ln line, d types.StyleDescriptor) string {
	switch d.Animation {
	case style.AnimationKaraoke:
		return perWord(ln, "k")
	case style.AnimationTypewriter:
		return perWord(ln, "ko")
	case style.AnimationFade:
		return `{\fad(120,120)}` + plain(ln)
	case style.AnimationPop:
		return `{\fscx80\fscy80\t(0,120,\fscx100\fscy100)}` + plain(ln)
	case style.AnimationBounce:
		return `{\t(0,100,\fscx115\fscy115)\t(100,200,\fscx100\fscy100)}` + plain(ln)
	case style.AnimationSlide:
		x, y := anchor(d.Position)
		return fmt.Sprintf(`{\move(%d,%d,%d,%d,0,150)}`, x, y+40, x, y) + plain(ln)
	default:
		return plain(ln)
	}
}

// perWord emits one timed tag per word. Each word's duration runs until the
// next word starts so pauses are absorbed instead of dropped.
func perWord(ln line, tag string) string {
	var b strings.Builder
	cursor := ln.Start
	for i, w := range ln.Words {
		if w.Start > cursor {
			fmt.Fprintf(&b, `{\%s%d}`, tag, centis(w.Start-cursor))
			cursor = w.Start
		}
		end := w.End
		if i+1 < len(ln.Words) {
			end = ln.Words[i+1].Start
		}
		fmt.Fprintf(&b, `{\%s%d}%s`, tag, max(centis(end-cursor), 1), w.Text)
		if i+1 < len(ln.Words) {
			b.WriteString(" ")
		}
		cursor = end
	}
	return b.String()
}

func plain(ln line) string {
	parts := make([]string, len(ln.Words))
	for i, w := range ln.Words {
		parts[i] = w.Text
	}
	return strings.Join(parts, " ")
}

func assHeader(d types.StyleDescriptor) string {
	size := d.FontSizePx
	if size <= 0 {
		size = 64
	}
	bold := 0
	if d.FontWeight >= 600 {
		bold = 1
	}
	primary := assColor(d.Color, "&H00FFFFFF")
	back := assColor(d.BackgroundColor, "&H64000000")
	mv := marginV
	if d.Position == style.PositionCenter {
		mv = 0
	}
	return strings.TrimSpace(fmt.Sprintf(`
[Script Info]
ScriptType: v4.00+
PlayResX: %d
PlayResY: %d
ScaledBorderAndShadow: yes

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Caption, Inter, %d, %s, &H00FFD200, &H00000000, %s, %d,0,0,0,100,100,0,0,1,6,2,%d, 80,80,%d,1
`, playResX, playResY, size, primary, back, bold, alignment(d.Position), mv))
}

// alignment maps a position onto ASS numpad alignment.
func alignment(pos string) int {
	switch pos {
	case style.PositionTop:
		return 8
	case style.PositionCenter:
		return 5
	default:
		return 2
	}
}

func anchor(pos string) (int, int) {
	x := playResX / 2
	switch pos {
	case style.PositionTop:
		return x, marginV
	case style.PositionCenter:
		return x, playResY / 2
	default:
		return x, playResY - marginV
	}
}

// assColor converts #RRGGBB or #RRGGBBAA into &HAABBGGRR. ASS alpha is
// inverted: 00 is opaque.
func assColor(hex, fallback string) string {
	h := strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(h) != 6 && len(h) != 8 {
		return fallback
	}
	if _, err := strconv.ParseUint(h, 16, 32); err != nil {
		return fallback
	}
	alpha := 0
	if len(h) == 8 {
		a, _ := strconv.ParseUint(h[6:8], 16, 8)
		alpha = 255 - int(a)
	}
	return strings.ToUpper(fmt.Sprintf("&H%02X%s%s%s", alpha, h[4:6], h[2:4], h[0:2]))
}

func assTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hs := int(d / time.Hour)
	d -= time.Duration(hs) * time.Hour
	ms := int(d / time.Minute)
	d -= time.Duration(ms) * time.Minute
	s := int(d / time.Second)
	d -= time.Duration(s) * time.Second
	cs := int(d / (10 * time.Millisecond))
	return fmt.Sprintf("%d:%02d:%02d.%02d", hs, ms, s, cs)
}

func centis(d time.Duration) int {
	return int((d + 5*time.Millisecond) / (10 * time.Millisecond))
}

func sanitizeASS(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}
