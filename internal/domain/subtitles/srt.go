package subtitles

import (
	"fmt"
	"strings"
	"time"

	"github.com/forPelevin/shortify/internal/types"
)

// RenderSRT renders one clip's captions as SubRip with clip-local times.
func RenderSRT(clip types.ClipWindow) string {
	var b strings.Builder
	for i, ln := range clipLines(clip) {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, srtTime(ln.Start), srtTime(ln.End), plain(ln))
	}
	return b.String()
}

func srtTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hs := int(d / time.Hour)
	d -= time.Duration(hs) * time.Hour
	ms := int(d / time.Minute)
	d -= time.Duration(ms) * time.Minute
	s := int(d / time.Second)
	d -= time.Duration(s) * time.Second
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hs, ms, s, int(d/time.Millisecond))
}
