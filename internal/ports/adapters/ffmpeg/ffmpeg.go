package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	ffmpeggo "github.com/u2takey/ffmpeg-go"

	"github.com/forPelevin/shortify/internal/logger"
)

type Adapter struct {
	ffmpeg  string
	ffprobe string
	log     *logger.Logger
}

func New(ffmpegPath, ffprobePath string, log *logger.Logger) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath, log: logger.OrNop(log)}
}

func (a *Adapter) ExtractAudioMono16k(ctx context.Context, inMP4, outWav string) error {
	if err := a.run(ctx, extractArgs(inMP4, outWav)); err != nil {
		return fmt.Errorf("ffmpeg extract audio: %w", err)
	}
	return nil
}

func (a *Adapter) RenderClip(ctx context.Context, inMP4 string, start, end time.Duration, outMP4 string, burnASS string) error {
	if err := a.run(ctx, renderArgs(inMP4, start, end, outMP4, burnASS)); err != nil {
		return fmt.Errorf("ffmpeg render clip: %w", err)
	}
	return nil
}

func (a *Adapter) ProbeDuration(ctx context.Context, inMP4 string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		inMP4,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: %w\n%s", err, string(b))
	}
	s := strings.TrimSpace(string(b))
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return time.Duration(sec * float64(time.Second)), nil
}

func (a *Adapter) run(ctx context.Context, args []string) error {
	a.log.Debug("ffmpeg: exec", "args", strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, a.ffmpeg, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w\n%s", err, string(b))
	}
	return nil
}

func extractArgs(inMP4, outWav string) []string {
	return ffmpeggo.Input(inMP4).
		Output(outWav, ffmpeggo.KwArgs{"vn": "", "ac": 1, "ar": 16000, "f": "wav"}).
		OverWriteOutput().
		GetArgs()
}

func renderArgs(inMP4 string, start, end time.Duration, outMP4, burnASS string) []string {
	in := ffmpeggo.Input(inMP4, ffmpeggo.KwArgs{"ss": fmtSeconds(start), "to": fmtSeconds(end)})
	enc := ffmpeggo.KwArgs{
		"c:v":    "libx264",
		"preset": "veryfast",
		"crf":    18,
		"c:a":    "aac",
		"b:a":    "192k",
	}
	var out *ffmpeggo.Stream
	if burnASS != "" {
		video := in.Video().Filter("subtitles", ffmpeggo.Args{burnASS})
		out = ffmpeggo.Output([]*ffmpeggo.Stream{video, in.Audio()}, outMP4, enc)
	} else {
		out = in.Output(outMP4, enc)
	}
	return out.OverWriteOutput().GetArgs()
}

func fmtSeconds(d time.Duration) string {
	sec := float64(d) / float64(time.Second)
	return strconv.FormatFloat(sec, 'f', 3, 64)
}
