package gcpspeech

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/forPelevin/shortify/internal/apperr"
	"github.com/forPelevin/shortify/internal/logger"
	"github.com/forPelevin/shortify/internal/types"
)

type Config struct {
	LanguageCode string
	Model        string
	// Credentials is either inline service-account JSON or a file path.
	// Empty uses application default credentials.
	Credentials string
}

type recognizer interface {
	Recognize(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (*speechpb.LongRunningRecognizeResponse, error)
	Close() error
}

type clientRecognizer struct {
	c *speech.Client
}

func (r clientRecognizer) Recognize(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (*speechpb.LongRunningRecognizeResponse, error) {
	op, err := r.c.LongRunningRecognize(ctx, req)
	if err != nil {
		return nil, err
	}
	return op.Wait(ctx)
}

func (r clientRecognizer) Close() error { return r.c.Close() }

type Adapter struct {
	cfg Config
	rec recognizer
	log *logger.Logger
}

func New(ctx context.Context, cfg Config, log *logger.Logger) (*Adapter, error) {
	c, err := speech.NewClient(ctx, ClientOptions(cfg.Credentials)...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	return newWithRecognizer(cfg, clientRecognizer{c: c}, log), nil
}

func newWithRecognizer(cfg Config, rec recognizer, log *logger.Logger) *Adapter {
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en-US"
	}
	return &Adapter{cfg: cfg, rec: rec, log: logger.OrNop(log).With("service", "gcp.Speech")}
}

// ClientOptions turns a credentials string into client options.
func ClientOptions(creds string) []option.ClientOption {
	creds = strings.TrimSpace(creds)
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}

func (a *Adapter) Close() error {
	if a == nil || a.rec == nil {
		return nil
	}
	return a.rec.Close()
}

// Transcribe sends the mono 16 kHz wav inline. Retries are left to the
// caller; transient gRPC codes come back as provider_unavailable.
func (a *Adapter) Transcribe(ctx context.Context, wavPath, _ string) (types.Transcript, error) {
	audio, err := os.ReadFile(wavPath)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("read wav: %w", err)
	}
	if len(audio) == 0 {
		return types.Transcript{}, apperr.New(apperr.KindEmptyTranscript, "empty audio %s", wavPath)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	req := &speechpb.LongRunningRecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			LanguageCode:               a.cfg.LanguageCode,
			Model:                      a.cfg.Model,
			EnableAutomaticPunctuation: true,
			EnableWordTimeOffsets:      true,
			Encoding:                   speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:            16000,
			AudioChannelCount:          1,
		},
		Audio: &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: audio}},
	}

	a.log.Debug("speech: recognizing", "bytes", len(audio), "language", a.cfg.LanguageCode)
	resp, err := a.rec.Recognize(ctx, req)
	if err != nil {
		return types.Transcript{}, classify(err)
	}
	tr := parseResponse(resp)
	a.log.Info("speech: transcribed", "words", len(tr.Words), "duration_sec", tr.DurationSec)
	return tr, nil
}

func classify(err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted, codes.Internal:
		return apperr.Wrap(apperr.KindProviderUnavailable, err, "speech longrunningrecognize")
	default:
		return fmt.Errorf("speech longrunningrecognize: %w", err)
	}
}

func parseResponse(resp *speechpb.LongRunningRecognizeResponse) types.Transcript {
	var tr types.Transcript
	if resp == nil {
		return tr
	}
	var full []string
	for _, r := range resp.Results {
		if r == nil || len(r.Alternatives) == 0 || r.Alternatives[0] == nil {
			continue
		}
		alt := r.Alternatives[0]
		if t := strings.TrimSpace(alt.Transcript); t != "" {
			full = append(full, t)
		}
		for _, ww := range alt.Words {
			if ww == nil || strings.TrimSpace(ww.Word) == "" {
				continue
			}
			w := types.Word{
				Text:     strings.TrimSpace(ww.Word),
				StartSec: ww.StartTime.AsDuration().Seconds(),
				EndSec:   ww.EndTime.AsDuration().Seconds(),
			}
			tr.Words = append(tr.Words, w)
			if w.EndSec > tr.DurationSec {
				tr.DurationSec = w.EndSec
			}
		}
		if end := r.ResultEndTime.AsDuration().Seconds(); end > tr.DurationSec {
			tr.DurationSec = end
		}
	}
	tr.Text = strings.Join(full, " ")
	return tr
}
