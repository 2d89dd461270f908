package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/forPelevin/shortify/internal/config"
	"github.com/forPelevin/shortify/internal/logger"
	"github.com/forPelevin/shortify/internal/pipeline"
	"github.com/forPelevin/shortify/internal/ports/adapters/artifacts"
	"github.com/forPelevin/shortify/internal/ports/adapters/gcpspeech"
	"github.com/forPelevin/shortify/internal/ports/adapters/openrouter"
	"github.com/forPelevin/shortify/internal/types"
)

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func newLogger(cmd *cobra.Command) (*logger.Logger, error) {
	mode, _ := cmd.Flags().GetString("log")
	log, err := logger.New(mode)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return log, nil
}

// loadEngine reads --config and applies the --clips override.
func loadEngine(cmd *cobra.Command) (config.Engine, error) {
	path, _ := cmd.Flags().GetString("config")
	engine, err := config.Load(path)
	if err != nil {
		return config.Engine{}, fmt.Errorf("config: %w", err)
	}
	if f := cmd.Flags().Lookup("clips"); f != nil && f.Changed {
		n, _ := cmd.Flags().GetInt("clips")
		if n <= 0 {
			return config.Engine{}, fmt.Errorf("config: clips must be > 0")
		}
		engine.Windows.MaxClipCount = n
	}
	return engine, nil
}

// styleFromFlags starts from the config style and applies CLI overrides.
func styleFromFlags(cmd *cobra.Command, engine config.Engine) types.StyleRequest {
	req := engine.Style
	if v, _ := cmd.Flags().GetString("style"); v != "" {
		req.Preset = v
		req.Animation = ""
		req.Position = ""
	}
	if v, _ := cmd.Flags().GetString("animation"); v != "" {
		req.Animation = v
	}
	if v, _ := cmd.Flags().GetString("position"); v != "" {
		req.Position = v
	}
	return req
}

func providersFromEnv() pipeline.Providers {
	return pipeline.Providers{
		FFmpegPath:  getenvDefault("FFMPEG_PATH", "ffmpeg"),
		FFprobePath: getenvDefault("FFPROBE_PATH", "ffprobe"),

		ASR:          getenvDefault("SHORTIFY_ASR", pipeline.ASRWhisperCpp),
		WhisperBin:   getenvDefault("WHISPER_BIN", ".cache/bin/whisper.cpp"),
		WhisperModel: getenvDefault("WHISPER_MODEL", ".cache/models/ggml-base.bin"),
		GCP: gcpspeech.Config{
			LanguageCode: getenvDefault("GCP_SPEECH_LANGUAGE", "en-US"),
			Model:        os.Getenv("GCP_SPEECH_MODEL"),
			Credentials:  os.Getenv("GCP_CREDENTIALS"),
		},

		OpenRouterAPIKey:       os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterModel:        getenvDefault("OPENROUTER_MODEL", "z-ai/glm-4.5-air:free"),
		OpenRouterBaseURL:      getenvDefault("OPENROUTER_BASE_URL", openrouter.DefaultBaseURL),
		OpenRouterAllowedHosts: openrouter.ParseAllowedHosts(os.Getenv("OPENROUTER_ALLOWED_HOSTS")),
	}
}

func serviceConfigFromEnv(engine config.Engine, workDir string, log *logger.Logger) pipeline.ServiceConfig {
	ttl := 7 * 24 * time.Hour
	if v := os.Getenv("REDIS_TTL_HOURS"); v != "" {
		if h, err := strconv.Atoi(v); err == nil && h > 0 {
			ttl = time.Duration(h) * time.Hour
		}
	}
	pathStyle, _ := strconv.ParseBool(os.Getenv("S3_USE_PATH_STYLE"))
	return pipeline.ServiceConfig{
		Store:     getenvDefault("SHORTIFY_STORE", pipeline.StoreMemory),
		RedisAddr: os.Getenv("REDIS_ADDR"),
		RedisTTL:  ttl,
		MongoURI:  os.Getenv("MONGO_URI"),
		MongoDB:   getenvDefault("MONGO_DB", "shortify"),

		Artifacts: getenvDefault("SHORTIFY_ARTIFACTS", pipeline.ArtifactsLocal),
		S3: artifacts.S3Config{
			Bucket:       os.Getenv("S3_BUCKET"),
			Prefix:       os.Getenv("S3_PREFIX"),
			Region:       os.Getenv("AWS_REGION"),
			UsePathStyle: pathStyle,
		},

		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getenvDefault("KAFKA_TOPIC", "shortify.jobs"),
		KafkaGroup:   getenvDefault("KAFKA_GROUP", "shortify-workers"),

		WorkDir:  workDir,
		CacheDir: getenvDefault("SHORTIFY_CACHE_DIR", ".cache"),

		Engine:    engine,
		Providers: providersFromEnv(),
		Log:       log,
	}
}
