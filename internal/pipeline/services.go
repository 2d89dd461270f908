package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/forPelevin/shortify/internal/config"
	"github.com/forPelevin/shortify/internal/jobs"
	"github.com/forPelevin/shortify/internal/logger"
	"github.com/forPelevin/shortify/internal/ports"
	"github.com/forPelevin/shortify/internal/ports/adapters/artifacts"
	"github.com/forPelevin/shortify/internal/ports/adapters/jobstore"
	"github.com/forPelevin/shortify/internal/queue"
	"github.com/forPelevin/shortify/internal/usecase"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreMongo  = "mongo"

	ArtifactsLocal = "local"
	ArtifactsS3    = "s3"
)

// ServiceConfig wires the long-running job service.
type ServiceConfig struct {
	Store     string
	RedisAddr string
	RedisTTL  time.Duration
	MongoURI  string
	MongoDB   string

	Artifacts string
	S3        artifacts.S3Config

	// KafkaBrokers switches dispatch from in-process goroutines to Kafka.
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroup   string

	WorkDir     string
	CacheDir    string
	Concurrency int

	Engine    config.Engine
	Providers Providers
	Log       *logger.Logger
}

func (c ServiceConfig) Validate() error {
	switch c.Store {
	case "", StoreMemory:
	case StoreRedis:
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required for the redis store")
		}
	case StoreMongo:
		if c.MongoURI == "" {
			return errors.New("MONGO_URI is required for the mongo store")
		}
	default:
		return fmt.Errorf("unknown SHORTIFY_STORE %q", c.Store)
	}
	switch c.Artifacts {
	case "", ArtifactsLocal:
	case ArtifactsS3:
		if c.S3.Bucket == "" {
			return errors.New("S3_BUCKET is required for s3 artifacts")
		}
	default:
		return fmt.Errorf("unknown SHORTIFY_ARTIFACTS %q", c.Artifacts)
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return errors.New("KAFKA_TOPIC is required with KAFKA_BROKERS")
	}
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	// Jobs with an inline transcript never transcribe, so a missing
	// whisper model surfaces per job from the transcriber instead.
	return c.Providers.Validate(false, c.Engine)
}

// Services is everything serve and worker need. Close releases clients
// in reverse order of creation.
type Services struct {
	Store      ports.JobStore
	Runner     *jobs.Runner
	Manager    *jobs.Manager
	Dispatcher ports.Dispatcher
	// Local is set when jobs run in this process.
	Local *jobs.LocalDispatcher

	closers []func() error
}

func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// BuildServices wires store, artifacts, adapters and dispatch. With
// dispatch false (worker mode) no dispatcher is created.
func BuildServices(ctx context.Context, c ServiceConfig, dispatch bool) (*Services, error) {
	log := logger.OrNop(c.Log)
	s := &Services{}
	fail := func(err error) (*Services, error) {
		_ = s.Close()
		return nil, err
	}

	store, err := newStore(ctx, c, log)
	if err != nil {
		return fail(err)
	}
	s.Store = store
	if cl, ok := store.(interface{ Close() error }); ok {
		s.closers = append(s.closers, cl.Close)
	}
	if m, ok := store.(*jobstore.Mongo); ok {
		s.closers = append(s.closers, func() error { return m.Close(context.Background()) })
	}

	art, err := newArtifacts(ctx, c, log)
	if err != nil {
		return fail(err)
	}

	adapters, err := BuildAdapters(ctx, c.Providers, c.Engine, log)
	if err != nil {
		return fail(err)
	}
	s.closers = append(s.closers, adapters.Close)

	uc := usecase.New(usecase.Deps{
		Video:       adapters.Video,
		Transcriber: adapters.Transcriber,
		Analyzer:    adapters.Analyzer,
		Artifacts:   art,
		Log:         log,
	}, c.Engine.Usecase())
	s.Runner = jobs.NewRunner(store, uc, jobs.RunnerConfig{WorkDir: c.WorkDir, CacheDir: c.CacheDir}, log)

	if !dispatch {
		return s, nil
	}
	if len(c.KafkaBrokers) > 0 {
		d, err := queue.NewDispatcher(c.KafkaBrokers, c.KafkaTopic, log)
		if err != nil {
			return fail(err)
		}
		s.Dispatcher = d
		s.closers = append(s.closers, d.Close)
		// Jobs run in a worker process; cancel requests travel via the store.
		s.Manager = jobs.NewManager(store, d, nil, log)
		return s, nil
	}
	s.Local = jobs.NewLocalDispatcher(ctx, s.Runner, c.Concurrency, log)
	s.Dispatcher = s.Local
	s.Manager = jobs.NewManager(store, s.Local, s.Runner, log)
	return s, nil
}

func newStore(ctx context.Context, c ServiceConfig, log *logger.Logger) (ports.JobStore, error) {
	switch c.Store {
	case StoreRedis:
		return jobstore.NewRedis(ctx, c.RedisAddr, c.RedisTTL, log)
	case StoreMongo:
		return jobstore.NewMongo(ctx, c.MongoURI, c.MongoDB, log)
	default:
		return jobstore.NewMemory(), nil
	}
}

func newArtifacts(ctx context.Context, c ServiceConfig, log *logger.Logger) (ports.ArtifactStore, error) {
	if c.Artifacts == ArtifactsS3 {
		return artifacts.NewS3(ctx, c.S3, log)
	}
	root := c.WorkDir
	if root == "" {
		root = "out"
	}
	return artifacts.NewLocal(root), nil
}
