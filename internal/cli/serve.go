package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/forPelevin/shortify/internal/httpapi"
	"github.com/forPelevin/shortify/internal/pipeline"
	"github.com/forPelevin/shortify/internal/queue"
)

func serve(cmd *cobra.Command) error {
	addr, _ := cmd.Flags().GetString("addr")
	workDir, _ := cmd.Flags().GetString("work-dir")
	concurrency, _ := cmd.Flags().GetInt("concurrency")

	engine, err := loadEngine(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	sc := serviceConfigFromEnv(engine, workDir, log)
	sc.Concurrency = concurrency
	if err := sc.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := pipeline.BuildServices(ctx, sc, true)
	if err != nil {
		return err
	}
	defer func() {
		if svc.Local != nil {
			svc.Local.Wait()
		}
		if err := svc.Close(); err != nil {
			log.Warn("closing services", "error", err)
		}
	}()

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httpapi.NewRouter(httpapi.RouterConfig{
		Jobs:         svc.Manager,
		Tokenize:     engine.Tokenize,
		Captions:     engine.Captions,
		Windows:      engine.Windows,
		AllowOrigins: splitList(os.Getenv("CORS_ALLOW_ORIGINS")),
		Log:          log,
	})
	return httpapi.Serve(ctx, addr, router, log)
}

func worker(cmd *cobra.Command) error {
	workDir, _ := cmd.Flags().GetString("work-dir")

	engine, err := loadEngine(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	sc := serviceConfigFromEnv(engine, workDir, log)
	if len(sc.KafkaBrokers) == 0 {
		return errors.New("config: KAFKA_BROKERS is required for worker")
	}
	if err := sc.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := pipeline.BuildServices(ctx, sc, false)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Warn("closing services", "error", err)
		}
	}()

	w, err := queue.NewWorker(queue.WorkerConfig{
		Brokers: sc.KafkaBrokers,
		Topic:   sc.KafkaTopic,
		GroupID: sc.KafkaGroup,
	}, queue.NewHandler(svc.Runner, log), log)
	if err != nil {
		return err
	}
	defer w.Close()
	return w.Run(ctx)
}
