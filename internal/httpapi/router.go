package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/forPelevin/shortify/internal/domain/captions"
	"github.com/forPelevin/shortify/internal/domain/tokenize"
	"github.com/forPelevin/shortify/internal/domain/windows"
	"github.com/forPelevin/shortify/internal/jobs"
	"github.com/forPelevin/shortify/internal/logger"
)

type RouterConfig struct {
	Jobs jobs.Service

	Tokenize tokenize.Options
	Captions captions.Config
	Windows  windows.Config

	// AllowOrigins for CORS. Empty allows none.
	AllowOrigins []string
	Log          *logger.Logger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	log := logger.OrNop(cfg.Log).With("service", "HTTP")
	r := gin.New()
	r.Use(gin.Recovery(), requestLog(log))
	if len(cfg.AllowOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: cfg.AllowOrigins,
			AllowMethods: []string{"GET", "POST", "OPTIONS"},
			AllowHeaders: []string{"Content-Type", "X-Requested-With"},
			MaxAge:       12 * time.Hour,
		}))
	}

	h := &handlers{
		jobs:     cfg.Jobs,
		tokenize: cfg.Tokenize,
		captions: cfg.Captions,
		windows:  cfg.Windows,
	}

	r.GET("/healthz", h.health)

	v1 := r.Group("/v1")
	{
		v1.POST("/jobs", h.submitJob)
		v1.GET("/jobs", h.listJobs)
		v1.GET("/jobs/:id", h.getJob)
		v1.POST("/jobs/:id/cancel", h.cancelJob)

		v1.POST("/captions/segment", h.segmentCaptions)
		v1.POST("/clips/window", h.windowClips)
		v1.POST("/styles/resolve", h.resolveStyle)
		v1.GET("/styles", h.listStyles)
	}
	return r
}

func requestLog(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// Serve runs the engine on addr until ctx is cancelled, then drains
// in-flight requests.
func Serve(ctx context.Context, addr string, engine *gin.Engine, log *logger.Logger) error {
	log = logger.OrNop(log)
	srv := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}
