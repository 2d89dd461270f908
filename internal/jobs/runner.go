package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/forPelevin/shortify/internal/apperr"
	"github.com/forPelevin/shortify/internal/logger"
	"github.com/forPelevin/shortify/internal/ports"
	"github.com/forPelevin/shortify/internal/types"
	"github.com/forPelevin/shortify/internal/usecase"
)

type Pipeline interface {
	Run(ctx context.Context, in usecase.Input) (usecase.Result, error)
}

type RunnerConfig struct {
	// WorkDir holds one output directory per job.
	WorkDir  string
	CacheDir string
}

// Runner executes queued jobs and records every state transition as a
// fresh record.
type Runner struct {
	store    ports.JobStore
	pipeline Pipeline
	cfg      RunnerConfig
	log      *logger.Logger
	now      func() time.Time

	mu sync.Mutex
	// active holds the jobs this runner is executing and whether a local
	// cancel was requested for them.
	active map[string]bool
}

var _ Canceller = (*Runner)(nil)

func NewRunner(store ports.JobStore, p Pipeline, cfg RunnerConfig, log *logger.Logger) *Runner {
	if cfg.WorkDir == "" {
		cfg.WorkDir = "out"
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = ".cache"
	}
	return &Runner{
		store:    store,
		pipeline: p,
		cfg:      cfg,
		log:      logger.OrNop(log).With("service", "JobRunner"),
		now:      func() time.Time { return time.Now().UTC() },
		active:   map[string]bool{},
	}
}

// RequestCancel flags a job this runner is executing. Other ids are
// ignored; their cancel flag lives in the store.
func (r *Runner) RequestCancel(id string) {
	r.mu.Lock()
	if _, ok := r.active[id]; ok {
		r.active[id] = true
	}
	r.mu.Unlock()
}

func (r *Runner) cancelRequested(ctx context.Context, id string) bool {
	r.mu.Lock()
	local := r.active[id]
	r.mu.Unlock()
	if local {
		return true
	}
	latest, err := r.store.Get(ctx, id)
	return err == nil && latest.CancelRequested
}

// Execute runs one job to a terminal state. Redelivered jobs that already
// finished are returned unchanged.
func (r *Runner) Execute(ctx context.Context, rec types.JobRecord) (types.JobRecord, error) {
	log := r.log.With("job_id", rec.ID)
	cur, err := r.store.Get(ctx, rec.ID)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		cur = rec
	case err != nil:
		return types.JobRecord{}, err
	}
	if cur.Status.Terminal() {
		log.Info("job already finished", "status", string(cur.Status))
		return cur, nil
	}
	r.mu.Lock()
	if _, ok := r.active[rec.ID]; !ok {
		r.active[rec.ID] = false
	}
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.active, rec.ID)
		r.mu.Unlock()
	}()

	// Terminal writes must land even when ctx is gone.
	storeCtx := context.WithoutCancel(ctx)

	if r.cancelRequested(ctx, cur.ID) {
		return r.transition(storeCtx, cur, func(n *types.JobRecord) {
			n.Status = types.JobCancelled
			n.ErrorKind = string(apperr.KindCancelled)
			n.Error = "cancelled before start"
		})
	}

	cur, err = r.transition(storeCtx, cur, func(n *types.JobRecord) { n.Status = types.JobRunning })
	if err != nil {
		return types.JobRecord{}, err
	}
	log.Info("job started")

	req := cur.Request
	res, runErr := r.pipeline.Run(ctx, usecase.Input{
		JobID:          cur.ID,
		InputMP4:       req.InputMP4,
		Transcript:     req.Transcript,
		Render:         req.Render,
		BurnSubtitles:  req.Render,
		Style:          req.Style,
		CacheDir:       filepath.Join(r.cfg.CacheDir, "jobs", cur.ID),
		OutDir:         filepath.Join(r.cfg.WorkDir, cur.ID),
		ArtifactPrefix: cur.ID,
		Checkpoint: func(ctx context.Context, s usecase.Stage) error {
			if r.cancelRequested(ctx, cur.ID) {
				return apperr.New(apperr.KindCancelled, "cancel requested")
			}
			next, err := r.transition(storeCtx, cur, func(n *types.JobRecord) { n.Stage = string(s) })
			if err != nil {
				log.Warn("failed to record stage", "stage", string(s), "error", err)
				return nil
			}
			cur = next
			return nil
		},
	})

	switch {
	case runErr == nil:
		log.Info("job succeeded", "clips", len(res.Clips))
		return r.transition(storeCtx, cur, func(n *types.JobRecord) {
			n.Status = types.JobSucceeded
			n.Stage = ""
			n.Result = res.JobResult()
		})
	case errors.Is(runErr, apperr.ErrCancelled) || ctx.Err() != nil:
		log.Info("job cancelled", "stage", cur.Stage)
		return r.transition(storeCtx, cur, func(n *types.JobRecord) {
			n.Status = types.JobCancelled
			n.ErrorKind = string(apperr.KindCancelled)
			n.Error = runErr.Error()
		})
	default:
		log.Warn("job failed", "stage", cur.Stage, "error", runErr)
		return r.transition(storeCtx, cur, func(n *types.JobRecord) {
			n.Status = types.JobFailed
			n.ErrorKind = string(apperr.KindOf(runErr))
			n.Error = runErr.Error()
		})
	}
}

// transition writes a copy of base with mutate applied. The write goes
// through a conditional update so a cancel flag set concurrently in the
// store is carried over rather than lost.
func (r *Runner) transition(ctx context.Context, base types.JobRecord, mutate func(*types.JobRecord)) (types.JobRecord, error) {
	apply := func(cancelRequested bool) types.JobRecord {
		next := base
		next.CancelRequested = next.CancelRequested || cancelRequested
		mutate(&next)
		next.UpdatedAt = r.now()
		return next
	}
	next, err := r.store.Update(ctx, base.ID, func(latest types.JobRecord) (types.JobRecord, error) {
		return apply(latest.CancelRequested), nil
	})
	if errors.Is(err, apperr.ErrNotFound) {
		// Jobs delivered without a stored record are recorded from here on.
		next = apply(false)
		err = r.store.Put(ctx, next)
	}
	if err != nil {
		return types.JobRecord{}, err
	}
	return next, nil
}
