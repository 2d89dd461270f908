package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/forPelevin/shortify/internal/apperr"
	"github.com/forPelevin/shortify/internal/ports/adapters/jobstore"
	"github.com/forPelevin/shortify/internal/types"
	"github.com/forPelevin/shortify/internal/usecase"
)

type fakePipeline struct {
	mu     sync.Mutex
	stages []usecase.Stage
	err    error
	// onStage runs inside the checkpoint loop before the stage check.
	onStage func(usecase.Stage)
}

func (f *fakePipeline) Run(ctx context.Context, in usecase.Input) (usecase.Result, error) {
	for _, s := range []usecase.Stage{usecase.StageTokenize, usecase.StageSegment, usecase.StageAnalyze, usecase.StageWindow} {
		if f.onStage != nil {
			f.onStage(s)
		}
		if err := in.Checkpoint(ctx, s); err != nil {
			return usecase.Result{}, err
		}
		f.mu.Lock()
		f.stages = append(f.stages, s)
		f.mu.Unlock()
	}
	if f.err != nil {
		return usecase.Result{}, f.err
	}
	return usecase.Result{
		Timing:      types.TimingASR,
		Clips:       []types.ClipWindow{{ID: "001", StartSec: 0, EndSec: 20}},
		ManifestURI: "out/" + in.JobID + "/manifest.json",
	}, nil
}

type captureDispatcher struct {
	recs []types.JobRecord
	err  error
}

func (d *captureDispatcher) Dispatch(_ context.Context, rec types.JobRecord) error {
	d.recs = append(d.recs, rec)
	return d.err
}

func transcriptRequest() types.JobRequest {
	return types.JobRequest{Transcript: &types.Transcript{Text: "hello world", DurationSec: 30}}
}

func TestManager_SubmitValidatesAndDispatches(t *testing.T) {
	ctx := context.Background()
	store := jobstore.NewMemory()
	d := &captureDispatcher{}
	m := NewManager(store, d, nil, nil)

	rec, err := m.Submit(ctx, transcriptRequest())
	require.NoError(t, err)
	_, err = uuid.Parse(rec.ID)
	require.NoError(t, err)
	require.Equal(t, types.JobQueued, rec.Status)
	require.Len(t, d.recs, 1)

	got, err := m.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, rec.ID, got.ID)

	_, err = m.Submit(ctx, types.JobRequest{})
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = m.Submit(ctx, types.JobRequest{Transcript: &types.Transcript{Text: "x"}, Render: true})
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)

	req := transcriptRequest()
	req.Style.Preset = "comic-sans"
	_, err = m.Submit(ctx, req)
	require.ErrorIs(t, err, apperr.ErrUnknownStyleToken)
	require.Len(t, d.recs, 1)
}

func TestManager_DispatchFailureMarksJobFailed(t *testing.T) {
	ctx := context.Background()
	store := jobstore.NewMemory()
	m := NewManager(store, &captureDispatcher{err: errors.New("broker down")}, nil, nil)

	_, err := m.Submit(ctx, transcriptRequest())
	require.ErrorIs(t, err, apperr.ErrProviderUnavailable)

	all, err := m.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, types.JobFailed, all[0].Status)
}

func TestManager_CancelTerminalIsNoop(t *testing.T) {
	ctx := context.Background()
	store := jobstore.NewMemory()
	require.NoError(t, store.Put(ctx, types.JobRecord{ID: "done", Status: types.JobSucceeded}))
	m := NewManager(store, &captureDispatcher{}, nil, nil)

	rec, err := m.Cancel(ctx, "done")
	require.NoError(t, err)
	require.False(t, rec.CancelRequested)

	_, err = m.Cancel(ctx, "missing")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRunner_ExecuteSucceeds(t *testing.T) {
	ctx := context.Background()
	store := jobstore.NewMemory()
	p := &fakePipeline{}
	r := NewRunner(store, p, RunnerConfig{WorkDir: t.TempDir()}, nil)
	m := NewManager(store, &captureDispatcher{}, r, nil)

	rec, err := m.Submit(ctx, transcriptRequest())
	require.NoError(t, err)

	done, err := r.Execute(ctx, rec)
	require.NoError(t, err)
	require.Equal(t, types.JobSucceeded, done.Status)
	require.Empty(t, done.Stage)
	require.NotNil(t, done.Result)
	require.Len(t, done.Result.Clips, 1)
	require.Equal(t, "out/"+rec.ID+"/manifest.json", done.Result.Manifest)

	stored, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, done, stored)

	again, err := r.Execute(ctx, rec)
	require.NoError(t, err)
	require.Equal(t, done, again)
	require.Len(t, p.stages, 4, "redelivery must not rerun a finished job")
}

func TestRunner_RecordsFailureKind(t *testing.T) {
	ctx := context.Background()
	store := jobstore.NewMemory()
	r := NewRunner(store, &fakePipeline{err: apperr.New(apperr.KindNoHighlightsFound, "nothing")}, RunnerConfig{}, nil)

	rec := types.JobRecord{ID: "j1", Status: types.JobQueued, Request: transcriptRequest()}
	done, err := r.Execute(ctx, rec)
	require.NoError(t, err)
	require.Equal(t, types.JobFailed, done.Status)
	require.Equal(t, string(apperr.KindNoHighlightsFound), done.ErrorKind)
	require.Equal(t, string(usecase.StageWindow), done.Stage)
}

func TestRunner_CancelStopsBeforeNextStage(t *testing.T) {
	ctx := context.Background()
	store := jobstore.NewMemory()
	p := &fakePipeline{}
	r := NewRunner(store, p, RunnerConfig{}, nil)
	m := NewManager(store, &captureDispatcher{}, r, nil)

	rec, err := m.Submit(ctx, transcriptRequest())
	require.NoError(t, err)

	p.onStage = func(s usecase.Stage) {
		if s == usecase.StageAnalyze {
			_, err := m.Cancel(ctx, rec.ID)
			require.NoError(t, err)
		}
	}

	done, err := r.Execute(ctx, rec)
	require.NoError(t, err)
	require.Equal(t, types.JobCancelled, done.Status)
	require.Equal(t, string(apperr.KindCancelled), done.ErrorKind)
	require.True(t, done.CancelRequested)
	require.Equal(t, []usecase.Stage{usecase.StageTokenize, usecase.StageSegment}, p.stages)
}

func TestRunner_CancelRequestedInStoreBeforeStart(t *testing.T) {
	ctx := context.Background()
	store := jobstore.NewMemory()
	p := &fakePipeline{}
	r := NewRunner(store, p, RunnerConfig{}, nil)

	rec := types.JobRecord{ID: "j2", Status: types.JobQueued, CancelRequested: true, Request: transcriptRequest()}
	require.NoError(t, store.Put(ctx, rec))

	done, err := r.Execute(ctx, rec)
	require.NoError(t, err)
	require.Equal(t, types.JobCancelled, done.Status)
	require.Empty(t, p.stages)
}

func TestLocalDispatcher_RunsJobs(t *testing.T) {
	ctx := context.Background()
	store := jobstore.NewMemory()
	r := NewRunner(store, &fakePipeline{}, RunnerConfig{}, nil)
	d := NewLocalDispatcher(ctx, r, 2, nil)
	m := NewManager(store, d, r, nil)

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		rec, err := m.Submit(ctx, transcriptRequest())
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}
	d.Wait()

	for _, id := range ids {
		rec, err := m.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, types.JobSucceeded, rec.Status)
	}
}

func TestLocalDispatcher_RejectsAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := NewLocalDispatcher(ctx, NewRunner(jobstore.NewMemory(), &fakePipeline{}, RunnerConfig{}, nil), 1, nil)
	require.ErrorIs(t, d.Dispatch(context.Background(), types.JobRecord{ID: "x"}), context.Canceled)
}

// finishingStore lets the job reach a terminal state right after a reader
// has seen it running, the interleaving a worker finishing during a
// cancel request produces.
type finishingStore struct {
	*jobstore.Memory
	once   sync.Once
	finish func()
}

func (s *finishingStore) Get(ctx context.Context, id string) (types.JobRecord, error) {
	rec, err := s.Memory.Get(ctx, id)
	s.once.Do(s.finish)
	return rec, err
}

func (s *finishingStore) Update(ctx context.Context, id string, fn func(types.JobRecord) (types.JobRecord, error)) (types.JobRecord, error) {
	s.once.Do(s.finish)
	return s.Memory.Update(ctx, id, fn)
}

type countingCanceller struct{ ids []string }

func (c *countingCanceller) RequestCancel(id string) { c.ids = append(c.ids, id) }

func TestManager_CancelKeepsJobFinishedConcurrently(t *testing.T) {
	ctx := context.Background()
	mem := jobstore.NewMemory()
	running := types.JobRecord{ID: "j3", Status: types.JobRunning, Stage: string(usecase.StageAnalyze), Request: transcriptRequest()}
	require.NoError(t, mem.Put(ctx, running))

	store := &finishingStore{Memory: mem, finish: func() {
		done := running
		done.Status = types.JobSucceeded
		done.Stage = ""
		require.NoError(t, mem.Put(ctx, done))
	}}
	c := &countingCanceller{}
	m := NewManager(store, &captureDispatcher{}, c, nil)

	got, err := m.Cancel(ctx, running.ID)
	require.NoError(t, err)
	require.Equal(t, types.JobSucceeded, got.Status)
	require.False(t, got.CancelRequested)
	require.Empty(t, c.ids)

	stored, err := mem.Get(ctx, running.ID)
	require.NoError(t, err)
	require.Equal(t, types.JobSucceeded, stored.Status)
	require.False(t, stored.CancelRequested)
}

func TestRunner_KeepsCancelFlagSetDuringTransition(t *testing.T) {
	ctx := context.Background()
	mem := jobstore.NewMemory()
	rec := types.JobRecord{ID: "j4", Status: types.JobRunning, Request: transcriptRequest()}
	require.NoError(t, mem.Put(ctx, rec))
	r := NewRunner(mem, &fakePipeline{}, RunnerConfig{}, nil)

	flagged := rec
	flagged.CancelRequested = true
	require.NoError(t, mem.Put(ctx, flagged))

	next, err := r.transition(ctx, rec, func(n *types.JobRecord) { n.Stage = string(usecase.StageWindow) })
	require.NoError(t, err)
	require.True(t, next.CancelRequested)
	require.Equal(t, string(usecase.StageWindow), next.Stage)
}

func TestRunner_RequestCancelOnlyTracksOwnJobs(t *testing.T) {
	ctx := context.Background()
	store := jobstore.NewMemory()
	r := NewRunner(store, &fakePipeline{}, RunnerConfig{}, nil)
	m := NewManager(store, &captureDispatcher{}, r, nil)

	r.RequestCancel("not-running-here")

	rec, err := m.Submit(ctx, transcriptRequest())
	require.NoError(t, err)
	done, err := r.Execute(ctx, rec)
	require.NoError(t, err)
	require.Equal(t, types.JobSucceeded, done.Status)

	// A late cancel for a finished job is a store no-op and leaves no flag behind.
	_, err = m.Cancel(ctx, rec.ID)
	require.NoError(t, err)
	r.RequestCancel(rec.ID)

	r.mu.Lock()
	defer r.mu.Unlock()
	require.Empty(t, r.active)
}
