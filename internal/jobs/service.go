package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/forPelevin/shortify/internal/apperr"
	"github.com/forPelevin/shortify/internal/domain/style"
	"github.com/forPelevin/shortify/internal/logger"
	"github.com/forPelevin/shortify/internal/ports"
	"github.com/forPelevin/shortify/internal/types"
)

const defaultListLimit = 50

type Service interface {
	Submit(ctx context.Context, req types.JobRequest) (types.JobRecord, error)
	Get(ctx context.Context, id string) (types.JobRecord, error)
	List(ctx context.Context, limit int) ([]types.JobRecord, error)
	Cancel(ctx context.Context, id string) (types.JobRecord, error)
}

// Canceller is notified of cancel requests for jobs running in this
// process so they stop at the next stage without waiting for a store read.
type Canceller interface {
	RequestCancel(id string)
}

type Manager struct {
	store      ports.JobStore
	dispatcher ports.Dispatcher
	canceller  Canceller
	log        *logger.Logger
	now        func() time.Time
}

var _ Service = (*Manager)(nil)

func NewManager(store ports.JobStore, d ports.Dispatcher, c Canceller, log *logger.Logger) *Manager {
	return &Manager{
		store:      store,
		dispatcher: d,
		canceller:  c,
		log:        logger.OrNop(log).With("service", "JobManager"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (m *Manager) Submit(ctx context.Context, req types.JobRequest) (types.JobRecord, error) {
	if err := Validate(req); err != nil {
		return types.JobRecord{}, err
	}
	now := m.now()
	rec := types.JobRecord{
		ID:        uuid.NewString(),
		Status:    types.JobQueued,
		Request:   req,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Put(ctx, rec); err != nil {
		return types.JobRecord{}, err
	}
	if err := m.dispatcher.Dispatch(ctx, rec); err != nil {
		failed := rec
		failed.Status = types.JobFailed
		failed.ErrorKind = string(apperr.KindProviderUnavailable)
		failed.Error = err.Error()
		failed.UpdatedAt = m.now()
		if perr := m.store.Put(context.WithoutCancel(ctx), failed); perr != nil {
			m.log.Error("failed to record dispatch failure", "job_id", rec.ID, "error", perr)
		}
		return types.JobRecord{}, apperr.Wrap(apperr.KindProviderUnavailable, err, "dispatch job %s", rec.ID)
	}
	m.log.Info("job submitted", "job_id", rec.ID, "render", req.Render)
	return rec, nil
}

func (m *Manager) Get(ctx context.Context, id string) (types.JobRecord, error) {
	return m.store.Get(ctx, id)
}

func (m *Manager) List(ctx context.Context, limit int) ([]types.JobRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	return m.store.List(ctx, limit)
}

// Cancel flags a job for cancellation. Terminal or already flagged jobs
// are returned as stored. The flag is set with a conditional update so a
// job finishing concurrently keeps its terminal record.
func (m *Manager) Cancel(ctx context.Context, id string) (types.JobRecord, error) {
	flagged := false
	rec, err := m.store.Update(ctx, id, func(cur types.JobRecord) (types.JobRecord, error) {
		if cur.Status.Terminal() || cur.CancelRequested {
			return cur, ports.ErrSkipUpdate
		}
		cur.CancelRequested = true
		cur.UpdatedAt = m.now()
		flagged = true
		return cur, nil
	})
	if err != nil {
		return types.JobRecord{}, err
	}
	if !flagged {
		return rec, nil
	}
	if m.canceller != nil {
		m.canceller.RequestCancel(id)
	}
	m.log.Info("job cancel requested", "job_id", id, "status", string(rec.Status))
	return rec, nil
}

// Validate rejects requests that can never run.
func Validate(req types.JobRequest) error {
	if req.InputMP4 == "" && req.Transcript == nil {
		return apperr.New(apperr.KindInvalidArgument, "either input or transcript is required")
	}
	if req.Render && req.InputMP4 == "" {
		return apperr.New(apperr.KindInvalidArgument, "render requires an input video")
	}
	_, err := style.Resolve(req.Style)
	return err
}
