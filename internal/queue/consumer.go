package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff/v5"

	"github.com/forPelevin/shortify/internal/logger"
	"github.com/forPelevin/shortify/internal/types"
)

// Executor runs one job to a terminal state.
type Executor interface {
	Execute(ctx context.Context, rec types.JobRecord) (types.JobRecord, error)
}

// Handler decodes job messages and executes them. A job that ends in
// failure is still handled: the failure is recorded in the job store.
// Errors from the executor itself (e.g. store outages) are returned so the
// consumer retries the same message before moving on.
type Handler struct {
	exec Executor
	log  *logger.Logger
}

func NewHandler(exec Executor, log *logger.Logger) *Handler {
	return &Handler{exec: exec, log: logger.OrNop(log).With("service", "JobHandler")}
}

func (h *Handler) HandleMessage(ctx context.Context, message []byte) (bool, error) {
	var rec types.JobRecord
	if err := json.Unmarshal(message, &rec); err != nil {
		h.log.Warn("skipping malformed job message", "error", err)
		return true, nil
	}
	if rec.ID == "" {
		h.log.Warn("skipping job message without id")
		return true, nil
	}
	done, err := h.exec.Execute(ctx, rec)
	if err != nil {
		return false, fmt.Errorf("execute job %s: %w", rec.ID, err)
	}
	h.log.Info("job message handled", "job_id", done.ID, "status", string(done.Status))
	return true, nil
}

type WorkerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Worker consumes job messages with a consumer group.
type Worker struct {
	group   sarama.ConsumerGroup
	handler *Handler
	topic   string
	groupID string
	log     *logger.Logger
}

func NewWorker(cfg WorkerConfig, h *Handler, log *logger.Logger) (*Worker, error) {
	sc := sarama.NewConfig()
	sc.Version = sarama.V3_6_0_0
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	sc.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, sc)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer group: %w", err)
	}
	return &Worker{
		group:   group,
		handler: h,
		topic:   cfg.Topic,
		groupID: cfg.GroupID,
		log:     logger.OrNop(log).With("service", "KafkaWorker", "topic", cfg.Topic, "group", cfg.GroupID),
	}, nil
}

// Run consumes until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	go func() {
		for err := range w.group.Errors() {
			w.log.Error("kafka consumer error", "error", err)
		}
	}()

	gh := newGroupHandler(w.handler, w.log)
	w.log.Info("kafka worker started")
	for {
		if err := w.group.Consume(ctx, []string{w.topic}, gh); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) || errors.Is(err, context.Canceled) {
				return nil
			}
			w.log.Error("kafka consume failed", "error", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (w *Worker) Close() error { return w.group.Close() }

type groupHandler struct {
	handler *Handler
	log     *logger.Logger
	// newBackOff paces retries of a message whose execution failed.
	newBackOff func() backoff.BackOff
}

func newGroupHandler(h *Handler, log *logger.Logger) *groupHandler {
	return &groupHandler{
		handler: h,
		log:     log,
		newBackOff: func() backoff.BackOff {
			eb := backoff.NewExponentialBackOff()
			eb.InitialInterval = time.Second
			eb.MaxInterval = time.Minute
			return eb
		},
	}
}

func (g *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (g *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim handles messages in offset order. A message is marked only
// once it has been handled, and the claim does not advance past a message
// that keeps failing: when the session ends first, the next session
// resumes from the last committed offset.
func (g *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok || msg == nil {
				return nil
			}
			g.log.Debug("job message received", "partition", msg.Partition, "offset", msg.Offset, "key", string(msg.Key))
			if err := g.handle(ctx, msg); err != nil {
				g.log.Warn("job message left for redelivery", "key", string(msg.Key), "offset", msg.Offset, "error", err)
				return nil
			}
			session.MarkMessage(msg, "")
		case <-ctx.Done():
			return nil
		}
	}
}

func (g *groupHandler) handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	_, err := backoff.Retry(ctx, func() (bool, error) {
		handled, err := g.handler.HandleMessage(ctx, msg.Value)
		if err != nil {
			g.log.Error("job message failed, retrying", "key", string(msg.Key), "offset", msg.Offset, "error", err)
		}
		return handled, err
	}, backoff.WithBackOff(g.newBackOff()), backoff.WithMaxElapsedTime(0))
	return err
}
