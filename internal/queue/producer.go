package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/forPelevin/shortify/internal/logger"
	"github.com/forPelevin/shortify/internal/ports"
	"github.com/forPelevin/shortify/internal/types"
)

// Dispatcher publishes submitted jobs to a Kafka topic keyed by job id,
// so redeliveries of one job land on the same partition.
type Dispatcher struct {
	producer sarama.SyncProducer
	topic    string
	log      *logger.Logger
}

var _ ports.Dispatcher = (*Dispatcher)(nil)

func NewDispatcher(brokers []string, topic string, log *logger.Logger) (*Dispatcher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_6_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true

	p, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return newDispatcher(p, topic, log), nil
}

func newDispatcher(p sarama.SyncProducer, topic string, log *logger.Logger) *Dispatcher {
	return &Dispatcher{producer: p, topic: topic, log: logger.OrNop(log).With("service", "KafkaDispatcher")}
}

func (d *Dispatcher) Dispatch(_ context.Context, rec types.JobRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", rec.ID, err)
	}
	partition, offset, err := d.producer.SendMessage(&sarama.ProducerMessage{
		Topic: d.topic,
		Key:   sarama.StringEncoder(rec.ID),
		Value: sarama.ByteEncoder(b),
	})
	if err != nil {
		return fmt.Errorf("publish job %s: %w", rec.ID, err)
	}
	d.log.Debug("job published", "job_id", rec.ID, "partition", partition, "offset", offset)
	return nil
}

func (d *Dispatcher) Close() error { return d.producer.Close() }
