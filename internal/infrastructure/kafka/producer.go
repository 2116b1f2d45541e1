package kafka_infra

import (
	"context"
	"encoding/json"
	"fmt"

	"merchbot/internal/domain"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// DeadLetterPublisher mirrors dead-letter records to a topic so operators
// can alert on them outside the process. Publishing is best effort; the
// in-memory dead-letter list stays authoritative.
type DeadLetterPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewDeadLetterPublisher(brokers []string, topic string, logger *zap.Logger) *DeadLetterPublisher {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	})
	return &DeadLetterPublisher{writer: writer, logger: logger}
}

// Archive implements processor.DeadLetterSink.
func (p *DeadLetterPublisher) Archive(ctx context.Context, rec domain.DeadLetterRecord) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode dead-letter record: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(rec.EventID),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish dead-letter record",
			zap.String("event_id", rec.EventID),
			zap.Error(err))
		return fmt.Errorf("failed to publish dead-letter record: %w", err)
	}
	p.logger.Debug("Dead-letter record published", zap.String("event_id", rec.EventID))
	return nil
}

func (p *DeadLetterPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer: %w", err)
	}
	return nil
}
