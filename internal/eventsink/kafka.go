package eventsink

import (
	"context"
	"encoding/json"
	"fmt"

	kafka "github.com/segmentio/kafka-go"

	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/models"
)

type KafkaSink struct {
	writer *kafka.Writer
}

func NewKafkaSink(addr string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(addr),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
	}
}

// Publish keys messages by worker so events of one worker stay ordered within a partition.
func (s *KafkaSink) Publish(ctx context.Context, events []models.PoolEvent) (int, error) {
	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		value, err := json.Marshal(ev)
		if err != nil {
			return 0, fmt.Errorf("failed to encode pool event %s: %w", ev, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(ev.Worker),
			Value: value,
			Time:  ev.Timestamp,
		})
	}
	err := s.writer.WriteMessages(ctx, msgs...)
	if err != nil {
		return 0, fmt.Errorf("failed to write pool events: %w", err)
	}
	return len(events), nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
