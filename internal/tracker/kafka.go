package tracker

import (
	"context"
	"encoding/json"
	"time"

	kafka "github.com/segmentio/kafka-go"
	"github.com/loomwrk/loom/internal/workflowctx"
	"go.uber.org/zap"
)

// Kafka mirrors every Context snapshot onto a topic, keyed by workflow
// id, for a durable audit trail alongside the Redis tracker's realtime
// view.
type Kafka struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// KafkaConfig configures the Kafka tracker's broker list and topic.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// NewKafka builds a Kafka tracker. Topic defaults to "workflow-updates".
func NewKafka(cfg KafkaConfig, logger *zap.Logger) *Kafka {
	topic := cfg.Topic
	if topic == "" {
		topic = "workflow-updates"
	}
	return &Kafka{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
		},
		logger: logger,
	}
}

// Track publishes snap to the configured topic, keyed by workflow id so
// a consumer can compact on it. Errors are logged, never propagated.
func (k *Kafka) Track(workflowID string, snap workflowctx.Snapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		k.logError(workflowID, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(workflowID),
		Value: payload,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		k.logError(workflowID, err)
	}
}

func (k *Kafka) logError(workflowID string, err error) {
	if k.logger != nil {
		k.logger.Error("kafka tracker failure",
			zap.String("workflow_id", workflowID),
			zap.Error(err))
	}
}

// Close flushes and closes the underlying Kafka writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}
