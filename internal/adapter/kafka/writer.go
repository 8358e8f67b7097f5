package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/tideguard-telemetry/internal/domain"
)

// SampleWriter produces telemetry samples to a Kafka topic in the format the
// Kafka transport consumes.
type SampleWriter struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewSampleWriter creates a Kafka producer for the telemetry topic.
func NewSampleWriter(brokers []string, topic string, logger *slog.Logger) *SampleWriter {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.LeastBytes{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &SampleWriter{writer: w, logger: logger}
}

// Publish writes one sample.
func (w *SampleWriter) Publish(ctx context.Context, s domain.TelemetrySample) error {
	msg, err := serializeSample(s, time.Now())
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish sample: %w", err)
	}
	w.logger.Debug("sample published", "topic", w.writer.Topic, "timestamp", s.Timestamp)
	return nil
}

func (w *SampleWriter) Close() error {
	return w.writer.Close()
}

// serializeSample marshals a sample into a Kafka message keyed by its timestamp.
func serializeSample(s domain.TelemetrySample, sentAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize sample: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(strconv.FormatInt(s.Timestamp, 10)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: headerEvent, Value: []byte(defaultEvent)},
			{Key: headerSentAt, Value: []byte(sentAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
