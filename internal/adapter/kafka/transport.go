package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/tideguard-telemetry/internal/config"
	"github.com/couchcryptid/tideguard-telemetry/internal/stream"
)

const (
	headerEvent  = "event"
	headerSentAt = "sent_at"

	defaultEvent = "weather_data"
)

// Transport carries the stream over Kafka: samples are consumed from the
// telemetry topic and commands are produced to the command topic.
type Transport struct {
	brokers        []string
	telemetryTopic string
	commandTopic   string
	groupID        string
	dialer         *kafkago.Dialer
	logger         *slog.Logger
}

// NewTransport creates a Kafka transport for the configured topics.
func NewTransport(cfg *config.Config, logger *slog.Logger) *Transport {
	return &Transport{
		brokers:        cfg.KafkaBrokers,
		telemetryTopic: cfg.KafkaTelemetryTopic,
		commandTopic:   cfg.KafkaCommandTopic,
		groupID:        cfg.KafkaGroupID,
		dialer:         &kafkago.Dialer{Timeout: 10 * time.Second},
		logger:         logger,
	}
}

func (t *Transport) Name() string { return "kafka" }

// Dial checks that a broker is reachable, then opens a consumer and a producer.
func (t *Transport) Dial(ctx context.Context) (stream.Conn, error) {
	if err := t.probe(ctx); err != nil {
		return nil, err
	}

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  t.brokers,
		GroupID:  t.groupID,
		Topic:    t.telemetryTopic,
		MinBytes: 1,
		MaxBytes: 1 << 20,
		MaxWait:  500 * time.Millisecond,
	})
	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(t.brokers...),
		Topic:        t.commandTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
	}

	t.logger.Debug("kafka transport connected",
		"brokers", t.brokers,
		"telemetry_topic", t.telemetryTopic,
		"command_topic", t.commandTopic,
	)
	return &conn{reader: reader, writer: writer, closed: make(chan struct{})}, nil
}

func (t *Transport) probe(ctx context.Context) error {
	var errs []error
	for _, broker := range t.brokers {
		c, err := t.dialer.DialContext(ctx, "tcp", broker)
		if err == nil {
			_ = c.Close()
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", broker, err))
	}
	if len(errs) == 0 {
		return errors.New("no kafka brokers configured")
	}
	return fmt.Errorf("kafka dial: %w", errors.Join(errs...))
}

type conn struct {
	reader *kafkago.Reader
	writer *kafkago.Writer
	closed chan struct{}
	once   sync.Once
}

func (c *conn) Read(ctx context.Context) (stream.Frame, error) {
	msg, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if c.isClosed() || errors.Is(err, io.EOF) {
			return stream.Frame{}, stream.ErrConnClosed
		}
		return stream.Frame{}, fmt.Errorf("kafka read: %w", err)
	}
	return mapMessageToFrame(msg), nil
}

func (c *conn) Write(ctx context.Context, f stream.Frame) error {
	if c.isClosed() {
		return stream.ErrConnClosed
	}
	msg, err := serializeFrame(f, time.Now())
	if err != nil {
		return err
	}
	return c.writer.WriteMessages(ctx, msg)
}

func (c *conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		err = errors.Join(c.reader.Close(), c.writer.Close())
	})
	return err
}

func (c *conn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// mapMessageToFrame turns a telemetry record into a frame. The event name
// comes from the "event" header and defaults to weather_data.
func mapMessageToFrame(msg kafkago.Message) stream.Frame {
	event := defaultEvent
	for _, h := range msg.Headers {
		if h.Key == headerEvent && len(h.Value) > 0 {
			event = string(h.Value)
		}
	}
	return stream.Frame{Event: event, Data: json.RawMessage(msg.Value)}
}

// serializeFrame marshals an outbound frame into a Kafka message keyed by event name.
func serializeFrame(f stream.Frame, sentAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize frame: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(f.Event),
		Value: data,
		Headers: []kafkago.Header{
			{Key: headerEvent, Value: []byte(f.Event)},
			{Key: headerSentAt, Value: []byte(sentAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
