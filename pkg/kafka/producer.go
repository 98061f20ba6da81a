package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/marimovDEV/tipografiya/pkg/cloudevents"
	"github.com/marimovDEV/tipografiya/pkg/logging"
	"github.com/marimovDEV/tipografiya/pkg/metrics"
	"github.com/marimovDEV/tipografiya/pkg/tracing"
)

// Producer publishes CloudEvents to Kafka, one writer per topic
type Producer struct {
	config  *Config
	metrics *metrics.Metrics
	logger  *logging.Logger
	tracer  trace.Tracer

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// NewProducer creates a new instrumented Kafka producer
func NewProducer(config *Config, m *metrics.Metrics, logger *logging.Logger) *Producer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Producer{
		config:  config,
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer("kafka-producer"),
		writers: make(map[string]*kafka.Writer),
	}
}

func (p *Producer) writer(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w, ok := p.writers[topic]; ok {
		return w
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(p.config.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    p.config.BatchSize,
		BatchTimeout: p.config.BatchTimeout,
		RequiredAcks: kafka.RequiredAcks(p.config.RequiredAcks),
	}
	p.writers[topic] = w
	return w
}

// Message converts a CloudEvent into a Kafka message in binary content mode
// headers plus a structured JSON body. Events are keyed by subject so all
// events of one order or machine land on the same partition.
func Message(event *cloudevents.PlanningEvent) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}

	headers := []kafka.Header{
		{Key: "ce-specversion", Value: []byte(event.SpecVersion)},
		{Key: "ce-type", Value: []byte(event.Type)},
		{Key: "ce-source", Value: []byte(event.Source)},
		{Key: "ce-id", Value: []byte(event.ID)},
		{Key: "ce-time", Value: []byte(event.Time.Format(time.RFC3339))},
		{Key: "content-type", Value: []byte(event.DataContentType)},
	}
	optional := map[string]string{
		"ce-tipcorrelationid": event.CorrelationID,
		"ce-tiporderid":       event.OrderID,
		"ce-tipmachineid":     event.MachineID,
		"ce-traceparent":      event.TraceParent,
	}
	for _, key := range []string{"ce-tipcorrelationid", "ce-tiporderid", "ce-tipmachineid", "ce-traceparent"} {
		if v := optional[key]; v != "" {
			headers = append(headers, kafka.Header{Key: key, Value: []byte(v)})
		}
	}

	return kafka.Message{
		Key:     []byte(event.Subject),
		Value:   data,
		Headers: headers,
		Time:    event.Time,
	}, nil
}

// PublishEvent publishes a CloudEvent to topic with metrics and tracing
func (p *Producer) PublishEvent(ctx context.Context, topic string, event *cloudevents.PlanningEvent) error {
	start := time.Now()

	ctx, span := p.tracer.Start(ctx, "kafka.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(tracing.MessagingSpanAttributes("kafka", topic, "publish")...),
		trace.WithAttributes(
			attribute.String("messaging.kafka.event_type", event.Type),
			attribute.String("messaging.message_id", event.ID),
		),
	)

	if event.TraceParent == "" {
		carrier := tracing.MapCarrier{}
		tracing.InjectTraceContext(ctx, carrier)
		event.TraceParent = carrier.Get("traceparent")
	}

	msg, err := Message(event)
	if err == nil {
		err = p.writer(topic).WriteMessages(ctx, msg)
		if err != nil {
			err = fmt.Errorf("failed to publish event to topic %s: %w", topic, err)
		}
	}

	duration := time.Since(start)
	p.metrics.RecordKafkaPublish(topic, event.Type, err == nil, duration)
	p.logger.KafkaPublish(ctx, topic, event.Type, err == nil, duration)
	tracing.EndSpan(span, err)

	return err
}

// Close closes all writers
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			lastErr = fmt.Errorf("failed to close writer for topic %s: %w", topic, err)
		}
	}
	return lastErr
}
