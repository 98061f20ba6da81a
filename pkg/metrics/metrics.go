package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the planning engine metrics. All recording methods are safe
// to call on a nil *Metrics, which records nothing.
type Metrics struct {
	serviceName string
	registry    *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Infrastructure metrics
	KafkaEventsPublished     *prometheus.CounterVec
	KafkaPublishDuration     *prometheus.HistogramVec
	MongoDBOperations        *prometheus.CounterVec
	MongoDBOperationDuration *prometheus.HistogramVec
	OutboxPending            prometheus.Gauge
	OutboxPublished          *prometheus.CounterVec
	CircuitBreakerState      *prometheus.GaugeVec

	// Planning metrics
	LayoutsCalculated  *prometheus.CounterVec
	LayoutWastePercent prometheus.Histogram
	StockReservations  *prometheus.CounterVec
	StockConsumed      *prometheus.CounterVec
	LockAcquisitions   *prometheus.CounterVec
	QueueOptimizations *prometheus.CounterVec
	StepsScheduled     *prometheus.CounterVec
	OperationDuration  *prometheus.HistogramVec
}

// Config holds metrics configuration
type Config struct {
	ServiceName string
	Namespace   string
}

// DefaultConfig returns default metrics configuration
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Namespace:   "tipografiya",
	}
}

// New creates a new Metrics instance registered on a private registry
func New(config *Config) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	ns := config.Namespace
	m := &Metrics{
		serviceName: config.ServiceName,
		registry:    registry,
	}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "http_requests_total", Help: "Total number of HTTP requests"},
		[]string{"service", "method", "path", "status"},
	)
	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"service", "method", "path"},
	)
	m.HTTPRequestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   ns,
		Name:        "http_requests_in_flight",
		Help:        "Number of HTTP requests currently being processed",
		ConstLabels: prometheus.Labels{"service": config.ServiceName},
	})

	m.KafkaEventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "kafka_events_published_total", Help: "Total number of Kafka events published"},
		[]string{"service", "topic", "event_type", "status"},
	)
	m.KafkaPublishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "kafka_publish_duration_seconds",
			Help:      "Kafka publish duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"service", "topic"},
	)
	m.MongoDBOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "mongodb_operations_total", Help: "Total number of MongoDB operations"},
		[]string{"service", "collection", "operation", "status"},
	)
	m.MongoDBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "mongodb_operation_duration_seconds",
			Help:      "MongoDB operation duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"service", "collection", "operation"},
	)
	m.OutboxPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   ns,
		Name:        "outbox_pending_events",
		Help:        "Number of outbox events waiting to be relayed",
		ConstLabels: prometheus.Labels{"service": config.ServiceName},
	})
	m.OutboxPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "outbox_events_relayed_total", Help: "Outbox events relayed to Kafka"},
		[]string{"service", "event_type", "status"},
	)
	m.CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: ns, Name: "circuit_breaker_state", Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)"},
		[]string{"service", "name"},
	)

	m.LayoutsCalculated = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "layouts_calculated_total", Help: "Sheet layout calculations by outcome"},
		[]string{"service", "result"},
	)
	m.LayoutWastePercent = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   ns,
		Name:        "layout_waste_percent",
		Help:        "Waste percent of recommended layouts",
		Buckets:     []float64{5, 10, 15, 20, 30, 40, 50, 75, 100},
		ConstLabels: prometheus.Labels{"service": config.ServiceName},
	})
	m.StockReservations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "stock_reservations_total", Help: "Stock ledger operations by kind and outcome"},
		[]string{"service", "operation", "status"},
	)
	m.StockConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "stock_consumed_quantity_total", Help: "Quantity consumed from batches"},
		[]string{"service", "material_id"},
	)
	m.LockAcquisitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "entity_lock_acquisitions_total", Help: "Entity lock acquisitions by outcome"},
		[]string{"service", "entity_type", "result"},
	)
	m.QueueOptimizations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "machine_queue_optimizations_total", Help: "Machine queue optimizations"},
		[]string{"service", "machine_id", "status"},
	)
	m.StepsScheduled = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "production_steps_scheduled_total", Help: "Production steps created by scheduling"},
		[]string{"service", "step_kind"},
	)
	m.OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "planning_operation_duration_seconds",
			Help:      "Duration of planning engine operations",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.KafkaEventsPublished,
		m.KafkaPublishDuration,
		m.MongoDBOperations,
		m.MongoDBOperationDuration,
		m.OutboxPending,
		m.OutboxPublished,
		m.CircuitBreakerState,
		m.LayoutsCalculated,
		m.LayoutWastePercent,
		m.StockReservations,
		m.StockConsumed,
		m.LockAcquisitions,
		m.QueueOptimizations,
		m.StepsScheduled,
		m.OperationDuration,
	)

	return m
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry returns the prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(m.serviceName, method, path, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(m.serviceName, method, path).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments in-flight requests
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.HTTPRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements in-flight requests
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.HTTPRequestsInFlight.Dec()
}

// RecordKafkaPublish records a Kafka publish
func (m *Metrics) RecordKafkaPublish(topic, eventType string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.KafkaEventsPublished.WithLabelValues(m.serviceName, topic, eventType, status(success)).Inc()
	m.KafkaPublishDuration.WithLabelValues(m.serviceName, topic).Observe(duration.Seconds())
}

// RecordMongoDBOperation records a MongoDB operation
func (m *Metrics) RecordMongoDBOperation(collection, operation string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.MongoDBOperations.WithLabelValues(m.serviceName, collection, operation, status(success)).Inc()
	m.MongoDBOperationDuration.WithLabelValues(m.serviceName, collection, operation).Observe(duration.Seconds())
}

// SetOutboxPending sets the number of events waiting in the outbox
func (m *Metrics) SetOutboxPending(count int) {
	if m == nil {
		return
	}
	m.OutboxPending.Set(float64(count))
}

// RecordOutboxPublish records one outbox relay attempt
func (m *Metrics) RecordOutboxPublish(eventType string, success bool) {
	if m == nil {
		return
	}
	m.OutboxPublished.WithLabelValues(m.serviceName, eventType, status(success)).Inc()
}

// SetCircuitBreakerState sets the circuit breaker state
func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(m.serviceName, name).Set(float64(state))
}

// RecordLayout records a layout calculation; waste is ignored for failures
func (m *Metrics) RecordLayout(feasible bool, wastePercent float64) {
	if m == nil {
		return
	}
	if !feasible {
		m.LayoutsCalculated.WithLabelValues(m.serviceName, "infeasible").Inc()
		return
	}
	m.LayoutsCalculated.WithLabelValues(m.serviceName, "feasible").Inc()
	m.LayoutWastePercent.Observe(wastePercent)
}

// RecordStockOperation records a reserve, consume or release outcome
func (m *Metrics) RecordStockOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.StockReservations.WithLabelValues(m.serviceName, operation, outcome).Inc()
}

// RecordStockConsumed adds a consumed quantity for a material
func (m *Metrics) RecordStockConsumed(materialID string, quantity float64) {
	if m == nil {
		return
	}
	m.StockConsumed.WithLabelValues(m.serviceName, materialID).Add(quantity)
}

// RecordLockAcquisition records an entity lock attempt ("acquired", "conflict" or "error")
func (m *Metrics) RecordLockAcquisition(entityType, result string) {
	if m == nil {
		return
	}
	m.LockAcquisitions.WithLabelValues(m.serviceName, entityType, result).Inc()
}

// RecordQueueOptimization records a machine queue reorder
func (m *Metrics) RecordQueueOptimization(machineID string, success bool) {
	if m == nil {
		return
	}
	m.QueueOptimizations.WithLabelValues(m.serviceName, machineID, status(success)).Inc()
}

// RecordStepScheduled records a production step created for an order
func (m *Metrics) RecordStepScheduled(stepKind string) {
	if m == nil {
		return
	}
	m.StepsScheduled.WithLabelValues(m.serviceName, stepKind).Inc()
}

// ObserveOperation records the duration of a planning operation
func (m *Metrics) ObserveOperation(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(m.serviceName, operation).Observe(duration.Seconds())
}
