package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marimovDEV/tipografiya/pkg/cloudevents"
	"github.com/marimovDEV/tipografiya/pkg/logging"
)

type reservedEvent struct {
	OrderID string `json:"orderId"`
	BatchID string `json:"batchId"`
}

func (e reservedEvent) EventType() string   { return cloudevents.StockReserved }
func (e reservedEvent) AggregateID() string { return e.BatchID }
func (e reservedEvent) OrderRef() string    { return e.OrderID }

type recordingProducer struct {
	mu     sync.Mutex
	fail   bool
	topics []string
	events []*cloudevents.PlanningEvent
}

func (p *recordingProducer) PublishEvent(ctx context.Context, topic string, event *cloudevents.PlanningEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

func TestRecorder_StoresCloudEvents(t *testing.T) {
	repo := NewMemoryRepository()
	recorder := NewRecorder(repo, cloudevents.NewEventFactory(cloudevents.SourceStockLedger), "MaterialBatch", "stock-topic")

	err := recorder.Record(context.Background(), reservedEvent{OrderID: "o-1", BatchID: "b-1"})
	require.NoError(t, err)

	stored := repo.Events()
	require.Len(t, stored, 1)
	assert.Equal(t, "b-1", stored[0].AggregateID)
	assert.Equal(t, "stock-topic", stored[0].Topic)

	ce, err := stored[0].ToCloudEvent()
	require.NoError(t, err)
	assert.Equal(t, cloudevents.StockReserved, ce.Type)
	assert.Equal(t, "o-1", ce.OrderID)
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var recorder *Recorder
	assert.NoError(t, recorder.Record(context.Background(), reservedEvent{BatchID: "b-1"}))
}

func TestPublisher_ProcessOnce(t *testing.T) {
	repo := NewMemoryRepository()
	recorder := NewRecorder(repo, cloudevents.NewEventFactory(cloudevents.SourceStockLedger), "MaterialBatch", "stock-topic")
	require.NoError(t, recorder.Record(context.Background(),
		reservedEvent{OrderID: "o-1", BatchID: "b-1"},
		reservedEvent{OrderID: "o-1", BatchID: "b-2"},
	))

	producer := &recordingProducer{fail: true}
	publisher := NewPublisher(repo, producer, logging.NewNop(), nil, nil)

	assert.Equal(t, 0, publisher.ProcessOnce(context.Background()))
	for _, e := range repo.Events() {
		assert.Equal(t, 1, e.RetryCount)
		assert.Equal(t, "broker unavailable", e.LastError)
	}

	producer.fail = false
	assert.Equal(t, 2, publisher.ProcessOnce(context.Background()))
	assert.Equal(t, []string{"stock-topic", "stock-topic"}, producer.topics)

	pending, err := repo.FindUnpublished(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
