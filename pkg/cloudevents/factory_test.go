package cloudevents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marimovDEV/tipografiya/pkg/logging"
)

func TestEventFactory_CreateEvent(t *testing.T) {
	factory := NewEventFactory(SourceStockLedger)
	ctx := logging.ContextWithCorrelationID(context.Background(), "corr-1")

	event := factory.CreateEvent(ctx, StockReserved, "order-7", map[string]string{"batchId": "b-1"})

	assert.Equal(t, "1.0", event.SpecVersion)
	assert.Equal(t, StockReserved, event.Type)
	assert.Equal(t, SourceStockLedger, event.Source)
	assert.Equal(t, "order-7", event.Subject)
	assert.Equal(t, "corr-1", event.CorrelationID)
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Time.IsZero())
}
