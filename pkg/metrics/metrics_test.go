package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_PlanningCounters(t *testing.T) {
	m := New(DefaultConfig("planner-test"))

	m.RecordLayout(true, 28.5)
	m.RecordLayout(false, 0)
	m.RecordStockOperation("reserve", "insufficient")
	m.RecordLockAcquisition("machine", "conflict")
	m.ObserveOperation("reserve", 3*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LayoutsCalculated.WithLabelValues("planner-test", "feasible")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LayoutsCalculated.WithLabelValues("planner-test", "infeasible")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StockReservations.WithLabelValues("planner-test", "reserve", "insufficient")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LockAcquisitions.WithLabelValues("planner-test", "machine", "conflict")))
}

func TestMetrics_NilReceiverIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordLayout(true, 10)
		m.RecordStockConsumed("paper", 5)
		m.RecordQueueOptimization("m-1", true)
		m.IncrementHTTPRequestsInFlight()
	})
}
