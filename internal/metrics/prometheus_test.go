package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordAnalysis(t *testing.T) {
	before := testutil.ToFloat64(AnalysisRuns.WithLabelValues("test-chain", "error"))
	RecordAnalysis("test-chain", time.Second, errors.New("boom"))
	assert.Equal(t, before+1, testutil.ToFloat64(AnalysisRuns.WithLabelValues("test-chain", "error")))
}

func TestSetAnalysisUsers(t *testing.T) {
	SetAnalysisUsers("test-chain", 10, 7, 3, 1)
	assert.Equal(t, 7.0, testutil.ToFloat64(AnalysisUsers.WithLabelValues("test-chain", "with_debt")))
	assert.Equal(t, 1.0, testutil.ToFloat64(AnalysisUsers.WithLabelValues("test-chain", "excluded")))
}

func TestRecordEventsIngested(t *testing.T) {
	before := testutil.ToFloat64(EventsIngested.WithLabelValues("test-chain", "borrow"))
	RecordEventsIngested("test-chain", "borrow", 4)
	assert.Equal(t, before+4, testutil.ToFloat64(EventsIngested.WithLabelValues("test-chain", "borrow")))
}

func TestInitIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Init()
		Init()
	})
}
