package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "404", StatusLabel(404, errors.New("not found")))
	assert.Equal(t, "ok", StatusLabel(0, nil))
	assert.Equal(t, "canceled", StatusLabel(0, fmt.Errorf("get: %w", context.DeadlineExceeded)))
	assert.Equal(t, "error", StatusLabel(0, errors.New("connection refused")))
}

func TestRecordAction(t *testing.T) {
	before := testutil.ToFloat64(ActionsTotal.WithLabelValues("metrics_test", "error"))
	RecordAction("metrics_test", errors.New("boom"))
	assert.Equal(t, before+1, testutil.ToFloat64(ActionsTotal.WithLabelValues("metrics_test", "error")))
}

func TestRecordStreamEvent(t *testing.T) {
	RecordStreamEvent("metrics_test", false)
	assert.Equal(t, float64(1), testutil.ToFloat64(StreamEventsTotal.WithLabelValues("metrics_test", "discarded")))
}
