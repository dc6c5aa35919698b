package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/dwsmith1983/atfreport/pkg/types"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sum(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	data, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range data.DataPoints {
		total += dp.Value
	}
	return total
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	r, err := New(provider.Meter("test"))
	require.NoError(t, err)

	r.MessageProcessed(ctx, 120*time.Millisecond)
	r.MessageProcessed(ctx, 80*time.Millisecond)
	r.MessageFailed(ctx, types.StageFetch, 10*time.Millisecond)
	r.ReportUploaded(ctx)
	r.NotificationSent(ctx, "station")
	r.NotificationSent(ctx, "tester")

	got := collect(t, reader)
	assert.Equal(t, int64(2), sum(t, got[MessagesProcessed]))
	assert.Equal(t, int64(1), sum(t, got[MessagesFailed]))
	assert.Equal(t, int64(1), sum(t, got[ReportsUploaded]))
	assert.Equal(t, int64(2), sum(t, got[NotificationsSent]))

	failed := got[MessagesFailed].Data.(metricdata.Sum[int64])
	require.Len(t, failed.DataPoints, 1)
	stage, ok := failed.DataPoints[0].Attributes.Value(attribute.Key("stage"))
	require.True(t, ok)
	assert.Equal(t, "FETCH", stage.AsString())

	hist, ok := got[MessageDuration].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(3), count)
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	ctx := context.Background()
	assert.NotPanics(t, func() {
		r.MessageProcessed(ctx, time.Second)
		r.MessageFailed(ctx, types.StageParse, time.Second)
		r.ReportUploaded(ctx)
		r.NotificationSent(ctx, "tester")
	})
}
