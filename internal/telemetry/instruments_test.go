package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Sum[int64] {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := make(map[string]metricdata.Sum[int64])
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				sums[m.Name] = sum
			}
		}
	}
	return sums
}

func valueFor(sum metricdata.Sum[int64], key, value string) int64 {
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	return 0
}

func TestMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	metrics, err := NewMetrics(provider.Meter("storefront"))
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordCheckout(ctx, "success")
	metrics.RecordCheckout(ctx, "success")
	metrics.RecordCheckout(ctx, "EmptyCart")
	metrics.RecordOrphanedOrder(ctx)
	metrics.RecordEnrichment(ctx, "stale")

	sums := collect(t, reader)

	assert.Equal(t, int64(2), valueFor(sums["storefront.checkouts"], "outcome", "success"))
	assert.Equal(t, int64(1), valueFor(sums["storefront.checkouts"], "outcome", "EmptyCart"))
	assert.Equal(t, int64(1), valueFor(sums["storefront.cart.enrichments"], "outcome", "stale"))

	orphaned := sums["storefront.orders.orphaned"]
	require.Len(t, orphaned.DataPoints, 1)
	assert.Equal(t, int64(1), orphaned.DataPoints[0].Value)
}
