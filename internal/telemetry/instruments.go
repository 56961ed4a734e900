package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records storefront business outcomes.
type Metrics struct {
	checkouts      metric.Int64Counter
	orphanedOrders metric.Int64Counter
	enrichments    metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	checkouts, err := meter.Int64Counter("storefront.checkouts",
		metric.WithDescription("Checkout attempts by outcome"),
		metric.WithUnit("{checkout}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create checkouts counter: %w", err)
	}

	orphaned, err := meter.Int64Counter("storefront.orders.orphaned",
		metric.WithDescription("Orders created whose line items could not be written"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create orphaned orders counter: %w", err)
	}

	enrichments, err := meter.Int64Counter("storefront.cart.enrichments",
		metric.WithDescription("Cart enrichment fetches by outcome"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create enrichments counter: %w", err)
	}

	return &Metrics{
		checkouts:      checkouts,
		orphanedOrders: orphaned,
		enrichments:    enrichments,
	}, nil
}

func (m *Metrics) RecordCheckout(ctx context.Context, outcome string) {
	m.checkouts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) RecordOrphanedOrder(ctx context.Context) {
	m.orphanedOrders.Add(ctx, 1)
}

func (m *Metrics) RecordEnrichment(ctx context.Context, outcome string) {
	m.enrichments.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
