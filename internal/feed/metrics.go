package feed

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/pawprint/petfeed/internal/feed"

type instruments struct {
	pageFetches   metric.Int64Counter
	fetchErrors   metric.Int64Counter
	likeRollbacks metric.Int64Counter
}

// Instruments are created against the global provider, which forwards to the
// real one once telemetry.Init installs it.
var feedMetrics = newInstruments()

func newInstruments() instruments {
	meter := otel.Meter(instrumentationName)
	pageFetches, _ := meter.Int64Counter("feed.page_fetches",
		metric.WithDescription("Page fetches issued by feed sessions"))
	fetchErrors, _ := meter.Int64Counter("feed.fetch_errors",
		metric.WithDescription("Page fetches that failed"))
	likeRollbacks, _ := meter.Int64Counter("feed.like_rollbacks",
		metric.WithDescription("Optimistic like or unlike updates that were reverted"))
	return instruments{
		pageFetches:   pageFetches,
		fetchErrors:   fetchErrors,
		likeRollbacks: likeRollbacks,
	}
}

func (m instruments) fetched(ctx context.Context, kind ScopeKind, initial bool) {
	m.pageFetches.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", string(kind)),
		attribute.Bool("initial", initial),
	))
}

func (m instruments) failed(ctx context.Context, kind ScopeKind, initial bool) {
	m.fetchErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", string(kind)),
		attribute.Bool("initial", initial),
	))
}

func (m instruments) rolledBack(ctx context.Context, action string) {
	m.likeRollbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}
