package graph

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/duynguyendang/factgraph/pkg/graph"

var (
	evictionsOnce    sync.Once
	evictionsCounter metric.Int64Counter
)

// recordEviction counts one cache eviction on the global meter provider.
func recordEviction(cache string) {
	evictionsOnce.Do(func() {
		c, err := otel.Meter(instrumentationName).Int64Counter(
			"factgraph.graph.evictions",
			metric.WithDescription("Entries evicted from the graph element caches"),
		)
		if err == nil {
			evictionsCounter = c
		}
	})
	if evictionsCounter == nil {
		return
	}
	evictionsCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("cache", cache)))
}
