package persist

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/pokemap/maptracker/internal/persist"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
