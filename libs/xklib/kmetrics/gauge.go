package kmetrics

import (
	"github.com/xinkaiwang/integralfarm/libs/xklib/kerror"
	"go.opencensus.io/metric"
	"go.opencensus.io/metric/metricdata"
)

// AddFloat64DerivedGauge registers a gauge whose value is pulled from fn on every scrape.
func AddFloat64DerivedGauge(r *metric.Registry, name string, description string, fn func() float64) error {
	gauge, err := r.AddFloat64DerivedGauge(name,
		metric.WithDescription(description),
		metric.WithUnit(metricdata.UnitDimensionless),
	)
	if err != nil {
		return kerror.Wrap(err, "MetricProducerFail", "error creating gauge", false).With("gaugeName", name)
	}
	if err := gauge.UpsertEntry(fn); err != nil {
		return kerror.Wrap(err, "UpsertEntryFail", "error upserting gauge entry", false).With("gaugeName", name)
	}
	return nil
}
