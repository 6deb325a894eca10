// Package metrics declares the opencensus measures of the learner and the service and exposes them
// through a prometheus exporter.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"contrib.go.opencensus.io/exporter/prometheus"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	keyResult  = mustKey("result")
	keyVerdict = mustKey("verdict")
)

var (
	mAttempts    = stats.Int64("surrogate/ensemble_attempts", "Committee training attempts", stats.UnitDimensionless)
	mEpochs      = stats.Int64("surrogate/training_epochs", "Epochs run by a single network", stats.UnitDimensionless)
	mRetrain     = stats.Float64("surrogate/retrain_latency", "Wall time of a full retrain", stats.UnitMilliseconds)
	mPredictions = stats.Int64("surrogate/predictions", "Answered predictions", stats.UnitDimensionless)
)

var Views = []*view.View{
	{
		Name:        "surrogate/ensemble_attempts_total",
		Description: "Committee training attempts by result",
		Measure:     mAttempts,
		TagKeys:     []tag.Key{keyResult},
		Aggregation: view.Count(),
	},
	{
		Name:        "surrogate/training_epochs",
		Description: "Distribution of epochs run per network",
		Measure:     mEpochs,
		Aggregation: view.Distribution(10, 50, 100, 250, 500, 1000, 2000, 5000),
	},
	{
		Name:        "surrogate/retrain_latency",
		Description: "Distribution of retrain wall time",
		Measure:     mRetrain,
		Aggregation: view.Distribution(100, 1000, 10000, 60000, 300000, 1800000),
	},
	{
		Name:        "surrogate/predictions_total",
		Description: "Predictions by verdict",
		Measure:     mPredictions,
		TagKeys:     []tag.Key{keyVerdict},
		Aggregation: view.Count(),
	},
}

func mustKey(name string) tag.Key {
	k, err := tag.NewKey(name)
	if err != nil {
		panic(err)
	}
	return k
}

// Register registers the views and returns the prometheus handler serving them.
func Register(cfg *Config) (http.Handler, error) {
	if err := view.Register(Views...); err != nil {
		return nil, fmt.Errorf("register views: %w", err)
	}
	exporter, err := prometheus.NewExporter(prometheus.Options{Namespace: cfg.Namespace})
	if err != nil {
		view.Unregister(Views...)
		return nil, fmt.Errorf("prometheus exporter: %w", err)
	}
	view.RegisterExporter(exporter)
	view.SetReportingPeriod(cfg.ReportingPeriod)
	return exporter, nil
}

func RecordAttempt(ctx context.Context, accepted bool) {
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	_ = stats.RecordWithTags(ctx, []tag.Mutator{tag.Upsert(keyResult, result)}, mAttempts.M(1))
}

func RecordTrainingEpochs(ctx context.Context, epochs int) {
	stats.Record(ctx, mEpochs.M(int64(epochs)))
}

func RecordRetrain(ctx context.Context, d time.Duration) {
	stats.Record(ctx, mRetrain.M(float64(d)/float64(time.Millisecond)))
}

func RecordPrediction(ctx context.Context, ok bool) {
	verdict := "reject"
	if ok {
		verdict = "ok"
	}
	_ = stats.RecordWithTags(ctx, []tag.Mutator{tag.Upsert(keyVerdict, verdict)}, mPredictions.M(1))
}
