package metrics

import "time"

type Config struct {
	Enabled   bool   `envconfig:"SURROGATE_METRICS_ENABLED" default:"true"`
	Namespace string `envconfig:"SURROGATE_METRICS_NAMESPACE" default:"surrogate"`
	Path      string `envconfig:"SURROGATE_METRICS_PATH" default:"/metrics"`
	// interval at which views are pushed to the exporter
	ReportingPeriod time.Duration `envconfig:"SURROGATE_METRICS_REPORTING_PERIOD" default:"10s"`
}
