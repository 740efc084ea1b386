package main

import (
	"context"

	"github.com/rs/zerolog"

	"mislaka/internal/config"
	"mislaka/internal/metrics"
	"mislaka/internal/metrics/datadog"
)

type closableBackend interface {
	metrics.Backend
	Close() error
}

// newDatadogBackend is a test seam.
var newDatadogBackend = func(ctx context.Context, opts datadog.Options) (closableBackend, error) {
	return datadog.NewBackend(ctx, opts)
}

// initMetrics installs the configured backend and returns its shutdown
// hook. A backend that fails to start leaves the nop backend in place.
func initMetrics(ctx context.Context, cfg config.MetricsConfig, logger zerolog.Logger) func() {
	switch cfg.Backend {
	case "datadog":
		tags := datadog.ParseTagsCSV(cfg.Tags)
		b, err := newDatadogBackend(ctx, datadog.Options{
			JobName:    "mislaka",
			Tags:       tags,
			FlushEvery: cfg.FlushEvery,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("metrics: failed to init datadog backend; using nop")
			return func() {}
		}
		logger.Debug().Strs("tags", tags).Msg("metrics: datadog backend enabled")
		metrics.SetBackend(b)

		// Close stops the flush loop and performs a final Flush.
		return func() {
			if err := b.Close(); err != nil {
				logger.Warn().Err(err).Msg("metrics: datadog close/flush error")
			}
			metrics.SetBackend(nil)
		}

	default:
		logger.Debug().Str("backend", cfg.Backend).Msg("metrics: disabled")
		return func() {}
	}
}
