package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	simulationRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketsim",
		Name:      "simulation_runs_total",
		Help:      "Simulation runs by model and outcome.",
	}, []string{"model", "status"})

	simulationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "marketsim",
		Name:      "simulation_duration_seconds",
		Help:      "Wall clock duration of simulation runs.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"model"})

	simulationRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "marketsim",
		Name:      "simulation_validation_retries_total",
		Help:      "Path simulations re-run because the market type validation failed.",
	})

	datasetRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketsim",
		Name:      "dataset_rows_total",
		Help:      "Rows produced per dataset kind.",
	}, []string{"dataset"})
)
