package fulfillment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// deductionsTotal counts Deduct calls by outcome (applied, replayed, error).
	deductionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "larder",
		Subsystem: "fulfillment",
		Name:      "deductions_total",
		Help:      "Order deductions by outcome",
	}, []string{"outcome"})

	// warningsTotal counts non-fatal warnings by kind (oversold, unresolved).
	warningsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "larder",
		Subsystem: "fulfillment",
		Name:      "warnings_total",
		Help:      "Deduction warnings by kind",
	}, []string{"kind"})
)
