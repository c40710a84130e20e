package purchasing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "larder",
		Subsystem: "purchasing",
		Name:      "deliveries_total",
		Help:      "Purchase order deliveries by outcome",
	}, []string{"outcome"})

	costChangesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "larder",
		Subsystem: "purchasing",
		Name:      "cost_changes_total",
		Help:      "Inventory cost changes caused by deliveries",
	})

	// followUpFailures counts post-commit steps that failed (dispatch, notify, audit).
	followUpFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "larder",
		Subsystem: "purchasing",
		Name:      "follow_up_failures_total",
		Help:      "Best-effort steps after delivery commit that failed",
	}, []string{"step"})
)
