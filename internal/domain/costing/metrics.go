package costing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// propagatedTotal counts menu items seen by propagation, by result.
	propagatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "larder",
		Subsystem: "costing",
		Name:      "menu_items_total",
		Help:      "Menu items processed by cost propagation",
	}, []string{"result"})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "larder",
		Subsystem: "costing",
		Name:      "cache_lookups_total",
		Help:      "Menu cost cache lookups",
	}, []string{"result"})
)
