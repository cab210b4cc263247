package tree

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	nodesStored = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hlt",
		Subsystem: "tree",
		Name:      "nodes_stored_total",
		Help:      "Tree nodes written to the content store, including re-stores of unchanged nodes.",
	})
	nodesLoaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hlt",
		Subsystem: "tree",
		Name:      "nodes_loaded_total",
		Help:      "Tree nodes resolved, by where the bytes came from.",
	}, []string{"source"})
	splits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hlt",
		Subsystem: "tree",
		Name:      "splits_total",
		Help:      "Node splits performed while inserting.",
	})
	merges = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hlt",
		Subsystem: "tree",
		Name:      "merges_total",
		Help:      "Node merges performed while removing.",
	})
	rotations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hlt",
		Subsystem: "tree",
		Name:      "rotations_total",
		Help:      "Elements borrowed from a sibling while removing.",
	})
)
