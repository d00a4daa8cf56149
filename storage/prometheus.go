package storage

import "github.com/prometheus/client_golang/prometheus"

func init() {
	prometheus.MustRegister(
		PromGCDurationMilliseconds,
		PromInfohashesCount,
		PromSeedersCount,
		PromLeechersCount,
	)
}

var (
	// PromGCDurationMilliseconds records how long a garbage collection sweep
	// took to remove expired peers.
	PromGCDurationMilliseconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "torrtrack_storage_gc_duration_milliseconds",
		Help:    "The time it takes to perform storage garbage collection",
		Buckets: prometheus.ExponentialBuckets(9.375, 2, 10),
	})

	// PromInfohashesCount is the current total number of unique swarms being
	// tracked.
	PromInfohashesCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "torrtrack_storage_infohashes_count",
		Help: "The number of infohashes tracked",
	})

	// PromSeedersCount is the current total number of seeders across all
	// swarms.
	PromSeedersCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "torrtrack_storage_seeders_count",
		Help: "The number of seeders tracked",
	})

	// PromLeechersCount is the current total number of leechers across all
	// swarms.
	PromLeechersCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "torrtrack_storage_leechers_count",
		Help: "The number of leechers tracked",
	})
)
