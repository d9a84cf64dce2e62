package watcher

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricListCalls = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "allocview_watcher_list_calls_total",
			Help: "Number of storage list calls",
		},
	)
	metricListFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "allocview_watcher_list_failed_total",
			Help: "Number of failed storage list calls",
		},
	)
	metricLoadCalls = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "allocview_watcher_load_calls_total",
			Help: "Number of dump load calls",
		},
	)
	metricLoadFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allocview_watcher_load_failed_total",
			Help: "Number of failed dump loads",
		},
		[]string{"stage"},
	)
	metricLoadBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "allocview_watcher_load_bytes_total",
			Help: "Number of dump bytes downloaded successfully",
		},
	)
	metricDumpsInStorage = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "allocview_watcher_dumps_in_storage_count",
			Help: "Number of blobs under the configured prefix in storage",
		},
	)
	metricDumpsInStorageBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "allocview_watcher_dumps_in_storage_bytes",
			Help: "Number of bytes occupied by blobs under the configured prefix",
		},
	)
	metricTracesLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "allocview_watcher_traces_loaded",
			Help: "Number of traces decoded and available",
		},
	)
	metricLoadSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "allocview_watcher_load_seconds",
			Help:    "Histogram of time taken to download and decode a dump",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)
)

func init() {
	prometheus.MustRegister(metricListCalls)
	prometheus.MustRegister(metricListFailed)
	prometheus.MustRegister(metricLoadCalls)
	prometheus.MustRegister(metricLoadFailed)
	prometheus.MustRegister(metricLoadBytes)
	prometheus.MustRegister(metricDumpsInStorage)
	prometheus.MustRegister(metricDumpsInStorageBytes)
	prometheus.MustRegister(metricTracesLoaded)
	prometheus.MustRegister(metricLoadSeconds)
}
