package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	CyclesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ratio_cycles_total",
		Help: "Number of monitor cycles started",
	})

	CyclesSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ratio_cycles_skipped_total",
		Help: "Cycles skipped because notifications are disabled or the band is unset",
	})

	CycleErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ratio_cycle_errors_total",
		Help: "Cycles aborted by a fetch or persistence failure",
	})

	NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ratio_notifications_total",
		Help: "Delivered state-transition notifications",
	}, []string{"state"})

	NotificationFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ratio_notification_failures_total",
		Help: "Failed notification dispatches",
	})

	CurrentRatio = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ratio_current",
		Help: "Most recently computed WAL/SUI ratio",
	})

	FetchLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ratio_fetch_latency_seconds",
		Help:    "Time to fetch both ticker prices",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(
		CyclesTotal,
		CyclesSkipped,
		CycleErrors,
		NotificationsTotal,
		NotificationFailures,
		CurrentRatio,
		FetchLatency,
	)
}
