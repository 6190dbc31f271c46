package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Результаты обработки одной отгрузки.
const (
	ResultProcessed = "processed"
	ResultSkipped   = "skipped"
	ResultFailed    = "failed"
)

var (
	ShipmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dekks_reconcile_shipments_total",
			Help: "Shipments handled by reconciliation, by result",
		},
		[]string{"result"},
	)

	FailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dekks_reconcile_failures_total",
			Help: "Failed shipment reconciliations by reason",
		},
		[]string{"reason"},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dekks_notifications_total",
			Help: "Notification deliveries by channel and result",
		},
		[]string{"channel", "result"},
	)

	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dekks_reconcile_duration_seconds",
			Help:    "Duration of a full reconciliation run",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	InFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dekks_reconcile_in_flight",
			Help: "Shipments being reconciled right now",
		},
	)
)

func init() {
	prometheus.MustRegister(ShipmentsTotal)
	prometheus.MustRegister(FailuresTotal)
	prometheus.MustRegister(NotificationsTotal)
	prometheus.MustRegister(RunDuration)
	prometheus.MustRegister(InFlight)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

func (t *Timer) ObserveDuration(o prometheus.Observer) time.Duration {
	d := t.Duration()
	o.Observe(d.Seconds())
	return d
}
