// Package metrics exposes Prometheus counters for the kiosk control
// loop over a plain HTTP endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dispenser-service/internal/logger"
)

var (
	CardScans = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kiosk_card_scans_total",
		Help: "Card taps received from the reader.",
	})
	UnknownCards = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kiosk_unknown_cards_total",
		Help: "Card taps that did not resolve to a registered account.",
	})
	Orders = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kiosk_orders_total",
		Help: "Orders accepted by the backend.",
	})
	OrderFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kiosk_order_failures_total",
		Help: "Orders refused by the backend or lost to transport errors.",
	})
	DispensesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kiosk_dispenses_completed_total",
		Help: "Dispense sessions that ended with a confirmed delivery.",
	})
	DispensesAborted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kiosk_dispenses_aborted_total",
		Help: "Dispense sessions cancelled before delivery.",
	})
	BackendErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kiosk_backend_errors_total",
		Help: "Failed requests to the kiosk backend.",
	})
	SensorNoEcho = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kiosk_sensor_no_echo_total",
		Help: "Rangefinder readings with no usable echo.",
	})
)

// Serve starts the metrics listener in the background. A failed listen
// is logged and swallowed: metrics are not worth taking the kiosk down.
func Serve(addr string, l *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			l.Errorf("Metrics listener failed: %v", err)
		}
	}()
}
