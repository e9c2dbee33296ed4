// Registers:
//
//	#bookflow_books_emitted_total
//	#bookflow_trades_emitted_total
//	#bookflow_alerts_total
//	#bookflow_reconnects_total
//	#bookflow_records_dropped_total
//	#bookflow_book_depth
//	#go_* and process_* system metrics
//
// Exposes them on the configured address (default :2112) under /metrics
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bookflow/logger"
)

const DefaultAddress = "0.0.0.0:2112"

var (
	once sync.Once

	booksEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookflow_books_emitted_total",
			Help: "Number of reconstructed order books emitted downstream",
		},
		[]string{"vendor", "instrument"},
	)

	tradesEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookflow_trades_emitted_total",
			Help: "Number of normalized trade events emitted downstream",
		},
		[]string{"vendor", "instrument"},
	)

	alerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookflow_alerts_total",
			Help: "Per-message data quality failures by kind",
		},
		[]string{"vendor", "kind", "instrument"},
	)

	reconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookflow_reconnects_total",
			Help: "Number of stream sessions opened after the first one",
		},
		[]string{"vendor", "stream"},
	)

	recordsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookflow_records_dropped_total",
			Help: "Records discarded before delivery, by drop kind",
		},
		[]string{"vendor", "drop"},
	)

	bookDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bookflow_book_depth",
			Help: "Stored levels per instrument and side",
		},
		[]string{"vendor", "instrument", "side"},
	)
)

// Init registers the collectors and serves them over HTTP. Only the first
// call has any effect.
func Init(addr string) {
	once.Do(func() {
		if addr == "" {
			addr = DefaultAddress
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(booksEmitted, tradesEmitted, alerts, reconnects, recordsDropped, bookDepth)
		RegisterFilteredMetricHandler(MetricFilter{Names: []string{channelDropsMetric}}, countDrops)
		reg.MustRegister(collectors.NewGoCollector())
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

		go func() {
			log := logger.GetLogger().WithComponent("metrics")
			log.WithFields(logger.Fields{"address": addr}).Info("serving prometheus metrics")
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.WithError(err).Error("metrics server failed")
			}
		}()
	})
}

// IncrementBooks counts one emitted order book.
func IncrementBooks(vendor, instrument string) {
	booksEmitted.WithLabelValues(vendor, instrument).Inc()
}

// IncrementTrades counts n emitted trade events.
func IncrementTrades(vendor, instrument string, n int) {
	if n <= 0 {
		return
	}
	tradesEmitted.WithLabelValues(vendor, instrument).Add(float64(n))
}

// IncrementAlert counts one data quality failure.
func IncrementAlert(vendor, kind, instrument string) {
	alerts.WithLabelValues(vendor, kind, instrument).Inc()
}

func IncrementReconnect(vendor, stream string) {
	reconnects.WithLabelValues(vendor, stream).Inc()
}

// SetDepth records the stored level count of one book side.
func SetDepth(vendor, instrument, side string, levels int) {
	bookDepth.WithLabelValues(vendor, instrument, side).Set(float64(levels))
}

// ResetDepth removes the depth series of an instrument that is no longer
// tracked.
func ResetDepth(vendor, instrument string) {
	bookDepth.DeletePartialMatch(prometheus.Labels{"vendor": vendor, "instrument": instrument})
}

// countDrops mirrors channel drop events into the Prometheus counter.
func countDrops(m Metric) {
	n, ok := toFloat64(m.Value)
	if !ok || n <= 0 {
		return
	}
	drop, _ := m.Fields["drop"].(string)
	recordsDropped.WithLabelValues(m.Vendor, drop).Add(n)
}
