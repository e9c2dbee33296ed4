package metrics

import "bookflow/logger"

// WriterStats holds metrics for writer components.
type WriterStats struct {
	BooksWritten  int64
	TradesWritten int64
	AlertsWritten int64
	BytesWritten  int64
	ErrorsCount   int64
}

// ReportWriter emits common writer metrics using the provided logger and component name.
func ReportWriter(log *logger.Log, component string, stats WriterStats) {
	l := log.WithComponent(component)

	records := stats.BooksWritten + stats.TradesWritten + stats.AlertsWritten
	errorRate := float64(0)
	if records+stats.ErrorsCount > 0 {
		errorRate = float64(stats.ErrorsCount) / float64(records+stats.ErrorsCount)
	}

	EmitMetric(log, component, "books_written", stats.BooksWritten, "counter", logger.Fields{})
	EmitMetric(log, component, "trades_written", stats.TradesWritten, "counter", logger.Fields{})
	EmitMetric(log, component, "alerts_written", stats.AlertsWritten, "counter", logger.Fields{})
	EmitMetric(log, component, "bytes_written", stats.BytesWritten, "counter", logger.Fields{"unit": "bytes"})
	EmitMetric(log, component, "errors_count", stats.ErrorsCount, "counter", logger.Fields{})
	EmitMetric(log, component, "error_rate", errorRate, "gauge", logger.Fields{})

	entry := l.WithFields(logger.Fields{
		"books_written":  stats.BooksWritten,
		"trades_written": stats.TradesWritten,
		"alerts_written": stats.AlertsWritten,
		"bytes_written":  stats.BytesWritten,
		"errors_count":   stats.ErrorsCount,
		"error_rate":     errorRate,
	})

	if stats.ErrorsCount > 0 {
		entry.Warn(component + " metrics")
		return
	}

	entry.Info(component + " metrics")
}
