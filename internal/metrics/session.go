package metrics

import "bookflow/logger"

// SessionStats summarises one stream session when it ends.
type SessionStats struct {
	Vendor             string
	Stream             string
	Frames             int64
	Books              int64
	Trades             int64
	UnknownChannels    int64
	OutOfOrderDeltas   int64
	ChecksumMismatches int64
	Regressions        int64
}

// ReportSession emits the counters of a finished session.
func ReportSession(log *logger.Log, stats SessionStats) {
	component := stats.Vendor + "_" + stats.Stream + "_reader"
	fields := logger.Fields{"vendor": stats.Vendor, "stream": stats.Stream}

	EmitMetric(log, component, "session_frames", stats.Frames, "counter", fields)
	EmitMetric(log, component, "books_emitted", stats.Books, "counter", fields)
	EmitMetric(log, component, "trades_emitted", stats.Trades, "counter", fields)

	alertsTotal := stats.UnknownChannels + stats.OutOfOrderDeltas + stats.ChecksumMismatches + stats.Regressions
	EmitMetric(log, component, "alerts", alertsTotal, "counter", fields)

	entry := log.WithComponent(component).WithFields(logger.Fields{
		"frames":              stats.Frames,
		"books":               stats.Books,
		"trades":              stats.Trades,
		"unknown_channels":    stats.UnknownChannels,
		"out_of_order_deltas": stats.OutOfOrderDeltas,
		"checksum_mismatches": stats.ChecksumMismatches,
		"timestamp_regressed": stats.Regressions,
	})
	if alertsTotal > 0 {
		entry.Warn("session finished with alerts")
		return
	}
	entry.Info("session finished")
}
