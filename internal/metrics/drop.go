package metrics

import "bookflow/logger"

const channelDropsMetric = "channel_drops"

// DropMetric identifies the metric name emitted when output records are dropped.
type DropMetric string

const (
	// DropMetricBook records order books not delivered because the consumer went away.
	DropMetricBook DropMetric = "book_records_dropped"
	// DropMetricTrade records trade events not delivered.
	DropMetricTrade DropMetric = "trade_records_dropped"
	// DropMetricAlert records alerts not delivered.
	DropMetricAlert DropMetric = "alert_records_dropped"
	// DropMetricFrame records inbound frames discarded when a session ends
	// with frames still queued.
	DropMetricFrame DropMetric = "frames_dropped"
)

// EmitDropMetric logs and emits one dropped record. Optional vendor,
// instrument and stage values become metric dimensions.
func EmitDropMetric(log *logger.Log, metric DropMetric, vendor, instrument, stage string) {
	EmitDropMetricN(log, metric, vendor, instrument, stage, 1)
}

// EmitDropMetricN is EmitDropMetric for n records at once.
func EmitDropMetricN(log *logger.Log, metric DropMetric, vendor, instrument, stage string, n int) {
	if n <= 0 {
		return
	}

	fields := logger.Fields{"drop": string(metric)}
	if vendor != "" {
		fields["vendor"] = vendor
	}
	if instrument != "" {
		fields["instrument"] = instrument
	}
	if stage != "" {
		fields["stage"] = stage
	}

	EmitMetric(log, "channels", channelDropsMetric, n, string(Counter), fields)
}
