package metrics

import (
	"context"
	"time"

	"bookflow/logger"
)

// Buffer describes the occupancy of one buffered channel or queue.
type Buffer struct {
	Name string
	Len  int
	Cap  int
}

// BufferSource reports the buffers it owns.
type BufferSource interface {
	Buffers() []Buffer
}

// StartChannelSizeMetrics emits occupancy gauges for every buffer of src
// every interval until ctx is cancelled. A one-second cadence is used when
// interval <= 0.
func StartChannelSizeMetrics(ctx context.Context, src BufferSource, interval time.Duration) {
	if src == nil {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}

	log := logger.GetLogger()
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ReportBuffers(log, src)
			}
		}
	}()
}

// ReportBuffers emits one gauge per buffer.
func ReportBuffers(log *logger.Log, src BufferSource) {
	for _, b := range src.Buffers() {
		EmitMetric(log, "channel_buffers", b.Name+"_buffer_length", b.Len, "gauge", logger.Fields{
			"buffer":   b.Name,
			"capacity": b.Cap,
		})
	}
}
