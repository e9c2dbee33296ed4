package dashboard

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"bookflow/internal/metrics"
)

// ring keeps the newest limit items. It is safe for concurrent use.
type ring[T any] struct {
	mu    sync.RWMutex
	items []T
	limit int
}

func newRing[T any](limit int) *ring[T] {
	if limit <= 0 {
		limit = 200
	}
	return &ring[T]{limit: limit}
}

func (r *ring[T]) add(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, v)
	if len(r.items) > r.limit {
		r.items = append([]T(nil), r.items[len(r.items)-r.limit:]...)
	}
}

// filter returns a copy of the retained items accepted by keep, oldest
// first. A nil keep accepts everything.
func (r *ring[T]) filter(keep func(T) bool) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, 0, len(r.items))
	for _, v := range r.items {
		if keep == nil || keep(v) {
			out = append(out, v)
		}
	}
	return out
}

// metricStore retains the most recent metric events, fed through the
// metrics handler registry.
type metricStore struct {
	*ring[metrics.Metric]
}

func newMetricStore(limit int) *metricStore {
	return &metricStore{ring: newRing[metrics.Metric](limit)}
}

func (s *metricStore) handle(metric metrics.Metric) { s.add(metric) }

// snapshot returns the retained metrics accepted by f.
func (s *metricStore) snapshot(f metrics.MetricFilter) []metrics.Metric {
	return s.filter(f.Match)
}

type logRecord struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`

	level logrus.Level
}

// logStore is a logrus hook retaining the most recent log entries.
type logStore struct {
	*ring[logRecord]
	enabled atomic.Bool
}

func newLogStore(limit int) *logStore {
	ls := &logStore{ring: newRing[logRecord](limit)}
	ls.enabled.Store(true)
	return ls
}

func (s *logStore) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (s *logStore) Fire(entry *logrus.Entry) error {
	if !s.enabled.Load() {
		return nil
	}

	record := logRecord{
		Timestamp: entry.Time,
		Level:     entry.Level.String(),
		Message:   entry.Message,
		level:     entry.Level,
	}
	if component, ok := entry.Data["component"].(string); ok {
		record.Component = component
	}

	if len(entry.Data) > 0 {
		record.Fields = make(map[string]interface{}, len(entry.Data))
		for k, v := range entry.Data {
			if k == "component" {
				continue
			}
			switch val := v.(type) {
			case error:
				record.Fields[k] = val.Error()
			case fmt.Stringer:
				record.Fields[k] = val.String()
			default:
				record.Fields[k] = val
			}
		}
	}

	s.add(record)
	return nil
}

// snapshot returns entries at least as severe as threshold.
func (s *logStore) snapshot(threshold logrus.Level) []logRecord {
	return s.filter(func(r logRecord) bool { return r.level <= threshold })
}

func (s *logStore) close() {
	s.enabled.Store(false)
}
