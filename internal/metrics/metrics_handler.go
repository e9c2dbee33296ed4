package metrics

import (
	"slices"
	"sync"
	"time"

	"bookflow/logger"
)

// MetricType tells consumers how to aggregate a metric value.
type MetricType string

const (
	Counter MetricType = "counter"
	Gauge   MetricType = "gauge"
)

// Dimension keys lifted onto Metric when present in the emit fields.
const (
	fieldVendor     = "vendor"
	fieldInstrument = "instrument"
	fieldStream     = "stream"
)

// Metric is one measurement taken inside the feed handler. Vendor, Instrument
// and Stream mirror the matching emit fields; Fields keeps every dimension,
// those three included, for publishing.
type Metric struct {
	Timestamp  time.Time
	Component  string
	Name       string
	Value      interface{}
	Type       MetricType
	Vendor     string
	Instrument string
	Stream     string
	Fields     logger.Fields
}

func newMetric(component, name string, value interface{}, metricType string, fields logger.Fields) Metric {
	m := Metric{
		Timestamp: timeNow(),
		Component: component,
		Name:      name,
		Value:     value,
		Type:      MetricType(metricType),
		Fields:    make(logger.Fields, len(fields)),
	}
	if m.Type == "" {
		m.Type = Counter
	}
	for k, v := range fields {
		m.Fields[k] = v
		s, ok := v.(string)
		if !ok {
			continue
		}
		switch k {
		case fieldVendor:
			m.Vendor = s
		case fieldInstrument:
			m.Instrument = s
		case fieldStream:
			m.Stream = s
		}
	}
	return m
}

// MetricFilter narrows the metrics a handler receives. Empty criteria match
// every metric.
type MetricFilter struct {
	Components []string
	Names      []string
	Vendor     string
	Instrument string
}

// Match reports whether m satisfies every non-empty criterion.
func (f MetricFilter) Match(m Metric) bool {
	if len(f.Components) > 0 && !slices.Contains(f.Components, m.Component) {
		return false
	}
	if len(f.Names) > 0 && !slices.Contains(f.Names, m.Name) {
		return false
	}
	if f.Vendor != "" && f.Vendor != m.Vendor {
		return false
	}
	if f.Instrument != "" && f.Instrument != m.Instrument {
		return false
	}
	return true
}

// MetricHandler consumes metric events. Handlers run synchronously on the
// emitting goroutine and must not block.
type MetricHandler func(Metric)

// MetricHandlerID identifies a registration; zero is never issued.
type MetricHandlerID uint64

type subscription struct {
	filter MetricFilter
	handle MetricHandler
}

type handlerRegistry struct {
	mu   sync.RWMutex
	last MetricHandlerID
	subs map[MetricHandlerID]subscription
}

var handlers = &handlerRegistry{subs: make(map[MetricHandlerID]subscription)}

func (r *handlerRegistry) add(filter MetricFilter, handle MetricHandler) MetricHandlerID {
	if handle == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last++
	r.subs[r.last] = subscription{filter: filter, handle: handle}
	return r.last
}

func (r *handlerRegistry) remove(id MetricHandlerID) {
	r.mu.Lock()
	delete(r.subs, id)
	r.mu.Unlock()
}

func (r *handlerRegistry) dispatch(m Metric) {
	r.mu.RLock()
	matched := make([]MetricHandler, 0, len(r.subs))
	for _, sub := range r.subs {
		if sub.filter.Match(m) {
			matched = append(matched, sub.handle)
		}
	}
	r.mu.RUnlock()

	for _, handle := range matched {
		handle(m)
	}
}

// RegisterMetricHandler subscribes handler to every emitted metric.
func RegisterMetricHandler(handler MetricHandler) MetricHandlerID {
	return handlers.add(MetricFilter{}, handler)
}

// RegisterFilteredMetricHandler subscribes handler to the metrics accepted
// by filter. A nil handler yields a zero identifier.
func RegisterFilteredMetricHandler(filter MetricFilter, handler MetricHandler) MetricHandlerID {
	return handlers.add(filter, handler)
}

// UnregisterMetricHandler drops a registration. Unknown and zero identifiers
// are ignored.
func UnregisterMetricHandler(id MetricHandlerID) {
	if id == 0 {
		return
	}
	handlers.remove(id)
}
