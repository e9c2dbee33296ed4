package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type streamStat struct {
	messages int64
	bytes    int64
}

var (
	errorsBook  int64
	errorsTrade int64
	warnsBook   int64
	warnsTrade  int64
	errorCount  int64
	streams     sync.Map // map[string]*streamStat
)

func recordWarn(component string) {
	if strings.Contains(component, "book") {
		atomic.AddInt64(&warnsBook, 1)
	} else if strings.Contains(component, "trade") {
		atomic.AddInt64(&warnsTrade, 1)
	}
}

func recordError(component string) {
	atomic.AddInt64(&errorCount, 1)
	if strings.Contains(component, "book") {
		atomic.AddInt64(&errorsBook, 1)
	} else if strings.Contains(component, "trade") {
		atomic.AddInt64(&errorsTrade, 1)
	}
}

// ErrorCount returns the number of Error entries logged through an Entry
// carrying a component.
func ErrorCount() int64 {
	return atomic.LoadInt64(&errorCount)
}

// ResetErrorCount zeroes the error counters. Intended for tests.
func ResetErrorCount() {
	atomic.StoreInt64(&errorCount, 0)
	atomic.StoreInt64(&errorsBook, 0)
	atomic.StoreInt64(&errorsTrade, 0)
}

// RecordStreamMessage counts one inbound frame of the given size on a named
// stream, e.g. "kraken_book".
func RecordStreamMessage(name string, size int) {
	v, _ := streams.LoadOrStore(name, &streamStat{})
	st := v.(*streamStat)
	atomic.AddInt64(&st.messages, 1)
	atomic.AddInt64(&st.bytes, int64(size))
}

// StartReport begins periodic logging of runtime and stream statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logReport(log)
			}
		}
	}()
}

func logReport(log *Log) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	streamData := map[string]map[string]int64{}
	streams.Range(func(k, v any) bool {
		st := v.(*streamStat)
		streamData[k.(string)] = map[string]int64{
			"messages": atomic.LoadInt64(&st.messages),
			"bytes":    atomic.LoadInt64(&st.bytes),
		}
		return true
	})

	log.WithComponent("report").WithFields(Fields{
		"errors_book":  atomic.LoadInt64(&errorsBook),
		"errors_trade": atomic.LoadInt64(&errorsTrade),
		"warns_book":   atomic.LoadInt64(&warnsBook),
		"warns_trade":  atomic.LoadInt64(&warnsTrade),
		"error_count":  atomic.LoadInt64(&errorCount),
		"goroutines":   runtime.NumGoroutine(),
		"heap_mb":      int64(mem.HeapAlloc) / 1024 / 1024,
		"streams":      streamData,
	}).Info("runtime report")
}
