package dashboard

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"bookflow/logger"
)

// resourceSnapshot is one sample of host and process utilisation.
type resourceSnapshot struct {
	Timestamp   time.Time `json:"timestamp"`
	CPUPercent  float64   `json:"cpu_percent"`
	MemoryUsed  uint64    `json:"memory_used"`
	MemoryTotal uint64    `json:"memory_total"`
	MemoryPct   float64   `json:"memory_percent"`
	DiskUsed    uint64    `json:"disk_used"`
	DiskTotal   uint64    `json:"disk_total"`
	DiskPct     float64   `json:"disk_percent"`
	Goroutines  int       `json:"goroutines"`
	HeapAlloc   uint64    `json:"heap_alloc"`
}

type resourceSampler struct {
	samples  *ring[resourceSnapshot]
	interval time.Duration
	diskPath string

	cancel  context.CancelFunc
	running atomic.Bool
	wg      sync.WaitGroup
	log     *logger.Log
}

// replaced in tests
var (
	cpuPercentFn = func(ctx context.Context, interval time.Duration) ([]float64, error) {
		return cpu.PercentWithContext(ctx, interval, false)
	}
	memoryStatsFn = mem.VirtualMemoryWithContext
	diskUsageFn   = disk.UsageWithContext
)

func newResourceSampler(limit int, interval time.Duration, diskPath string, log *logger.Log) *resourceSampler {
	if interval <= 0 {
		interval = time.Second
	}
	if diskPath == "" {
		diskPath = "/"
	}
	return &resourceSampler{
		samples:  newRing[resourceSnapshot](limit),
		interval: interval,
		diskPath: diskPath,
		log:      log,
	}
}

func (s *resourceSampler) start(ctx context.Context) {
	if s.running.Swap(true) {
		return
	}
	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(childCtx)
	}()
}

func (s *resourceSampler) stop() {
	if cancel := s.cancel; cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.running.Store(false)
}

func (s *resourceSampler) snapshot() []resourceSnapshot {
	return s.samples.filter(nil)
}

// run samples until ctx is done. cpuPercentFn blocks for one interval and
// paces the loop.
func (s *resourceSampler) run(ctx context.Context) {
	log := s.log.WithComponent("resource_sampler")
	for ctx.Err() == nil {
		cpuSamples, err := cpuPercentFn(ctx, s.interval)
		if err != nil {
			log.WithError(err).Debug("failed to sample cpu usage")
			s.wait(ctx)
			continue
		}
		memStats, err := memoryStatsFn(ctx)
		if err != nil {
			log.WithError(err).Debug("failed to sample memory usage")
			s.wait(ctx)
			continue
		}
		diskStats, err := diskUsageFn(ctx, s.diskPath)
		if err != nil {
			log.WithError(err).Debug("failed to sample disk usage")
			s.wait(ctx)
			continue
		}

		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)

		snap := resourceSnapshot{
			Timestamp:   time.Now(),
			MemoryUsed:  memStats.Used,
			MemoryTotal: memStats.Total,
			MemoryPct:   memStats.UsedPercent,
			DiskUsed:    diskStats.Used,
			DiskTotal:   diskStats.Total,
			DiskPct:     diskStats.UsedPercent,
			Goroutines:  runtime.NumGoroutine(),
			HeapAlloc:   ms.HeapAlloc,
		}
		if len(cpuSamples) > 0 {
			snap.CPUPercent = cpuSamples[0]
		}
		s.samples.add(snap)
	}
}

func (s *resourceSampler) wait(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(s.interval):
	}
}
