package profiler

import (
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Sample is one profiler report.
type Sample struct {
	TicksPerSecond float64       `json:"ticks_per_second"`
	AvgTick        time.Duration `json:"avg_tick_ns"`
	MaxTick        time.Duration `json:"max_tick_ns"`
	HeapMB         float64       `json:"heap_mb"`
	AllocRateMB    float64       `json:"alloc_rate_mb_s"`
	GCCount        uint32        `json:"gc_count"`
	GCLastPauseUs  uint64        `json:"gc_last_pause_us"`
	GCMaxPauseUs   uint64        `json:"gc_max_pause_us"`
	SysMB          float64       `json:"sys_mb"`
}

// Profiler tracks tick rate, tick cost and memory statistics for performance monitoring.
// Outputs stats to the log at a configurable interval.
type Profiler struct {
	mu *sync.Mutex

	tickCount      int
	tickTotal      time.Duration
	tickMax        time.Duration
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
	last           Sample

	log *logrus.Entry
}

// NewProfiler creates a new Profiler logging through the given logger.
// Update interval defaults to 1 second.
//
// Parameters:
//   - logger: the logrus logger; nil uses the standard logger
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(logger *logrus.Logger) *Profiler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Profiler{
		mu:             &sync.Mutex{},
		lastTime:       time.Now(),
		updateInterval: time.Second,
		log:            logger.WithField("component", "profiler"),
	}
}

// SetInterval changes how often stats are reported.
func (p *Profiler) SetInterval(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if d > 0 {
		p.updateInterval = d
	}
}

// Tick should be called once per engine tick with the time the tick took.
// Logs performance statistics when the update interval has elapsed.
// Statistics include: ticks per second, average and worst tick cost, heap usage, allocation rate,
// GC count/pause times, total memory.
//
// Parameters:
//   - cost: how long the tick's work took
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick(cost time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.tickCount++
	p.tickTotal += cost
	if cost > p.tickMax {
		p.tickMax = cost
	}
	currentTime := time.Now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	runtime.ReadMemStats(&p.memStats)
	// Alloc is live heap; Sys is the process footprint obtained from the OS.
	s := Sample{
		TicksPerSecond: float64(p.tickCount) / elapsed.Seconds(),
		AvgTick:        p.tickTotal / time.Duration(p.tickCount),
		MaxTick:        p.tickMax,
		HeapMB:         float64(p.memStats.Alloc) / 1024 / 1024,
		SysMB:          float64(p.memStats.Sys) / 1024 / 1024,
		GCCount:        p.memStats.NumGC,
	}
	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	s.AllocRateMB = float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	if gcCount := p.memStats.NumGC; gcCount > 0 {
		// PauseNs is a circular buffer of the last 256 GC pauses
		s.GCLastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000
		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			if pause := p.memStats.PauseNs[i%256] / 1000; pause > s.GCMaxPauseUs {
				s.GCMaxPauseUs = pause
			}
		}
	}

	p.log.WithFields(logrus.Fields{
		"tps":        s.TicksPerSecond,
		"avg_tick":   s.AvgTick,
		"max_tick":   s.MaxTick,
		"heap_mb":    s.HeapMB,
		"alloc_rate": s.AllocRateMB,
		"gc":         s.GCCount,
		"gc_last_us": s.GCLastPauseUs,
		"gc_max_us":  s.GCMaxPauseUs,
		"sys_mb":     s.SysMB,
	}).Info("tick stats")

	p.last = s
	p.tickCount = 0
	p.tickTotal = 0
	p.tickMax = 0
	p.lastTime = currentTime
	p.lastGCCount = s.GCCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}

// Last returns the most recent report, or a zero Sample before the first one.
func (p *Profiler) Last() Sample {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}
