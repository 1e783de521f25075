package workers

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/process"
)

type ProcessStats struct {
	PID        int32     `json:"pid"`
	Status     string    `json:"status"`
	CPUPercent float64   `json:"cpuPercent"`
	RSSBytes   uint64    `json:"rssBytes"`
	Goroutines int       `json:"goroutines"`
	SampledAt  time.Time `json:"sampledAt"`
}

// ProcessMonitor samples the CPU, memory and status of the server process.
// The latest sample is served by the health endpoint.
type ProcessMonitor struct {
	log            *slog.Logger
	metricInterval time.Duration
	latest         atomic.Pointer[ProcessStats]
}

func NewProcessMonitor(log *slog.Logger, metricInterval time.Duration) *ProcessMonitor {
	return &ProcessMonitor{log: log, metricInterval: metricInterval}
}

func (w *ProcessMonitor) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()

	w.sample(p)
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping process monitoring")
			return nil
		case <-ticker.C:
			w.sample(p)
		}
	}
}

// Latest returns the last sample, nil before the first one.
func (w *ProcessMonitor) Latest() *ProcessStats {
	return w.latest.Load()
}

func (w *ProcessMonitor) sample(p *process.Process) {
	rss, cpu, status, err := selfStats(p)
	if err != nil {
		w.log.Error("Failed to collect self stats", "err", err)
		return
	}
	w.latest.Store(&ProcessStats{
		PID:        p.Pid,
		Status:     status,
		CPUPercent: cpu,
		RSSBytes:   rss,
		Goroutines: runtime.NumGoroutine(),
		SampledAt:  time.Now().UTC(),
	})
}

// selfStats retrieves memory, CPU and OS status of the given process.
func selfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}
	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, status, nil
}
