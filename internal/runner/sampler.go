package runner

import (
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// sampler is the companion goroutine that polls a running child's CPU/mem
// every step and tracks the peak observed over its lifetime.
type sampler struct {
	mu      sync.Mutex
	peakCPU float64 // fraction of one core, e.g. 1.5 == 150% of one core
	peakMem float64 // MB
}

// run polls pid every step until stop is closed or the process can no
// longer be sampled, updating the peak readings as it goes.
func (s *sampler) run(pid int, step time.Duration, stop <-chan struct{}) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return
	}
	if step <= 0 {
		step = time.Second
	}
	ticker := time.NewTicker(step)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			running, err := proc.IsRunning()
			if err != nil || !running {
				return
			}
			cpuPercent, err := proc.CPUPercent()
			if err == nil {
				used := cpuPercent * 0.01
				s.mu.Lock()
				if used > s.peakCPU {
					s.peakCPU = used
				}
				s.mu.Unlock()
			}
			memInfo, err := proc.MemoryInfo()
			if err == nil {
				memMB := float64(memInfo.RSS) / 1024 / 1024
				s.mu.Lock()
				if memMB > s.peakMem {
					s.peakMem = memMB
				}
				s.mu.Unlock()
			}
		}
	}
}

func (s *sampler) peaks() (cpu, mem float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peakCPU, s.peakMem
}
