// Package resource implements the admission check the scheduler consults
// before starting a task that declares check_resource_before_run: repeated
// sampling of host CPU and memory availability with a hysteresis window,
// so a single noisy reading doesn't admit or reject a task on its own.
package resource

import (
	"math"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// pollInterval and consecutiveNeeded implement the hysteresis window:
// three consecutive passing samples, 3 seconds apart, unless the caller's
// timeout is short enough that one sample must suffice.
const (
	pollInterval      = 3 * time.Second
	consecutiveNeeded = 3
	shortTimeout      = 10 * time.Second
)

// sampler is the seam Probe implements on gopsutil and tests implement on
// canned readings, so IsEnough's hysteresis logic is exercised without
// depending on the sandbox's actual CPU/memory state.
type sampler interface {
	AvailableCPU() (float64, error)
	AvailableMem() (uint64, error)
}

// Probe samples host CPU and memory availability with gopsutil. It has no
// mutable state; a zero value is ready to use.
type Probe struct{}

// AvailableCPU returns floor(total_cores - total_cores*cpu_percent/100),
// the number of whole cores judged free right now.
func (Probe) AvailableCPU() (float64, error) {
	total := float64(cpu.Count(true))
	percent, err := cpu.Percent(0, false)
	if err != nil {
		return 0, err
	}
	used := 0.0
	if len(percent) > 0 {
		used = percent[0]
	}
	return math.Floor(total - total*used*0.01), nil
}

// AvailableMem returns free physical memory in bytes.
func (Probe) AvailableMem() (uint64, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return v.Free, nil
}

// IsEnough polls every pollInterval, declaring the requested cpu/mem
// admitted once cpu and mem fit on three consecutive samples — or on a
// single sample when timeout is 10s or less, so a caller with a short
// deadline still gets a quick answer. It returns false once the cumulative
// wait exceeds timeout.
func (p Probe) IsEnough(cpuNeeded, memNeeded float64, timeout time.Duration) bool {
	return isEnough(p, cpuNeeded, memNeeded, timeout)
}

func isEnough(s sampler, cpuNeeded, memNeeded float64, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	enoughStreak := 0
	for {
		availCPU, cpuErr := s.AvailableCPU()
		availMem, memErr := s.AvailableMem()
		if cpuErr == nil && memErr == nil && cpuNeeded <= availCPU && memNeeded <= float64(availMem) {
			enoughStreak++
			if enoughStreak >= consecutiveNeeded {
				return true
			}
			if enoughStreak >= 1 && timeout <= shortTimeout {
				return true
			}
		} else {
			enoughStreak = 0
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(pollInterval)
	}
}
