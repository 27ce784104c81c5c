package resource

import (
	"errors"
	"testing"
	"time"
)

type fakeSampler struct {
	cpu    float64
	mem    uint64
	cpuErr error
	memErr error
}

func (f fakeSampler) AvailableCPU() (float64, error) { return f.cpu, f.cpuErr }
func (f fakeSampler) AvailableMem() (uint64, error)  { return f.mem, f.memErr }

func TestIsEnoughSingleSampleUnderShortTimeout(t *testing.T) {
	s := fakeSampler{cpu: 4, mem: 1 << 30}
	if !isEnough(s, 1, 1<<20, 5*time.Second) {
		t.Fatal("expected admission on a single sample when timeout <= 10s")
	}
}

func TestIsEnoughDeniedWhenNeverEnough(t *testing.T) {
	s := fakeSampler{cpu: 0.1, mem: 1 << 10}
	start := time.Now()
	if isEnough(s, 1e9, 1, 1*time.Second) {
		t.Fatal("expected denial when resources never fit")
	}
	if elapsed := time.Since(start); elapsed > 6*time.Second {
		t.Fatalf("denial took %v, want it bounded by one poll interval past the timeout", elapsed)
	}
}

func TestIsEnoughTreatsSampleErrorAsNotEnough(t *testing.T) {
	s := fakeSampler{cpu: 4, mem: 1 << 30, cpuErr: errors.New("boom")}
	if isEnough(s, 1, 1, 1*time.Second) {
		t.Fatal("a sampling error must never be treated as admission")
	}
}
