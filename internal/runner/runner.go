// Package runner launches a single shell command, samples its resource
// usage while it runs, enforces a wall-clock timeout, captures its
// stdout/stderr, and reports its exit outcome.
package runner

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"nestrun/internal/guard"
	"nestrun/internal/logging"
	"nestrun/internal/taskgraph"
)

// Result is everything the scheduler needs to fold a finished attempt back
// into TaskState.
type Result struct {
	Started  bool // false if the child process never started at all
	ExitCode int
	UsedTime time.Duration
	PeakCPU  float64 // fraction of one core
	PeakMem  float64 // MB
	PID      int
	TimedOut bool
}

// Succeeded reports whether the attempt should be treated as a success:
// exit code zero, distinct from "could not start".
func (r Result) Succeeded() bool { return r.Started && r.ExitCode == 0 }

// Runner launches and supervises task attempts. It holds no per-attempt
// state, so one Runner may serve every worker concurrently; attempts
// sharing the outdir's logs directory do not collide because artifact
// names include the child's pid.
type Runner struct {
	registry *guard.Registry
	log      *logging.Logger
	outdir   string
}

// New returns a Runner that registers live children in registry (for the
// exit guard) and writes per-attempt artifacts under outdir/logs.
func New(registry *guard.Registry, log *logging.Logger, outdir string) *Runner {
	return &Runner{registry: registry, log: log, outdir: outdir}
}

// Run launches task.Cmd and blocks until it completes, is killed by its
// timeout, or fails to start. It never returns an error for a failed or
// timed-out child — the returned Result's exit outcome communicates that
// instead.
func (r *Runner) Run(task *taskgraph.Task) Result {
	start := time.Now()
	r.log.Warnf("RunStep: %s", task.Name)
	r.log.Infof("RunCmd: %s", task.Cmd)

	cmd := shellCommand(task.Cmd)
	applyProcAttrs(cmd)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		r.log.Warnf("failed to start %s: %v", task.Name, err)
		return Result{Started: false, ExitCode: -1, UsedTime: time.Since(start)}
	}

	pid := cmd.Process.Pid
	r.registry.Register(pid, task.Name)
	defer r.registry.Unregister(pid)

	var smp sampler
	stop := make(chan struct{})
	var wg sync.WaitGroup
	if task.MonitorResource {
		wg.Add(1)
		go func() {
			defer wg.Done()
			smp.run(pid, task.MonitorTimeStep, stop)
		}()
	}

	var timedOut int32
	timer := time.AfterFunc(task.Timeout, func() {
		atomic.StoreInt32(&timedOut, 1)
		r.log.Warnf("%s exceeded its timeout (%s), killing pid %d", task.Name, task.Timeout, pid)
		_ = guard.KillGroup(pid)
	})

	waitErr := cmd.Wait()
	timer.Stop()
	end := time.Now()
	close(stop)
	wg.Wait()

	exitCode := 0
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	peakCPU, peakMem := smp.peaks()
	result := Result{
		Started:  true,
		ExitCode: exitCode,
		UsedTime: end.Sub(start),
		PeakCPU:  peakCPU,
		PeakMem:  peakMem,
		PID:      pid,
		TimedOut: atomic.LoadInt32(&timedOut) == 1,
	}

	r.writeArtifacts(task.Name, pid, stdout.Bytes(), stderr.Bytes(), result)
	return result
}

// writeArtifacts persists {outdir}/logs/{name}.{pid}.{stdout,stderr,resource}.txt.
// The stdout and stderr files are only written when that stream is
// non-empty, and the resource summary file only when a peak was actually
// observed.
func (r *Runner) writeArtifacts(name string, pid int, stdout, stderr []byte, result Result) {
	logDir := filepath.Join(r.outdir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		r.log.Warnf("could not create log dir %s: %v", logDir, err)
		return
	}
	prefix := filepath.Join(logDir, fmt.Sprintf("%s.%d", name, pid))

	if len(stderr) > 0 {
		if err := os.WriteFile(prefix+".stderr.txt", stderr, 0o644); err != nil {
			r.log.Warnf("could not write stderr log for %s: %v", name, err)
		}
	}
	if len(stdout) > 0 {
		if err := os.WriteFile(prefix+".stdout.txt", stdout, 0o644); err != nil {
			r.log.Warnf("could not write stdout log for %s: %v", name, err)
		}
	}
	if result.PeakCPU > 0 || result.PeakMem > 0 {
		summary := fmt.Sprintf("max_cpu: %.4f\nmax_mem: %.4fM\n", result.PeakCPU, result.PeakMem)
		if err := os.WriteFile(prefix+".resource.txt", []byte(summary), 0o644); err != nil {
			r.log.Warnf("could not write resource summary for %s: %v", name, err)
		}
	}
}
