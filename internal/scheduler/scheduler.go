// Package scheduler runs a graph of tasks to completion: a bounded pool
// of workers pulls from a shared ready queue, releases a task's
// dependents once it succeeds, fails anything downstream of a failure,
// and persists a snapshot and state drawing after every transition.
package scheduler

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"nestrun/internal/drawer"
	"nestrun/internal/logging"
	"nestrun/internal/resource"
	"nestrun/internal/runner"
	"nestrun/internal/state"
	"nestrun/internal/taskgraph"
)

const idlePoll = 5 * time.Second

// Scheduler owns every piece of mutable run state behind a single mutex:
// the TaskState map, the ready queue, the on-disk snapshot, and the
// drawer invocation all serialize through it. Command execution itself
// (runner.Run) happens outside the lock.
type Scheduler struct {
	mu sync.Mutex

	graph      *taskgraph.Graph
	states     map[string]*taskgraph.TaskState
	everQueued map[string]bool
	queue      *readyQueue

	success int
	failed  int

	store        *state.Store
	drawerImpl   drawer.Drawer
	probe        resource.Probe
	runnerImpl   *runner.Runner
	log          *logging.Logger
	resourceWait time.Duration

	// runID correlates every log line this Scheduler produces across a
	// fresh run or a resume; it has no on-disk representation of its own.
	runID string

	wg sync.WaitGroup
}

// New builds a Scheduler against graph, seeding the ready queue with
// every task that has no dependencies.
func New(graph *taskgraph.Graph, store *state.Store, drawerImpl drawer.Drawer, runnerImpl *runner.Runner, log *logging.Logger, resourceWait time.Duration) *Scheduler {
	s := &Scheduler{
		graph:        graph,
		states:       make(map[string]*taskgraph.TaskState, len(graph.Order)),
		everQueued:   make(map[string]bool),
		queue:        newReadyQueue(),
		store:        store,
		drawerImpl:   drawerImpl,
		runnerImpl:   runnerImpl,
		log:          log,
		resourceWait: resourceWait,
		runID:        uuid.NewString(),
	}
	for _, name := range graph.Order {
		s.states[name] = taskgraph.NewTaskState(graph.Tasks[name])
	}
	for _, name := range graph.Orphans() {
		s.everQueued[name] = true
		s.queue.push(name)
	}
	return s
}

// Run launches the worker pool and blocks until every task has reached a
// terminal state or the ready queue has drained to the sentinel.
func (s *Scheduler) Run() (success, total int) {
	s.log.Warnf("Starting run %s (%d tasks, %d workers)", s.runID, len(s.states), s.graph.Threads)
	for i := 0; i < s.graph.Threads; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.workerLoop()
		}()
	}

	time.Sleep(2 * time.Second)
	s.mu.Lock()
	s.recomputeStatesLocked(false)
	s.persistLocked()
	s.redrawLocked()
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Warnf("Finished all tasks!")
	s.log.Warnf("Success/Total = %s/%s", strconv.Itoa(s.success), strconv.Itoa(len(s.states)))
	return s.success, len(s.states)
}

// Resume adopts every recorded success not named in skipSteps from the
// last snapshot, reseeds the ready queue with whatever remains, and runs
// normally from there.
func (s *Scheduler) Resume(skipSteps []string) error {
	s.log.Warnf("Resuming run %s from snapshot, skipping %v", s.runID, skipSteps)
	snapshots, err := s.store.Read()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.everQueued = make(map[string]bool)
	for _, snap := range snapshots {
		if snap.State != taskgraph.Success || state.MatchesSkip(snap.Name, skipSteps) {
			continue
		}
		st, ok := s.states[snap.Name]
		if !ok {
			s.log.Warnf("%s was skipped for a modified pipeline config", snap.Name)
			continue
		}
		s.everQueued[snap.Name] = true
		st.State = snap.State
		st.UsedTime = snap.UsedTime
		st.Mem = snap.Mem
		st.CPU = snap.CPU
		st.PID = snap.PID
	}

	var remaining []string
	for _, name := range s.graph.Order {
		if !s.everQueued[name] {
			remaining = append(remaining, name)
		}
	}
	if len(remaining) > 0 {
		s.log.Warnf("Continue to run: %v", remaining)
	} else {
		s.log.Warnf("Nothing to continue run")
	}

	s.queue = newReadyQueue()
	s.updateQueueLocked()
	s.redrawLocked()
	s.mu.Unlock()

	s.Run()
	return nil
}

// MarkRunningAsKilled runs the exit protocol: any task still actually
// running is recorded killed, then one final persist and redraw. Tasks
// that were only queueing and never started are left queueing, so a
// resumed run still treats them as eligible to start rather than as
// having failed. Safe to call with nothing in flight (a no-op write in
// that case).
func (s *Scheduler) MarkRunningAsKilled() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.states {
		if st.State == taskgraph.Running {
			st.State = taskgraph.Killed
		}
	}
	s.recomputeCountsLocked()
	s.persistLocked()
	s.redrawLocked()
}

// Success returns the count of tasks in the success state as of the most
// recent lock-protected update.
func (s *Scheduler) Success() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.success
}

// TaskCount returns the total number of tasks in the graph.
func (s *Scheduler) TaskCount() int { return len(s.states) }

func (s *Scheduler) workerLoop() {
	for {
		name, ok := s.queue.tryPop()
		if !ok {
			time.Sleep(idlePoll)
			s.mu.Lock()
			s.updateQueueLocked()
			s.persistLocked()
			s.redrawLocked()
			s.mu.Unlock()
			continue
		}
		if name == sentinel {
			s.queue.push(sentinel)
			return
		}
		s.runTask(name)
	}
}

func (s *Scheduler) runTask(name string) {
	task := s.graph.Tasks[name]
	attempts := 0
	ranAtLeastOnce := false
	var result runner.Result

	for attempts <= task.Retry {
		attempts++
		if task.CheckResourceBeforeRun && !s.probe.IsEnough(task.CPU, task.Mem, s.resourceWait) {
			s.log.Warnf("Local resource is Not enough for %s!", name)
			break
		}
		if attempts > 1 {
			s.log.Warnf("%dth run %s", attempts, name)
		}

		s.mu.Lock()
		s.states[name].State = taskgraph.Running
		s.states[name].Attempt = attempts
		s.redrawLocked()
		s.mu.Unlock()

		ranAtLeastOnce = true
		result = s.runnerImpl.Run(task)
		if result.Succeeded() {
			break
		}
	}

	s.mu.Lock()
	s.mergeResultLocked(name, ranAtLeastOnce, result)
	s.recomputeStatesLocked(false)
	s.updateQueueLocked()
	s.persistLocked()
	s.redrawLocked()
	s.mu.Unlock()
}

func (s *Scheduler) mergeResultLocked(name string, ranAtLeastOnce bool, result runner.Result) {
	st := s.states[name]
	if !ranAtLeastOnce {
		st.State = taskgraph.Failed
		st.UsedTime = taskgraph.UsedTimeNotEnoughResource
		return
	}
	if result.Succeeded() {
		st.State = taskgraph.Success
	} else {
		st.State = taskgraph.Failed
	}
	st.UsedTime = strconv.FormatFloat(result.UsedTime.Seconds(), 'f', 2, 64)
	st.Mem = result.PeakMem
	st.CPU = result.PeakCPU
	st.PID = result.PID
}

// updateQueueLocked is _update_queue: release tasks whose dependencies
// have all succeeded, fail tasks transitively blocked by a failed
// dependency, and push the sentinel once nothing remains unstarted.
func (s *Scheduler) updateQueueLocked() {
	successSet := make(map[string]bool)
	failedSet := make(map[string]bool)
	for n, st := range s.states {
		switch st.State {
		case taskgraph.Success:
			successSet[n] = true
		case taskgraph.Failed:
			failedSet[n] = true
		}
	}

	var waiting []string
	for _, name := range s.graph.Order {
		if !s.everQueued[name] {
			waiting = append(waiting, name)
		}
	}
	if len(waiting) == 0 {
		s.queue.push(sentinel)
		return
	}

	for _, name := range waiting {
		task := s.graph.Tasks[name]
		failedDep := false
		for _, d := range task.Depend {
			if failedSet[d] {
				failedDep = true
				break
			}
		}
		if failedDep {
			s.everQueued[name] = true
			s.states[name].State = taskgraph.Failed
			s.states[name].UsedTime = taskgraph.UsedTimeFailedDependencies
			s.log.Warnf("%s cannot be started for some failed dependencies!", name)
			continue
		}

		allSuccess := true
		for _, d := range task.Depend {
			if !successSet[d] {
				allSuccess = false
				break
			}
		}
		if allSuccess {
			s.everQueued[name] = true
			s.queue.push(name)
		}
	}
}

// recomputeStatesLocked tallies success/failed counts and reconciles
// every non-terminal task's display state. Running is set authoritatively
// by runTask itself, so any queued, non-terminal, non-running task is
// simply Queueing.
func (s *Scheduler) recomputeStatesLocked(killed bool) {
	s.recomputeCountsLocked()
	for name, st := range s.states {
		if st.State.IsTerminal() {
			continue
		}
		if !s.everQueued[name] {
			st.State = taskgraph.Outdoor
			continue
		}
		if st.State == taskgraph.Running {
			if killed {
				st.State = taskgraph.Killed
			}
			continue
		}
		st.State = taskgraph.Queueing
	}
}

func (s *Scheduler) recomputeCountsLocked() {
	success, failed := 0, 0
	for _, st := range s.states {
		switch st.State {
		case taskgraph.Success:
			success++
		case taskgraph.Failed:
			failed++
		}
	}
	s.success = success
	s.failed = failed
}

func (s *Scheduler) persistLocked() {
	if err := s.store.Write(s.graph.Order, s.states); err != nil {
		s.log.Warnf("failed to write state snapshot: %v", err)
	}
}

func (s *Scheduler) redrawLocked() {
	if err := s.drawerImpl.Draw(s.graph.Order, s.graph.Tasks, s.states); err != nil {
		s.log.Warnf("failed to draw state graph: %v", err)
	}
}
