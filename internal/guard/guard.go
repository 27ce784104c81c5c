package guard

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"nestrun/internal/logging"
)

// Guard captures controller lifetime and runs the final kill-all-children
// sweep on every exit path: installed before the first worker starts,
// and both signal-triggered and normal-exit paths converge on the same
// kill sweep.
type Guard struct {
	registry *Registry
	log      *logging.Logger

	onSignal func() // final scheduler hook: mark running tasks killed, persist, redraw

	sigCh chan os.Signal
	once  sync.Once
	done  chan struct{}
}

// Install registers SIGINT/SIGTERM handlers and returns a Guard. onSignal
// is invoked once, before the kill sweep, when a signal arrives (it is not
// invoked on the normal Shutdown() path — the caller is expected to have
// already done that bookkeeping itself before calling Shutdown).
func Install(registry *Registry, log *logging.Logger, onSignal func()) *Guard {
	g := &Guard{
		registry: registry,
		log:      log,
		onSignal: onSignal,
		sigCh:    make(chan os.Signal, 1),
		done:     make(chan struct{}),
	}
	signal.Notify(g.sigCh, syscall.SIGINT, syscall.SIGTERM)
	go g.waitForSignal()
	return g
}

func (g *Guard) waitForSignal() {
	select {
	case <-g.sigCh:
		if g.log != nil {
			g.log.Warnf("received termination signal, killing running tasks and exiting")
		}
		if g.onSignal != nil {
			g.onSignal()
		}
		g.killAll()
		os.Exit(1)
	case <-g.done:
	}
}

// Shutdown stops listening for signals and runs the kill sweep once, for
// the normal (non-signaled) exit path. Safe to call multiple times.
func (g *Guard) Shutdown() {
	g.once.Do(func() {
		signal.Stop(g.sigCh)
		close(g.done)
		g.killAll()
	})
}

func (g *Guard) killAll() {
	for _, e := range g.registry.Entries() {
		if g.log != nil {
			g.log.Warnf("Shutting down running tasks %d:%s", e.PID, e.Name)
		}
		_ = KillGroup(e.PID)
	}
}
