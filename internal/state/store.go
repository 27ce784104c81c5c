// Package state implements a crash-safe snapshot store: a tab-separated
// text file rewritten after every transition, with a periodic rolling
// backup, and the filter rules for resuming a run from that snapshot.
package state

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"nestrun/internal/taskgraph"
)

var fields = []string{"name", "state", "used_time", "mem", "cpu", "pid", "depend", "cmd"}

// Store owns the on-disk snapshot for one run.
type Store struct {
	outdir string
}

// New returns a Store writing cmd_state.txt / bak.cmd_state.txt under
// outdir.
func New(outdir string) *Store {
	return &Store{outdir: outdir}
}

func (s *Store) snapshotPath() string { return filepath.Join(s.outdir, "cmd_state.txt") }
func (s *Store) backupPath() string   { return filepath.Join(s.outdir, "bak.cmd_state.txt") }

// Write persists the current state map. Before writing, any existing
// snapshot is renamed to the backup path — but only on a 5-minute clock
// tick, so a fast-completing graph does not rename on every single
// transition. The live snapshot itself is still rewritten unconditionally.
func (s *Store) Write(order []string, states map[string]*taskgraph.TaskState) error {
	if time.Now().Minute()%5 == 0 {
		if _, err := os.Stat(s.snapshotPath()); err == nil {
			if err := os.Rename(s.snapshotPath(), s.backupPath()); err != nil {
				return fmt.Errorf("state: backup rename: %w", err)
			}
		}
	}

	tmp := s.snapshotPath() + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("state: create snapshot: %w", err)
	}
	w := bufio.NewWriter(f)
	if _, err := fmt.Fprintln(w, strings.Join(fields, "\t")); err != nil {
		f.Close()
		return err
	}
	for _, name := range order {
		st := states[name]
		row := []string{
			name,
			string(st.State),
			st.UsedTime,
			formatFloat(st.Mem),
			formatFloat(st.CPU),
			strconv.Itoa(st.PID),
			st.Depend,
			st.Cmd,
		}
		if _, err := fmt.Fprintln(w, strings.Join(row, "\t")); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	// Atomic rename into place: a reader never observes a half-written file.
	return os.Rename(tmp, s.snapshotPath())
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Snapshot is one parsed line of a previously-written state file.
type Snapshot struct {
	Name     string
	State    taskgraph.State
	UsedTime string
	Mem      float64
	CPU      float64
	PID      int
}

// Read loads and parses the snapshot file, returning one Snapshot per
// line. It is the caller's job to decide which rows to trust when
// resuming a run.
func (s *Store) Read() ([]Snapshot, error) {
	f, err := os.Open(s.snapshotPath())
	if err != nil {
		return nil, fmt.Errorf("state: no %s found: %w", s.snapshotPath(), err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	if !scanner.Scan() {
		return nil, nil // header-only or empty file
	}
	var out []Snapshot
	for scanner.Scan() {
		cols := strings.Split(scanner.Text(), "\t")
		if len(cols) < 6 {
			continue
		}
		mem, _ := strconv.ParseFloat(cols[3], 64)
		cpu, _ := strconv.ParseFloat(cols[4], 64)
		pid, _ := strconv.Atoi(cols[5])
		out = append(out, Snapshot{
			Name:     cols[0],
			State:    taskgraph.State(cols[1]),
			UsedTime: cols[2],
			Mem:      mem,
			CPU:      cpu,
			PID:      pid,
		})
	}
	return out, scanner.Err()
}

// MatchesSkip reports whether name should be treated as skipped by the
// --rerun skip list: exact match, or name + "_" prefix (so a family of
// generated sub-steps can be skipped by its common prefix).
func MatchesSkip(name string, skip []string) bool {
	for _, s := range skip {
		if name == s || strings.HasPrefix(name, s+"_") {
			return true
		}
	}
	return false
}
