package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.cfg")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadLinearChain(t *testing.T) {
	path := writeTemp(t, `
[mode]
threads = 4
retry = 0
monitor_resource = true
monitor_time_step = 2
check_resource_before_run = false

[A]
cmd = echo a

[B]
cmd = echo b
depend = A

[C]
cmd = echo c
depend = B
`)
	graph, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if graph.Threads != 4 {
		t.Fatalf("threads = %d, want 4", graph.Threads)
	}
	if len(graph.Tasks) != 3 {
		t.Fatalf("tasks = %d, want 3", len(graph.Tasks))
	}
	if got := graph.Tasks["C"].Depend; len(got) != 1 || got[0] != "B" {
		t.Fatalf("C.Depend = %v, want [B]", got)
	}
	if !graph.Tasks["A"].IsOrphan() {
		t.Fatalf("A should be an orphan")
	}
}

func TestLoadMissingDependencyIsFatal(t *testing.T) {
	path := writeTemp(t, `
[mode]
threads = 1
retry = 0
monitor_resource = false
monitor_time_step = 1
check_resource_before_run = false

[A]
cmd = echo a
depend = ghost
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected an error for a dangling dependency")
	}
	var depErr *DependencyError
	if _, ok := err.(*DependencyError); !ok {
		t.Fatalf("err = %#v (%T), want *DependencyError %v", err, err, depErr)
	}
}

func TestLoadMissingCmdIsFatal(t *testing.T) {
	path := writeTemp(t, `
[mode]
threads = 1
retry = 0
monitor_resource = false
monitor_time_step = 1
check_resource_before_run = false

[A]
depend =
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected an error for a missing cmd")
	}
}

func TestLoadNonNumericFieldIsFatal(t *testing.T) {
	path := writeTemp(t, `
[mode]
threads = abc
retry = 0
monitor_resource = false
monitor_time_step = 1
check_resource_before_run = false

[A]
cmd = echo a
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected an error for a non-numeric threads field")
	}
}

func TestLoadInterpolation(t *testing.T) {
	path := writeTemp(t, `
[mode]
threads = 1
retry = 0
monitor_resource = false
monitor_time_step = 1
check_resource_before_run = false
data_dir = /data/project1

[A]
cmd = process --in ${mode:data_dir}/raw.txt --out ${mode:data_dir}/out.txt
`)
	graph, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := "process --in /data/project1/raw.txt --out /data/project1/out.txt"
	if got := graph.Tasks["A"].Cmd; got != want {
		t.Fatalf("Cmd = %q, want %q", got, want)
	}
}

func TestLoadPerTaskOverridesMode(t *testing.T) {
	path := writeTemp(t, `
[mode]
threads = 2
retry = 0
monitor_resource = true
monitor_time_step = 2
check_resource_before_run = false

[A]
cmd = echo a
retry = 3
monitor_resource = false
`)
	graph, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	a := graph.Tasks["A"]
	if a.Retry != 3 {
		t.Fatalf("A.Retry = %d, want 3", a.Retry)
	}
	if a.MonitorResource {
		t.Fatalf("A.MonitorResource = true, want false (task override)")
	}
}

func TestLoadDefaultTimeout(t *testing.T) {
	path := writeTemp(t, `
[mode]
threads = 1
retry = 0
monitor_resource = false
monitor_time_step = 1
check_resource_before_run = false

[A]
cmd = echo a
`)
	graph, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if graph.Tasks["A"].Timeout.Hours() != 240 {
		t.Fatalf("default timeout = %v, want 240h", graph.Tasks["A"].Timeout)
	}
}
