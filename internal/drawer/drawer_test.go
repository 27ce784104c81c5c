package drawer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nestrun/internal/taskgraph"
)

func sampleGraph() ([]string, map[string]*taskgraph.Task, map[string]*taskgraph.TaskState) {
	order := []string{"qc", "align", "call"}
	tasks := map[string]*taskgraph.Task{
		"qc":    {Name: "qc", Depend: nil},
		"align": {Name: "align", Depend: []string{"qc"}},
		"call":  {Name: "call", Depend: []string{"align"}},
	}
	states := map[string]*taskgraph.TaskState{
		"qc":    {State: taskgraph.Success, UsedTime: "4.2"},
		"align": {State: taskgraph.Running, UsedTime: taskgraph.UsedTimeUnknown},
		"call":  {State: taskgraph.Outdoor, UsedTime: taskgraph.UsedTimeUnknown},
	}
	return order, tasks, states
}

func TestNoopDrawerIsNoop(t *testing.T) {
	order, tasks, states := sampleGraph()
	if err := (NoopDrawer{}).Draw(order, tasks, states); err != nil {
		t.Fatalf("NoopDrawer.Draw returned error: %v", err)
	}
}

func TestSVGDrawerWritesValidSVG(t *testing.T) {
	dir := t.TempDir()
	d := NewSVGDrawer(dir)
	order, tasks, states := sampleGraph()

	if err := d.Draw(order, tasks, states); err != nil {
		t.Fatalf("Draw: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "state.svg"))
	if err != nil {
		t.Fatalf("reading state.svg: %v", err)
	}
	svg := string(data)
	if !strings.HasPrefix(svg, "<svg") {
		t.Fatalf("output does not start with <svg: %q", svg[:20])
	}
	if !strings.Contains(svg, "#7FFF00") {
		t.Fatal("expected success color in output")
	}
	if !strings.Contains(svg, "Input") {
		t.Fatal("expected synthetic Input node for the orphan task")
	}
	if !strings.Contains(svg, "Color Legend") {
		t.Fatal("expected legend heading")
	}
}

func TestSVGDrawerBacksUpPreviousRender(t *testing.T) {
	dir := t.TempDir()
	d := NewSVGDrawer(dir)
	order, tasks, states := sampleGraph()

	if err := d.Draw(order, tasks, states); err != nil {
		t.Fatalf("first Draw: %v", err)
	}
	states["align"].State = taskgraph.Success
	if err := d.Draw(order, tasks, states); err != nil {
		t.Fatalf("second Draw: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "bak.state.svg")); err != nil {
		t.Fatalf("expected bak.state.svg after second draw: %v", err)
	}
}
