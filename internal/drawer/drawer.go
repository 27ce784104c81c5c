// Package drawer renders a task graph's current state to SVG after every
// transition, when --plot is enabled: colored boxes per task, edges
// colored by the dependent task's state, a synthetic source node feeding
// any task with no dependencies, and a color legend. Layout is a small
// hand-rolled layered placement rather than a general graph-layout
// algorithm.
package drawer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"nestrun/internal/taskgraph"
)

// Drawer is the strategy the scheduler calls after every state change.
// NoopDrawer is used when --plot was not requested.
type Drawer interface {
	Draw(order []string, tasks map[string]*taskgraph.Task, states map[string]*taskgraph.TaskState) error
}

// NoopDrawer discards every draw request.
type NoopDrawer struct{}

func (NoopDrawer) Draw(_ []string, _ map[string]*taskgraph.Task, _ map[string]*taskgraph.TaskState) error {
	return nil
}

// colorDict mirrors StateGraph.color_dict exactly.
var colorDict = map[taskgraph.State]string{
	taskgraph.Success:  "#7FFF00",
	taskgraph.Failed:   "#FFD700",
	taskgraph.Running:  "#9F79EE",
	taskgraph.Queueing: "#87CEFF",
	taskgraph.Killed:   "red",
	taskgraph.Outdoor:  "#A8A8A8",
}

const defaultColor = "#A8A8A8"

// SVGDrawer writes outdir/state.svg, keeping a rolling bak.state.svg copy
// of the previous render.
type SVGDrawer struct {
	outdir string
}

// NewSVGDrawer returns a Drawer that renders to outdir/state.svg.
func NewSVGDrawer(outdir string) *SVGDrawer {
	return &SVGDrawer{outdir: outdir}
}

func (d *SVGDrawer) outPath() string     { return filepath.Join(d.outdir, "state.svg") }
func (d *SVGDrawer) backupPath() string  { return filepath.Join(d.outdir, "bak.state.svg") }

// Draw renders the current graph state to SVG, backing up the previous
// render first.
func (d *SVGDrawer) Draw(order []string, tasks map[string]*taskgraph.Task, states map[string]*taskgraph.TaskState) error {
	if _, err := os.Stat(d.outPath()); err == nil {
		_ = copyFile(d.outPath(), d.backupPath())
	}

	g := newLayout(order, tasks, states)
	svg := g.render()
	return os.WriteFile(d.outPath(), []byte(svg), 0o644)
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

// node is one box in the rendered graph.
type node struct {
	name    string
	label   string
	color   string
	rank    int
	col     int
	x, y    int
}

const (
	boxW     = 160
	boxH     = 56
	hGap     = 60
	vGap     = 30
	legendH  = 80
	margin   = 30
)

type layout struct {
	nodes     map[string]*node
	ranks     [][]string // nodes grouped by rank, for edge routing and sizing
	edges     []edge
	usedColor map[taskgraph.State]string
	width     int
	height    int
	hasInput  bool
}

type edge struct {
	from, to string
	color    string
}

func newLayout(order []string, tasks map[string]*taskgraph.Task, states map[string]*taskgraph.TaskState) *layout {
	l := &layout{
		nodes:     make(map[string]*node),
		usedColor: make(map[taskgraph.State]string),
	}

	rank := make(map[string]int)
	var rankOf func(name string, seen map[string]bool) int
	rankOf = func(name string, seen map[string]bool) int {
		if r, ok := rank[name]; ok {
			return r
		}
		if seen[name] {
			return 0 // guard against malformed cycles; the config loader already rejects these
		}
		seen[name] = true
		t := tasks[name]
		if t == nil || len(t.Depend) == 0 {
			rank[name] = 0
			return 0
		}
		max := -1
		for _, dep := range t.Depend {
			if r := rankOf(dep, seen); r > max {
				max = r
			}
		}
		rank[name] = max + 1
		return rank[name]
	}

	for _, name := range order {
		rankOf(name, map[string]bool{})
	}

	maxRank := 0
	for _, r := range rank {
		if r > maxRank {
			maxRank = r
		}
	}
	l.ranks = make([][]string, maxRank+1)
	for _, name := range order {
		r := rank[name]
		l.ranks[r] = append(l.ranks[r], name)
	}

	for r, names := range l.ranks {
		for col, name := range names {
			st := states[name]
			color := defaultColor
			if st != nil {
				if c, ok := colorDict[st.State]; ok {
					color = c
				}
				l.usedColor[st.State] = color
			}
			label := buildLabel(name, st)
			l.nodes[name] = &node{
				name:  name,
				label: label,
				color: color,
				rank:  r,
				col:   col,
				x:     margin + r*(boxW+hGap),
				y:     margin + col*(boxH+vGap),
			}
		}
	}

	needsInput := false
	for _, name := range order {
		t := tasks[name]
		st := states[name]
		if t == nil {
			continue
		}
		if len(t.Depend) == 0 {
			needsInput = true
			l.edges = append(l.edges, edge{from: "Input", to: name, color: "green"})
			continue
		}
		color := "#4D4D4D"
		if st != nil {
			switch st.State {
			case taskgraph.Success:
				color = "green"
			case taskgraph.Running:
				color = "#836FFF"
			}
		}
		for _, dep := range t.Depend {
			l.edges = append(l.edges, edge{from: dep, to: name, color: color})
		}
	}
	if needsInput {
		l.nodes["Input"] = &node{
			name:  "Input",
			label: "Input",
			color: "white",
			rank:  -1,
			x:     margin,
			y:     margin,
		}
		// Shift every real node one column right so Input sits in its own
		// leading column without overlapping an orphan task box.
		for _, n := range l.nodes {
			if n.name != "Input" {
				n.x += boxW + hGap
			}
		}
	}

	width := margin*2 + (maxRank+1)*(boxW+hGap)
	if needsInput {
		width += boxW + hGap
	}
	height := margin * 2
	for _, names := range l.ranks {
		h := len(names) * (boxH + vGap)
		if h > height {
			height = h
		}
	}
	l.width = width
	l.height = height + legendH
	l.hasInput = needsInput
	return l
}

func buildLabel(name string, st *taskgraph.TaskState) string {
	lines := []string{name}
	if st == nil {
		return strings.Join(lines, "\n")
	}
	switch st.UsedTime {
	case "", taskgraph.UsedTimeUnknown:
	default:
		lines = append(lines, st.UsedTime+"s")
	}
	return strings.Join(lines, "\n")
}

func (l *layout) render() string {
	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" font-family="sans-serif" font-size="11">`+"\n",
		l.width, l.height)
	fmt.Fprintln(&b, `<rect width="100%" height="100%" fill="white"/>`)

	for _, e := range l.edges {
		from, okF := l.nodes[e.from]
		to, okT := l.nodes[e.to]
		if !okF || !okT {
			continue
		}
		x1, y1 := from.x+boxW, from.y+boxH/2
		x2, y2 := to.x, to.y+boxH/2
		fmt.Fprintf(&b, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="%s" stroke-width="1.5" marker-end="url(#arrow)"/>`+"\n",
			x1, y1, x2, y2, e.color)
	}

	fmt.Fprintln(&b, `<defs><marker id="arrow" markerWidth="8" markerHeight="8" refX="6" refY="3" orient="auto"><path d="M0,0 L0,6 L6,3 z" fill="#4D4D4D"/></marker></defs>`)

	for _, name := range l.order() {
		n := l.nodes[name]
		drawBox(&b, n.x, n.y, n.color, n.label)
	}

	l.renderLegend(&b)

	fmt.Fprintln(&b, `</svg>`)
	return b.String()
}

func (l *layout) order() []string {
	var names []string
	if l.hasInput {
		names = append(names, "Input")
	}
	for _, names2 := range l.ranks {
		names = append(names, names2...)
	}
	return names
}

func drawBox(b *strings.Builder, x, y int, color, label string) {
	fmt.Fprintf(b, `<rect x="%d" y="%d" width="%d" height="%d" rx="8" ry="8" fill="%s" stroke="mediumseagreen" stroke-width="1.5"/>`+"\n",
		x, y, boxW, boxH, color)
	lines := strings.Split(label, "\n")
	lineH := 14
	startY := y + boxH/2 - (len(lines)-1)*lineH/2 + 4
	for i, line := range lines {
		fmt.Fprintf(b, `<text x="%d" y="%d" text-anchor="middle">%s</text>`+"\n",
			x+boxW/2, startY+i*lineH, escapeXML(line))
	}
}

func (l *layout) renderLegend(b *strings.Builder) {
	states := make([]string, 0, len(l.usedColor))
	for st := range l.usedColor {
		states = append(states, string(st))
	}
	sort.Strings(states)

	baseY := l.height - legendH + 20
	fmt.Fprintf(b, `<text x="%d" y="%d" font-weight="bold">Color Legend</text>`+"\n", margin, baseY-10)
	x := margin
	for _, st := range states {
		color := l.usedColor[taskgraph.State(st)]
		fmt.Fprintf(b, `<rect x="%d" y="%d" width="18" height="18" fill="%s" stroke="mediumseagreen"/>`+"\n", x, baseY, color)
		fmt.Fprintf(b, `<text x="%d" y="%d">%s</text>`+"\n", x+24, baseY+14, escapeXML(st))
		x += 24 + len(st)*7 + 20
	}
}

func escapeXML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
