package main

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/gravitask/gravitask/pkg/graph"
	"github.com/gravitask/gravitask/pkg/scene"
	gsync "github.com/gravitask/gravitask/pkg/sync"
)

const (
	heavyWeight = 0.66
	lightWeight = 0.33
	labelZoom   = 0.6
)

// ink identifies the style of one canvas cell. Styling whole runs
// instead of single runes keeps the frame small enough for 30fps.
type ink uint8

const (
	inkNone ink = iota
	inkEdge
	inkEdgeHi
	inkEdgeDim
	inkTodo
	inkProgress
	inkBlocked
	inkDone
	inkDimNode
	inkSelected
	inkLabel
	inkLabelHi
	inkLabelDim
	inkMapFrame
	inkMapDot
	inkMapView
)

var inkStyles = [...]lipgloss.Style{
	inkNone:     lipgloss.NewStyle(),
	inkEdge:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	inkEdgeHi:   lipgloss.NewStyle().Foreground(lipgloss.Color("205")),
	inkEdgeDim:  lipgloss.NewStyle().Foreground(lipgloss.Color("236")),
	inkTodo:     lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
	inkProgress: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	inkBlocked:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	inkDone:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	inkDimNode:  lipgloss.NewStyle().Foreground(lipgloss.Color("238")),
	inkSelected: lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true),
	inkLabel:    lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
	inkLabelHi:  lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Bold(true),
	inkLabelDim: lipgloss.NewStyle().Foreground(lipgloss.Color("238")),
	inkMapFrame: lipgloss.NewStyle().Foreground(lipgloss.Color("63")),
	inkMapDot:   lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
	inkMapView:  lipgloss.NewStyle().Foreground(lipgloss.Color("205")),
}

// canvas is a rune grid with an ink per cell.
type canvas struct {
	w, h  int
	runes [][]rune
	inks  [][]ink
}

func newCanvas(w, h int) *canvas {
	runes := make([][]rune, h)
	inks := make([][]ink, h)
	for y := range runes {
		runes[y] = make([]rune, w)
		inks[y] = make([]ink, w)
		for x := range runes[y] {
			runes[y][x] = ' '
		}
	}
	return &canvas{w: w, h: h, runes: runes, inks: inks}
}

func (c *canvas) in(x, y int) bool {
	return x >= 0 && x < c.w && y >= 0 && y < c.h
}

func (c *canvas) set(x, y int, r rune, k ink) {
	if !c.in(x, y) {
		return
	}
	c.runes[y][x] = r
	c.inks[y][x] = k
}

func (c *canvas) setIfEmpty(x, y int, r rune, k ink) {
	if !c.in(x, y) || c.runes[y][x] != ' ' {
		return
	}
	c.runes[y][x] = r
	c.inks[y][x] = k
}

func (c *canvas) text(x, y int, s string, k ink) {
	for i, r := range []rune(s) {
		c.set(x+i, y, r, k)
	}
}

// String flattens the grid, one styled run per stretch of equal ink.
func (c *canvas) String() string {
	var b strings.Builder
	for y := 0; y < c.h; y++ {
		x := 0
		for x < c.w {
			k := c.inks[y][x]
			start := x
			for x < c.w && c.inks[y][x] == k {
				x++
			}
			seg := string(c.runes[y][start:x])
			if k == inkNone {
				b.WriteString(seg)
			} else {
				b.WriteString(inkStyles[k].Render(seg))
			}
		}
		if y < c.h-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// renderCanvas draws one frame into a cols x rows grid: edges under
// nodes, labels beside them, the minimap overlay on top of everything.
func renderCanvas(f *scene.Frame, cols, rows int) string {
	c := newCanvas(cols, rows)
	if f == nil {
		return c.String()
	}

	// Edges plot with setIfEmpty, so the brighter passes go first and
	// crossings keep the more prominent rune.
	for _, pass := range []scene.Emphasis{scene.EmphasisHighlight, scene.EmphasisNormal, scene.EmphasisDim} {
		for _, e := range f.Edges {
			if e.Emphasis == pass {
				drawEdge(c, e)
			}
		}
	}
	for i := range f.Nodes {
		drawNode(c, &f.Nodes[i])
	}
	if f.Zoom >= labelZoom {
		for i := range f.Nodes {
			drawLabel(c, &f.Nodes[i])
		}
	}
	if f.Minimap != nil {
		drawMinimap(c, f.Minimap)
	}
	return c.String()
}

func toCell(x, y float64) (int, int) {
	return int(math.Floor(x / cellW)), int(math.Floor(y / cellH))
}

func drawEdge(c *canvas, e scene.FrameEdge) {
	x1, y1 := toCell(e.X1, e.Y1)
	x2, y2 := toCell(e.X2, e.Y2)

	k := inkEdge
	switch e.Emphasis {
	case scene.EmphasisHighlight:
		k = inkEdgeHi
	case scene.EmphasisDim:
		k = inkEdgeDim
	}

	r := edgeRune(x2-x1, y2-y1, e.Weight >= heavyWeight)
	sparse := e.Weight < lightWeight
	plotLine(x1, y1, x2, y2, func(x, y, i int) {
		if sparse {
			if i%2 == 1 {
				return
			}
			c.setIfEmpty(x, y, '·', k)
			return
		}
		c.setIfEmpty(x, y, r, k)
	})
}

// edgeRune picks a line rune for the dominant direction of an edge.
// Terminal rows grow downward, so a positive slope renders '╲'.
func edgeRune(dx, dy int, heavy bool) rune {
	adx, ady := absInt(dx), absInt(dy)
	switch {
	case ady*3 <= adx:
		if heavy {
			return '━'
		}
		return '─'
	case adx*3 <= ady:
		if heavy {
			return '┃'
		}
		return '│'
	case (dx > 0) == (dy > 0):
		return '╲'
	default:
		return '╱'
	}
}

// plotLine rasterizes a segment with the integer midpoint algorithm,
// visiting every cell from (x1,y1) to (x2,y2) inclusive.
func plotLine(x1, y1, x2, y2 int, plot func(x, y, i int)) {
	dx := absInt(x2 - x1)
	sx := 1
	if x1 > x2 {
		sx = -1
	}
	dy := -absInt(y2 - y1)
	sy := 1
	if y1 > y2 {
		sy = -1
	}
	err := dx + dy
	for i := 0; ; i++ {
		plot(x1, y1, i)
		if x1 == x2 && y1 == y2 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x1 += sx
		}
		if e2 <= dx {
			err += dx
			y1 += sy
		}
	}
}

func drawNode(c *canvas, n *scene.FrameNode) {
	cx, cy := toCell(n.X, n.Y)
	if cx < -4 || cx > c.w+4 || cy < -2 || cy > c.h+2 {
		return
	}
	k := nodeInk(n)

	rx := n.Radius / cellW
	if rx < 1 {
		g := priorityGlyph(n)
		if n.Pinned {
			g = '◉'
		}
		c.set(cx, cy, g, k)
		return
	}

	// Fill every cell whose center falls inside the disc. The radius is
	// in pixels, so the disc stays round despite tall cells.
	rdx := int(rx + 0.5)
	rdy := int(n.Radius/cellH + 0.5)
	for dy := -rdy; dy <= rdy; dy++ {
		for dx := -rdx; dx <= rdx; dx++ {
			px := float64(dx) * cellW / n.Radius
			py := float64(dy) * cellH / n.Radius
			if px*px+py*py <= 1 {
				c.set(cx+dx, cy+dy, '█', k)
			}
		}
	}
	if n.Pinned {
		c.set(cx, cy, '◉', k)
	}
}

func nodeInk(n *scene.FrameNode) ink {
	if n.Selected {
		return inkSelected
	}
	if n.Emphasis == scene.EmphasisDim {
		return inkDimNode
	}
	if n.Task == nil {
		return inkTodo
	}
	switch n.Task.Status {
	case graph.StatusInProgress:
		return inkProgress
	case graph.StatusBlocked:
		return inkBlocked
	case graph.StatusDone:
		return inkDone
	default:
		return inkTodo
	}
}

func priorityGlyph(n *scene.FrameNode) rune {
	if n.Task == nil {
		return '•'
	}
	switch n.Task.Priority {
	case graph.PriorityLow:
		return '·'
	case graph.PriorityHigh:
		return '●'
	case graph.PriorityCritical:
		return '◆'
	default:
		return '•'
	}
}

func drawLabel(c *canvas, n *scene.FrameNode) {
	if n.Task == nil || n.Task.Title == "" {
		return
	}
	cx, cy := toCell(n.X, n.Y)
	x := cx + int(n.Radius/cellW+0.5) + 2
	k := inkLabel
	switch {
	case n.Selected:
		k = inkLabelHi
	case n.Emphasis == scene.EmphasisDim:
		k = inkLabelDim
	}
	c.text(x, cy, truncate(n.Task.Title, 16), k)
}

// minimapRect places the overlay box, border included, one cell in from
// the bottom right corner. ok is false when the canvas cannot host it.
func minimapRect(cols, rows int, mm *scene.MinimapFrame) (left, top, w, h int, ok bool) {
	if mm == nil {
		return 0, 0, 0, 0, false
	}
	w = int(mm.W) + 2
	h = int(mm.H) + 2
	left = cols - w - 1
	top = rows - h - 1
	if left < 1 || top < 1 {
		return 0, 0, 0, 0, false
	}
	return left, top, w, h, true
}

func drawMinimap(c *canvas, mm *scene.MinimapFrame) {
	left, top, w, h, ok := minimapRect(c.w, c.h, mm)
	if !ok {
		return
	}

	for y := top; y < top+h; y++ {
		for x := left; x < left+w; x++ {
			c.set(x, y, ' ', inkNone)
		}
	}
	for x := left + 1; x < left+w-1; x++ {
		c.set(x, top, '─', inkMapFrame)
		c.set(x, top+h-1, '─', inkMapFrame)
	}
	for y := top + 1; y < top+h-1; y++ {
		c.set(left, y, '│', inkMapFrame)
		c.set(left+w-1, y, '│', inkMapFrame)
	}
	c.set(left, top, '╭', inkMapFrame)
	c.set(left+w-1, top, '╮', inkMapFrame)
	c.set(left, top+h-1, '╰', inkMapFrame)
	c.set(left+w-1, top+h-1, '╯', inkMapFrame)

	ox, oy := left+1, top+1
	iw, ih := w-2, h-2
	for _, d := range mm.Dots {
		x := clampInt(int(d.X), 0, iw-1)
		y := clampInt(int(d.Y), 0, ih-1)
		c.set(ox+x, oy+y, '·', inkMapDot)
	}

	r := mm.View
	x0 := clampInt(int(r.X), 0, iw-1)
	y0 := clampInt(int(r.Y), 0, ih-1)
	x1 := clampInt(int(r.X+r.W)-1, x0, iw-1)
	y1 := clampInt(int(r.Y+r.H)-1, y0, ih-1)
	for x := x0; x <= x1; x++ {
		c.set(ox+x, oy+y0, '─', inkMapView)
		c.set(ox+x, oy+y1, '─', inkMapView)
	}
	for y := y0; y <= y1; y++ {
		c.set(ox+x0, oy+y, '│', inkMapView)
		c.set(ox+x1, oy+y, '│', inkMapView)
	}
	c.set(ox+x0, oy+y0, '┌', inkMapView)
	c.set(ox+x1, oy+y0, '┐', inkMapView)
	c.set(ox+x0, oy+y1, '└', inkMapView)
	c.set(ox+x1, oy+y1, '┘', inkMapView)
}

// View

func (m model) View() string {
	if !m.ready {
		return fmt.Sprintf("\n%s Initializing...", m.spinner.View())
	}

	header := headerStyle.Width(m.width).Render("gravitask  " + subtleStyle.Render(m.connLabel()))

	body := renderCanvas(m.frame, m.canvasCols, m.canvasRows)
	if m.showSidebar {
		body = lipgloss.JoinHorizontal(lipgloss.Top, body, m.renderSidebar())
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, body, m.statusLine(), m.helpLine())
}

func (m model) connLabel() string {
	if m.cfg.offline {
		if m.cfg.seedPath != "" {
			return "standalone · " + truncate(filepath.Base(m.cfg.seedPath), 32)
		}
		return "standalone"
	}
	return m.cfg.endpoint
}

func (m model) renderSidebar() string {
	innerW := sidebarW - 6

	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Bold(true).Underline(true).Render("Inspector") + "\n\n")

	if from := m.sc.Linking(); from != "" {
		b.WriteString(infoStyle.Render("linking from "+truncate(m.taskTitle(from), innerW-13)) + "\n\n")
	}

	t := m.sc.SelectedTask()
	if t == nil {
		b.WriteString(subtleStyle.Render("Click a node to inspect it.") + "\n\n")
		b.WriteString(fmt.Sprintf("%d tasks\n%d links\n", m.tasks, m.relations))
		if m.frame != nil && m.frame.Tick > 0 {
			b.WriteString(subtleStyle.Render(fmt.Sprintf("tick %d", m.frame.Tick)) + "\n")
		}
	} else {
		b.WriteString(titleStyle.Width(innerW).Render(t.Title) + "\n")
		b.WriteString(subtleStyle.Render(shortID(t.ID)) + "\n\n")
		b.WriteString(statusBadge(t.Status) + "  " + priorityBadge(t.Priority) + "\n")
		if t.Category != "" {
			b.WriteString(tagStyle.Render(t.Category) + "\n")
		}
		if len(t.Tags) > 0 {
			b.WriteString(subtleStyle.Render("#"+strings.Join(t.Tags, " #")) + "\n")
		}
		if t.DueAt != nil {
			due := "due " + t.DueAt.Format("2006-01-02")
			if t.DueAt.Before(time.Now()) && t.Status != graph.StatusDone {
				b.WriteString(errorStyle.Render(due+" (overdue)") + "\n")
			} else {
				b.WriteString(subtleStyle.Render(due) + "\n")
			}
		}
		if t.Description != "" {
			b.WriteString("\n" + lipgloss.NewStyle().Width(innerW).Render(t.Description) + "\n")
		}
	}

	return sidebarStyle.Width(sidebarW - 2).Height(m.canvasRows - 2).Render(b.String())
}

func (m model) statusLine() string {
	var left string
	switch {
	case m.typing:
		left = statusStyle.Render("new task ") + m.input.View()
	case m.notice != "":
		left = noticeStyle.Render(m.notice)
	default:
		left = m.syncSummary()
	}

	right := ""
	if m.frame != nil && !m.typing {
		right = subtleStyle.Render(fmt.Sprintf("%d tasks · %d links · zoom %d%% · alpha %.2f",
			m.tasks, m.relations, int(m.frame.Zoom*100+0.5), m.frame.Alpha))
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		return " " + left
	}
	return " " + left + strings.Repeat(" ", gap) + right
}

func (m model) syncSummary() string {
	if m.syn == nil {
		return subtleStyle.Render("standalone · changes stay local")
	}

	st := m.syncState
	var conn string
	switch st.Status {
	case gsync.StatusOnline:
		conn = okStyle.Render("online")
	case gsync.StatusSyncing:
		conn = infoStyle.Render(m.spinner.View() + "syncing")
	default:
		conn = errorStyle.Render("offline")
	}

	parts := []string{conn}
	if st.Pending > 0 {
		parts = append(parts, warnStyle.Render(fmt.Sprintf("%d queued", st.Pending)))
	}
	if st.Version > 0 {
		parts = append(parts, fmt.Sprintf("v%d", st.Version))
	}
	if !st.LastSync.IsZero() {
		parts = append(parts, "synced "+st.LastSync.Format("15:04:05"))
	}
	if st.LastErr != "" && st.Status == gsync.StatusOffline {
		parts = append(parts, errorStyle.Render(truncate(st.LastErr, 48)))
	}
	return strings.Join(parts, subtleStyle.Render(" · "))
}

func (m model) helpLine() string {
	if m.typing {
		return subtleStyle.Render(" enter save · esc cancel")
	}
	if m.sc.Linking() != "" {
		return subtleStyle.Render(" click a target node to link · esc cancels")
	}
	keys := "a add · l link · d done · x delete · r reheat · +/- zoom · 0 reset"
	if m.syn != nil {
		keys += " · s sync"
	}
	keys += " · q quit"
	return subtleStyle.Render(" " + keys)
}

func statusBadge(s graph.Status) string {
	switch s {
	case graph.StatusInProgress:
		return warnStyle.Render("● in progress")
	case graph.StatusBlocked:
		return errorStyle.Render("● blocked")
	case graph.StatusDone:
		return okStyle.Render("● done")
	default:
		return infoStyle.Render("● todo")
	}
}

func priorityBadge(p graph.Priority) string {
	switch p {
	case graph.PriorityLow:
		return subtleStyle.Render("low")
	case graph.PriorityHigh:
		return warnStyle.Render("high")
	case graph.PriorityCritical:
		return errorStyle.Render("critical")
	default:
		return infoStyle.Render("medium")
	}
}

// truncate shortens s to max runes, ellipsized.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 1 {
		return "…"
	}
	return string(r[:max-1]) + "…"
}

func shortID(id string) string {
	if len(id) <= 10 {
		return id
	}
	return id[:8] + "…"
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
