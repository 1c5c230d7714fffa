package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/gravitask/gravitask/pkg/client"
	"github.com/gravitask/gravitask/pkg/graph"
	"github.com/gravitask/gravitask/pkg/scene"
	"github.com/gravitask/gravitask/pkg/store"
	gsync "github.com/gravitask/gravitask/pkg/sync"
)

// Config
const (
	defaultEndpoint = "http://127.0.0.1:8780"

	frameRate   = 33 * time.Millisecond
	persistRate = 30 * time.Second
	noticeTTL   = 4 * time.Second

	// cellW and cellH are the logical pixels one terminal cell covers.
	// Cells are roughly twice as tall as wide, so a circle in this
	// space renders round on screen.
	cellW = 8.0
	cellH = 16.0

	headerRows = 2
	footerRows = 2
	sidebarW   = 30
)

// Styles
var (
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Bold(true)
	statusStyle = lipgloss.NewStyle().Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	infoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	tagStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("99"))

	// Layout styles
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true)

	sidebarStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

type config struct {
	dbPath   string
	endpoint string
	token    string
	offline  bool
	seedPath string
}

func loadConfig(args []string) (config, error) {
	var c config

	defaultDB := "gravitask-cache.db"
	if cwd, err := os.Getwd(); err == nil {
		defaultDB = filepath.Join(cwd, "gravitask-cache.db")
	}

	fs := flag.NewFlagSet("gravitask-tui", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&c.dbPath, "db", envOrDefault("GRAVITASK_TUI_DB", defaultDB), "path to the local cache database")
	fs.StringVar(&c.endpoint, "api", envOrDefault("GRAVITASK_API", defaultEndpoint), "daemon endpoint")
	fs.StringVar(&c.token, "token", envOrDefault("GRAVITASK_TOKEN", ""), "bearer token for the daemon")
	fs.BoolVar(&c.offline, "offline", false, "run without a daemon; changes stay local")
	fs.StringVar(&c.seedPath, "seed", "", "JSON seed file to import and watch (needs -offline)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fs.SetOutput(os.Stderr)
			fs.PrintDefaults()
		}
		return c, err
	}

	if c.seedPath != "" && !c.offline {
		return c, fmt.Errorf("-seed requires -offline; push seeds to a daemon with the gravitask CLI instead")
	}
	if c.seedPath != "" {
		c.seedPath = resolvePath(c.seedPath)
	}
	c.dbPath = resolvePath(c.dbPath)
	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func resolvePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}

// Messages

type frameMsg time.Time

type persistMsg time.Time

type syncMsg gsync.State

type seedChangedMsg struct{}

type graphMsg struct {
	g   *graph.Graph
	err error
}

type noticeExpiredMsg struct{ seq int }

type model struct {
	cfg config
	st  *store.Store
	sc  *scene.Scene
	syn *gsync.Syncer

	syncCh chan gsync.State
	seedCh chan struct{}
	linkCh chan [2]string

	spinner spinner.Model
	input   textinput.Model
	typing  bool

	frame     *scene.Frame
	syncState gsync.State
	tasks     int
	relations int

	width, height          int
	canvasCols, canvasRows int
	showSidebar            bool
	ready                  bool
	mouseDown              bool

	notice    string
	noticeSeq int
}

func initialModel(cfg config, st *store.Store) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	in := textinput.New()
	in.Placeholder = "task title"
	in.CharLimit = 120
	in.Width = 40

	sc := scene.New(0, 0, scene.Options{})

	// The link callback fires inside a pointer call, on the update
	// goroutine. It lands on a channel because the model is a value:
	// a closure over it would mutate a stale copy.
	linkCh := make(chan [2]string, 4)
	sc.OnLink = func(source, target string) {
		select {
		case linkCh <- [2]string{source, target}:
		default:
		}
	}

	return model{
		cfg:     cfg,
		st:      st,
		sc:      sc,
		spinner: s,
		input:   in,
		linkCh:  linkCh,
	}
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, frameTick(), persistTick()}
	if m.cfg.seedPath != "" {
		cmds = append(cmds, importSeed(m.st, m.cfg.seedPath), listenSeed(m.seedCh))
	} else {
		cmds = append(cmds, loadGraph(m.st))
	}
	if m.syncCh != nil {
		cmds = append(cmds, listenSync(m.syncCh))
	}
	return tea.Batch(cmds...)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case tea.WindowSizeMsg:
		m.layout(msg.Width, msg.Height)

	case frameMsg:
		m.frame = m.sc.Frame()
		cmds = append(cmds, frameTick())

	case persistMsg:
		m.persistPositions()
		cmds = append(cmds, persistTick())

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case syncMsg:
		prev := m.syncState
		m.syncState = gsync.State(msg)
		cmds = append(cmds, listenSync(m.syncCh))
		if m.syncState.Version != prev.Version {
			cmds = append(cmds, loadGraph(m.st))
		}

	case seedChangedMsg:
		cmds = append(cmds, importSeed(m.st, m.cfg.seedPath), listenSeed(m.seedCh))

	case graphMsg:
		if msg.err != nil {
			cmds = append(cmds, m.setNotice(msg.err.Error()))
		} else {
			m.sc.SetGraph(msg.g)
			m.tasks = len(msg.g.Tasks)
			m.relations = len(msg.g.Relations)
		}

	case noticeExpiredMsg:
		if msg.seq == m.noticeSeq {
			m.notice = ""
		}
	}

	return m, tea.Batch(cmds...)
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.typing {
		switch msg.String() {
		case "ctrl+c":
			m.persistPositions()
			return m, tea.Quit
		case "enter":
			title := strings.TrimSpace(m.input.Value())
			m.typing = false
			m.input.Blur()
			if title == "" {
				return m, nil
			}
			cmd := m.createTask(title)
			return m, cmd
		case "esc":
			m.typing = false
			m.input.Blur()
			return m, nil
		default:
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.persistPositions()
		return m, tea.Quit
	case "a":
		m.typing = true
		m.input.SetValue("")
		cmd := m.input.Focus()
		return m, cmd
	case "l":
		if m.sc.Selected() == "" {
			cmd := m.setNotice("select a task first, then press l to link")
			return m, cmd
		}
		m.sc.StartLinking()
	case "esc":
		if m.sc.Linking() != "" {
			m.sc.CancelLinking()
		} else {
			m.sc.ClearSelection()
		}
	case "d":
		cmd := m.toggleDone()
		return m, cmd
	case "x":
		cmd := m.deleteSelected()
		return m, cmd
	case "r":
		m.sc.Reheat()
	case "0":
		m.sc.ResetView()
	case "+", "=":
		m.sc.ZoomIn()
	case "-", "_":
		m.sc.ZoomOut()
	case "s":
		if m.syn != nil {
			m.syn.Nudge()
			cmd := m.setNotice("sync requested")
			return m, cmd
		}
	}
	return m, nil
}

func (m model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if !m.ready {
		return m, nil
	}

	cx := msg.X
	cy := msg.Y - headerRows
	inCanvas := cx >= 0 && cx < m.canvasCols && cy >= 0 && cy < m.canvasRows

	switch msg.Button {
	case tea.MouseButtonWheelUp:
		if inCanvas {
			m.sc.WheelZoom(1)
		}
		return m, nil
	case tea.MouseButtonWheelDown:
		if inCanvas {
			m.sc.WheelZoom(-1)
		}
		return m, nil
	}

	// Pointer positions land on the center of the cell so a click on a
	// one-cell node hits its disc.
	px := (float64(cx) + 0.5) * cellW
	py := (float64(cy) + 0.5) * cellH

	switch msg.Action {
	case tea.MouseActionPress:
		if msg.Button != tea.MouseButtonLeft || !inCanvas {
			return m, nil
		}
		if l, t, w, h, ok := m.minimapBounds(); ok && cx > l && cx < l+w-1 && cy > t && cy < t+h-1 {
			m.sc.MinimapClick(float64(cx-l-1)+0.5, float64(cy-t-1)+0.5)
			return m, nil
		}
		m.mouseDown = true
		m.sc.PointerDown(px, py)

	case tea.MouseActionMotion:
		if m.mouseDown {
			m.sc.PointerMove(px, py)
		}

	case tea.MouseActionRelease:
		if !m.mouseDown {
			return m, nil
		}
		m.mouseDown = false
		m.sc.PointerUp(px, py)
		select {
		case pair := <-m.linkCh:
			cmd := m.createRelation(pair[0], pair[1])
			return m, cmd
		default:
		}
	}
	return m, nil
}

func (m *model) layout(w, h int) {
	m.width, m.height = w, h
	m.showSidebar = w >= 80
	cols := w
	if m.showSidebar {
		cols = w - sidebarW
	}
	rows := h - headerRows - footerRows
	if cols < 2 {
		cols = 2
	}
	if rows < 2 {
		rows = 2
	}
	m.canvasCols, m.canvasRows = cols, rows
	m.sc.Resize(float64(cols)*cellW, float64(rows)*cellH)
	m.ready = true
}

func (m model) minimapBounds() (left, top, w, h int, ok bool) {
	if m.frame == nil {
		return 0, 0, 0, 0, false
	}
	return minimapRect(m.canvasCols, m.canvasRows, m.frame.Minimap)
}

func (m *model) persistPositions() {
	pos := m.sc.Positions()
	if len(pos) == 0 {
		return
	}
	_ = m.st.UpdatePositions(context.Background(), pos)
}

func (m *model) createTask(title string) tea.Cmd {
	ctx := context.Background()
	now := time.Now().UTC()
	t := &graph.Task{
		ID:        uuid.NewString(),
		Title:     title,
		Status:    graph.StatusTodo,
		Priority:  graph.PriorityMedium,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.st.UpsertTask(ctx, t); err != nil {
		return m.setNotice("create failed: " + err.Error())
	}
	m.queueOp(func(ctx context.Context) error {
		_, err := gsync.QueueCreateTask(ctx, m.st, t)
		return err
	})
	return tea.Batch(loadGraph(m.st), m.setNotice("added "+truncate(title, 24)))
}

func (m *model) toggleDone() tea.Cmd {
	id := m.sc.Selected()
	if id == "" {
		return m.setNotice("no task selected")
	}
	ctx := context.Background()
	t, err := m.st.GetTask(ctx, id)
	if err != nil {
		return m.setNotice("load failed: " + err.Error())
	}
	if t == nil {
		return m.setNotice("task is gone")
	}
	if t.Status == graph.StatusDone {
		t.Status = graph.StatusTodo
	} else {
		t.Status = graph.StatusDone
	}
	t.UpdatedAt = time.Now().UTC()
	if err := m.st.UpsertTask(ctx, t); err != nil {
		return m.setNotice("update failed: " + err.Error())
	}
	m.queueOp(func(ctx context.Context) error {
		_, err := gsync.QueueUpdateTask(ctx, m.st, t)
		return err
	})
	return loadGraph(m.st)
}

func (m *model) deleteSelected() tea.Cmd {
	id := m.sc.Selected()
	if id == "" {
		return m.setNotice("no task selected")
	}
	ctx := context.Background()
	title := m.taskTitle(id)
	if err := m.st.DeleteTask(ctx, id); err != nil {
		return m.setNotice("delete failed: " + err.Error())
	}
	m.queueOp(func(ctx context.Context) error {
		_, err := gsync.QueueDeleteTask(ctx, m.st, id)
		return err
	})
	return tea.Batch(loadGraph(m.st), m.setNotice("deleted "+truncate(title, 24)))
}

func (m *model) createRelation(source, target string) tea.Cmd {
	ctx := context.Background()
	rel := &graph.Relation{Source: source, Target: target, Weight: 1}
	if err := m.st.UpsertEdge(ctx, rel); err != nil {
		return m.setNotice("link failed: " + err.Error())
	}
	m.queueOp(func(ctx context.Context) error {
		_, err := gsync.QueueCreateEdge(ctx, m.st, rel)
		return err
	})
	note := "linked " + truncate(m.taskTitle(source), 14) + " to " + truncate(m.taskTitle(target), 14)
	return tea.Batch(loadGraph(m.st), m.setNotice(note))
}

// queueOp records a mutation for replay and wakes the synchronizer. In
// standalone mode mutations stay local and nothing is queued.
func (m *model) queueOp(enqueue func(context.Context) error) {
	if m.syn == nil {
		return
	}
	if err := enqueue(context.Background()); err == nil {
		m.syn.Nudge()
	}
}

func (m *model) setNotice(s string) tea.Cmd {
	m.notice = s
	m.noticeSeq++
	seq := m.noticeSeq
	return tea.Tick(noticeTTL, func(time.Time) tea.Msg { return noticeExpiredMsg{seq} })
}

func (m model) taskTitle(id string) string {
	if m.frame != nil {
		for i := range m.frame.Nodes {
			n := &m.frame.Nodes[i]
			if n.ID == id && n.Task != nil {
				return n.Task.Title
			}
		}
	}
	return id
}

// Commands

func frameTick() tea.Cmd {
	return tea.Tick(frameRate, func(t time.Time) tea.Msg { return frameMsg(t) })
}

func persistTick() tea.Cmd {
	return tea.Tick(persistRate, func(t time.Time) tea.Msg { return persistMsg(t) })
}

func loadGraph(st *store.Store) tea.Cmd {
	return func() tea.Msg {
		g, err := st.LoadGraph(context.Background())
		return graphMsg{g: g, err: err}
	}
}

func importSeed(st *store.Store, path string) tea.Cmd {
	return func() tea.Msg {
		data, err := os.ReadFile(path)
		if err != nil {
			return graphMsg{err: fmt.Errorf("read seed: %w", err)}
		}
		seed, err := graph.ParseSeed(data)
		if err != nil {
			return graphMsg{err: err}
		}
		ctx := context.Background()
		if err := st.ReplaceGraph(ctx, &graph.Graph{Tasks: seed.Tasks, Relations: seed.Edges}); err != nil {
			return graphMsg{err: fmt.Errorf("import seed: %w", err)}
		}
		g, err := st.LoadGraph(ctx)
		return graphMsg{g: g, err: err}
	}
}

func listenSync(ch <-chan gsync.State) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg { return syncMsg(<-ch) }
}

func listenSeed(ch <-chan struct{}) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		<-ch
		return seedChangedMsg{}
	}
}

// sendLatest delivers a state without blocking the sync loop, replacing
// the buffered value if the UI has fallen behind.
func sendLatest(ch chan gsync.State, s gsync.State) {
	select {
	case ch <- s:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}

// watchSeed watches the seed file's directory and signals on writes to
// the file itself. Watching the directory survives editors that replace
// the file with a rename.
func watchSeed(path string, events chan<- struct{}) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, err
	}
	base := filepath.Base(path)
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Rename) {
					select {
					case events <- struct{}{}:
					default:
					}
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return w, nil
}

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "gravitask-tui: %v\n", err)
		os.Exit(1)
	}

	st, err := store.NewStore(cfg.dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gravitask-tui: open store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	m := initialModel(cfg, st)
	defer m.sc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !cfg.offline {
		c := client.NewClient(cfg.endpoint)
		if cfg.token != "" {
			c.SetToken(cfg.token)
		}
		syncCh := make(chan gsync.State, 1)
		m.syncCh = syncCh
		m.syn = gsync.NewSyncer(st, c, gsync.Options{
			OnChange: func(s gsync.State) { sendLatest(syncCh, s) },
		})
		m.syncState = m.syn.Snapshot()
		go m.syn.Run(ctx)
	}

	if cfg.seedPath != "" {
		seedCh := make(chan struct{}, 1)
		m.seedCh = seedCh
		w, err := watchSeed(cfg.seedPath, seedCh)
		if err != nil {
			fmt.Fprintf(os.Stderr, "gravitask-tui: watch seed: %v\n", err)
			os.Exit(1)
		}
		defer w.Close()
	}

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseAllMotion())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Alas, there's been an error: %v", err)
		os.Exit(1)
	}
}
