package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"printshelf/internal/api"
	"printshelf/internal/cache"
	"printshelf/internal/carousel"
	"printshelf/internal/clock"
	"printshelf/internal/config"
	"printshelf/internal/ledger"
	"printshelf/internal/preview"
	"printshelf/internal/request"
)

type appState int

const (
	stateStartup appState = iota
	stateSetup
	stateLocalBrowser
	stateBrowse
	stateProject
	stateSearch
	stateScan
	stateHelp
)

// env is shared by every page for the lifetime of the program
type env struct {
	client   *api.Client
	previews *preview.Loader
	tiles    *cache.Cache
	cfg      *config.Config
	ledger   *ledger.Ledger // nil when the ledger could not be opened
	logger   *slog.Logger
	clock    clock.Clock

	// send delivers a message to the event loop from any goroutine.
	send func(tea.Msg)
}

// post runs f on the event loop. Carousel and debounce timers use it.
func (e *env) post(f func()) { e.send(dispatchMsg{fn: f}) }

// scope owns what one page starts: its request channels, the context for
// preview loads, its carousels and its debouncers. Leaving the page closes
// the scope and nothing it started fires afterwards.
type scope struct {
	reqs       *request.Manager
	ctx        context.Context
	cancel     context.CancelFunc
	cars       []*carousel.Engine
	debouncers []*debouncer
}

func newScope(e *env) *scope {
	ctx, cancel := context.WithCancel(context.Background())
	return &scope{reqs: request.NewManager(e.logger), ctx: ctx, cancel: cancel}
}

func (s *scope) carousel(e *env, images []api.ImagePreview, label string, auto bool) *carousel.Engine {
	c := carousel.New(images, carousel.Options{
		AutoAdvance: auto,
		Label:       label,
		Clock:       e.clock,
		Post:        e.post,
	})
	s.cars = append(s.cars, c)
	return c
}

func (s *scope) debouncer(e *env, delay time.Duration, kind debounceKind) *debouncer {
	d := &debouncer{clock: e.clock, delay: delay, kind: kind, send: e.send}
	s.debouncers = append(s.debouncers, d)
	return d
}

// release closes carousels the page no longer shows, such as the tiles of
// a folder it navigated away from.
func (s *scope) release(tiles []*tile) {
	gone := make(map[*carousel.Engine]bool, len(tiles))
	for _, t := range tiles {
		t.car.Close()
		gone[t.car] = true
	}
	kept := s.cars[:0]
	for _, c := range s.cars {
		if !gone[c] {
			kept = append(kept, c)
		}
	}
	s.cars = kept
}

func (s *scope) close() {
	if s == nil {
		return
	}
	s.reqs.Close()
	s.cancel()
	for _, c := range s.cars {
		c.Close()
	}
	for _, d := range s.debouncers {
		d.Stop()
	}
}

type helpModel struct {
	previousState appState
	view          help.Model
}

type startupModel struct {
	err error
}

type model struct {
	state appState
	env   *env
	keys  KeyMap
	scope *scope
	// background outlives page changes; it carries the scan watch.
	background *scope

	// scanPending is set while a scan this client saw running has not been
	// seen to finish. scanWatchGen tags the active background watch.
	scanPending  bool
	scanWatchGen int

	startup startupModel
	setup   setupModel
	local   localBrowserModel
	browse  browseModel
	project projectModel
	search  searchModel
	scan    scanModel
	help    helpModel

	// lastSearch survives visits to a project opened from the results.
	lastSearch api.SearchParams

	spin       spinner.Model
	windowSize tea.WindowSizeMsg
}

// Messages
type dispatchMsg struct{ fn func() }

type serverConfigMsg struct {
	res request.Result[*api.LibraryConfig]
}

type previewMsg struct {
	t   *tile
	seq uint64
	art string
	err error
}

type downloadDoneMsg struct {
	entry ledger.Entry
	err   error
}

func newModel(e *env) model {
	s := spinner.New()
	s.Spinner = spinner.Dot

	h := help.New()
	h.ShowAll = true

	return model{
		state: stateStartup,
		env:   e,
		keys:  DefaultKeyMap(),
		spin:  s,
		scope:      newScope(e),
		background: newScope(e),
		help:       helpModel{view: h},
		setup: newSetupModel(e.cfg),
	}
}

// INIT
func (m model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.loadServerConfig())
}

func (m model) loadServerConfig() tea.Cmd {
	t := m.scope.reqs.Begin(m.scope.ctx, request.ChannelConfig)
	client := m.env.client
	return func() tea.Msg {
		res := request.Do(t, func(ctx context.Context) (*api.LibraryConfig, error) {
			return client.Config(ctx)
		})
		return serverConfigMsg{res: res}
	}
}

// UPDATE
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// Messages every page reacts to the same way.
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.windowSize = msg
		m.help.view.Width = msg.Width
		return m, nil
	case dispatchMsg:
		msg.fn()
		return m, m.loadPreviews()
	case previewMsg:
		return m.applyPreview(msg)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	case downloadDoneMsg:
		return m.applyDownload(msg)
	case scanWatchMsg:
		return m, m.checkScan(msg.gen)
	case scanWatchStatusMsg:
		cmd := m.applyScanWatch(msg)
		return m, cmd
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.scope.close()
			return m, tea.Quit
		}
	}

	switch m.state {
	case stateStartup:
		return m.updateStartup(msg)
	case stateSetup:
		return m.updateSetup(msg)
	case stateLocalBrowser:
		return m.updateLocalBrowser(msg)
	case stateBrowse:
		return m.updateBrowse(msg)
	case stateProject:
		return m.updateProject(msg)
	case stateSearch:
		return m.updateSearch(msg)
	case stateScan:
		return m.updateScan(msg)
	case stateHelp:
		return m.updateHelp(msg)
	default:
		return m, nil
	}
}

func (m model) updateStartup(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case serverConfigMsg:
		if msg.res.Cancelled() || msg.res.Stale() {
			return m, nil
		}
		if msg.res.Failed() {
			m.startup.err = msg.res.Err
			return m, nil
		}
		m.startup.err = nil
		if cfg := msg.res.Value; cfg.RootPath == nil || *cfg.RootPath == "" {
			return m, m.enterSetup(cfg)
		}
		return m, m.enterBrowse("")
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.scope.close()
			return m, tea.Quit
		case key.Matches(msg, m.keys.Retry):
			m.startup.err = nil
			return m, m.loadServerConfig()
		case key.Matches(msg, m.keys.Setup):
			return m, m.enterSetup(nil)
		}
	}
	return m, nil
}

func (m model) updateHelp(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg.(type) {
	case tea.KeyMsg:
		// Any key exits help and returns to previous state
		m.state = m.help.previousState
		return m, nil
	case tea.MouseMsg:
		return m, nil
	}

	// Results keep flowing to the page underneath.
	prev := m.help.previousState
	m.state = prev
	next, cmd := m.Update(msg)
	nm := next.(model)
	if nm.state == prev {
		nm.state = stateHelp
	}
	return nm, cmd
}

func (m *model) showHelp() {
	m.help.previousState = m.state
	m.state = stateHelp
}

// leave closes the current page's scope. Pages call it before switching
// state so no timer or request of the old page outlives it.
func (m *model) leave() {
	m.scope.close()
	m.scope = newScope(m.env)
}

// loadPreviews starts image loads for the visible slides of the current
// page that are neither loaded, failed nor already requested.
func (m model) loadPreviews() tea.Cmd {
	switch m.state {
	case stateBrowse:
		return m.previewCmds(m.browse.grid.visible(m.getWidth(), m.gridRows(m.browseHeader())), tileArtCols, tileArtRows)
	case stateSearch:
		return m.previewCmds(m.search.grid.visible(m.getWidth(), m.gridRows(m.searchHeader())), tileArtCols, tileArtRows)
	case stateProject:
		if m.project.gallery != nil {
			cols, rows := m.galleryArtSize()
			return m.previewCmds([]*tile{m.project.gallery}, cols, rows)
		}
	}
	return nil
}

func (m model) previewCmds(tiles []*tile, cols, rows int) tea.Cmd {
	var cmds []tea.Cmd
	for _, t := range tiles {
		slide, ok := t.car.Slide()
		if !ok || t.car.Loaded() || t.car.Failed() {
			continue
		}
		if t.asked && t.askedSeq == slide.Seq {
			continue
		}
		t.asked, t.askedSeq = true, slide.Seq
		cmds = append(cmds, renderPreview(m.scope.ctx, m.env.previews, t, slide, cols, rows))
	}
	return tea.Batch(cmds...)
}

func renderPreview(ctx context.Context, l *preview.Loader, t *tile, slide carousel.Slide, cols, rows int) tea.Cmd {
	return func() tea.Msg {
		art, err := l.Render(ctx, slide.Image.ID, cols, rows)
		return previewMsg{t: t, seq: slide.Seq, art: art, err: err}
	}
}

// applyPreview records an image load. Results for a slide that is no
// longer current are ignored by the carousel.
func (m model) applyPreview(msg previewMsg) (tea.Model, tea.Cmd) {
	slide, ok := msg.t.car.Slide()
	if !ok || slide.Seq != msg.seq {
		return m, m.loadPreviews()
	}
	if msg.err != nil {
		if !api.IsCancelled(msg.err) {
			m.env.logger.Debug("preview failed", "image", slide.Image.ID, "err", msg.err)
			msg.t.car.MarkFailed(msg.seq)
		}
		return m, nil
	}
	msg.t.art = msg.art
	msg.t.car.MarkLoaded(msg.seq)
	return m, nil
}

// VIEW
func (m model) View() string {
	switch m.state {
	case stateStartup:
		return m.viewStartup()
	case stateSetup:
		return m.viewSetup()
	case stateLocalBrowser:
		return m.viewLocalBrowser()
	case stateBrowse:
		return m.viewBrowse()
	case stateProject:
		return m.viewProject()
	case stateSearch:
		return m.viewSearch()
	case stateScan:
		return m.viewScan()
	case stateHelp:
		return m.viewHelp()
	default:
		return ""
	}
}

// Responsive layout helpers
func (m model) getWidth() int {
	if m.windowSize.Width > 0 {
		return m.windowSize.Width
	}
	return 80 // Default width
}

func (m model) getHeight() int {
	if m.windowSize.Height > 0 {
		return m.windowSize.Height
	}
	return 24 // Default height
}

// runTUI starts the interactive program and blocks until it exits
func runTUI(e *env) error {
	applyColorProfile()

	var program *tea.Program
	e.send = func(msg tea.Msg) {
		if program != nil {
			program.Send(msg)
		}
	}
	m := newModel(e)
	program = tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseAllMotion())

	final, err := program.Run()
	if fm, ok := final.(model); ok {
		fm.scope.close()
		fm.background.close()
	}
	return err
}
