package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"printshelf/internal/api"
	"printshelf/internal/cache"
	"printshelf/internal/request"
)

// browseModel is the folder page. Folder contents and the breadcrumb trail
// are fetched on separate channels so each can be superseded on its own.
type browseModel struct {
	path     string
	crumbs   []api.BreadcrumbItem
	contents *api.FolderContents
	grid     tileGrid
	loading  bool
	err      error

	// restore is the tile key to reselect once the folder has loaded
	restore int64
}

type folderMsg struct {
	path string
	res  request.Result[*api.FolderContents]
}

type breadcrumbMsg struct {
	path string
	res  request.Result[[]api.BreadcrumbItem]
}

type tileMetaMsg struct {
	id  int64
	gen uint64
	res request.Result[*api.ProjectDetail]
}

// enterBrowse shows the folder at path with a fresh scope.
func (m *model) enterBrowse(path string) tea.Cmd {
	restore := int64(0)
	if m.browse.path == path {
		if t := m.browse.grid.current(); t != nil {
			restore = t.key
		}
	}
	m.leave()
	m.state = stateBrowse
	m.browse = browseModel{path: path, restore: restore, grid: newTileGrid(nil)}
	return m.navigate(path)
}

// navigate moves to path within the page. The previous folder and
// breadcrumb requests are superseded before the new ones are issued.
func (m *model) navigate(path string) tea.Cmd {
	m.browse.path = path
	m.browse.loading = true
	m.browse.err = nil
	return tea.Batch(m.spin.Tick, m.fetchFolder(path), m.fetchBreadcrumb(path))
}

func (m model) fetchFolder(path string) tea.Cmd {
	t := m.scope.reqs.Begin(m.scope.ctx, request.ChannelFolder)
	client := m.env.client
	return func() tea.Msg {
		res := request.Do(t, func(ctx context.Context) (*api.FolderContents, error) {
			return client.FolderContents(ctx, path, 0, 0)
		})
		return folderMsg{path: path, res: res}
	}
}

func (m model) fetchBreadcrumb(path string) tea.Cmd {
	t := m.scope.reqs.Begin(m.scope.ctx, request.ChannelBreadcrumb)
	client := m.env.client
	return func() tea.Msg {
		res := request.Do(t, func(ctx context.Context) ([]api.BreadcrumbItem, error) {
			return client.Breadcrumb(ctx, path)
		})
		return breadcrumbMsg{path: path, res: res}
	}
}

// fetchTileMeta fills the metadata cache for the selected project tile.
func (m model) fetchTileMeta() tea.Cmd {
	t := m.browse.grid.current()
	if t == nil || t.isFolder() {
		return nil
	}
	if _, ok := m.env.tiles.Get(t.key); ok {
		return nil
	}
	ticket := m.scope.reqs.Begin(m.scope.ctx, request.ChannelProject)
	client, id, gen := m.env.client, t.key, m.env.tiles.Generation()
	return func() tea.Msg {
		res := request.Do(ticket, func(ctx context.Context) (*api.ProjectDetail, error) {
			return client.Project(ctx, id)
		})
		return tileMetaMsg{id: id, gen: gen, res: res}
	}
}

func (m model) updateBrowse(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case folderMsg:
		if msg.res.Cancelled() || msg.res.Stale() || msg.path != m.browse.path {
			return m, nil
		}
		m.browse.loading = false
		if msg.res.Failed() {
			m.browse.err = msg.res.Err
			return m, nil
		}
		m.applyFolder(msg.res.Value)
		return m, tea.Batch(m.loadPreviews(), m.fetchTileMeta())

	case breadcrumbMsg:
		if msg.res.Cancelled() || msg.res.Stale() || msg.path != m.browse.path {
			return m, nil
		}
		if msg.res.Failed() {
			// The trail is cosmetic; fall back to the path itself.
			m.env.logger.Warn("breadcrumb failed", "path", msg.path, "err", msg.res.Err)
			m.browse.crumbs = nil
			return m, nil
		}
		m.browse.crumbs = msg.res.Value
		return m, nil

	case tileMetaMsg:
		if !msg.res.OK() || msg.res.Stale() {
			return m, nil
		}
		m.env.tiles.Put(msg.id, cache.Compute(*msg.res.Value, nil), msg.gen)
		return m, nil

	case tea.MouseMsg:
		return m.browseMouse(msg)

	case tea.KeyMsg:
		cols := gridCols(m.getWidth())
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.scope.close()
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.showHelp()
			return m, nil
		case key.Matches(msg, m.keys.Up):
			m.browse.grid.move(0, -1, cols)
		case key.Matches(msg, m.keys.Down):
			m.browse.grid.move(0, 1, cols)
		case key.Matches(msg, m.keys.Left):
			m.browse.grid.move(-1, 0, cols)
		case key.Matches(msg, m.keys.Right):
			m.browse.grid.move(1, 0, cols)
		case key.Matches(msg, m.keys.PrevImage):
			if t := m.browse.grid.current(); t != nil && t.car.ShowControls() {
				t.car.Prev()
			}
		case key.Matches(msg, m.keys.NextImage):
			if t := m.browse.grid.current(); t != nil && t.car.ShowControls() {
				t.car.Next()
			}
		case key.Matches(msg, m.keys.Auto):
			m.toggleGridAutoAdvance(m.browse.grid)
		case key.Matches(msg, m.keys.Open):
			return m, m.openTile(m.browse.grid.current())
		case key.Matches(msg, m.keys.Back):
			if m.browse.path == "" {
				return m, nil
			}
			return m, m.navigate(api.ParentPath(m.browse.path))
		case key.Matches(msg, m.keys.Retry):
			if m.browse.err != nil {
				return m, m.navigate(m.browse.path)
			}
			return m, nil
		case key.Matches(msg, m.keys.Search):
			return m, m.enterSearch(false)
		case key.Matches(msg, m.keys.Scan):
			return m, m.enterScan(false)
		case key.Matches(msg, m.keys.Setup):
			return m, m.enterSetup(nil)
		case msg.String() == "home", msg.String() == "~":
			if m.browse.path != "" {
				return m, m.navigate("")
			}
			return m, nil
		default:
			return m, nil
		}
		return m, tea.Batch(m.loadPreviews(), m.fetchTileMeta())
	}
	return m, nil
}

// applyFolder swaps in the tiles of a freshly loaded folder: folders first,
// then projects, in server order.
func (m *model) applyFolder(fc *api.FolderContents) {
	m.scope.release(m.browse.grid.tiles)

	tiles := make([]*tile, 0, len(fc.Folders)+len(fc.Projects))
	for i, f := range fc.Folders {
		tiles = append(tiles, folderTile(m.scope, m.env, i, f))
	}
	for _, p := range fc.Projects {
		tiles = append(tiles, projectTile(m.scope, m.env, p.Project, p.PreviewImages))
	}

	grid := newTileGrid(tiles)
	if m.browse.restore != 0 {
		for i, t := range tiles {
			if t.key == m.browse.restore {
				grid.selected = i
				break
			}
		}
		m.browse.restore = 0
		grid.syncHover()
	}
	m.browse.contents = fc
	m.browse.grid = grid
}

func (m *model) openTile(t *tile) tea.Cmd {
	if t == nil {
		return nil
	}
	if t.isFolder() {
		return m.navigate(t.folder.Path)
	}
	return m.enterProject(t.project.ID, stateBrowse)
}

// toggleGridAutoAdvance flips auto-advance for every tile and remembers it.
func (m *model) toggleGridAutoAdvance(g tileGrid) {
	on := !m.env.cfg.AutoAdvanceOr(false)
	m.env.cfg.AutoAdvance = &on
	for _, t := range g.tiles {
		t.car.SetAutoAdvance(on)
	}
	if err := m.env.cfg.Save(); err != nil {
		m.env.logger.Warn("saving settings failed", "err", err)
	}
}

func (m model) browseMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	header := m.browseHeader()
	top := lipgloss.Height(header)
	rows := m.gridRows(header)
	i := m.browse.grid.tileAt(msg.X, msg.Y, top, m.getWidth(), rows)

	switch {
	case msg.Action == tea.MouseActionMotion:
		m.browse.grid.setMouse(i)
		return m, nil
	case msg.Button == tea.MouseButtonWheelUp:
		m.browse.grid.move(0, -1, gridCols(m.getWidth()))
	case msg.Button == tea.MouseButtonWheelDown:
		m.browse.grid.move(0, 1, gridCols(m.getWidth()))
	case msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft:
		if msg.Y == crumbLine {
			if path, ok := m.crumbAt(msg.X); ok && path != m.browse.path {
				return m, m.navigate(path)
			}
			return m, nil
		}
		if i < 0 {
			return m, nil
		}
		if i == m.browse.grid.selected {
			return m, m.openTile(m.browse.grid.current())
		}
		m.browse.grid.selected = i
		m.browse.grid.syncHover()
	default:
		return m, nil
	}
	return m, tea.Batch(m.loadPreviews(), m.fetchTileMeta())
}

// crumbLine is the screen row of the breadcrumb trail, below the title.
const crumbLine = 2

// trail is the breadcrumb trail with the library root first. When the
// server trail is unavailable it is derived from the path.
func (m model) trail() []api.BreadcrumbItem {
	items := []api.BreadcrumbItem{{Name: "Library", Path: ""}}
	crumbs := m.browse.crumbs
	if crumbs == nil && m.browse.path != "" {
		acc := ""
		for _, seg := range strings.Split(m.browse.path, "/") {
			if acc != "" {
				acc += "/"
			}
			acc += seg
			crumbs = append(crumbs, api.BreadcrumbItem{Name: seg, Path: acc})
		}
	}
	for _, c := range crumbs {
		if c.Path == "" {
			continue
		}
		items = append(items, c)
	}
	return items
}

const crumbSep = " › "

func (m model) renderTrail() string {
	items := m.trail()
	parts := make([]string, len(items))
	for i, c := range items {
		if i == len(items)-1 {
			parts[i] = valueStyle.Render(c.Name)
		} else {
			parts[i] = accentStyle.Render(c.Name)
		}
	}
	return strings.Join(parts, subtitleStyle.Render(crumbSep))
}

// crumbAt returns the path of the breadcrumb segment under column x.
func (m model) crumbAt(x int) (string, bool) {
	pos := 0
	for _, c := range m.trail() {
		w := lipgloss.Width(c.Name)
		if x >= pos && x < pos+w {
			return c.Path, true
		}
		pos += w + lipgloss.Width(crumbSep)
	}
	return "", false
}

func (m model) browseHeader() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", renderTitle("PrintShelf"))
	fmt.Fprintf(&b, "%s\n", m.renderTrail())

	switch {
	case m.browse.loading:
		fmt.Fprintf(&b, "%s Loading…", m.spin.View())
	case m.browse.err != nil:
		b.WriteString(renderBanner(api.UserMessage(m.browse.err), retryable(m.browse.err)))
	case m.browse.contents != nil:
		fc := m.browse.contents
		summary := fmt.Sprintf("%d folders · %d projects", fc.TotalFolders, fc.TotalProjects)
		if fc.IsLeafProject {
			summary += " · project folder"
		}
		b.WriteString(subtitleStyle.Render(summary))
	}
	return b.String()
}

func (m model) viewBrowse() string {
	var b strings.Builder
	header := m.browseHeader()
	fmt.Fprintf(&b, "%s\n", header)

	switch {
	case m.browse.contents == nil:
	case len(m.browse.grid.tiles) == 0:
		fmt.Fprintf(&b, "\n%s\n", subtitleStyle.Render("This folder is empty."))
	default:
		fmt.Fprintf(&b, "%s\n", m.browse.grid.view(m.getWidth(), m.gridRows(header), m.env.tiles))
	}

	fmt.Fprintf(&b, "\n%s", subtitleStyle.Render(
		"←↑↓→ move • enter open • ⌫ up • [ ] images • a auto • / search • S scan • ? help • q quit"))
	return b.String()
}

// retryable reports whether a failed call is worth offering a retry for.
func retryable(err error) bool {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return true
}
