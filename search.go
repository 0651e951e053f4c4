package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"printshelf/internal/api"
	"printshelf/internal/request"
)

const searchPerPage = 20

type searchFocus int

const (
	focusQuery searchFocus = iota
	focusTagFilter
	focusResults
)

type searchModel struct {
	query    textinput.Model
	tagInput textinput.Model
	focus    searchFocus

	selected    []string
	available   []api.Tag
	chip        int
	suggestions []api.Tag

	resp    *api.SearchResponse
	grid    tileGrid
	loading bool
	err     error

	queryDebounce *debouncer
	tagDebounce   *debouncer
}

type searchMsg struct {
	params api.SearchParams
	res    request.Result[*api.SearchResponse]
}

type tagListMsg struct {
	res request.Result[[]api.Tag]
}

type searchSuggestMsg struct {
	prefix string
	res    request.Result[[]api.Tag]
}

// enterSearch opens the search page. resume restores the last executed
// search, including its page, as when coming back from a project.
func (m *model) enterSearch(resume bool) tea.Cmd {
	m.leave()
	m.state = stateSearch

	query := textinput.New()
	query.Placeholder = "Search projects…"
	query.Prompt = "🔍 "
	query.CharLimit = 256

	tags := textinput.New()
	tags.Placeholder = "Filter by tag (enter adds)"
	tags.Prompt = "# "
	tags.CharLimit = 64

	params := api.SearchParams{Query: m.env.cfg.LastQuery, Page: 1, PerPage: searchPerPage}
	if resume {
		params = m.lastSearch
	}
	query.SetValue(params.Query)
	query.CursorEnd()

	m.search = searchModel{
		query:         query,
		tagInput:      tags,
		selected:      append([]string(nil), params.Tags...),
		grid:          newTileGrid(nil),
		queryDebounce: m.scope.debouncer(m.env, searchDebounce, debounceSearch),
		tagDebounce:   m.scope.debouncer(m.env, tagDebounce, debounceSearchTags),
	}
	if resume {
		m.search.focus = focusResults
	}

	page := params.Page
	if page < 1 {
		page = 1
	}
	cmds := []tea.Cmd{m.runSearch(page), m.fetchTagList()}
	if !resume {
		cmds = append(cmds, m.search.query.Focus())
	}
	return tea.Batch(cmds...)
}

func (m model) searchParams(page int) api.SearchParams {
	return api.SearchParams{
		Query:   strings.TrimSpace(m.search.query.Value()),
		Tags:    append([]string(nil), m.search.selected...),
		Page:    page,
		PerPage: searchPerPage,
	}
}

// runSearch issues a search on the search channel, superseding any search
// still in flight.
func (m *model) runSearch(page int) tea.Cmd {
	params := m.searchParams(page)
	m.lastSearch = params
	m.search.loading = true
	m.search.err = nil
	m.search.queryDebounce.Stop()

	if m.env.cfg.LastQuery != params.Query {
		m.env.cfg.LastQuery = params.Query
		if err := m.env.cfg.Save(); err != nil {
			m.env.logger.Warn("saving settings failed", "err", err)
		}
	}

	t := m.scope.reqs.Begin(m.scope.ctx, request.ChannelSearch)
	client := m.env.client
	return tea.Batch(m.spin.Tick, func() tea.Msg {
		res := request.Do(t, func(ctx context.Context) (*api.SearchResponse, error) {
			return client.Search(ctx, params)
		})
		return searchMsg{params: params, res: res}
	})
}

func (m model) fetchTagList() tea.Cmd {
	t := m.scope.reqs.Begin(m.scope.ctx, request.ChannelTagList)
	client := m.env.client
	return func() tea.Msg {
		res := request.Do(t, func(ctx context.Context) ([]api.Tag, error) {
			return client.Tags(ctx, api.TagListParams{SortBy: "usage"})
		})
		return tagListMsg{res: res}
	}
}

func (m model) fetchSearchSuggestions(prefix string) tea.Cmd {
	t := m.scope.reqs.Begin(m.scope.ctx, request.ChannelTags)
	client := m.env.client
	return func() tea.Msg {
		res := request.Do(t, func(ctx context.Context) ([]api.Tag, error) {
			return client.AutocompleteTags(ctx, prefix)
		})
		return searchSuggestMsg{prefix: prefix, res: res}
	}
}

func (m model) updateSearch(msg tea.Msg) (tea.Model, tea.Cmd) {
	s := &m.search
	switch msg := msg.(type) {
	case searchMsg:
		if msg.res.Cancelled() || msg.res.Stale() {
			return m, nil
		}
		s.loading = false
		if msg.res.Failed() {
			s.err = msg.res.Err
			return m, nil
		}
		m.applySearch(msg.res.Value)
		return m, m.loadPreviews()

	case tagListMsg:
		if msg.res.OK() && !msg.res.Stale() {
			s.available = msg.res.Value
		}
		return m, nil

	case searchSuggestMsg:
		if !msg.res.OK() || msg.res.Stale() || msg.prefix != strings.TrimSpace(s.tagInput.Value()) {
			return m, nil
		}
		s.suggestions = msg.res.Value
		return m, nil

	case debounceMsg:
		switch {
		case s.queryDebounce.Current(msg):
			return m, m.runSearch(1)
		case s.tagDebounce.Current(msg):
			prefix := strings.TrimSpace(s.tagInput.Value())
			if prefix == "" {
				s.suggestions = nil
				return m, nil
			}
			return m, m.fetchSearchSuggestions(prefix)
		}
		return m, nil

	case tea.MouseMsg:
		return m.searchMouse(msg)

	case tea.KeyMsg:
		switch msg.String() {
		case "tab":
			return m, m.focusSearch((s.focus + 1) % 3)
		case "shift+tab":
			return m, m.focusSearch((s.focus + 2) % 3)
		case "esc":
			if s.focus != focusResults && len(s.grid.tiles) > 0 {
				return m, m.focusSearch(focusResults)
			}
			return m, m.enterBrowse(m.browse.path)
		}
		switch s.focus {
		case focusQuery:
			return m.updateQueryInput(msg)
		case focusTagFilter:
			return m.updateTagFilter(msg)
		default:
			return m.updateResults(msg)
		}
	}
	return m, nil
}

func (m *model) focusSearch(f searchFocus) tea.Cmd {
	s := &m.search
	s.focus = f
	s.query.Blur()
	s.tagInput.Blur()
	switch f {
	case focusQuery:
		return s.query.Focus()
	case focusTagFilter:
		return s.tagInput.Focus()
	}
	return nil
}

func (m model) updateQueryInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	s := &m.search
	if msg.String() == "enter" {
		return m, tea.Batch(m.runSearch(1), m.focusSearch(focusResults))
	}
	before := s.query.Value()
	var cmd tea.Cmd
	s.query, cmd = s.query.Update(msg)
	if s.query.Value() != before {
		s.queryDebounce.Trigger()
	}
	return m, cmd
}

func (m model) updateTagFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	s := &m.search
	switch msg.String() {
	case "enter":
		name := strings.TrimSpace(s.tagInput.Value())
		if name == "" && s.chip < len(s.available) && len(s.available) > 0 {
			name = s.available[s.chip].Name
		}
		if len(s.suggestions) > 0 && name != "" {
			name = s.suggestions[0].Name
		}
		if name == "" {
			return m, nil
		}
		s.tagInput.Reset()
		s.suggestions = nil
		if !m.toggleTag(name) {
			return m, nil
		}
		return m, m.runSearch(1)
	case "backspace":
		if s.tagInput.Value() == "" && len(s.selected) > 0 {
			s.selected = s.selected[:len(s.selected)-1]
			return m, m.runSearch(1)
		}
	case "left":
		if s.tagInput.Value() == "" {
			if s.chip > 0 {
				s.chip--
			}
			return m, nil
		}
	case "right":
		if s.tagInput.Value() == "" {
			if s.chip < len(s.available)-1 {
				s.chip++
			}
			return m, nil
		}
	}

	before := s.tagInput.Value()
	var cmd tea.Cmd
	s.tagInput, cmd = s.tagInput.Update(msg)
	if s.tagInput.Value() != before {
		s.tagDebounce.Trigger()
		if strings.TrimSpace(s.tagInput.Value()) == "" {
			s.suggestions = nil
			m.scope.reqs.Cancel(request.ChannelTags)
		}
	}
	return m, cmd
}

// toggleTag adds name to the filter or removes it when already present.
// It reports whether the filter changed.
func (m *model) toggleTag(name string) bool {
	s := &m.search
	for i, t := range s.selected {
		if strings.EqualFold(t, name) {
			s.selected = append(s.selected[:i], s.selected[i+1:]...)
			return true
		}
	}
	s.selected = append(s.selected, name)
	return true
}

func (m model) updateResults(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	s := &m.search
	cols := gridCols(m.getWidth())
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.scope.close()
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp()
		return m, nil
	case key.Matches(msg, m.keys.Search):
		return m, m.focusSearch(focusQuery)
	case key.Matches(msg, m.keys.Up):
		s.grid.move(0, -1, cols)
	case key.Matches(msg, m.keys.Down):
		s.grid.move(0, 1, cols)
	case key.Matches(msg, m.keys.Left):
		s.grid.move(-1, 0, cols)
	case key.Matches(msg, m.keys.Right):
		s.grid.move(1, 0, cols)
	case key.Matches(msg, m.keys.PrevImage):
		if t := s.grid.current(); t != nil && t.car.ShowControls() {
			t.car.Prev()
		}
	case key.Matches(msg, m.keys.NextImage):
		if t := s.grid.current(); t != nil && t.car.ShowControls() {
			t.car.Next()
		}
	case key.Matches(msg, m.keys.Auto):
		m.toggleGridAutoAdvance(s.grid)
	case key.Matches(msg, m.keys.PrevPage):
		if s.resp != nil && s.resp.Meta.Page > 1 {
			return m, m.runSearch(s.resp.Meta.Page - 1)
		}
		return m, nil
	case key.Matches(msg, m.keys.NextPage):
		if s.resp != nil && s.resp.Meta.Page < s.resp.Meta.TotalPages {
			return m, m.runSearch(s.resp.Meta.Page + 1)
		}
		return m, nil
	case key.Matches(msg, m.keys.Retry):
		if s.err != nil {
			return m, m.runSearch(m.lastSearch.Page)
		}
		return m, nil
	case key.Matches(msg, m.keys.Open):
		if t := s.grid.current(); t != nil && t.project != nil {
			return m, m.enterProject(t.project.ID, stateSearch)
		}
		return m, nil
	case key.Matches(msg, m.keys.Back):
		return m, m.enterBrowse(m.browse.path)
	default:
		return m, nil
	}
	return m, m.loadPreviews()
}

func (m *model) applySearch(resp *api.SearchResponse) {
	m.scope.release(m.search.grid.tiles)
	tiles := make([]*tile, 0, len(resp.Data))
	for _, p := range resp.Data {
		tiles = append(tiles, projectTile(m.scope, m.env, p.Project, p.Images))
	}
	m.search.resp = resp
	m.search.grid = newTileGrid(tiles)
	if resp.Meta.Page > 0 {
		m.lastSearch.Page = resp.Meta.Page
	}
}

func (m model) searchMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	s := &m.search
	header := m.searchHeader()
	rows := m.gridRows(header)
	i := s.grid.tileAt(msg.X, msg.Y, lipgloss.Height(header), m.getWidth(), rows)

	switch {
	case msg.Action == tea.MouseActionMotion:
		s.grid.setMouse(i)
		return m, nil
	case msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft && i >= 0:
		if i == s.grid.selected && s.grid.current().project != nil {
			return m, m.enterProject(s.grid.current().project.ID, stateSearch)
		}
		s.grid.selected = i
		s.grid.syncHover()
		m.focusSearch(focusResults)
		return m, m.loadPreviews()
	}
	return m, nil
}

func (m model) searchHeader() string {
	s := m.search
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", renderTitle("Search Projects"))

	queryStyle, tagStyle := inputStyle, inputStyle
	switch s.focus {
	case focusQuery:
		queryStyle = inputFocusStyle
	case focusTagFilter:
		tagStyle = inputFocusStyle
	}
	width := m.getWidth() - 4
	fmt.Fprintf(&b, "%s\n", queryStyle.Width(width).Render(s.query.View()))
	fmt.Fprintf(&b, "%s\n", tagStyle.Width(width).Render(s.tagInput.View()))
	fmt.Fprintf(&b, "%s\n", truncate(m.renderTagFilter(), width))

	switch {
	case s.loading:
		fmt.Fprintf(&b, "%s Searching…", m.spin.View())
	case s.err != nil:
		b.WriteString(renderBanner(api.UserMessage(s.err), retryable(s.err)))
	case s.resp != nil:
		total := s.resp.Meta.Total
		plural := "s"
		if total == 1 {
			plural = ""
		}
		b.WriteString(subtitleStyle.Render(fmt.Sprintf("Found %d project%s", total, plural)))
	}
	return b.String()
}

// renderTagFilter shows the active filter tags, then either autocomplete
// suggestions or the most used tags.
func (m model) renderTagFilter() string {
	s := m.search
	var parts []string
	for _, name := range s.selected {
		parts = append(parts, buttonActiveStyle.Render(name+" ×"))
	}

	if len(s.suggestions) > 0 {
		for i, t := range s.suggestions {
			if i >= 6 {
				break
			}
			parts = append(parts, subtitleStyle.Render(t.Name))
		}
		return strings.Join(parts, " ")
	}
	for i, t := range s.available {
		if i >= 12 {
			break
		}
		active := false
		for _, name := range s.selected {
			if strings.EqualFold(name, t.Name) {
				active = true
			}
		}
		if active {
			continue
		}
		label := fmt.Sprintf("%s (%d)", t.Name, t.UsageCount)
		if s.focus == focusTagFilter && i == s.chip {
			parts = append(parts, renderTagChip(api.Tag{Name: label, Color: t.Color}, true))
		} else {
			parts = append(parts, subtitleStyle.Render(label))
		}
	}
	return strings.Join(parts, " ")
}

func (m model) viewSearch() string {
	s := m.search
	var b strings.Builder
	header := m.searchHeader()
	fmt.Fprintf(&b, "%s\n", header)

	if s.resp != nil && s.err == nil {
		if len(s.grid.tiles) == 0 {
			msg := "No projects found."
			if len(s.selected) > 0 || strings.TrimSpace(s.query.Value()) != "" {
				msg += " Try adjusting your search or filters."
			}
			fmt.Fprintf(&b, "\n%s\n", subtitleStyle.Render(msg))
		} else {
			fmt.Fprintf(&b, "%s\n", s.grid.view(m.getWidth(), m.gridRows(header), m.env.tiles))
			if s.resp.Meta.TotalPages > 1 {
				fmt.Fprintf(&b, "%s\n", renderPagination(s.resp.Meta.Page, s.resp.Meta.TotalPages))
			}
		}
	}

	fmt.Fprintf(&b, "%s", subtitleStyle.Render(
		"tab switch field • enter search/add tag • n/p page • [ ] images • enter open • esc back"))
	return b.String()
}
