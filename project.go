package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/paginator"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"printshelf/internal/api"
	"printshelf/internal/cache"
	"printshelf/internal/ledger"
	"printshelf/internal/request"
)

type projectFocus int

const (
	focusFiles projectFocus = iota
	focusChildren
	focusTags
)

// projectModel is the detail page of one project: gallery, files, child
// projects and the tag editor.
type projectModel struct {
	id     int64
	backTo appState
	// history holds the projects above this one when opened as a child
	history []int64

	detail   *api.ProjectDetail
	files    *api.FilesPage
	pager    paginator.Model
	gallery  *tile
	loading  bool
	err      error
	filesErr error

	focus projectFocus
	row   int
	child int

	tags        []api.Tag
	tagSel      int
	tagInput    textinput.Model
	tagEditing  bool
	tagBusy     bool
	tagErr      string
	suggestions []api.Tag
	suggestSel  int
	tagDebounce *debouncer

	downloading int
	notice      string
}

type projectMsg struct {
	id  int64
	res request.Result[*api.ProjectDetail]
}

type filesMsg struct {
	id   int64
	page int
	res  request.Result[*api.FilesPage]
}

type tagSuggestMsg struct {
	prefix string
	res    request.Result[[]api.Tag]
}

type projectTagsMsg struct {
	id    int64
	added string
	tags  []api.Tag
	err   error
}

func (m *model) enterProject(id int64, backTo appState) tea.Cmd {
	m.leave()
	m.state = stateProject

	input := textinput.New()
	input.Placeholder = "Add a tag (press Enter)"
	input.Prompt = "# "
	input.CharLimit = 64

	pager := paginator.New()
	pager.Type = paginator.Arabic
	pager.PerPage = m.imagesPerPage()

	m.project = projectModel{
		id:          id,
		backTo:      backTo,
		loading:     true,
		pager:       pager,
		tagInput:    input,
		tagDebounce: m.scope.debouncer(m.env, tagDebounce, debounceProjectTags),
	}
	return tea.Batch(m.spin.Tick, m.fetchProject(id), m.fetchFiles(id, 1))
}

// openChild opens a sub-project; going back returns here.
func (m *model) openChild(id int64) tea.Cmd {
	history := append(append([]int64(nil), m.project.history...), m.project.id)
	cmd := m.enterProject(id, m.project.backTo)
	m.project.history = history
	return cmd
}

func (m *model) leaveProject() tea.Cmd {
	if n := len(m.project.history); n > 0 {
		prev, history := m.project.history[n-1], m.project.history[:n-1]
		cmd := m.enterProject(prev, m.project.backTo)
		m.project.history = history
		return cmd
	}
	if m.project.backTo == stateSearch {
		return m.enterSearch(true)
	}
	return m.enterBrowse(m.browse.path)
}

func (m model) imagesPerPage() int {
	if m.env.cfg.ImagesPerPage > 0 {
		return m.env.cfg.ImagesPerPage
	}
	return api.DefaultFilesPerPage
}

func (m model) fetchProject(id int64) tea.Cmd {
	t := m.scope.reqs.Begin(m.scope.ctx, request.ChannelProject)
	client := m.env.client
	return func() tea.Msg {
		res := request.Do(t, func(ctx context.Context) (*api.ProjectDetail, error) {
			return client.Project(ctx, id)
		})
		return projectMsg{id: id, res: res}
	}
}

func (m model) fetchFiles(id int64, page int) tea.Cmd {
	t := m.scope.reqs.Begin(m.scope.ctx, request.ChannelFiles)
	client, perPage := m.env.client, m.imagesPerPage()
	return func() tea.Msg {
		res := request.Do(t, func(ctx context.Context) (*api.FilesPage, error) {
			return client.ProjectFiles(ctx, id, page, perPage)
		})
		return filesMsg{id: id, page: page, res: res}
	}
}

func (m model) fetchTagSuggestions(prefix string) tea.Cmd {
	t := m.scope.reqs.Begin(m.scope.ctx, request.ChannelTags)
	client := m.env.client
	return func() tea.Msg {
		res := request.Do(t, func(ctx context.Context) ([]api.Tag, error) {
			return client.AutocompleteTags(ctx, prefix)
		})
		return tagSuggestMsg{prefix: prefix, res: res}
	}
}

func (m model) addProjectTag(name string) tea.Cmd {
	ctx, client, id := m.scope.ctx, m.env.client, m.project.id
	return func() tea.Msg {
		tags, err := client.AddProjectTag(ctx, id, name, "")
		return projectTagsMsg{id: id, added: name, tags: tags, err: err}
	}
}

func (m model) removeProjectTag(name string) tea.Cmd {
	ctx, client, id := m.scope.ctx, m.env.client, m.project.id
	return func() tea.Msg {
		tags, err := client.RemoveProjectTag(ctx, id, name)
		return projectTagsMsg{id: id, tags: tags, err: err}
	}
}

// galleryImages adapts the image rows of a files page to carousel slides.
func galleryImages(files []api.ImageFile) []api.ImagePreview {
	out := make([]api.ImagePreview, len(files))
	for i, f := range files {
		out[i] = api.ImagePreview{
			ID:         f.ID,
			Filename:   f.Filename,
			SourceType: f.SourceType,
			Priority:   f.DisplayOrder,
		}
	}
	return out
}

func (m model) updateProject(msg tea.Msg) (tea.Model, tea.Cmd) {
	p := &m.project
	switch msg := msg.(type) {
	case projectMsg:
		if msg.id != p.id || msg.res.Cancelled() || msg.res.Stale() {
			return m, nil
		}
		p.loading = false
		if msg.res.Failed() {
			p.err = msg.res.Err
			return m, nil
		}
		p.err = nil
		p.detail = msg.res.Value
		p.tags = p.detail.Tags
		m.rememberProjectMeta()
		return m, nil

	case filesMsg:
		if msg.id != p.id || msg.res.Cancelled() || msg.res.Stale() {
			return m, nil
		}
		if msg.res.Failed() {
			p.filesErr = msg.res.Err
			return m, nil
		}
		p.filesErr = nil
		p.files = msg.res.Value
		p.pager.SetTotalPages(p.files.TotalImages)
		p.pager.Page = msg.page - 1
		if n := len(p.files.STLFiles) + len(p.files.Images); p.row >= n {
			p.row = 0
		}

		images := galleryImages(p.files.Images)
		if p.gallery == nil {
			name := fmt.Sprintf("Project %d", p.id)
			if p.detail != nil {
				name = p.detail.Name
			}
			p.gallery = &tile{
				key:  p.id,
				name: name,
				car:  m.scope.carousel(m.env, images, name, m.env.cfg.AutoAdvanceOr(true)),
			}
		} else {
			p.gallery.car.SetImages(images)
			p.gallery.asked = false
		}
		m.rememberProjectMeta()
		return m, m.loadPreviews()

	case debounceMsg:
		if !p.tagDebounce.Current(msg) || !p.tagEditing {
			return m, nil
		}
		prefix := strings.TrimSpace(p.tagInput.Value())
		if prefix == "" {
			p.suggestions = nil
			return m, nil
		}
		return m, m.fetchTagSuggestions(prefix)

	case tagSuggestMsg:
		if !msg.res.OK() || msg.res.Stale() {
			return m, nil
		}
		if msg.prefix != strings.TrimSpace(p.tagInput.Value()) {
			return m, nil
		}
		p.suggestions = msg.res.Value
		p.suggestSel = -1
		return m, nil

	case projectTagsMsg:
		if msg.id != p.id {
			return m, nil
		}
		p.tagBusy = false
		if msg.err != nil {
			if !api.IsCancelled(msg.err) {
				// The typed name stays in the input so it can be corrected.
				p.tagErr = api.UserMessage(msg.err)
			}
			return m, nil
		}
		p.tagErr = ""
		p.tags = msg.tags
		if p.tagSel >= len(p.tags) {
			p.tagSel = len(p.tags) - 1
		}
		if p.tagSel < 0 {
			p.tagSel = 0
		}
		if msg.added != "" {
			p.tagInput.Reset()
			p.suggestions = nil
		}
		return m, nil

	case tea.MouseMsg:
		if p.gallery == nil {
			return m, nil
		}
		top := lipgloss.Height(m.projectHeader())
		cols, rows := m.galleryArtSize()
		over := msg.X >= 0 && msg.X < cols && msg.Y >= top && msg.Y <= top+rows
		p.gallery.car.SetHovered(over)
		if over && msg.Action == tea.MouseActionPress {
			switch msg.Button {
			case tea.MouseButtonLeft, tea.MouseButtonWheelDown:
				if p.gallery.car.ShowControls() {
					p.gallery.car.Next()
				}
			case tea.MouseButtonWheelUp:
				if p.gallery.car.ShowControls() {
					p.gallery.car.Prev()
				}
			}
			return m, m.loadPreviews()
		}
		return m, nil

	case tea.KeyMsg:
		if p.tagEditing {
			return m.updateTagEditor(msg)
		}
		return m.projectKey(msg)
	}
	return m, nil
}

func (m model) projectKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := &m.project
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.scope.close()
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp()
	case key.Matches(msg, m.keys.Back):
		return m, m.leaveProject()
	case key.Matches(msg, m.keys.Retry):
		if p.err != nil || p.filesErr != nil {
			p.loading = p.err != nil
			return m, tea.Batch(m.fetchProject(p.id), m.fetchFiles(p.id, p.pager.Page+1))
		}
	case key.Matches(msg, m.keys.Focus):
		p.focus = (p.focus + 1) % 3
		if p.focus == focusChildren && (p.detail == nil || len(p.detail.Children) == 0) {
			p.focus = focusTags
		}
	case key.Matches(msg, m.keys.Up):
		m.moveProjectCursor(-1)
	case key.Matches(msg, m.keys.Down):
		m.moveProjectCursor(1)
	case key.Matches(msg, m.keys.Left):
		if p.focus == focusTags && p.tagSel > 0 {
			p.tagSel--
		}
	case key.Matches(msg, m.keys.Right):
		if p.focus == focusTags && p.tagSel < len(p.tags)-1 {
			p.tagSel++
		}
	case key.Matches(msg, m.keys.PrevImage):
		if p.gallery != nil && p.gallery.car.ShowControls() {
			p.gallery.car.Prev()
			return m, m.loadPreviews()
		}
	case key.Matches(msg, m.keys.NextImage):
		if p.gallery != nil && p.gallery.car.ShowControls() {
			p.gallery.car.Next()
			return m, m.loadPreviews()
		}
	case key.Matches(msg, m.keys.PrevPage):
		if p.files != nil && !p.pager.OnFirstPage() {
			return m, m.fetchFiles(p.id, p.pager.Page)
		}
	case key.Matches(msg, m.keys.NextPage):
		if p.files != nil && !p.pager.OnLastPage() {
			return m, m.fetchFiles(p.id, p.pager.Page+2)
		}
	case key.Matches(msg, m.keys.Auto):
		if p.gallery != nil {
			p.gallery.car.SetAutoAdvance(!p.gallery.car.AutoAdvance())
		}
	case key.Matches(msg, m.keys.Open):
		return m, m.openProjectRow()
	case key.Matches(msg, m.keys.Download):
		if kind, id, ok := m.selectedFile(); ok {
			p.downloading++
			p.notice = ""
			return m, tea.Batch(m.spin.Tick, m.download(kind, id))
		}
	case key.Matches(msg, m.keys.Archive):
		p.downloading++
		p.notice = ""
		return m, tea.Batch(m.spin.Tick, m.download(ledger.KindProject, p.id))
	case key.Matches(msg, m.keys.AddTag):
		p.focus = focusTags
		p.tagEditing = true
		p.tagErr = ""
		return m, p.tagInput.Focus()
	case key.Matches(msg, m.keys.RemoveTag):
		if p.focus == focusTags && len(p.tags) > 0 && !p.tagBusy {
			p.tagBusy = true
			p.tagErr = ""
			return m, m.removeProjectTag(p.tags[p.tagSel].Name)
		}
	case key.Matches(msg, m.keys.Search):
		return m, m.enterSearch(false)
	}
	return m, nil
}

func (m *model) moveProjectCursor(d int) {
	p := &m.project
	switch p.focus {
	case focusFiles:
		if p.files == nil {
			return
		}
		n := len(p.files.STLFiles) + len(p.files.Images)
		if next := p.row + d; next >= 0 && next < n {
			p.row = next
		}
	case focusChildren:
		if p.detail == nil {
			return
		}
		if next := p.child + d; next >= 0 && next < len(p.detail.Children) {
			p.child = next
		}
	}
}

// selectedFile maps the file cursor to a download kind and id.
func (m model) selectedFile() (ledger.Kind, int64, bool) {
	p := m.project
	if p.files == nil || p.focus != focusFiles {
		return "", 0, false
	}
	if p.row < len(p.files.STLFiles) {
		return ledger.KindSTL, p.files.STLFiles[p.row].ID, true
	}
	i := p.row - len(p.files.STLFiles)
	if i < len(p.files.Images) {
		return ledger.KindImage, p.files.Images[i].ID, true
	}
	return "", 0, false
}

func (m *model) openProjectRow() tea.Cmd {
	p := &m.project
	switch p.focus {
	case focusChildren:
		if p.detail != nil && p.child < len(p.detail.Children) {
			return m.openChild(p.detail.Children[p.child].ID)
		}
	case focusFiles:
		// Enter on an image shows it in the gallery.
		if p.files == nil || p.gallery == nil {
			return nil
		}
		i := p.row - len(p.files.STLFiles)
		if i >= 0 && i < p.gallery.car.Len() {
			p.gallery.car.GoTo(i)
			return m.loadPreviews()
		}
	}
	return nil
}

func (m model) updateTagEditor(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := &m.project
	switch msg.String() {
	case "esc":
		p.tagEditing = false
		p.suggestions = nil
		p.tagInput.Blur()
		return m, nil
	case "down", "tab":
		if len(p.suggestions) > 0 {
			p.suggestSel = (p.suggestSel + 1) % len(p.suggestions)
		}
		return m, nil
	case "up", "shift+tab":
		if len(p.suggestions) > 0 {
			p.suggestSel--
			if p.suggestSel < 0 {
				p.suggestSel = len(p.suggestions) - 1
			}
		}
		return m, nil
	case "enter":
		if p.tagBusy {
			return m, nil
		}
		name := strings.TrimSpace(p.tagInput.Value())
		if p.suggestSel >= 0 && p.suggestSel < len(p.suggestions) {
			name = p.suggestions[p.suggestSel].Name
		}
		if name == "" {
			p.tagErr = "Tag name is required."
			return m, nil
		}
		p.tagBusy = true
		p.tagErr = ""
		return m, m.addProjectTag(name)
	}

	before := p.tagInput.Value()
	var cmd tea.Cmd
	p.tagInput, cmd = p.tagInput.Update(msg)
	if p.tagInput.Value() != before {
		p.tagDebounce.Trigger()
		if strings.TrimSpace(p.tagInput.Value()) == "" {
			p.suggestions = nil
			m.scope.reqs.Cancel(request.ChannelTags)
		}
	}
	return m, cmd
}

// rememberProjectMeta stores tile metadata once both the detail and the
// files listing are known; the STL sizes give the total size.
func (m model) rememberProjectMeta() {
	p := m.project
	if p.detail == nil || p.files == nil {
		return
	}
	m.env.tiles.Put(p.id, cache.Compute(*p.detail, p.files.STLFiles), m.env.tiles.Generation())
}

// galleryArtSize is the cell size of the gallery image on the project page.
func (m model) galleryArtSize() (int, int) {
	cols := m.getWidth()/2 - 4
	if cols > 64 {
		cols = 64
	}
	if cols < tileArtCols {
		cols = tileArtCols
	}
	rows := cols / 4
	if rows < tileArtRows {
		rows = tileArtRows
	}
	return cols, rows
}

func (m model) projectHeader() string {
	p := m.project
	name := fmt.Sprintf("Project %d", p.id)
	path := ""
	if p.detail != nil {
		name = p.detail.Name
		path = p.detail.FullPath
	}
	return fmt.Sprintf("%s\n%s\n", renderTitle(name), subtitleStyle.Render(truncate(path, m.getWidth()-2)))
}

func (m model) viewProject() string {
	p := m.project
	var b strings.Builder
	width := m.getWidth()

	fmt.Fprintf(&b, "%s\n", m.projectHeader())

	if p.loading && p.detail == nil {
		fmt.Fprintf(&b, "%s Loading project…\n", m.spin.View())
		return b.String()
	}
	if p.err != nil {
		fmt.Fprintf(&b, "%s\n", renderBanner(api.UserMessage(p.err), retryable(p.err)))
		fmt.Fprintf(&b, "%s\n", subtitleStyle.Render("⌫ back • r retry • q quit"))
		return b.String()
	}

	cols, rows := m.galleryArtSize()
	var gallery string
	if p.gallery != nil {
		gallery = renderCarousel(p.gallery.car, p.gallery.art, cols, rows, "No images")
	} else {
		gallery = renderCarousel(nil, "", cols, rows, "Loading images…")
	}
	info := m.projectInfo(width - cols - 4)
	fmt.Fprintf(&b, "%s\n\n", lipgloss.JoinHorizontal(lipgloss.Top, gallery, "  ", info))

	if desc := p.detail.DescriptionText(); desc != "" {
		rendered := strings.TrimRight(renderMarkdown(desc, width-4), "\n")
		lines := strings.Split(rendered, "\n")
		if len(lines) > 8 {
			lines = append(lines[:8], subtitleStyle.Render("…"))
		}
		fmt.Fprintf(&b, "%s\n", strings.Join(lines, "\n"))
	}

	fmt.Fprintf(&b, "%s\n", m.viewProjectFiles())

	if len(p.detail.Children) > 0 {
		fmt.Fprintf(&b, "\n%s\n", headingStyle.Render(fmt.Sprintf("Sub-projects (%d)", len(p.detail.Children))))
		start, end := windowRange(p.child, len(p.detail.Children), 5)
		for i := start; i < end; i++ {
			c := p.detail.Children[i]
			prefix := "  "
			style := valueStyle
			if p.focus == focusChildren && i == p.child {
				prefix = lipgloss.NewStyle().Foreground(secondary).Render("▸ ")
				style = style.Foreground(primary).Bold(true)
			}
			fmt.Fprintf(&b, "%s%s\n", prefix, style.Render(c.Name))
		}
	}

	fmt.Fprintf(&b, "\n%s\n", m.viewTagEditor())

	if p.notice != "" {
		fmt.Fprintf(&b, "%s\n", p.notice)
	}
	fmt.Fprintf(&b, "%s", subtitleStyle.Render(
		"tab focus • ↑↓ select • enter open • [ ] images • n/p page • d download • D project zip • t tag • x untag • ⌫ back"))
	return b.String()
}

func (m model) projectInfo(width int) string {
	p := m.project
	d := p.detail
	var b strings.Builder

	kind := "Project"
	if !d.IsLeaf {
		kind = "Folder project"
	}
	fmt.Fprintf(&b, "%s\n", headingStyle.Render(kind))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("STL files:"), valueStyle.Render(fmt.Sprint(d.STLCount)))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Images:"), valueStyle.Render(fmt.Sprint(d.ImageCount)))
	if md, ok := m.env.tiles.Get(p.id); ok && md.TotalSize > 0 {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("STL size:"), valueStyle.Render(md.FormattedSize))
	}
	if p.gallery != nil {
		state := "off"
		if p.gallery.car.AutoAdvance() {
			state = "on"
		}
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Auto-advance:"), valueStyle.Render(state))
	}
	if p.downloading > 0 {
		fmt.Fprintf(&b, "\n%s Downloading…\n", m.spin.View())
	}
	return lipgloss.NewStyle().Width(width).Render(b.String())
}

func (m model) viewProjectFiles() string {
	p := m.project
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", headingStyle.Render("Files"))
	switch {
	case p.filesErr != nil:
		b.WriteString(renderBanner(api.UserMessage(p.filesErr), retryable(p.filesErr)))
		return b.String()
	case p.files == nil:
		fmt.Fprintf(&b, "%s Loading files…", m.spin.View())
		return b.String()
	}

	var rows [][]string
	for _, f := range p.files.STLFiles {
		rows = append(rows, []string{"STL", truncate(f.Filename, 48), cache.FormatBytes(f.FileSize)})
	}
	for _, f := range p.files.Images {
		kind := "Image"
		if f.SourceType == api.SourceInherited {
			kind = "Image (inherited)"
		}
		rows = append(rows, []string{kind, truncate(f.Filename, 48), cache.FormatBytes(f.FileSize)})
	}

	selected := -1
	if p.focus == focusFiles {
		selected = p.row
	}
	start, end := windowRange(p.row, len(rows), 8)
	if selected >= 0 {
		selected -= start
	}
	b.WriteString(renderTable([]string{"Type", "Name", "Size"}, rows[start:end], selected))
	if len(rows) > end-start {
		fmt.Fprintf(&b, "\n%s", subtitleStyle.Render(fmt.Sprintf("(%d-%d of %d)", start+1, end, len(rows))))
	}
	if p.pager.TotalPages > 1 {
		fmt.Fprintf(&b, "\n%s %s", subtitleStyle.Render("Image page"), p.pager.View())
	}
	return b.String()
}

func (m model) viewTagEditor() string {
	p := m.project
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", headingStyle.Render("Tags"))
	if p.tagErr != "" {
		fmt.Fprintf(&b, "%s\n", errorStyle.Render(p.tagErr))
	}
	if len(p.tags) == 0 {
		fmt.Fprintf(&b, "%s\n", subtitleStyle.Render("No tags yet. Press t to add one."))
	} else {
		chips := make([]string, len(p.tags))
		for i, t := range p.tags {
			chips[i] = renderTagChip(t, p.focus == focusTags && i == p.tagSel)
		}
		fmt.Fprintf(&b, "%s\n", strings.Join(chips, " "))
	}

	if p.tagEditing {
		style := inputFocusStyle
		fmt.Fprintf(&b, "%s\n", style.Render(p.tagInput.View()))
		for i, s := range p.suggestions {
			if i >= 5 {
				break
			}
			prefix := "  "
			if i == p.suggestSel {
				prefix = lipgloss.NewStyle().Foreground(warning).Render("▸ ")
			}
			fmt.Fprintf(&b, "%s%s %s\n", prefix, s.Name, subtitleStyle.Render(fmt.Sprintf("(%d)", s.UsageCount)))
		}
	}
	return b.String()
}
