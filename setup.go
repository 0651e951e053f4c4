package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"printshelf/internal/api"
	"printshelf/internal/config"
	"printshelf/internal/request"
)

// setupModel is the library root form. Path completion and validation run
// against the local filesystem, which is where the backend lives in the
// default localhost setup.
type setupModel struct {
	root   textinput.Model
	server *api.LibraryConfig
	saving bool
	err    string

	// Autocomplete state
	completions        []string
	completionIndex    int
	showingCompletions bool

	// Path validation state
	rootPathValid int // 0=unknown, 1=valid, 2=partial, 3=invalid

	recentPaths []string
}

type configSavedMsg struct {
	root string
	res  request.Result[*api.LibraryConfig]
}

func newSetupModel(cfg *config.Config) setupModel {
	root := textinput.New()
	root.Placeholder = "/projects"
	root.Prompt = "Root path: "
	root.CharLimit = 4096
	if cfg.LastRootPath != "" {
		root.SetValue(cfg.LastRootPath)
	}
	return setupModel{root: root, recentPaths: cfg.RecentRoots}
}

func (m *model) enterSetup(server *api.LibraryConfig) tea.Cmd {
	m.leave()
	m.state = stateSetup
	m.setup.err = ""
	m.setup.saving = false
	m.setup.recentPaths = m.env.cfg.RecentRoots
	if server != nil {
		m.setup.server = server
		if server.RootPath != nil && *server.RootPath != "" {
			m.setup.root.SetValue(*server.RootPath)
			m.setup.root.CursorEnd()
		}
	}
	m.setup.rootPathValid = validatePath(m.setup.root.Value())
	return m.setup.root.Focus()
}

func (m model) updateSetup(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case configSavedMsg:
		if msg.res.Cancelled() || msg.res.Stale() {
			return m, nil
		}
		m.setup.saving = false
		if msg.res.Failed() {
			// Keep what was typed so the user can fix it.
			m.setup.err = api.UserMessage(msg.res.Err)
			return m, nil
		}
		m.setup.server = msg.res.Value
		m.env.cfg.RememberRoot(msg.root)
		if err := m.env.cfg.Save(); err != nil {
			m.env.logger.Warn("saving settings failed", "err", err)
		}
		return m, m.enterScan(true)
	case tea.KeyMsg:
		if m.setup.saving {
			return m, nil
		}
		switch msg.String() {
		case "tab":
			return m.handleTabCompletion()
		case "down":
			if m.setup.showingCompletions && len(m.setup.completions) > 0 {
				m.setup.completionIndex = (m.setup.completionIndex + 1) % len(m.setup.completions)
			}
			return m, nil
		case "up", "shift+tab":
			if m.setup.showingCompletions && len(m.setup.completions) > 0 {
				m.setup.completionIndex = (m.setup.completionIndex + len(m.setup.completions) - 1) % len(m.setup.completions)
			}
			return m, nil
		case "ctrl+b":
			// open the directory browser starting from the typed path
			m.local = localBrowserModel{currentPath: m.browserStartPath()}
			m.state = stateLocalBrowser
			return m, m.loadLocalDirs()
		case "enter":
			if m.setup.showingCompletions && len(m.setup.completions) > 0 {
				return m.selectCompletion()
			}
			root := strings.TrimSpace(m.setup.root.Value())
			if root == "" {
				m.setup.err = "Root path is required."
				return m, nil
			}
			m.setup.err = ""
			m.setup.saving = true
			return m, tea.Batch(m.spin.Tick, m.saveRoot(root))
		case "esc":
			if m.setup.showingCompletions {
				m.setup.showingCompletions = false
				m.setup.completions = nil
				return m, nil
			}
			if m.setup.server != nil && m.setup.server.RootPath != nil && *m.setup.server.RootPath != "" {
				return m, m.enterBrowse("")
			}
			return m, tea.Quit
		case "f1":
			m.showHelp()
			return m, nil
		case "1", "2", "3", "4", "5", "6", "7", "8", "9":
			// Quick select recent path, only while the field is empty
			if m.setup.root.Value() == "" || m.setup.root.Value() == m.env.cfg.LastRootPath {
				index := int(msg.String()[0] - '1')
				if index < len(m.setup.recentPaths) {
					m.setup.root.SetValue(m.setup.recentPaths[index])
					m.setup.root.CursorEnd()
					m.setup.rootPathValid = validatePath(m.setup.recentPaths[index])
					return m, nil
				}
			}
		}
	}

	// Update the text input and validate path in real-time
	m.setup.root, cmd = m.setup.root.Update(msg)
	m.setup.rootPathValid = validatePath(m.setup.root.Value())
	return m, cmd
}

func (m model) saveRoot(root string) tea.Cmd {
	t := m.scope.reqs.Begin(m.scope.ctx, request.ChannelConfig)
	client := m.env.client
	return func() tea.Msg {
		res := request.Do(t, func(ctx context.Context) (*api.LibraryConfig, error) {
			return client.UpdateConfig(ctx, api.UpdateConfigRequest{RootPath: &root})
		})
		return configSavedMsg{root: root, res: res}
	}
}

// Handle tab completion for the root field
func (m model) handleTabCompletion() (tea.Model, tea.Cmd) {
	completions := getPathCompletions(m.setup.root.Value())

	// A single match is completed immediately
	if len(completions) == 1 {
		m.setup.root.SetValue(completions[0])
		m.setup.root.CursorEnd()
		m.setup.rootPathValid = validatePath(completions[0])
		m.setup.showingCompletions = false
		return m, nil
	}
	if len(completions) == 0 {
		return m, nil
	}

	m.setup.completions = completions
	m.setup.completionIndex = 0
	m.setup.showingCompletions = true
	return m, nil
}

func (m model) selectCompletion() (tea.Model, tea.Cmd) {
	completion := m.setup.completions[m.setup.completionIndex]
	m.setup.root.SetValue(completion)
	m.setup.root.CursorEnd()
	m.setup.rootPathValid = validatePath(completion)
	m.setup.showingCompletions = false
	m.setup.completions = nil
	return m, nil
}

// getPathCompletions lists the non-hidden directories that complete path
func getPathCompletions(path string) []string {
	path = strings.TrimSpace(path)
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		path = home + string(filepath.Separator)
	}

	// An existing directory lists its children; anything else is a prefix
	// of an entry in its parent.
	dir, prefix := path, ""
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		dir, prefix = filepath.Dir(path), filepath.Base(path)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var completions []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		// Case-insensitive prefix matching
		if prefix == "" || strings.HasPrefix(strings.ToLower(name), strings.ToLower(prefix)) {
			completions = append(completions, filepath.Join(dir, name))
		}
	}
	return completions
}

// Validate a path and return status: 1=valid, 2=partial, 3=invalid
func validatePath(path string) int {
	path = strings.TrimSpace(path)
	if path == "" {
		return 0
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return 1
	}
	if _, err := os.Stat(filepath.Dir(path)); err == nil {
		return 2
	}
	return 3
}

// Get visual indicator for path validation status
func getPathValidationIndicator(status int) string {
	switch status {
	case 1:
		return successStyle.Render("✓")
	case 2:
		return lipgloss.NewStyle().Foreground(warning).Render("⚠")
	case 3:
		return errorStyle.Render("✗")
	default:
		return ""
	}
}

// browserStartPath picks where the directory browser opens
func (m model) browserStartPath() string {
	if current := strings.TrimSpace(m.setup.root.Value()); current != "" {
		if info, err := os.Stat(current); err == nil && info.IsDir() {
			return current
		}
		if dir := filepath.Dir(current); dir != "." {
			if _, err := os.Stat(dir); err == nil {
				return dir
			}
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return string(filepath.Separator)
	}
	return home
}

func (m model) viewSetup() string {
	var b strings.Builder
	width := m.getWidth()
	contentWidth := width - 6

	fmt.Fprintf(&b, "%s\n\n", renderHeader())

	var form strings.Builder
	fmt.Fprintf(&form, "%s\n\n", headingStyle.Render("Library Configuration"))
	fmt.Fprintf(&form, "%s %s\n", m.setup.root.View(), getPathValidationIndicator(m.setup.rootPathValid))
	fmt.Fprintf(&form, "%s\n", subtitleStyle.Render("The folder the server scans for projects. In Docker this is usually /projects."))

	if s := m.setup.server; s != nil {
		if s.LastScanAt != nil && !s.LastScanAt.IsZero() {
			fmt.Fprintf(&form, "\n%s %s\n", labelStyle.Render("Last scanned:"),
				valueStyle.Render(humanize.Time(s.LastScanAt.Time)))
		}
		if s.ImagesPerPage > 0 {
			fmt.Fprintf(&form, "%s %s\n", labelStyle.Render("Images per page:"), valueStyle.Render(fmt.Sprint(s.ImagesPerPage)))
		}
	}
	if m.setup.saving {
		fmt.Fprintf(&form, "\n%s Saving…\n", m.spin.View())
	}
	fmt.Fprintf(&b, "%s\n", panelStyle.Width(contentWidth).Render(form.String()))

	if m.setup.err != "" {
		fmt.Fprintf(&b, "%s\n", renderBanner(m.setup.err, false))
	}

	switch {
	case m.setup.showingCompletions && len(m.setup.completions) > 0:
		var list strings.Builder
		fmt.Fprintf(&list, "%s\n\n", accentStyle.Render("Path Suggestions"))
		maxShow := 5
		for i, completion := range m.setup.completions {
			if i >= maxShow {
				fmt.Fprintf(&list, "  %s\n", subtitleStyle.Render(fmt.Sprintf("... and %d more", len(m.setup.completions)-maxShow)))
				break
			}
			prefix := "  "
			style := lipgloss.NewStyle().Foreground(secondary)
			if i == m.setup.completionIndex {
				prefix = lipgloss.NewStyle().Foreground(warning).Render("▸ ")
				style = style.Bold(true)
			}
			fmt.Fprintf(&list, "%s%s\n", prefix, style.Render(filepath.Base(completion)))
		}
		fmt.Fprintf(&b, "%s\n", panelStyle.Width(contentWidth).Render(list.String()))
	case len(m.setup.recentPaths) > 0:
		var list strings.Builder
		fmt.Fprintf(&list, "%s\n\n", accentStyle.Render("Recent roots (press 1-9 to select)"))
		for i, recent := range m.setup.recentPaths {
			if i >= config.MaxRecent {
				break
			}
			num := renderKeyHelp([]string{fmt.Sprintf("%d", i+1)})
			fmt.Fprintf(&list, "%s%s %s\n", num,
				truncate(recent, contentWidth-12),
				getPathValidationIndicator(validatePath(recent)))
		}
		fmt.Fprintf(&b, "%s\n", panelStyle.Width(contentWidth).Render(list.String()))
	}

	fmt.Fprintf(&b, "%s\n", subtitleStyle.Render(
		"enter save & scan • tab complete • ctrl+b browse folders • 1-9 recent • esc back"))
	return b.String()
}

// The local directory browser used to pick a root path
type localBrowserModel struct {
	currentPath string
	entries     []localDir
	selected    int
	err         string
}

type localDir struct {
	name   string
	parent bool
}

type localDirsMsg struct {
	path    string
	entries []localDir
	err     error
}

func (m model) loadLocalDirs() tea.Cmd {
	path := m.local.currentPath
	return func() tea.Msg {
		entries, err := readLocalDirs(path)
		return localDirsMsg{path: path, entries: entries, err: err}
	}
}

// readLocalDirs lists the visible subdirectories of path, sorted, after a
// ".." entry unless path is a filesystem root.
func readLocalDirs(path string) ([]localDir, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var dirs []localDir
	if filepath.Dir(path) != path {
		dirs = append(dirs, localDir{name: "..", parent: true})
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	for _, n := range names {
		dirs = append(dirs, localDir{name: n})
	}
	return dirs, nil
}

func (m model) updateLocalBrowser(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case localDirsMsg:
		if msg.path != m.local.currentPath {
			return m, nil
		}
		if msg.err != nil {
			m.local.err = msg.err.Error()
			return m, nil
		}
		m.local.entries = msg.entries
		m.local.selected = 0
		m.local.err = ""
		return m, nil
	case tea.KeyMsg:
		switch {
		case msg.String() == "esc" || msg.String() == "q":
			m.state = stateSetup
			return m, nil
		case key.Matches(msg, m.keys.Help):
			m.showHelp()
			return m, nil
		case key.Matches(msg, m.keys.Up):
			if m.local.selected > 0 {
				m.local.selected--
			}
		case key.Matches(msg, m.keys.Down):
			if m.local.selected < len(m.local.entries)-1 {
				m.local.selected++
			}
		case msg.String() == "enter":
			if len(m.local.entries) == 0 {
				return m, nil
			}
			entry := m.local.entries[m.local.selected]
			if entry.parent {
				m.local.currentPath = filepath.Dir(m.local.currentPath)
			} else {
				m.local.currentPath = filepath.Join(m.local.currentPath, entry.name)
			}
			return m, m.loadLocalDirs()
		case msg.String() == " ":
			// Select current directory and return to the form
			m.setup.root.SetValue(m.local.currentPath)
			m.setup.root.CursorEnd()
			m.setup.rootPathValid = validatePath(m.local.currentPath)
			m.state = stateSetup
			return m, nil
		}
	}
	return m, nil
}

func (m model) viewLocalBrowser() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n\n", renderTitle("Choose library root"))
	fmt.Fprintf(&b, "%s %s\n\n", labelStyle.Render("Current:"),
		lipgloss.NewStyle().Foreground(secondary).Render(truncate(m.local.currentPath, m.getWidth()-10)))

	if m.local.err != "" {
		fmt.Fprintf(&b, "%s\n", renderBanner(m.local.err, false))
		fmt.Fprintf(&b, "%s\n", subtitleStyle.Render("Press ESC to go back"))
		return b.String()
	}

	if len(m.local.entries) == 0 {
		fmt.Fprintf(&b, "%s\n", subtitleStyle.Render("No directories found"))
	} else {
		maxDisplay := m.getHeight() - 10
		if maxDisplay < 5 {
			maxDisplay = 5
		}
		start := 0
		if m.local.selected >= maxDisplay {
			start = m.local.selected - maxDisplay + 1
		}
		end := start + maxDisplay
		if end > len(m.local.entries) {
			end = len(m.local.entries)
		}
		for i := start; i < end; i++ {
			prefix := "  "
			if i == m.local.selected {
				prefix = lipgloss.NewStyle().Foreground(secondary).Render("▸ ")
			}
			entry := m.local.entries[i]
			if entry.parent {
				fmt.Fprintf(&b, "%s%s\n", prefix, subtitleStyle.Render("../"))
			} else {
				fmt.Fprintf(&b, "%s%s\n", prefix, accentStyle.Render(entry.name+"/"))
			}
		}
		if len(m.local.entries) > maxDisplay {
			fmt.Fprintf(&b, "\n%s\n", subtitleStyle.Render(fmt.Sprintf("(%d-%d of %d)", start+1, end, len(m.local.entries))))
		}
	}

	fmt.Fprintf(&b, "\n%s\n", subtitleStyle.Render("↑/↓ navigate • enter open • space select • esc cancel"))
	return b.String()
}
