package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"printshelf/internal/api"
	"printshelf/internal/request"
)

const (
	scanPollInterval = time.Second
	maxScanErrors    = 5
)

type scanModel struct {
	force bool
	clean bool

	status   *api.ScanStatus
	running  bool
	finished bool
	err      error
	started  time.Time

	// baseline is the file count of the previous scan, used to estimate
	// progress of the running one. Zero means unknown.
	baseline int

	bar progress.Model
	gen int
}

type scanStatusMsg struct {
	gen     int
	started bool
	res     request.Result[*api.ScanStatus]
}

type scanPollMsg struct{ gen int }

// scanWatchMsg and scanWatchStatusMsg drive the background watch that
// follows a scan after its page was left.
type scanWatchMsg struct{ gen int }

type scanWatchStatusMsg struct {
	gen int
	res request.Result[*api.ScanStatus]
}

// enterScan opens the scan page. start kicks off a scan immediately, as
// after the library root was saved.
func (m *model) enterScan(start bool) tea.Cmd {
	m.leave()
	m.state = stateScan
	gen := m.scan.gen + 1
	m.scan = scanModel{
		gen: gen,
		bar: progress.New(progress.WithDefaultGradient()),
	}
	if start {
		return m.startScan()
	}
	return m.pollScan()
}

func (m *model) startScan() tea.Cmd {
	req := api.ScanRequest{Force: m.scan.force, Clean: m.scan.clean}
	m.scan.err = nil
	m.scan.finished = false
	m.scan.running = true
	m.scan.started = m.env.clock.Now()
	if m.scan.status != nil && m.scan.status.FilesProcessed != nil {
		m.scan.baseline = *m.scan.status.FilesProcessed
	}

	t := m.scope.reqs.Begin(m.scope.ctx, request.ChannelScan)
	client, gen := m.env.client, m.scan.gen
	m.env.logger.Info("starting scan", "force", req.Force, "clean", req.Clean)
	return tea.Batch(m.spin.Tick, func() tea.Msg {
		res := request.Do(t, func(ctx context.Context) (*api.ScanStatus, error) {
			return client.StartScan(ctx, req)
		})
		return scanStatusMsg{gen: gen, started: true, res: res}
	})
}

func (m model) pollScan() tea.Cmd {
	t := m.scope.reqs.Begin(m.scope.ctx, request.ChannelScan)
	client, gen := m.env.client, m.scan.gen
	return func() tea.Msg {
		res := request.Do(t, func(ctx context.Context) (*api.ScanStatus, error) {
			return client.ScanStatus(ctx)
		})
		return scanStatusMsg{gen: gen, res: res}
	}
}

func (m model) updateScan(msg tea.Msg) (tea.Model, tea.Cmd) {
	s := &m.scan
	switch msg := msg.(type) {
	case scanStatusMsg:
		if msg.gen != s.gen || msg.res.Cancelled() || msg.res.Stale() {
			return m, nil
		}
		if msg.res.Failed() {
			s.err = msg.res.Err
			if msg.started {
				s.running = false
				return m, nil
			}
			// A failed poll keeps polling while a scan is believed running.
			if s.running {
				return m, m.schedulePoll()
			}
			return m, nil
		}
		s.err = nil
		return m, m.applyScanStatus(msg.res.Value)

	case scanPollMsg:
		if msg.gen != s.gen {
			return m, nil
		}
		return m, m.pollScan()

	case progress.FrameMsg:
		bar, cmd := s.bar.Update(msg)
		s.bar = bar.(progress.Model)
		return m, cmd

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.scope.close()
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.showHelp()
		case key.Matches(msg, m.keys.Back):
			// The scan keeps running on the server.
			return m, tea.Batch(m.enterBrowse(m.browse.path), m.watchScan())
		case key.Matches(msg, m.keys.Setup):
			return m, tea.Batch(m.enterSetup(nil), m.watchScan())
		case key.Matches(msg, m.keys.Retry):
			if s.err != nil {
				if s.running {
					return m, m.pollScan()
				}
				return m, m.startScan()
			}
		case msg.String() == "f":
			if !s.running {
				s.force = !s.force
			}
		case msg.String() == "c":
			if !s.running {
				s.clean = !s.clean
			}
		case msg.String() == "enter", msg.String() == "s":
			if !s.running {
				return m, m.startScan()
			}
		}
	}
	return m, nil
}

func (m model) schedulePoll() tea.Cmd {
	gen := m.scan.gen
	return tea.Tick(scanPollInterval, func(time.Time) tea.Msg { return scanPollMsg{gen: gen} })
}

// applyScanStatus records a status snapshot and keeps polling while the
// server reports a scan in progress.
func (m *model) applyScanStatus(st *api.ScanStatus) tea.Cmd {
	s := &m.scan
	wasRunning := s.running || m.scanPending
	s.status = st

	if st.IsScanning {
		m.scanPending = true
		if !s.running {
			s.running = true
			s.started = m.env.clock.Now()
		}
		return tea.Batch(m.schedulePoll(), s.bar.SetPercent(m.scanPercent()))
	}

	s.running = false
	if !wasRunning {
		// Last completed scan, shown when the page opens.
		if st.FilesProcessed != nil {
			s.baseline = *st.FilesProcessed
		}
		return nil
	}

	s.finished = true
	m.scanCompleted(st)
	return s.bar.SetPercent(1)
}

func (m *model) scanCompleted(st *api.ScanStatus) {
	m.scanPending = false
	m.scanWatchGen++
	m.env.logger.Info("scan finished",
		"projects", countOf(st.ProjectsFound), "files", countOf(st.FilesProcessed), "errors", len(st.Errors))
	// Cached tile metadata and previews describe the old library state.
	m.env.tiles.Invalidate()
	m.env.previews.Purge()
}

// watchScan starts following a pending scan from the background scope,
// replacing any earlier watch. It is a no-op when no scan is pending.
func (m *model) watchScan() tea.Cmd {
	if !m.scanPending {
		return nil
	}
	m.scanWatchGen++
	return m.scheduleScanWatch()
}

func (m model) scheduleScanWatch() tea.Cmd {
	gen := m.scanWatchGen
	return tea.Tick(scanPollInterval, func(time.Time) tea.Msg { return scanWatchMsg{gen: gen} })
}

// checkScan polls the status for the background watch. The scan page
// polls on its own, so the watch idles while it is shown.
func (m model) checkScan(gen int) tea.Cmd {
	if gen != m.scanWatchGen || !m.scanPending || m.state == stateScan {
		return nil
	}
	t := m.background.reqs.Begin(m.background.ctx, request.ChannelScan)
	client := m.env.client
	return func() tea.Msg {
		res := request.Do(t, func(ctx context.Context) (*api.ScanStatus, error) {
			return client.ScanStatus(ctx)
		})
		return scanWatchStatusMsg{gen: gen, res: res}
	}
}

func (m *model) applyScanWatch(msg scanWatchStatusMsg) tea.Cmd {
	if msg.gen != m.scanWatchGen || !m.scanPending || msg.res.Cancelled() || msg.res.Stale() {
		return nil
	}
	if msg.res.Failed() {
		m.env.logger.Warn("scan status check failed", "err", msg.res.Err)
		return m.scheduleScanWatch()
	}
	if msg.res.Value.IsScanning {
		return m.scheduleScanWatch()
	}
	m.scanCompleted(msg.res.Value)
	return nil
}

// scanPercent estimates progress from the previous scan's file count and
// never reports completion while the scan is still running.
func (m model) scanPercent() float64 {
	s := m.scan
	if s.status == nil || s.status.FilesProcessed == nil || s.baseline <= 0 {
		return 0
	}
	p := float64(*s.status.FilesProcessed) / float64(s.baseline)
	if p > 0.99 {
		p = 0.99
	}
	return p
}

func (m model) viewScan() string {
	s := m.scan
	var b strings.Builder
	width := m.getWidth()
	contentWidth := width - 6

	headerBox := lipgloss.NewStyle().
		Width(contentWidth).
		Align(lipgloss.Center).
		Border(lipgloss.DoubleBorder()).
		BorderForeground(accent).
		Padding(0, 2).
		MarginBottom(1)

	var headline string
	switch {
	case s.running:
		headline = fmt.Sprintf("%s %s", m.spin.View(), successStyle.Render("Scanning library"))
	case s.finished && s.status != nil && len(s.status.Errors) > 0:
		headline = lipgloss.NewStyle().Bold(true).Foreground(warning).Render("Scan completed with errors")
	case s.finished:
		headline = successStyle.Render("✓ Scan complete")
	default:
		headline = headingStyle.Render("Library scan")
	}
	fmt.Fprintf(&b, "%s\n", headerBox.Render(headline))

	if s.err != nil {
		fmt.Fprintf(&b, "%s\n", renderBanner(api.UserMessage(s.err), retryable(s.err)))
	}

	if s.status != nil {
		fmt.Fprintf(&b, "%s\n", renderStatsGrid(*s.status))
	}

	if s.running || s.finished {
		s.bar.Width = contentWidth - 14
		if s.bar.Width > 60 {
			s.bar.Width = 60
		}
		var progressText string
		switch {
		case s.finished:
			progressText = "done"
		case s.baseline > 0:
			progressText = fmt.Sprintf("~%.0f%% of the previous %d files", m.scanPercent()*100, s.baseline)
		default:
			progressText = "Scanning..."
		}
		fmt.Fprintf(&b, "\n%s %s\n", labelStyle.Render("Progress:"), s.bar.View())
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("         "), valueStyle.Render(progressText))
		if !s.started.IsZero() && s.running {
			elapsed := m.env.clock.Now().Sub(s.started).Round(time.Second)
			fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Elapsed:"), valueStyle.Render(elapsed.String()))
		}
	}

	if s.status != nil && len(s.status.Errors) > 0 {
		var lines []string
		for _, line := range scanErrorLines(s.status.Errors) {
			lines = append(lines, truncate(line, contentWidth-6))
		}
		fmt.Fprintf(&b, "\n%s\n", renderBorder(strings.Join(lines, "\n"),
			fmt.Sprintf("Errors (%d)", len(s.status.Errors)), danger))
	}

	if !s.running {
		fmt.Fprintf(&b, "\n%s%s\n", toggleButton("f Force", s.force), toggleButton("c Clean", s.clean))
		fmt.Fprintf(&b, "%s\n", subtitleStyle.Render(
			"Force rescans unchanged files; clean removes projects whose folders are gone."))
	}

	help := "enter start scan • f force • c clean • ⌫ back • q quit"
	if s.running {
		help = "⌫ back (scan keeps running) • q quit"
	}
	fmt.Fprintf(&b, "\n%s\n", subtitleStyle.Render(help))
	return b.String()
}

// scanErrorLines caps the error list, summarising the rest.
func scanErrorLines(errs []string) []string {
	if len(errs) <= maxScanErrors {
		return errs
	}
	lines := append([]string(nil), errs[:maxScanErrors]...)
	return append(lines, fmt.Sprintf("... and %d more errors", len(errs)-maxScanErrors))
}

func toggleButton(label string, on bool) string {
	if on {
		return buttonActiveStyle.Render(label + ": on")
	}
	return buttonStyle.Render(label + ": off")
}
