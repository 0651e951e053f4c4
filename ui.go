package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	xansi "github.com/charmbracelet/x/ansi"

	"printshelf/internal/api"
	"printshelf/internal/carousel"
)

// Color palette - Modern, professional, with great contrast
var (
	// Primary colors
	primary   = lipgloss.Color("#7c3aed") // Purple
	secondary = lipgloss.Color("#06b6d4") // Cyan
	accent    = lipgloss.Color("#10b981") // Emerald

	// Semantic colors
	success = lipgloss.Color("#22c55e") // Green
	warning = lipgloss.Color("#f59e0b") // Amber
	danger  = lipgloss.Color("#ef4444") // Red
	info    = lipgloss.Color("#3b82f6") // Blue

	// Neutral colors
	background = lipgloss.Color("#0f172a") // Slate-900
	surface    = lipgloss.Color("#1e293b") // Slate-800
	border     = lipgloss.Color("#334155") // Slate-700
	muted      = lipgloss.Color("#64748b") // Slate-500
	text       = lipgloss.Color("#f1f5f9") // Slate-100
	textMuted  = lipgloss.Color("#94a3b8") // Slate-400
)

// Typography styles
var (
	titleStyle = lipgloss.NewStyle().
			Foreground(text).
			Bold(true).
			MarginBottom(1)

	headingStyle = lipgloss.NewStyle().
			Foreground(primary).
			Bold(true)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(textMuted)

	labelStyle = lipgloss.NewStyle().
			Foreground(textMuted).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(text).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(danger).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(success).
			Bold(true)

	accentStyle = lipgloss.NewStyle().
			Foreground(accent).
			Bold(true)
)

// Layout components
var (
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(border).
			Padding(1, 2).
			MarginBottom(1)

	inputStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(border).
			Padding(0, 1)

	inputFocusStyle = inputStyle.
			BorderForeground(primary)

	buttonStyle = lipgloss.NewStyle().
			Background(surface).
			Foreground(text).
			Padding(0, 2).
			MarginRight(1)

	buttonActiveStyle = lipgloss.NewStyle().
				Background(primary).
				Foreground(text).
				Padding(0, 2).
				Bold(true).
				MarginRight(1)

	statsCardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(border).
			Padding(0, 2).
			MarginRight(1).
			Width(20)

	tileStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(border).
			Padding(0, 1).
			Width(tileArtCols + 2)

	tileSelectedStyle = tileStyle.
				BorderForeground(primary)

	bannerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(danger).
			Foreground(lipgloss.Color("#fca5a5")).
			Padding(0, 2).
			MarginBottom(1)

	badgeSTLStyle = lipgloss.NewStyle().
			Background(info).
			Foreground(text).
			Padding(0, 1)

	badgeInheritedStyle = lipgloss.NewStyle().
				Background(warning).
				Foreground(background).
				Padding(0, 1)
)

const (
	tileArtCols = 24
	tileArtRows = 6
	// Tile footprint including border, padding and the three text lines.
	tileOuterWidth  = tileArtCols + 4
	tileOuterHeight = tileArtRows + 5
)

// UI helper functions
func renderTitle(title string) string {
	gradient := lipgloss.NewStyle().
		Foreground(primary).
		Bold(true)

	return gradient.Render(title)
}

func renderHeader() string {
	logo := `
 ___ ___ ___ _  _ _____ ___ _  _ ___ _    ___ 
| _ \ _ \_ _| \| |_   _/ __| || | __| |  | __|
|  _/   /| || .' | | | \__ \ __ | _|| |__| _| 
|_| |_|_\___|_|\_| |_| |___/_||_|___|____|_|  `

	logoStyle := lipgloss.NewStyle().
		Foreground(primary).
		Bold(true)

	subtitle := subtitleStyle.Render("Your 3D print library, in the terminal")

	return lipgloss.JoinVertical(lipgloss.Center,
		logoStyle.Render(logo),
		"",
		subtitle,
	)
}

func renderProgressCard(title, value, subtitle string, color lipgloss.Color) string {
	titleStyle := headingStyle.Foreground(color)
	valueStyle := lipgloss.NewStyle().
		Foreground(color).
		Bold(true).
		Render(value)

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(title),
		valueStyle,
		subtitleStyle.Render(subtitle),
	)

	return statsCardStyle.
		BorderForeground(color).
		Render(content)
}

// renderStatsGrid lays out the scan counters as two rows of cards
func renderStatsGrid(s api.ScanStatus) string {
	found := renderProgressCard("Projects", countOf(s.ProjectsFound), "found", accent)
	projects := renderProgressCard("Projects",
		fmt.Sprintf("+%s ~%s -%s", countOf(s.ProjectsAdded), countOf(s.ProjectsUpdated), countOf(s.ProjectsRemoved)),
		"added/updated/removed", secondary)
	files := renderProgressCard("Files", countOf(s.FilesProcessed), "processed", info)
	changes := renderProgressCard("Files",
		fmt.Sprintf("+%s ~%s -%s", countOf(s.FilesAdded), countOf(s.FilesUpdated), countOf(s.FilesRemoved)),
		"added/updated/removed", warning)

	topRow := lipgloss.JoinHorizontal(lipgloss.Top, found, projects)
	bottomRow := lipgloss.JoinHorizontal(lipgloss.Top, files, changes)

	return lipgloss.JoinVertical(lipgloss.Left, topRow, bottomRow)
}

func countOf(n *int) string {
	if n == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *n)
}

func renderKeyHelp(keys []string) string {
	var parts []string
	colors := []lipgloss.Color{primary, accent, secondary, info}

	for i, key := range keys {
		keyStyle := lipgloss.NewStyle().
			Background(colors[i%len(colors)]).
			Foreground(background).
			Padding(0, 1).
			Bold(true).
			MarginRight(1)

		parts = append(parts, keyStyle.Render(key))
	}

	return lipgloss.JoinHorizontal(lipgloss.Left, parts...)
}

func renderBorder(content string, title string, color lipgloss.Color) string {
	titleBar := lipgloss.NewStyle().
		Background(color).
		Foreground(background).
		Bold(true).
		Padding(0, 1).
		Render(fmt.Sprintf(" %s ", title))

	bordered := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color).
		Padding(0, 1)

	return lipgloss.JoinVertical(lipgloss.Left,
		titleBar,
		bordered.Render(content),
	)
}

// renderTable draws a simple column-aligned table; selected < 0 highlights
// nothing
func renderTable(headers []string, rows [][]string, selected int) string {
	if len(rows) == 0 {
		return subtitleStyle.Render("No data to display")
	}

	// Calculate column widths
	colWidths := make([]int, len(headers))
	for i, header := range headers {
		colWidths[i] = lipgloss.Width(header)
	}

	for _, row := range rows {
		for i, cell := range row {
			if i < len(colWidths) {
				width := lipgloss.Width(cell)
				if width > colWidths[i] {
					colWidths[i] = width
				}
			}
		}
	}

	// Render header
	var headerCells []string
	for i, header := range headers {
		style := headingStyle.Width(colWidths[i] + 2).Align(lipgloss.Left)
		headerCells = append(headerCells, style.Render(header))
	}
	headerRow := lipgloss.JoinHorizontal(lipgloss.Left, headerCells...)

	// Render separator
	var sepCells []string
	for _, width := range colWidths {
		sepCells = append(sepCells, strings.Repeat("─", width))
	}
	separator := lipgloss.NewStyle().Foreground(border).Render(strings.Join(sepCells, "──"))

	// Render rows
	var renderedRows []string
	for r, row := range rows {
		var cells []string
		for i, cell := range row {
			if i < len(colWidths) {
				style := lipgloss.NewStyle().
					Foreground(text).
					Width(colWidths[i] + 2).
					Align(lipgloss.Left)
				if r == selected {
					style = style.Foreground(primary).Bold(true)
				}
				cells = append(cells, style.Render(cell))
			}
		}
		renderedRows = append(renderedRows, lipgloss.JoinHorizontal(lipgloss.Left, cells...))
	}

	// Combine all parts
	var parts []string
	parts = append(parts, headerRow)
	parts = append(parts, separator)
	parts = append(parts, renderedRows...)

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// renderBanner is the page-level error box with its retry hint
func renderBanner(msg string, retryable bool) string {
	content := "⚠ " + msg
	if retryable {
		content += "\n" + subtitleStyle.Render("press r to retry")
	}
	return bannerStyle.Render(content)
}

// renderPagination renders "‹ Page 2 of 2 ›", dimming arrows at the ends
func renderPagination(page, totalPages int) string {
	if totalPages < 1 {
		totalPages = 1
	}
	left := subtitleStyle.Render("‹")
	if page > 1 {
		left = accentStyle.Render("‹")
	}
	right := subtitleStyle.Render("›")
	if page < totalPages {
		right = accentStyle.Render("›")
	}
	return fmt.Sprintf("%s %s %s", left, valueStyle.Render(fmt.Sprintf("Page %d of %d", page, totalPages)), right)
}

// renderBadges shows STL and Inherited markers for the current slide
func renderBadges(img api.ImagePreview) string {
	var parts []string
	if img.IsSTLPreview() {
		parts = append(parts, badgeSTLStyle.Render("STL"))
	}
	if img.IsInherited() {
		parts = append(parts, badgeInheritedStyle.Render("Inherited"))
	}
	return strings.Join(parts, " ")
}

// renderCarousel draws the slide area of a tile or gallery followed by one
// status line. A failed load shows a fallback and an empty list shows the
// placeholder with no controls.
func renderCarousel(car *carousel.Engine, art string, cols, rows int, placeholder string) string {
	box := lipgloss.NewStyle().Width(cols).Height(rows).Align(lipgloss.Center, lipgloss.Center)
	if car == nil || car.Empty() {
		return lipgloss.JoinVertical(lipgloss.Left, box.Foreground(muted).Render(placeholder), "")
	}
	slide, _ := car.Slide()
	var body string
	switch {
	case car.Failed():
		body = box.Foreground(danger).Render("✗ image unavailable")
	case car.Loaded() && art != "":
		body = box.Render(art)
	default:
		body = box.Foreground(muted).Render("loading " + slide.Image.Filename)
	}

	status := renderBadges(slide.Image)
	if car.ShowControls() {
		counter := subtitleStyle.Render("‹ " + car.Counter() + " ›")
		if status != "" {
			status += " "
		}
		status += counter
	}
	return lipgloss.JoinVertical(lipgloss.Left, body, truncate(status, cols))
}

// truncate shortens s to width cells, ANSI-aware
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if xansi.StringWidth(s) <= width {
		return s
	}
	return xansi.Truncate(s, width, "…")
}

// renderTagChip draws a tag in its own color with readable text on top
func renderTagChip(t api.Tag, selected bool) string {
	style := lipgloss.NewStyle().Padding(0, 1)
	if t.Color != nil && strings.HasPrefix(*t.Color, "#") && len(*t.Color) == 7 {
		style = style.Background(lipgloss.Color(*t.Color)).Foreground(contrastColor(*t.Color))
	} else {
		style = style.Background(border).Foreground(text)
	}
	if selected {
		style = style.Bold(true).Underline(true)
	}
	return style.Render(t.Name)
}

// contrastColor picks black or white text for a #rrggbb background by
// perceived luminance.
func contrastColor(hex string) lipgloss.Color {
	var r, g, b int
	if _, err := fmt.Sscanf(hex, "#%02x%02x%02x", &r, &g, &b); err != nil {
		return text
	}
	if (299*r+587*g+114*b)/1000 >= 128 {
		return lipgloss.Color("#000000")
	}
	return lipgloss.Color("#ffffff")
}

// windowRange returns the [start, end) slice of total rows to show so that
// selected stays visible within size rows.
func windowRange(selected, total, size int) (int, int) {
	if size <= 0 || total <= size {
		return 0, total
	}
	start := selected - size/2
	if start < 0 {
		start = 0
	}
	if start+size > total {
		start = total - size
	}
	return start, start + size
}
