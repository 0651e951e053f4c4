package main

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	mdRendererMu sync.Mutex
	// Renderers are cached by style and wrap width; building one is slow.
	mdRenderers = map[string]*glamour.TermRenderer{}
)

// renderMarkdown renders a project description for the project page.
// Rendering failures fall back to the raw text.
func renderMarkdown(md string, width int) string {
	md = strings.TrimSpace(md)
	if md == "" {
		return ""
	}
	if width < 10 {
		width = 10
	}

	style := markdownStyle()
	key := style + ":" + strconv.Itoa(width)

	mdRendererMu.Lock()
	r := mdRenderers[key]
	if r == nil {
		rr, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(style),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			mdRendererMu.Unlock()
			return md
		}
		mdRenderers[key] = rr
		r = rr
	}
	mdRendererMu.Unlock()

	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.Trim(out, "\n")
}

// markdownStyle picks "dark" or "light" without querying the terminal,
// which can block on some emulators.
func markdownStyle() string {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("PRINTSHELF_THEME"))) {
	case "light":
		return "light"
	case "dark":
		return "dark"
	}
	// COLORFGBG is "fg;bg", e.g. "15;0" for a dark background.
	if v := strings.TrimSpace(os.Getenv("COLORFGBG")); v != "" {
		parts := strings.Split(v, ";")
		if bg, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
			if bg == 7 || bg == 15 {
				return "light"
			}
			return "dark"
		}
	}
	return "dark"
}

// applyColorProfile sets Lip Gloss's color profile for the TUI, honouring
// NO_COLOR.
func applyColorProfile() {
	if termenv.EnvNoColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	profile := termenv.ColorProfile()
	if ct := strings.ToLower(os.Getenv("COLORTERM")); strings.Contains(ct, "truecolor") || strings.Contains(ct, "24bit") {
		profile = termenv.TrueColor
	}
	lipgloss.SetColorProfile(profile)
	lipgloss.SetHasDarkBackground(markdownStyle() == "dark")
}
