package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"printshelf/internal/api"
)

func (m model) viewHelp() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n\n", headingStyle.Render("❓ PrintShelf - Help & Keyboard Shortcuts"))

	// Key map rendered by the help bubble, column per group
	fmt.Fprintf(&b, "%s\n", valueStyle.Render("🔸 Keys"))
	fmt.Fprintf(&b, "%s\n\n", m.help.view.View(m.keys))

	fmt.Fprintf(&b, "%s\n", valueStyle.Render("🔸 Library Root"))
	fmt.Fprintf(&b, "  %s %s\n", accentStyle.Render("Tab"), labelStyle.Render("Complete the typed path"))
	fmt.Fprintf(&b, "  %s %s\n", accentStyle.Render("1-9"), labelStyle.Render("Pick a recent root"))
	fmt.Fprintf(&b, "  %s %s\n", accentStyle.Render("Ctrl+B"), labelStyle.Render("Open directory browser"))
	fmt.Fprintf(&b, "  %s %s\n\n", accentStyle.Render("Enter"), labelStyle.Render("Save the root and scan it"))

	fmt.Fprintf(&b, "%s\n", valueStyle.Render("🔸 Tiles"))
	fmt.Fprintf(&b, "  • %s\n", labelStyle.Render("Tiles rotate their images when auto-advance is on (a)"))
	fmt.Fprintf(&b, "  • %s\n", labelStyle.Render("The selected tile and the tile under the mouse hold still"))
	fmt.Fprintf(&b, "  • %s\n", labelStyle.Render("Moving through images with [ ] pauses rotation for 10 seconds"))
	fmt.Fprintf(&b, "  • %s\n\n", labelStyle.Render("STL marks a rendered model preview, Inherited an image from a parent folder"))

	fmt.Fprintf(&b, "%s\n", valueStyle.Render("🔸 Files"))
	fmt.Fprintf(&b, "  %s %s\n", accentStyle.Render("Server:"), labelStyle.Render(m.env.client.BaseURL()))
	fmt.Fprintf(&b, "  %s %s\n", accentStyle.Render("Settings:"), labelStyle.Render(m.env.cfg.FilePath()))
	fmt.Fprintf(&b, "  %s %s\n", accentStyle.Render("Downloads:"), labelStyle.Render(m.env.cfg.DownloadDirOr()))
	fmt.Fprintf(&b, "  %s %s\n\n", accentStyle.Render("Ledger:"), labelStyle.Render(m.env.cfg.LedgerFile()))

	fmt.Fprintf(&b, "%s\n", labelStyle.Render("Press any key to return"))
	return b.String()
}

func (m model) viewStartup() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", renderHeader())

	if err := m.startup.err; err != nil {
		fmt.Fprintf(&b, "%s\n", renderBanner(
			fmt.Sprintf("Could not reach %s: %s", m.env.client.BaseURL(), api.UserMessage(err)), true))
		fmt.Fprintf(&b, "%s\n", subtitleStyle.Render("r retry • ctrl+o set library root • q quit"))
		return b.String()
	}

	fmt.Fprintf(&b, "%s %s\n", m.spin.View(),
		lipgloss.NewStyle().Foreground(secondary).Render("Connecting to "+m.env.client.BaseURL()+"…"))
	return b.String()
}
