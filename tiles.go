package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"printshelf/internal/api"
	"printshelf/internal/cache"
	"printshelf/internal/carousel"
)

// tile is one cell of a browse or search grid: a folder, or a project with
// its own image carousel.
type tile struct {
	key     int64
	name    string
	folder  *api.FolderInfo
	project *api.Project
	car     *carousel.Engine
	art     string

	// asked is set once a load for askedSeq has been started.
	asked    bool
	askedSeq uint64
}

func (t *tile) isFolder() bool { return t.folder != nil }

func folderTile(s *scope, e *env, i int, f api.FolderInfo) *tile {
	return &tile{
		key:    -int64(i + 1),
		name:   f.Name,
		folder: &f,
		car:    s.carousel(e, nil, f.Name, false),
	}
}

func projectTile(s *scope, e *env, p api.Project, images []api.ImagePreview) *tile {
	return &tile{
		key:     p.ID,
		name:    p.Name,
		project: &p,
		car:     s.carousel(e, images, p.Name, e.cfg.AutoAdvanceOr(false)),
	}
}

// tileGrid lays tiles out in rows as wide as the terminal allows
type tileGrid struct {
	tiles    []*tile
	selected int
	mouse    int // tile under the pointer, -1 for none
}

func newTileGrid(tiles []*tile) tileGrid {
	g := tileGrid{tiles: tiles, mouse: -1}
	g.syncHover()
	return g
}

func gridCols(width int) int {
	if n := width / tileOuterWidth; n > 1 {
		return n
	}
	return 1
}

func (g tileGrid) current() *tile {
	if g.selected < 0 || g.selected >= len(g.tiles) {
		return nil
	}
	return g.tiles[g.selected]
}

// move shifts the selection by dx columns and dy rows, clamped to the grid
func (g *tileGrid) move(dx, dy, cols int) {
	if len(g.tiles) == 0 {
		return
	}
	next := g.selected + dx + dy*cols
	if next < 0 {
		next = 0
	}
	if next >= len(g.tiles) {
		next = len(g.tiles) - 1
	}
	g.selected = next
	g.syncHover()
}

func (g *tileGrid) setMouse(i int) {
	if i == g.mouse {
		return
	}
	g.mouse = i
	g.syncHover()
}

// syncHover treats the selected tile and the tile under the pointer as
// hovered; every other carousel may rotate.
func (g tileGrid) syncHover() {
	for i, t := range g.tiles {
		t.car.SetHovered(i == g.selected || i == g.mouse)
	}
}

// firstRow is the first grid row shown when rows rows fit on screen
func (g tileGrid) firstRow(cols, rows int) int {
	if rows < 1 {
		rows = 1
	}
	selRow := g.selected / cols
	if selRow >= rows {
		return selRow - rows + 1
	}
	return 0
}

func (g tileGrid) visibleRange(width, rows int) (int, int) {
	cols := gridCols(width)
	start := g.firstRow(cols, rows) * cols
	end := start + rows*cols
	if end > len(g.tiles) {
		end = len(g.tiles)
	}
	return start, end
}

func (g tileGrid) visible(width, rows int) []*tile {
	start, end := g.visibleRange(width, rows)
	return g.tiles[start:end]
}

// tileAt maps a screen cell to a tile index, or -1. top is the screen row
// where the grid starts.
func (g tileGrid) tileAt(x, y, top, width, rows int) int {
	if y < top || x < 0 {
		return -1
	}
	cols := gridCols(width)
	col := x / tileOuterWidth
	row := (y - top) / tileOuterHeight
	if col >= cols || row >= rows {
		return -1
	}
	i := (g.firstRow(cols, rows)+row)*cols + col
	if i >= len(g.tiles) {
		return -1
	}
	return i
}

func (g tileGrid) view(width, rows int, tiles *cache.Cache) string {
	if len(g.tiles) == 0 {
		return subtitleStyle.Render("Nothing here yet.")
	}
	cols := gridCols(width)
	start, end := g.visibleRange(width, rows)

	var lines []string
	for rowStart := start; rowStart < end; rowStart += cols {
		rowEnd := rowStart + cols
		if rowEnd > end {
			rowEnd = end
		}
		var cells []string
		for i := rowStart; i < rowEnd; i++ {
			cells = append(cells, renderTile(g.tiles[i], i == g.selected, tiles))
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}

	out := strings.Join(lines, "\n")
	if start > 0 || end < len(g.tiles) {
		out += "\n" + subtitleStyle.Render(fmt.Sprintf("(%d-%d of %d)", start+1, end, len(g.tiles)))
	}
	return out
}

func renderTile(t *tile, selected bool, tiles *cache.Cache) string {
	style := tileStyle
	if selected {
		style = tileSelectedStyle
	}

	placeholder := "no preview"
	var meta string
	if t.isFolder() {
		placeholder = "▣ folder"
		meta = fmt.Sprintf("%d projects", t.folder.ProjectCount)
	} else if md, ok := tiles.Get(t.key); ok {
		meta = fmt.Sprintf("%d files", md.FileCount)
		if md.TotalSize > 0 {
			meta += " · " + md.FormattedSize
		}
		if md.IsFolder {
			meta += " · has sub-projects"
		}
	}

	name := valueStyle.Render(truncate(t.name, tileArtCols))
	if t.isFolder() {
		name = accentStyle.Render(truncate(t.name+"/", tileArtCols))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		renderCarousel(t.car, t.art, tileArtCols, tileArtRows, placeholder),
		name,
		subtitleStyle.Render(truncate(meta, tileArtCols)),
	)
	return style.Render(content)
}

// gridRows is how many tile rows fit below header, leaving room for the
// footer.
func (m model) gridRows(header string) int {
	avail := m.getHeight() - lipgloss.Height(header) - 3
	if n := avail / tileOuterHeight; n > 1 {
		return n
	}
	return 1
}
