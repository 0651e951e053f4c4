package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"printshelf/internal/api"
	"printshelf/internal/cache"
	"printshelf/internal/clock"
	"printshelf/internal/config"
	"printshelf/internal/preview"
)

// testEnv wires a model environment against an httptest server with a
// fake clock. Messages posted from timers are captured in sent.
type testEnv struct {
	*env
	clock *clock.Fake

	mu   sync.Mutex
	sent []tea.Msg
}

func newTestEnv(t *testing.T, handler http.Handler) *testEnv {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := api.New(srv.URL, api.WithLogger(logger))
	if err != nil {
		t.Fatalf("api.New: %v", err)
	}
	previews, err := preview.NewLoader(client, 16, logger)
	if err != nil {
		t.Fatalf("preview.NewLoader: %v", err)
	}
	tiles, err := cache.New(cache.DefaultSize)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	cfg, err := config.Load(filepath.Join(t.TempDir(), "settings.json"))
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}

	te := &testEnv{clock: clock.NewFake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))}
	te.env = &env{
		client:   client,
		previews: previews,
		tiles:    tiles,
		cfg:      cfg,
		logger:   logger,
		clock:    te.clock,
		send: func(msg tea.Msg) {
			te.mu.Lock()
			defer te.mu.Unlock()
			te.sent = append(te.sent, msg)
		},
	}
	return te
}

func (te *testEnv) drain() []tea.Msg {
	te.mu.Lock()
	defer te.mu.Unlock()
	out := te.sent
	te.sent = nil
	return out
}

// firstMsg runs cmd, expanding batches, and returns the first message of
// type T it produces.
func firstMsg[T tea.Msg](t *testing.T, cmd tea.Cmd) T {
	t.Helper()
	out := make(chan tea.Msg, 64)
	var run func(tea.Cmd)
	run = func(c tea.Cmd) {
		if c == nil {
			return
		}
		go func() {
			msg := c()
			if batch, ok := msg.(tea.BatchMsg); ok {
				for _, sub := range batch {
					run(sub)
				}
				return
			}
			out <- msg
		}()
	}
	run(cmd)

	timeout := time.After(5 * time.Second)
	for {
		select {
		case msg := <-out:
			if v, ok := msg.(T); ok {
				return v
			}
		case <-timeout:
			var zero T
			t.Fatalf("no %T produced", zero)
			return zero
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func searchHandler(t *testing.T, hits, page, totalPages int, wantQuery ...string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/search", func(w http.ResponseWriter, r *http.Request) {
		if len(wantQuery) > 0 && r.URL.RawQuery != wantQuery[0] {
			t.Errorf("search query = %q, want %q", r.URL.RawQuery, wantQuery[0])
		}
		data := make([]map[string]any, hits)
		for i := range data {
			data[i] = map[string]any{
				"id":        100 + i,
				"name":      fmt.Sprintf("Model-%02d", i+1),
				"full_path": fmt.Sprintf("lib/model-%02d", i+1),
				"is_leaf":   true,
				"images":    []any{},
			}
		}
		writeJSON(w, map[string]any{
			"data": data,
			"meta": map[string]any{"total": 30, "page": page, "per_page": searchPerPage, "total_pages": totalPages},
		})
	})
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("sortBy"); got != "usage" {
			t.Errorf("tag list sortBy = %q, want usage", got)
		}
		writeJSON(w, map[string]any{"data": []any{}})
	})
	return mux
}

func TestSearchRendersLastPage(t *testing.T) {
	te := newTestEnv(t, searchHandler(t, 10, 2, 2, "q=dragon&tags=miniature&page=2&per_page=20"))
	m := newModel(te.env)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 220, Height: 300})
	m = next.(model)

	m.enterSearch(false)
	m.search.query.SetValue("dragon")
	m.toggleTag("miniature")
	cmd := m.runSearch(2)
	msg := firstMsg[searchMsg](t, cmd)
	if !msg.res.OK() {
		t.Fatalf("search outcome = %v, err = %v", msg.res.Outcome, msg.res.Err)
	}
	if msg.params.Page != 2 || msg.params.PerPage != searchPerPage {
		t.Fatalf("params = %+v", msg.params)
	}

	next, _ = m.Update(msg)
	m = next.(model)
	if got := len(m.search.grid.tiles); got != 10 {
		t.Fatalf("tiles = %d, want 10", got)
	}

	view := m.View()
	for i := 1; i <= 10; i++ {
		name := fmt.Sprintf("Model-%02d", i)
		if !strings.Contains(view, name) {
			t.Errorf("view missing %s", name)
		}
	}
	if !strings.Contains(view, "Page 2 of 2") {
		t.Errorf("view missing pagination:\n%s", view)
	}
	if !strings.Contains(view, "Found 30 projects") {
		t.Errorf("view missing result count")
	}
	m.scope.close()
}

func TestSearchEmptyResults(t *testing.T) {
	te := newTestEnv(t, searchHandler(t, 0, 1, 0))
	m := newModel(te.env)
	m.enterSearch(false)
	m.search.query.SetValue("nothing")

	next, _ := m.Update(firstMsg[searchMsg](t, m.runSearch(1)))
	m = next.(model)
	if view := m.View(); !strings.Contains(view, "No projects found. Try adjusting your search or filters.") {
		t.Errorf("empty state missing:\n%s", view)
	}
	if m.env.cfg.LastQuery != "nothing" {
		t.Errorf("LastQuery = %q", m.env.cfg.LastQuery)
	}
	m.scope.close()
}

func TestSearchDropsResultFinishedBeforeNewerSearch(t *testing.T) {
	te := newTestEnv(t, searchHandler(t, 3, 1, 1))
	m := newModel(te.env)
	m.enterSearch(false)

	m.search.query.SetValue("dra")
	older := firstMsg[searchMsg](t, m.runSearch(1))
	if !older.res.OK() || older.res.Stale() {
		t.Fatalf("older search outcome = %v, stale = %v", older.res.Outcome, older.res.Stale())
	}

	m.search.query.SetValue("dragon")
	m.runSearch(1)

	next, _ := m.Update(older)
	m = next.(model)
	if got := len(m.search.grid.tiles); got != 0 {
		t.Errorf("tiles = %d, older result was applied", got)
	}
	if !m.search.loading {
		t.Error("loading cleared by the older result while the newer search is in flight")
	}
	m.scope.close()
}

func TestSearchQueryDebounce(t *testing.T) {
	te := newTestEnv(t, searchHandler(t, 1, 1, 1))
	m := newModel(te.env)
	m.enterSearch(false)

	for _, r := range "dr" {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = next.(model)
	}
	if m.search.query.Value() != "dr" {
		t.Fatalf("query = %q", m.search.query.Value())
	}

	te.clock.Advance(searchDebounce - time.Millisecond)
	if got := te.drain(); len(got) != 0 {
		t.Fatalf("debounce fired early: %v", got)
	}
	te.clock.Advance(time.Millisecond)
	sent := te.drain()
	if len(sent) != 1 {
		t.Fatalf("sent %d messages, want 1 (earlier keystroke superseded)", len(sent))
	}
	dm, ok := sent[0].(debounceMsg)
	if !ok || dm.kind != debounceSearch {
		t.Fatalf("sent %#v", sent[0])
	}

	next, cmd := m.Update(dm)
	m = next.(model)
	if cmd == nil {
		t.Fatal("debounced keystroke did not search")
	}
	if m.lastSearch.Query != "dr" || m.lastSearch.Page != 1 {
		t.Errorf("lastSearch = %+v", m.lastSearch)
	}
	m.scope.close()
}

func TestLeavingSearchStopsDebounce(t *testing.T) {
	te := newTestEnv(t, searchHandler(t, 1, 1, 1))
	m := newModel(te.env)
	m.enterSearch(false)
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	m = next.(model)

	m.leave()
	te.clock.Advance(time.Second)
	if got := te.drain(); len(got) != 0 {
		t.Errorf("timer fired after leaving the page: %v", got)
	}
}

func TestBrowseDropsSupersededFolder(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/browse/a", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, api.FolderContents{
			CurrentPath: "a",
			Folders:     []api.FolderInfo{{Name: "b", Path: "a/b"}},
		})
	})
	te := newTestEnv(t, mux)
	m := newModel(te.env)
	m.state = stateBrowse
	m.browse = browseModel{path: "a", grid: newTileGrid(nil), loading: true}

	old := m.fetchFolder("a")
	latest := m.fetchFolder("a")

	oldMsg := old().(folderMsg)
	if !oldMsg.res.Cancelled() {
		t.Fatalf("superseded fetch outcome = %v", oldMsg.res.Outcome)
	}
	next, _ := m.Update(oldMsg)
	m = next.(model)
	if m.browse.contents != nil || !m.browse.loading {
		t.Fatal("superseded folder result was applied")
	}

	next, _ = m.Update(latest().(folderMsg))
	m = next.(model)
	if m.browse.contents == nil || m.browse.loading {
		t.Fatal("latest folder result was not applied")
	}
	if len(m.browse.grid.tiles) != 1 || !m.browse.grid.tiles[0].isFolder() {
		t.Errorf("tiles = %+v", m.browse.grid.tiles)
	}
	m.scope.close()
}

func TestTagEditorRequiresName(t *testing.T) {
	te := newTestEnv(t, http.NotFoundHandler())
	m := newModel(te.env)
	m.state = stateProject
	m.project = projectModel{id: 7, tagEditing: true, tagInput: textinput.New()}
	m.project.tagInput.SetValue("   ")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(model)
	if cmd != nil {
		t.Error("blank tag issued a request")
	}
	if m.project.tagErr != "Tag name is required." {
		t.Errorf("tagErr = %q", m.project.tagErr)
	}
}

func TestTagAddFailureKeepsInput(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/projects/7/tags", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		io.WriteString(w, `{"error":"conflict","message":"Tag already attached to this project."}`)
	})
	te := newTestEnv(t, mux)
	m := newModel(te.env)
	m.state = stateProject
	m.project = projectModel{
		id:         7,
		tagEditing: true,
		tagInput:   textinput.New(),
		suggestSel: -1,
		tags:       []api.Tag{{Name: "dragon"}},
	}
	m.project.tagInput.SetValue("dragon")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(model)
	if cmd == nil || !m.project.tagBusy {
		t.Fatal("enter did not issue the tag request")
	}

	next, _ = m.Update(firstMsg[projectTagsMsg](t, cmd))
	m = next.(model)
	if m.project.tagBusy {
		t.Error("tagBusy still set after the failure")
	}
	if m.project.tagErr != "Tag already attached to this project." {
		t.Errorf("tagErr = %q", m.project.tagErr)
	}
	if got := m.project.tagInput.Value(); got != "dragon" {
		t.Errorf("tag input = %q, want the typed name kept", got)
	}
	if len(m.project.tags) != 1 {
		t.Errorf("tags = %+v, want unchanged", m.project.tags)
	}
	m.scope.close()
}

func TestHelpForwardsResults(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/browse", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, api.FolderContents{Folders: []api.FolderInfo{{Name: "x", Path: "x"}}})
	})
	te := newTestEnv(t, mux)
	m := newModel(te.env)
	m.state = stateBrowse
	m.browse = browseModel{grid: newTileGrid(nil), loading: true}
	cmd := m.fetchFolder("")
	m.showHelp()

	next, _ := m.Update(cmd().(folderMsg))
	m = next.(model)
	if m.state != stateHelp {
		t.Fatalf("state = %v, want help", m.state)
	}
	if m.browse.contents == nil {
		t.Error("result arriving during help was dropped")
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("z")})
	if next.(model).state != stateBrowse {
		t.Error("key did not close help")
	}
	m.scope.close()
}

func TestValidatePath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		want int
	}{
		{"empty", "  ", 0},
		{"existing dir", dir, 1},
		{"new dir in existing parent", filepath.Join(dir, "new"), 2},
		{"file is not a dir", file, 2},
		{"missing parent", filepath.Join(dir, "no", "such"), 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := validatePath(tt.path); got != tt.want {
				t.Errorf("validatePath(%q) = %d, want %d", tt.path, got, tt.want)
			}
		})
	}
}

func TestGetPathCompletions(t *testing.T) {
	dir := t.TempDir()
	for _, d := range []string{"Prints", "parts", "other", ".hidden"} {
		if err := os.Mkdir(filepath.Join(dir, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "plate.stl"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	got := getPathCompletions(filepath.Join(dir, "p"))
	want := []string{filepath.Join(dir, "Prints"), filepath.Join(dir, "parts")}
	if len(got) != len(want) {
		t.Fatalf("completions = %v, want %v", got, want)
	}
	for _, w := range want {
		found := false
		for _, g := range got {
			if g == w {
				found = true
			}
		}
		if !found {
			t.Errorf("missing completion %s in %v", w, got)
		}
	}

	if all := getPathCompletions(dir); len(all) != 3 {
		t.Errorf("listing %s = %v, want 3 visible dirs", dir, all)
	}
}

func TestReadLocalDirs(t *testing.T) {
	dir := t.TempDir()
	for _, d := range []string{"zeta", "alpha", ".git"} {
		if err := os.Mkdir(filepath.Join(dir, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "file.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := readLocalDirs(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, d := range got {
		names = append(names, d.name)
	}
	if strings.Join(names, ",") != "..,alpha,zeta" {
		t.Errorf("entries = %v", names)
	}
	if !got[0].parent {
		t.Error("first entry should be the parent link")
	}
}

func TestScanErrorLines(t *testing.T) {
	var errs []string
	for i := 0; i < 8; i++ {
		errs = append(errs, fmt.Sprintf("err %d", i))
	}
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"none", nil, nil},
		{"under cap", errs[:3], errs[:3]},
		{"at cap", errs[:5], errs[:5]},
		{"over cap", errs, append(append([]string(nil), errs[:5]...), "... and 3 more errors")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scanErrorLines(tt.in)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("scanErrorLines = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScanPercentNeverCompletesWhileRunning(t *testing.T) {
	n := func(v int) *int { return &v }
	tests := []struct {
		name     string
		baseline int
		files    *int
		want     float64
	}{
		{"no baseline", 0, n(10), 0},
		{"no counter", 100, nil, 0},
		{"half", 100, n(50), 0.5},
		{"overshoot", 100, n(150), 0.99},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := model{scan: scanModel{baseline: tt.baseline, status: &api.ScanStatus{IsScanning: true, FilesProcessed: tt.files}}}
			if got := m.scanPercent(); got != tt.want {
				t.Errorf("scanPercent = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScanCompletionAfterLeavingPageInvalidatesCache(t *testing.T) {
	var scanning atomic.Bool
	scanning.Store(true)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/scan/status", func(w http.ResponseWriter, r *http.Request) {
		files := 40
		writeJSON(w, api.ScanStatus{IsScanning: scanning.Load(), FilesProcessed: &files})
	})
	te := newTestEnv(t, mux)
	m := newModel(te.env)
	te.tiles.Put(5, cache.TileMetadata{FileCount: 3}, te.tiles.Generation())

	next, _ := m.Update(firstMsg[scanStatusMsg](t, m.enterScan(false)))
	m = next.(model)
	if !m.scan.running || !m.scanPending {
		t.Fatalf("running = %v pending = %v, want a running scan", m.scan.running, m.scanPending)
	}

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(model)
	if m.state != stateBrowse || cmd == nil {
		t.Fatalf("state = %v, want browse with a watch scheduled", m.state)
	}

	// Still running: the watch keeps going.
	next, cmd = m.Update(scanWatchMsg{gen: m.scanWatchGen})
	m = next.(model)
	next, cmd = m.Update(firstMsg[scanWatchStatusMsg](t, cmd))
	m = next.(model)
	if cmd == nil || !m.scanPending {
		t.Fatal("watch stopped while the scan was still running")
	}
	if _, ok := te.tiles.Get(5); !ok {
		t.Fatal("cache invalidated before the scan finished")
	}

	scanning.Store(false)
	next, cmd = m.Update(scanWatchMsg{gen: m.scanWatchGen})
	m = next.(model)
	next, cmd = m.Update(firstMsg[scanWatchStatusMsg](t, cmd))
	m = next.(model)
	if cmd != nil || m.scanPending {
		t.Error("watch still active after the scan finished")
	}
	if _, ok := te.tiles.Get(5); ok || te.tiles.Len() != 0 {
		t.Error("tile metadata from before the scan survived its completion")
	}

	// A stale tick from the finished watch does nothing.
	if _, cmd = m.Update(scanWatchMsg{gen: m.scanWatchGen - 1}); cmd != nil {
		t.Error("stale watch tick issued a status call")
	}
	m.scope.close()
	m.background.close()
}

func TestContrastColor(t *testing.T) {
	tests := []struct {
		hex  string
		want string
	}{
		{"#ffffff", "#000000"},
		{"#ffeb3b", "#000000"},
		{"#000000", "#ffffff"},
		{"#1565c0", "#ffffff"},
	}
	for _, tt := range tests {
		t.Run(tt.hex, func(t *testing.T) {
			if got := string(contrastColor(tt.hex)); got != tt.want {
				t.Errorf("contrastColor(%s) = %s, want %s", tt.hex, got, tt.want)
			}
		})
	}
	if got := contrastColor("teal"); got != text {
		t.Errorf("invalid color = %v, want default text color", got)
	}
}

func TestWindowRange(t *testing.T) {
	tests := []struct {
		name                  string
		selected, total, size int
		start, end            int
	}{
		{"fits", 3, 5, 10, 0, 5},
		{"top", 0, 50, 10, 0, 10},
		{"middle", 25, 50, 10, 20, 30},
		{"bottom", 49, 50, 10, 40, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := windowRange(tt.selected, tt.total, tt.size)
			if start != tt.start || end != tt.end {
				t.Errorf("windowRange = [%d,%d), want [%d,%d)", start, end, tt.start, tt.end)
			}
			if tt.selected < start || tt.selected >= end {
				t.Errorf("selected %d outside window", tt.selected)
			}
		})
	}
}

func TestUniquePath(t *testing.T) {
	dir := t.TempDir()
	if got := uniquePath(dir, "dragon.stl"); got != filepath.Join(dir, "dragon.stl") {
		t.Errorf("free name = %s", got)
	}
	for _, name := range []string{"dragon.stl", "dragon (1).stl"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if got := uniquePath(dir, "dragon.stl"); got != filepath.Join(dir, "dragon (2).stl") {
		t.Errorf("taken name = %s", got)
	}
}

func TestDownloadTo(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "downloads")
	body := []byte("solid cube\nendsolid cube\n")

	path, d, err := downloadTo(context.Background(), dir, func(ctx context.Context, w io.Writer) (*api.Download, error) {
		n, err := w.Write(body)
		return &api.Download{Filename: "../cube.stl", Bytes: int64(n)}, err
	})
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(dir, "cube.stl") {
		t.Errorf("path = %s", path)
	}
	if d.Bytes != int64(len(body)) {
		t.Errorf("bytes = %d", d.Bytes)
	}
	got, err := os.ReadFile(path)
	if err != nil || !bytes.Equal(got, body) {
		t.Errorf("content = %q, %v", got, err)
	}

	// A failed transfer leaves nothing behind.
	_, _, err = downloadTo(context.Background(), dir, func(ctx context.Context, w io.Writer) (*api.Download, error) {
		w.Write([]byte("partial"))
		return nil, errors.New("connection reset")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("dir has %d entries after failed download, want 1", len(entries))
	}
}

func TestRootCmdRejectsUnknownFormat(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--format", "xml", "scan", "status"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "xml") {
		t.Errorf("err = %v, want unknown format error", err)
	}
}

func TestServerConfigUpdate(t *testing.T) {
	req, err := serverConfigUpdate("images_per_page", "12")
	if err != nil || req.ImagesPerPage == nil || *req.ImagesPerPage != 12 {
		t.Errorf("images_per_page: %+v, %v", req, err)
	}
	req, err = serverConfigUpdate("root_path", "/srv/prints")
	if err != nil || req.RootPath == nil || *req.RootPath != "/srv/prints" {
		t.Errorf("root_path: %+v, %v", req, err)
	}
	if _, err := serverConfigUpdate("cache_max_size_mb", "-1"); err == nil {
		t.Error("negative cache size accepted")
	}
	if _, err := serverConfigUpdate("colour", "x"); err == nil {
		t.Error("unknown field accepted")
	}
}

func TestSearchCmdOutputsJSON(t *testing.T) {
	srv := httptest.NewServer(searchHandler(t, 2, 1, 1))
	defer srv.Close()

	dir := t.TempDir()
	settings := filepath.Join(dir, "settings.json")
	ledgerPath, _ := json.Marshal(filepath.Join(dir, "downloads.db"))
	if err := os.WriteFile(settings, []byte(`{"ledger_path": `+string(ledgerPath)+`}`), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs([]string{
		"--api-url", srv.URL,
		"--config", settings,
		"search", "dragon", "--tag", "mini",
	})
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}

	var resp api.SearchResponse
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if len(resp.Data) != 2 || resp.Data[0].Name != "Model-01" {
		t.Errorf("data = %+v", resp.Data)
	}
}

func TestBrowseCmdToleratesBreadcrumbFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/browse/breadcrumb/minis", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":"internal","message":"breadcrumb lookup failed"}`)
	})
	mux.HandleFunc("/api/browse/minis", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, api.FolderContents{
			CurrentPath: "minis",
			Folders:     []api.FolderInfo{{Name: "dragons", Path: "minis/dragons"}},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dir := t.TempDir()
	settings := filepath.Join(dir, "settings.json")
	ledgerPath, _ := json.Marshal(filepath.Join(dir, "downloads.db"))
	if err := os.WriteFile(settings, []byte(`{"ledger_path": `+string(ledgerPath)+`}`), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--api-url", srv.URL, "--config", settings, "--log-level", "error", "browse", "minis"})
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("browse failed on a breadcrumb error: %v", err)
	}

	var got struct {
		Path       string               `json:"path"`
		Breadcrumb []api.BreadcrumbItem `json:"breadcrumb"`
		Data       api.FolderContents   `json:"data"`
	}
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if got.Path != "minis" || len(got.Data.Folders) != 1 {
		t.Errorf("output = %+v", got)
	}
	if got.Breadcrumb == nil || len(got.Breadcrumb) != 0 {
		t.Errorf("breadcrumb = %#v, want an empty trail", got.Breadcrumb)
	}
}

func TestClosingScopeCancelsConfigCalls(t *testing.T) {
	arrived := make(chan struct{}, 2)
	hang := func(w http.ResponseWriter, r *http.Request) {
		arrived <- struct{}{}
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/config", hang)
	te := newTestEnv(t, mux)

	t.Run("startup config load", func(t *testing.T) {
		m := newModel(te.env)
		done := make(chan tea.Msg, 1)
		cmd := m.loadServerConfig()
		go func() { done <- cmd() }()
		<-arrived
		m.scope.close()

		msg := (<-done).(serverConfigMsg)
		if !msg.res.Cancelled() {
			t.Fatalf("outcome = %v, want cancelled", msg.res.Outcome)
		}
		next, _ := m.Update(msg)
		if got := next.(model); got.state != stateStartup || got.startup.err != nil {
			t.Errorf("cancelled load changed the page: state = %v err = %v", got.state, got.startup.err)
		}
	})

	t.Run("setup save", func(t *testing.T) {
		m := newModel(te.env)
		m.enterSetup(nil)
		done := make(chan tea.Msg, 1)
		cmd := m.saveRoot(t.TempDir())
		go func() { done <- cmd() }()
		<-arrived
		m.leave()

		msg := (<-done).(configSavedMsg)
		if !msg.res.Cancelled() {
			t.Fatalf("outcome = %v, want cancelled", msg.res.Outcome)
		}
		if len(te.cfg.RecentRoots) != 0 {
			t.Errorf("recent roots = %v", te.cfg.RecentRoots)
		}
	})
}

func TestSetupSavesRootAndScans(t *testing.T) {
	root := t.TempDir()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/config", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["root_path"] != root {
			t.Errorf("root_path = %v", req["root_path"])
		}
		writeJSON(w, map[string]any{"id": 1, "root_path": root, "cache_max_size_mb": 500, "images_per_page": 20})
	})
	te := newTestEnv(t, mux)
	m := newModel(te.env)
	m.enterSetup(nil)
	m.setup.root.SetValue("")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(model)
	if cmd != nil || m.setup.err != "Root path is required." {
		t.Fatalf("blank root: err = %q", m.setup.err)
	}

	m.setup.root.SetValue(root)
	next, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(model)
	if !m.setup.saving {
		t.Fatal("enter did not start saving")
	}
	saved := firstMsg[configSavedMsg](t, cmd)
	if !saved.res.OK() {
		t.Fatalf("save outcome = %v, err = %v", saved.res.Outcome, saved.res.Err)
	}

	next, _ = m.Update(saved)
	m = next.(model)
	if m.state != stateScan || !m.scan.running {
		t.Errorf("state = %v running = %v, want a started scan", m.state, m.scan.running)
	}
	if len(te.cfg.RecentRoots) == 0 || te.cfg.RecentRoots[0] != root {
		t.Errorf("recent roots = %v", te.cfg.RecentRoots)
	}
	m.scope.close()
}
