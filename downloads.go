package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"printshelf/internal/api"
	"printshelf/internal/archive"
	"printshelf/internal/ledger"
)

// fetchFunc streams one remote resource into w.
type fetchFunc func(ctx context.Context, w io.Writer) (*api.Download, error)

// downloadTo streams into a temporary file in dir and renames it to the
// server-provided filename once complete. An existing file is never
// overwritten; a numeric suffix is added instead.
func downloadTo(ctx context.Context, dir string, fetch fetchFunc) (string, *api.Download, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("creating download directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".printshelf-*.part")
	if err != nil {
		return "", nil, err
	}
	defer os.Remove(tmp.Name())

	d, err := fetch(ctx, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", nil, err
	}

	target := uniquePath(dir, filepath.Base(d.Filename))
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", nil, fmt.Errorf("saving %s: %w", target, err)
	}
	return target, d, nil
}

func uniquePath(dir, name string) string {
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "download"
	}
	target := filepath.Join(dir, name)
	if _, err := os.Stat(target); os.IsNotExist(err) {
		return target
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		target = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
		if _, err := os.Stat(target); os.IsNotExist(err) {
			return target
		}
	}
}

// downloadRequest is one file or project download, from the TUI or the CLI.
type downloadRequest struct {
	kind      ledger.Kind
	id        int64
	dir       string
	extract   bool
	extractTo string
}

// runDownload fetches, optionally extracts and records a download. A nil
// ledger skips recording.
func runDownload(ctx context.Context, client *api.Client, l *ledger.Ledger, req downloadRequest) (ledger.Entry, error) {
	var fetch fetchFunc
	switch req.kind {
	case ledger.KindSTL:
		fetch = func(ctx context.Context, w io.Writer) (*api.Download, error) {
			return client.DownloadFile(ctx, req.id, api.FileSTL, w)
		}
	case ledger.KindImage:
		fetch = func(ctx context.Context, w io.Writer) (*api.Download, error) {
			return client.DownloadFile(ctx, req.id, api.FileImage, w)
		}
	case ledger.KindProject:
		fetch = func(ctx context.Context, w io.Writer) (*api.Download, error) {
			return client.DownloadProject(ctx, req.id, w)
		}
	default:
		return ledger.Entry{}, fmt.Errorf("unknown download kind %q", req.kind)
	}

	path, d, err := downloadTo(ctx, req.dir, fetch)
	if err != nil {
		return ledger.Entry{}, err
	}
	entry := ledger.Entry{
		Kind:     req.kind,
		RemoteID: req.id,
		Filename: filepath.Base(path),
		Path:     path,
		Size:     d.Bytes,
	}

	if req.extract && req.kind == ledger.KindProject {
		dest := req.extractTo
		if dest == "" {
			dest = strings.TrimSuffix(path, filepath.Ext(path))
		}
		if _, err := archive.Extract(path, dest, archive.DefaultLimits); err != nil {
			return entry, fmt.Errorf("extracting %s: %w", path, err)
		}
		entry.ExtractedTo = dest
	}

	if l == nil {
		return entry, nil
	}
	return l.Record(ctx, entry)
}

// download starts a download owned by the current page.
func (m model) download(kind ledger.Kind, id int64) tea.Cmd {
	ctx, client, l := m.scope.ctx, m.env.client, m.env.ledger
	req := downloadRequest{kind: kind, id: id, dir: m.env.cfg.DownloadDirOr()}
	return func() tea.Msg {
		entry, err := runDownload(ctx, client, l, req)
		return downloadDoneMsg{entry: entry, err: err}
	}
}

func (m model) applyDownload(msg downloadDoneMsg) (tea.Model, tea.Cmd) {
	m.project.downloading--
	switch {
	case msg.err == nil:
		m.project.notice = successStyle.Render("✓ saved " + msg.entry.Path)
	case api.IsCancelled(msg.err):
		m.project.notice = ""
	default:
		m.env.logger.Error("download failed", "err", msg.err)
		m.project.notice = errorStyle.Render("✗ download failed: " + api.UserMessage(msg.err))
	}
	return m, nil
}
