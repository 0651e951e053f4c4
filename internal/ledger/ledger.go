// Package ledger keeps a local SQLite record of downloaded files and
// project archives.
package ledger

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Kind is what was downloaded.
type Kind string

const (
	KindSTL     Kind = "stl"
	KindImage   Kind = "image"
	KindProject Kind = "project"
)

// Entry is one completed download.
type Entry struct {
	ID           int64     `json:"id" yaml:"id"`
	Kind         Kind      `json:"kind" yaml:"kind"`
	RemoteID     int64     `json:"remote_id" yaml:"remote_id"`
	Filename     string    `json:"filename" yaml:"filename"`
	Path         string    `json:"path" yaml:"path"`
	Size         int64     `json:"size" yaml:"size"`
	MIME         string    `json:"mime" yaml:"mime"`
	SHA256       string    `json:"sha256" yaml:"sha256"`
	ExtractedTo  string    `json:"extracted_to,omitempty" yaml:"extracted_to,omitempty"`
	DownloadedAt time.Time `json:"downloaded_at" yaml:"downloaded_at"`
}

var ErrNotFound = errors.New("ledger: entry not found")

type Ledger struct {
	db *sql.DB
}

// Open opens or creates the ledger database at path.
func Open(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer; the pragmas below are per connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA temp_store=MEMORY;`); err != nil {
		db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialising ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error { return l.db.Close() }

func initSchema(db *sql.DB) error {
	ddl := `
CREATE TABLE IF NOT EXISTS downloads (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	kind          TEXT NOT NULL,
	remote_id     INTEGER NOT NULL,
	filename      TEXT NOT NULL,
	path          TEXT NOT NULL,
	size          INTEGER,
	mime          TEXT,
	sha256        TEXT,
	extracted_to  TEXT,
	downloaded_utc TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS downloads_remote ON downloads(kind, remote_id);
`
	_, err := db.Exec(ddl)
	return err
}

// Record stores e, filling in size, MIME type and checksum from the file at
// e.Path when they are unset. It returns e with its ID assigned.
func (l *Ledger) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.Path == "" {
		return e, fmt.Errorf("ledger: entry has no path")
	}
	if e.Filename == "" {
		e.Filename = filepath.Base(e.Path)
	}
	if e.Size == 0 {
		if info, err := os.Stat(e.Path); err == nil {
			e.Size = info.Size()
		}
	}
	if e.MIME == "" {
		e.MIME = detectMIME(strings.ToLower(filepath.Ext(e.Filename)))
	}
	if e.SHA256 == "" {
		e.SHA256 = hashFile(e.Path)
	}
	if e.DownloadedAt.IsZero() {
		e.DownloadedAt = time.Now()
	}

	res, err := l.db.ExecContext(ctx, `
		INSERT INTO downloads(kind, remote_id, filename, path, size, mime, sha256, extracted_to, downloaded_utc)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.Kind), e.RemoteID, e.Filename, e.Path, e.Size, e.MIME, e.SHA256,
		nullString(e.ExtractedTo), e.DownloadedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return e, fmt.Errorf("recording download: %w", err)
	}
	e.ID, err = res.LastInsertId()
	return e, err
}

// List returns the most recent entries first. limit <= 0 means all.
func (l *Ledger) List(ctx context.Context, limit int) ([]Entry, error) {
	q := `SELECT id, kind, remote_id, filename, path, size, mime, sha256, extracted_to, downloaded_utc
		FROM downloads ORDER BY downloaded_utc DESC, id DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Latest returns the newest entry for the given remote object.
func (l *Ledger) Latest(ctx context.Context, kind Kind, remoteID int64) (Entry, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT id, kind, remote_id, filename, path, size, mime, sha256, extracted_to, downloaded_utc
		FROM downloads WHERE kind = ? AND remote_id = ?
		ORDER BY downloaded_utc DESC, id DESC LIMIT 1`, string(kind), remoteID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

// Verify reports whether the file for e still exists with its recorded
// checksum.
func Verify(e Entry) bool {
	if e.SHA256 == "" {
		return false
	}
	return hashFile(e.Path) == e.SHA256
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e                        Entry
		kind, when               string
		size                     sql.NullInt64
		mimeType, sum, extracted sql.NullString
	)
	if err := s.Scan(&e.ID, &kind, &e.RemoteID, &e.Filename, &e.Path, &size, &mimeType, &sum, &extracted, &when); err != nil {
		return Entry{}, err
	}
	e.Kind = Kind(kind)
	e.Size = size.Int64
	e.MIME = mimeType.String
	e.SHA256 = sum.String
	e.ExtractedTo = extracted.String
	t, err := time.Parse(time.RFC3339, when)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: bad timestamp %q: %w", when, err)
	}
	e.DownloadedAt = t
	return e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func detectMIME(ext string) string {
	if ext == ".stl" {
		return "model/stl"
	}
	if ext == ".3mf" {
		return "model/3mf"
	}
	mt := mime.TypeByExtension(ext)
	if mt != "" {
		return mt
	}
	return "application/octet-stream"
}

func hashFile(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return ""
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
