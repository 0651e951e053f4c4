// Package archive unpacks project archives downloaded from the library.
package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// ErrUnsafePath is returned for entries that would land outside the
// destination directory.
var ErrUnsafePath = errors.New("archive: entry escapes destination")

// Limits bound what Extract will write.
type Limits struct {
	MaxFiles int
	MaxBytes int64
}

var DefaultLimits = Limits{MaxFiles: 100_000, MaxBytes: 64 << 30}

// Extract unpacks the zip at src into dest, creating dest if needed. It
// returns the paths written, relative to dest. Symlinks are skipped.
func Extract(src, dest string, lim Limits) ([]string, error) {
	r, err := zip.OpenReader(src)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer r.Close()

	dest, err = filepath.Abs(dest)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, err
	}

	if lim.MaxFiles > 0 && len(r.File) > lim.MaxFiles {
		return nil, fmt.Errorf("archive has %d entries, limit is %d", len(r.File), lim.MaxFiles)
	}

	var written []string
	var total int64
	for _, f := range r.File {
		target, err := safeJoin(dest, f.Name)
		if err != nil {
			return written, err
		}
		mode := f.Mode()
		switch {
		case mode&os.ModeSymlink != 0:
			continue
		case f.FileInfo().IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				return written, err
			}
			continue
		}

		n, err := extractFile(f, target, budget(lim.MaxBytes, total))
		total += n
		if err != nil {
			return written, fmt.Errorf("extracting %s: %w", f.Name, err)
		}
		rel, _ := filepath.Rel(dest, target)
		written = append(written, filepath.ToSlash(rel))
	}
	return written, nil
}

func budget(limit, used int64) int64 {
	if limit <= 0 {
		return -1
	}
	return limit - used
}

func extractFile(f *zip.File, target string, remaining int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, err
	}
	rc, err := f.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}

	var src io.Reader = rc
	if remaining >= 0 {
		src = io.LimitReader(rc, remaining+1)
	}
	n, err := io.Copy(out, src)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, err
	}
	if remaining >= 0 && n > remaining {
		return n, fmt.Errorf("archive exceeds size limit")
	}
	return n, nil
}

func safeJoin(dest, name string) (string, error) {
	clean := filepath.FromSlash(strings.ReplaceAll(name, `\`, "/"))
	if filepath.IsAbs(clean) || filepath.VolumeName(clean) != "" {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	target := filepath.Join(dest, clean)
	if target != dest && !strings.HasPrefix(target, dest+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return target, nil
}
