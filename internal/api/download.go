package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
)

// Download describes a completed binary transfer.
type Download struct {
	// Filename is taken from Content-Disposition, else a fallback.
	Filename    string
	ContentType string
	Bytes       int64
}

// DownloadFile streams one STL or image file into w.
func (c *Client) DownloadFile(ctx context.Context, id int64, kind FileKind, w io.Writer) (*Download, error) {
	if id <= 0 {
		return nil, validationError("file id must be positive, got %d", id)
	}
	if kind != FileSTL && kind != FileImage {
		return nil, validationError("file type must be %q or %q", FileSTL, FileImage)
	}
	u := c.endpoint("api", "files", strconv.FormatInt(id, 10))
	u.RawQuery = query{}.add("type", string(kind)).encode()
	return c.stream(ctx, u, w, fmt.Sprintf("file-%d", id))
}

// DownloadProject streams the project's zip archive into w.
func (c *Client) DownloadProject(ctx context.Context, id int64, w io.Writer) (*Download, error) {
	if id <= 0 {
		return nil, validationError("project id must be positive, got %d", id)
	}
	u := c.endpoint("api", "projects", strconv.FormatInt(id, 10), "download")
	return c.stream(ctx, u, w, fmt.Sprintf("project-%d.zip", id))
}

// Image fetches the bytes of an image for preview rendering. It is bounded
// by the JSON timeout since previews are small.
func (c *Client) Image(ctx context.Context, id int64) ([]byte, error) {
	if id <= 0 {
		return nil, validationError("image id must be positive, got %d", id)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.endpoint("api", "files", strconv.FormatInt(id, 10))
	u.RawQuery = query{}.add("type", string(FileImage)).encode()

	var buf bytes.Buffer
	if _, err := c.stream(ctx, u, &limitedWriter{w: &buf, n: maxImageSize}, ""); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Client) stream(ctx context.Context, u *url.URL, w io.Writer, fallback string) (*Download, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("api: build GET %s: %w", u.Path, err)
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		if ctxErr := contextError(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &Error{Kind: KindNetwork, Err: fmt.Errorf("read %s: %w", u.Path, err)}
	}
	return &Download{
		Filename:    attachmentName(resp.Header.Get("Content-Disposition"), fallback),
		ContentType: resp.Header.Get("Content-Type"),
		Bytes:       n,
	}, nil
}

// attachmentName extracts a safe base filename from a Content-Disposition
// header.
func attachmentName(header, fallback string) string {
	if header == "" {
		return fallback
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return fallback
	}
	name := filepath.Base(filepath.Clean("/" + params["filename"]))
	if name == "/" || name == "." || name == "" {
		return fallback
	}
	return name
}

type limitedWriter struct {
	w io.Writer
	n int64
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if int64(len(p)) > l.n {
		return 0, fmt.Errorf("image larger than %d bytes", maxImageSize)
	}
	l.n -= int64(len(p))
	return l.w.Write(p)
}
