// Package preview turns backend images into terminal art.
//
// Images are fetched once per id no matter how many tiles ask for them at
// the same time, decoded, downscaled with Lanczos resampling and drawn with
// upper half block characters so each cell carries two pixels.
package preview

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/nfnt/resize"
	"golang.org/x/sync/singleflight"
)

// Fetcher returns the raw bytes of an image. *api.Client implements it.
type Fetcher interface {
	Image(ctx context.Context, id int64) ([]byte, error)
}

const halfBlock = "▀"

type key struct {
	id   int64
	w, h int
}

// Loader fetches and renders previews, caching both decoded images and
// rendered output.
type Loader struct {
	fetch    Fetcher
	logger   *slog.Logger
	group    singleflight.Group
	images   *lru.Cache[int64, image.Image]
	rendered *lru.Cache[key, string]
}

// NewLoader keeps up to size decoded images and size*4 renderings.
func NewLoader(f Fetcher, size int, logger *slog.Logger) (*Loader, error) {
	if size <= 0 {
		size = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	images, err := lru.New[int64, image.Image](size)
	if err != nil {
		return nil, err
	}
	rendered, err := lru.New[key, string](size * 4)
	if err != nil {
		return nil, err
	}
	return &Loader{fetch: f, logger: logger, images: images, rendered: rendered}, nil
}

// Load returns the image decoded. Concurrent calls for one id share a
// single fetch; a caller whose ctx ends stops waiting without cancelling
// the shared fetch for the others.
func (l *Loader) Load(ctx context.Context, id int64) (image.Image, error) {
	if img, ok := l.images.Get(id); ok {
		return img, nil
	}
	ch := l.group.DoChan(strconv.FormatInt(id, 10), func() (any, error) {
		data, err := l.fetch.Image(context.WithoutCancel(ctx), id)
		if err != nil {
			return nil, err
		}
		img, format, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode image %d: %w", id, err)
		}
		l.logger.Debug("preview decoded", "id", id, "format", format,
			"width", img.Bounds().Dx(), "height", img.Bounds().Dy())
		l.images.Add(id, img)
		return img, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(image.Image), nil
	}
}

// Render loads image id and draws it into at most cols x rows cells.
func (l *Loader) Render(ctx context.Context, id int64, cols, rows int) (string, error) {
	k := key{id: id, w: cols, h: rows}
	if s, ok := l.rendered.Get(k); ok {
		return s, nil
	}
	img, err := l.Load(ctx, id)
	if err != nil {
		return "", err
	}
	s := Draw(img, cols, rows)
	l.rendered.Add(k, s)
	return s, nil
}

// Forget drops everything cached for id.
func (l *Loader) Forget(id int64) {
	l.images.Remove(id)
	for _, k := range l.rendered.Keys() {
		if k.id == id {
			l.rendered.Remove(k)
		}
	}
}

// Purge drops all cached images and renderings.
func (l *Loader) Purge() {
	l.images.Purge()
	l.rendered.Purge()
}

// Draw renders img into at most cols x rows terminal cells, keeping the
// aspect ratio. Each cell shows two vertically stacked pixels.
func Draw(img image.Image, cols, rows int) string {
	if cols <= 0 || rows <= 0 || img == nil {
		return ""
	}
	thumb := resize.Thumbnail(uint(cols), uint(rows*2), img, resize.Lanczos3)
	b := thumb.Bounds()

	var sb strings.Builder
	for y := b.Min.Y; y < b.Max.Y; y += 2 {
		if y > b.Min.Y {
			sb.WriteByte('\n')
		}
		for x := b.Min.X; x < b.Max.X; x++ {
			style := lipgloss.NewStyle().Foreground(hex(thumb.At(x, y).RGBA()))
			if y+1 < b.Max.Y {
				style = style.Background(hex(thumb.At(x, y+1).RGBA()))
			}
			sb.WriteString(style.Render(halfBlock))
		}
	}
	return sb.String()
}

func hex(r, g, b, _ uint32) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", r>>8, g>>8, b>>8))
}
