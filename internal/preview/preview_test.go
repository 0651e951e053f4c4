package preview

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type fakeFetcher struct {
	data  []byte
	err   error
	calls atomic.Int32
	gate  chan struct{}
}

func (f *fakeFetcher) Image(ctx context.Context, id int64) ([]byte, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	return f.data, f.err
}

func TestDrawDimensions(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 50))
	tests := []struct {
		name       string
		cols, rows int
		wantLines  int
		wantWidth  int
	}{
		{"width bound", 20, 20, 5, 20},
		{"height bound", 100, 5, 5, 20},
		{"zero", 0, 5, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Draw(img, tt.cols, tt.rows)
			if tt.wantLines == 0 {
				if out != "" {
					t.Fatalf("Draw() = %q, want empty", out)
				}
				return
			}
			lines := strings.Split(out, "\n")
			if len(lines) != tt.wantLines {
				t.Errorf("lines = %d, want %d", len(lines), tt.wantLines)
			}
			if w := lipgloss.Width(lines[0]); w != tt.wantWidth {
				t.Errorf("width = %d, want %d", w, tt.wantWidth)
			}
		})
	}
}

func TestLoadSharesConcurrentFetches(t *testing.T) {
	f := &fakeFetcher{data: pngBytes(t, 8, 8), gate: make(chan struct{})}
	l, err := NewLoader(f, 4, nil)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Load(context.Background(), 7)
			errs <- err
		}()
	}
	// Give the goroutines time to join the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(f.gate)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("Load() error = %v", err)
		}
	}
	if n := f.calls.Load(); n != 1 {
		t.Errorf("fetches = %d, want 1", n)
	}

	if _, err := l.Load(context.Background(), 7); err != nil {
		t.Fatal(err)
	}
	if n := f.calls.Load(); n != 1 {
		t.Errorf("cached load fetched again: %d", n)
	}
}

func TestLoadErrors(t *testing.T) {
	boom := errors.New("boom")
	l, _ := NewLoader(&fakeFetcher{err: boom}, 4, nil)
	if _, err := l.Load(context.Background(), 1); !errors.Is(err, boom) {
		t.Errorf("fetch error = %v, want boom", err)
	}

	l, _ = NewLoader(&fakeFetcher{data: []byte("not an image")}, 4, nil)
	if _, err := l.Load(context.Background(), 1); err == nil {
		t.Error("decoding garbage succeeded")
	}
}

func TestLoadCallerCancellation(t *testing.T) {
	f := &fakeFetcher{data: pngBytes(t, 4, 4), gate: make(chan struct{})}
	defer close(f.gate)
	l, _ := NewLoader(f, 4, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Load(ctx, 3); !errors.Is(err, context.Canceled) {
		t.Errorf("Load() error = %v, want context.Canceled", err)
	}
}

func TestRenderCachesAndForget(t *testing.T) {
	f := &fakeFetcher{data: pngBytes(t, 16, 16)}
	l, _ := NewLoader(f, 4, nil)
	a, err := l.Render(context.Background(), 2, 8, 4)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := l.Render(context.Background(), 2, 8, 4)
	if a != b {
		t.Error("cached render differs")
	}
	l.Forget(2)
	if _, err := l.Render(context.Background(), 2, 8, 4); err != nil {
		t.Fatal(err)
	}
	if n := f.calls.Load(); n != 2 {
		t.Errorf("fetches = %d, want 2 after Forget", n)
	}
}
