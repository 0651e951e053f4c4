package archive

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	"github.com/klauspost/compress/zip"
)

func writeZip(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "project.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(entries[name])); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExtract(t *testing.T) {
	src := writeZip(t, map[string]string{
		"Dragon/body.stl":         "solid body",
		"Dragon/images/cover.png": "png",
		"Dragon/":                 "",
	})
	dest := filepath.Join(t.TempDir(), "out")

	got, err := Extract(src, dest, DefaultLimits)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	want := []string{"Dragon/body.stl", "Dragon/images/cover.png"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Extract() = %v, want %v", got, want)
	}
	data, err := os.ReadFile(filepath.Join(dest, "Dragon", "body.stl"))
	if err != nil || string(data) != "solid body" {
		t.Errorf("body.stl = %q, %v", data, err)
	}
}

func TestExtractRejectsTraversal(t *testing.T) {
	tests := []string{"../evil.txt", "a/../../evil.txt", "/etc/evil"}
	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			src := writeZip(t, map[string]string{name: "x"})
			_, err := Extract(src, t.TempDir(), DefaultLimits)
			if !errors.Is(err, ErrUnsafePath) {
				t.Errorf("Extract() error = %v, want ErrUnsafePath", err)
			}
		})
	}
}

func TestExtractLimits(t *testing.T) {
	src := writeZip(t, map[string]string{"a": "12345", "b": "67890"})

	if _, err := Extract(src, t.TempDir(), Limits{MaxFiles: 1}); err == nil {
		t.Error("file count limit not enforced")
	}
	if _, err := Extract(src, t.TempDir(), Limits{MaxBytes: 8}); err == nil {
		t.Error("size limit not enforced")
	}
	if _, err := Extract(src, t.TempDir(), Limits{MaxBytes: 10}); err != nil {
		t.Errorf("exact size limit rejected: %v", err)
	}
}
