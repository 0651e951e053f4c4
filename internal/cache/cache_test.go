package cache

import (
	"testing"

	"printshelf/internal/api"
)

func detail(id int64, leaf bool, stls, imgs int) api.ProjectDetail {
	return api.ProjectDetail{
		Project:    api.Project{ID: id, Name: "p", IsLeaf: leaf},
		STLCount:   stls,
		ImageCount: imgs,
	}
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name string
		d    api.ProjectDetail
		stls []api.STLFile
		want TileMetadata
	}{
		{
			name: "leaf project",
			d:    detail(1, true, 3, 4),
			want: TileMetadata{FileCount: 7, FormattedSize: "0 B"},
		},
		{
			name: "folder",
			d:    detail(2, false, 0, 2),
			want: TileMetadata{FileCount: 2, FormattedSize: "0 B", IsFolder: true},
		},
		{
			name: "with file sizes",
			d:    detail(3, true, 2, 0),
			stls: []api.STLFile{{FileSize: 1024}, {FileSize: 1024}},
			want: TileMetadata{FileCount: 2, TotalSize: 2048, FormattedSize: "2.0 KiB"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compute(tt.d, tt.stls); got != tt.want {
				t.Errorf("Compute() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestGetOrComputeMemoises(t *testing.T) {
	c, err := New(8)
	if err != nil {
		t.Fatal(err)
	}
	first := c.GetOrCompute(detail(1, true, 1, 1))
	// A later detail with different counts is not consulted until invalidation.
	second := c.GetOrCompute(detail(1, true, 5, 5))
	if first != second {
		t.Errorf("cached value changed: %+v vs %+v", first, second)
	}

	c.Invalidate()
	if c.Len() != 0 {
		t.Fatalf("Len after Invalidate = %d", c.Len())
	}
	if got := c.GetOrCompute(detail(1, true, 5, 5)); got.FileCount != 10 {
		t.Errorf("FileCount after Invalidate = %d, want 10", got.FileCount)
	}
}

func TestPutAfterInvalidateDropped(t *testing.T) {
	c, err := New(8)
	if err != nil {
		t.Fatal(err)
	}
	gen := c.Generation()
	c.Invalidate()
	if c.Put(1, TileMetadata{FileCount: 1}, gen) {
		t.Error("Put with a stale generation was accepted")
	}
	if _, ok := c.Get(1); ok {
		t.Error("stale entry visible")
	}
}

func TestEviction(t *testing.T) {
	c, err := New(2)
	if err != nil {
		t.Fatal(err)
	}
	for id := int64(1); id <= 3; id++ {
		c.GetOrCompute(detail(id, true, 1, 0))
	}
	if _, ok := c.Get(1); ok {
		t.Error("oldest entry not evicted")
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
}
