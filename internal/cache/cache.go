// Package cache memoises per-project tile metadata.
package cache

import (
	"sync"

	"github.com/dustin/go-humanize"
	lru "github.com/hashicorp/golang-lru/v2"

	"printshelf/internal/api"
)

// DefaultSize bounds the number of projects kept.
const DefaultSize = 1024

// TileMetadata is the summary line shown under a project tile.
type TileMetadata struct {
	FileCount     int
	TotalSize     int64
	FormattedSize string
	IsFolder      bool
}

// Compute derives tile metadata from a project detail record. The backend
// does not report folder sizes, so TotalSize covers only the files passed
// in, if any.
func Compute(d api.ProjectDetail, stls []api.STLFile) TileMetadata {
	var size int64
	for _, f := range stls {
		size += f.FileSize
	}
	return TileMetadata{
		FileCount:     d.STLCount + d.ImageCount,
		TotalSize:     size,
		FormattedSize: FormatBytes(size),
		IsFolder:      !d.IsLeaf,
	}
}

// FormatBytes renders n in binary units; 0 renders as "0 B".
func FormatBytes(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(n))
}

// Cache is a bounded LRU of TileMetadata keyed by project id. It is owned
// by the TUI root and cleared when a scan completes.
type Cache struct {
	mu  sync.Mutex
	lru *lru.Cache[int64, TileMetadata]
	gen uint64
}

func New(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	l, err := lru.New[int64, TileMetadata](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: l}, nil
}

func (c *Cache) Get(id int64) (TileMetadata, bool) {
	return c.lru.Get(id)
}

// Put stores m for id. gen must be the value Generation returned when the
// computation began; results computed before an Invalidate are dropped.
func (c *Cache) Put(id int64, m TileMetadata, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.lru.Add(id, m)
	return true
}

// GetOrCompute returns the cached value for d.ID, computing and storing it
// on a miss.
func (c *Cache) GetOrCompute(d api.ProjectDetail) TileMetadata {
	if m, ok := c.lru.Get(d.ID); ok {
		return m
	}
	gen := c.Generation()
	m := Compute(d, nil)
	c.Put(d.ID, m, gen)
	return m
}

// Generation identifies the current cache epoch.
func (c *Cache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Invalidate drops every entry. Call it after the library changes.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.lru.Purge()
}

func (c *Cache) Len() int { return c.lru.Len() }
