package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Timestamp accepts the backend's two encodings of a point in time: unix
// seconds as a JSON number, or an RFC 3339 string.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			t.Time = time.Time{}
			return nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			t.Time = time.Unix(n, 0).UTC()
			return nil
		}
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
			if parsed, err := time.Parse(layout, s); err == nil {
				t.Time = parsed
				return nil
			}
		}
		return fmt.Errorf("api: unrecognised timestamp %q", s)
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("api: unrecognised timestamp %s", b)
	}
	t.Time = time.Unix(n, 0).UTC()
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(t.Unix(), 10)), nil
}

// SourceType says whether an image belongs to the project itself or was
// inherited from an ancestor folder.
type SourceType string

const (
	SourceDirect    SourceType = "direct"
	SourceInherited SourceType = "inherited"
)

// ImageSourceSTLPreview marks an image rendered from an STL model.
const ImageSourceSTLPreview = "stl_preview"

// ImagePreview identifies one displayable image of a tile.
type ImagePreview struct {
	ID            int64      `json:"id" yaml:"id"`
	Filename      string     `json:"filename" yaml:"filename"`
	SourceType    SourceType `json:"source_type" yaml:"source_type"`
	ImageSource   string     `json:"image_source" yaml:"image_source"`
	Priority      int        `json:"priority" yaml:"priority"`
	InheritedFrom *string    `json:"inherited_from,omitempty" yaml:"inherited_from,omitempty"`
}

func (p ImagePreview) IsSTLPreview() bool { return p.ImageSource == ImageSourceSTLPreview }
func (p ImagePreview) IsInherited() bool  { return p.SourceType == SourceInherited }

type BreadcrumbItem struct {
	Name string `json:"name" yaml:"name"`
	Path string `json:"path" yaml:"path"`
}

type FolderInfo struct {
	Name         string `json:"name" yaml:"name"`
	Path         string `json:"path" yaml:"path"`
	ProjectCount int    `json:"project_count" yaml:"project_count"`
	HasImages    bool   `json:"has_images" yaml:"has_images"`
}

type Project struct {
	ID          int64     `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	FullPath    string    `json:"full_path" yaml:"full_path"`
	ParentID    *int64    `json:"parent_id" yaml:"parent_id"`
	IsLeaf      bool      `json:"is_leaf" yaml:"is_leaf"`
	Description *string   `json:"description" yaml:"description"`
	FolderLevel int       `json:"folder_level,omitempty" yaml:"folder_level,omitempty"`
	CreatedAt   Timestamp `json:"created_at" yaml:"-"`
	UpdatedAt   Timestamp `json:"updated_at" yaml:"-"`
}

// DescriptionText returns the description or "" when absent.
func (p Project) DescriptionText() string {
	if p.Description == nil {
		return ""
	}
	return *p.Description
}

type ProjectWithPreview struct {
	Project       Project        `json:"project" yaml:"project"`
	PreviewImages []ImagePreview `json:"preview_images" yaml:"preview_images"`
}

// FolderContents is the response of GET /api/browse[/<path>].
type FolderContents struct {
	Folders       []FolderInfo         `json:"folders" yaml:"folders"`
	Projects      []ProjectWithPreview `json:"projects" yaml:"projects"`
	CurrentPath   string               `json:"current_path" yaml:"current_path"`
	TotalFolders  int                  `json:"total_folders" yaml:"total_folders"`
	TotalProjects int                  `json:"total_projects" yaml:"total_projects"`
	IsLeafProject bool                 `json:"is_leaf_project" yaml:"is_leaf_project"`
}

type Tag struct {
	ID         int64     `json:"id" yaml:"id"`
	Name       string    `json:"name" yaml:"name"`
	Color      *string   `json:"color" yaml:"color,omitempty"`
	CreatedAt  Timestamp `json:"created_at" yaml:"-"`
	UsageCount int       `json:"usage_count" yaml:"usage_count"`
}

// ProjectDetail is the response of GET /api/projects/:id. The project
// fields are flattened into the same object.
type ProjectDetail struct {
	Project    `yaml:",inline"`
	Children   []Project `json:"children" yaml:"children"`
	STLCount   int       `json:"stl_count" yaml:"stl_count"`
	ImageCount int       `json:"image_count" yaml:"image_count"`
	Tags       []Tag     `json:"tags" yaml:"tags"`
}

type STLFile struct {
	ID                 int64      `json:"id" yaml:"id"`
	ProjectID          int64      `json:"project_id" yaml:"project_id"`
	Filename           string     `json:"filename" yaml:"filename"`
	FilePath           string     `json:"file_path" yaml:"file_path"`
	FileSize           int64      `json:"file_size" yaml:"file_size"`
	Category           *string    `json:"category,omitempty" yaml:"category,omitempty"`
	PreviewPath        *string    `json:"preview_path,omitempty" yaml:"preview_path,omitempty"`
	PreviewGeneratedAt *Timestamp `json:"preview_generated_at,omitempty" yaml:"-"`
}

type ImageFile struct {
	ID              int64      `json:"id" yaml:"id"`
	ProjectID       int64      `json:"project_id" yaml:"project_id"`
	Filename        string     `json:"filename" yaml:"filename"`
	FilePath        string     `json:"file_path" yaml:"file_path"`
	FileSize        int64      `json:"file_size" yaml:"file_size"`
	SourceType      SourceType `json:"source_type" yaml:"source_type"`
	SourceProjectID *int64     `json:"source_project_id,omitempty" yaml:"source_project_id,omitempty"`
	DisplayOrder    int        `json:"display_order" yaml:"display_order"`
}

// FilesPage is one page of GET /api/projects/:id/files.
type FilesPage struct {
	STLFiles    []STLFile   `json:"stl_files" yaml:"stl_files"`
	Images      []ImageFile `json:"images" yaml:"images"`
	TotalImages int         `json:"total_images" yaml:"total_images"`
	Page        int         `json:"page" yaml:"page"`
	PerPage     int         `json:"per_page" yaml:"per_page"`
}

// TotalPages is the number of image pages at the current page size.
func (f FilesPage) TotalPages() int {
	if f.PerPage <= 0 {
		return 1
	}
	n := (f.TotalImages + f.PerPage - 1) / f.PerPage
	if n < 1 {
		n = 1
	}
	return n
}

type SearchParams struct {
	Query   string
	Tags    []string
	Page    int
	PerPage int
}

type SearchMeta struct {
	Total      int `json:"total" yaml:"total"`
	Page       int `json:"page" yaml:"page"`
	PerPage    int `json:"per_page" yaml:"per_page"`
	TotalPages int `json:"total_pages" yaml:"total_pages"`
}

// SearchProject is one search hit: the project plus its tile images.
type SearchProject struct {
	Project `yaml:",inline"`
	Images  []ImagePreview `json:"images" yaml:"images"`
	Tags    []Tag          `json:"tags,omitempty" yaml:"tags,omitempty"`
}

type SearchResponse struct {
	Data []SearchProject `json:"data" yaml:"data"`
	Meta SearchMeta      `json:"meta" yaml:"meta"`
}

type TagListParams struct {
	Query  string
	SortBy string // "name" or "usage"
}

// ScanStatus is the snapshot returned by POST /api/scan and
// GET /api/scan/status. Counters are absent until a scan has produced
// results.
type ScanStatus struct {
	IsScanning      bool     `json:"is_scanning" yaml:"is_scanning"`
	ProjectsFound   *int     `json:"projects_found,omitempty" yaml:"projects_found,omitempty"`
	ProjectsAdded   *int     `json:"projects_added,omitempty" yaml:"projects_added,omitempty"`
	ProjectsUpdated *int     `json:"projects_updated,omitempty" yaml:"projects_updated,omitempty"`
	ProjectsRemoved *int     `json:"projects_removed,omitempty" yaml:"projects_removed,omitempty"`
	FilesProcessed  *int     `json:"files_processed,omitempty" yaml:"files_processed,omitempty"`
	FilesAdded      *int     `json:"files_added,omitempty" yaml:"files_added,omitempty"`
	FilesUpdated    *int     `json:"files_updated,omitempty" yaml:"files_updated,omitempty"`
	FilesRemoved    *int     `json:"files_removed,omitempty" yaml:"files_removed,omitempty"`
	Errors          []string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Complete reports whether a scan has finished and produced counters.
func (s ScanStatus) Complete() bool {
	return !s.IsScanning && s.ProjectsFound != nil
}

type ScanRequest struct {
	Force bool `json:"force"`
	Clean bool `json:"clean"`
}

// LibraryConfig is the server-side library configuration record.
type LibraryConfig struct {
	ID             int64      `json:"id" yaml:"id"`
	RootPath       *string    `json:"root_path" yaml:"root_path"`
	LastScanAt     *Timestamp `json:"last_scan_at" yaml:"-"`
	STLThumbPath   *string    `json:"stl_thumb_path" yaml:"stl_thumb_path"`
	CacheMaxSizeMB int        `json:"cache_max_size_mb" yaml:"cache_max_size_mb"`
	ImagesPerPage  int        `json:"images_per_page" yaml:"images_per_page"`
}

type UpdateConfigRequest struct {
	RootPath       *string `json:"root_path,omitempty"`
	STLThumbPath   *string `json:"stl_thumb_path,omitempty"`
	CacheMaxSizeMB *int    `json:"cache_max_size_mb,omitempty"`
	ImagesPerPage  *int    `json:"images_per_page,omitempty"`
}

// FileKind selects the table a file id refers to.
type FileKind string

const (
	FileSTL   FileKind = "stl"
	FileImage FileKind = "image"
)
