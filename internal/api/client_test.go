package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New(%q) failed: %v", srv.URL, err)
	}
	return c, srv
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{name: "empty", in: ""},
		{name: "no scheme", in: "localhost:3000"},
		{name: "ftp", in: "ftp://example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.in); err == nil {
				t.Errorf("New(%q) succeeded, want error", tt.in)
			}
		})
	}
}

func TestSearchQueryString(t *testing.T) {
	var gotQuery string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/search" {
			t.Errorf("path = %q, want /api/search", r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		items := make([]map[string]any, 10)
		for i := range items {
			items[i] = map[string]any{"id": i + 21, "name": fmt.Sprintf("Dragon %d", i+21), "is_leaf": true}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": items,
			"meta": map[string]any{"total": 30, "page": 2, "per_page": 20, "total_pages": 2},
		})
	})

	res, err := c.Search(context.Background(), SearchParams{
		Query:   "dragon",
		Tags:    []string{"miniature"},
		Page:    2,
		PerPage: 20,
	})
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if want := "q=dragon&tags=miniature&page=2&per_page=20"; gotQuery != want {
		t.Errorf("query = %q, want %q", gotQuery, want)
	}
	if len(res.Data) != 10 {
		t.Errorf("len(Data) = %d, want 10", len(res.Data))
	}
	if res.Meta.Page != 2 || res.Meta.TotalPages != 2 || res.Meta.Total != 30 {
		t.Errorf("Meta = %+v, want page 2 of 2, total 30", res.Meta)
	}
	if res.Data[0].Name != "Dragon 21" {
		t.Errorf("Data[0].Name = %q, want flattened project name", res.Data[0].Name)
	}
}

func TestSearchQueryOmitsEmpty(t *testing.T) {
	tests := []struct {
		name string
		in   SearchParams
		want string
	}{
		{name: "nothing", in: SearchParams{}, want: ""},
		{name: "query only", in: SearchParams{Query: "  benchy "}, want: "q=benchy"},
		{name: "multiple tags", in: SearchParams{Tags: []string{"a", " ", "b c"}}, want: "tags=a%2Cb+c"},
		{name: "page without query", in: SearchParams{Page: 3}, want: "page=3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := searchQuery(tt.in); got != tt.want {
				t.Errorf("searchQuery(%+v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestBrowsePaths(t *testing.T) {
	var paths []string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.RequestURI())
		if strings.HasPrefix(r.URL.Path, "/api/browse/breadcrumb") {
			_, _ = io.WriteString(w, `[{"name":"Home","path":""},{"name":"Fantasy","path":"Fantasy"}]`)
			return
		}
		_, _ = io.WriteString(w, `{"folders":[{"name":"Dragons","path":"Fantasy/Dragons","project_count":4,"has_images":true}],
			"projects":[],"current_path":"Fantasy","total_folders":1,"total_projects":0,"is_leaf_project":false}`)
	})
	ctx := context.Background()

	contents, err := c.FolderContents(ctx, "", 0, 0)
	if err != nil {
		t.Fatalf("FolderContents(root) failed: %v", err)
	}
	if len(contents.Folders) != 1 || contents.Folders[0].ProjectCount != 4 {
		t.Errorf("Folders = %+v", contents.Folders)
	}
	if _, err := c.FolderContents(ctx, "/Fantasy/Sci Fi/", 2, 50); err != nil {
		t.Fatalf("FolderContents(nested) failed: %v", err)
	}
	crumbs, err := c.Breadcrumb(ctx, "Fantasy")
	if err != nil {
		t.Fatalf("Breadcrumb() failed: %v", err)
	}
	if len(crumbs) != 2 || crumbs[1].Path != "Fantasy" {
		t.Errorf("Breadcrumb = %+v", crumbs)
	}

	want := []string{
		"/api/browse",
		"/api/browse/Fantasy/Sci%20Fi?page=2&per_page=50",
		"/api/browse/breadcrumb/Fantasy",
	}
	if len(paths) != len(want) {
		t.Fatalf("requests = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("request %d = %q, want %q", i, paths[i], want[i])
		}
	}
}

func TestServerErrorMessages(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantMsg  string
		wantCode string
	}{
		{
			name:     "error and message",
			status:   404,
			body:     `{"error":"not_found","message":"Project 9 not found"}`,
			wantMsg:  "Project 9 not found",
			wantCode: "not_found",
		},
		{
			name:    "error only",
			status:  404,
			body:    `{"error":"Tag not found"}`,
			wantMsg: "Tag not found",
		},
		{
			name:    "plain text",
			status:  404,
			body:    "The requested resource was not found",
			wantMsg: "The requested resource was not found",
		},
		{
			name:    "empty body",
			status:  500,
			body:    "",
			wantMsg: "The server returned an error (500 Internal Server Error).",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := c.Project(context.Background(), 9)
			var apiErr *Error
			if !errors.As(err, &apiErr) {
				t.Fatalf("Project() error = %v, want *Error", err)
			}
			if apiErr.Kind != KindServer || apiErr.Status != tt.status {
				t.Errorf("Kind/Status = %v/%d, want server/%d", apiErr.Kind, apiErr.Status, tt.status)
			}
			if got := apiErr.UserMessage(); got != tt.wantMsg {
				t.Errorf("UserMessage() = %q, want %q", got, tt.wantMsg)
			}
			if apiErr.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", apiErr.Code, tt.wantCode)
			}
		})
	}
}

func TestCancelledRequest(t *testing.T) {
	started := make(chan struct{})
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := c.FolderContents(ctx, "slow", 0, 0)
		errc <- err
	}()
	<-started
	cancel()

	err := <-errc
	if !IsCancelled(err) {
		t.Fatalf("error = %v, want cancelled", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("errors.Is(err, context.Canceled) = false")
	}
}

func TestTimeoutIsNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()
	c, err := New(srv.URL, WithTimeout(20*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.ScanStatus(context.Background())
	if KindOf(err) != KindNetwork {
		t.Fatalf("KindOf(%v) = %v, want network", err, KindOf(err))
	}
}

func TestNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url)
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Tags(context.Background(), TagListParams{})
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Kind != KindNetwork {
		t.Fatalf("error = %v, want network failure", err)
	}
	if !apiErr.Retryable() {
		t.Error("network failure should be retryable")
	}
}

func TestUpdateConfigValidation(t *testing.T) {
	hits := 0
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits++
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 1, "root_path": body["root_path"], "images_per_page": 20})
	})

	blank := "   "
	_, err := c.UpdateConfig(context.Background(), UpdateConfigRequest{RootPath: &blank})
	if KindOf(err) != KindValidation {
		t.Fatalf("blank root: error = %v, want validation", err)
	}
	if hits != 0 {
		t.Fatalf("blank root reached the server")
	}

	root := "  /srv/prints "
	cfg, err := c.UpdateConfig(context.Background(), UpdateConfigRequest{RootPath: &root})
	if err != nil {
		t.Fatalf("UpdateConfig() failed: %v", err)
	}
	if cfg.RootPath == nil || *cfg.RootPath != "/srv/prints" {
		t.Errorf("RootPath = %v, want trimmed /srv/prints", cfg.RootPath)
	}
}

func TestProjectTagMutation(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/projects/7/tags" {
			t.Errorf("path = %q", r.URL.Path)
		}
		switch r.Method {
		case http.MethodPost:
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["tagName"] != "miniature" {
				t.Errorf("tagName = %v, want miniature", body["tagName"])
			}
			_, _ = io.WriteString(w, `{"tags":[{"id":1,"name":"miniature","color":null,"created_at":1700000000,"usage_count":3}]}`)
		case http.MethodDelete:
			if got := r.URL.Query().Get("tagName"); got != "miniature" {
				t.Errorf("tagName query = %q", got)
			}
			_, _ = io.WriteString(w, `{"tags":[]}`)
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	})
	ctx := context.Background()

	tags, err := c.AddProjectTag(ctx, 7, " miniature ", "")
	if err != nil {
		t.Fatalf("AddProjectTag() failed: %v", err)
	}
	if len(tags) != 1 || tags[0].UsageCount != 3 || tags[0].CreatedAt.Unix() != 1700000000 {
		t.Errorf("tags = %+v", tags)
	}
	tags, err = c.RemoveProjectTag(ctx, 7, "miniature")
	if err != nil {
		t.Fatalf("RemoveProjectTag() failed: %v", err)
	}
	if len(tags) != 0 {
		t.Errorf("tags after remove = %+v, want none", tags)
	}
	if _, err := c.AddProjectTag(ctx, 7, "  ", ""); KindOf(err) != KindValidation {
		t.Errorf("blank tag: error = %v, want validation", err)
	}
}

func TestDownloadProjectFilename(t *testing.T) {
	payload := []byte("PK\x03\x04 not really a zip")
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/projects/3/download" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", `attachment; filename="../Dragon Bust.zip"`)
		_, _ = w.Write(payload)
	})

	var buf bytes.Buffer
	dl, err := c.DownloadProject(context.Background(), 3, &buf)
	if err != nil {
		t.Fatalf("DownloadProject() failed: %v", err)
	}
	if dl.Filename != "Dragon Bust.zip" {
		t.Errorf("Filename = %q, want Dragon Bust.zip", dl.Filename)
	}
	if dl.Bytes != int64(len(payload)) || !bytes.Equal(buf.Bytes(), payload) {
		t.Errorf("downloaded %d bytes, want %d", dl.Bytes, len(payload))
	}
}

func TestDownloadFileQuery(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RequestURI() != "/api/files/12?type=stl" {
			t.Errorf("request = %q", r.URL.RequestURI())
		}
		_, _ = io.WriteString(w, "solid cube")
	})
	var buf bytes.Buffer
	dl, err := c.DownloadFile(context.Background(), 12, FileSTL, &buf)
	if err != nil {
		t.Fatalf("DownloadFile() failed: %v", err)
	}
	if dl.Filename != "file-12" {
		t.Errorf("Filename = %q, want fallback file-12", dl.Filename)
	}
	if _, err := c.DownloadFile(context.Background(), 12, FileKind("obj"), &buf); KindOf(err) != KindValidation {
		t.Errorf("bad kind: error = %v, want validation", err)
	}
}

func TestTimestampDecoding(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int64
	}{
		{name: "unix number", in: `1700000000`, want: 1700000000},
		{name: "numeric string", in: `"1700000000"`, want: 1700000000},
		{name: "rfc3339", in: `"2023-11-14T22:13:20Z"`, want: 1700000000},
		{name: "null", in: `null`, want: time.Time{}.Unix()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts Timestamp
			if err := json.Unmarshal([]byte(tt.in), &ts); err != nil {
				t.Fatalf("Unmarshal(%s) failed: %v", tt.in, err)
			}
			if ts.Unix() != tt.want {
				t.Errorf("Unix() = %d, want %d", ts.Unix(), tt.want)
			}
		})
	}
}

func TestParentPath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"Fantasy", ""},
		{"Fantasy/Dragons", "Fantasy"},
		{"/Fantasy/Dragons/Red/", "Fantasy/Dragons"},
	}
	for _, tt := range tests {
		if got := ParentPath(tt.in); got != tt.want {
			t.Errorf("ParentPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
