package api

import (
	"context"
	"strings"
)

// cleanLibraryPath normalises a library-relative folder path. The root is "".
func cleanLibraryPath(p string) string {
	return strings.Trim(strings.TrimSpace(p), "/")
}

// FolderContents fetches the folders and projects directly under path.
// page and perPage are omitted from the request when zero.
func (c *Client) FolderContents(ctx context.Context, path string, page, perPage int) (*FolderContents, error) {
	u := c.endpoint("api", "browse", cleanLibraryPath(path))
	u.RawQuery = query{}.addInt("page", page).addInt("per_page", perPage).encode()

	var out FolderContents
	if err := c.getJSON(ctx, u, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Breadcrumb fetches the trail from the library root to path.
func (c *Client) Breadcrumb(ctx context.Context, path string) ([]BreadcrumbItem, error) {
	u := c.endpoint("api", "browse", "breadcrumb", cleanLibraryPath(path))

	var out []BreadcrumbItem
	if err := c.getJSON(ctx, u, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ParentPath returns the library path one level above p, "" at the root.
func ParentPath(p string) string {
	p = cleanLibraryPath(p)
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[:i]
	}
	return ""
}
