package api

import (
	"context"
	"strconv"
)

type projectList struct {
	Projects []Project `json:"projects"`
}

// RootProjects lists the top-level projects of the library.
func (c *Client) RootProjects(ctx context.Context) ([]Project, error) {
	var out projectList
	if err := c.getJSON(ctx, c.endpoint("api", "projects"), &out); err != nil {
		return nil, err
	}
	return out.Projects, nil
}

func (c *Client) Project(ctx context.Context, id int64) (*ProjectDetail, error) {
	if id <= 0 {
		return nil, validationError("project id must be positive, got %d", id)
	}
	var out ProjectDetail
	if err := c.getJSON(ctx, c.endpoint("api", "projects", strconv.FormatInt(id, 10)), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ProjectChildren(ctx context.Context, id int64) ([]Project, error) {
	if id <= 0 {
		return nil, validationError("project id must be positive, got %d", id)
	}
	var out projectList
	if err := c.getJSON(ctx, c.endpoint("api", "projects", strconv.FormatInt(id, 10), "children"), &out); err != nil {
		return nil, err
	}
	return out.Projects, nil
}

// DefaultFilesPerPage matches the backend's default page size.
const DefaultFilesPerPage = 20

// ProjectFiles fetches one page of a project's files. page < 1 means the
// first page; perPage < 1 means DefaultFilesPerPage.
func (c *Client) ProjectFiles(ctx context.Context, id int64, page, perPage int) (*FilesPage, error) {
	if id <= 0 {
		return nil, validationError("project id must be positive, got %d", id)
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultFilesPerPage
	}
	u := c.endpoint("api", "projects", strconv.FormatInt(id, 10), "files")
	u.RawQuery = query{}.addInt("page", page).addInt("per_page", perPage).encode()

	var out FilesPage
	if err := c.getJSON(ctx, u, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
