package api

import (
	"context"
	"strconv"
	"strings"
)

type tagList struct {
	Data []Tag `json:"data"`
}

type projectTags struct {
	Tags []Tag `json:"tags"`
}

func (c *Client) Tags(ctx context.Context, p TagListParams) ([]Tag, error) {
	u := c.endpoint("api", "tags")
	u.RawQuery = query{}.add("q", strings.TrimSpace(p.Query)).add("sortBy", p.SortBy).encode()

	var out tagList
	if err := c.getJSON(ctx, u, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// AutocompleteTags returns tags whose name matches prefix. A blank prefix
// returns nothing without a request.
func (c *Client) AutocompleteTags(ctx context.Context, prefix string) ([]Tag, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, nil
	}
	u := c.endpoint("api", "tags", "autocomplete")
	u.RawQuery = query{}.add("q", prefix).encode()

	var out tagList
	if err := c.getJSON(ctx, u, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

type createTagRequest struct {
	Name  string  `json:"name"`
	Color *string `json:"color,omitempty"`
}

func (c *Client) CreateTag(ctx context.Context, name, color string) (*Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationError("tag name is required")
	}
	body := createTagRequest{Name: name}
	if color != "" {
		body.Color = &color
	}
	var out Tag
	if err := c.sendJSON(ctx, "POST", c.endpoint("api", "tags"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type tagProjectRequest struct {
	TagName string  `json:"tagName"`
	Color   *string `json:"color,omitempty"`
}

// AddProjectTag attaches a tag (created on demand) and returns the
// project's updated tag list.
func (c *Client) AddProjectTag(ctx context.Context, projectID int64, name, color string) ([]Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationError("tag name is required")
	}
	if projectID <= 0 {
		return nil, validationError("project id must be positive, got %d", projectID)
	}
	body := tagProjectRequest{TagName: name}
	if color != "" {
		body.Color = &color
	}
	var out projectTags
	u := c.endpoint("api", "projects", strconv.FormatInt(projectID, 10), "tags")
	if err := c.sendJSON(ctx, "POST", u, body, &out); err != nil {
		return nil, err
	}
	return out.Tags, nil
}

// RemoveProjectTag detaches a tag and returns the updated tag list.
func (c *Client) RemoveProjectTag(ctx context.Context, projectID int64, name string) ([]Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationError("tag name is required")
	}
	if projectID <= 0 {
		return nil, validationError("project id must be positive, got %d", projectID)
	}
	u := c.endpoint("api", "projects", strconv.FormatInt(projectID, 10), "tags")
	u.RawQuery = query{}.add("tagName", name).encode()

	var out projectTags
	if err := c.sendJSON(ctx, "DELETE", u, nil, &out); err != nil {
		return nil, err
	}
	return out.Tags, nil
}
