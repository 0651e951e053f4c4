package api

import (
	"context"
	"strings"
)

func (c *Client) Config(ctx context.Context) (*LibraryConfig, error) {
	var out LibraryConfig
	if err := c.getJSON(ctx, c.endpoint("api", "config"), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateConfig posts the non-nil fields of req. A root path that is
// present but blank is rejected locally.
func (c *Client) UpdateConfig(ctx context.Context, req UpdateConfigRequest) (*LibraryConfig, error) {
	if req.RootPath != nil {
		trimmed := strings.TrimSpace(*req.RootPath)
		if trimmed == "" {
			return nil, validationError("root path is required")
		}
		req.RootPath = &trimmed
	}
	if req.ImagesPerPage != nil && *req.ImagesPerPage < 1 {
		return nil, validationError("images per page must be at least 1")
	}
	var out LibraryConfig
	if err := c.sendJSON(ctx, "POST", c.endpoint("api", "config"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
