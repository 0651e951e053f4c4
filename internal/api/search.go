package api

import (
	"context"
	"strings"
)

// searchQuery encodes params in the order q, tags, page, per_page. Tags are
// comma-joined; empty and zero values are left out.
func searchQuery(p SearchParams) string {
	var tags []string
	for _, t := range p.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return query{}.
		add("q", strings.TrimSpace(p.Query)).
		add("tags", strings.Join(tags, ",")).
		addInt("page", p.Page).
		addInt("per_page", p.PerPage).
		encode()
}

func (c *Client) Search(ctx context.Context, p SearchParams) (*SearchResponse, error) {
	u := c.endpoint("api", "search")
	u.RawQuery = searchQuery(p)

	var out SearchResponse
	if err := c.getJSON(ctx, u, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
