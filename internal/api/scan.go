package api

import "context"

// StartScan asks the backend to scan the configured root. If a scan is
// already running the backend answers with IsScanning set and no counters.
func (c *Client) StartScan(ctx context.Context, req ScanRequest) (*ScanStatus, error) {
	var out ScanStatus
	if err := c.sendJSON(ctx, "POST", c.endpoint("api", "scan"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ScanStatus(ctx context.Context) (*ScanStatus, error) {
	var out ScanStatus
	if err := c.getJSON(ctx, c.endpoint("api", "scan", "status"), &out); err != nil {
		return nil, err
	}
	return &out, nil
}
