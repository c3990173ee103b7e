package httpapi

import (
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/network"
)

// Probe issues one GET against the health endpoint. Any 2xx is reachable. Non-2xx statuses
// return a classified *network.Error; 429 also records the Retry-After window.
func (c *Client) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.healthPath, nil)
	if err != nil {
		return &network.Error{Kind: network.KindUnknown, Path: c.healthPath, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(RequestIDHeader, uuid.NewString())
	req.Header.Set("Cache-Control", "no-store")

	resp, err := c.hc.Do(req)
	if err != nil {
		return &network.Error{Kind: network.Classify(err, c.online()), Path: c.healthPath, Err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close health response body", "error", cerr)
		}
	}()

	nerr := network.FromResponse(resp, c.clock.Now())
	if nerr == nil {
		return nil
	}
	nerr.Path = c.healthPath
	if nerr.Kind == network.KindRateLimited {
		network.RecordRateLimit(c.limits, c.healthPath, nerr.RetryAfter)
	}
	return nerr
}
