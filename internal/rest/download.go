package rest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Download streams the media at rawURL into w. URLs without a scheme are
// resolved against the API base URL; the token is only sent to the API host.
func (c *Client) Download(ctx context.Context, rawURL string, w io.Writer) (int64, error) {
	own := !strings.Contains(rawURL, "://")
	if own {
		rawURL = c.baseURL + "/" + strings.TrimLeft(rawURL, "/")
	} else {
		own = strings.HasPrefix(rawURL, c.baseURL+"/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	if own && c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return 0, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download %s: %w", rawURL, err)
	}
	return n, nil
}
