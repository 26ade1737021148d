// Package source implements flow acquisition over HTTP. The remote service
// publishes a JSON flow listing per app and one zip archive per flow.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"flowvault/pkg/errors"
	"flowvault/pkg/logger"
	"flowvault/pkg/models"
)

// Client fetches flow listings and archives from an HTTP endpoint.
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	logger     logger.Logger
}

// NewClient creates an HTTP flow source. timeout bounds each request
// end to end, including the archive body.
func NewClient(timeout time.Duration, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		headers: map[string]string{
			"User-Agent":      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
			"Accept":          "application/json, application/zip;q=0.9, */*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9",
			"Cache-Control":   "no-cache",
		},
		logger: log,
	}
}

// SetHeader sets a custom header for the client.
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

func (c *Client) doRequest(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.TerminalFlow(err, "failed to create request")
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    url,
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"url":      url,
			"error":    err.Error(),
			"duration": duration,
		})
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Transient(err, "network error")
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"url":      url,
		"status":   resp.StatusCode,
		"duration": duration,
	})

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, errors.FromStatusCode(resp.StatusCode,
			fmt.Sprintf("unexpected status %d from %s", resp.StatusCode, url))
	}
	return resp, nil
}

// ListFlows fetches the app's flow listing. Every record is returned, the
// malformed ones included, so the caller can fail their flows explicitly
// instead of completing the app around a record it never saw.
func (c *Client) ListFlows(ctx context.Context, app models.App) ([]models.Flow, error) {
	resp, err := c.doRequest(ctx, app.URL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Transient(err, "failed to read flow listing")
	}

	var flows []models.Flow
	if err := json.Unmarshal(body, &flows); err != nil {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse flow listing", map[string]interface{}{
			"app":          app.Title,
			"body_preview": preview,
		})
		return nil, errors.TerminalApp(err, "flow listing is not valid JSON")
	}

	invalid := 0
	for i := range flows {
		if err := flows[i].Validate(); err != nil {
			invalid++
			c.logger.WarnWithFields("invalid flow record", map[string]interface{}{
				"app":   app.Title,
				"error": err.Error(),
			})
		}
	}

	c.logger.InfoWithFields("flow listing fetched", map[string]interface{}{
		"app":     app.Title,
		"flows":   len(flows),
		"invalid": invalid,
	})
	return flows, nil
}

// FetchArchive opens the flow archive for streaming. The response body is
// returned unread so large archives never sit in memory.
func (c *Client) FetchArchive(ctx context.Context, flow models.Flow) (io.ReadCloser, error) {
	resp, err := c.doRequest(ctx, flow.URL)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
