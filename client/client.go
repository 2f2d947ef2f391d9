package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	natspkg "github.com/brojonat/soltrack/service/nats"
	"github.com/brojonat/soltrack/service/report"
)

// Watch is a wallet the server snapshots on a schedule.
type Watch struct {
	Address   string        `json:"address"`
	Source    string        `json:"source"`
	Interval  time.Duration `json:"interval"`
	CreatedAt *time.Time    `json:"created_at,omitempty"`
	UpdatedAt *time.Time    `json:"updated_at,omitempty"`
}

// Client is the HTTP client for the soltrack report service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new report service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Report asks the server to build a report. Empty source and zero limit use the server defaults.
func (c *Client) Report(ctx context.Context, address, source string, limit int) (*report.Report, error) {
	q := url.Values{}
	if source != "" {
		q.Set("source", source)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	u := fmt.Sprintf("%s/api/v1/wallets/%s/report", c.baseURL, url.PathEscape(address))
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var rep report.Report
	if err := c.getJSON(ctx, u, &rep); err != nil {
		return nil, err
	}

	c.logger.Debug("report fetched", "address", address, "transfers", len(rep.Transfers))
	return &rep, nil
}

// Snapshots lists the wallet's stored snapshots, newest first.
func (c *Client) Snapshots(ctx context.Context, address string, limit int) ([]*report.Snapshot, error) {
	u := fmt.Sprintf("%s/api/v1/wallets/%s/snapshots", c.baseURL, url.PathEscape(address))
	if limit > 0 {
		u += "?limit=" + strconv.Itoa(limit)
	}

	var response struct {
		Snapshots []*report.Snapshot `json:"snapshots"`
	}
	if err := c.getJSON(ctx, u, &response); err != nil {
		return nil, err
	}
	return response.Snapshots, nil
}

// Watch tells the server to snapshot a wallet on the given interval.
// Empty source and zero interval use the server defaults.
func (c *Client) Watch(ctx context.Context, address, source string, interval time.Duration) (*Watch, error) {
	reqBody := map[string]interface{}{
		"address": address,
	}
	if source != "" {
		reqBody["source"] = source
	}
	if interval > 0 {
		reqBody["interval"] = interval.String()
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/watches", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, c.parseErrorResponse(resp)
	}

	var apiWatch watchResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiWatch); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("watch created", "address", address, "source", apiWatch.Source, "interval", apiWatch.Interval)
	return responseToWatch(&apiWatch)
}

// Unwatch tells the server to stop snapshotting a wallet.
func (c *Client) Unwatch(ctx context.Context, address, source string) error {
	u := fmt.Sprintf("%s/api/v1/watches/%s", c.baseURL, url.PathEscape(address))
	if source != "" {
		u += "?source=" + url.QueryEscape(source)
	}
	req, err := http.NewRequestWithContext(ctx, "DELETE", u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return c.parseErrorResponse(resp)
	}

	c.logger.Debug("watch deleted", "address", address, "source", source)
	return nil
}

// Watches lists all recorded watches.
func (c *Client) Watches(ctx context.Context) ([]*Watch, error) {
	var response struct {
		Watches []watchResponse `json:"watches"`
	}
	if err := c.getJSON(ctx, c.baseURL+"/api/v1/watches", &response); err != nil {
		return nil, err
	}

	watches := make([]*Watch, len(response.Watches))
	for i, apiWatch := range response.Watches {
		watch, err := responseToWatch(&apiWatch)
		if err != nil {
			return nil, fmt.Errorf("failed to parse watch %s: %w", apiWatch.Address, err)
		}
		watches[i] = watch
	}
	return watches, nil
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}
	return nil
}

// Await blocks until the server streams a report event for address that satisfies matcher,
// or ctx is done. A nil matcher accepts the first event.
func (c *Client) Await(ctx context.Context, address string, matcher func(*natspkg.ReportEvent) bool) (*natspkg.ReportEvent, error) {
	u := fmt.Sprintf("%s/api/v1/stream/reports/%s", c.baseURL, url.PathEscape(address))
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream outlives any client-wide timeout; ctx bounds it instead.
	streamClient := *c.httpClient
	streamClient.Timeout = 0

	resp, err := streamClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	var eventType string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			eventType = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if eventType != "report" {
				continue
			}
			var event natspkg.ReportEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
				c.logger.Warn("failed to decode report event", "error", err)
				continue
			}
			if matcher == nil || matcher(&event) {
				return &event, nil
			}
			c.logger.Debug("report event did not match", "report_id", event.ReportID)
		case line == "":
			eventType = ""
		}
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading event stream: %w", err)
	}
	return nil, fmt.Errorf("event stream closed before a matching report arrived")
}

func (c *Client) getJSON(ctx context.Context, u string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// watchResponse is the API response format for a watch.
// The server returns interval as a string (e.g. "5m0s").
type watchResponse struct {
	Address   string     `json:"address"`
	Source    string     `json:"source"`
	Interval  string     `json:"interval"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// responseToWatch converts an API response to a Watch.
func responseToWatch(resp *watchResponse) (*Watch, error) {
	interval, err := time.ParseDuration(resp.Interval)
	if err != nil {
		return nil, fmt.Errorf("invalid interval %q: %w", resp.Interval, err)
	}

	return &Watch{
		Address:   resp.Address,
		Source:    resp.Source,
		Interval:  interval,
		CreatedAt: resp.CreatedAt,
		UpdatedAt: resp.UpdatedAt,
	}, nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
