package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gravitask/gravitask/pkg/graph"
)

// Client is the gravitask daemon SDK client.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
}

// NewClient creates a new gravitask client.
// endpoint defaults to "http://127.0.0.1:8780" if empty.
func NewClient(endpoint string) *Client {
	if endpoint == "" {
		endpoint = "http://127.0.0.1:8780"
	}
	return &Client{
		endpoint: endpoint,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Endpoint returns the configured daemon address.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// SetToken sets the bearer token sent on every request. Daemons without
// auth ignore it.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Ping checks the health of the daemon.
func (c *Client) Ping(ctx context.Context) (Status, error) {
	var status Status
	if err := c.do(ctx, "GET", "/v1/health", nil, &status); err != nil {
		return Status{}, err
	}
	return status, nil
}

// FetchGraph pulls the daemon's full graph.
func (c *Client) FetchGraph(ctx context.Context) (*GraphResponse, error) {
	var resp GraphResponse
	if err := c.do(ctx, "GET", "/v1/graph", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateTask creates a task on the daemon. The daemon echoes the stored
// task back, with its own updated_at stamp.
func (c *Client) CreateTask(ctx context.Context, task *graph.Task) (*graph.Task, error) {
	if task.ID == "" || task.Title == "" {
		return nil, fmt.Errorf("invalid task: id and title are required")
	}
	var stored graph.Task
	if err := c.do(ctx, "POST", "/v1/tasks", task, &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

// UpdateTask applies a partial update to a task.
func (c *Client) UpdateTask(ctx context.Context, id string, patch TaskPatch) (*graph.Task, error) {
	var stored graph.Task
	if err := c.do(ctx, "PATCH", "/v1/tasks/"+url.PathEscape(id), patch, &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

// DeleteTask removes a task and its edges.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, "DELETE", "/v1/tasks/"+url.PathEscape(id), nil, nil)
}

// CreateEdge links two tasks.
func (c *Client) CreateEdge(ctx context.Context, rel *graph.Relation) error {
	if rel.Source == "" || rel.Target == "" {
		return fmt.Errorf("invalid edge: source and target are required")
	}
	return c.do(ctx, "POST", "/v1/edges", rel, nil)
}

// DeleteEdge removes the link between two tasks.
func (c *Client) DeleteEdge(ctx context.Context, source, target string) error {
	path := fmt.Sprintf("/v1/edges?source=%s&target=%s", url.QueryEscape(source), url.QueryEscape(target))
	return c.do(ctx, "DELETE", path, nil, nil)
}

// ComputeLayout asks the daemon to lay out its graph for the given
// canvas and returns the coordinates.
func (c *Client) ComputeLayout(ctx context.Context, req LayoutRequest) (*LayoutResponse, error) {
	if req.Width <= 0 || req.Height <= 0 {
		return nil, fmt.Errorf("invalid layout request: canvas has no area")
	}
	var resp LayoutResponse
	if err := c.do(ctx, "POST", "/v1/layout", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do runs one request and decodes the response into out (skipped when
// out is nil). Transport failures come back as UnreachableError, 4xx as
// RejectedError; both survive errors.As through any wrapping.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &UnreachableError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		var er ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&er)
		return &RejectedError{StatusCode: resp.StatusCode, Message: er.Error}
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("daemon error: status %d", resp.StatusCode)
	}

	if out == nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
