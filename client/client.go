// Package client is the Go client for the orbit API. It carries the
// optimistic-state controllers the web UI relies on: an item
// controller that hides network latency behind placeholder records,
// and a scheduling board with fire-and-forget persistence.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bytedance/sonic"

	"orbit-api/domain"
	"orbit-api/storage"
)

// APIError carries the HTTP status and server error message of a
// failed call.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
}

// Client is a bearer-token HTTP client for the orbit API.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// New creates a Client for the given base URL and bearer token.
func New(base, token string) *Client {
	return &Client{
		base:  base,
		token: token,
		http:  &http.Client{Timeout: 30 * time.Second},
	}
}

type envelope struct {
	Success bool                   `json:"success"`
	Data    sonic.NoCopyRawMessage `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, headers map[string]string, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}

	var env envelope
	if err := sonic.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("api: malformed response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 || !env.Success {
		return &APIError{Status: resp.StatusCode, Message: env.Error}
	}
	if out != nil && len(env.Data) > 0 {
		return sonic.Unmarshal(env.Data, out)
	}
	return nil
}

// ItemFilter narrows a workspace listing.
type ItemFilter struct {
	Status     domain.ItemStatus
	Origin     domain.ItemOrigin
	SourceType string
	SourceID   string
	Tree       bool
}

func (f ItemFilter) query() string {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.Origin != "" {
		q.Set("origin", string(f.Origin))
	}
	if f.SourceType != "" {
		q.Set("source_type", f.SourceType)
	}
	if f.SourceID != "" {
		q.Set("source_id", f.SourceID)
	}
	if f.Tree {
		q.Set("tree", "1")
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// CreateItemRequest mirrors the create payload.
type CreateItemRequest struct {
	Text             string            `json:"text"`
	ParentID         string            `json:"parent_id,omitempty"`
	Status           domain.ItemStatus `json:"status,omitempty"`
	Origin           domain.ItemOrigin `json:"origin,omitempty"`
	ScheduledFor     string            `json:"scheduled_for,omitempty"`
	AIGenerated      bool              `json:"ai_generated,omitempty"`
	IsBreakdown      bool              `json:"is_breakdown,omitempty"`
	EstimatedMinutes int               `json:"estimated_minutes,omitempty"`
	SourceType       string            `json:"source_type,omitempty"`
	SourceID         string            `json:"source_id,omitempty"`
}

// ListItems fetches the caller's workspace.
func (c *Client) ListItems(ctx context.Context, f ItemFilter) ([]domain.Item, error) {
	var items []domain.Item
	err := c.do(ctx, http.MethodGet, "/api/workspace"+f.query(), nil, nil, &items)
	return items, err
}

// CreateItem creates one item. A non-empty idempotencyKey guards
// against double-applied retries.
func (c *Client) CreateItem(ctx context.Context, req CreateItemRequest, idempotencyKey string) (domain.Item, error) {
	var headers map[string]string
	if idempotencyKey != "" {
		headers = map[string]string{"X-Idempotency-Key": idempotencyKey}
	}
	var created domain.Item
	err := c.do(ctx, http.MethodPost, "/api/workspace", req, headers, &created)
	return created, err
}

// UpdateItem merges a partial field set into one item.
func (c *Client) UpdateItem(ctx context.Context, id string, upd domain.ItemUpdate) (domain.Item, error) {
	var updated domain.Item
	err := c.do(ctx, http.MethodPut, "/api/workspace/"+id, upd, nil, &updated)
	return updated, err
}

// DeleteItem removes one item; cascade also removes its subtasks.
func (c *Client) DeleteItem(ctx context.Context, id string, cascade bool) error {
	path := "/api/workspace/" + id
	if cascade {
		path += "?cascade=true"
	}
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// ClearWorkspace deletes every item the caller owns.
func (c *Client) ClearWorkspace(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/workspace", nil, nil, nil)
}

// ListHabits fetches active habits.
func (c *Client) ListHabits(ctx context.Context) ([]domain.Habit, error) {
	var habits []domain.Habit
	err := c.do(ctx, http.MethodGet, "/api/habits", nil, nil, &habits)
	return habits, err
}

// CreateHabit creates a habit.
func (c *Client) CreateHabit(ctx context.Context, name string) (domain.Habit, error) {
	var habit domain.Habit
	err := c.do(ctx, http.MethodPost, "/api/habits", map[string]string{"name": name}, nil, &habit)
	return habit, err
}

// DeleteHabit soft-deletes a habit; hard removes the row.
func (c *Client) DeleteHabit(ctx context.Context, id string, hard bool) error {
	path := "/api/habits/" + id
	if hard {
		path += "?hard=true"
	}
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// ToggleCheck flips the check state for a habit on a day.
func (c *Client) ToggleCheck(ctx context.Context, habitID, date string) (domain.HabitCheck, error) {
	var check domain.HabitCheck
	err := c.do(ctx, http.MethodPost, "/api/habits/"+habitID+"/checks", map[string]string{"date": date}, nil, &check)
	return check, err
}

// ListChecks fetches check rows within [start, end].
func (c *Client) ListChecks(ctx context.Context, start, end string) ([]domain.HabitCheck, error) {
	var checks []domain.HabitCheck
	err := c.do(ctx, http.MethodGet, "/api/habits/checks?start="+start+"&end="+end, nil, nil, &checks)
	return checks, err
}

// HabitStats fetches the server-computed dashboard aggregates.
func (c *Client) HabitStats(ctx context.Context) (domain.HabitStats, error) {
	var stats domain.HabitStats
	err := c.do(ctx, http.MethodGet, "/api/habits/stats", nil, nil, &stats)
	return stats, err
}

// ListProjects fetches the caller's projects.
func (c *Client) ListProjects(ctx context.Context) ([]domain.Project, error) {
	var projects []domain.Project
	err := c.do(ctx, http.MethodGet, "/api/projects", nil, nil, &projects)
	return projects, err
}

// CreateProject creates a project.
func (c *Client) CreateProject(ctx context.Context, name, description string) (domain.Project, error) {
	var p domain.Project
	err := c.do(ctx, http.MethodPost, "/api/projects", map[string]string{"name": name, "description": description}, nil, &p)
	return p, err
}

// UpdateProject merges a partial project field set.
func (c *Client) UpdateProject(ctx context.Context, id string, upd storage.ProjectUpdate) error {
	return c.do(ctx, http.MethodPut, "/api/projects/"+id, upd, nil, nil)
}

// DeleteProject removes a project.
func (c *Client) DeleteProject(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/projects/"+id, nil, nil, nil)
}

// FetchSettings retrieves board layout settings.
func (c *Client) FetchSettings(ctx context.Context) (domain.Settings, error) {
	var s domain.Settings
	err := c.do(ctx, http.MethodGet, "/api/settings", nil, nil, &s)
	return s, err
}

// SaveSettings replaces board layout settings.
func (c *Client) SaveSettings(ctx context.Context, s domain.Settings) error {
	return c.do(ctx, http.MethodPut, "/api/settings", s, nil, nil)
}

// Organize structures a captured note via the server's assistant.
func (c *Client) Organize(ctx context.Context, text string) (domain.CapturePreview, error) {
	var preview domain.CapturePreview
	err := c.do(ctx, http.MethodPost, "/api/capture/organize", map[string]string{"text": text}, nil, &preview)
	return preview, err
}
