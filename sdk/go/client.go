package goalkeepersdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Goalkeeper HTTP API client.
type Client struct {
	BaseURL    string
	BasePath   string
	Token      string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// Goal mirrors the API goal model.
type Goal struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
	CreatedAt string `json:"created_at"`
}

// Board is the goal list split into pending and completed goals.
type Board struct {
	Pending   []Goal `json:"pending"`
	Completed []Goal `json:"completed"`
	Total     int    `json:"total"`
	Seq       int64  `json:"seq"`
}

// Event represents a journaled change.
type Event struct {
	ID     int64          `json:"id"`
	Seq    int64          `json:"seq"`
	TS     string         `json:"ts"`
	Kind   string         `json:"kind"`
	GoalID string         `json:"goal_id"`
	Goal   map[string]any `json:"goal"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

type Stats struct {
	Pending   int            `json:"pending"`
	Completed int            `json:"completed"`
	Total     int            `json:"total"`
	Changes   map[string]int `json:"changes"`
}

// EventQuery narrows ListEvents.
type EventQuery struct {
	Kind   string
	GoalID string
	Limit  int
	Cursor string
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// AddGoal adds a goal. Blank text is ignored by the server and reported as
// added=false with a zero Goal.
func (c *Client) AddGoal(ctx context.Context, text string) (Goal, bool, error) {
	var resp struct {
		Added bool  `json:"added"`
		Goal  *Goal `json:"goal"`
	}
	if err := c.do(ctx, http.MethodPost, "goals", map[string]any{"text": text}, &resp); err != nil {
		return Goal{}, false, err
	}
	if !resp.Added || resp.Goal == nil {
		return Goal{}, false, nil
	}
	return *resp.Goal, true, nil
}

// ListGoals returns the current board.
func (c *Client) ListGoals(ctx context.Context) (Board, error) {
	var resp Board
	err := c.do(ctx, http.MethodGet, "goals", nil, &resp)
	return resp, err
}

// GetGoal fetches a goal by id.
func (c *Client) GetGoal(ctx context.Context, id string) (Goal, error) {
	var resp Goal
	err := c.do(ctx, http.MethodGet, "goals/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ToggleGoal flips a goal. Unknown ids report changed=false.
func (c *Client) ToggleGoal(ctx context.Context, id string) (Goal, bool, error) {
	var resp struct {
		Changed bool  `json:"changed"`
		Goal    *Goal `json:"goal"`
	}
	if err := c.do(ctx, http.MethodPost, "goals/"+url.PathEscape(id)+"/toggle", nil, &resp); err != nil {
		return Goal{}, false, err
	}
	if !resp.Changed || resp.Goal == nil {
		return Goal{}, false, nil
	}
	return *resp.Goal, true, nil
}

// RemoveGoal deletes a goal. Removing an unknown id is not an error.
func (c *Client) RemoveGoal(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "goals/"+url.PathEscape(id), nil, nil)
}

// ListEvents returns one page of journaled changes, newest first.
func (c *Client) ListEvents(ctx context.Context, q EventQuery) (PaginatedEvents, error) {
	params := url.Values{}
	if q.Kind != "" {
		params.Set("kind", q.Kind)
	}
	if q.GoalID != "" {
		params.Set("goal_id", q.GoalID)
	}
	if q.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", q.Limit))
	}
	if q.Cursor != "" {
		params.Set("cursor", q.Cursor)
	}
	endpoint := "events"
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var resp Stats
	err := c.do(ctx, http.MethodGet, "stats", nil, &resp)
	return resp, err
}

// Health returns nil when the server answers its health check.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "health", nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return decodeError(resp.StatusCode, b)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func decodeError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	}
	return apiErr
}

func (c *Client) base() string {
	basePath := strings.Trim(c.BasePath, "/")
	if basePath == "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return strings.TrimRight(c.BaseURL, "/") + "/" + basePath
}
