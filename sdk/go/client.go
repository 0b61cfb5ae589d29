package storypointssdk

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

// Client is a minimal story points HTTP API client.
type Client struct {
	BaseURL     string
	BoardID     string
	BearerToken string
	ActorID     string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, boardID string) *Client {
	return &Client{
		BaseURL: baseURL,
		BoardID: boardID,
		Timeout: 10 * time.Second,
	}
}

// Board is the API board model.
type Board struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

// ColumnSummary is the aggregate shown under a column header.
type ColumnSummary struct {
	TotalStoryPoints float64 `json:"total_story_points"`
	EstimatedCount   int     `json:"estimated_count"`
	TotalCount       int     `json:"total_count"`
}

// Card is the per-card outcome of a refresh.
type Card struct {
	CardID         string `json:"card_id"`
	Classification struct {
		Status string  `json:"status"`
		Value  float64 `json:"value"`
		Reason string  `json:"reason"`
		Detail string  `json:"detail"`
	} `json:"classification"`
	Highlight string `json:"highlight"`
}

// Column is one column of a refresh result. Summary is nil for ignored
// columns.
type Column struct {
	Index    int            `json:"index"`
	ColumnID string         `json:"column_id"`
	Name     string         `json:"name"`
	Policy   string         `json:"policy"`
	Summary  *ColumnSummary `json:"summary"`
	Cards    []Card         `json:"cards"`
}

// BoardSummary is nil when the board total is turned off.
type BoardSummary struct {
	TotalStoryPoints    float64  `json:"total_story_points"`
	ExcludedColumnNames []string `json:"excluded_column_names"`
}

// Result is the output of an estimate or refresh call.
type Result struct {
	BoardID string        `json:"board_id"`
	Columns []Column      `json:"columns"`
	Board   *BoardSummary `json:"board"`
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

// ListBoards returns every board.
func (c *Client) ListBoards(ctx context.Context) ([]Board, error) {
	var resp []Board
	err := c.do(ctx, http.MethodGet, "v0/boards", nil, &resp)
	return resp, err
}

// Estimates computes the board totals without recording anything.
func (c *Client) Estimates(ctx context.Context) (Result, error) {
	var resp Result
	err := c.do(ctx, http.MethodGet, c.boardPath("estimates"), nil, &resp)
	return resp, err
}

// Refresh runs one refresh cycle on the server.
func (c *Client) Refresh(ctx context.Context) (Result, error) {
	var resp Result
	err := c.do(ctx, http.MethodPost, c.boardPath("refresh"), nil, &resp)
	return resp, err
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
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) boardPath(p string) string {
	return fmt.Sprintf("v0/boards/%s/%s", url.PathEscape(c.BoardID), strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
