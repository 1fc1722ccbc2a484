package launchlinesdk

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

// Client is a minimal Launchline HTTP API client.
type Client struct {
	BaseURL     string
	StoreID     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, storeID string) *Client {
	return &Client{
		BaseURL: baseURL,
		StoreID: storeID,
		Timeout: 10 * time.Second,
	}
}

// Asset represents the API asset model (partial).
type Asset struct {
	ID         string `json:"id"`
	StoreID    string `json:"store_id"`
	Title      string `json:"title"`
	SKU        string `json:"sku,omitempty"`
	Status     string `json:"status"`
	Strategy   string `json:"strategy,omitempty"`
	DayIndex   int    `json:"day_index"`
	OperatorID string `json:"operator_id,omitempty"`
}

// Member represents a store member with credit standing.
type Member struct {
	ID          string `json:"id"`
	StoreID     string `json:"store_id"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	CreditScore int    `json:"credit_score"`
	CreditLevel string `json:"credit_level"`
}

// Evidence represents one task evidence slot.
type Evidence struct {
	AssetID     string   `json:"asset_id"`
	Day         int      `json:"day"`
	TaskIndex   int      `json:"task_index"`
	Images      []string `json:"images"`
	CompletedAt *string  `json:"completed_at,omitempty"`
}

// Goal represents a planned goal.
type Goal struct {
	ID          string  `json:"id"`
	StoreID     string  `json:"store_id"`
	MemberID    string  `json:"member_id"`
	Title       string  `json:"title"`
	Deadline    string  `json:"deadline"`
	Priority    string  `json:"priority,omitempty"`
	Note        string  `json:"note,omitempty"`
	CompletedAt *string `json:"completed_at,omitempty"`
}

// CreditRecord represents one settled ledger row.
type CreditRecord struct {
	ID       string `json:"id"`
	MemberID string `json:"member_id"`
	Kind     string `json:"kind"`
	CycleKey string `json:"cycle_key"`
	Points   int    `json:"points"`
	Reason   string `json:"reason"`
	NewScore int    `json:"new_score"`
	TS       string `json:"ts"`
}

// Event represents a journal entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	StoreID    string         `json:"store_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	Payload    map[string]any `json:"payload"`
}

// EvaluationReport summarizes a goal evaluation run.
type EvaluationReport struct {
	StoreID     string `json:"store_id"`
	WindowStart string `json:"window_start"`
	WindowEnd   string `json:"window_end"`
	Short       []struct {
		MemberID string `json:"member_id"`
		Count    int    `json:"count"`
		Required int    `json:"required"`
	} `json:"short,omitempty"`
	Overdue []struct {
		GoalID      string `json:"goal_id"`
		MemberID    string `json:"member_id"`
		DaysOverdue int    `json:"days_overdue"`
		Bucket      int    `json:"bucket"`
	} `json:"overdue,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateAsset creates an asset in the store's pending pool.
func (c *Client) CreateAsset(ctx context.Context, title, sku, strategy string) (Asset, error) {
	body := map[string]any{
		"title":    title,
		"sku":      sku,
		"strategy": strategy,
	}
	var resp Asset
	err := c.do(ctx, http.MethodPost, c.storePath("assets"), body, &resp)
	return resp, err
}

// Claim takes an asset from the public pool for a member.
func (c *Client) Claim(ctx context.Context, assetID, memberID string) (Asset, error) {
	body := map[string]any{"member_id": memberID}
	var resp Asset
	endpoint := fmt.Sprintf("v0/assets/%s/claim", url.PathEscape(assetID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// SetStrategy binds an asset to a playbook strategy.
func (c *Client) SetStrategy(ctx context.Context, assetID, strategy string) (Asset, error) {
	body := map[string]any{"strategy": strategy}
	var resp Asset
	endpoint := fmt.Sprintf("v0/assets/%s/strategy", url.PathEscape(assetID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// AttachEvidence adds images to a task slot on the asset's current day.
func (c *Client) AttachEvidence(ctx context.Context, assetID string, day, taskIndex int, images []string) (Evidence, error) {
	body := map[string]any{
		"day":        day,
		"task_index": taskIndex,
		"images":     images,
	}
	var resp Evidence
	endpoint := fmt.Sprintf("v0/assets/%s/evidence", url.PathEscape(assetID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// AdvanceDay moves an asset to its next playbook day.
func (c *Client) AdvanceDay(ctx context.Context, assetID string) (Asset, error) {
	var resp Asset
	endpoint := fmt.Sprintf("v0/assets/%s/advance", url.PathEscape(assetID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// CreateGoal plans a goal for a member.
func (c *Client) CreateGoal(ctx context.Context, memberID, title, deadline string) (Goal, error) {
	body := map[string]any{
		"member_id": memberID,
		"title":     title,
		"deadline":  deadline,
	}
	var resp Goal
	err := c.do(ctx, http.MethodPost, c.storePath("goals"), body, &resp)
	return resp, err
}

// CompleteGoal marks a goal done with a note.
func (c *Client) CompleteGoal(ctx context.Context, goalID, note string, evidence []string) (Goal, error) {
	body := map[string]any{
		"note":     note,
		"evidence": evidence,
	}
	var resp Goal
	endpoint := fmt.Sprintf("v0/goals/%s/complete", url.PathEscape(goalID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// EvaluateGoals runs the periodic goal checks.
func (c *Client) EvaluateGoals(ctx context.Context, grain string, offset int) (EvaluationReport, error) {
	body := map[string]any{
		"grain":  grain,
		"offset": offset,
	}
	var resp EvaluationReport
	err := c.do(ctx, http.MethodPost, c.storePath("goals/evaluate"), body, &resp)
	return resp, err
}

// Members returns the store's members ranked by credit.
func (c *Client) Members(ctx context.Context) ([]Member, error) {
	var resp []Member
	err := c.do(ctx, http.MethodGet, c.storePath("members"), nil, &resp)
	return resp, err
}

// CreditHistory returns a member's ledger rows, newest first.
func (c *Client) CreditHistory(ctx context.Context, memberID string, limit int) ([]CreditRecord, error) {
	endpoint := fmt.Sprintf("v0/members/%s/credits", url.PathEscape(memberID))
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []CreditRecord
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent store events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := c.storePath("events")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
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
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) storePath(p string) string {
	store := url.PathEscape(c.StoreID)
	return fmt.Sprintf("v0/stores/%s/%s", store, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
