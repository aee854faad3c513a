// Package client is a Go SDK for the hackathon leaderboard API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/terra-clan/hackathon-leaderboard/internal/models"
)

// Client is a Go SDK for the leaderboard API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	dialer     *websocket.Dialer
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithAPIKey sets the admin API key sent with every request
func WithAPIKey(apiKey string) Option {
	return func(c *Client) {
		c.apiKey = apiKey
	}
}

// NewClient creates a new leaderboard client. Reads need no API key.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		dialer: websocket.DefaultDialer,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is an error envelope returned by the server
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (HTTP %d): %s - %s", e.StatusCode, e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the server
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// BadgeList is the response of ListBadges
type BadgeList struct {
	Badges []models.Badge `json:"badges"`
	Total  int            `json:"total"`
}

// GetLeaderboard returns the current ranked snapshot
func (c *Client) GetLeaderboard(ctx context.Context) (*models.Snapshot, error) {
	var snap models.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/v1/leaderboard", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// ListBadges returns every badge definition
func (c *Client) ListBadges(ctx context.Context) ([]models.Badge, error) {
	var list BadgeList
	if err := c.do(ctx, http.MethodGet, "/api/v1/badges", nil, &list); err != nil {
		return nil, err
	}
	return list.Badges, nil
}

// GetTeam returns one team with its score history and badges
func (c *Client) GetTeam(ctx context.Context, id string) (*models.TeamDetails, error) {
	var details models.TeamDetails
	if err := c.do(ctx, http.MethodGet, "/api/v1/teams/"+url.PathEscape(id), nil, &details); err != nil {
		return nil, err
	}
	return &details, nil
}

// CreateTeam creates a team
func (c *Client) CreateTeam(ctx context.Context, req models.CreateTeamRequest) (*models.Team, error) {
	var team models.Team
	if err := c.do(ctx, http.MethodPost, "/api/v1/admin/teams", req, &team); err != nil {
		return nil, err
	}
	return &team, nil
}

// DeleteTeam removes a team
func (c *Client) DeleteTeam(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/admin/teams/"+url.PathEscape(id), nil, nil)
}

// AddScore awards (positive) or deducts (negative) points
func (c *Client) AddScore(ctx context.Context, teamID string, points int, reason string) (*models.ScoreEvent, error) {
	req := models.ScoreEventRequest{Points: points, Reason: reason}

	var ev models.ScoreEvent
	if err := c.do(ctx, http.MethodPost, "/api/v1/admin/teams/"+url.PathEscape(teamID)+"/scores", req, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// AwardBadge links a badge to a team
func (c *Client) AwardBadge(ctx context.Context, teamID, badgeID string) (*models.TeamBadge, error) {
	req := models.AwardBadgeRequest{BadgeID: badgeID}

	var tb models.TeamBadge
	if err := c.do(ctx, http.MethodPost, "/api/v1/admin/teams/"+url.PathEscape(teamID)+"/badges", req, &tb); err != nil {
		return nil, err
	}
	return &tb, nil
}

// Refresh forces a re-read of the leaderboard and returns the new snapshot
func (c *Client) Refresh(ctx context.Context) (*models.Snapshot, error) {
	var snap models.Snapshot
	if err := c.do(ctx, http.MethodPost, "/api/v1/admin/leaderboard/refresh", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// Watch streams snapshots to fn until ctx is done, fn returns an error, or
// the server closes the stream. A nil return means ctx was cancelled.
func (c *Client) Watch(ctx context.Context, fn func(models.Snapshot) error) error {
	wsURL := c.baseURL + "/api/v1/leaderboard/ws"
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}

	conn, _, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to stream: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var msg struct {
			Type    string           `json:"type"`
			Data    *models.Snapshot `json:"data"`
			Message string           `json:"message"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("stream read failed: %w", err)
		}

		switch msg.Type {
		case "snapshot":
			if msg.Data == nil {
				continue
			}
			if err := fn(*msg.Data); err != nil {
				return err
			}
		case "error":
			return fmt.Errorf("stream closed by server: %s", msg.Message)
		}
	}
}

// do performs a request and decodes the envelope's data into out
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var result struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(respBody, &result); err != nil {
		if resp.StatusCode >= 400 {
			return &APIError{StatusCode: resp.StatusCode, Code: "http_error", Message: strings.TrimSpace(string(respBody))}
		}
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success || resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Code: "unknown", Message: http.StatusText(resp.StatusCode)}
		if result.Error != nil {
			apiErr.Code = result.Error.Code
			apiErr.Message = result.Error.Message
		}
		return apiErr
	}

	if out != nil && len(result.Data) > 0 {
		if err := json.Unmarshal(result.Data, out); err != nil {
			return fmt.Errorf("failed to unmarshal data: %w", err)
		}
	}

	return nil
}
