package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/claude/repcoach/internal/models"
)

// HTTPClient implements DataSource by calling the RepCoach REST API.
// Used for remote MCP mode where the binary runs locally (stdio) but
// data lives on the remote server (accessed over Tailscale). The server
// resolves the caller from the tailnet, so the userID arguments are ignored.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// Compile-time check: HTTPClient satisfies DataSource.
var _ DataSource = (*HTTPClient)(nil)

// NewHTTPClient creates an HTTPClient targeting the given base URL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) get(ctx context.Context, path string, params url.Values, v any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("httpclient: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("httpclient: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("httpclient: read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("httpclient: %s returned %d: %s", path, resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("httpclient: decode %s: %w", path, err)
	}
	return nil
}

func (c *HTTPClient) GetLeaderboard(ctx context.Context, exercise models.Exercise, limit int) ([]models.LeaderboardEntry, error) {
	params := url.Values{}
	params.Set("exercise", string(exercise))
	params.Set("limit", strconv.Itoa(limit))

	var entries []models.LeaderboardEntry
	if err := c.get(ctx, "/api/v1/leaderboard", params, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *HTTPClient) QueryRecentSessions(ctx context.Context, _ int, exercise models.Exercise, limit int) ([]models.SessionRow, error) {
	params := url.Values{}
	if exercise != "" {
		params.Set("exercise", string(exercise))
	}
	params.Set("limit", strconv.Itoa(limit))

	var rows []models.SessionRow
	if err := c.get(ctx, "/api/v1/sessions", params, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *HTTPClient) QuerySessionReps(ctx context.Context, sessionID uuid.UUID, _ int) ([]models.RepRow, error) {
	var reps []models.RepRow
	if err := c.get(ctx, "/api/v1/sessions/"+sessionID.String()+"/reps", nil, &reps); err != nil {
		return nil, err
	}
	return reps, nil
}

func (c *HTTPClient) GetUserStats(ctx context.Context, _ int) (*models.UserStats, error) {
	var stats models.UserStats
	if err := c.get(ctx, "/api/v1/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *HTTPClient) GetDailyStats(ctx context.Context, _ int, days int) ([]models.DailyStat, error) {
	params := url.Values{}
	params.Set("days", strconv.Itoa(days))

	var stats []models.DailyStat
	if err := c.get(ctx, "/api/v1/stats/daily", params, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}
