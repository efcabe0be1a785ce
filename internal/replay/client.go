package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/pose"
)

// ErrAlreadyReplayed is returned when the server already holds a session
// for the recording.
var ErrAlreadyReplayed = errors.New("recording already replayed")

// Client sends recordings to the RepCoach server over HTTP.
type Client struct {
	serverURL  string
	apiKey     string
	httpClient *http.Client
	attempts   int
	backoff    time.Duration
	jumpHeight string
}

// NewClient creates a new HTTP client for the RepCoach server.
func NewClient(serverURL, apiKey string) *Client {
	return &Client{
		serverURL: strings.TrimRight(serverURL, "/"),
		apiKey:    apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		attempts: 3,
		backoff:  time.Second,
	}
}

// SetJumpHeight makes new jump sessions use the named target height
// (low, medium or high) instead of the server's default.
func (c *Client) SetJumpHeight(name string) {
	c.jumpHeight = name
}

type sessionInfo struct {
	ID uuid.UUID `json:"id"`
}

// FramesResult is the server's answer to one batch of frames.
type FramesResult struct {
	Events []models.RepEvent `json:"events"`
	Totals models.Totals     `json:"totals"`
}

type endResult struct {
	Status string        `json:"status"`
	Totals models.Totals `json:"totals"`
}

// StartSession opens a server session for a recording.
func (c *Client) StartSession(ctx context.Context, kind models.Exercise, recordingID uuid.UUID) (uuid.UUID, error) {
	body := map[string]any{"exercise": kind, "recording_id": recordingID}
	if c.jumpHeight != "" && kind == models.Jump {
		body["jump_height"] = c.jumpHeight
	}
	var info sessionInfo
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions", body, http.StatusCreated, &info); err != nil {
		return uuid.Nil, err
	}
	return info.ID, nil
}

// SendFrames posts one batch of frames to a session.
func (c *Client) SendFrames(ctx context.Context, id uuid.UUID, frames []pose.Frame) (*FramesResult, error) {
	var res FramesResult
	body := map[string]any{"frames": frames}
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions/"+id.String()+"/frames", body, http.StatusOK, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// EndSession closes a session. cancel marks it cancelled instead of completed.
func (c *Client) EndSession(ctx context.Context, id uuid.UUID, cancel bool) (models.Totals, error) {
	path := "/api/v1/sessions/" + id.String()
	if cancel {
		path += "?status=" + models.StatusCancelled
	}
	var res endResult
	if err := c.do(ctx, http.MethodDelete, path, nil, http.StatusOK, &res); err != nil {
		return models.Totals{}, err
	}
	return res.Totals, nil
}

// do sends a JSON request. Network errors and 5xx responses are retried
// with exponential backoff; other failures are returned at once.
func (c *Client) do(ctx context.Context, method, path string, in any, want int, out any) error {
	var data []byte
	if in != nil {
		var err error
		if data, err = json.Marshal(in); err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
	}

	var lastErr error
	for attempt := range c.attempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff << uint(attempt-1)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-API-Key", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == want:
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("decoding %s response: %w", path, err)
			}
			return nil
		case resp.StatusCode == http.StatusConflict:
			return fmt.Errorf("%w: %s", ErrAlreadyReplayed, body)
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("%s %s failed (status %d): %s", method, path, resp.StatusCode, body)
		default:
			return fmt.Errorf("%s %s failed (status %d): %s", method, path, resp.StatusCode, body)
		}
	}

	return fmt.Errorf("after %d attempts: %w", c.attempts, lastErr)
}
