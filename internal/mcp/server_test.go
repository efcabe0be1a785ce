package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/claude/repcoach/internal/models"
)

// fakeDS records the arguments of the last call.
type fakeDS struct {
	exercise models.Exercise
	userID   int
	limit    int
	session  uuid.UUID
}

func (f *fakeDS) GetLeaderboard(_ context.Context, exercise models.Exercise, limit int) ([]models.LeaderboardEntry, error) {
	f.exercise, f.limit = exercise, limit
	return []models.LeaderboardEntry{{Rank: 1, Login: "alice", Exercise: exercise, TotalPoints: 90}}, nil
}

func (f *fakeDS) QueryRecentSessions(_ context.Context, userID int, exercise models.Exercise, limit int) ([]models.SessionRow, error) {
	f.userID, f.exercise, f.limit = userID, exercise, limit
	return []models.SessionRow{}, nil
}

func (f *fakeDS) QuerySessionReps(_ context.Context, sessionID uuid.UUID, userID int) ([]models.RepRow, error) {
	f.session, f.userID = sessionID, userID
	return []models.RepRow{{SessionID: sessionID, Number: 1, Points: 8, Warnings: []string{"knee valgus"}}}, nil
}

func (f *fakeDS) GetUserStats(_ context.Context, userID int) (*models.UserStats, error) {
	f.userID = userID
	return &models.UserStats{UserID: userID, TotalReps: 12}, nil
}

func (f *fakeDS) GetDailyStats(_ context.Context, userID, days int) ([]models.DailyStat, error) {
	f.userID, f.limit = userID, days
	return []models.DailyStat{}, nil
}

func callTool(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content type %T, want TextContent", res.Content[0])
	}
	return text.Text
}

// TestUserIDFromContextDefault verifies the default user ID (1) when no value
// is set in the context.
func TestUserIDFromContextDefault(t *testing.T) {
	ctx := context.Background()
	if id := UserIDFromContext(ctx); id != 1 {
		t.Errorf("UserIDFromContext(empty) = %d, want 1", id)
	}
}

// TestUserIDFromContextSet verifies the user ID is extracted from context
// after being set by WithUserID.
func TestUserIDFromContextSet(t *testing.T) {
	ctx := WithUserID(context.Background(), 42)
	if id := UserIDFromContext(ctx); id != 42 {
		t.Errorf("UserIDFromContext = %d, want 42", id)
	}
}

func TestGetLeaderboardTool(t *testing.T) {
	ds := &fakeDS{}
	h := &handlers{ds: ds, log: slog.New(slog.DiscardHandler)}

	res, err := h.getLeaderboard(context.Background(), callTool(map[string]any{"exercise": "squats", "limit": 5}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", resultText(t, res))
	}
	if ds.exercise != models.Squat || ds.limit != 5 {
		t.Errorf("called with %q limit %d", ds.exercise, ds.limit)
	}
	if !strings.Contains(resultText(t, res), `"login":"alice"`) {
		t.Errorf("result = %s", resultText(t, res))
	}

	for _, args := range []map[string]any{{}, {"exercise": "rowing"}} {
		res, err := h.getLeaderboard(context.Background(), callTool(args))
		if err != nil {
			t.Fatal(err)
		}
		if !res.IsError {
			t.Errorf("args %v: expected tool error", args)
		}
	}
}

// TestToolsUseContextUser verifies personal tools are scoped to the user
// injected by the transport.
func TestToolsUseContextUser(t *testing.T) {
	ds := &fakeDS{}
	h := &handlers{ds: ds, log: slog.New(slog.DiscardHandler)}
	ctx := WithUserID(context.Background(), 7)

	id := uuid.New()
	res, err := h.getSessionReps(ctx, callTool(map[string]any{"session_id": id.String()}))
	if err != nil || res.IsError {
		t.Fatalf("get_session_reps: %v %v", err, res)
	}
	if ds.userID != 7 || ds.session != id {
		t.Errorf("called with user %d session %s", ds.userID, ds.session)
	}

	ds.userID = 0
	if res, _ := h.getUserStats(ctx, callTool(nil)); res.IsError || ds.userID != 7 {
		t.Errorf("get_user_stats user = %d", ds.userID)
	}

	ds.userID = 0
	if res, _ := h.getRecentSessions(ctx, callTool(map[string]any{"exercise": "pushup"})); res.IsError || ds.userID != 7 || ds.exercise != models.Pushup {
		t.Errorf("get_recent_sessions user = %d exercise = %q", ds.userID, ds.exercise)
	}

	if res, _ := h.getDailyStats(ctx, callTool(map[string]any{"days": 400})); !res.IsError {
		t.Error("get_daily_stats accepted 400 days")
	}
	if res, _ := h.getSessionReps(ctx, callTool(map[string]any{"session_id": "nope"})); !res.IsError {
		t.Error("get_session_reps accepted an invalid UUID")
	}
}

func TestLeaderboardResource(t *testing.T) {
	h := &handlers{ds: &fakeDS{}, log: slog.New(slog.DiscardHandler)}
	var req mcp.ReadResourceRequest
	req.Params.URI = "repcoach://leaderboard"

	contents, err := h.leaderboard(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	text := contents[0].(mcp.TextResourceContents)
	var boards map[string][]models.LeaderboardEntry
	if err := json.Unmarshal([]byte(text.Text), &boards); err != nil {
		t.Fatal(err)
	}
	for _, kind := range models.Exercises {
		if len(boards[string(kind)]) != 1 {
			t.Errorf("board %s = %v", kind, boards[string(kind)])
		}
	}
}
