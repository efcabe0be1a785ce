package mcp

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/claude/repcoach/internal/models"
)

// parseExercise accepts the canonical names and common spellings. An empty
// value is allowed only when optional is set.
func parseExercise(v string, optional bool) (models.Exercise, error) {
	if v == "" && optional {
		return "", nil
	}
	kind, ok := models.ParseExercise(v)
	if !ok {
		return "", fmt.Errorf("unknown exercise %q (want jump, squat or pushup)", v)
	}
	return kind, nil
}

// --- Tool definitions ---

var toolGetLeaderboard = mcp.NewTool("get_leaderboard",
	mcp.WithDescription("Rank users by total points for one exercise across all finished sessions. Each entry includes total reps, session count and best single session."),
	mcp.WithString("exercise", mcp.Required(), mcp.Description("Exercise to rank"), mcp.Enum("jump", "squat", "pushup")),
	mcp.WithNumber("limit", mcp.Description("Number of entries (1-100). Defaults to 10.")),
)

var toolGetRecentSessions = mcp.NewTool("get_recent_sessions",
	mcp.WithDescription("List the user's most recent exercise sessions, newest first, with totals (reps, points, bad moves, dangerous reps) and status."),
	mcp.WithString("exercise", mcp.Description("Only sessions of this exercise"), mcp.Enum("jump", "squat", "pushup")),
	mcp.WithNumber("limit", mcp.Description("Number of sessions. Defaults to 10.")),
)

var toolGetSessionReps = mcp.NewTool("get_session_reps",
	mcp.WithDescription("Per-repetition detail for one session: points, posture warnings, danger flag, peak displacement and duration."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session UUID (from get_recent_sessions)")),
)

var toolGetUserStats = mcp.NewTool("get_user_stats",
	mcp.WithDescription("Lifetime statistics for the user: totals per exercise, average points per rep, best session, and the most frequent posture warnings."),
)

var toolGetDailyStats = mcp.NewTool("get_daily_stats",
	mcp.WithDescription("Per-day reps, points, bad moves and sessions for each exercise."),
	mcp.WithNumber("days", mcp.Description("Number of days back from today (1-365). Defaults to 30.")),
)

// --- Tool handlers ---

func (h *handlers) getLeaderboard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	v, err := req.RequireString("exercise")
	if err != nil {
		return mcp.NewToolResultError("exercise parameter is required"), nil
	}
	kind, err := parseExercise(v, false)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	entries, err := h.ds.GetLeaderboard(ctx, kind, req.GetInt("limit", 10))
	if err != nil {
		h.log.Error("mcp get_leaderboard", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(entries)
}

func (h *handlers) getRecentSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind, err := parseExercise(req.GetString("exercise", ""), true)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	uid := UserIDFromContext(ctx)
	sessions, err := h.ds.QueryRecentSessions(ctx, uid, kind, req.GetInt("limit", 10))
	if err != nil {
		h.log.Error("mcp get_recent_sessions", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(sessions)
}

func (h *handlers) getSessionReps(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	v, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id parameter is required"), nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return mcp.NewToolResultError("invalid session_id: " + err.Error()), nil
	}

	reps, err := h.ds.QuerySessionReps(ctx, id, UserIDFromContext(ctx))
	if err != nil {
		h.log.Error("mcp get_session_reps", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(reps)
}

func (h *handlers) getUserStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := h.ds.GetUserStats(ctx, UserIDFromContext(ctx))
	if err != nil {
		h.log.Error("mcp get_user_stats", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(stats)
}

func (h *handlers) getDailyStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	days := req.GetInt("days", 30)
	if days < 1 || days > 365 {
		return mcp.NewToolResultError("days must be between 1 and 365"), nil
	}

	stats, err := h.ds.GetDailyStats(ctx, UserIDFromContext(ctx), days)
	if err != nil {
		h.log.Error("mcp get_daily_stats", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(stats)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(v)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
