package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type contextKey int

const userIDKey contextKey = iota

// UserIDFromContext extracts the user ID injected by the transport layer.
func UserIDFromContext(ctx context.Context) int {
	if id, ok := ctx.Value(userIDKey).(int); ok {
		return id
	}
	return 1
}

// WithUserID returns a context with the given user ID.
func WithUserID(ctx context.Context, userID int) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// New creates an MCP server with all tools and resources registered.
func New(ds DataSource, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("RepCoach", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("RepCoach exercise server. Query jump, squat and push-up sessions, per-repetition posture feedback, personal statistics and leaderboards. Personal data is scoped to the authenticated user."),
	)

	h := &handlers{ds: ds, log: log}

	// Tools
	s.AddTools(
		server.ServerTool{Tool: toolGetLeaderboard, Handler: h.getLeaderboard},
		server.ServerTool{Tool: toolGetRecentSessions, Handler: h.getRecentSessions},
		server.ServerTool{Tool: toolGetSessionReps, Handler: h.getSessionReps},
		server.ServerTool{Tool: toolGetUserStats, Handler: h.getUserStats},
		server.ServerTool{Tool: toolGetDailyStats, Handler: h.getDailyStats},
	)

	// Resources
	s.AddResources(
		server.ServerResource{Resource: resLeaderboard, Handler: h.leaderboard},
		server.ServerResource{Resource: resMyStats, Handler: h.myStats},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	ds  DataSource
	log *slog.Logger
}

// --- Resource definitions ---

var resLeaderboard = mcp.NewResource(
	"repcoach://leaderboard",
	"Leaderboard",
	mcp.WithResourceDescription("Top ten users by total points for each exercise"),
	mcp.WithMIMEType("application/json"),
)

var resMyStats = mcp.NewResource(
	"repcoach://my_stats",
	"My Stats",
	mcp.WithResourceDescription("Lifetime totals per exercise and the most frequent posture warnings"),
	mcp.WithMIMEType("application/json"),
)
