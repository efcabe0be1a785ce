package mcp

import (
	"context"

	"github.com/google/uuid"

	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/storage"
)

// DataSource abstracts the data layer for MCP tools. Both *storage.DB (local)
// and HTTPClient (remote via REST API) satisfy this interface.
type DataSource interface {
	GetLeaderboard(ctx context.Context, exercise models.Exercise, limit int) ([]models.LeaderboardEntry, error)
	QueryRecentSessions(ctx context.Context, userID int, exercise models.Exercise, limit int) ([]models.SessionRow, error)
	QuerySessionReps(ctx context.Context, sessionID uuid.UUID, userID int) ([]models.RepRow, error)
	GetUserStats(ctx context.Context, userID int) (*models.UserStats, error)
	GetDailyStats(ctx context.Context, userID, days int) ([]models.DailyStat, error)
}

// Compile-time check: *storage.DB satisfies DataSource.
var _ DataSource = (*storage.DB)(nil)
