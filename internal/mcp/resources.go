package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/claude/repcoach/internal/models"
)

func (h *handlers) leaderboard(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	boards := make(map[models.Exercise][]models.LeaderboardEntry, len(models.Exercises))
	for _, kind := range models.Exercises {
		entries, err := h.ds.GetLeaderboard(ctx, kind, 10)
		if err != nil {
			return nil, err
		}
		boards[kind] = entries
	}
	return jsonContents(req, boards)
}

func (h *handlers) myStats(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	stats, err := h.ds.GetUserStats(ctx, UserIDFromContext(ctx))
	if err != nil {
		return nil, err
	}
	return jsonContents(req, stats)
}

func jsonContents(req mcp.ReadResourceRequest, v any) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
