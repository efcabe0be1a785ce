package server

import (
	"context"
	"time"

	"github.com/claude/repcoach/internal/models"
)

// ExpireIdleSessions ends sessions that received no frame for idle, checking
// every interval until ctx is done. Expired sessions are stored as cancelled.
func (s *Server) ExpireIdleSessions(ctx context.Context, idle, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.expireIdle(ctx, now.Add(-idle))
		}
	}
}

func (s *Server) expireIdle(ctx context.Context, cutoff time.Time) int {
	expired := s.sessions.ExpireIdle(cutoff)
	for _, e := range expired {
		err := s.db.EndSession(ctx, e.Session.ID, models.StatusCancelled, e.Totals, time.Now().UTC())
		if err != nil {
			s.log.Error("persist expired session", "session", e.Session.ID, "error", err)
		}
	}
	return len(expired)
}
