package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/claude/repcoach/internal/metrics"
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/session"
	"github.com/claude/repcoach/internal/storage"
)

// Store is the persistence used by the HTTP handlers. *storage.DB
// implements it.
type Store interface {
	GetOrCreateUser(ctx context.Context, login, displayName string) (int, error)
	GetUser(ctx context.Context, id int) (*storage.User, error)
	UpdateUserProfile(ctx context.Context, id int, displayName string, age *int) error

	CreateSession(ctx context.Context, row models.SessionRow) (bool, error)
	UpdateSessionTotals(ctx context.Context, id uuid.UUID, t models.Totals) error
	SetSessionBaseline(ctx context.Context, id uuid.UUID, baseline any) error
	EndSession(ctx context.Context, id uuid.UUID, status string, t models.Totals, endedAt time.Time) error
	GetSession(ctx context.Context, id uuid.UUID, userID int) (*models.SessionRow, error)
	QueryRecentSessions(ctx context.Context, userID int, exercise models.Exercise, limit int) ([]models.SessionRow, error)

	InsertRepEvent(ctx context.Context, row models.RepRow) (bool, error)
	QuerySessionReps(ctx context.Context, sessionID uuid.UUID, userID int) ([]models.RepRow, error)

	GetLeaderboard(ctx context.Context, exercise models.Exercise, limit int) ([]models.LeaderboardEntry, error)
	GetUserStats(ctx context.Context, userID int) (*models.UserStats, error)
	GetDailyStats(ctx context.Context, userID, days int) ([]models.DailyStat, error)
	QueryImportLogs(ctx context.Context, userID, limit int) ([]storage.ImportLog, error)
}

var _ Store = (*storage.DB)(nil)

// Server holds dependencies for HTTP handlers.
type Server struct {
	db       Store
	sessions *session.Manager
	log      *slog.Logger
	apiKey   string
	router   chi.Router

	whois   WhoIsClient
	metrics *metrics.Manager
}

// New creates a new Server with all routes configured.
func New(db Store, sessions *session.Manager, apiKey string, log *slog.Logger) *Server {
	s := &Server{
		db:       db,
		sessions: sessions,
		log:      log,
		apiKey:   apiKey,
		router:   chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(s.countRequests)
	s.router.Use(CORS)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.identity)

		// Frame-carrying endpoints (API key required)
		r.Group(func(r chi.Router) {
			r.Use(APIKeyAuth(s.apiKey))
			r.Post("/sessions", s.handleStartSession)
			r.Post("/sessions/{id}/frames", s.handleFrames)
			r.Get("/sessions/{id}/stream", s.handleStream)
			r.Delete("/sessions/{id}", s.handleEndSession)
		})

		// Read endpoints (no API key; tsnet handles access)
		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Get("/sessions/{id}/calibration", s.handleCalibration)
		r.Get("/sessions/{id}/reps", s.handleSessionReps)
		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/stats", s.handleStats)
		r.Get("/stats/daily", s.handleDailyStats)
		r.Get("/imports", s.handleImportLogs)
		r.Get("/me", s.handleMe)
		r.Put("/me/profile", s.handleUpdateProfile)
	})
}

// SetTailscale enables per-request identity lookup through the tailnet.
// Without it every request runs as the local dev user.
func (s *Server) SetTailscale(whois WhoIsClient) {
	s.whois = whois
}

// SetMetrics counts requests into m and exposes reg at /metrics.
func (s *Server) SetMetrics(m *metrics.Manager, reg *prometheus.Registry) {
	s.metrics = m
	s.router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
}

// SetMCP mounts an MCP HTTP handler at /mcp. The handler sees the caller's
// user ID through the request context.
func (s *Server) SetMCP(h http.Handler) {
	s.router.With(s.identity).Handle("/mcp", h)
}
