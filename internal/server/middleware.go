package server

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"tailscale.com/client/tailscale/apitype"
)

// APIKeyAuth returns middleware that validates the X-API-Key header.
// Browsers cannot set headers on a WebSocket handshake, so the api_key
// query parameter is accepted as well.
func APIKeyAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key == "" {
				http.Error(w, `{"error":"missing API key"}`, http.StatusUnauthorized)
				return
			}
			if key != apiKey {
				http.Error(w, `{"error":"invalid API key"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogging returns middleware that logs each request.
func RequestLogging(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			log.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration", time.Since(start).String(),
			)
		})
	}
}

// countRequests increments the request counter once metrics are attached.
func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.metrics.CounterRequests.WithLabelValues(r.Method, strconv.Itoa(sw.status)).Inc()
	})
}

// CORS adds permissive CORS headers for local development.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusWriter wraps ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush lets streamed MCP responses through.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack is required for the WebSocket upgrade.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// --- Identity ---

type ctxKey int

const (
	userIDKey ctxKey = iota
	userInfoKey
)

// UserInfo is the caller's identity as shown by /api/v1/me.
type UserInfo struct {
	UserID      int    `json:"user_id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

var devUser = UserInfo{UserID: 1, Login: "local", DisplayName: "Local Dev User"}

// WhoIsClient resolves a tailnet peer address to its owner. The tsnet
// local client implements it.
type WhoIsClient interface {
	WhoIs(ctx context.Context, remoteAddr string) (*apitype.WhoIsResponse, error)
}

// UserResolver maps a Tailscale login to a local user ID.
type UserResolver interface {
	GetOrCreateUser(ctx context.Context, login, displayName string) (int, error)
}

// DevIdentity runs every request as user 1 (seeded by the migrations).
func DevIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), devUser)))
	})
}

// TailscaleIdentity identifies the caller by their tailnet login and
// provisions a local user on first contact.
func TailscaleIdentity(whois WhoIsClient, users UserResolver, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			who, err := whois.WhoIs(r.Context(), r.RemoteAddr)
			if err != nil {
				log.Warn("whois failed", "remote", r.RemoteAddr, "error", err)
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unknown tailnet peer"})
				return
			}
			if who.UserProfile == nil || who.UserProfile.LoginName == "" {
				writeJSON(w, http.StatusForbidden, map[string]string{"error": "tagged nodes have no user identity"})
				return
			}
			info := UserInfo{Login: who.UserProfile.LoginName, DisplayName: who.UserProfile.DisplayName}
			info.UserID, err = users.GetOrCreateUser(r.Context(), info.Login, info.DisplayName)
			if err != nil {
				log.Error("user lookup failed", "login", info.Login, "error", err)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "user lookup failed"})
				return
			}
			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), info)))
		})
	}
}

// identity picks the tailnet or dev identity depending on how the server
// was started.
func (s *Server) identity(next http.Handler) http.Handler {
	dev := DevIdentity(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.whois == nil {
			dev.ServeHTTP(w, r)
			return
		}
		TailscaleIdentity(s.whois, s.db, s.log)(next).ServeHTTP(w, r)
	})
}

func withUser(ctx context.Context, info UserInfo) context.Context {
	ctx = context.WithValue(ctx, userIDKey, info.UserID)
	return context.WithValue(ctx, userInfoKey, info)
}

// UserID returns the caller's user ID, defaulting to the dev user.
func UserID(ctx context.Context) int {
	if id, ok := ctx.Value(userIDKey).(int); ok {
		return id
	}
	return devUser.UserID
}

func userIDFromContext(r *http.Request) int {
	return UserID(r.Context())
}

func userInfoFromContext(r *http.Request) UserInfo {
	if info, ok := r.Context().Value(userInfoKey).(UserInfo); ok {
		return info
	}
	return devUser
}
