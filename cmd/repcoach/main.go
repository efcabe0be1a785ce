package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/pgxpoolprometheus"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"tailscale.com/tsnet"

	repcoach "github.com/claude/repcoach"
	"github.com/claude/repcoach/internal/config"
	"github.com/claude/repcoach/internal/mcp"
	"github.com/claude/repcoach/internal/metrics"
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/server"
	"github.com/claude/repcoach/internal/session"
	"github.com/claude/repcoach/internal/storage"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	migrateOnly := flag.Bool("migrate-only", false, "run migrations and exit")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	log.Info("RepCoach starting", "version", Version)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	dsn := cfg.Database.DSN()
	if err := storage.RunMigrations(dsn, repcoach.Migrations, "migrations"); err != nil {
		log.Error("migration failed", "error", err)
		os.Exit(1)
	}
	log.Info("migrations applied")

	if *migrateOnly {
		log.Info("migrate-only: exiting")
		return
	}

	ctx := context.Background()
	db, err := storage.New(ctx, dsn)
	if err != nil {
		log.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("database connected")

	// Metrics: pool stats plus engine counters on one registry.
	reg := metrics.SetupPrometheus(pgxpoolprometheus.NewCollector(db.Pool, map[string]string{"db_name": cfg.Database.Name}))
	engineMetrics := metrics.NewManager("repcoach", "engine", reg)

	sessions, err := session.NewManager(cfg.Engine, log, engineMetrics)
	if err != nil {
		log.Error("invalid engine config", "error", err)
		os.Exit(1)
	}

	srv := server.New(db, sessions, cfg.Auth.APIKey, log)
	srv.SetMetrics(engineMetrics, reg)

	// MCP over streamable HTTP; tools see the caller resolved by the identity middleware.
	mcpSrv := mcp.New(db, Version, log)
	srv.SetMCP(mcpserver.NewStreamableHTTPServer(mcpSrv,
		mcpserver.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			return mcp.WithUserID(ctx, server.UserID(r.Context()))
		}),
	))

	var listener net.Listener
	var tsServer *tsnet.Server

	if cfg.Tailscale.Enabled {
		tsServer = &tsnet.Server{
			Hostname: cfg.Tailscale.Hostname,
			Dir:      cfg.Tailscale.StateDir,
		}
		if err := tsServer.Start(); err != nil {
			log.Error("tsnet start failed", "error", err)
			os.Exit(1)
		}
		defer tsServer.Close()

		lc, err := tsServer.LocalClient()
		if err != nil {
			log.Error("tsnet local client failed", "error", err)
			os.Exit(1)
		}
		srv.SetTailscale(lc)

		listener, err = tsServer.Listen("tcp", ":80")
		if err != nil {
			log.Error("tsnet listen failed", "error", err)
			os.Exit(1)
		}
		log.Info("tsnet server starting", "hostname", cfg.Tailscale.Hostname)
	} else {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		listener, err = net.Listen("tcp", addr)
		if err != nil {
			log.Error("listen failed", "addr", addr, "error", err)
			os.Exit(1)
		}
		log.Info("server starting", "addr", addr, "mode", "dev (no tailscale)")
	}

	httpSrv := &http.Server{Handler: srv}

	expireCtx, stopExpiry := context.WithCancel(ctx)
	defer stopExpiry()
	if idle := cfg.Server.SessionIdleTimeout; idle > 0 {
		go srv.ExpireIdleSessions(expireCtx, idle, time.Minute)
	}

	go func() {
		if err := httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down", "signal", sig)
	stopExpiry()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	for _, s := range sessions.Active() {
		if _, totals, err := sessions.End(s.ID); err == nil {
			if err := db.EndSession(shutdownCtx, s.ID, models.StatusCancelled, totals, time.Now().UTC()); err != nil {
				log.Warn("failed to close session", "session", s.ID, "error", err)
			}
		}
	}
	log.Info("server stopped")
}
