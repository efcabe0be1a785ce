package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	repcoach "github.com/claude/repcoach"
	"github.com/claude/repcoach/internal/config"
	"github.com/claude/repcoach/internal/importer"
	"github.com/claude/repcoach/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	recordingsPath := flag.String("path", "", "path to recordings directory (required)")
	login := flag.String("user", "local", "login the imported sessions belong to")
	dryRun := flag.Bool("dry-run", false, "run the engine without inserting into database")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *recordingsPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: repcoach-import -config config.yaml -path /path/to/recordings [-user login] [-dry-run]\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	info, err := os.Stat(*recordingsPath)
	if err != nil || !info.IsDir() {
		log.Error("recordings path does not exist or is not a directory", "path", *recordingsPath)
		os.Exit(1)
	}

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

	ctx := context.Background()

	if *dryRun {
		log.Info("DRY RUN mode: no data will be written to the database")
	}

	db, err := storage.New(ctx, dsn)
	if err != nil {
		log.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("database connected")

	userID, err := db.GetOrCreateUser(ctx, *login, *login)
	if err != nil {
		log.Error("failed to resolve user", "login", *login, "error", err)
		os.Exit(1)
	}

	imp := importer.New(db, cfg.Engine, userID, log, *dryRun)
	stats, err := imp.Import(ctx, *recordingsPath)
	if err != nil {
		log.Error("import failed", "error", err)
		printStats(log, stats)
		os.Exit(1)
	}

	printStats(log, stats)
	log.Info("import complete")
}

func printStats(log *slog.Logger, stats *importer.Stats) {
	log.Info("import stats",
		"files_processed", stats.FilesProcessed,
		"files_skipped", stats.FilesSkipped,
		"files_errored", stats.FilesErrored,
		"frames_read", stats.FramesRead,
		"sessions_inserted", stats.SessionsInserted,
		"reps_inserted", stats.RepsInserted,
		"points", stats.Totals.Points,
		"bad_moves", stats.Totals.BadMoves,
	)
}
