package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/claude/repcoach/internal/exercise"
	"github.com/claude/repcoach/internal/replay"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	serverURL := flag.String("server", "", "RepCoach server URL (e.g. https://repcoach.tail1234.ts.net)")
	apiKey := flag.String("api-key", os.Getenv("REPCOACH_AUTH_API_KEY"), "API key for session writes")
	recordingsPath := flag.String("path", "", "path to recordings directory")
	dryRun := flag.Bool("dry-run", false, "run the engine locally instead of sending to the server")
	batchSize := flag.Int("batch-size", 300, "frames per request")
	stateDir := flag.String("state-dir", "", "directory for replay state (default ~/.repcoach-replay)")
	jumpHeight := flag.String("jump-height", "", "jump target height: low, medium or high (default: server setting)")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("repcoach-replay", Version)
		return
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *recordingsPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: repcoach-replay -server <URL> -api-key <key> -path <recordings dir> [-dry-run] [-batch-size N]\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}
	if *serverURL == "" && !*dryRun {
		fmt.Fprintf(os.Stderr, "Error: -server is required (or use -dry-run)\n")
		os.Exit(1)
	}
	*serverURL = strings.TrimRight(*serverURL, "/")

	info, err := os.Stat(*recordingsPath)
	if err != nil || !info.IsDir() {
		log.Error("recordings directory not found", "path", *recordingsPath)
		os.Exit(1)
	}

	engine := exercise.DefaultConfig()
	if *jumpHeight != "" {
		j, ok := exercise.JumpHeight(*jumpHeight)
		if !ok {
			fmt.Fprintf(os.Stderr, "Error: unknown -jump-height %q\n", *jumpHeight)
			os.Exit(1)
		}
		engine.Jump = j
	}

	if *stateDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			log.Error("failed to get home directory", "error", err)
			os.Exit(1)
		}
		*stateDir = filepath.Join(homeDir, ".repcoach-replay")
	}
	state, err := replay.OpenStateDB(*stateDir)
	if err != nil {
		log.Error("failed to open state database", "error", err)
		os.Exit(1)
	}
	defer state.Close()

	var client *replay.Client
	if !*dryRun {
		client = replay.NewClient(*serverURL, *apiKey)
		client.SetJumpHeight(*jumpHeight)
	} else {
		log.Info("DRY RUN mode: recordings run through the local engine and nothing is sent")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := replay.New(client, state, *recordingsPath, *dryRun, *batchSize, engine, log)
	stats, err := r.Run(ctx)
	if err != nil {
		log.Error("replay failed", "error", err)
		printStats(stats)
		os.Exit(1)
	}

	printStats(stats)
	log.Info("replay complete")
}

func printStats(stats *replay.Stats) {
	fmt.Println()
	fmt.Println("=== Replay Summary ===")
	fmt.Printf("  Files total:      %d\n", stats.FilesTotal)
	fmt.Printf("  Files replayed:   %d\n", stats.FilesReplayed)
	fmt.Printf("  Files skipped:    %d (already replayed)\n", stats.FilesSkipped)
	fmt.Printf("  Files errored:    %d\n", stats.FilesErrored)
	fmt.Println()
	fmt.Printf("  Frames sent:      %d\n", stats.FramesSent)
	fmt.Printf("  Repetitions:      %d\n", stats.Totals.Reps)
	fmt.Printf("  Points:           %d\n", stats.Totals.Points)
	fmt.Printf("  Bad moves:        %d\n", stats.Totals.BadMoves)
	fmt.Printf("  Danger reps:      %d\n", stats.Totals.Dangers)
	fmt.Println()
}
