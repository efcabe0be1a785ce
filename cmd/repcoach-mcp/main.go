// Command repcoach-mcp serves the RepCoach MCP tools over stdio, reading
// data from a running server's REST API.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/claude/repcoach/internal/mcp"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "RepCoach server URL")
	flag.Parse()

	// stdout carries the protocol.
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	client := mcp.NewHTTPClient(strings.TrimRight(*serverURL, "/"))
	s := mcp.New(client, Version, log)
	log.Info("serving MCP over stdio", "server", *serverURL)
	if err := mcpserver.ServeStdio(s); err != nil {
		fmt.Fprintln(os.Stderr, "mcp:", err)
		os.Exit(1)
	}
}
