// Package cmd provides the CLI commands of the chatbot server.
//
// Commands:
//   - serve:   HTTP API server with SSE chat streaming
//   - migrate: apply pending database migrations and exit
//   - version: print build information
//
// Signal handling and graceful shutdown are implemented via context
// cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/SKNETWORKS-FAMILY-AICAMP/SKN13-FINAL-1TEAM-sub000/internal/log"
)

// Execute is the main entry point for the CLI.
func Execute() error {
	logger := log.New(log.Config{
		Level: levelFromEnv(),
		JSON:  os.Getenv("LOG_FORMAT") == "json",
	})

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe(logger)
	case "migrate":
		return runMigrate(logger)
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

func levelFromEnv() slog.Level {
	if os.Getenv("DEBUG") != "" {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(os.Getenv("LOG_LEVEL"))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("chatbot - document-aware assistant backend")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  chatbot serve      Start the HTTP API server")
	fmt.Println("  chatbot migrate    Apply database migrations and exit")
	fmt.Println("  chatbot version    Show version information")
	fmt.Println("  chatbot help       Show this help")
}
