package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vmatresu/claimd/internal/cmd/cli"
	logpkg "github.com/vmatresu/claimd/pkg/log"
)

func main() {
	// Respect CLAIMD_LOG_LEVEL / CLAIMD_LOG_FORMAT for all commands
	level := os.Getenv("CLAIMD_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	var formatter logpkg.Formatter = &logpkg.TextFormatter{}
	if os.Getenv("CLAIMD_LOG_FORMAT") == "json" {
		formatter = &logpkg.JSONFormatter{}
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(formatter),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)

	// Redirect standard library logs (used by Pebble) to our logger
	logpkg.RedirectStdLog(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rootCmd := cli.NewRootCommand(logger)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "claimd:", err)
		os.Exit(cli.ExitCode(err))
	}
}
