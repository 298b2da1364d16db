package main

import (
	"context"
	"flag"
	"os"

	"chat-state-be/internal/bootstrap"
	"chat-state-be/internal/config"
	"chat-state-be/internal/constant"

	"github.com/fatih/color"
)

// One-shot manual cleanup of sessions older than -max-age-hours, independent of
// the TTL expiry Redis applies on its own.
func main() {
	maxAge := flag.Int("max-age-hours", constant.DefaultCleanupMaxAgeHours, "delete sessions created more than this many hours ago")
	flag.Parse()

	cfg := config.Load()
	container, err := bootstrap.NewContainer(cfg)
	if err != nil {
		color.Red("Bootstrap failed: %v", err)
		os.Exit(1)
	}
	defer container.Close()

	ctx := context.Background()
	svc := container.SessionStateService

	if container.HealthMonitor.IsRemoteAvailable() {
		color.Green("Backend: redis")
	} else {
		// Nothing outlives the process in the fallback store, so there is nothing to clean.
		color.Yellow("Redis unreachable (%s); only the empty local fallback is available", container.HealthMonitor.Status().LastError)
	}

	color.Cyan("Cleaning sessions older than %d hours...", *maxAge)
	cleaned, err := svc.CleanupOldSessions(ctx, *maxAge)
	if err != nil {
		color.Red("Cleanup failed: %v", err)
		os.Exit(1)
	}

	stats, err := svc.GetSessionStats(ctx)
	if err != nil {
		color.Red("Reading stats failed: %v", err)
		os.Exit(1)
	}

	color.Green("Cleaned %d sessions", cleaned)
	color.White("Remaining: %d sessions, %d conversations, %d messages",
		stats.TotalSessions, stats.TotalConversations, stats.TotalMessages)
}
