// Command pagemon checks a registry of web pages and feeds for changes and
// posts first sightings and updates to a Discord webhook.
//
// Usage:
//
//	pagemon run --registry targets.csv --db state/pagemon.db
//	pagemon watch --cron "*/30 * * * *"
//	pagemon snapshots list
//	pagemon snapshots forget jma_extra
//	pagemon targets
//
// Configuration comes from an optional YAML file (--config), then the
// environment (DISCORD_WEBHOOK_URL, PAGEMON_REGISTRY, PAGEMON_DB,
// LOG_LEVEL), then flags.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	root := newRootCmd(os.Getenv)
	if err := root.ExecuteContext(ctx); err != nil {
		slog.Error("pagemon: fatal", "error", err)
		cancel()
		os.Exit(1)
	}
}
