package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-state-be/internal/config"
	"chat-state-be/pkg/events"
	pkgNats "chat-state-be/pkg/nats"

	"github.com/fatih/color"
)

// Tails backend failover, restore and cleanup events relayed to NATS.
func main() {
	durable := flag.String("durable", "", "durable consumer name; empty replays nothing and follows new events")
	flag.Parse()

	cfg := config.Load()
	if cfg.Events.NatsURL == "" {
		color.Red("NATS_URL is not set; state events are only logged in-process")
		os.Exit(1)
	}

	sub, err := pkgNats.NewSubscriber(cfg.Events.NatsURL)
	if err != nil {
		color.Red("Connect failed: %v", err)
		os.Exit(1)
	}
	defer sub.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = sub.Subscribe(ctx, pkgNats.SubjectPrefix+".>", *durable, func(_ context.Context, event events.Event) error {
		printEvent(event)
		return nil
	})
	if err != nil {
		color.Red("Subscribe failed: %v", err)
		os.Exit(1)
	}

	color.Cyan("Listening on %s.> (Ctrl+C to stop)", pkgNats.SubjectPrefix)
	<-ctx.Done()
}

func printEvent(event events.Event) {
	ts := event.Timestamp().Format(time.RFC3339)
	switch event.EventType() {
	case events.TypeBackendFailover:
		color.Red("[%s] %s error=%v failovers=%v", ts, event.EventType(), event.Payload()["error"], event.Payload()["failover_count"])
	case events.TypeBackendRestored:
		color.Green("[%s] %s", ts, event.EventType())
	case events.TypeSessionsCleaned:
		p := event.Payload()
		color.Yellow("[%s] %s sessions=%v conversations=%v messages=%v backend=%v",
			ts, event.EventType(), p["sessions"], p["conversations"], p["messages"], p["backend"])
	default:
		color.White("[%s] %s %v", ts, event.EventType(), event.Payload())
	}
}
