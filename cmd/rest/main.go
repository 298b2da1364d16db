package main

import (
	"context"
	"log"

	"chat-state-be/internal/bootstrap"
	"chat-state-be/internal/config"
	"chat-state-be/internal/server"
	"chat-state-be/internal/tracer"
)

func main() {
	// 0. Tracing (disabled unless OTEL_ENABLED=true)
	shutdownTracer := tracer.InitTracer()
	defer shutdownTracer(context.Background())

	// 1. Load Configuration
	cfg := config.Load()

	// 2. Bootstrap Dependencies (Container)
	container, err := bootstrap.NewContainer(cfg)
	if err != nil {
		log.Fatalf("Unable to bootstrap state store: %v", err)
	}
	defer container.Close()

	// 3. Initialize Server
	srv := server.New(cfg, container)

	// 4. Run Server
	if err := srv.Run(); err != nil {
		log.Printf("Server stopped: %v", err)
	}
}
