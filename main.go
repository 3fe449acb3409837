package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relaymesh/voicegate/config"
	"github.com/relaymesh/voicegate/pipeline"
	"github.com/relaymesh/voicegate/server"
	"github.com/relaymesh/voicegate/session"
)

func main() {
	nodeName := flag.String("name", "", "dataflow node name to attach to (empty runs the gateway detached)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Attach to the dataflow pipeline when a node name is given. Running
	// detached is allowed for development; sessions then fail fast with a
	// structured dataflow_not_connected error.
	var pipe pipeline.Adapter
	if *nodeName != "" {
		conn, err := pipeline.Attach(ctx, *nodeName)
		if err != nil {
			log.Fatalf("Failed to attach to dataflow node %q: %v", *nodeName, err)
		}
		defer conn.Close()
		pipe = conn
		log.Printf("🔗 Attached to dataflow node %q", *nodeName)
	} else {
		log.Printf("⚠️  No --name given; running without a pipeline connection")
	}

	// Create session manager
	sessionManager, err := session.NewManager(cfg, pipe, pipeline.NopSupervisor{})
	if err != nil {
		log.Fatalf("Failed to create session manager: %v", err)
	}

	// Start cleanup routine
	go sessionManager.StartCleanupRoutine(ctx)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	srv := server.NewServerWebsocket(cfg, sessionManager)

	go func() {
		<-sigChan
		log.Println("\nReceived shutdown signal...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	if err := srv.Start(); err != nil && err.Error() != "http: Server closed" {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server stopped")
}
