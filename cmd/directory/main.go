// Command directory is the peer directory service for the mesh variant. It
// keeps leased peer registrations in memory and serves the HTTP API consumed
// by mesh clients.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/murmur/chat/internal/directory"
	"github.com/murmur/chat/internal/metrics"
)

func main() {
	listenAddr := ":8090"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		listenAddr = v
	}
	ttl := directory.DefaultEntryTTL
	if v := os.Getenv("ENTRY_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			ttl = d
		}
	}
	pruneInterval := ttl / 2
	if v := os.Getenv("PRUNE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			pruneInterval = d
		}
	}

	log.Printf("murmur directory service starting")
	log.Printf("  listen_addr:    %s", listenAddr)
	log.Printf("  entry_ttl:      %s", ttl)
	log.Printf("  prune_interval: %s", pruneInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := directory.NewRegistry(ttl)
	registry.StartPruneLoop(ctx, pruneInterval)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", directory.Handler(registry))

	server := &http.Server{
		Addr:         listenAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down", sig)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		cancel()
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
