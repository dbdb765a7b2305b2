package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ssoware/cascade/internal/core"
)

func main() {
	boot, err := core.Bootstrap()
	if err != nil {
		log.Fatalf("Bootstrap failed: %v", err)
	}
	cfg := boot.Config

	server := core.NewServer(cfg, boot.Auth, boot.MockCAS)
	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on %s", cfg.ListenAddr)
		log.Printf("Demo application at %s", cfg.BaseURL)
		if boot.MockCAS != nil {
			log.Printf("Mock CAS login at %s/cas/login", cfg.BaseURL)
		}
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	if boot.Closer != nil {
		if err := boot.Closer(); err != nil {
			log.Printf("Session backend close error: %v", err)
		}
	}

	log.Println("Server exited gracefully")
}
