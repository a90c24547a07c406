package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"mirrorbox/api"
	"mirrorbox/config"
	"mirrorbox/handlers"
	"mirrorbox/services/hostpool"
	"mirrorbox/services/streamproxy"
	"mirrorbox/services/upstream"

	"github.com/gorilla/mux"
	"gopkg.in/natefinch/lumberjack.v2"
)

const version = "0.3.0"

func main() {

	portOverride := flag.Int("port", 0, "override server port from config")
	flag.Parse()

	fmt.Println("🚀 mirrorbox Starting...")

	// Determine config path (env or default)
	configPath := os.Getenv("MIRRORBOX_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("cache", "settings.json")
	}

	// Init config manager and load settings (creates defaults if missing)
	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	// Set up file logging with rotation
	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			// Redirect standard log to both console and file
			multiWriter := io.MultiWriter(os.Stdout, fileWriter)
			log.SetOutput(multiWriter)
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			log.Printf("Logging to file: %s", settings.Log.File)
		}
	}

	// Apply port override if specified
	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}

	pool := hostpool.New(settings.Upstream.Hosts)
	if pool.Size() == 0 {
		log.Fatalf("no upstream hosts configured")
	}
	fmt.Printf("✅ Host pool: %d mirror(s), primary %s\n", pool.Size(), pool.Primary())

	session := upstream.NewSessionStore()
	requestTimeout := time.Duration(settings.Upstream.RequestTimeoutSec) * time.Second
	probeTimeout := time.Duration(settings.Download.ProbeTimeoutSec) * time.Second
	mediaTimeout := time.Duration(settings.Download.MediaTimeoutMin) * time.Minute

	httpc := &http.Client{}

	dispatcher := upstream.NewDispatcher(pool, session, httpc, settings.Upstream.ClientMarker, requestTimeout, settings.Upstream.MaxRetries)
	client := upstream.NewClient(dispatcher, settings.Download.RequireAvailabilityFlag)
	proxy := streamproxy.New(httpc, pool, probeTimeout, mediaTimeout)
	tracker := handlers.NewStreamTracker()

	catalogHandler := handlers.NewCatalogHandler(client)
	streamHandler := handlers.NewStreamHandler(proxy, session, tracker)
	statusHandler := handlers.NewStatusHandler(pool, session, tracker, httpc, settings.Upstream.ClientMarker, probeTimeout, version)

	r := mux.NewRouter()
	api.Register(r, catalogHandler, streamHandler, statusHandler)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	fmt.Printf("Server starting on %s\n", addr)

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // No write timeout for streaming
		IdleTimeout:  120 * time.Second,
	}

	// Setup graceful shutdown
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-shutdownChan
	log.Println("🛑 Shutdown signal received, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("✅ Shutdown complete")
}
