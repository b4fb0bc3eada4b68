// Package main is the entry point for the wappa Vowpal Wabbit service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sevir/wappa/internal/config"
	"github.com/sevir/wappa/internal/learner"
	"github.com/sevir/wappa/internal/metrics"
	"github.com/sevir/wappa/internal/server"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	var (
		configPath    = flag.String("config", "", "Path to config file")
		host          = flag.String("host", "", "Server host (default: 127.0.0.1)")
		port          = flag.Int("port", 0, "Server port (default: 8766)")
		storePath     = flag.String("store", "", "Path to checkpoint registry file")
		checkpointDir = flag.String("checkpoint-dir", "", "Directory for saved models")
		daemonIP      = flag.String("daemon-ip", "", "Attach to a vw daemon already listening on this address")
		activeMode    = flag.Bool("active", false, "Run vw in active learning mode")
		dummyMode     = flag.Bool("dummy", false, "Do not start vw; only build example lines")
		printCommand  = flag.Bool("print-command", false, "Print the vw command line and exit")
		showVersion   = flag.Bool("version", false, "Show version and exit")
		initConfig    = flag.Bool("init", false, "Initialize default config and exit")
		useStdio      = flag.Bool("stdio", false, "Use stdio transport instead of HTTP")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("wappa %s (%s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *storePath != "" {
		cfg.Registry.StorePath = *storePath
	}
	if *checkpointDir != "" {
		cfg.Registry.CheckpointDir = *checkpointDir
	}
	if *daemonIP != "" {
		cfg.Engine.DaemonIP = *daemonIP
	}
	if *activeMode {
		cfg.Engine.ActiveMode = true
	}
	if *dummyMode {
		cfg.Engine.DummyMode = true
	}

	if *initConfig {
		if err := cfg.Save(*configPath); err != nil {
			log.Fatalf("Failed to save config: %v", err)
		}
		fmt.Println("Configuration initialized")
		os.Exit(0)
	}

	if *printCommand {
		fmt.Println(cfg.CommandLine())
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	l, err := learner.New(ctx, learner.Config{
		Session:       cfg.SessionConfig(log.Default()),
		StorePath:     cfg.Registry.StorePath,
		CheckpointDir: cfg.Registry.CheckpointDir,
		Metrics:       m,
	})
	if err != nil {
		log.Fatalf("Failed to start learner: %v", err)
	}

	srv := server.New(server.Config{
		Addr:     cfg.Address(),
		Learner:  l,
		Metrics:  m,
		Version:  version,
		Commit:   commit,
		UseStdio: *useStdio,
	})

	var once sync.Once
	shutdown := func() {
		once.Do(func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Printf("Server shutdown error: %v", err)
			}

			// Close the session before cancelling ctx, which kills the engine.
			if err := l.Shutdown(); err != nil {
				log.Printf("Learner shutdown error: %v", err)
			}
			cancel()
		})
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Println("Shutting down...")
		shutdown()
	}()

	if *useStdio {
		log.Printf("wappa %s starting in stdio mode", version)
	} else {
		log.Printf("wappa %s starting", version)
		log.Printf("REST API:     http://%s/api", cfg.Address())
		log.Printf("MCP endpoint: http://%s/mcp", cfg.Address())
		log.Printf("Metrics:      http://%s/metrics", cfg.Address())
		log.Printf("Health check: http://%s/health", cfg.Address())
	}

	err = srv.Start()
	failed := err != nil && !errors.Is(err, context.Canceled)
	if failed {
		log.Printf("Server error: %v", err)
	}
	// Start also returns when a stdio client closes stdin.
	shutdown()
	if failed {
		os.Exit(1)
	}
}
