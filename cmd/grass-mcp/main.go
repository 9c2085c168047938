package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	"github.com/vthunder/grass/internal/config"
	"github.com/vthunder/grass/internal/mcp/tools"
	"github.com/vthunder/grass/internal/profiling"
	"github.com/vthunder/grass/internal/session"
	"github.com/vthunder/grass/internal/state"
)

const version = "0.1.0"

func main() {
	// Log to stderr so stdout is clean for JSON-RPC
	log.SetOutput(os.Stderr)
	log.SetPrefix("[grass-mcp] ")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	if err := cfg.InitProfiling(); err != nil {
		log.Printf("Warning: profiling disabled: %v", err)
	}
	defer profiling.Get().Close()

	sess, err := session.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to open session: %v", err)
	}
	defer sess.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Pick up reactions edited on disk while serving
	if err := sess.Reflex().Watch(ctx); err != nil {
		log.Printf("Warning: reactions will not reload: %v", err)
	}

	s := server.NewMCPServer(
		"grass",
		version,
		server.WithToolCapabilities(true),
	)

	tools.RegisterAll(s, &tools.Dependencies{
		Session:        sess,
		StateInspector: state.NewInspector(cfg.StatePath, sess.DB()),
	})

	log.Printf("Serving on stdio (state: %s, knowledge: %s)", cfg.StatePath, sess.Source())
	if err := server.ServeStdio(s); err != nil {
		log.Printf("Server error: %v", err)
		os.Exit(1)
	}
}
