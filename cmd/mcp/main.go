// Command mcp exposes SafeScore wallet risk tools to LLM agents over the
// Model Context Protocol.
//
// By default it speaks MCP on stdin/stdout. With -http it serves the
// streamable HTTP transport instead:
//
//	mcp                  # stdio, for desktop agents
//	mcp -http :8090      # streamable HTTP at /mcp
//
// SAFESCORE_API_URL points at a running SafeScore API and
// SAFESCORE_API_KEY, when set, is sent as a bearer token.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mbd888/safescore/internal/logging"
	"github.com/mbd888/safescore/internal/mcpserver"
)

// Version is set by ldflags.
var Version = "dev"

func main() {
	httpAddr := flag.String("http", "", "serve streamable HTTP on this address instead of stdio")
	flag.Parse()

	// stdout carries the protocol in stdio mode, so logs go to stderr.
	logger := logging.NewWithOptions(logging.Options{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: "text",
		Output: os.Stderr,
	})

	if err := run(*httpAddr, logger); err != nil {
		logger.Error("mcp server failed", "error", err)
		os.Exit(1)
	}
}

func run(httpAddr string, logger *slog.Logger) error {
	_ = godotenv.Load()

	cfg := mcpserver.Config{
		APIURL: os.Getenv("SAFESCORE_API_URL"),
		APIKey: os.Getenv("SAFESCORE_API_KEY"),
	}
	if cfg.APIURL == "" {
		cfg.APIURL = "http://localhost:8080"
	}
	if u, err := url.Parse(cfg.APIURL); err != nil || u.Host == "" {
		return fmt.Errorf("invalid SAFESCORE_API_URL %q", cfg.APIURL)
	}

	s := mcpserver.NewMCPServer(cfg, Version)

	if httpAddr == "" {
		logger.Info("serving MCP over stdio", "api", cfg.APIURL, "version", Version)
		return server.ServeStdio(s, server.WithErrorLogger(log.New(os.Stderr, "mcp: ", log.LstdFlags)))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hs := server.NewStreamableHTTPServer(s)
	errCh := make(chan error, 1)
	go func() { errCh <- hs.Start(httpAddr) }()
	logger.Info("serving MCP over HTTP", "addr", httpAddr, "api", cfg.APIURL, "version", Version)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return hs.Shutdown(shutdownCtx)
}
