// Package main provides the remapd background service: it installs the
// keyboard/mouse hooks, runs the per-key remap state machines, and serves
// a small diagnostics endpoint for remapctl.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dualrole/remapd/internal/debugserver"
	"github.com/dualrole/remapd/internal/engine"
	"github.com/dualrole/remapd/internal/logging"
)

func main() {
	configPath := flag.String("config", "config.txt", "Path to config.txt")
	auditLogPath := flag.String("audit-log", "remapd-audit.log", "Path to the audit log file")
	debugAddr := flag.String("debug-addr", "127.0.0.1:9091", "Address for the diagnostics HTTP server")
	debug := flag.Bool("debug", false, "Verbose (debug-level) logging")
	console := flag.Bool("console", false, "Human-readable console log output instead of JSON lines")
	flag.Parse()

	logger := logging.New(logging.Config{Debug: *debug, Console: *console})

	p := newPlatform()

	rt, err := engine.New(engine.Config{
		ConfigPath:   *configPath,
		AuditLogPath: *auditLogPath,
	}, p, logger)
	if err != nil {
		log.Fatalf("remapd: failed to initialize engine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rt.Start(ctx); err != nil {
		log.Fatalf("remapd: failed to start engine: %v", err)
	}

	dbg := debugserver.New(debugserver.Config{
		Addr:     *debugAddr,
		Layers:   rt.EngineConfig().Layers,
		Notify:   rt.Notify(),
		Rehooker: rt,
	}, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info().Msg("received shutdown signal")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := dbg.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("debug server shutdown error")
		}
		if err := rt.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("engine shutdown error")
		}
		cancel()
	}()

	if err := dbg.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("debug server error")
	}

	logger.Info().Msg("remapd stopped")
}
