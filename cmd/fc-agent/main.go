// Command fc-agent is the host-resident Firecracker microVM lifecycle
// agent: it loads its configuration, reconciles previously known VMs against
// what is actually running, and serves the lifecycle HTTP API until asked to
// shut down. Grounded on cmd/api-gateway/main.go's wiring/graceful-shutdown
// pattern and original_source/host-agent/main.py's startup reconciliation
// call.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudstack/firecracker-agent/pkg/config"
	"github.com/cloudstack/firecracker-agent/pkg/console"
	"github.com/cloudstack/firecracker-agent/pkg/httpapi"
	"github.com/cloudstack/firecracker-agent/pkg/lifecycle"
	"github.com/cloudstack/firecracker-agent/pkg/logging"
	"github.com/cloudstack/firecracker-agent/pkg/statestore"
	"github.com/cloudstack/firecracker-agent/pkg/vmspec"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := logging.NewSlogLogger(cfg.LogLevel)
	ctx := context.Background()

	host := vmspec.HostDirs{
		FirecrackerBin: cfg.Defaults.Host.FirecrackerBin,
		ConfDir:        cfg.Defaults.Host.ConfDir,
		RunDir:         cfg.Defaults.Host.RunDir,
		LogDir:         cfg.Defaults.Host.LogDir,
		PayloadDir:     cfg.Defaults.Host.PayloadDir,
		ImageDir:       cfg.Defaults.Host.ImageDir,
		KernelDir:      cfg.Defaults.Host.KernelDir,
	}
	for _, dir := range []string{host.ConfDir, host.RunDir, host.LogDir, host.PayloadDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("failed to create required directory %s: %v", dir, err)
		}
	}

	store := statestore.New(host.RunDir, host.PayloadDir)
	orchestrator := lifecycle.New(
		host,
		cfg.Defaults.Storage.Driver,
		cfg.Defaults.Net.Driver,
		cfg.Defaults.Net.HostBridge,
		cfg.Defaults.Net.Uplink,
		store,
		logger,
	)

	var consoleMgr *console.Manager
	if cfg.Console.Enabled {
		consoleMgr = console.New(host.RunDir, console.Config{
			BindHost: cfg.Console.BindHost,
			PortMin:  cfg.Console.PortMin,
			PortMax:  cfg.Console.PortMax,
			Geometry: cfg.Console.DisplayGeo,
		}, logger)
		logger.Info(ctx, "console bridge enabled", map[string]interface{}{"bind_host": cfg.Console.BindHost})
	}

	logger.Info(ctx, "reconciling VM state at startup", nil)
	if err := orchestrator.StartupReconcile(ctx); err != nil {
		logger.Error(ctx, "startup reconciliation failed", map[string]interface{}{"error": err.Error()})
	}

	server := httpapi.New(orchestrator, store, consoleMgr, logger)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.BindHost, cfg.BindPort),
		Handler: server.Router(),
	}

	go func() {
		logger.Info(ctx, "fc-agent listening", map[string]interface{}{"addr": httpServer.Addr})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info(ctx, "shutting down, saving running-VM state", nil)
	if err := orchestrator.SaveStates(ctx); err != nil {
		logger.Warn(ctx, "failed to save running-VM state on shutdown", map[string]interface{}{"error": err.Error()})
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn(ctx, "server shutdown error", map[string]interface{}{"error": err.Error()})
	}
	logger.Info(ctx, "fc-agent stopped", nil)
}
