// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/setlist/internal/api"
	"github.com/tomtom215/setlist/internal/config"
	"github.com/tomtom215/setlist/internal/eventbus"
	"github.com/tomtom215/setlist/internal/index"
	"github.com/tomtom215/setlist/internal/logging"
	"github.com/tomtom215/setlist/internal/storage"
	"github.com/tomtom215/setlist/internal/supervisor"
	"github.com/tomtom215/setlist/internal/supervisor/services"
	"github.com/tomtom215/setlist/internal/sync"
	ws "github.com/tomtom215/setlist/internal/websocket"
)

// scanWorkers bounds concurrent folder listings per scan. The storage
// limiter still caps the overall request rate.
const scanWorkers = 4

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		// Logging is not configured yet; the default logger writes JSON to stderr.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	logging.Info().
		Strs("roots", cfg.Storage.RootFolders).
		Str("addr", cfg.Server.Addr()).
		Msg("Starting Setlist with supervisor tree")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	// Storage and indexing
	client := storage.NewClientFromConfig(&cfg.Storage, nil)
	defer client.Close()
	builder := index.NewBuilder(client, scanWorkers)

	bus := eventbus.New(eventbus.Config{BufferSize: cfg.Hub.EventBufferSize})
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close event bus")
		}
	}()

	syncManager := sync.NewManager(cfg.Sync, cfg.Storage.RootFolders, builder, bus)
	syncManager.SetFailureReporter(sync.LogReporter{})
	syncManager.SetCacheInvalidator(client)

	// Live updates
	wsHub := ws.NewHub(cfg.Hub, syncManager)
	bridge := ws.NewBusSubscriber(wsHub, bus)

	// HTTP
	handler := api.NewHandler(syncManager, client, wsHub, cfg)
	chiMiddleware := api.NewChiMiddleware(api.ChiMiddlewareConfigFromSecurity(cfg.Security))
	router := api.NewRouter(handler, chiMiddleware)

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.SetupChi(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	tree.AddIndexService(services.NewSyncService(syncManager))
	tree.AddLiveService(services.NewWebSocketHubService(wsHub))
	tree.AddLiveService(services.NewBusBridgeService(bridge))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("Services added to supervisor tree")

	logging.Info().Msg("Starting supervisor tree...")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Application stopped gracefully")
}
