// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

// Package main is the offline library client for Setlist.
//
// The client keeps a band member's chosen charts on local disk so they can
// be read with no connection. Pin and unpin requests are queued in the
// local store and replayed against the server the next time "run" connects.
// The store is a single Badger directory, so only one command may use it at
// a time.
//
//	setlist-offline pin 1AbC 2DeF
//	setlist-offline run
//	setlist-offline queue
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/setlist/internal/config"
	"github.com/tomtom215/setlist/internal/logging"
	"github.com/tomtom215/setlist/internal/models"
	"github.com/tomtom215/setlist/internal/offline"
	"github.com/tomtom215/setlist/internal/supervisor"
	"github.com/tomtom215/setlist/internal/supervisor/services"
)

var (
	rootCmd = &cobra.Command{
		Use:           "setlist-offline",
		Short:         "Offline library client for Setlist",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Stay connected to the server and keep the offline library current",
		Args:  cobra.NoArgs,
		RunE:  cmdRun,
	}
	pinCmd = &cobra.Command{
		Use:   "pin ID...",
		Short: "Make content available offline",
		Args:  cobra.MinimumNArgs(1),
		RunE:  cmdPin,
	}
	unpinCmd = &cobra.Command{
		Use:   "unpin ID...",
		Short: "Drop content from the offline library",
		Args:  cobra.MinimumNArgs(1),
		RunE:  cmdUnpin,
	}
	queueCmd = &cobra.Command{
		Use:   "queue",
		Short: "Print pending actions as JSON",
		Args:  cobra.NoArgs,
		RunE:  cmdQueue,
	}
	evictCmd = &cobra.Command{
		Use:   "evict",
		Short: "Evict cached content down to the storage quota",
		Args:  cobra.NoArgs,
		RunE:  cmdEvict,
	}
)

//nolint:gochecknoinits // cobra command tree
func init() {
	rootCmd.AddCommand(runCmd, pinCmd, unpinCmd, queueCmd, evictCmd)
}

// client is an opened offline library.
type client struct {
	cfg     *config.Config
	viewer  models.ViewerContext
	store   *offline.Store
	manager *offline.Manager
}

func openClient() (*client, error) {
	cfg, err := config.LoadOffline()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	off := cfg.Offline
	viewer := models.ViewerContext{
		ViewerID:         off.ViewerID,
		TranspositionKey: models.TranspositionKey(off.TranspositionKey),
	}

	store, err := offline.OpenStore(off.DataDir)
	if err != nil {
		return nil, err
	}
	remote := offline.NewHTTPRemote(off.ServerURL, off.RootID, viewer, &http.Client{Timeout: off.RequestTimeout})

	return &client{
		cfg:     cfg,
		viewer:  viewer,
		store:   store,
		manager: offline.NewManagerFromConfig(&cfg.Offline, store, remote),
	}, nil
}

func (c *client) close() {
	if err := c.store.Close(); err != nil {
		logging.Warn().Err(err).Msg("Failed to close offline store")
	}
}

func cmdRun(cmd *cobra.Command, _ []string) error {
	c, err := openClient()
	if err != nil {
		return err
	}
	defer c.close()

	off := c.cfg.Offline
	listener, err := offline.NewLiveListener(c.manager, off.ServerURL, off.RootID, c.viewer, off.ReconnectDelay)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}
	tree.AddLiveService(services.NewRunnerService("offline-listener", listener))

	go reportNotices(ctx, c.manager.Notices())

	logging.Info().
		Str("server", off.ServerURL).
		Str("root_id", off.RootID).
		Str("viewer_id", c.viewer.ViewerID).
		Msg("Offline client starting")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logging.Info().Msg("Offline client stopped")
	return nil
}

// reportNotices logs discarded actions until ctx ends.
func reportNotices(ctx context.Context, notices <-chan offline.Notice) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-notices:
			event := logging.Warn()
			if n.Level == offline.NoticeError {
				event = logging.Error()
			}
			event.
				Str("action", string(n.Entry.Action)).
				Str("content_id", n.Entry.ContentID).
				Int("attempts", n.Entry.Attempts).
				Msg(n.Message)
		}
	}
}

func cmdPin(cmd *cobra.Command, args []string) error {
	return eachID(cmd, args, (*offline.Manager).MarkAvailable, "queued for offline")
}

func cmdUnpin(cmd *cobra.Command, args []string) error {
	return eachID(cmd, args, (*offline.Manager).MarkUnavailable, "queued for removal")
}

// eachID applies op to every id. The manager starts offline, so each
// request lands in the queue for the next run.
func eachID(cmd *cobra.Command, ids []string, op func(*offline.Manager, context.Context, string) error, verb string) error {
	c, err := openClient()
	if err != nil {
		return err
	}
	defer c.close()

	var errs []error
	for _, id := range ids {
		if err := op(c.manager, cmd.Context(), id); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", id, verb)
	}
	return errors.Join(errs...)
}

func cmdQueue(cmd *cobra.Command, _ []string) error {
	c, err := openClient()
	if err != nil {
		return err
	}
	defer c.close()

	queue, err := c.manager.Queue()
	if err != nil {
		return err
	}
	if queue == nil {
		queue = []offline.QueueEntry{}
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(queue)
}

func cmdEvict(cmd *cobra.Command, _ []string) error {
	c, err := openClient()
	if err != nil {
		return err
	}
	defer c.close()

	n, err := c.manager.Evict()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "evicted %d item(s)\n", n)
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "setlist-offline:", err)
		os.Exit(1)
	}
}
