// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/typegraph/services/typegraph"
	"github.com/AleutianAI/typegraph/services/typegraph/cache"
	"github.com/AleutianAI/typegraph/services/typegraph/config"
	badgerstore "github.com/AleutianAI/typegraph/services/typegraph/storage/badger"
	"github.com/AleutianAI/typegraph/services/typegraph/telemetry"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 15 * time.Second

func newServeCmd(flags *rootFlags) *cobra.Command {
	var addr, watch string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the typegraph HTTP API",
		Long:  `Serves the /v1/typegraph API over a badger snapshot store. With --watch, the given fact file is imported at startup and re-imported whenever it changes.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if watch != "" {
				cfg.Watch.File = watch
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&watch, "watch", "", "fact file to import and watch for changes")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := newLogger(cfg)
	defer logger.Close()
	log := logger.Slog()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			log.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	db, err := badgerstore.Open(cfg.StoreConfig(log))
	if err != nil {
		return err
	}
	defer db.Close()

	svcCfg := typegraph.DefaultServiceConfig()
	svcCfg.Logger = log
	svcCfg.BuildOptions = cfg.BuildOptions(log)
	svcCfg.WarmOnBuild = cfg.Index.WarmOnBuild
	svc := typegraph.NewService(badgerstore.NewFactStore(db), cache.New(cfg.CacheOptions()...), svcCfg)
	defer svc.Close()

	if cfg.Watch.File != "" {
		if _, err := svc.Watch(ctx, cfg.Watch.File, cfg.Watch.Debounce); err != nil {
			return fmt.Errorf("watch %s: %w", cfg.Watch.File, err)
		}
	}

	router := typegraph.NewRouter(typegraph.NewHandlers(svc), typegraph.RouterConfig{
		ServiceName:  cfg.Telemetry.ServiceName,
		RateLimit:    cfg.Server.RateLimit,
		RateBurst:    cfg.Server.RateBurst,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting typegraph server",
			slog.String("address", cfg.Server.Addr),
			slog.String("storage", storageDescription(cfg)),
		)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down typegraph server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func storageDescription(cfg config.Config) string {
	if cfg.Storage.InMemory {
		return "memory"
	}
	return cfg.Storage.Path
}
