// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/autobrr/digiprod/internal/api"
	"github.com/autobrr/digiprod/internal/buildinfo"
	"github.com/autobrr/digiprod/internal/database"
	"github.com/autobrr/digiprod/internal/domain"
	"github.com/autobrr/digiprod/internal/logger"
	"github.com/autobrr/digiprod/internal/metrics"
	"github.com/autobrr/digiprod/internal/models"
	"github.com/autobrr/digiprod/internal/services/catalog"
	"github.com/autobrr/digiprod/internal/services/license"
)

const shutdownTimeout = 15 * time.Second

func RunServeCommand() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configDir)
		},
	}

	addConfigDirFlag(cmd, &configDir)
	return cmd
}

func runServe(ctx context.Context, configDir string) error {
	cfg, err := loadConfig(configDir)
	if err != nil {
		return err
	}

	logCloser := logger.Setup(cfg.Config)
	defer logCloser.Close()

	log.Info().Str("version", buildinfo.Version).Str("config", cfg.ConfigPath()).Msg("Starting digiprod")

	db, err := database.OpenFromConfig(cfg.Config, cfg.GetDatabasePath())
	if err != nil {
		return err
	}

	manager := metrics.NewManager(db, models.NewLicenseStore(db))
	a := newApp(cfg, db, license.Options{Recorder: manager.Licensing})
	defer a.Close()

	cfg.OnSettingsChange(func(s domain.Settings) {
		log.Info().
			Int("licenseKeyLength", s.LicenseKeyLength).
			Bool("generateLicenseOnOrderPaid", s.GenerateLicenseOnOrderPaid).
			Bool("requireLoggedInUser", s.RequireLoggedInUser).
			Msg("Licensing settings applied")
	})
	cfg.Watch()

	server := api.NewServer(&api.Dependencies{
		Config:       cfg,
		DB:           a.db,
		Dispatcher:   a.dispatcher,
		ProductTypes: a.productTypes,
		Products:     a.products,
		Licenses:     a.licenses,
		Users:        a.users,
	})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(server.ListenAndServe)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if cfg.Config.MetricsEnabled {
		metricsServer := metrics.NewMetricsServer(manager, cfg.Config.MetricsHost, cfg.Config.MetricsPort, cfg.Config.MetricsBasicAuthUsers)
		g.Go(metricsServer.ListenAndServe)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		return a.products.RunTrashCollector(ctx, catalog.DefaultTrashSweepInterval, func() int {
			return cfg.Config.TrashRetentionDays
		})
	})

	err = g.Wait()
	log.Info().Msg("digiprod stopped")
	return err
}
