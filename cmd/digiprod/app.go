// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"github.com/spf13/cobra"

	"github.com/autobrr/digiprod/internal/config"
	"github.com/autobrr/digiprod/internal/database"
	"github.com/autobrr/digiprod/internal/events"
	"github.com/autobrr/digiprod/internal/models"
	"github.com/autobrr/digiprod/internal/permissions"
	"github.com/autobrr/digiprod/internal/services/catalog"
	"github.com/autobrr/digiprod/internal/services/license"
)

// app is the wired service graph shared by serve and the offline commands.
type app struct {
	cfg          *config.AppConfig
	db           *database.DB
	users        *models.UserStore
	productTypes *catalog.ProductTypeService
	products     *catalog.ProductService
	licenses     *license.Service
	dispatcher   *events.Dispatcher
}

func addConfigDirFlag(cmd *cobra.Command, dir *string) {
	cmd.Flags().StringVar(dir, "config-dir", "", "Config directory or config.toml path (default is the user config dir)")
}

func loadConfig(configDir string) (*config.AppConfig, error) {
	return config.New(configDir)
}

// openApp opens the configured database and builds the services on top of it.
func openApp(cfg *config.AppConfig, opts license.Options) (*app, error) {
	db, err := database.OpenFromConfig(cfg.Config, cfg.GetDatabasePath())
	if err != nil {
		return nil, err
	}
	return newApp(cfg, db, opts), nil
}

func newApp(cfg *config.AppConfig, db *database.DB, opts license.Options) *app {
	users := models.NewUserStore(db)
	checker := permissions.NewChecker(users, models.NewProductTypeStore(db))
	types := catalog.NewProductTypeService(db, checker)
	licenses := license.NewService(db, cfg, opts)

	dispatcher := events.NewDispatcher()
	license.RegisterHandlers(dispatcher, licenses, cfg)

	return &app{
		cfg:          cfg,
		db:           db,
		users:        users,
		productTypes: types,
		products:     catalog.NewProductService(db, types, checker),
		licenses:     licenses,
		dispatcher:   dispatcher,
	}
}

func (a *app) Close() error {
	return a.db.Close()
}

func actorRef(id int) *int {
	if id <= 0 {
		return nil
	}
	return &id
}
