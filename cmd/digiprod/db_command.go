// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/autobrr/digiprod/internal/database"
	"github.com/autobrr/digiprod/internal/services/license"
)

func RunDBCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database operations",
	}

	cmd.AddCommand(runDBMigrateCommand(), runDBGCCommand(), runDBCopyToPostgresCommand())
	return cmd
}

func runDBMigrateCommand() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations to the configured database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configDir)
			if err != nil {
				return err
			}
			// opening the database runs the migrations
			db, err := database.OpenFromConfig(cfg.Config, cfg.GetDatabasePath())
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Ping(cmd.Context()); err != nil {
				return err
			}
			cmd.Println("Database is up to date.")
			return nil
		},
	}

	addConfigDirFlag(cmd, &configDir)
	return cmd
}

func runDBGCCommand() *cobra.Command {
	var (
		configDir string
		days      int
	)

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Permanently delete trashed products and their licenses",
		Long: "Permanently delete products that have been in the trash for longer than --older-than-days.\n" +
			"Their licenses are deleted with them. Defaults to trashRetentionDays from the config.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configDir)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("older-than-days") {
				days = cfg.Config.TrashRetentionDays
			}
			if days < 0 {
				return errors.New("--older-than-days must not be negative")
			}

			a, err := openApp(cfg, license.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.products.PurgeTrashed(cmd.Context(), time.Duration(days)*24*time.Hour)
			if err != nil {
				return err
			}
			cmd.Printf("Purged %d trashed products older than %d days.\n", n, days)
			return nil
		},
	}

	addConfigDirFlag(cmd, &configDir)
	cmd.Flags().IntVar(&days, "older-than-days", 0, "Only purge products trashed at least this many days ago")
	return cmd
}

func runDBCopyToPostgresCommand() *cobra.Command {
	var (
		fromSQLite string
		toPostgres string
		dryRun     bool
		apply      bool
	)

	cmd := &cobra.Command{
		Use:   "copy-to-postgres",
		Short: "Offline one-shot SQLite to Postgres copy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if fromSQLite == "" {
				return errors.New("--from-sqlite is required")
			}
			if toPostgres == "" {
				return errors.New("--to-postgres is required")
			}
			if dryRun == apply {
				return errors.New("set exactly one of --dry-run or --apply")
			}

			report, err := database.MigrateSQLiteToPostgres(cmd.Context(), database.SQLiteToPostgresMigrationOptions{
				SQLitePath:  fromSQLite,
				PostgresDSN: toPostgres,
				Apply:       apply,
			})
			if err != nil {
				return err
			}

			mode := "dry-run"
			if apply {
				mode = "apply"
			}
			cmd.Printf("SQLite -> Postgres copy (%s)\n", mode)
			for _, table := range report.Tables {
				cmd.Printf("  - %s: sqlite=%d postgres=%d\n", table.Table, table.SQLiteRows, table.PostgresRows)
			}
			if apply {
				cmd.Println("Copy applied successfully.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&fromSQLite, "from-sqlite", "", "Path to source SQLite database file")
	cmd.Flags().StringVar(&toPostgres, "to-postgres", "", "Destination Postgres DSN")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report row counts without importing")
	cmd.Flags().BoolVar(&apply, "apply", false, "Truncate the Postgres tables and import all rows")
	return cmd
}
