// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/autobrr/digiprod/internal/models"
	"github.com/autobrr/digiprod/internal/services/license"
)

func RunLicenseCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "license",
		Short: "Manage license keys",
	}

	cmd.AddCommand(runLicenseIssueCommand(), runLicenseListCommand())
	return cmd
}

func runLicenseIssueCommand() *cobra.Command {
	var (
		configDir string
		product   string
		email     string
		name      string
		ownerID   int
		actorID   int
		count     int
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue licenses by hand, outside of any order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if product == "" {
				return errors.New("--product is required")
			}
			if email == "" && ownerID <= 0 {
				return errors.New("set --email or --owner-id")
			}
			if count < 1 {
				return errors.New("--count must be at least 1")
			}

			cfg, err := loadConfig(configDir)
			if err != nil {
				return err
			}
			a, err := openApp(cfg, license.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			productID, err := resolveProduct(cmd, a, product)
			if err != nil {
				return err
			}

			in := license.CreateInput{
				ProductID:  productID,
				OwnerID:    actorRef(ownerID),
				OwnerName:  name,
				OwnerEmail: email,
			}
			for range count {
				l, err := a.licenses.CreateLicense(cmd.Context(), actorRef(actorID), in)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", l.ID, l.LicenseKey)
			}
			return nil
		},
	}

	addConfigDirFlag(cmd, &configDir)
	cmd.Flags().StringVar(&product, "product", "", "Product ID or SKU")
	cmd.Flags().StringVar(&email, "email", "", "Owner email")
	cmd.Flags().StringVar(&name, "name", "", "Owner name")
	cmd.Flags().IntVar(&ownerID, "owner-id", 0, "Owner user ID")
	cmd.Flags().IntVar(&actorID, "actor", 0, "ID of the user the licenses are issued as")
	cmd.Flags().IntVar(&count, "count", 1, "Number of licenses to issue")
	return cmd
}

// resolveProduct accepts a numeric id or a SKU.
func resolveProduct(cmd *cobra.Command, a *app, ref string) (int, error) {
	if id, err := strconv.Atoi(ref); err == nil && id > 0 {
		return id, nil
	}
	p, err := a.products.GetBySKU(cmd.Context(), ref)
	if err != nil {
		return 0, err
	}
	return p.ID, nil
}

func runLicenseListCommand() *cobra.Command {
	var (
		configDir string
		email     string
		product   string
		orderID   int
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List licenses",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configDir)
			if err != nil {
				return err
			}
			a, err := openApp(cfg, license.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			q := models.LicenseQuery{OwnerEmail: email, Limit: limit}
			if product != "" {
				if q.ProductID, err = resolveProduct(cmd, a, product); err != nil {
					return err
				}
			}
			if orderID > 0 {
				q.OrderID = &orderID
			}

			licenses, err := a.licenses.ListLicenses(cmd.Context(), q)
			if err != nil {
				return err
			}
			for _, l := range licenses {
				owner := l.OwnerEmail
				if l.OwnerID != nil {
					owner = "user:" + strconv.Itoa(*l.OwnerID)
				}
				state := "enabled"
				if !l.Enabled {
					state = "disabled"
				}
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join([]string{strconv.Itoa(l.ID), l.LicenseKey, strconv.Itoa(l.ProductID), owner, state}, "\t"))
			}
			return nil
		},
	}

	addConfigDirFlag(cmd, &configDir)
	cmd.Flags().StringVar(&email, "email", "", "Only licenses owned by this email")
	cmd.Flags().StringVar(&product, "product", "", "Only licenses of this product (ID or SKU)")
	cmd.Flags().IntVar(&orderID, "order", 0, "Only licenses of this order")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of licenses")
	return cmd
}
