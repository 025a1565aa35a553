// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/autobrr/digiprod/internal/models"
	"github.com/autobrr/digiprod/internal/services/license"
)

// catalogFile is the YAML layout used by catalog export and import.
type catalogFile struct {
	ProductTypes []catalogType `yaml:"productTypes"`
}

type catalogType struct {
	Name      string        `yaml:"name"`
	Handle    string        `yaml:"handle"`
	SKUFormat string        `yaml:"skuFormat,omitempty"`
	Sites     []catalogSite `yaml:"sites,omitempty"`
	Products  []catalogItem `yaml:"products,omitempty"`
}

type catalogSite struct {
	SiteID    int    `yaml:"siteId"`
	HasURLs   bool   `yaml:"hasUrls"`
	URIFormat string `yaml:"uriFormat,omitempty"`
	Template  string `yaml:"template,omitempty"`
}

type catalogItem struct {
	PostDate      *time.Time `yaml:"postDate,omitempty"`
	ExpiryDate    *time.Time `yaml:"expiryDate,omitempty"`
	TaxCategoryID *int       `yaml:"taxCategoryId,omitempty"`
	Enabled       *bool      `yaml:"enabled,omitempty"`
	Title         string     `yaml:"title"`
	SKU           string     `yaml:"sku"`
	Price         string     `yaml:"price"`
	Promotable    bool       `yaml:"promotable,omitempty"`
}

func RunCatalogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Export and import product types and products",
	}

	cmd.AddCommand(runCatalogExportCommand(), runCatalogImportCommand())
	return cmd
}

func runCatalogExportCommand() *cobra.Command {
	var (
		configDir string
		output    string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the catalog as YAML",
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

			file, err := exportCatalog(cmd.Context(), a)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}

			enc := yaml.NewEncoder(w)
			enc.SetIndent(2)
			if err := enc.Encode(file); err != nil {
				return fmt.Errorf("failed to encode catalog: %w", err)
			}
			return enc.Close()
		},
	}

	addConfigDirFlag(cmd, &configDir)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}

func exportCatalog(ctx context.Context, a *app) (*catalogFile, error) {
	types, err := a.productTypes.List(ctx)
	if err != nil {
		return nil, err
	}

	file := &catalogFile{ProductTypes: make([]catalogType, 0, len(types))}
	for _, pt := range types {
		ct := catalogType{Name: pt.Name, Handle: pt.Handle, SKUFormat: pt.SKUFormat}
		for _, site := range pt.Sites {
			ct.Sites = append(ct.Sites, catalogSite{SiteID: site.SiteID, HasURLs: site.HasURLs, URIFormat: site.URIFormat, Template: site.Template})
		}

		products, err := a.products.List(ctx, models.ProductQuery{TypeID: pt.ID})
		if err != nil {
			return nil, err
		}
		for _, p := range products {
			enabled := p.Enabled
			ct.Products = append(ct.Products, catalogItem{
				PostDate:      p.PostDate,
				ExpiryDate:    p.ExpiryDate,
				TaxCategoryID: p.TaxCategoryID,
				Enabled:       &enabled,
				Title:         p.Title,
				SKU:           p.SKU,
				Price:         p.Price.StringFixed(2),
				Promotable:    p.Promotable,
			})
		}
		file.ProductTypes = append(file.ProductTypes, ct)
	}
	return file, nil
}

func runCatalogImportCommand() *cobra.Command {
	var (
		configDir string
		actorID   int
	)

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Create or update product types and products from YAML",
		Long: "Product types are matched by handle and products by SKU.\n" +
			"Nothing is deleted. --actor must be allowed to manage each product type.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if actorID <= 0 {
				return errors.New("--actor is required")
			}

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			var file catalogFile
			if err := yaml.Unmarshal(raw, &file); err != nil {
				return fmt.Errorf("failed to parse %s: %w", args[0], err)
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

			stats, err := importCatalog(cmd.Context(), a, actorRef(actorID), &file)
			if err != nil {
				return err
			}
			cmd.Printf("Product types: %d created, %d updated\n", stats.typesCreated, stats.typesUpdated)
			cmd.Printf("Products: %d created, %d updated\n", stats.productsCreated, stats.productsUpdated)
			return nil
		},
	}

	addConfigDirFlag(cmd, &configDir)
	cmd.Flags().IntVar(&actorID, "actor", 0, "ID of the user performing the import")
	return cmd
}

type importStats struct {
	typesCreated    int
	typesUpdated    int
	productsCreated int
	productsUpdated int
}

func importCatalog(ctx context.Context, a *app, actorID *int, file *catalogFile) (importStats, error) {
	var stats importStats

	for _, ct := range file.ProductTypes {
		pt, err := a.productTypes.GetByHandle(ctx, ct.Handle)
		switch {
		case errors.Is(err, models.ErrProductTypeNotFound):
			pt = &models.ProductType{}
		case err != nil:
			return stats, err
		}

		pt.Name = ct.Name
		pt.Handle = ct.Handle
		pt.SKUFormat = ct.SKUFormat
		pt.Sites = pt.Sites[:0]
		for _, site := range ct.Sites {
			pt.Sites = append(pt.Sites, models.ProductTypeSite{SiteID: site.SiteID, HasURLs: site.HasURLs, URIFormat: site.URIFormat, Template: site.Template})
		}

		if pt.ID == 0 {
			if err := a.productTypes.Create(ctx, actorID, pt); err != nil {
				return stats, fmt.Errorf("product type %q: %w", ct.Handle, err)
			}
			stats.typesCreated++
		} else {
			if err := a.productTypes.Update(ctx, actorID, pt); err != nil {
				return stats, fmt.Errorf("product type %q: %w", ct.Handle, err)
			}
			stats.typesUpdated++
		}

		for _, item := range ct.Products {
			created, err := importProduct(ctx, a, actorID, pt.ID, item)
			if err != nil {
				return stats, fmt.Errorf("product %q: %w", item.SKU, err)
			}
			if created {
				stats.productsCreated++
			} else {
				stats.productsUpdated++
			}
		}
	}
	return stats, nil
}

func importProduct(ctx context.Context, a *app, actorID *int, typeID int, item catalogItem) (bool, error) {
	price, err := decimal.NewFromString(item.Price)
	if err != nil {
		return false, fmt.Errorf("invalid price %q", item.Price)
	}

	p, err := a.products.GetBySKU(ctx, item.SKU)
	switch {
	case errors.Is(err, models.ErrProductNotFound):
		p = &models.Product{Enabled: true}
	case err != nil:
		return false, err
	}

	p.TypeID = typeID
	p.Title = item.Title
	p.SKU = item.SKU
	p.Price = price
	p.TaxCategoryID = item.TaxCategoryID
	p.Promotable = item.Promotable
	p.PostDate = item.PostDate
	p.ExpiryDate = item.ExpiryDate
	if item.Enabled != nil {
		p.Enabled = *item.Enabled
	}

	if p.ID == 0 {
		return true, a.products.Create(ctx, actorID, p)
	}
	return false, a.products.Update(ctx, actorID, p)
}
