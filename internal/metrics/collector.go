// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/digiprod/internal/models"
)

type LicenseStatsSource interface {
	Stats(ctx context.Context) (models.LicenseStats, error)
}

// LicenseCollector reports license counts read from storage on every scrape.
type LicenseCollector struct {
	source LicenseStatsSource

	licensesDesc    *prometheus.Desc
	scrapeErrorDesc *prometheus.Desc
}

func NewLicenseCollector(source LicenseStatsSource) *LicenseCollector {
	return &LicenseCollector{
		source: source,
		licensesDesc: prometheus.NewDesc(
			"digiprod_licenses",
			"Number of stored licenses by state (all, enabled, unowned, orphaned)",
			[]string{"state"},
			nil,
		),
		scrapeErrorDesc: prometheus.NewDesc(
			"digiprod_licenses_scrape_error",
			"Whether reading license counts failed during the last scrape (1=failed)",
			nil,
			nil,
		),
	}
}

func (c *LicenseCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.licensesDesc
	ch <- c.scrapeErrorDesc
}

func (c *LicenseCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := c.source.Stats(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to get license counts for metrics")
		ch <- prometheus.MustNewConstMetric(c.scrapeErrorDesc, prometheus.GaugeValue, 1)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.scrapeErrorDesc, prometheus.GaugeValue, 0)

	for state, n := range map[string]int64{
		"all":      stats.Total,
		"enabled":  stats.Enabled,
		"unowned":  stats.Unowned,
		"orphaned": stats.Orphaned,
	} {
		ch <- prometheus.MustNewConstMetric(c.licensesDesc, prometheus.GaugeValue, float64(n), state)
	}
}
