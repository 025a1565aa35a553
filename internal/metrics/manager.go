// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/digiprod/internal/database"
	"github.com/autobrr/digiprod/internal/metrics/collector"
)

type Manager struct {
	registry         *prometheus.Registry
	licenseCollector *LicenseCollector
	Licensing        *collector.LicensingCollector
}

// NewManager builds a registry with runtime collectors and the licensing
// counters. db and stats are optional; their collectors are skipped when nil.
func NewManager(db *database.DB, stats LicenseStatsSource) *Manager {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Manager{
		registry:  registry,
		Licensing: collector.NewLicensingCollector(registry),
	}

	if db != nil {
		registry.MustRegister(database.NewMetricsCollector(db))
	}
	if stats != nil {
		m.licenseCollector = NewLicenseCollector(stats)
		registry.MustRegister(m.licenseCollector)
	}

	log.Info().Bool("database", db != nil).Bool("licenses", stats != nil).Msg("Metrics manager initialized")

	return m
}

func (m *Manager) GetRegistry() *prometheus.Registry {
	return m.registry
}
