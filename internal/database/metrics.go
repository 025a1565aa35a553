// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector exposes statement cache and writer counters of a DB.
type MetricsCollector struct {
	db *DB

	stmtCacheHitsDesc   *prometheus.Desc
	stmtCacheMissesDesc *prometheus.Desc
	writesDesc          *prometheus.Desc
	writeErrorsDesc     *prometheus.Desc
	openConnsDesc       *prometheus.Desc
}

func NewMetricsCollector(db *DB) *MetricsCollector {
	labels := prometheus.Labels{"engine": db.Dialect()}
	return &MetricsCollector{
		db: db,
		stmtCacheHitsDesc: prometheus.NewDesc(
			"digiprod_db_stmt_cache_hits_total",
			"Prepared statement cache hits",
			nil, labels,
		),
		stmtCacheMissesDesc: prometheus.NewDesc(
			"digiprod_db_stmt_cache_misses_total",
			"Prepared statement cache misses",
			nil, labels,
		),
		writesDesc: prometheus.NewDesc(
			"digiprod_db_serialized_writes_total",
			"Writes executed by the single writer goroutine",
			nil, labels,
		),
		writeErrorsDesc: prometheus.NewDesc(
			"digiprod_db_serialized_write_errors_total",
			"Writes executed by the single writer goroutine that returned an error",
			nil, labels,
		),
		openConnsDesc: prometheus.NewDesc(
			"digiprod_db_open_connections",
			"Open connections in the pool",
			nil, labels,
		),
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.stmtCacheHitsDesc
	ch <- c.stmtCacheMissesDesc
	ch <- c.writesDesc
	ch <- c.writeErrorsDesc
	ch <- c.openConnsDesc
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.stmtCacheHitsDesc, prometheus.CounterValue, float64(c.db.stmtCacheHits.Load()))
	ch <- prometheus.MustNewConstMetric(c.stmtCacheMissesDesc, prometheus.CounterValue, float64(c.db.stmtCacheMisses.Load()))
	ch <- prometheus.MustNewConstMetric(c.writesDesc, prometheus.CounterValue, float64(c.db.writesTotal.Load()))
	ch <- prometheus.MustNewConstMetric(c.writeErrorsDesc, prometheus.CounterValue, float64(c.db.writeErrors.Load()))
	ch <- prometheus.MustNewConstMetric(c.openConnsDesc, prometheus.GaugeValue, float64(c.db.conn.Stats().OpenConnections))
}
