// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package collector

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LicensingCollector counts licensing events. It satisfies the recorder the
// license service reports to.
type LicensingCollector struct {
	IssuedTotal         prometheus.Counter
	IssueFailuresTotal  *prometheus.CounterVec
	KeyCollisionsTotal  prometheus.Counter
	PaymentsDeniedTotal prometheus.Counter
	ReassignedTotal     *prometheus.CounterVec
}

func NewLicensingCollector(r *prometheus.Registry) *LicensingCollector {
	m := &LicensingCollector{
		IssuedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "digiprod",
			Name:      "licenses_issued_total",
			Help:      "Total number of licenses issued",
		}),
		IssueFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "digiprod",
			Name:      "license_issue_failures_total",
			Help:      "Total number of license units that could not be issued",
		}, []string{"reason"}),
		KeyCollisionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "digiprod",
			Name:      "license_key_collisions_total",
			Help:      "Total number of generated license keys that were already taken",
		}),
		PaymentsDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "digiprod",
			Name:      "payments_denied_total",
			Help:      "Total number of guest payments blocked because the order holds digital products",
		}),
		ReassignedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "digiprod",
			Name:      "licenses_reassigned_total",
			Help:      "Total number of licenses whose owner changed through user reconciliation",
		}, []string{"reason"}),
	}

	r.MustRegister(m.IssuedTotal)
	r.MustRegister(m.IssueFailuresTotal)
	r.MustRegister(m.KeyCollisionsTotal)
	r.MustRegister(m.PaymentsDeniedTotal)
	r.MustRegister(m.ReassignedTotal)
	return m
}

func (m *LicensingCollector) LicenseIssued() {
	m.IssuedTotal.Inc()
}

func (m *LicensingCollector) LicenseIssueFailed(reason string) {
	m.IssueFailuresTotal.With(prometheus.Labels{"reason": reason}).Inc()
}

func (m *LicensingCollector) KeyCollision() {
	m.KeyCollisionsTotal.Inc()
}

func (m *LicensingCollector) PaymentDenied() {
	m.PaymentsDeniedTotal.Inc()
}

func (m *LicensingCollector) LicensesReassigned(reason string, n int) {
	m.ReassignedTotal.With(prometheus.Labels{"reason": reason}).Add(float64(n))
}
