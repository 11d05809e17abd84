// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Claim outcomes.
const (
	ClaimResultClaimed        = "claimed"
	ClaimResultAlreadyClaimed = "already_claimed"
	ClaimResultNotFound       = "not_found"
)

// Sweep names.
const (
	SweepReminders  = "reminders"
	SweepExpiration = "expiration"
)

// LicenseMetrics counts registry operations. A nil *LicenseMetrics is valid
// and records nothing.
type LicenseMetrics struct {
	claims        *prometheus.CounterVec
	bulkClaimed   prometheus.Counter
	sweepItems    *prometheus.CounterVec
	sweepFailures *prometheus.CounterVec
	sweepDuration *prometheus.HistogramVec
}

func NewLicenseMetrics() *LicenseMetrics {
	return &LicenseMetrics{
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_license_claims_total",
			Help: "License claim attempts by result",
		}, []string{"result"}),
		bulkClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "registry_license_bulk_claimed_total",
			Help: "Licenses assigned through claim by email",
		}),
		sweepItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_sweep_processed_total",
			Help: "Licenses processed by sweeps",
		}, []string{"sweep"}),
		sweepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_sweep_failures_total",
			Help: "Licenses a sweep could not process",
		}, []string{"sweep"}),
		sweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "registry_sweep_duration_seconds",
			Help:    "Duration of sweep runs",
			Buckets: prometheus.DefBuckets,
		}, []string{"sweep"}),
	}
}

func (m *LicenseMetrics) register(registry prometheus.Registerer) {
	registry.MustRegister(m.claims, m.bulkClaimed, m.sweepItems, m.sweepFailures, m.sweepDuration)
}

func (m *LicenseMetrics) ObserveClaim(result string) {
	if m == nil {
		return
	}
	m.claims.WithLabelValues(result).Inc()
}

func (m *LicenseMetrics) ObserveBulkClaim(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.bulkClaimed.Add(float64(count))
}

// ObserveSweep records one finished sweep run.
func (m *LicenseMetrics) ObserveSweep(sweep string, processed, failed int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.sweepItems.WithLabelValues(sweep).Add(float64(processed))
	m.sweepFailures.WithLabelValues(sweep).Add(float64(failed))
	m.sweepDuration.WithLabelValues(sweep).Observe(elapsed.Seconds())
}
