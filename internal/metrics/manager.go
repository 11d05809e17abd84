// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
)

type Manager struct {
	registry         *prometheus.Registry
	licenseCollector *LicenseCollector
	License          *LicenseMetrics
}

// NewManager builds a registry with the runtime collectors, the license
// operation counters and, when source is non-nil, the license state gauges.
func NewManager(source StatsSource) *Manager {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	licenseMetrics := NewLicenseMetrics()
	licenseMetrics.register(registry)

	m := &Manager{
		registry: registry,
		License:  licenseMetrics,
	}

	if source != nil {
		m.licenseCollector = NewLicenseCollector(source)
		registry.MustRegister(m.licenseCollector)
	}

	log.Info().Msg("Metrics manager initialized with license collector")

	return m
}

func (m *Manager) GetRegistry() *prometheus.Registry {
	return m.registry
}
