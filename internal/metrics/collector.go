// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/pluginstore/registry/internal/models"
)

// StatsSource reports license counts at scrape time.
type StatsSource interface {
	Stats(ctx context.Context) (models.LicenseStats, error)
}

type LicenseCollector struct {
	source StatsSource

	licensesDesc  *prometheus.Desc
	scrapeErrDesc *prometheus.Desc
}

func NewLicenseCollector(source StatsSource) *LicenseCollector {
	return &LicenseCollector{
		source: source,

		licensesDesc: prometheus.NewDesc(
			"registry_licenses",
			"Number of plugin licenses by state",
			[]string{"state"},
			nil,
		),
		scrapeErrDesc: prometheus.NewDesc(
			"registry_licenses_scrape_error",
			"1 when license counts could not be read",
			nil,
			nil,
		),
	}
}

func (c *LicenseCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.licensesDesc
	ch <- c.scrapeErrDesc
}

func (c *LicenseCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := c.source.Stats(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to collect license metrics")
		ch <- prometheus.MustNewConstMetric(c.scrapeErrDesc, prometheus.GaugeValue, 1)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.scrapeErrDesc, prometheus.GaugeValue, 0)

	states := []struct {
		state string
		count int
	}{
		{"total", stats.Total},
		{"unclaimed", stats.Unclaimed},
		{"expirable", stats.Expirable},
		{"expired", stats.Expired},
		{"auto_renew", stats.AutoRenew},
	}
	for _, s := range states {
		ch <- prometheus.MustNewConstMetric(c.licensesDesc, prometheus.GaugeValue, float64(s.count), s.state)
	}
}
