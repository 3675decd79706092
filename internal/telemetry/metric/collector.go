// Package metric provides Prometheus metrics for KeyMesh.
package metric

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/keymesh-go/internal/core/service"
)

// StatsSource supplies binding counters on scrape.
type StatsSource interface {
	DeviceStats(ctx context.Context) (service.DeviceStats, error)
}

// DeviceCollector exports device binding gauges, reading the store on
// every scrape so the values never go stale.
type DeviceCollector struct {
	source StatsSource

	activeDesc *prometheus.Desc
	totalDesc  *prometheus.Desc
}

// NewDeviceCollector creates a collector over the given stats source.
func NewDeviceCollector(source StatsSource) *DeviceCollector {
	return &DeviceCollector{
		source: source,
		activeDesc: prometheus.NewDesc(
			"keymesh_devices_active",
			"Device bindings currently marked active",
			nil, nil,
		),
		totalDesc: prometheus.NewDesc(
			"keymesh_devices_total",
			"Device bindings ever created",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *DeviceCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeDesc
	ch <- c.totalDesc
}

// Collect implements prometheus.Collector.
func (c *DeviceCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stats, err := c.source.DeviceStats(ctx)
	if err != nil {
		// Skip the scrape rather than export zeros.
		return
	}

	ch <- prometheus.MustNewConstMetric(c.activeDesc, prometheus.GaugeValue, float64(stats.Active))
	ch <- prometheus.MustNewConstMetric(c.totalDesc, prometheus.GaugeValue, float64(stats.Total))
}
