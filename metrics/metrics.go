// Package metrics exposes a Prometheus collector that gathers runtime
// statistics from the device, beat, metadata, waveform, and connection
// components at scrape time.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DeviceProvider exposes the currently visible devices on the network.
type DeviceProvider interface {
	CurrentDeviceCount() int
}

// BeatProvider reports whether the beat finder is running.
type BeatProvider interface {
	IsRunning() bool
}

// TrackCacheProvider exposes a loaded-track count without requiring
// metrics to import the metadata package's reference types directly.
type TrackCacheProvider interface {
	LoadedTrackCount() int
}

// WaveformCacheProvider exposes waveform cache sizes and the find-details
// setting.
type WaveformCacheProvider interface {
	LoadedPreviewCount() int
	LoadedDetailCount() int
	IsFindingDetails() bool
}

// ConnectionPoolProvider exposes the pooled dbserver session count.
type ConnectionPoolProvider interface {
	SessionCount() int
}

// Collector is a prometheus.Collector that gathers beatlink runtime metrics
// at scrape time. Any provider may be nil if that component isn't running.
type Collector struct {
	devices     DeviceProvider
	beats       BeatProvider
	tracks      TrackCacheProvider
	waveforms   WaveformCacheProvider
	connections ConnectionPoolProvider
	startTime   time.Time

	devicesDesc        *prometheus.Desc
	beatRunningDesc    *prometheus.Desc
	loadedTracksDesc   *prometheus.Desc
	previewCacheDesc   *prometheus.Desc
	detailCacheDesc    *prometheus.Desc
	findDetailsDesc    *prometheus.Desc
	pooledSessionsDesc *prometheus.Desc
	uptimeDesc         *prometheus.Desc
}

// NewCollector creates a metrics collector wired to the given providers.
func NewCollector(
	devices DeviceProvider,
	beats BeatProvider,
	tracks TrackCacheProvider,
	waveforms WaveformCacheProvider,
	connections ConnectionPoolProvider,
	startTime time.Time,
) *Collector {
	return &Collector{
		devices:     devices,
		beats:       beats,
		tracks:      tracks,
		waveforms:   waveforms,
		connections: connections,
		startTime:   startTime,

		devicesDesc: prometheus.NewDesc(
			"beatlink_devices_visible",
			"Number of devices currently visible on the network",
			nil, nil,
		),
		beatRunningDesc: prometheus.NewDesc(
			"beatlink_beat_finder_running",
			"Whether the beat finder is currently listening (1) or not (0)",
			nil, nil,
		),
		loadedTracksDesc: prometheus.NewDesc(
			"beatlink_loaded_tracks",
			"Number of decks with currently loaded track metadata",
			nil, nil,
		),
		previewCacheDesc: prometheus.NewDesc(
			"beatlink_waveform_preview_cache_size",
			"Number of cached waveform previews",
			nil, nil,
		),
		detailCacheDesc: prometheus.NewDesc(
			"beatlink_waveform_detail_cache_size",
			"Number of cached waveform details",
			nil, nil,
		),
		findDetailsDesc: prometheus.NewDesc(
			"beatlink_waveform_find_details_enabled",
			"Whether full waveform detail fetching is enabled (1) or not (0)",
			nil, nil,
		),
		pooledSessionsDesc: prometheus.NewDesc(
			"beatlink_pooled_sessions",
			"Number of pooled dbserver sessions currently open",
			nil, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"beatlink_uptime_seconds",
			"Seconds since the process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.devicesDesc
	ch <- c.beatRunningDesc
	ch <- c.loadedTracksDesc
	ch <- c.previewCacheDesc
	ch <- c.detailCacheDesc
	ch <- c.findDetailsDesc
	ch <- c.pooledSessionsDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector. It queries all providers at
// scrape time.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.devices != nil {
		ch <- prometheus.MustNewConstMetric(
			c.devicesDesc, prometheus.GaugeValue,
			float64(c.devices.CurrentDeviceCount()),
		)
	}

	if c.beats != nil {
		running := 0.0
		if c.beats.IsRunning() {
			running = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.beatRunningDesc, prometheus.GaugeValue, running)
	}

	if c.tracks != nil {
		ch <- prometheus.MustNewConstMetric(
			c.loadedTracksDesc, prometheus.GaugeValue,
			float64(c.tracks.LoadedTrackCount()),
		)
	}

	if c.waveforms != nil {
		ch <- prometheus.MustNewConstMetric(
			c.previewCacheDesc, prometheus.GaugeValue,
			float64(c.waveforms.LoadedPreviewCount()),
		)
		ch <- prometheus.MustNewConstMetric(
			c.detailCacheDesc, prometheus.GaugeValue,
			float64(c.waveforms.LoadedDetailCount()),
		)
		findDetails := 0.0
		if c.waveforms.IsFindingDetails() {
			findDetails = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.findDetailsDesc, prometheus.GaugeValue, findDetails)
	}

	if c.connections != nil {
		ch <- prometheus.MustNewConstMetric(
			c.pooledSessionsDesc, prometheus.GaugeValue,
			float64(c.connections.SessionCount()),
		)
	}

	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)
}
