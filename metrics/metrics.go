// Package metrics exposes a custom prometheus.Collector over live peer
// connections, grounded on the Describe/Collect-plus-registry pattern in
// runZeroInc-conniver's pkg/exporter/exporter.go: rather than precomputed
// metric values, Collect walks the live connection set on every scrape so
// counters and gauges always reflect current state without a separate
// update goroutine.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Snapshot is the per-connection data a Source reports for one scrape.
type Snapshot struct {
	Labels     []string
	Sent       map[string]float64 // keyed by send mode
	Received   map[string]float64
	Resent     float64
	Acked      float64
	RTTSeconds float64
	LossRate   float64
}

// Source is implemented by anything a Collector can scrape; in
// practice, a peer's connection table.
type Source interface {
	Snapshot() []Snapshot
}

// Collector is a prometheus.Collector that reports per-connection
// reliability and timing metrics for every connection a Source currently
// holds.
type Collector struct {
	mu     sync.Mutex
	source Source

	sent     *prometheus.Desc
	received *prometheus.Desc
	resent   *prometheus.Desc
	acked    *prometheus.Desc
	rtt      *prometheus.Desc
	loss     *prometheus.Desc
}

var variableLabels = []string{"connection"}

// NewCollector returns a Collector that scrapes source on every Collect
// call. constLabels attaches process-wide labels (e.g. instance name).
func NewCollector(source Source, constLabels prometheus.Labels) *Collector {
	return &Collector{
		source:   source,
		sent:     prometheus.NewDesc("ripnet_messages_sent_total", "Messages sent, by send mode.", append(variableLabels, "mode"), constLabels),
		received: prometheus.NewDesc("ripnet_messages_received_total", "Messages received, by send mode.", append(variableLabels, "mode"), constLabels),
		resent:   prometheus.NewDesc("ripnet_messages_resent_total", "Reliable messages retransmitted.", variableLabels, constLabels),
		acked:    prometheus.NewDesc("ripnet_messages_acked_total", "Reliable messages acknowledged.", variableLabels, constLabels),
		rtt:      prometheus.NewDesc("ripnet_rtt_seconds", "Smoothed round-trip time.", variableLabels, constLabels),
		loss:     prometheus.NewDesc("ripnet_notify_loss_rate", "Rolling notify-mode loss rate.", variableLabels, constLabels),
	}
}

func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.sent
	descs <- c.received
	descs <- c.resent
	descs <- c.acked
	descs <- c.rtt
	descs <- c.loss
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, snap := range c.source.Snapshot() {
		for mode, v := range snap.Sent {
			ch <- prometheus.MustNewConstMetric(c.sent, prometheus.CounterValue, v, append(snap.Labels, mode)...)
		}
		for mode, v := range snap.Received {
			ch <- prometheus.MustNewConstMetric(c.received, prometheus.CounterValue, v, append(snap.Labels, mode)...)
		}
		ch <- prometheus.MustNewConstMetric(c.resent, prometheus.CounterValue, snap.Resent, snap.Labels...)
		ch <- prometheus.MustNewConstMetric(c.acked, prometheus.CounterValue, snap.Acked, snap.Labels...)
		ch <- prometheus.MustNewConstMetric(c.rtt, prometheus.GaugeValue, snap.RTTSeconds, snap.Labels...)
		ch <- prometheus.MustNewConstMetric(c.loss, prometheus.GaugeValue, snap.LossRate, snap.Labels...)
	}
}

var _ prometheus.Collector = (*Collector)(nil)
