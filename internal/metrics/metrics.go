// Package metrics provides Prometheus instrumentation for the murmur chat
// client and directory service. It exposes gauges for peer and presence
// counts, counters for message throughput per channel variant, and a
// histogram for publish latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PeersConnected tracks the current number of open mesh peer connections.
	PeersConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "murmur_peers_connected",
		Help: "Current number of open mesh peer connections",
	})

	// OnlineUsers tracks the size of the presence set (hosted variant).
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "murmur_online_users",
		Help: "Current number of users in the presence set",
	})

	// MessagesPublished counts messages sent, labeled by channel variant:
	// "hosted" or "mesh".
	MessagesPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "murmur_messages_published_total",
		Help: "Total number of messages published",
	}, []string{"variant"})

	// MessagesReceived counts messages (or snapshots) received, labeled by
	// channel variant.
	MessagesReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "murmur_messages_received_total",
		Help: "Total number of messages received",
	}, []string{"variant"})

	// DirectoryScans counts discovery scans, labeled by result: "ok" or
	// "error".
	DirectoryScans = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "murmur_directory_scans_total",
		Help: "Total number of peer directory scans",
	}, []string{"result"})

	// DirectoryPeers tracks the number of entries currently registered in
	// the directory (directory service side).
	DirectoryPeers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "murmur_directory_peers",
		Help: "Current number of registered directory entries",
	})

	// PublishLatency records time spent publishing a message in seconds.
	PublishLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "murmur_publish_latency_seconds",
		Help:    "Message publish latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})
)

func init() {
	prometheus.MustRegister(
		PeersConnected,
		OnlineUsers,
		MessagesPublished,
		MessagesReceived,
		DirectoryScans,
		DirectoryPeers,
		PublishLatency,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
