package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tlex"

var (
	descSessionsActive = prometheus.NewDesc(namespace+"_sessions_active", "Sessions currently open", nil, nil)
	descSessionsTotal  = prometheus.NewDesc(namespace+"_sessions_total", "Sessions accepted since start", nil, nil)
	descRejected       = prometheus.NewDesc(namespace+"_handshake_rejected_total", "Sessions that failed the secret exchange", nil, nil)
	descConnectFailed  = prometheus.NewDesc(namespace+"_connect_failed_total", "Failed dials to the forwarding server", nil, nil)
	descDestFailed     = prometheus.NewDesc(namespace+"_destination_failed_total", "Failed dials to requested destinations", nil, nil)
	descLimitRejected  = prometheus.NewDesc(namespace+"_limit_rejected_total", "Connections refused by the session limit", nil, nil)
	descBytes          = prometheus.NewDesc(namespace+"_relay_bytes_total", "Bytes relayed", []string{"direction"}, nil)
	descReconnects     = prometheus.NewDesc(namespace+"_tunnel_reconnects_total", "Reverse tunnel reconnections", nil, nil)
	descErrors         = prometheus.NewDesc(namespace+"_errors_total", "Errors recorded", nil, nil)
)

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		descSessionsActive, descSessionsTotal, descRejected, descConnectFailed,
		descDestFailed, descLimitRejected, descBytes, descReconnects, descErrors,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector by reading the atomic counters.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.Snapshot()
	gauge := func(d *prometheus.Desc, v int64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v))
	}
	counter := func(d *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}

	gauge(descSessionsActive, s.SessionsActive)
	counter(descSessionsTotal, s.SessionsTotal)
	counter(descRejected, s.HandshakeRejected)
	counter(descConnectFailed, s.ConnectFailed)
	counter(descDestFailed, s.DestinationFailed)
	counter(descLimitRejected, s.LimitRejected)
	counter(descBytes, s.BytesIn, "in")
	counter(descBytes, s.BytesOut, "out")
	counter(descReconnects, s.TunnelReconnects)
	counter(descErrors, s.ErrorsTotal)
}
