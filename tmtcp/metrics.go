// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tmtcp

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts connection and transaction traffic. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	connections    prometheus.Counter
	received       prometheus.Counter
	sent           prometheus.Counter
	sizeViolations prometheus.Counter
	openTxns       prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tmtcp",
			Name:      "connections_total",
			Help:      "Connections accepted.",
		}),
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tmtcp",
			Name:      "messages_received_total",
			Help:      "Messages received and routed to a transaction.",
		}),
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tmtcp",
			Name:      "messages_sent_total",
			Help:      "Messages sent completely.",
		}),
		sizeViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tmtcp",
			Name:      "size_violations_total",
			Help:      "Received length prefixes larger than the message limit.",
		}),
		openTxns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tmtcp",
			Name:      "open_transactions",
			Help:      "Transactions currently open across all connections.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.connections, m.received, m.sent, m.sizeViolations, m.openTxns)
	}
	return m
}

func (m *Metrics) connectionAccepted() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) messageReceived() {
	if m != nil {
		m.received.Inc()
	}
}

func (m *Metrics) messageSent() {
	if m != nil {
		m.sent.Inc()
	}
}

func (m *Metrics) sizeViolation() {
	if m != nil {
		m.sizeViolations.Inc()
	}
}

func (m *Metrics) txnOpened() {
	if m != nil {
		m.openTxns.Inc()
	}
}

func (m *Metrics) txnClosed() {
	if m != nil {
		m.openTxns.Dec()
	}
}
