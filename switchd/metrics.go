// Copyright 2026 The Condorflow Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package switchd

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics defines the controller metrics. All fields are optional; a nil
// Metrics disables instrumentation.
type Metrics struct {
	PacketsTotal      *prometheus.CounterVec
	DropsTotal        *prometheus.CounterVec
	FloodsTotal       *prometheus.CounterVec
	FlowModsTotal     *prometheus.CounterVec
	EventsDiscarded   *prometheus.CounterVec
	OracleRequests    *prometheus.CounterVec
	SwitchesConnected prometheus.Gauge
}

// NewMetrics initializes the controller metrics and registers them with
// the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		PacketsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switchd_packet_in_total",
				Help: "Total number of packet-in events processed",
			},
			[]string{"dpid"},
		),
		DropsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switchd_dropped_flows_total",
				Help: "Total number of flows dropped, by reason",
			},
			[]string{"dpid", "reason"},
		),
		FloodsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switchd_floods_total",
				Help: "Total number of flooded frames",
			},
			[]string{"dpid"},
		),
		FlowModsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switchd_flow_mods_total",
				Help: "Total number of installed flow entries, by kind",
			},
			[]string{"dpid", "kind"},
		),
		EventsDiscarded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switchd_events_discarded_total",
				Help: "Total number of packet-in events discarded on queue overflow",
			},
			[]string{"dpid"},
		),
		OracleRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switchd_oracle_requests_total",
				Help: "Total number of oracle lookups, by result",
			},
			[]string{"result"},
		),
		SwitchesConnected: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "switchd_switches_connected",
				Help: "Number of currently connected switches",
			},
		),
	}
}
