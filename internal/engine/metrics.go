/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups the Prometheus collectors OutputController and
// PlayerControl update. A caller wires NewMetrics' result into a registry
// of its choosing via Collectors.
type Metrics struct {
	OutputOpenTotal   *prometheus.CounterVec
	OutputFailTotal   *prometheus.CounterVec
	OutputState       *prometheus.GaugeVec
	PipeSize          *prometheus.GaugeVec
	PlayerUnderruns   prometheus.Counter
	SongsPlayedTotal  prometheus.Counter
}

// NewMetrics constructs a fresh, unregistered Metrics set.
func NewMetrics() *Metrics {
	return &Metrics{
		OutputOpenTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_output_open_total",
			Help: "Number of times an output device was successfully opened.",
		}, []string{"output"}),
		OutputFailTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_output_fail_total",
			Help: "Number of times an output device open or play call failed.",
		}, []string{"output"}),
		OutputState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "engine_output_state",
			Help: "Current OutputController state (see OutputState ordinal).",
		}, []string{"output"}),
		PipeSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "engine_pipe_chunks",
			Help: "Chunks currently buffered in a partition's MusicPipe.",
		}, []string{"partition"}),
		PlayerUnderruns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_player_underruns_total",
			Help: "Number of times the player thread found no chunk ready when one was expected.",
		}),
		SongsPlayedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_songs_played_total",
			Help: "Number of songs the player thread finished playing.",
		}),
	}
}

// Collectors returns every collector for bulk registration, e.g.
// registry.MustRegister(m.Collectors()...).
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.OutputOpenTotal,
		m.OutputFailTotal,
		m.OutputState,
		m.PipeSize,
		m.PlayerUnderruns,
		m.SongsPlayedTotal,
	}
}
