// Copyright (c) 2015, Rod Dong <rod.dong@gmail.com>
// All rights reserved.
//
// Use of this source code is governed by The MIT License.

// Package metrics exposes Prometheus counters and gauges for the command
// layer and background sweeper, following the corpus's package-level
// prometheus.MustRegister idiom (§12.1) rather than a per-instance
// registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rod6/log6"
)

var (
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rodis_commands_total",
			Help: "Number of commands dispatched, labeled by command name and outcome.",
		},
		[]string{"command", "outcome"},
	)

	TxnRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rodis_txn_retries_total",
			Help: "Number of optimistic transaction retries caused by a write conflict.",
		},
	)

	TxnConflictsExhaustedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rodis_txn_conflicts_exhausted_total",
			Help: "Number of transactions that exhausted their retry budget.",
		},
	)

	KeysSweptTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rodis_keys_swept_total",
			Help: "Number of expired keys removed by the background sweeper.",
		},
	)

	ConnectedClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rodis_connected_clients",
			Help: "Number of currently connected client sockets.",
		},
	)
)

func init() {
	prometheus.MustRegister(CommandsTotal, TxnRetriesTotal, TxnConflictsExhaustedTotal, KeysSweptTotal, ConnectedClients)
}

// Serve starts the /metrics HTTP endpoint. It blocks; callers run it in
// its own goroutine.
func Serve(listen string) {
	if listen == "" {
		return
	}
	log6.Info("Metrics server listening on %v", listen)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(listen, mux); err != nil {
		log6.Error("Metrics server error: %v", err)
	}
}
