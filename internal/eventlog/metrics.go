// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package eventlog

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes counters and a histogram describing selection runs, for
// scraping via an optional --metrics-addr flag on `select`.
type Metrics struct {
	SelectionDuration prometheus.Histogram
	TestsIncluded     prometheus.Counter
	TestsExcluded     prometheus.Counter
	SelectionFailures prometheus.Counter
}

// NewMetrics registers and returns a fresh Metrics set against the default
// Prometheus registry, mirroring the teacher's index command metrics wiring.
func NewMetrics() *Metrics {
	return &Metrics{
		SelectionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "binaryrts_selection_duration_seconds",
			Help:    "Duration of a single RTS selection run.",
			Buckets: prometheus.DefBuckets,
		}),
		TestsIncluded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "binaryrts_tests_included_total",
			Help: "Total number of tests selected for re-execution across all runs.",
		}),
		TestsExcluded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "binaryrts_tests_excluded_total",
			Help: "Total number of tests excluded from re-execution across all runs.",
		}),
		SelectionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "binaryrts_selection_failures_total",
			Help: "Total number of selections that fell back to retest-all due to an internal error.",
		}),
	}
}

// ServeMetrics starts a blocking HTTP server exposing /metrics on addr. The
// caller is expected to run this in its own goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
