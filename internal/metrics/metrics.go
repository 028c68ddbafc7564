// Copyright (C) 2020  Lukas Dietrich <lukas@lukasdietrich.com>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package metrics holds the Prometheus collectors of the newsletter. All collectors are registered
// with the default registry on package initialization.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	emailsFetched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "newsletter",
		Name:      "emails_fetched_total",
		Help:      "Total number of unseen emails fetched from the mailbox",
	})

	subscribersAdded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsletter",
			Name:      "subscribers_added_total",
			Help:      "Total number of subscribers added to the store",
		},
		[]string{"origin"}, // imap, migration, api
	)

	sends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsletter",
			Name:      "sends_total",
			Help:      "Total number of newsletter messages handed to the transport",
		},
		[]string{"result"}, // success, failed
	)

	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsletter",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "newsletter",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordFetched adds n fetched emails.
func RecordFetched(n int) {
	emailsFetched.Add(float64(n))
}

// RecordSubscriberAdded increments the added subscribers of an origin.
func RecordSubscriberAdded(origin string) {
	subscribersAdded.WithLabelValues(origin).Inc()
}

// RecordSend increments the send counter.
func RecordSend(success bool) {
	result := "failed"
	if success {
		result = "success"
	}

	sends.WithLabelValues(result).Inc()
}

// RecordRequest records a finished HTTP request.
func RecordRequest(method, route string, status int, duration time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
