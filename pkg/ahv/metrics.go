/*
Copyright 2024 The hypervisor-builder Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package ahv

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// clientMetrics instruments the request/retry engine. Collectors are only
// created when the caller opts in with WithMetrics.
type clientMetrics struct {
	requestsTotal   *prometheus.CounterVec
	retriesTotal    prometheus.Counter
	requestDuration *prometheus.HistogramVec
}

func newClientMetrics(reg prometheus.Registerer) *clientMetrics {
	factory := promauto.With(reg)

	return &clientMetrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ahv_client_requests_total",
			Help: "Total number of HTTP request attempts, by method and status code.",
		}, []string{"method", "code"}),
		retriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ahv_client_retries_total",
			Help: "Total number of retried request attempts.",
		}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ahv_client_request_duration_seconds",
			Help:    "Duration of HTTP request attempts.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}
}
