// Copyright 2024 The hypervisor-builder Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupMetricsServer creates an HTTP server exposing the given
// Prometheus registry.
func setupMetricsServer(config *Config, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()

	path := config.MetricsServer.Path
	if path == "" {
		path = "/metrics"
	}

	mux.Handle(path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &http.Server{ //nolint:exhaustruct
		Addr:    fmt.Sprintf(":%d", config.MetricsServer.Port),
		Handler: mux,
	}
}
