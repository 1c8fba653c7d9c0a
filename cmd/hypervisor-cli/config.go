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
	"os"

	"sigs.k8s.io/yaml"
)

const (
	// ConfigPathEnvKey is the environment variable key for the config file path.
	ConfigPathEnvKey = "HYPERVISOR_BUILDER_CONFIG_PATH"
)

// loadConfig loads the configuration from the file specified in the
// HYPERVISOR_BUILDER_CONFIG_PATH environment variable.
func loadConfig() (*Config, error) {
	configPath := os.Getenv(ConfigPathEnvKey)
	if configPath == "" {
		return nil, fmt.Errorf("environment variable %q must be set", ConfigPathEnvKey)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Parse YAML (uses json tags)
	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return config, nil
}

// Config is used to configure the hypervisor-cli application.
type Config struct {
	// AHV is the connection configuration for a Nutanix AHV cluster.
	AHV struct {
		// Server is the Prism endpoint host.
		Server string `json:"server"`
		// Port is the Prism API port. Defaults to 9440.
		Port int `json:"port"`
		// Username and Password are the Prism credentials.
		Username string `json:"username"`
		Password string `json:"password"`
		// Version selects the REST API version, "v2.0" or "v3".
		Version string `json:"version"`
		// TLSVerify enables certificate verification.
		TLSVerify bool `json:"tlsVerify"`
		// Retries is the fixed retry budget for API calls.
		Retries int `json:"retries"`
		// RetryIntervalSeconds is the pause between retries.
		RetryIntervalSeconds int `json:"retryIntervalSeconds"`
		// Debug logs every request and response body.
		Debug bool `json:"debug"`
	} `json:"ahv"`

	// Kubevirt is the connection configuration for a KubeVirt cluster.
	Kubevirt struct {
		// Endpoint is the API server URL.
		Endpoint string `json:"endpoint"`
		// Token is the bearer token used for authentication.
		Token string `json:"token"`
		// APIVersion pins the kubevirt.io API version. Discovered
		// when empty.
		APIVersion string `json:"apiVersion"`
	} `json:"kubevirt"`

	// Libvirt is the connection configuration for a libvirt host.
	Libvirt struct {
		// URI is the full connection URI. Takes precedence over
		// User/Host.
		URI string `json:"uri"`
		// User and Host build a qemu+ssh URI when URI is empty.
		User string `json:"user"`
		Host string `json:"host"`
	} `json:"libvirt"`

	// MetricsServer exposes Prometheus metrics while the command runs.
	// Disabled when Port is zero.
	MetricsServer struct {
		// Path is the path for the metrics server.
		Path string `json:"path"`
		// Port is the port for the metrics server.
		Port int `json:"port"`
	} `json:"metricsServer"`
}
